// Package telemetry streams per-tick simulation records.
package telemetry

import (
	"fmt"
	"io"
	"sync"

	"github.com/gocarina/gocsv"
	"github.com/san-kum/incusim/internal/sim"
)

// TickRecord is one CSV row.
type TickRecord struct {
	RunID          string  `csv:"run_id"`
	Tick           int     `csv:"tick"`
	SimTimeS       float64 `csv:"sim_time_s"`
	RoomK          float64 `csv:"room_k"`
	InfantK        float64 `csv:"infant_k"`
	ChamberK       float64 `csv:"chamber_k"`
	InfantInside   bool    `csv:"infant_inside"`
	InfantHeaterW  float64 `csv:"infant_heater_w"`
	ChamberHeaterW float64 `csv:"chamber_heater_w"`
	RoomExchangeJ  float64 `csv:"room_exchange_j"`
	InfantExchJ    float64 `csv:"infant_exchange_j"`
}

// NewTickRecord flattens a tick report. Heater columns are mean watts over
// the tick.
func NewTickRecord(runID string, r sim.TickReport) TickRecord {
	rec := TickRecord{
		RunID:         runID,
		Tick:          r.Tick,
		SimTimeS:      r.SimTime.Seconds(),
		RoomK:         r.RoomTemperature,
		InfantK:       r.Infant.Temperature,
		ChamberK:      r.Chamber.Temperature,
		InfantInside:  r.InfantInside,
		RoomExchangeJ: r.RoomTransfer,
		InfantExchJ:   r.InfantTransfer,
	}
	if span := float64(r.Substeps) * r.Substep; span > 0 {
		rec.InfantHeaterW = r.InfantHeaterEnergy / span
		rec.ChamberHeaterW = r.ChamberHeaterEnergy / span
	}
	return rec
}

// CSVWriter is a sim.Observer that writes one row per tick. The header is
// written with the first row. Write errors are kept; once one occurs no more
// rows are written.
type CSVWriter struct {
	mu            sync.Mutex
	out           io.Writer
	runID         string
	headerWritten bool
	rows          int
	err           error
}

func NewCSVWriter(out io.Writer, runID string) *CSVWriter {
	return &CSVWriter{out: out, runID: runID}
}

func (w *CSVWriter) OnTick(r sim.TickReport) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return
	}
	w.err = w.write(NewTickRecord(w.runID, r))
}

func (w *CSVWriter) write(rec TickRecord) error {
	records := []TickRecord{rec}

	if !w.headerWritten {
		if err := gocsv.Marshal(records, w.out); err != nil {
			return fmt.Errorf("writing telemetry: %w", err)
		}
		w.headerWritten = true
	} else {
		if err := gocsv.MarshalWithoutHeaders(records, w.out); err != nil {
			return fmt.Errorf("writing telemetry: %w", err)
		}
	}
	w.rows++
	return nil
}

// Rows is the number of rows written so far.
func (w *CSVWriter) Rows() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

func (w *CSVWriter) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}
