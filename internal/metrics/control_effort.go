package metrics

import (
	"sync"

	"github.com/san-kum/incusim/internal/sim"
)

// Target selects which body a metric follows.
type Target int

const (
	Infant Target = iota
	Chamber
)

func (t Target) String() string {
	if t == Chamber {
		return "chamber"
	}
	return "infant"
}

// HeaterDuty is the fraction of sub-steps in which a heater produced output.
// Sub-steps where the infant was outside the chamber are not counted for the
// infant heater.
type HeaterDuty struct {
	mu      sync.Mutex
	name    string
	target  Target
	active  int
	samples int
	energy  float64
	seconds float64
}

func NewHeaterDuty(target Target) *HeaterDuty {
	return &HeaterDuty{
		name:   target.String() + "_heater_duty",
		target: target,
	}
}

func (h *HeaterDuty) Name() string   { return h.name }
func (h *HeaterDuty) Target() Target { return h.target }

func (h *HeaterDuty) Observe(r sim.TickReport) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch h.target {
	case Infant:
		if !r.InfantInside {
			return
		}
		h.active += r.InfantHeaterActive
		h.energy += r.InfantHeaterEnergy
	case Chamber:
		h.active += r.ChamberHeaterActive
		h.energy += r.ChamberHeaterEnergy
	}
	h.samples += r.Substeps
	h.seconds += float64(r.Substeps) * r.Substep
}

func (h *HeaterDuty) Value() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.samples == 0 {
		return 0
	}
	return float64(h.active) / float64(h.samples)
}

// MeanPower is the average heater output in watts over the observed time.
func (h *HeaterDuty) MeanPower() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.seconds == 0 {
		return 0
	}
	return h.energy / h.seconds
}

func (h *HeaterDuty) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active = 0
	h.samples = 0
	h.energy = 0
	h.seconds = 0
}
