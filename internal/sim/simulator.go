// Package sim advances an infant and its incubator chamber in fixed ticks.
package sim

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/san-kum/incusim/internal/room"
	"github.com/san-kum/incusim/internal/task"
	"github.com/san-kum/incusim/internal/thermal"
	"go.uber.org/zap"
)

// Simulator owns the tick loop. Ticks and commands share one mutex so a
// command is applied between ticks, never during one. Queries read the
// bodies directly and do not wait for a tick to finish.
type Simulator struct {
	infant  *thermal.Infant
	chamber *thermal.Chamber
	room    room.Source
	cfg     Config
	log     *zap.Logger
	loop    *task.Periodic

	mu        sync.Mutex
	metrics   []Metric
	observers []Observer

	ticking atomic.Bool
	ticks   atomic.Int64
}

type Option func(*Simulator)

func WithLogger(l *zap.Logger) Option {
	return func(s *Simulator) {
		if l != nil {
			s.log = l
		}
	}
}

// New builds a simulator for infant and chamber. An empty chamber receives
// the infant; only RemoveInfant takes it out again. A nil room source holds
// the chamber's current room temperature.
func New(infant *thermal.Infant, chamber *thermal.Chamber, src room.Source, cfg Config, opts ...Option) (*Simulator, error) {
	if infant == nil || chamber == nil {
		return nil, ErrMissingBody
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := chamber.AddInfant(infant); err != nil {
		return nil, err
	}
	if src == nil {
		src = room.Constant(chamber.RoomTemperature())
	}

	s := &Simulator{
		infant:  infant,
		chamber: chamber,
		room:    src,
		cfg:     cfg,
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	loop, err := task.New("simulation", cfg.SleepTime, s.step, task.WithLogger(s.log))
	if err != nil {
		return nil, err
	}
	s.loop = loop
	return s, nil
}

func (s *Simulator) AddMetric(m Metric) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, m)
}

func (s *Simulator) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Metrics returns the current value of every registered metric by name.
func (s *Simulator) Metrics() map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]float64, len(s.metrics))
	for _, m := range s.metrics {
		out[m.Name()] = m.Value()
	}
	return out
}

func (s *Simulator) Config() Config              { return s.cfg }
func (s *Simulator) Infant() *thermal.Infant     { return s.infant }
func (s *Simulator) Chamber() *thermal.Chamber   { return s.chamber }
func (s *Simulator) State() task.State           { return s.loop.State() }
func (s *Simulator) Done() <-chan struct{}       { return s.loop.Done() }
func (s *Simulator) Ticks() int                  { return int(s.ticks.Load()) }
func (s *Simulator) SimTime() time.Duration      { return s.simTimeAt(s.ticks.Load()) }
func (s *Simulator) ChamberTemperature() float64 { return s.chamber.Temperature() }
func (s *Simulator) InfantTemperature() float64  { return s.infant.Temperature() }

// Start runs the tick loop in the background until ctx is cancelled, Stop is
// called, the tick limit is reached, or a tick fails.
func (s *Simulator) Start(ctx context.Context) error { return s.loop.Start(ctx) }

// Stop cancels the loop and waits for the current tick to finish.
func (s *Simulator) Stop() error { return s.loop.Stop() }

// Run is Start followed by waiting for the loop to end.
func (s *Simulator) Run(ctx context.Context) error { return s.loop.Run(ctx) }

func (s *Simulator) Err() error { return s.loop.Err() }

func (s *Simulator) Snapshot() Status {
	ticks := s.ticks.Load()
	return Status{
		State:           s.loop.State(),
		Ticks:           int(ticks),
		SimTime:         s.simTimeAt(ticks),
		RoomTemperature: s.chamber.RoomTemperature(),
		Open:            s.chamber.IsOpen(),
		InfantInside:    s.chamber.Infant() == s.infant,
		Infant:          s.infant.Snapshot(),
		Chamber:         s.chamber.Snapshot(),
	}
}

func (s *Simulator) OpenChamber() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chamber.Open()
	s.log.Info("chamber opened", zap.Float64("chamber_k", s.chamber.Temperature()))
}

func (s *Simulator) CloseChamber() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chamber.Close()
	s.log.Info("chamber closed")
}

// AddInfant places the simulated infant in the chamber.
func (s *Simulator) AddInfant() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.chamber.AddInfant(s.infant); err != nil {
		return err
	}
	s.log.Info("infant added", zap.Float64("displaced_air_j", s.chamber.DisplacedAirEnergy()))
	return nil
}

// RemoveInfant takes the infant out of the chamber. It reports whether the
// infant was inside.
func (s *Simulator) RemoveInfant() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.chamber.Infant() != s.infant {
		return false
	}
	s.chamber.RemoveInfant()
	s.log.Info("infant removed")
	return true
}

// Tick advances the simulation by one time step. Observers and then metrics
// see the report in registration order.
func (s *Simulator) Tick(ctx context.Context) (TickReport, error) {
	if err := ctx.Err(); err != nil {
		return TickReport{}, err
	}
	if !s.ticking.CompareAndSwap(false, true) {
		return TickReport{}, ErrConcurrentTick
	}
	defer s.ticking.Store(false)

	s.mu.Lock()
	r, err := s.advance()
	observers, metrics := s.observers, s.metrics
	s.mu.Unlock()

	if err != nil {
		return r, err
	}

	for _, o := range observers {
		o.OnTick(r)
	}
	for _, m := range metrics {
		m.Observe(r)
	}

	s.log.Debug("tick",
		zap.Int("tick", r.Tick),
		zap.Duration("sim_time", r.SimTime),
		zap.Float64("infant_k", r.Infant.Temperature),
		zap.Float64("chamber_k", r.Chamber.Temperature),
		zap.Float64("room_k", r.RoomTemperature),
	)
	return r, nil
}

// advance runs the three ordered updates for every sub-step: infant against
// chamber, chamber against room, then the infant's returned energy credited
// to the chamber. Callers hold s.mu.
func (s *Simulator) advance() (TickReport, error) {
	tick := s.ticks.Load()
	roomTemp := s.room.At(s.simTimeAt(tick))
	s.chamber.SetRoomTemperature(roomTemp)

	n, h := s.cfg.Substeps()
	inside := s.chamber.Infant() == s.infant
	r := TickReport{
		Tick:            int(tick) + 1,
		SimTime:         s.simTimeAt(tick + 1),
		Substeps:        n,
		Substep:         h,
		RoomTemperature: roomTemp,
		InfantInside:    inside,
	}

	infant0, chamber0 := s.infant.Energy(), s.chamber.Energy()

	for i := 0; i < n; i++ {
		var e float64
		if inside {
			x := s.infant.ExchangeDetail(h, s.chamber.Temperature())
			e = x.Returned()
			r.InfantTransfer += x.Environment
			r.InfantHeaterEnergy += x.Heater
			if x.Heater > 0 {
				r.InfantHeaterActive++
			}
		}

		x := s.chamber.ExchangeDetail(h, roomTemp)
		r.RoomTransfer += x.Environment
		r.ChamberHeaterEnergy += x.Heater
		if x.Heater > 0 {
			r.ChamberHeaterActive++
		}

		s.chamber.AddEnergy(e)
		r.CreditedToChamber += e
	}

	r.Infant = s.infant.Snapshot()
	r.Chamber = s.chamber.Snapshot()
	r.InfantEnergyChange = r.Infant.Energy - infant0
	r.ChamberEnergyChange = r.Chamber.Energy - chamber0
	s.ticks.Add(1)

	if s.cfg.ValidateState && !(isFinite(r.Infant.Temperature) && isFinite(r.Chamber.Temperature)) {
		return r, &SimulationError{Tick: r.Tick, SimTime: r.SimTime, Wrapped: ErrInvalidState}
	}
	return r, nil
}

func (s *Simulator) step(ctx context.Context) error {
	r, err := s.Tick(ctx)
	if errors.Is(err, ErrConcurrentTick) {
		s.log.Warn("tick skipped, another tick is in progress")
		return nil
	}
	if err != nil {
		return err
	}
	if s.cfg.MaxTicks > 0 && r.Tick >= s.cfg.MaxTicks {
		s.log.Info("tick limit reached", zap.Int("ticks", r.Tick))
		return task.ErrFinished
	}
	return nil
}

func (s *Simulator) simTimeAt(ticks int64) time.Duration {
	return time.Duration(float64(ticks) * s.cfg.TimeStep * float64(time.Second))
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
