// Package experiment assembles a simulation from a config and runs it with
// its pollers.
package experiment

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/san-kum/incusim/internal/config"
	"github.com/san-kum/incusim/internal/metrics"
	"github.com/san-kum/incusim/internal/sim"
	"github.com/san-kum/incusim/internal/task"
	"github.com/san-kum/incusim/internal/thermal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Experiment struct {
	id        string
	cfg       *config.Config
	log       *zap.Logger
	simulator *sim.Simulator
	pollers   []*task.Periodic
	stats     []*metrics.TemperatureStats
	duty      []*metrics.HeaterDuty
}

// Result summarizes a finished run.
type Result struct {
	RunID   string
	Ticks   int
	SimTime time.Duration
	Status  sim.Status
	Metrics map[string]float64

	Temperatures map[string]metrics.Summary // by body
	HeaterPower  map[string]float64         // mean watts by body
}

// Build validates cfg and wires bodies, sensors, heaters, the room source and
// the simulator. Nothing runs until Run.
func Build(cfg *config.Config, log *zap.Logger) (*Experiment, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}

	id := xid.New().String()
	log = log.With(zap.String("run_id", id))

	src, err := cfg.RoomSource()
	if err != nil {
		return nil, err
	}

	infant, err := thermal.NewInfantWithMaterial(cfg.InfantMaterial(), cfg.Infant.Mass, cfg.Infant.Length, cfg.Infant.Temperature)
	if err != nil {
		return nil, err
	}
	ch := cfg.Chamber
	chamber, err := thermal.NewChamberWithMaterial(cfg.ChamberMaterial(), ch.Width, ch.Depth, ch.Height, ch.Temperature, src.At(0))
	if err != nil {
		return nil, err
	}
	if ch.Open {
		chamber.Open()
	}

	simCfg := sim.Config{
		TimeStep:      cfg.TimeStep,
		SleepTime:     cfg.Sleep,
		MaxSubstep:    cfg.MaxSubstep,
		MaxTicks:      cfg.Ticks,
		ValidateState: cfg.ValidateState,
	}
	_, substep := simCfg.Substeps()

	e := &Experiment{id: id, cfg: cfg, log: log}
	reg := NewRegistry()

	heater, pollers, err := reg.Heater(cfg.Infant.Heater, infant, substep, log.Named("infant.heater"))
	if err != nil {
		return nil, fmt.Errorf("infant: %w", err)
	}
	infant.SetHeater(heater)
	e.pollers = append(e.pollers, pollers...)

	heater, pollers, err = reg.Heater(ch.Heater, chamber, substep, log.Named("chamber.heater"))
	if err != nil {
		return nil, fmt.Errorf("chamber: %w", err)
	}
	chamber.SetHeater(heater)
	e.pollers = append(e.pollers, pollers...)

	e.simulator, err = sim.New(infant, chamber, src, simCfg, sim.WithLogger(log))
	if err != nil {
		return nil, err
	}
	if !cfg.Infant.InChamber {
		e.simulator.RemoveInfant()
	}
	for _, m := range reg.DefaultMetrics() {
		switch m := m.(type) {
		case *metrics.TemperatureStats:
			e.stats = append(e.stats, m)
		case *metrics.HeaterDuty:
			e.duty = append(e.duty, m)
		}
		e.simulator.AddMetric(m)
	}

	log.Info("experiment built",
		zap.Float64("time_step_s", cfg.TimeStep),
		zap.Duration("sleep", cfg.Sleep),
		zap.Int("ticks", cfg.Ticks),
		zap.String("infant_heater", cfg.Infant.Heater.Mode),
		zap.String("chamber_heater", ch.Heater.Mode),
		zap.String("room", cfg.Room.Mode),
		zap.Int("pollers", len(e.pollers)),
	)
	return e, nil
}

func (e *Experiment) ID() string                { return e.id }
func (e *Experiment) Config() *config.Config    { return e.cfg }
func (e *Experiment) Simulator() *sim.Simulator { return e.simulator }

func (e *Experiment) AddObserver(o sim.Observer) { e.simulator.AddObserver(o) }

// Run starts every poller and the tick loop and blocks until the loop ends or
// ctx is cancelled. The first task to fail cancels the others. Pollers are
// stopped once the loop is done.
func (e *Experiment) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range e.pollers {
		p := p
		g.Go(func() error {
			return p.Run(gctx)
		})
	}
	g.Go(func() error {
		defer cancel()
		return e.simulator.Run(gctx)
	})

	err := g.Wait()
	if err != nil {
		e.log.Error("experiment failed", zap.Error(err), zap.Int("ticks", e.simulator.Ticks()))
		return err
	}
	e.log.Info("experiment finished", zap.Int("ticks", e.simulator.Ticks()), zap.Duration("sim_time", e.simulator.SimTime()))
	return nil
}

func (e *Experiment) Result() Result {
	temperatures := make(map[string]metrics.Summary, len(e.stats))
	for _, st := range e.stats {
		temperatures[st.Target().String()] = st.Summary()
	}
	power := make(map[string]float64, len(e.duty))
	for _, d := range e.duty {
		power[d.Target().String()] = d.MeanPower()
	}

	return Result{
		RunID:   e.id,
		Ticks:   e.simulator.Ticks(),
		SimTime: e.simulator.SimTime(),
		Status:  e.simulator.Snapshot(),
		Metrics: e.simulator.Metrics(),

		Temperatures: temperatures,
		HeaterPower:  power,
	}
}
