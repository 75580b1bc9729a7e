package automation

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	"github.com/san-kum/incusim/internal/config"
	"github.com/san-kum/incusim/internal/experiment"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var sweepParams = map[string]func(c *config.Config, v float64){
	"room_temperature":    func(c *config.Config, v float64) { c.Room.Temperature = v },
	"chamber_temperature": func(c *config.Config, v float64) { c.Chamber.Temperature = v },
	"chamber_setpoint":    func(c *config.Config, v float64) { c.Chamber.Heater.Setpoint = v },
	"chamber_power":       func(c *config.Config, v float64) { c.Chamber.Heater.Power = v },
	"infant_power":        func(c *config.Config, v float64) { c.Infant.Heater.Power = v },
	"time_step":           func(c *config.Config, v float64) { c.TimeStep = v },
}

func SweepParams() []string {
	names := make([]string, 0, len(sweepParams))
	for name := range sweepParams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParameterSweep runs one experiment per value of a config parameter
type ParameterSweep struct {
	Base      *config.Config
	ParamName string
	ParamMin  float64
	ParamMax  float64
	NumSteps  int
	Workers   int // 0 uses one per CPU
}

// SweepResult holds the outcome of one sweep point
type SweepResult struct {
	ParamValue float64
	Result     experiment.Result
}

func (s *ParameterSweep) values() ([]float64, error) {
	if s.NumSteps < 1 {
		return nil, fmt.Errorf("sweep needs at least one step, got %d", s.NumSteps)
	}
	if s.NumSteps == 1 {
		return []float64{s.ParamMin}, nil
	}
	step := (s.ParamMax - s.ParamMin) / float64(s.NumSteps-1)
	vals := make([]float64, s.NumSteps)
	for i := range vals {
		vals[i] = s.ParamMin + float64(i)*step
	}
	return vals, nil
}

// RunSweep executes every sweep point concurrently without wall-clock pauses.
// Each point must stop on its own, so the base config needs a tick limit.
// Results come back in parameter order.
func RunSweep(ctx context.Context, sweep *ParameterSweep, log *zap.Logger) ([]SweepResult, error) {
	set, ok := sweepParams[sweep.ParamName]
	if !ok {
		return nil, fmt.Errorf("unknown sweep parameter: %s (available: %v)", sweep.ParamName, SweepParams())
	}
	if sweep.Base == nil || sweep.Base.Ticks <= 0 {
		return nil, fmt.Errorf("sweep needs a base config with a tick limit")
	}
	vals, err := sweep.values()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}

	workers := sweep.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	results := make([]SweepResult, len(vals))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, v := range vals {
		i, v := i, v
		g.Go(func() error {
			cfg := sweep.Base.Clone()
			cfg.Sleep = 0
			set(cfg, v)

			exp, err := experiment.Build(cfg, log)
			if err != nil {
				return fmt.Errorf("%s=%g: %w", sweep.ParamName, v, err)
			}
			if err := exp.Run(gctx); err != nil {
				return fmt.Errorf("%s=%g: %w", sweep.ParamName, v, err)
			}
			results[i] = SweepResult{ParamValue: v, Result: exp.Result()}
			log.Debug("sweep point done", zap.String("param", sweep.ParamName), zap.Float64("value", v))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	// an interrupted experiment returns nil, leaving its point unfilled
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
