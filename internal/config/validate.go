package config

import (
	"fmt"
	"math"

	"github.com/san-kum/incusim/internal/sim"
	"go.uber.org/multierr"
)

// Validate reports every problem in the config, not just the first.
func (c *Config) Validate() error {
	var err error

	err = multierr.Append(err, positive("time_step", c.TimeStep))
	if c.Sleep < 0 {
		err = multierr.Append(err, fmt.Errorf("sleep must not be negative, got %v", c.Sleep))
	}
	if c.MaxSubstep < 0 || math.IsNaN(c.MaxSubstep) {
		err = multierr.Append(err, fmt.Errorf("max_substep must not be negative, got %g", c.MaxSubstep))
	} else if c.MaxSubstep > 0 && math.Ceil(c.TimeStep/c.MaxSubstep) > sim.MaxSubsteps {
		err = multierr.Append(err, fmt.Errorf("max_substep %g splits time_step %g into more than %d sub-steps", c.MaxSubstep, c.TimeStep, sim.MaxSubsteps))
	}
	if c.Ticks < 0 {
		err = multierr.Append(err, fmt.Errorf("ticks must not be negative, got %d", c.Ticks))
	}

	err = multierr.Append(err, positive("infant.mass", c.Infant.Mass))
	err = multierr.Append(err, positive("infant.length", c.Infant.Length))
	err = multierr.Append(err, positive("infant.temperature", c.Infant.Temperature))
	if c.Infant.Material != nil {
		err = multierr.Append(err, prefixed("infant.material", c.Infant.Material.Validate()))
	}
	err = multierr.Append(err, c.Infant.Heater.validate("infant.heater"))

	err = multierr.Append(err, positive("chamber.width", c.Chamber.Width))
	err = multierr.Append(err, positive("chamber.depth", c.Chamber.Depth))
	err = multierr.Append(err, positive("chamber.height", c.Chamber.Height))
	err = multierr.Append(err, positive("chamber.temperature", c.Chamber.Temperature))
	if c.Chamber.Material != nil {
		err = multierr.Append(err, prefixed("chamber.material", c.Chamber.Material.Validate()))
	}
	err = multierr.Append(err, c.Chamber.Heater.validate("chamber.heater"))

	err = multierr.Append(err, c.Room.validate())
	return err
}

func (h HeaterConfig) validate(field string) error {
	var err error
	switch h.Mode {
	case HeaterOff:
		return nil
	case HeaterSync, HeaterPolled, HeaterPID, HeaterManual:
	default:
		return fmt.Errorf("%s.mode: unknown mode %q", field, h.Mode)
	}

	if h.Power < 0 || math.IsNaN(h.Power) {
		err = multierr.Append(err, fmt.Errorf("%s.power must not be negative, got %g", field, h.Power))
	}
	if h.Mode == HeaterManual {
		return err
	}

	err = multierr.Append(err, positive(field+".setpoint", h.Setpoint))
	if h.Mode == HeaterPolled && h.Period <= 0 {
		err = multierr.Append(err, fmt.Errorf("%s.period must be positive for a polled heater, got %v", field, h.Period))
	}

	switch h.Sensor.Mode {
	case "", SensorDirect:
	case SensorPolled:
		if h.Sensor.Period <= 0 {
			err = multierr.Append(err, fmt.Errorf("%s.sensor.period must be positive, got %v", field, h.Sensor.Period))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("%s.sensor.mode: unknown mode %q", field, h.Sensor.Mode))
	}
	return err
}

func (r RoomConfig) validate() error {
	var err error
	err = multierr.Append(err, positive("room.temperature", r.Temperature))

	switch r.Mode {
	case "", RoomConstant:
	case RoomDiurnal:
		if r.Period <= 0 {
			err = multierr.Append(err, fmt.Errorf("room.period must be positive for a diurnal room, got %v", r.Period))
		}
		if math.Abs(r.Amplitude) >= r.Temperature {
			err = multierr.Append(err, fmt.Errorf("room.amplitude %g would take the room below 0 K", r.Amplitude))
		}
	case RoomSchedule:
		for i, s := range r.Steps {
			if s.Offset < 0 {
				err = multierr.Append(err, fmt.Errorf("room.steps[%d].offset must not be negative, got %v", i, s.Offset))
			}
			err = multierr.Append(err, positive(fmt.Sprintf("room.steps[%d].temperature", i), s.Temperature))
		}
	default:
		err = multierr.Append(err, fmt.Errorf("room.mode: unknown mode %q", r.Mode))
	}
	return err
}

func positive(field string, v float64) error {
	if v > 0 && !math.IsInf(v, 0) {
		return nil
	}
	return fmt.Errorf("%s must be positive and finite, got %g", field, v)
}

func prefixed(field string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", field, err)
}
