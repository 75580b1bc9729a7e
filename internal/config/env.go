package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"go.uber.org/multierr"
)

const (
	EnvTimeStep        = "INCUSIM_TIME_STEP"
	EnvSleep           = "INCUSIM_SLEEP"
	EnvRoomTemperature = "INCUSIM_ROOM_TEMPERATURE"
	EnvTicks           = "INCUSIM_TICKS"
)

// ApplyEnv overrides config values from INCUSIM_* environment variables.
// Unset or empty variables are ignored; malformed ones are all reported.
func (c *Config) ApplyEnv() error {
	var err error

	if v, ok := lookup(EnvTimeStep); ok {
		f, perr := strconv.ParseFloat(v, 64)
		if perr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", EnvTimeStep, perr))
		} else {
			c.TimeStep = f
		}
	}
	if v, ok := lookup(EnvSleep); ok {
		d, perr := time.ParseDuration(v)
		if perr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", EnvSleep, perr))
		} else {
			c.Sleep = d
		}
	}
	if v, ok := lookup(EnvRoomTemperature); ok {
		f, perr := strconv.ParseFloat(v, 64)
		if perr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", EnvRoomTemperature, perr))
		} else {
			c.Room.Temperature = f
		}
	}
	if v, ok := lookup(EnvTicks); ok {
		n, perr := strconv.Atoi(v)
		if perr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", EnvTicks, perr))
		} else {
			c.Ticks = n
		}
	}
	return err
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
