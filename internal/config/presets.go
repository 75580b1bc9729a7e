package config

import (
	"sort"
	"time"

	"github.com/san-kum/incusim/internal/room"
	"github.com/san-kum/incusim/internal/thermal"
)

type Preset struct {
	Description string
	build       func(c *Config)
}

var Presets = map[string]Preset{
	"cooling": {
		Description: "both heaters off, infant cools toward a 300 K chamber in a 293 K room",
		build: func(c *Config) {
			c.Infant.Heater.Mode = HeaterOff
			c.Chamber.Heater.Mode = HeaterOff
			c.Ticks = 10
		},
	},
	"nominal": {
		Description: "infant thermoregulates, chamber thermostat holds 305 K",
		build: func(c *Config) {
			c.Chamber.Heater.Mode = HeaterSync
		},
	},
	"polled": {
		Description: "chamber heater and thermometer poll on their own periods",
		build: func(c *Config) {
			c.Chamber.Heater.Mode = HeaterPolled
			c.Chamber.Heater.Period = DefaultPollPeriod
			c.Chamber.Heater.Sensor = SensorConfig{Mode: SensorPolled, Period: 2 * DefaultPollPeriod}
		},
	},
	"pid": {
		Description: "chamber heater driven by a PID loop toward 305 K",
		build: func(c *Config) {
			c.Chamber.Heater.Mode = HeaterPID
			c.Chamber.Heater.PID = PIDConfig{Kp: 40, Ki: 0.05, Kd: 0}
		},
	},
	"open-door": {
		Description: "chamber starts open in a room that cools at the one hour mark",
		build: func(c *Config) {
			c.Chamber.Open = true
			c.Chamber.Heater.Mode = HeaterSync
			c.Room.Mode = RoomSchedule
			c.Room.Steps = []room.Step{{Offset: time.Hour, Temperature: thermal.ZeroCelsius + 15}}
		},
	},
	"night": {
		Description: "room follows a 24 h cycle of +-3 K around 293 K",
		build: func(c *Config) {
			c.Chamber.Heater.Mode = HeaterSync
			c.Room.Mode = RoomDiurnal
			c.Room.Amplitude = 3
			c.Room.Period = 24 * time.Hour
		},
	},
}

// GetPreset returns a fresh config for the named preset, or nil.
func GetPreset(name string) *Config {
	p, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	p.build(cfg)
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
