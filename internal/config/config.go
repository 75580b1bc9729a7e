package config

import (
	"fmt"
	"os"
	"time"

	"github.com/san-kum/incusim/internal/room"
	"github.com/san-kum/incusim/internal/thermal"
	"gopkg.in/yaml.v3"
)

const (
	DefaultTimeStep   = 60.0 // s
	DefaultSleep      = time.Second
	DefaultMaxSubstep = 1.0 // s

	DefaultInfantMass   = 3.0 // kg
	DefaultInfantLength = 0.5 // m

	DefaultChamberWidth       = 1.0 // m
	DefaultChamberDepth       = 0.5
	DefaultChamberHeight      = 0.5
	DefaultChamberTemperature = 300.0 // K

	DefaultInfantHeaterPower  = 100.0 // W
	DefaultChamberHeaterPower = 150.0
	DefaultChamberSetpoint    = 305.0 // K
	DefaultPollPeriod         = time.Second
)

// Heater modes.
const (
	HeaterOff    = "off"
	HeaterSync   = "sync"   // thermostat evaluated on every read
	HeaterPolled = "polled" // thermostat evaluated on its own period
	HeaterPID    = "pid"
	HeaterManual = "manual" // fixed output
)

// Sensor modes.
const (
	SensorDirect = "direct"
	SensorPolled = "polled"
)

// Room modes.
const (
	RoomConstant = "constant"
	RoomDiurnal  = "diurnal"
	RoomSchedule = "schedule"
)

type Config struct {
	Infant  InfantConfig  `yaml:"infant"`
	Chamber ChamberConfig `yaml:"chamber"`
	Room    RoomConfig    `yaml:"room"`

	TimeStep      float64       `yaml:"time_step"` // simulated seconds per tick
	Sleep         time.Duration `yaml:"sleep"`     // wall-clock pause between ticks
	MaxSubstep    float64       `yaml:"max_substep"`
	Ticks         int           `yaml:"ticks"` // 0 runs until interrupted
	ValidateState bool          `yaml:"validate_state"`
}

type InfantConfig struct {
	Mass        float64           `yaml:"mass"`
	Length      float64           `yaml:"length"`
	Temperature float64           `yaml:"temperature"`
	InChamber   bool              `yaml:"in_chamber"`
	Heater      HeaterConfig      `yaml:"heater"`
	Material    *thermal.Material `yaml:"material,omitempty"`
}

type ChamberConfig struct {
	Width       float64           `yaml:"width"`
	Depth       float64           `yaml:"depth"`
	Height      float64           `yaml:"height"`
	Temperature float64           `yaml:"temperature"`
	Open        bool              `yaml:"open"`
	Heater      HeaterConfig      `yaml:"heater"`
	Material    *thermal.Material `yaml:"material,omitempty"`
}

type HeaterConfig struct {
	Mode     string        `yaml:"mode"`
	Power    float64       `yaml:"power"`
	Setpoint float64       `yaml:"setpoint"`
	Period   time.Duration `yaml:"period,omitempty"`
	Sensor   SensorConfig  `yaml:"sensor"`
	PID      PIDConfig     `yaml:"pid,omitempty"`
}

type SensorConfig struct {
	Mode   string        `yaml:"mode"`
	Period time.Duration `yaml:"period,omitempty"`
}

type PIDConfig struct {
	Kp float64 `yaml:"kp"`
	Ki float64 `yaml:"ki"`
	Kd float64 `yaml:"kd"`
}

type RoomConfig struct {
	Mode        string        `yaml:"mode"`
	Temperature float64       `yaml:"temperature"` // constant value, diurnal mean or schedule start
	Amplitude   float64       `yaml:"amplitude,omitempty"`
	Period      time.Duration `yaml:"period,omitempty"`
	Phase       time.Duration `yaml:"phase,omitempty"`
	Steps       []room.Step   `yaml:"steps,omitempty"`
}

func DefaultConfig() *Config {
	return &Config{
		Infant: InfantConfig{
			Mass:        DefaultInfantMass,
			Length:      DefaultInfantLength,
			Temperature: thermal.BodyTemperature,
			InChamber:   true,
			Heater: HeaterConfig{
				Mode:     HeaterSync,
				Power:    DefaultInfantHeaterPower,
				Setpoint: thermal.BodyTemperature,
				Sensor:   SensorConfig{Mode: SensorDirect},
			},
		},
		Chamber: ChamberConfig{
			Width:       DefaultChamberWidth,
			Depth:       DefaultChamberDepth,
			Height:      DefaultChamberHeight,
			Temperature: DefaultChamberTemperature,
			Heater: HeaterConfig{
				Mode:     HeaterOff,
				Power:    DefaultChamberHeaterPower,
				Setpoint: DefaultChamberSetpoint,
				Sensor:   SensorConfig{Mode: SensorDirect},
			},
		},
		Room: RoomConfig{
			Mode:        RoomConstant,
			Temperature: thermal.RoomTemperature,
		},
		TimeStep:      DefaultTimeStep,
		Sleep:         DefaultSleep,
		MaxSubstep:    DefaultMaxSubstep,
		ValidateState: true,
	}
}

// Load reads a YAML file on top of the defaults. Fields missing from the file
// keep their default value.
func Load(path string) (*Config, error) {
	return LoadOnto(path, DefaultConfig())
}

// LoadOnto reads a YAML file on top of a copy of base, so a file can refine a
// preset. base is not modified.
func LoadOnto(path string, base *Config) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := base.Clone()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := cfg.YAML()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return data, nil
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Infant.Material = cloneMaterial(c.Infant.Material)
	out.Chamber.Material = cloneMaterial(c.Chamber.Material)
	if c.Room.Steps != nil {
		out.Room.Steps = append([]room.Step(nil), c.Room.Steps...)
	}
	return &out
}

func cloneMaterial(m *thermal.Material) *thermal.Material {
	if m == nil {
		return nil
	}
	cp := *m
	return &cp
}

// InfantMaterial returns the configured material or human tissue.
func (c *Config) InfantMaterial() thermal.Material {
	if c.Infant.Material != nil {
		return *c.Infant.Material
	}
	return thermal.HumanTissue
}

// ChamberMaterial returns the configured material or air.
func (c *Config) ChamberMaterial() thermal.Material {
	if c.Chamber.Material != nil {
		return *c.Chamber.Material
	}
	return thermal.Air
}

// RoomSource builds the room temperature source described by the config.
func (c *Config) RoomSource() (room.Source, error) {
	r := c.Room
	switch r.Mode {
	case "", RoomConstant:
		return room.Constant(r.Temperature), nil
	case RoomDiurnal:
		return room.Diurnal{Mean: r.Temperature, Amplitude: r.Amplitude, Period: r.Period, Phase: r.Phase}, nil
	case RoomSchedule:
		sched, err := room.NewSchedule(r.Temperature, r.Steps...)
		if err != nil {
			return nil, err
		}
		return sched, nil
	default:
		return nil, fmt.Errorf("unknown room mode %q", r.Mode)
	}
}
