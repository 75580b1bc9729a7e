package thermal

import (
	"math"
)

// HeatSource yields the power output in watts for the current step.
type HeatSource interface {
	Output() float64
}

// TemperatureSensor returns a temperature reading in kelvin.
type TemperatureSensor interface {
	Temperature() float64
}

// Material holds the constants that define how a body stores and exchanges
// heat.
type Material struct {
	Density             float64 `yaml:"density"`              // kg / m^3
	SpecificHeat        float64 `yaml:"specific_heat"`        // J / kg / K
	TransferCoefficient float64 `yaml:"transfer_coefficient"` // W / m^2 / K
}

var (
	HumanTissue = Material{Density: 1000, SpecificHeat: 3500, TransferCoefficient: 5.5}
	Air         = Material{Density: 1.2041, SpecificHeat: 1012, TransferCoefficient: 5.1}
)

const (
	// ZeroCelsius is 0 degrees Celsius in kelvin.
	ZeroCelsius = 273.0
	// BodyTemperature is the physiological setpoint of a body heater (37 C).
	BodyTemperature = ZeroCelsius + 37
	// RoomTemperature is a typical ambient temperature (20 C).
	RoomTemperature = ZeroCelsius + 20
)

func (m Material) Validate() error {
	if err := positive("density", m.Density); err != nil {
		return err
	}
	if err := positive("specific heat", m.SpecificHeat); err != nil {
		return err
	}
	if m.TransferCoefficient < 0 || !finite(m.TransferCoefficient) {
		return &ConfigError{Field: "transfer coefficient", Value: m.TransferCoefficient, Reason: "must be a non-negative number"}
	}
	return nil
}

func positive(field string, v float64) error {
	if !finite(v) || v <= 0 {
		return &ConfigError{Field: field, Value: v, Reason: "must be positive"}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Snapshot is a consistent read of a body's state.
type Snapshot struct {
	Name        string
	Energy      float64
	Temperature float64
}
