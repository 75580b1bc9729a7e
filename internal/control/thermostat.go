package control

import (
	"fmt"
	"sync"

	"github.com/san-kum/incusim/internal/thermal"
)

// onOff is the thermostat rule: full power strictly below the setpoint.
func onOff(reading, setpoint, power float64) float64 {
	if reading < setpoint {
		return power
	}
	return 0
}

func validatePower(power float64) error {
	if power < 0 {
		return &thermal.ConfigError{Field: "heater power", Value: power, Reason: "must not be negative"}
	}
	return nil
}

// Thermostat is an on/off heater that reads its sensor on every call.
type Thermostat struct {
	power    float64
	setpoint float64

	mu     sync.RWMutex
	sensor thermal.TemperatureSensor
}

func NewThermostat(power, setpoint float64, sensor thermal.TemperatureSensor) (*Thermostat, error) {
	if err := validatePower(power); err != nil {
		return nil, err
	}
	if sensor == nil {
		return nil, fmt.Errorf("thermostat: %w", thermal.ErrNoSensor)
	}
	return &Thermostat{power: power, setpoint: setpoint, sensor: sensor}, nil
}

// NewBodyHeater returns the thermostat of a body regulating itself to body
// temperature.
func NewBodyHeater(power float64, sensor thermal.TemperatureSensor) (*Thermostat, error) {
	return NewThermostat(power, thermal.BodyTemperature, sensor)
}

func (t *Thermostat) Output() float64 {
	t.mu.RLock()
	sensor := t.sensor
	t.mu.RUnlock()

	return onOff(sensor.Temperature(), t.setpoint, t.power)
}

func (t *Thermostat) SetSensor(sensor thermal.TemperatureSensor) error {
	if sensor == nil {
		return fmt.Errorf("thermostat: %w", thermal.ErrNoSensor)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sensor = sensor
	return nil
}

func (t *Thermostat) Power() float64    { return t.power }
func (t *Thermostat) Setpoint() float64 { return t.setpoint }
