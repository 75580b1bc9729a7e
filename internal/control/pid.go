package control

import (
	"fmt"
	"math"
	"sync"

	"github.com/san-kum/incusim/internal/thermal"
)

// PIDHeater drives its output from the sensor error, clamped to [0, Power].
// Each Output call advances the controller by Dt seconds, so it must be read
// exactly once per simulation step.
type PIDHeater struct {
	Kp     float64
	Ki     float64
	Kd     float64
	Target float64
	Power  float64
	Dt     float64

	mu       sync.Mutex
	sensor   thermal.TemperatureSensor
	integral float64
	prevErr  float64
	first    bool
}

func NewPIDHeater(kp, ki, kd, target, power, dt float64, sensor thermal.TemperatureSensor) (*PIDHeater, error) {
	if err := validatePower(power); err != nil {
		return nil, err
	}
	if dt <= 0 || math.IsNaN(dt) {
		return nil, &thermal.ConfigError{Field: "pid dt", Value: dt, Reason: "must be positive"}
	}
	if sensor == nil {
		return nil, fmt.Errorf("pid heater: %w", thermal.ErrNoSensor)
	}
	return &PIDHeater{
		Kp:     kp,
		Ki:     ki,
		Kd:     kd,
		Target: target,
		Power:  power,
		Dt:     dt,
		sensor: sensor,
		first:  true,
	}, nil
}

func (p *PIDHeater) Output() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.Target - p.sensor.Temperature()

	if p.first {
		p.prevErr = err
		p.first = false
		return p.clamp(p.Kp * err)
	}

	p.integral += err * p.Dt
	derivative := (err - p.prevErr) / p.Dt
	p.prevErr = err

	u := p.Kp*err + p.Ki*p.integral + p.Kd*derivative
	out := p.clamp(u)
	if out != u && p.Ki != 0 {
		// anti-windup: undo the integration that pushed past saturation
		p.integral -= err * p.Dt
	}
	return out
}

func (p *PIDHeater) clamp(u float64) float64 {
	return math.Max(0, math.Min(p.Power, u))
}

// Reset clears integral and derivative state.
func (p *PIDHeater) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.integral = 0
	p.prevErr = 0
	p.first = true
}

// GetParams returns tunable parameters for live adjustment.
func (p *PIDHeater) GetParams() map[string]float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return map[string]float64{
		"Kp":     p.Kp,
		"Ki":     p.Ki,
		"Kd":     p.Kd,
		"Target": p.Target,
	}
}

// SetParam adjusts a PID parameter.
func (p *PIDHeater) SetParam(name string, value float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch name {
	case "Kp":
		p.Kp = value
	case "Ki":
		p.Ki = value
	case "Kd":
		p.Kd = value
	case "Target":
		p.Target = value
	default:
		return fmt.Errorf("pid heater: unknown parameter %q", name)
	}
	return nil
}
