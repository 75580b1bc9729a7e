package control

import (
	"math"
	"sync"
)

// Manual is a heater whose output is set by an operator command rather than
// a sensor.
type Manual struct {
	mu     sync.RWMutex
	power  float64
	output float64
}

func NewManual(power float64) (*Manual, error) {
	if err := validatePower(power); err != nil {
		return nil, err
	}
	return &Manual{power: power}, nil
}

// SetOutput sets the heater output, clamped to [0, power].
func (m *Manual) SetOutput(w float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.output = math.Max(0, math.Min(m.power, w))
}

func (m *Manual) Output() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.output
}
