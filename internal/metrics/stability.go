package metrics

import (
	"sync"

	"github.com/san-kum/incusim/internal/sim"
)

// Stability is the fraction of ticks that ended with the target's temperature
// inside [low, high] kelvin.
type Stability struct {
	mu         sync.Mutex
	name       string
	target     Target
	low, high  float64
	violations int
	samples    int
}

func NewStability(target Target, low, high float64) *Stability {
	return &Stability{
		name:   target.String() + "_stability",
		target: target,
		low:    low,
		high:   high,
	}
}

func (s *Stability) Name() string {
	return s.name
}

func (s *Stability) Observe(r sim.TickReport) {
	t := temperatureOf(r, s.target)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples++
	if t < s.low || t > s.high {
		s.violations++
	}
}

func (s *Stability) Value() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.samples == 0 {
		return 1.0
	}
	return 1.0 - float64(s.violations)/float64(s.samples)
}

func (s *Stability) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.violations = 0
	s.samples = 0
}

func temperatureOf(r sim.TickReport, target Target) float64 {
	if target == Chamber {
		return r.Chamber.Temperature
	}
	return r.Infant.Temperature
}
