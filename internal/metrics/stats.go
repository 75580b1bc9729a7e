package metrics

import (
	"math"
	"sync"

	"github.com/san-kum/incusim/internal/sim"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary describes a temperature series in kelvin.
type Summary struct {
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
	N      int
}

// TemperatureStats collects the end-of-tick temperature of one body. Value is
// the mean.
type TemperatureStats struct {
	mu      sync.Mutex
	name    string
	target  Target
	samples []float64
}

func NewTemperatureStats(target Target) *TemperatureStats {
	return &TemperatureStats{
		name:   target.String() + "_temperature_mean",
		target: target,
	}
}

func (s *TemperatureStats) Name() string   { return s.name }
func (s *TemperatureStats) Target() Target { return s.target }

func (s *TemperatureStats) Observe(r sim.TickReport) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, temperatureOf(r, s.target))
}

func (s *TemperatureStats) Value() float64 {
	return s.Summary().Mean
}

func (s *TemperatureStats) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.samples)
	switch n {
	case 0:
		return Summary{}
	case 1:
		v := s.samples[0]
		return Summary{Mean: v, Min: v, Max: v, N: 1}
	}

	mean, std := stat.MeanStdDev(s.samples, nil)
	if math.IsNaN(std) {
		std = 0
	}
	return Summary{
		Mean:   mean,
		StdDev: std,
		Min:    floats.Min(s.samples),
		Max:    floats.Max(s.samples),
		N:      n,
	}
}

func (s *TemperatureStats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = s.samples[:0]
}
