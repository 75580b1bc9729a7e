// Package room supplies the ambient temperature around the incubator as a
// function of simulated time.
package room

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Source returns the room temperature in kelvin at a simulated time offset
// from the start of the run.
type Source interface {
	At(simTime time.Duration) float64
}

// Constant is a room that never changes temperature.
type Constant float64

func (c Constant) At(time.Duration) float64 { return float64(c) }

// Diurnal swings sinusoidally around Mean with the given Amplitude and Period.
// Phase shifts the curve along the time axis.
type Diurnal struct {
	Mean      float64
	Amplitude float64
	Period    time.Duration
	Phase     time.Duration
}

func (d Diurnal) At(simTime time.Duration) float64 {
	if d.Period <= 0 {
		return d.Mean
	}
	x := 2 * math.Pi * float64(simTime+d.Phase) / float64(d.Period)
	return d.Mean + d.Amplitude*math.Sin(x)
}

// Step is a room temperature that takes effect at Offset.
type Step struct {
	Offset      time.Duration `yaml:"offset"`
	Temperature float64       `yaml:"temperature"`
}

// Schedule is a piecewise-constant room temperature. Before the first step the
// Initial temperature applies.
type Schedule struct {
	initial float64
	steps   []Step
}

func NewSchedule(initial float64, steps ...Step) (*Schedule, error) {
	if initial <= 0 || math.IsNaN(initial) {
		return nil, fmt.Errorf("room: initial temperature must be positive, got %g", initial)
	}
	sorted := make([]Step, len(steps))
	copy(sorted, steps)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	for _, s := range sorted {
		if s.Offset < 0 {
			return nil, fmt.Errorf("room: step offset must not be negative, got %v", s.Offset)
		}
		if s.Temperature <= 0 || math.IsNaN(s.Temperature) {
			return nil, fmt.Errorf("room: step temperature must be positive, got %g", s.Temperature)
		}
	}
	return &Schedule{initial: initial, steps: sorted}, nil
}

func (s *Schedule) At(simTime time.Duration) float64 {
	// index of the first step that has not started yet
	i := sort.Search(len(s.steps), func(i int) bool { return s.steps[i].Offset > simTime })
	if i == 0 {
		return s.initial
	}
	return s.steps[i-1].Temperature
}

func (s *Schedule) Steps() []Step {
	out := make([]Step, len(s.steps))
	copy(out, s.steps)
	return out
}
