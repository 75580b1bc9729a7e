// Package viz renders simulation history for the terminal.
package viz

import (
	"sync"

	"github.com/san-kum/incusim/internal/sim"
)

const DefaultHistory = 600

// Trace records the most recent temperatures of a run. It is a sim.Observer.
type Trace struct {
	mu       sync.Mutex
	capacity int
	infant   []float64
	chamber  []float64
	room     []float64
}

// NewTrace keeps at most capacity ticks; older ticks are dropped first.
func NewTrace(capacity int) *Trace {
	if capacity <= 0 {
		capacity = DefaultHistory
	}
	return &Trace{capacity: capacity}
}

func (t *Trace) OnTick(r sim.TickReport) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.infant = push(t.infant, r.Infant.Temperature, t.capacity)
	t.chamber = push(t.chamber, r.Chamber.Temperature, t.capacity)
	t.room = push(t.room, r.RoomTemperature, t.capacity)
}

func push(s []float64, v float64, capacity int) []float64 {
	s = append(s, v)
	if len(s) > capacity {
		s = s[len(s)-capacity:]
	}
	return s
}

func (t *Trace) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.infant)
}

// Series returns copies of the recorded infant, chamber and room temperatures.
func (t *Trace) Series() (infant, chamber, room []float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return clone(t.infant), clone(t.chamber), clone(t.room)
}

func clone(s []float64) []float64 { return append([]float64(nil), s...) }
