package metrics

import (
	"math"
	"sync"

	"github.com/san-kum/incusim/internal/sim"
)

// EnergyBalance tracks the largest per-tick energy the simulation could not
// account for, in joules. A correct run stays at rounding noise.
type EnergyBalance struct {
	mu       sync.Mutex
	name     string
	maxError float64
	samples  int
}

func NewEnergyBalance() *EnergyBalance {
	return &EnergyBalance{name: "energy_balance"}
}

func (e *EnergyBalance) Name() string { return e.name }

func (e *EnergyBalance) Observe(r sim.TickReport) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maxError = math.Max(e.maxError, math.Abs(r.PairImbalance()))
	e.maxError = math.Max(e.maxError, math.Abs(r.Residual()))
	e.samples++
}

func (e *EnergyBalance) Value() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.maxError
}

func (e *EnergyBalance) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.maxError = 0
	e.samples = 0
}

// RoomExchange is the net energy the chamber took from the room over the run.
// It is negative while the room is cooler than the chamber.
type RoomExchange struct {
	mu    sync.Mutex
	name  string
	total float64
}

func NewRoomExchange() *RoomExchange {
	return &RoomExchange{name: "room_exchange_j"}
}

func (e *RoomExchange) Name() string { return e.name }

func (e *RoomExchange) Observe(r sim.TickReport) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.total += r.RoomTransfer
}

func (e *RoomExchange) Value() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.total
}

func (e *RoomExchange) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.total = 0
}
