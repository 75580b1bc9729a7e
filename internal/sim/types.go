package sim

import (
	"fmt"
	"math"
	"time"

	"github.com/san-kum/incusim/internal/task"
	"github.com/san-kum/incusim/internal/thermal"
)

// MaxSubsteps bounds how many sub-steps one tick may be split into.
const MaxSubsteps = 1_000_000

type Config struct {
	TimeStep      float64       // simulated seconds per tick
	SleepTime     time.Duration // wall-clock pause between ticks
	MaxSubstep    float64       // longest integration step in seconds, 0 disables splitting
	MaxTicks      int           // 0 runs until cancelled
	ValidateState bool
}

func DefaultConfig() Config {
	return Config{
		TimeStep:      60,
		SleepTime:     time.Second,
		MaxSubstep:    1,
		ValidateState: true,
	}
}

func (c Config) Validate() error {
	if c.TimeStep <= 0 || math.IsNaN(c.TimeStep) || math.IsInf(c.TimeStep, 0) {
		return &thermal.ConfigError{Field: "time step", Value: c.TimeStep, Reason: "must be positive and finite"}
	}
	if c.SleepTime < 0 {
		return &thermal.ConfigError{Field: "sleep time", Value: c.SleepTime.Seconds(), Reason: "must not be negative"}
	}
	if c.MaxSubstep < 0 || math.IsNaN(c.MaxSubstep) {
		return &thermal.ConfigError{Field: "max substep", Value: c.MaxSubstep, Reason: "must not be negative"}
	}
	if c.MaxSubstep > 0 && math.Ceil(c.TimeStep/c.MaxSubstep) > MaxSubsteps {
		return &thermal.ConfigError{Field: "max substep", Value: c.MaxSubstep, Reason: fmt.Sprintf("splits a tick into more than %d sub-steps", MaxSubsteps)}
	}
	if c.MaxTicks < 0 {
		return &thermal.ConfigError{Field: "max ticks", Value: float64(c.MaxTicks), Reason: "must not be negative"}
	}
	return nil
}

// Substeps splits one tick into n equal steps of h seconds each.
func (c Config) Substeps() (n int, h float64) {
	if c.MaxSubstep <= 0 || c.TimeStep <= c.MaxSubstep {
		return 1, c.TimeStep
	}
	n = int(math.Ceil(c.TimeStep / c.MaxSubstep))
	return n, c.TimeStep / float64(n)
}

// TickReport describes what happened during one tick. Energies are in joules
// and summed over the tick's sub-steps.
type TickReport struct {
	Tick     int
	SimTime  time.Duration // simulated time at the end of the tick
	Substeps int
	Substep  float64 // seconds per sub-step

	RoomTemperature float64
	InfantInside    bool
	Infant          thermal.Snapshot
	Chamber         thermal.Snapshot

	InfantTransfer      float64 // gained by the infant from the chamber
	CreditedToChamber   float64 // returned to the chamber by the infant step
	RoomTransfer        float64 // gained by the chamber from the room
	InfantHeaterEnergy  float64
	ChamberHeaterEnergy float64
	InfantHeaterActive  int // sub-steps with positive infant heater output
	ChamberHeaterActive int

	InfantEnergyChange  float64
	ChamberEnergyChange float64
}

// PairImbalance is the net energy created by the infant-chamber exchange.
func (r TickReport) PairImbalance() float64 {
	return r.InfantTransfer + r.CreditedToChamber
}

// Residual is the energy change of both bodies not accounted for by the
// reported transfers and heater output.
func (r TickReport) Residual() float64 {
	infant := r.InfantEnergyChange - r.InfantHeaterEnergy - r.InfantTransfer
	chamber := r.ChamberEnergyChange - r.ChamberHeaterEnergy - r.RoomTransfer - r.CreditedToChamber
	return infant + chamber
}

// Status is a point-in-time view of a simulator for queries.
type Status struct {
	State           task.State
	Ticks           int
	SimTime         time.Duration
	RoomTemperature float64
	Open            bool
	InfantInside    bool
	Infant          thermal.Snapshot
	Chamber         thermal.Snapshot
}

type Observer interface {
	OnTick(r TickReport)
}

// ObserverFunc adapts a function to an Observer.
type ObserverFunc func(r TickReport)

func (f ObserverFunc) OnTick(r TickReport) { f(r) }

type Metric interface {
	Name() string
	Observe(r TickReport)
	Value() float64
	Reset()
}
