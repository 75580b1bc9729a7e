package sim

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrConcurrentTick = errors.New("sim: tick already in progress")
	ErrInvalidState   = errors.New("sim: invalid state (NaN/Inf)")
	ErrMissingBody    = errors.New("sim: infant and chamber are required")
)

// SimulationError reports the tick at which the simulation went wrong.
type SimulationError struct {
	Tick    int
	SimTime time.Duration
	Wrapped error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("sim: tick %d at %v: %v", e.Tick, e.SimTime, e.Wrapped)
}

func (e *SimulationError) Unwrap() error { return e.Wrapped }
