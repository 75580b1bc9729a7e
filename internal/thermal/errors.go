package thermal

import (
	"errors"
	"fmt"
)

// Domain errors for thermal bodies and their collaborators.
var (
	// ErrNoSensor indicates a heater was wired without a temperature sensor.
	ErrNoSensor = errors.New("thermal: heat source has no temperature sensor")

	// ErrNilInfant indicates a nil infant was placed in a chamber.
	ErrNilInfant = errors.New("thermal: nil infant")

	// ErrChamberOccupied indicates the chamber already holds another infant.
	ErrChamberOccupied = errors.New("thermal: chamber already holds an infant")

	// ErrInvalidConfig is wrapped by every ConfigError.
	ErrInvalidConfig = errors.New("thermal: invalid configuration")
)

// ConfigError reports a construction parameter that cannot describe a
// physical object.
type ConfigError struct {
	Field  string
	Value  float64
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("thermal: invalid %s (%g): %s", e.Field, e.Value, e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}
