package control

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/san-kum/incusim/internal/task"
	"github.com/san-kum/incusim/internal/thermal"
	"go.uber.org/zap"
)

// Thermometer reads its source on every call.
type Thermometer struct {
	mu     sync.RWMutex
	source thermal.TemperatureSensor
}

func NewThermometer(source thermal.TemperatureSensor) (*Thermometer, error) {
	if source == nil {
		return nil, fmt.Errorf("thermometer: %w", thermal.ErrNoSensor)
	}
	return &Thermometer{source: source}, nil
}

func (t *Thermometer) Temperature() float64 {
	t.mu.RLock()
	source := t.source
	t.mu.RUnlock()
	return source.Temperature()
}

func (t *Thermometer) SetSource(source thermal.TemperatureSensor) error {
	if source == nil {
		return fmt.Errorf("thermometer: %w", thermal.ErrNoSensor)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.source = source
	return nil
}

// PolledThermometer caches its source's reading, refreshed on its own period.
// Temperature never reads the source.
type PolledThermometer struct {
	*task.Periodic

	log *zap.Logger

	mu      sync.RWMutex
	source  thermal.TemperatureSensor
	reading float64
}

// NewPolledThermometer reads the source once so the cache starts valid.
func NewPolledThermometer(source thermal.TemperatureSensor, period time.Duration, log *zap.Logger) (*PolledThermometer, error) {
	if source == nil {
		return nil, fmt.Errorf("polled thermometer: %w", thermal.ErrNoSensor)
	}
	if period <= 0 {
		return nil, &thermal.ConfigError{Field: "thermometer period", Value: period.Seconds(), Reason: "must be positive"}
	}
	if log == nil {
		log = zap.NewNop()
	}

	t := &PolledThermometer{source: source, log: log}
	t.Refresh()

	p, err := task.New("thermometer", period, t.poll, task.WithLogger(log))
	if err != nil {
		return nil, err
	}
	t.Periodic = p
	return t, nil
}

func (t *PolledThermometer) Temperature() float64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.reading
}

// Refresh reads the source now and caches the value.
func (t *PolledThermometer) Refresh() float64 {
	t.mu.RLock()
	source := t.source
	t.mu.RUnlock()

	v := source.Temperature()

	t.mu.Lock()
	t.reading = v
	t.mu.Unlock()
	return v
}

func (t *PolledThermometer) poll(ctx context.Context) error {
	v := t.Refresh()
	t.log.Debug("thermometer polled", zap.Float64("temperature_k", v))
	return nil
}

func (t *PolledThermometer) SetSource(source thermal.TemperatureSensor) error {
	if source == nil {
		return fmt.Errorf("polled thermometer: %w", thermal.ErrNoSensor)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.source = source
	return nil
}
