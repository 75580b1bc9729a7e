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

// PolledHeater applies the thermostat rule on its own period and serves the
// cached result. Output is 0 until the first poll has run.
type PolledHeater struct {
	*task.Periodic

	power    float64
	setpoint float64
	log      *zap.Logger

	mu     sync.RWMutex
	sensor thermal.TemperatureSensor
	output float64
}

func NewPolledHeater(power, setpoint float64, sensor thermal.TemperatureSensor, period time.Duration, log *zap.Logger) (*PolledHeater, error) {
	if err := validatePower(power); err != nil {
		return nil, err
	}
	if sensor == nil {
		return nil, fmt.Errorf("polled heater: %w", thermal.ErrNoSensor)
	}
	if period <= 0 {
		return nil, &thermal.ConfigError{Field: "heater period", Value: period.Seconds(), Reason: "must be positive"}
	}
	if log == nil {
		log = zap.NewNop()
	}

	h := &PolledHeater{
		power:    power,
		setpoint: setpoint,
		sensor:   sensor,
		log:      log,
	}

	p, err := task.New("heater", period, h.poll, task.WithLogger(log))
	if err != nil {
		return nil, err
	}
	h.Periodic = p
	return h, nil
}

// Output returns the value computed by the last poll.
func (h *PolledHeater) Output() float64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.output
}

// Poll re-evaluates the rule now.
func (h *PolledHeater) Poll() float64 {
	h.mu.RLock()
	sensor := h.sensor
	h.mu.RUnlock()

	out := onOff(sensor.Temperature(), h.setpoint, h.power)

	h.mu.Lock()
	h.output = out
	h.mu.Unlock()
	return out
}

func (h *PolledHeater) poll(ctx context.Context) error {
	out := h.Poll()
	h.log.Debug("heater polled", zap.Float64("output_w", out))
	return nil
}

func (h *PolledHeater) SetSensor(sensor thermal.TemperatureSensor) error {
	if sensor == nil {
		return fmt.Errorf("polled heater: %w", thermal.ErrNoSensor)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sensor = sensor
	return nil
}

func (h *PolledHeater) Power() float64    { return h.power }
func (h *PolledHeater) Setpoint() float64 { return h.setpoint }
