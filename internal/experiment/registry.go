package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/incusim/internal/config"
	"github.com/san-kum/incusim/internal/control"
	"github.com/san-kum/incusim/internal/metrics"
	"github.com/san-kum/incusim/internal/sim"
	"github.com/san-kum/incusim/internal/task"
	"github.com/san-kum/incusim/internal/thermal"
	"go.uber.org/zap"
)

// heaterEnv is what a heater factory needs besides its own config.
type heaterEnv struct {
	sensor  thermal.TemperatureSensor
	substep float64
	log     *zap.Logger
}

// heaterFactory builds a heat source. Any periodic tasks it creates are
// returned so the caller can run them.
type heaterFactory func(hc config.HeaterConfig, env heaterEnv) (thermal.HeatSource, []*task.Periodic, error)

type Registry struct {
	heaters map[string]heaterFactory
}

func NewRegistry() *Registry {
	r := &Registry{heaters: make(map[string]heaterFactory)}

	r.heaters[config.HeaterOff] = func(config.HeaterConfig, heaterEnv) (thermal.HeatSource, []*task.Periodic, error) {
		return control.NewOff(), nil, nil
	}
	r.heaters[config.HeaterSync] = func(hc config.HeaterConfig, env heaterEnv) (thermal.HeatSource, []*task.Periodic, error) {
		h, err := control.NewThermostat(hc.Power, hc.Setpoint, env.sensor)
		return h, nil, err
	}
	r.heaters[config.HeaterPolled] = func(hc config.HeaterConfig, env heaterEnv) (thermal.HeatSource, []*task.Periodic, error) {
		h, err := control.NewPolledHeater(hc.Power, hc.Setpoint, env.sensor, hc.Period, env.log)
		if err != nil {
			return nil, nil, err
		}
		return h, []*task.Periodic{h.Periodic}, nil
	}
	r.heaters[config.HeaterPID] = func(hc config.HeaterConfig, env heaterEnv) (thermal.HeatSource, []*task.Periodic, error) {
		h, err := control.NewPIDHeater(hc.PID.Kp, hc.PID.Ki, hc.PID.Kd, hc.Setpoint, hc.Power, env.substep, env.sensor)
		return h, nil, err
	}
	r.heaters[config.HeaterManual] = func(hc config.HeaterConfig, env heaterEnv) (thermal.HeatSource, []*task.Periodic, error) {
		h, err := control.NewManual(hc.Power)
		if err != nil {
			return nil, nil, err
		}
		h.SetOutput(hc.Power)
		return h, nil, nil
	}

	return r
}

// Heater builds the heater described by hc, reading temperatures from body
// through the configured sensor.
func (r *Registry) Heater(hc config.HeaterConfig, body thermal.TemperatureSensor, substep float64, log *zap.Logger) (thermal.HeatSource, []*task.Periodic, error) {
	fn, ok := r.heaters[hc.Mode]
	if !ok {
		return nil, nil, fmt.Errorf("unknown heater mode: %s", hc.Mode)
	}
	if log == nil {
		log = zap.NewNop()
	}
	if hc.Mode == config.HeaterOff {
		return fn(hc, heaterEnv{substep: substep, log: log})
	}

	var pollers []*task.Periodic
	env := heaterEnv{substep: substep, log: log}

	switch hc.Sensor.Mode {
	case config.SensorPolled:
		t, err := control.NewPolledThermometer(body, hc.Sensor.Period, log.Named("thermometer"))
		if err != nil {
			return nil, nil, err
		}
		env.sensor = t
		pollers = append(pollers, t.Periodic)
	default:
		t, err := control.NewThermometer(body)
		if err != nil {
			return nil, nil, err
		}
		env.sensor = t
	}

	h, more, err := fn(hc, env)
	if err != nil {
		return nil, nil, fmt.Errorf("%s heater: %w", hc.Mode, err)
	}
	return h, append(pollers, more...), nil
}

func (r *Registry) ListHeaterModes() []string {
	names := make([]string, 0, len(r.heaters))
	for name := range r.heaters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultMetrics is the metric set every experiment records.
func (r *Registry) DefaultMetrics() []sim.Metric {
	return []sim.Metric{
		metrics.NewEnergyBalance(),
		metrics.NewRoomExchange(),
		metrics.NewTemperatureStats(metrics.Infant),
		metrics.NewTemperatureStats(metrics.Chamber),
		metrics.NewStability(metrics.Infant, thermal.ZeroCelsius+36.5, thermal.ZeroCelsius+37.5),
		metrics.NewHeaterDuty(metrics.Infant),
		metrics.NewHeaterDuty(metrics.Chamber),
	}
}
