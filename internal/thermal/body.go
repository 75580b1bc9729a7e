package thermal

import (
	"sync"
)

// Body is a thermal mass. Energy is the stored state; temperature is always
// energy / (specificHeat * mass).
type Body struct {
	mu sync.RWMutex

	name        string
	material    Material
	mass        float64
	surfaceArea float64

	energy      float64
	temperature float64

	heater HeatSource
}

// NewBody builds a body of the given mass and surface area starting at
// temperature kelvin.
func NewBody(name string, mat Material, mass, surfaceArea, temperature float64) (*Body, error) {
	if err := mat.Validate(); err != nil {
		return nil, err
	}
	if err := positive("mass", mass); err != nil {
		return nil, err
	}
	if err := positive("surface area", surfaceArea); err != nil {
		return nil, err
	}
	if err := positive("temperature", temperature); err != nil {
		return nil, err
	}

	b := &Body{
		name:        name,
		material:    mat,
		mass:        mass,
		surfaceArea: surfaceArea,
		temperature: temperature,
	}
	b.energy = b.energyAt(temperature)
	return b, nil
}

func (b *Body) Name() string          { return b.name }
func (b *Body) Mass() float64         { return b.mass }
func (b *Body) SurfaceArea() float64  { return b.surfaceArea }
func (b *Body) Material() Material    { return b.material }
func (b *Body) HeatCapacity() float64 { return b.material.SpecificHeat * b.mass }

func (b *Body) Energy() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.energy
}

// Temperature implements TemperatureSensor so a body can be read directly.
func (b *Body) Temperature() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.temperature
}

func (b *Body) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Snapshot{Name: b.name, Energy: b.energy, Temperature: b.temperature}
}

// AddEnergy is the only incremental mutation of a body. Negative results are
// not rejected.
func (b *Body) AddEnergy(delta float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addEnergyLocked(delta)
}

func (b *Body) SetHeater(h HeatSource) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.heater = h
}

func (b *Body) Heater() HeatSource {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.heater
}

// HeaterOutput returns the heater's power in watts, or 0 when no heater is
// attached.
func (b *Body) HeaterOutput() float64 {
	h := b.Heater()
	if h == nil {
		return 0
	}
	return h.Output()
}

// Transfer is the energy a body took in during one exchange step.
type Transfer struct {
	Heater      float64 // J produced by the body's heater
	Environment float64 // J gained from the environment, negative when lost
}

// Returned is the energy the environment must be credited with.
func (t Transfer) Returned() float64 { return -t.Environment }

// Exchange runs one heat-transfer step of dt seconds against an environment at
// envTemp kelvin. The heater output is applied along with the transfer. The
// returned energy is what the environment must be credited with.
func (b *Body) Exchange(dt, envTemp float64) float64 {
	return b.ExchangeDetail(dt, envTemp).Returned()
}

// ExchangeDetail is Exchange reporting both energy terms.
func (b *Body) ExchangeDetail(dt, envTemp float64) Transfer {
	// The heater may read this body through a thermometer, so it is sampled
	// before the write lock is taken.
	heaterEnergy := b.HeaterOutput() * dt

	b.mu.Lock()
	defer b.mu.Unlock()

	tempDiff := envTemp - b.temperature
	energyTransfer := b.material.TransferCoefficient * dt * b.surfaceArea * tempDiff

	b.addEnergyLocked(heaterEnergy + energyTransfer)

	return Transfer{Heater: heaterEnergy, Environment: energyTransfer}
}

// resetTemperature moves the body to a new temperature and re-derives the
// energy from it.
func (b *Body) resetTemperature(fn func(cur float64) float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.temperature = fn(b.temperature)
	b.energy = b.energyAt(b.temperature)
}

func (b *Body) addEnergyLocked(delta float64) {
	b.energy += delta
	b.temperature = b.energy / b.material.SpecificHeat / b.mass
}

func (b *Body) energyAt(temperature float64) float64 {
	return b.material.SpecificHeat * b.mass * temperature
}
