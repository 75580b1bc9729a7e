package thermal

import (
	"sync"
)

// Chamber is the incubator enclosure: a box of air sitting in a room.
type Chamber struct {
	*Body

	width  float64
	depth  float64
	height float64
	volume float64

	mu                 sync.RWMutex
	roomTemperature    float64
	infant             *Infant
	open               bool
	displacedAirEnergy float64
}

// NewChamber builds an air-filled chamber of the given dimensions in metres.
func NewChamber(width, depth, height, temperature, roomTemperature float64) (*Chamber, error) {
	return NewChamberWithMaterial(Air, width, depth, height, temperature, roomTemperature)
}

func NewChamberWithMaterial(mat Material, width, depth, height, temperature, roomTemperature float64) (*Chamber, error) {
	for _, dim := range []struct {
		name string
		v    float64
	}{{"width", width}, {"depth", depth}, {"height", height}} {
		if err := positive(dim.name, dim.v); err != nil {
			return nil, err
		}
	}
	if err := mat.Validate(); err != nil {
		return nil, err
	}
	if err := positive("room temperature", roomTemperature); err != nil {
		return nil, err
	}

	volume := width * depth * height
	area := width*depth + 2*width*height + 2*width*depth

	body, err := NewBody("chamber", mat, mat.Density*volume, area, temperature)
	if err != nil {
		return nil, err
	}

	return &Chamber{
		Body:            body,
		width:           width,
		depth:           depth,
		height:          height,
		volume:          volume,
		roomTemperature: roomTemperature,
	}, nil
}

func (c *Chamber) Volume() float64 { return c.volume }

func (c *Chamber) Dimensions() (width, depth, height float64) {
	return c.width, c.depth, c.height
}

func (c *Chamber) RoomTemperature() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.roomTemperature
}

func (c *Chamber) SetRoomTemperature(t float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomTemperature = t
}

// Open lets room air in: the temperature settles halfway to the room
// temperature at once and the energy is re-derived from it.
func (c *Chamber) Open() {
	c.mu.Lock()
	defer c.mu.Unlock()

	room := c.roomTemperature
	c.resetTemperature(func(cur float64) float64 {
		return cur + (room-cur)/2
	})
	c.open = true
}

// Close seals the chamber. Transfer with the room continues on the next step;
// nothing else changes.
func (c *Chamber) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
}

func (c *Chamber) IsOpen() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open
}

// AddInfant places inf in the chamber. The energy of the air displaced by the
// infant is recorded but not removed from the chamber.
func (c *Chamber) AddInfant(inf *Infant) error {
	if inf == nil {
		return ErrNilInfant
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.infant == inf {
		return nil
	}
	if c.infant != nil {
		return ErrChamberOccupied
	}

	c.infant = inf

	airVolume := c.volume - inf.Volume()
	airMass := c.Material().Density * airVolume
	// TODO: decide whether the displaced air should be taken out of the
	// chamber's energy; it is only recorded for now.
	c.displacedAirEnergy = c.Material().SpecificHeat * airMass * c.Temperature()

	return nil
}

// RemoveInfant takes the occupant out and returns it, or nil when empty.
func (c *Chamber) RemoveInfant() *Infant {
	c.mu.Lock()
	defer c.mu.Unlock()

	inf := c.infant
	c.infant = nil
	c.displacedAirEnergy = 0
	return inf
}

func (c *Chamber) HasInfant() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.infant != nil
}

func (c *Chamber) Infant() *Infant {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.infant
}

// DisplacedAirEnergy is the energy content of the chamber air left after the
// occupant's volume is taken out, computed when the infant was added.
func (c *Chamber) DisplacedAirEnergy() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.displacedAirEnergy
}

// ExchangeWithRoom runs the chamber's transfer step against the room.
func (c *Chamber) ExchangeWithRoom(dt, roomTemp float64) float64 {
	return c.Exchange(dt, roomTemp)
}
