package thermal

import (
	"math"
)

// Infant is a human body exchanging heat with the chamber around it.
type Infant struct {
	*Body

	length float64
	volume float64
}

// NewInfant builds an infant from human tissue constants.
func NewInfant(mass, length, temperature float64) (*Infant, error) {
	return NewInfantWithMaterial(HumanTissue, mass, length, temperature)
}

func NewInfantWithMaterial(mat Material, mass, length, temperature float64) (*Infant, error) {
	if err := positive("mass", mass); err != nil {
		return nil, err
	}
	if err := positive("length", length); err != nil {
		return nil, err
	}

	// Body surface area estimate from mass (kg) and length (cm).
	area := math.Sqrt(mass * length * 100 / 3600)

	body, err := NewBody("infant", mat, mass, area, temperature)
	if err != nil {
		return nil, err
	}

	return &Infant{
		Body:   body,
		length: length,
		volume: mass / mat.Density,
	}, nil
}

func (i *Infant) Length() float64 { return i.length }
func (i *Infant) Volume() float64 { return i.volume }

// ExchangeWithChamber runs the infant's transfer step against the chamber air
// temperature and returns the energy the chamber must receive.
func (i *Infant) ExchangeWithChamber(dt, chamberTemp float64) float64 {
	return i.Exchange(dt, chamberTemp)
}
