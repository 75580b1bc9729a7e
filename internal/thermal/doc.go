// Package thermal provides the energy model of the incubator simulation.
//
// Every physical object is a [Body] that stores energy as its ground truth and
// derives temperature from it:
//
//   - [Body]: energy/temperature state holder with a heat-transfer step
//   - [Infant]: human body sized from mass and length
//   - [Chamber]: air enclosure that may contain one [Infant]
//   - [HeatSource]: anything producing watts for the current step
//   - [TemperatureSensor]: anything returning a temperature in kelvin
//
// # Example
//
//	infant, _ := thermal.NewInfant(3, 0.5, 310)
//	chamber, _ := thermal.NewChamber(1, 0.5, 0.5, 300, 293)
//	_ = chamber.AddInfant(infant)
//	e := infant.ExchangeWithChamber(1, chamber.Temperature())
//	chamber.ExchangeWithRoom(1, chamber.RoomTemperature())
//	chamber.AddEnergy(e)
//
// # Thread Safety
//
// Body state is guarded by a lock, so reads and [Body.AddEnergy] may be called
// from any goroutine. Ordering between concurrent callers is up to the caller;
// see the sim package for the loop that orders a tick.
package thermal
