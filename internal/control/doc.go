// Package control provides the heaters and thermometers wired to thermal
// bodies.
//
// Heaters implement [thermal.HeatSource] and thermometers implement
// [thermal.TemperatureSensor]. Each comes in a synchronous form that computes
// on every call and a polled form that refreshes a cached value on its own
// period:
//
//   - [Thermostat]: on/off heater evaluated on every call
//   - [PolledHeater]: on/off heater re-evaluated by a background task
//   - [PIDHeater]: proportional heater clamped to its rated power
//   - [Manual]: heater driven by an external command
//   - [Off]: heater that never produces output
//   - [Thermometer]: reads its source on every call
//   - [PolledThermometer]: caches its source on a background task
//
// # Staleness
//
// Polled components return whatever their last poll produced. A reader may
// see a value up to one poll period old; this is how the hardware behaves and
// the simulation keeps it.
package control
