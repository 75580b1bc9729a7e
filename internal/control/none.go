package control

// Off is a heater that is switched off.
type Off struct{}

func NewOff() Off { return Off{} }

func (Off) Output() float64 { return 0 }
