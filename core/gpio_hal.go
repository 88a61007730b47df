package core

// GPIOPin identifies a hardware GPIO pin number
type GPIOPin uint32

// GPIODriver is the digital I/O a target provides to the peripheral
// models. Implementations live with the target code.
type GPIODriver interface {
	// ConfigureOutput configures a pin as a digital output
	ConfigureOutput(pin GPIOPin) error

	// ConfigureInputPullUp configures a pin as a digital input with pull-up resistor
	ConfigureInputPullUp(pin GPIOPin) error

	// SetPin sets the pin to high (true) or low (false)
	SetPin(pin GPIOPin, value bool) error

	// ReadPin reads the current pin state
	ReadPin(pin GPIOPin) bool
}

// OutputPin is a digital output owned by a peripheral model. Without a
// driver it only tracks its level, which is how the simulator observes it.
type OutputPin struct {
	drv      GPIODriver
	pin      GPIOPin
	inverted bool // active low
	level    bool
}

// NewOutputPin configures pin as an output and drives it inactive
func NewOutputPin(drv GPIODriver, pin GPIOPin, activeLow bool) (OutputPin, error) {
	p := OutputPin{drv: drv, pin: pin, inverted: activeLow}
	if drv == nil {
		return p, nil
	}
	if err := drv.ConfigureOutput(pin); err != nil {
		return p, err
	}
	return p, drv.SetPin(pin, activeLow)
}

// Set drives the logical level; the hardware is touched only on change
func (p *OutputPin) Set(v bool) {
	if v == p.level {
		return
	}
	p.level = v
	if p.drv != nil {
		_ = p.drv.SetPin(p.pin, v != p.inverted)
	}
}

// Level returns the logical level
func (p *OutputPin) Level() bool { return p.level }
