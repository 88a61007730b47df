package core

// LEDs drives the three indicator LEDs. Green and yellow follow their
// registers; red blinks as a heartbeat, or stays lit while overridden.
type LEDs struct {
	green, yellow, red OutputPin
	override           bool
	heartbeat          bool
}

// Attach binds the LEDs to active-low GPIO outputs
func (l *LEDs) Attach(drv GPIODriver, green, yellow, red GPIOPin) error {
	var err error
	if l.green, err = NewOutputPin(drv, green, true); err != nil {
		return err
	}
	if l.yellow, err = NewOutputPin(drv, yellow, true); err != nil {
		return err
	}
	l.red, err = NewOutputPin(drv, red, true)
	return err
}

func (l *LEDs) SetGreen(on bool)  { l.green.Set(on) }
func (l *LEDs) SetYellow(on bool) { l.yellow.Set(on) }

// SetRedOverride keeps the red LED lit regardless of the heartbeat
func (l *LEDs) SetRedOverride(on bool) {
	l.override = on
	l.red.Set(l.override || l.heartbeat)
}

func (l *LEDs) Green() bool       { return l.green.Level() }
func (l *LEDs) Yellow() bool      { return l.yellow.Level() }
func (l *LEDs) Red() bool         { return l.red.Level() }
func (l *LEDs) RedOverride() bool { return l.override }

// Toggle flips the heartbeat
func (l *LEDs) Toggle() {
	l.heartbeat = !l.heartbeat
	l.red.Set(l.override || l.heartbeat)
}

// Reset restarts the heartbeat from off. Green, yellow and the override
// are register values and survive.
func (l *LEDs) Reset() {
	l.heartbeat = false
	l.red.Set(l.override)
}
