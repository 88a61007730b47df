package core

// InputPort is an 8-bit extension port sampled from GPIO inputs. Bit n is
// pin n. Without a driver the value is set directly.
type InputPort struct {
	drv   GPIODriver
	pins  [8]GPIOPin
	value uint8
}

// Attach configures the eight pins as pulled-up inputs
func (p *InputPort) Attach(drv GPIODriver, pins [8]GPIOPin) error {
	for _, pin := range pins {
		if err := drv.ConfigureInputPullUp(pin); err != nil {
			return err
		}
	}
	p.drv, p.pins = drv, pins
	return nil
}

// Sample reads the pins
func (p *InputPort) Sample() {
	if p.drv == nil {
		return
	}
	var v uint8
	for i, pin := range p.pins {
		if p.drv.ReadPin(pin) {
			v |= 1 << i
		}
	}
	p.value = v
}

func (p *InputPort) Set(v uint8)  { p.value = v }
func (p *InputPort) Value() uint8 { return p.value }
