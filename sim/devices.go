package sim

import (
	"sync"

	"hailfire/core"
)

// Wheel generates quadrature signals for one odometer input
type Wheel struct {
	phase uint8
	set   func(a, b bool)
}

// quadrature is the forward channel sequence, one x4 step per entry
var quadrature = [4][2]bool{{false, false}, {true, false}, {true, true}, {false, true}}

// NewWheel creates a wheel feeding set, typically Controller.SetEncoder
// bound to one odometer
func NewWheel(set func(a, b bool)) *Wheel {
	w := &Wheel{set: set}
	w.apply()
	return w
}

// Step moves the wheel by one encoder step
func (w *Wheel) Step(forward bool) {
	if forward {
		w.phase = (w.phase + 1) % 4
	} else {
		w.phase = (w.phase + 3) % 4
	}
	w.apply()
}

func (w *Wheel) apply() {
	s := quadrature[w.phase]
	w.set(s[0], s[1])
}

// ADCDevice answers MCP3008 single-ended conversions with fixed values.
// It implements drivers.SPI.
type ADCDevice struct {
	mu     sync.Mutex
	values [core.ADCChannels]uint16
}

// Set sets the conversion result of channel ch
func (d *ADCDevice) Set(ch int, v uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.values[ch] = v & core.ADCMax
}

func (d *ADCDevice) Tx(w, r []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(w) < 3 || len(r) < 3 {
		return nil
	}
	// Start bit in the low bit of byte 0, then SGL/DIFF and D2..D0
	if w[0]&0x01 == 0 || w[1]&0x80 == 0 {
		r[0], r[1], r[2] = 0, 0, 0
		return nil
	}
	v := d.values[(w[1]>>4)&0x07]
	r[0] = 0
	r[1] = byte(v>>8) & 0x03
	r[2] = byte(v)
	return nil
}

func (d *ADCDevice) Transfer(w byte) (byte, error) { return 0, nil }
