//go:build rp2040

package main

import (
	"machine"

	"hailfire/protocol"
)

// attachLink feeds the slave select and clock edges of the master link
// into e from pin interrupts. Chip select is active low.
func attachLink(e *protocol.Engine, sck, mosi, miso, cs machine.Pin) error {
	sck.Configure(machine.PinConfig{Mode: machine.PinInput})
	mosi.Configure(machine.PinConfig{Mode: machine.PinInput})
	cs.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	miso.Configure(machine.PinConfig{Mode: machine.PinOutput})
	miso.Low()

	err := cs.SetInterrupt(machine.PinToggle, func(machine.Pin) {
		e.SetSelect(!cs.Get())
		miso.Set(e.DataOut())
	})
	if err != nil {
		return err
	}
	return sck.SetInterrupt(machine.PinToggle, func(machine.Pin) {
		e.Clock(sck.Get(), mosi.Get())
		miso.Set(e.DataOut())
	})
}
