//go:build rp2040 || rp2350

// Firmware of the USB bridge adapter: it answers bridge blocks from the
// host on USB CDC and runs the requested transactions as SPI master of the
// controller link.
package main

import (
	"errors"
	"machine"
	"time"

	"hailfire/controller"
	"hailfire/protocol"
	"hailfire/tinycompress"
)

const identity = "hailfire-bridge"

// Link to the controller: mode 1, slow enough for an interrupt-driven
// slave
const (
	linkMode = 1
	linkRate = 50_000

	pinLinkSCK = machine.GPIO2
	pinLinkSDO = machine.GPIO3
	pinLinkSDI = machine.GPIO4
	pinLinkCS  = machine.GPIO5
)

var errUSBStalled = errors.New("usb write made no progress")

func main() {
	if err := initUSB(); err != nil {
		return
	}

	bus := NewSoftSPI(pinLinkSCK, pinLinkSDO, pinLinkSDI, pinLinkCS, linkMode, linkRate)
	dev := protocol.NewBridgeDevice(identity, bus.Tx)
	dev.Dictionary = tinycompress.Compress(nil, []byte(controller.KeyMap().Dictionary()))
	in := protocol.NewFifoBuffer(4 * protocol.BlockLengthMax)

	var buf [64]byte
	failures := 0
	for {
		n := usbRead(buf[:min(len(buf), in.Free())])
		if n == 0 {
			time.Sleep(100 * time.Microsecond)
			continue
		}
		in.Write(buf[:n])

		if reply := dev.Receive(in); len(reply) > 0 {
			if err := usbWrite(reply); err != nil {
				// Host gone: start over with a clean sequence on reconnection
				failures++
				if failures > 10 {
					failures = 0
					in.Reset()
					dev.Reset()
				}
				continue
			}
			failures = 0
		}
		if in.Free() == 0 {
			in.Reset()
		}
	}
}
