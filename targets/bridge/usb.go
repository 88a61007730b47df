//go:build rp2040 || rp2350

package main

import "machine"

// initUSB configures machine.Serial, which is USB CDC-ACM on the RP2040
// and RP2350
func initUSB() error {
	return machine.Serial.Configure(machine.UARTConfig{})
}

// usbRead drains the bytes buffered by the USB stack into buf
func usbRead(buf []byte) int {
	n := 0
	for n < len(buf) && machine.Serial.Buffered() > 0 {
		b, err := machine.Serial.ReadByte()
		if err != nil {
			break
		}
		buf[n] = b
		n++
	}
	return n
}

// usbWrite writes data fully or fails
func usbWrite(data []byte) error {
	for len(data) > 0 {
		n, err := machine.Serial.Write(data)
		if err != nil {
			return err
		}
		if n == 0 {
			return errUSBStalled
		}
		data = data[n:]
	}
	return nil
}
