// Package serial opens the USB bridge that connects the host to the
// controller link.
package serial

import (
	"io"
	"time"
)

// Port is a serial port as the bridge client sees it
type Port interface {
	io.ReadWriteCloser

	// Flush discards buffered input
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyACM0", "COM3")
	Device string

	// Baud rate; the USB CDC bridge ignores it
	Baud int

	// ReadTimeout bounds each read; 0 blocks
	ReadTimeout time.Duration
}

// DefaultConfig returns the bridge settings for device
func DefaultConfig(device string) Config {
	return Config{
		Device:      device,
		Baud:        250000,
		ReadTimeout: 100 * time.Millisecond,
	}
}
