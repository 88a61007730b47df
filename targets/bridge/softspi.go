//go:build rp2040 || rp2350

package main

import (
	"errors"
	"machine"
	"time"
)

var errLength = errors.New("tx and rx buffer lengths must match")

// SoftSPI is a bit-banged SPI master with its own chip select, MSB first.
// Every Tx is one chip-select framed transaction. It implements
// drivers.SPI.
type SoftSPI struct {
	sck, sdo, sdi, cs machine.Pin
	cpol, cpha        bool
	halfPeriod        time.Duration
}

// NewSoftSPI configures the pins for mode (0-3) at rate Hz
func NewSoftSPI(sck, sdo, sdi, cs machine.Pin, mode uint8, rate uint32) *SoftSPI {
	s := &SoftSPI{
		sck: sck, sdo: sdo, sdi: sdi, cs: cs,
		cpol:       mode&2 != 0,
		cpha:       mode&1 != 0,
		halfPeriod: 5 * time.Microsecond,
	}
	if rate > 0 {
		s.halfPeriod = time.Duration(500_000_000/rate) * time.Nanosecond
	}

	s.sck.Configure(machine.PinConfig{Mode: machine.PinOutput})
	s.sdo.Configure(machine.PinConfig{Mode: machine.PinOutput})
	s.sdi.Configure(machine.PinConfig{Mode: machine.PinInput})
	s.cs.Configure(machine.PinConfig{Mode: machine.PinOutput})
	s.sck.Set(s.cpol)
	s.sdo.Low()
	s.cs.High()
	return s
}

// Tx runs one transaction. A nil w sends zeros and a nil r discards.
func (s *SoftSPI) Tx(w, r []byte) error {
	if w != nil && r != nil && len(w) != len(r) {
		return errLength
	}
	n := len(w)
	if w == nil {
		n = len(r)
	}

	s.cs.Low()
	time.Sleep(s.halfPeriod)
	for i := 0; i < n; i++ {
		var out byte
		if w != nil {
			out = w[i]
		}
		in := s.transferByte(out)
		if r != nil {
			r[i] = in
		}
	}
	s.cs.High()
	time.Sleep(s.halfPeriod)
	return nil
}

// Transfer exchanges a single byte in its own transaction
func (s *SoftSPI) Transfer(b byte) (byte, error) {
	var r [1]byte
	err := s.Tx([]byte{b}, r[:])
	return r[0], err
}

func (s *SoftSPI) transferByte(out byte) byte {
	var in byte
	for bit := 7; bit >= 0; bit-- {
		level := out&(1<<bit) != 0
		if !s.cpha {
			s.sdo.Set(level)
		}
		time.Sleep(s.halfPeriod)

		// First edge: with CPHA=1 both sides drive here, with CPHA=0 both sample
		s.sck.Set(!s.cpol)
		if s.cpha {
			s.sdo.Set(level)
		} else if s.sdi.Get() {
			in |= 1 << bit
		}
		time.Sleep(s.halfPeriod)

		if s.cpha && s.sdi.Get() {
			in |= 1 << bit
		}
		s.sck.Set(s.cpol)
	}
	return in
}
