package core

import (
	"errors"
	"fmt"

	"tinygo.org/x/drivers"
)

// MCP3008 constants
const (
	ADCChannels = 8
	ADCBits     = 10
	ADCMax      = 1<<ADCBits - 1
)

var ErrADCChannel = errors.New("invalid ADC channel")

// MCP3008 polls an MCP3008 8-channel 10-bit converter. The request is a
// 17-bit word (start bit, single-ended flag, three channel bits, twelve
// padding bits) sent right-aligned in three bytes; the conversion comes
// back in the low ten bits.
type MCP3008 struct {
	bus drivers.SPI
	cs  OutputPin

	values [ADCChannels]uint16
	next   int
	errors uint32

	tx, rx [3]byte
}

// NewMCP3008 creates a poller on bus. The bus is expected to run in SPI
// mode 3 at up to 100 kHz.
func NewMCP3008(bus drivers.SPI) *MCP3008 {
	return &MCP3008{bus: bus}
}

// SetChipSelect makes the poller drive chip select itself, for buses that
// do not frame transactions
func (a *MCP3008) SetChipSelect(cs OutputPin) {
	a.cs = cs
}

// Read performs one single-ended conversion on channel ch (0-7)
func (a *MCP3008) Read(ch int) (uint16, error) {
	if ch < 0 || ch >= ADCChannels {
		return 0, fmt.Errorf("%w: %d", ErrADCChannel, ch)
	}
	a.tx = [3]byte{0x01, 0x80 | byte(ch)<<4, 0x00}
	a.cs.Set(true)
	err := a.bus.Tx(a.tx[:], a.rx[:])
	a.cs.Set(false)
	if err != nil {
		return 0, err
	}
	return uint16(a.rx[1]&0x03)<<8 | uint16(a.rx[2]), nil
}

// Poll converts the next channel in round-robin order and stores it
func (a *MCP3008) Poll() error {
	ch := a.next
	a.next = (a.next + 1) % ADCChannels
	v, err := a.Read(ch)
	if err != nil {
		a.errors++
		return err
	}
	a.values[ch] = v
	return nil
}

// Value returns the last conversion of channel ch
func (a *MCP3008) Value(ch int) uint16 {
	if ch < 0 || ch >= ADCChannels {
		return 0
	}
	return a.values[ch]
}

// Errors returns the number of failed conversions
func (a *MCP3008) Errors() uint32 { return a.errors }

// Reset forgets all conversions and restarts at channel 0
func (a *MCP3008) Reset() {
	a.values = [ADCChannels]uint16{}
	a.next = 0
}
