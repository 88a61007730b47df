// Package klv is the bus master side of the register link: it frames
// key, length and value words over any drivers.SPI bus.
package klv

import (
	"errors"
	"fmt"

	"tinygo.org/x/drivers"

	"hailfire/protocol"
)

var (
	ErrDirection = errors.New("key direction does not match the operation")
	ErrLength    = errors.New("value length out of range")
)

// MaxFrameLength is the longest value a length word can announce
const MaxFrameLength = 255

// Master runs register frames on a bus. It is not safe for concurrent use.
type Master struct {
	bus    drivers.SPI
	tx, rx []byte
}

func NewMaster(bus drivers.SPI) *Master {
	return &Master{
		bus: bus,
		tx:  make([]byte, 2+MaxFrameLength),
		rx:  make([]byte, 2+MaxFrameLength),
	}
}

// Read fetches n bytes of the register at key, most significant first
func (m *Master) Read(key protocol.Key, n int) ([]byte, error) {
	if key.IsWrite() {
		return nil, fmt.Errorf("%w: 0x%02X is a write key", ErrDirection, uint8(key))
	}
	if n < 0 || n > MaxFrameLength {
		return nil, fmt.Errorf("%w: %d", ErrLength, n)
	}
	tx, rx := m.tx[:2+n], m.rx[:2+n]
	clear(tx)
	tx[0], tx[1] = byte(key), byte(n)
	if err := m.bus.Tx(tx, rx); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, rx[2:])
	return out, nil
}

// Write stores value, most significant byte first, in the register at
// key. An empty value is a valid frame.
func (m *Master) Write(key protocol.Key, value []byte) error {
	if !key.IsWrite() {
		return fmt.Errorf("%w: 0x%02X is a read key", ErrDirection, uint8(key))
	}
	if len(value) > MaxFrameLength {
		return fmt.Errorf("%w: %d", ErrLength, len(value))
	}
	tx := m.tx[:2+len(value)]
	tx[0], tx[1] = byte(key), byte(len(value))
	copy(tx[2:], value)
	return m.bus.Tx(tx, m.rx[:len(tx)])
}

// ReadUint reads an n-byte register as an unsigned integer
func (m *Master) ReadUint(key protocol.Key, n int) (uint64, error) {
	if n > 8 {
		return 0, fmt.Errorf("%w: %d bytes does not fit 64 bits", ErrLength, n)
	}
	b, err := m.Read(key, n)
	if err != nil {
		return 0, err
	}
	return Uint(b), nil
}

// ReadInt reads an n-byte register as a two's complement integer
func (m *Master) ReadInt(key protocol.Key, n int) (int64, error) {
	v, err := m.ReadUint(key, n)
	if err != nil {
		return 0, err
	}
	return SignExtend(v, n), nil
}

// WriteUint writes the low n bytes of v
func (m *Master) WriteUint(key protocol.Key, n int, v uint64) error {
	if n > 8 {
		return fmt.Errorf("%w: %d bytes does not fit 64 bits", ErrLength, n)
	}
	return m.Write(key, Bytes(v, n))
}

// WriteInt writes the low n bytes of v in two's complement
func (m *Master) WriteInt(key protocol.Key, n int, v int64) error {
	return m.WriteUint(key, n, uint64(v))
}

// Pulse fires a pulse register with a one-byte write. Zero-length writes
// are ignored by the slave.
func (m *Master) Pulse(key protocol.Key) error {
	return m.Write(key, []byte{1})
}

// Uint decodes big-endian bytes
func Uint(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}

// Bytes encodes the low n bytes of v big-endian
func Bytes(v uint64, n int) []byte {
	b := make([]byte, n)
	for i := n - 1; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

// SignExtend interprets the low n bytes of v as two's complement
func SignExtend(v uint64, n int) int64 {
	if n <= 0 || n >= 8 {
		return int64(v)
	}
	shift := 64 - 8*uint(n)
	return int64(v<<shift) >> shift
}
