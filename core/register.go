package core

import (
	"fmt"

	"golang.org/x/exp/constraints"

	"hailfire/protocol"
)

// Kind tells how a register's raw bits are interpreted
type Kind uint8

const (
	Unsigned Kind = iota
	Signed
	Bitfield
)

func (k Kind) String() string {
	switch k {
	case Unsigned:
		return "u"
	case Signed:
		return "i"
	case Bitfield:
		return "b"
	default:
		return "?"
	}
}

// Access is the register direction as seen by the master
type Access uint8

const (
	ReadOnly Access = iota + 1
	WriteOnly
	ReadWrite
)

func (a Access) Readable() bool { return a == ReadOnly || a == ReadWrite }
func (a Access) Writable() bool { return a == WriteOnly || a == ReadWrite }

func (a Access) String() string {
	switch a {
	case ReadOnly:
		return "r"
	case WriteOnly:
		return "w"
	case ReadWrite:
		return "rw"
	default:
		return "-"
	}
}

// MaxRegisterWidth is the widest register the dispatcher handles
const MaxRegisterWidth = 64

// Entry binds a key to a register. The accessors exchange raw bit patterns
// right-aligned in a uint64; the typed constructors below convert to and
// from the register's Go type.
type Entry struct {
	Key    protocol.Key
	Name   string
	Width  uint8 // bits
	Kind   Kind
	Access Access

	get func() uint64
	set func(uint64)
}

// Bytes returns the number of bytes needed to hold the register
func (e *Entry) Bytes() int {
	return (int(e.Width) + 7) / 8
}

func (e *Entry) mask() uint64 {
	if e.Width >= 64 {
		return ^uint64(0)
	}
	return 1<<e.Width - 1
}

// CanGet reports whether the register has a getter, including write-only
// registers that expose their current value internally
func (e *Entry) CanGet() bool { return e.get != nil }

// Raw returns the register value as a width-bit pattern
func (e *Entry) Raw() uint64 {
	if e.get == nil {
		return 0
	}
	return e.get() & e.mask()
}

// Store writes a raw pattern, truncated to the register width
func (e *Entry) Store(raw uint64) {
	if e.set != nil {
		e.set(raw & e.mask())
	}
}

// Describe returns the dictionary line of the entry
func (e *Entry) Describe() string {
	return fmt.Sprintf("0x%02X %s %s%d %s", uint8(e.Key), e.Name, e.Kind, e.Width, e.Access)
}

func accessOf(canGet, canSet bool) Access {
	switch {
	case canGet && canSet:
		return ReadWrite
	case canGet:
		return ReadOnly
	case canSet:
		return WriteOnly
	default:
		return 0
	}
}

// SignExtend interprets the low width bits of raw as two's complement
func SignExtend(raw uint64, width uint8) int64 {
	if width == 0 || width >= 64 {
		return int64(raw)
	}
	shift := 64 - width
	return int64(raw<<shift) >> shift
}

// UnsignedReg builds an unsigned register. A nil get makes it write-only,
// a nil set read-only.
func UnsignedReg[T constraints.Unsigned](key protocol.Key, name string, width uint8, get func() T, set func(T)) Entry {
	e := Entry{Key: key, Name: name, Width: width, Kind: Unsigned, Access: accessOf(get != nil, set != nil)}
	if get != nil {
		e.get = func() uint64 { return uint64(get()) }
	}
	if set != nil {
		e.set = func(v uint64) { set(T(v)) }
	}
	return e
}

// SignedReg builds a signed register; written values are sign-extended
// from width bits before conversion
func SignedReg[T constraints.Signed](key protocol.Key, name string, width uint8, get func() T, set func(T)) Entry {
	e := Entry{Key: key, Name: name, Width: width, Kind: Signed, Access: accessOf(get != nil, set != nil)}
	if get != nil {
		e.get = func() uint64 { return uint64(int64(get())) }
	}
	if set != nil {
		e.set = func(v uint64) { set(T(SignExtend(v, width))) }
	}
	return e
}

// BitsReg builds a bitfield register of up to 64 bits
func BitsReg[T constraints.Unsigned](key protocol.Key, name string, width uint8, get func() T, set func(T)) Entry {
	e := UnsignedReg(key, name, width, get, set)
	e.Kind = Bitfield
	return e
}

// BoolReg builds a one-bit register
func BoolReg(key protocol.Key, name string, get func() bool, set func(bool)) Entry {
	e := Entry{Key: key, Name: name, Width: 1, Kind: Bitfield, Access: accessOf(get != nil, set != nil)}
	if get != nil {
		e.get = func() uint64 {
			if get() {
				return 1
			}
			return 0
		}
	}
	if set != nil {
		e.set = func(v uint64) { set(v&1 != 0) }
	}
	return e
}

// ConstReg builds a read-only register with a fixed value
func ConstReg(key protocol.Key, name string, width uint8, value uint64) Entry {
	return UnsignedReg(key, name, width, func() uint64 { return value }, nil)
}

// PulseReg builds a write-only register whose value is ignored; any write
// of one byte or more calls fire
func PulseReg(key protocol.Key, name string, fire func()) Entry {
	return Entry{
		Key:    key,
		Name:   name,
		Width:  8,
		Kind:   Bitfield,
		Access: WriteOnly,
		set:    func(uint64) { fire() },
	}
}

// AsWriteOnly hides a register from reads. Its getter is kept so that
// short writes can merge with the current value.
func (e Entry) AsWriteOnly() Entry {
	e.Access = WriteOnly
	return e
}
