// Package protocol implements the hailfire command link: the bit-level
// serial engine, the key-length-value frame decoder and the message block
// framing used by the USB bridge.
package protocol

// Version represents the hailfire link protocol version
const Version = "0.3.0"

// KLV link constants
const (
	WordWidth = 8 // Word width of the main command link
	MaxLength = 8 // Default value buffer capacity in bytes

	// WriteFlag is the key bit that selects the write direction
	WriteFlag = 0x80

	// Sentinel is returned, truncated to the requested length, when a
	// key has no readable register
	Sentinel uint64 = 0xDEADBEEFBAADF00D
)

// Word is one unit shifted over the link, right-aligned
type Word uint32

// Key identifies a register; the top bit encodes the direction
type Key uint8

// IsWrite reports whether the key addresses the write direction
func (k Key) IsWrite() bool {
	return k&WriteFlag != 0
}

// Handler receives the decoder's register events. Both calls happen
// synchronously inside Decoder.Tick and must not block.
type Handler interface {
	// ReadRequest fills value, already zeroed, with the register contents,
	// most significant byte first.
	ReadRequest(key Key, value []byte)

	// WriteComplete delivers a fully received value, most significant byte
	// first. value is empty for zero-length writes.
	WriteComplete(key Key, value []byte)
}

// HandlerFuncs adapts a pair of functions to Handler; nil members are no-ops
type HandlerFuncs struct {
	Read  func(key Key, value []byte)
	Write func(key Key, value []byte)
}

func (h HandlerFuncs) ReadRequest(key Key, value []byte) {
	if h.Read != nil {
		h.Read(key, value)
	}
}

func (h HandlerFuncs) WriteComplete(key Key, value []byte) {
	if h.Write != nil {
		h.Write(key, value)
	}
}
