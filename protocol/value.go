package protocol

// ValueBuffer holds one frame value as a big-endian number of fixed
// capacity. Bytes are addressed by bit offset: offset 0 is the least
// significant byte, offset 8*(capacity-1) the most significant one.
// Offsets beyond the capacity read as zero and drop writes.
type ValueBuffer struct {
	buf []byte
}

// NewValueBuffer allocates a buffer of the given capacity in bytes
func NewValueBuffer(capacity int) ValueBuffer {
	return ValueBuffer{buf: make([]byte, capacity)}
}

// Capacity returns the buffer size in bytes
func (v *ValueBuffer) Capacity() int { return len(v.buf) }

func (v *ValueBuffer) index(offset int) int {
	return len(v.buf) - 1 - offset/8
}

// ByteAt returns the byte at a bit offset
func (v *ValueBuffer) ByteAt(offset int) byte {
	i := v.index(offset)
	if i < 0 || i >= len(v.buf) {
		return 0
	}
	return v.buf[i]
}

// SetByteAt stores a byte at a bit offset
func (v *ValueBuffer) SetByteAt(offset int, b byte) {
	i := v.index(offset)
	if i < 0 || i >= len(v.buf) {
		return
	}
	v.buf[i] = b
}

// Window returns the low bytes holding a value of length bytes, limited to
// the capacity. The slice aliases the buffer.
func (v *ValueBuffer) Window(length int) []byte {
	if length > len(v.buf) {
		length = len(v.buf)
	}
	return v.buf[len(v.buf)-length:]
}

// Clear zeroes the whole buffer
func (v *ValueBuffer) Clear() {
	clear(v.buf)
}
