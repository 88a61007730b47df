package protocol

// InputBuffer is a queue of received bytes waiting to be parsed
type InputBuffer interface {
	Data() []byte // pending bytes, oldest first
	Available() int
	Pop(n int) // drop n bytes from the front
}

// OutputBuffer collects bytes to be sent
type OutputBuffer interface {
	Output(data []byte)
	CurPosition() int
	Update(pos int, val byte)
	DataSince(pos int) []byte
}

// SliceInputBuffer is an InputBuffer over a fixed byte slice
type SliceInputBuffer struct {
	data []byte
}

func NewSliceInputBuffer(data []byte) *SliceInputBuffer {
	return &SliceInputBuffer{data: data}
}

func (s *SliceInputBuffer) Data() []byte   { return s.data }
func (s *SliceInputBuffer) Available() int { return len(s.data) }

func (s *SliceInputBuffer) Pop(n int) {
	s.data = s.data[min(n, len(s.data)):]
}

// ScratchOutput is an OutputBuffer backed by a fixed array, so encoding a
// block never allocates
type ScratchOutput struct {
	buf [BlockLengthMax]byte
	pos int
}

func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{}
}

// Output appends data, silently truncating at capacity
func (s *ScratchOutput) Output(data []byte) {
	s.pos += copy(s.buf[s.pos:], data)
}

func (s *ScratchOutput) CurPosition() int { return s.pos }

func (s *ScratchOutput) Update(pos int, val byte) {
	if pos < s.pos {
		s.buf[pos] = val
	}
}

func (s *ScratchOutput) DataSince(pos int) []byte {
	if pos > s.pos {
		return nil
	}
	return s.buf[pos:s.pos]
}

// Result returns everything written since the last Reset
func (s *ScratchOutput) Result() []byte { return s.buf[:s.pos] }

func (s *ScratchOutput) Reset() { s.pos = 0 }

// FifoBuffer is a bounded byte queue for serial input. Data is kept
// contiguous: Pop shifts the remaining bytes down, so Data never copies.
type FifoBuffer struct {
	buf []byte
	n   int
}

// NewFifoBuffer creates a FifoBuffer holding up to capacity bytes
func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{buf: make([]byte, capacity)}
}

// Write appends as much of data as fits and returns the count stored
func (f *FifoBuffer) Write(data []byte) int {
	w := copy(f.buf[f.n:], data)
	f.n += w
	return w
}

// Read moves up to len(data) bytes out of the queue
func (f *FifoBuffer) Read(data []byte) int {
	r := copy(data, f.buf[:f.n])
	f.Pop(r)
	return r
}

func (f *FifoBuffer) Data() []byte   { return f.buf[:f.n] }
func (f *FifoBuffer) Available() int { return f.n }
func (f *FifoBuffer) Free() int      { return len(f.buf) - f.n }
func (f *FifoBuffer) IsEmpty() bool  { return f.n == 0 }
func (f *FifoBuffer) Reset()         { f.n = 0 }

func (f *FifoBuffer) Pop(n int) {
	n = min(n, f.n)
	copy(f.buf, f.buf[n:f.n])
	f.n -= n
}
