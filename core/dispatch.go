package core

import (
	"fmt"

	"github.com/rs/zerolog"

	"hailfire/protocol"
)

// ShortWritePolicy decides what happens to the bytes of a register that a
// write shorter than the register did not carry
type ShortWritePolicy uint8

const (
	// ShortWriteMerge keeps the register's current high bytes when it has
	// a getter, and zero-fills otherwise
	ShortWriteMerge ShortWritePolicy = iota
	// ShortWriteZeroFill clears the missing high bytes
	ShortWriteZeroFill
)

func (p ShortWritePolicy) String() string {
	switch p {
	case ShortWriteMerge:
		return "merge"
	case ShortWriteZeroFill:
		return "zero_fill"
	default:
		return "unknown"
	}
}

// ParseShortWritePolicy parses the configuration name of a policy
func ParseShortWritePolicy(s string) (ShortWritePolicy, error) {
	switch s {
	case "", "merge":
		return ShortWriteMerge, nil
	case "zero_fill":
		return ShortWriteZeroFill, nil
	default:
		return 0, fmt.Errorf("unknown short write policy %q", s)
	}
}

// Counters are the dispatcher diagnostics. Sentinel reads and discarded
// writes are silent on the link; these make them visible.
type Counters struct {
	Reads           uint32
	SentinelReads   uint32
	Writes          uint32
	ShortWrites     uint32
	DiscardedWrites uint32
	EmptyWrites     uint32
}

// Dispatcher serves decoder events from a register table
type Dispatcher struct {
	table    *Table
	policy   ShortWritePolicy
	counters Counters
	trace    *Trace
	log      zerolog.Logger
}

// DispatchOption configures a Dispatcher
type DispatchOption func(*Dispatcher)

func WithShortWritePolicy(p ShortWritePolicy) DispatchOption {
	return func(d *Dispatcher) { d.policy = p }
}

func WithTrace(t *Trace) DispatchOption {
	return func(d *Dispatcher) { d.trace = t }
}

func WithLogger(log zerolog.Logger) DispatchOption {
	return func(d *Dispatcher) { d.log = log }
}

// NewDispatcher creates a dispatcher over table
func NewDispatcher(table *Table, opts ...DispatchOption) *Dispatcher {
	d := &Dispatcher{
		table: table,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Table returns the register table
func (d *Dispatcher) Table() *Table { return d.table }

// Counters returns a copy of the diagnostic counters
func (d *Dispatcher) Counters() Counters { return d.counters }

// ReadRequest fills value with the register right-aligned, most
// significant byte first. Unknown and write-only keys read as the
// sentinel truncated to the requested length.
func (d *Dispatcher) ReadRequest(key protocol.Key, value []byte) {
	e, ok := d.table.Lookup(key)
	switch {
	case ok && e.Access.Readable():
		putRaw(value, e.Raw(), e.Bytes())
		d.counters.Reads++
		d.trace.Record(TraceRead, key, len(value))
	default:
		putRaw(value, protocol.Sentinel, 8)
		d.counters.SentinelReads++
		d.trace.Record(TraceSentinelRead, key, len(value))
		d.log.Debug().Uint8("key", uint8(key)).Int("length", len(value)).Msg("sentinel read")
	}
}

// WriteComplete stores value in the register. Unknown and read-only keys
// are discarded.
func (d *Dispatcher) WriteComplete(key protocol.Key, value []byte) {
	if len(value) == 0 {
		// Zero-length frames carry no value and never reach a register
		d.counters.EmptyWrites++
		d.trace.Record(TraceEmptyWrite, key, 0)
		return
	}
	e, ok := d.table.Lookup(key)
	switch {
	case ok && e.Access.Writable():
		raw := getRaw(value)
		if len(value) < e.Bytes() {
			d.counters.ShortWrites++
			d.trace.Record(TraceShortWrite, key, len(value))
			if d.policy == ShortWriteMerge && e.CanGet() {
				keep := ^uint64(0) << (8 * uint(len(value)))
				raw |= e.Raw() & keep
			}
		} else {
			d.trace.Record(TraceWrite, key, len(value))
		}
		e.Store(raw)
		d.counters.Writes++
	default:
		d.counters.DiscardedWrites++
		d.trace.Record(TraceDiscardWrite, key, len(value))
		d.log.Debug().Uint8("key", uint8(key)).Int("length", len(value)).Msg("discarded write")
	}
}

// putRaw stores the low n bytes of raw at the end of dst, most significant
// first. Bytes of dst beyond n are left untouched.
func putRaw(dst []byte, raw uint64, n int) {
	for i := 0; i < len(dst) && i < n; i++ {
		dst[len(dst)-1-i] = byte(raw >> (8 * uint(i)))
	}
}

// getRaw decodes the low eight bytes of src, most significant first
func getRaw(src []byte) uint64 {
	var raw uint64
	for i := 0; i < len(src) && i < 8; i++ {
		raw |= uint64(src[len(src)-1-i]) << (8 * uint(i))
	}
	return raw
}
