package core

import (
	"github.com/rs/zerolog"

	"hailfire/protocol"
)

// TraceKind is the type of a recorded link event
type TraceKind uint8

const (
	TraceRead         TraceKind = iota + 1 // read served from a register
	TraceSentinelRead                      // read of an unknown or write-only key
	TraceWrite                             // write stored in a register
	TraceShortWrite                        // write with fewer bytes than the register
	TraceDiscardWrite                      // write to an unknown or read-only key
	TraceReset                             // reset pulse
	TraceEmptyWrite                        // zero-length write, ignored
)

func (k TraceKind) String() string {
	switch k {
	case TraceRead:
		return "READ"
	case TraceSentinelRead:
		return "SENTINEL"
	case TraceWrite:
		return "WRITE"
	case TraceShortWrite:
		return "SHORT_WRITE"
	case TraceDiscardWrite:
		return "DISCARD"
	case TraceReset:
		return "RESET"
	case TraceEmptyWrite:
		return "EMPTY_WRITE"
	default:
		return "UNKNOWN"
	}
}

// TraceEvent is one entry of the trace ring
type TraceEvent struct {
	Kind   TraceKind
	Key    protocol.Key
	Length uint8
	Tick   uint32
}

// TraceRingSize is the number of events kept for post-mortem dumps
const TraceRingSize = 32

// Trace keeps the last TraceRingSize link events. Recording is a fixed
// array store and never allocates, so it is safe on the tick path.
type Trace struct {
	ring [TraceRingSize]TraceEvent
	head uint8
	now  func() uint32
}

// NewTrace creates a trace stamping events with now; nil stamps zero
func NewTrace(now func() uint32) *Trace {
	return &Trace{now: now}
}

// Record adds an event, overwriting the oldest one
func (t *Trace) Record(kind TraceKind, key protocol.Key, length int) {
	if t == nil {
		return
	}
	var tick uint32
	if t.now != nil {
		tick = t.now()
	}
	t.ring[t.head] = TraceEvent{Kind: kind, Key: key, Length: uint8(length), Tick: tick}
	t.head = (t.head + 1) % TraceRingSize
}

// Events returns the recorded events, oldest first
func (t *Trace) Events() []TraceEvent {
	out := make([]TraceEvent, 0, TraceRingSize)
	for i := uint8(0); i < TraceRingSize; i++ {
		evt := t.ring[(t.head+i)%TraceRingSize]
		if evt.Kind != 0 {
			out = append(out, evt)
		}
	}
	return out
}

// Dump writes the ring to the logger at debug level
func (t *Trace) Dump(log zerolog.Logger) {
	log.Debug().Msg("trace dump begin")
	for _, evt := range t.Events() {
		log.Debug().
			Str("event", evt.Kind.String()).
			Uint8("key", uint8(evt.Key)).
			Uint8("length", evt.Length).
			Uint32("tick", evt.Tick).
			Msg("trace")
	}
	log.Debug().Msg("trace dump end")
}

// Clear empties the ring
func (t *Trace) Clear() {
	t.ring = [TraceRingSize]TraceEvent{}
	t.head = 0
}
