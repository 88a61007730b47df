package protocol

// State is the frame decoder state
type State uint8

const (
	StateReadKey State = iota
	StateGetReadLength
	StateGetWriteLength
	StateMasterRead
	StateMasterWrite
)

func (s State) String() string {
	switch s {
	case StateReadKey:
		return "read_key"
	case StateGetReadLength:
		return "get_read_length"
	case StateGetWriteLength:
		return "get_write_length"
	case StateMasterRead:
		return "master_read"
	case StateMasterWrite:
		return "master_write"
	default:
		return "unknown"
	}
}

// DecoderStats counts decoder activity, including silent recoveries
type DecoderStats struct {
	Words          uint32 // words received
	Frames         uint32 // frames completed, zero-length ones included
	Aborted        uint32 // frames cut short by deselection
	WatchdogResets uint32 // frames abandoned by the stall watchdog
}

// Decoder turns the word stream of an Engine into key-length-value frames.
//
// A frame is a key word, a length word and length value words. For a
// read key (top bit clear) the value words flow from slave to master and
// the words the master sends meanwhile are ignored; for a write key the
// value flows from master to slave. Values are sent most significant byte
// first.
//
// Tick is the only entry point. It does a bounded amount of work, never
// blocks and never allocates.
type Decoder struct {
	engine  *Engine
	handler Handler

	state  State
	key    Key
	length int
	offset int // bit offset of the current value byte
	value  ValueBuffer

	rx, tx, deselect ToggleObserver

	watchdog uint32
	idle     uint32

	stats DecoderStats
}

// DecoderOption configures a Decoder
type DecoderOption func(*Decoder)

// WithCapacity sets the value buffer capacity in bytes (1..255)
func WithCapacity(n int) DecoderOption {
	return func(d *Decoder) {
		if n > 0 && n <= 255 {
			d.value = NewValueBuffer(n)
		}
	}
}

// WithWatchdog resets a frame left unfinished for the given number of
// ticks without a new word. Zero disables the watchdog.
func WithWatchdog(ticks uint32) DecoderOption {
	return func(d *Decoder) {
		d.watchdog = ticks
	}
}

// NewDecoder creates a decoder reading words from engine and reporting
// frames to handler
func NewDecoder(engine *Engine, handler Handler, opts ...DecoderOption) *Decoder {
	d := &Decoder{
		engine:  engine,
		handler: handler,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.value.Capacity() == 0 {
		d.value = NewValueBuffer(MaxLength)
	}
	d.rx.Sync(engine.RxReady())
	d.tx.Sync(engine.TxReady())
	d.deselect.Sync(engine.Deselected())
	return d
}

// State returns the current decoder state
func (d *Decoder) State() State { return d.state }

// Stats returns a copy of the decoder counters
func (d *Decoder) Stats() DecoderStats { return d.stats }

// Capacity returns the value buffer capacity in bytes
func (d *Decoder) Capacity() int { return d.value.Capacity() }

// Tick runs one step of the decoder. A word completed in the same tick
// as a deselection is processed before the reset.
func (d *Decoder) Tick() {
	received := d.rx.TryConsume(d.engine.RxReady())
	if received {
		d.idle = 0
		d.stats.Words++
		d.receive(byte(d.engine.Received()))
	}
	if d.tx.TryConsume(d.engine.TxReady()) {
		d.latched()
	}
	if d.deselect.TryConsume(d.engine.Deselected()) {
		d.abort()
		return
	}
	if !received && d.watchdog != 0 && d.state != StateReadKey {
		d.idle++
		if d.idle >= d.watchdog {
			d.stats.WatchdogResets++
			d.reset()
		}
	}
}

func (d *Decoder) receive(b byte) {
	switch d.state {
	case StateReadKey:
		d.key = Key(b)
		if d.key.IsWrite() {
			d.state = StateGetWriteLength
		} else {
			d.state = StateGetReadLength
		}

	case StateGetReadLength:
		if b == 0 {
			d.complete()
			return
		}
		d.begin(b)
		d.handler.ReadRequest(d.key, d.value.Window(d.length))
		d.engine.SubmitNextWord(Word(d.value.ByteAt(d.offset)))
		d.state = StateMasterRead

	case StateGetWriteLength:
		if b == 0 {
			d.length = 0
			d.handler.WriteComplete(d.key, d.value.Window(0))
			d.complete()
			return
		}
		d.begin(b)
		d.state = StateMasterWrite

	case StateMasterWrite:
		d.value.SetByteAt(d.offset, b)
		if d.offset == 0 {
			d.handler.WriteComplete(d.key, d.value.Window(d.length))
			d.complete()
			return
		}
		d.offset -= 8

	case StateMasterRead:
		// The word the master clocks in is a dummy; it retires one value byte
		if d.offset == 0 {
			d.complete()
			return
		}
		d.offset -= 8
	}
}

// latched is called when the engine loaded a word for transmission. In
// MasterRead the byte after the one now on the wire is queued.
func (d *Decoder) latched() {
	if d.state == StateMasterRead && d.offset >= 8 {
		d.engine.SubmitNextWord(Word(d.value.ByteAt(d.offset - 8)))
	}
}

func (d *Decoder) begin(length byte) {
	d.length = int(length)
	d.offset = 8 * (d.length - 1)
	d.value.Clear()
}

func (d *Decoder) complete() {
	d.stats.Frames++
	d.reset()
}

func (d *Decoder) abort() {
	if d.state != StateReadKey {
		d.stats.Aborted++
	}
	d.reset()
}

func (d *Decoder) reset() {
	d.state = StateReadKey
	d.length = 0
	d.offset = 0
	d.idle = 0
}
