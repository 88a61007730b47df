package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedMode = errors.New("unsupported SPI mode")
	ErrInvalidWidth    = errors.New("invalid word width")
)

// Mode represents SPI clock polarity and phase (0-3)
// Mode 0: CPOL=0, CPHA=0 (clock idle low, sample on rising edge)
// Mode 1: CPOL=0, CPHA=1 (clock idle low, sample on falling edge)
// Mode 2: CPOL=1, CPHA=0 (clock idle high, sample on falling edge)
// Mode 3: CPOL=1, CPHA=1 (clock idle high, sample on rising edge)
type Mode uint8

const (
	Mode0 Mode = iota
	Mode1
	Mode2
	Mode3
)

// CPOL reports whether the clock idles high
func (m Mode) CPOL() bool { return m&2 != 0 }

// CPHA reports whether data is sampled on the second clock edge
func (m Mode) CPHA() bool { return m&1 != 0 }

func (m Mode) String() string {
	return fmt.Sprintf("mode%d", uint8(m))
}

// MaxWordWidth is the widest word an Engine can shift
const MaxWordWidth = 32

// Engine is the slave side of a synchronous serial link. It is driven at
// pin level by SetSelect and Clock, shifts words MSB first, and reports
// completed and latched words through ToggleFlags so that a consumer
// running on another clock can pick them up without locks.
//
// Only CPHA=1 modes are supported: data is driven on the first edge of a
// bit and sampled on the second. CPOL=1 is handled by inverting the
// clock internally.
type Engine struct {
	width uint8
	mode  Mode
	mask  uint32

	selected bool
	clock    bool // normalized clock level (idle low)
	bit      uint8

	// Receive half
	rxShift  uint32
	rxWord   Word
	rxReady  ToggleFlag
	rxPolled ToggleObserver

	// Transmit half
	txShift   uint32
	txNext    Word
	txPending bool
	txReady   ToggleFlag
	out       bool

	deselect ToggleFlag
}

// NewEngine creates an engine for the given word width and SPI mode
func NewEngine(width uint8, mode Mode) (*Engine, error) {
	e := &Engine{}
	if err := e.Configure(width, mode); err != nil {
		return nil, err
	}
	return e, nil
}

// Configure sets the word width and mode, resetting all link state.
// The width must stay fixed while the link is in use.
func (e *Engine) Configure(width uint8, mode Mode) error {
	if width == 0 || width > MaxWordWidth {
		return fmt.Errorf("%w: %d (must be 1..%d)", ErrInvalidWidth, width, MaxWordWidth)
	}
	if mode > Mode3 || !mode.CPHA() {
		return fmt.Errorf("%w: %s (only mode1 and mode3)", ErrUnsupportedMode, mode)
	}
	*e = Engine{
		width: width,
		mode:  mode,
		mask:  uint32(1<<width - 1),
	}
	return nil
}

// Width returns the configured word width in bits
func (e *Engine) Width() uint8 { return e.width }

// Mode returns the configured SPI mode
func (e *Engine) Mode() Mode { return e.mode }

// Selected reports whether chip select is asserted
func (e *Engine) Selected() bool { return e.selected }

// SetSelect drives the chip select input (true = asserted)
func (e *Engine) SetSelect(active bool) {
	if active == e.selected {
		return
	}
	e.selected = active
	e.resetShift()
	if !active {
		e.deselect.Produce()
	}
}

// resetShift returns both halves to idle. A partially received word is
// abandoned and a queued transmit word is dropped.
func (e *Engine) resetShift() {
	e.bit = 0
	e.rxShift = 0
	e.txShift = 0
	e.txNext = 0
	e.txPending = false
	e.out = false
}

// Clock drives the clock input with the level seen on the pin together
// with the data-in level. Edges are acted on only while selected.
func (e *Engine) Clock(level bool, dataIn bool) {
	level = level != e.mode.CPOL()
	if level == e.clock {
		return
	}
	e.clock = level
	if !e.selected {
		return
	}
	if level {
		e.drive()
	} else {
		e.sample(dataIn)
	}
}

// drive handles the first edge of a bit. On the first bit of a word the
// queued word is latched into the shift register and TxReady flips; with
// nothing queued the slot shifts out zeros and TxReady stays put.
func (e *Engine) drive() {
	if e.bit == 0 {
		if e.txPending {
			e.txShift = uint32(e.txNext) & e.mask
			e.txReady.Produce()
		} else {
			e.txShift = 0
		}
		e.txNext = 0
		e.txPending = false
	} else {
		e.txShift = (e.txShift << 1) & e.mask
	}
	e.out = e.txShift&(1<<(e.width-1)) != 0
}

// sample handles the second edge of a bit
func (e *Engine) sample(in bool) {
	e.rxShift <<= 1
	if in {
		e.rxShift |= 1
	}
	e.rxShift &= e.mask
	e.bit++
	if e.bit == e.width {
		e.rxWord = Word(e.rxShift)
		e.rxShift = 0
		e.bit = 0
		e.rxReady.Produce()
	}
}

// DataOut returns the level of the data-out line
func (e *Engine) DataOut() bool {
	return e.out
}

// SubmitNextWord queues w for the next word slot. It is accepted only
// while selected; a word already being shifted out is not disturbed.
func (e *Engine) SubmitNextWord(w Word) bool {
	if !e.selected {
		return false
	}
	e.txNext = w
	e.txPending = true
	return true
}

// PollReceivedWord returns the last completed word once per completion.
// Consumers that need their own view of the link use RxReady with a
// ToggleObserver instead.
func (e *Engine) PollReceivedWord() (Word, bool) {
	if e.rxPolled.TryConsume(&e.rxReady) {
		return e.rxWord, true
	}
	return 0, false
}

// Received returns the last completed word
func (e *Engine) Received() Word { return e.rxWord }

// RxReady flips once per completed received word
func (e *Engine) RxReady() *ToggleFlag { return &e.rxReady }

// TxReady flips each time a submitted word is latched for transmission
func (e *Engine) TxReady() *ToggleFlag { return &e.txReady }

// Deselected flips each time chip select is released
func (e *Engine) Deselected() *ToggleFlag { return &e.deselect }
