// Package sim runs a controller in-process behind a simulated SPI master,
// so that host tools and tests can exercise the real link without
// hardware.
package sim

import (
	"errors"
	"fmt"
	"sync"

	"hailfire/protocol"
)

var (
	ErrRatio  = errors.New("tick ratio must be at least 1")
	ErrLength = errors.New("tx and rx lengths differ")
	ErrWidth  = errors.New("bench needs an 8-bit link")
)

// Target is the slave under test: a link engine and the clock that
// drives its consumer
type Target interface {
	Engine() *protocol.Engine
	Tick()
}

// Bench is a bus master for a Target. Every SPI clock edge is followed by
// ratio target ticks, so ratio is the controller clock over twice the SPI
// clock. It implements drivers.SPI; each Tx is one chip-select framed
// transaction.
type Bench struct {
	mu     sync.Mutex
	target Target
	ratio  int

	transfers uint32
	bits      uint64
}

// NewBench creates a master clocking target
func NewBench(target Target, ratio int) (*Bench, error) {
	if ratio < 1 {
		return nil, fmt.Errorf("%w: %d", ErrRatio, ratio)
	}
	if w := target.Engine().Width(); w != 8 {
		return nil, fmt.Errorf("%w: width %d", ErrWidth, w)
	}
	return &Bench{target: target, ratio: ratio}, nil
}

// Tx shifts w out and r in within one chip-select assertion. Either may be
// nil; a nil w sends zeros.
func (b *Bench) Tx(w, r []byte) error {
	if w != nil && r != nil && len(w) != len(r) {
		return fmt.Errorf("%w: %d and %d", ErrLength, len(w), len(r))
	}
	n := len(w)
	if w == nil {
		n = len(r)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	e := b.target.Engine()
	cpol := e.Mode().CPOL()
	e.SetSelect(true)
	b.run()
	for i := 0; i < n; i++ {
		var out, in byte
		if w != nil {
			out = w[i]
		}
		for bit := 7; bit >= 0; bit-- {
			mosi := out>>bit&1 == 1
			// First edge: the slave drives
			e.Clock(!cpol, mosi)
			b.run()
			if e.DataOut() {
				in |= 1 << bit
			}
			// Second edge: the slave samples
			e.Clock(cpol, mosi)
			b.run()
		}
		if r != nil {
			r[i] = in
		}
	}
	e.SetSelect(false)
	b.run()

	b.transfers++
	b.bits += uint64(8 * n)
	return nil
}

// Transfer exchanges a single byte in its own transaction
func (b *Bench) Transfer(w byte) (byte, error) {
	var r [1]byte
	err := b.Tx([]byte{w}, r[:])
	return r[0], err
}

// Run advances the target by ticks without clocking the link
func (b *Bench) Run(ticks int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := 0; i < ticks; i++ {
		b.target.Tick()
	}
}

// Transfers returns the number of transactions and bits shifted so far
func (b *Bench) Transfers() (transactions uint32, bits uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.transfers, b.bits
}

// Do runs fn with the target stopped, for reading its state from another
// goroutine
func (b *Bench) Do(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn()
}

func (b *Bench) run() {
	for i := 0; i < b.ratio; i++ {
		b.target.Tick()
	}
}
