package protocol

// testLink clocks an Engine like a bus master, running tick between
// every clock edge
type testLink struct {
	e     *Engine
	tick  func()
	ratio int
	cpol  bool
}

func (l *testLink) run() {
	for i := 0; i < l.ratio; i++ {
		if l.tick != nil {
			l.tick()
		}
	}
}

func (l *testLink) selectSlave(active bool) {
	l.e.SetSelect(active)
	l.run()
}

// shift clocks tx out MSB first without touching chip select
func (l *testLink) shift(tx []uint32, width uint8) []uint32 {
	rx := make([]uint32, len(tx))
	for i, w := range tx {
		for bit := int(width) - 1; bit >= 0; bit-- {
			in := w>>bit&1 == 1
			l.e.Clock(!l.cpol, in)
			l.run()
			if l.e.DataOut() {
				rx[i] |= 1 << bit
			}
			l.e.Clock(l.cpol, in)
			l.run()
		}
	}
	return rx
}

func (l *testLink) shiftBytes(tx ...byte) []byte {
	words := make([]uint32, len(tx))
	for i, b := range tx {
		words[i] = uint32(b)
	}
	rx := make([]byte, len(tx))
	for i, w := range l.shift(words, 8) {
		rx[i] = byte(w)
	}
	return rx
}

// transfer runs one chip-select framed transaction
func (l *testLink) transfer(tx ...byte) []byte {
	l.selectSlave(true)
	rx := l.shiftBytes(tx...)
	l.selectSlave(false)
	return rx
}
