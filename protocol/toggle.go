package protocol

// ToggleFlag signals events across two independently clocked drivers
// without a shared counter. The producer flips the level once per event;
// a ToggleObserver detects each flip by comparing with the last level it
// saw.
//
// An observer must sample at least once per producer period. Two flips
// between samples cancel out and the events are lost.
type ToggleFlag struct {
	level bool
}

// Produce flips the flag, signalling one event
func (f *ToggleFlag) Produce() {
	f.level = !f.level
}

// Level returns the current flag level
func (f *ToggleFlag) Level() bool {
	return f.level
}

// ToggleObserver is the consumer side of a ToggleFlag
type ToggleObserver struct {
	last bool
}

// TryConsume reports true exactly once for each flip of f
func (o *ToggleObserver) TryConsume(f *ToggleFlag) bool {
	if f.level == o.last {
		return false
	}
	o.last = f.level
	return true
}

// Sync discards any pending event
func (o *ToggleObserver) Sync(f *ToggleFlag) {
	o.last = f.level
}
