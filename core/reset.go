package core

import "hailfire/protocol"

// ResetLine turns writes of the reset register into a one-tick pulse.
// The register toggles a consign; the controller sees each change once.
type ResetLine struct {
	consign protocol.ToggleFlag
	seen    protocol.ToggleObserver
	pulses  uint32
}

// Request asks for a reset on the next tick
func (r *ResetLine) Request() { r.consign.Produce() }

// Poll reports true on the one tick following a request
func (r *ResetLine) Poll() bool {
	if r.seen.TryConsume(&r.consign) {
		r.pulses++
		return true
	}
	return false
}

// Pulses returns the number of resets performed
func (r *ResetLine) Pulses() uint32 { return r.pulses }
