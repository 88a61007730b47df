//go:build tinygo

package core

import "runtime/interrupt"

// InterruptState is the saved interrupt mask
type InterruptState = interrupt.State

// DisableInterrupts masks interrupts so the link edge handler cannot run
// while the controller touches engine state
func DisableInterrupts() InterruptState {
	return interrupt.Disable()
}

func RestoreInterrupts(state InterruptState) {
	interrupt.Restore(state)
}
