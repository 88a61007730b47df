//go:build !tinygo

package core

// InterruptState is a placeholder on regular Go, where link edges and
// controller ticks come from the same goroutine
type InterruptState uintptr

func DisableInterrupts() InterruptState { return 0 }

func RestoreInterrupts(state InterruptState) {}
