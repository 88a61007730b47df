//go:build rp2040

package main

import (
	"runtime/volatile"
	"unsafe"
)

// ClockHz is the rate of the RP2040 timer peripheral, which is the
// controller clock
const ClockHz = 1_000_000

// RP2040 Timer peripheral memory map
const (
	timerBase     = 0x40054000
	timerTIMERAWL = timerBase + 0x0C // Raw timer low word
)

var timerRAWL = (*volatile.Register32)(unsafe.Pointer(uintptr(timerTIMERAWL)))

// Now returns the low 32 bits of the microsecond counter. The controller
// clock wraps with it.
func Now() uint32 {
	return timerRAWL.Get()
}
