//go:build rp2040

package main

import (
	"machine"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"
)

// buildPulseProgram emits one high pulse per FIFO word. The word is the
// pulse width in PIO cycles minus two.
//
//	0: pull block
//	1: out x, 32
//	2: set pins, 1
//	3: jmp x--, 3
//	4: set pins, 0
func buildPulseProgram() []uint16 {
	asm := rp2pio.AssemblerV0{SidesetBits: 0}
	return []uint16{
		asm.Pull(false, true).Encode(),
		asm.Out(rp2pio.OutDestX, 32).Encode(),
		asm.Set(rp2pio.SetDestPins, 1).Encode(),
		asm.Jmp(3, rp2pio.JmpXNZeroDec).Encode(),
		asm.Set(rp2pio.SetDestPins, 0).Encode(),
	}
}

const (
	pulseProgramOrigin = 0   // jumps in the program are absolute
	pulseClockDiv      = 125 // 125 MHz system clock down to the 1 MHz controller clock
)

// PulseOutput drives up to four servo pins from the state machines of
// one PIO block, one pulse per frame each. It implements core.PulseOutput.
type PulseOutput struct {
	pio *rp2pio.PIO
	sms []rp2pio.StateMachine
}

// NewPulseOutput loads the pulse program on pioHW and starts a state
// machine per pin
func NewPulseOutput(pioHW *rp2pio.PIO, pins ...machine.Pin) (*PulseOutput, error) {
	program := buildPulseProgram()
	offset, err := pioHW.AddProgram(program, pulseProgramOrigin)
	if err != nil {
		return nil, err
	}

	p := &PulseOutput{pio: pioHW}
	for i, pin := range pins {
		sm := pioHW.StateMachine(uint8(i))
		sm.TryClaim()

		pin.Configure(machine.PinConfig{Mode: pioHW.PinMode()})
		cfg := rp2pio.DefaultStateMachineConfig()
		cfg.SetSetPins(pin, 1)
		cfg.SetOutShift(true, false, 32)
		cfg.SetWrap(offset+uint8(len(program))-1, offset)
		cfg.SetClkDivIntFrac(pulseClockDiv, 0)

		sm.Init(offset, cfg)
		sm.SetPindirsConsecutive(pin, 1, true)
		sm.SetPinsConsecutive(pin, 1, false)
		sm.SetEnabled(true)
		p.sms = append(p.sms, sm)
	}
	return p, nil
}

// SetPulse queues one pulse of ticks on channel. A full FIFO drops the
// pulse; the next frame re-arms it.
func (p *PulseOutput) SetPulse(channel int, ticks uint16) error {
	if channel < 0 || channel >= len(p.sms) || ticks < 2 {
		return nil
	}
	sm := p.sms[channel]
	if sm.IsTxFIFOFull() {
		return nil
	}
	sm.TxPut(uint32(ticks) - 2)
	return nil
}
