//go:build rp2040

package main

import (
	"errors"
	"machine"

	"hailfire/core"
)

// pwmMax is the duty resolution handed to the motor drivers
const pwmMax = 1023

var errPWMPin = errors.New("pin not configured for PWM")

// pwmPeripheral abstracts over TinyGo's unexported *pwmGroup type
type pwmPeripheral interface {
	Configure(config machine.PWMConfig) error
	Channel(pin machine.Pin) (uint8, error)
	Top() uint32
	Set(channel uint8, value uint32)
}

type pwmChannel struct {
	slice   pwmPeripheral
	channel uint8
}

// PWMDriver implements core.PWMDriver on the eight RP2040 PWM slices.
// GPIO n belongs to slice (n>>1)&7, channel A when even and B when odd.
type PWMDriver struct {
	channels map[core.PWMPin]pwmChannel
}

func NewPWMDriver() *PWMDriver {
	return &PWMDriver{channels: make(map[core.PWMPin]pwmChannel)}
}

func (d *PWMDriver) GetMaxValue() uint32 { return pwmMax }

// ConfigureHardwarePWM sets the slice period to cycleTicks controller
// ticks. Both channels of a slice share the period.
func (d *PWMDriver) ConfigureHardwarePWM(pin core.PWMPin, cycleTicks uint32) (uint32, error) {
	slice := sliceOf(uint8((pin >> 1) & 0x7))
	period := uint64(cycleTicks) * 1_000_000_000 / ClockHz
	if err := slice.Configure(machine.PWMConfig{Period: period}); err != nil {
		return 0, err
	}
	ch, err := slice.Channel(machine.Pin(pin))
	if err != nil {
		return 0, err
	}
	d.channels[pin] = pwmChannel{slice: slice, channel: ch}
	return cycleTicks, nil
}

// SetDutyCycle scales value (0..pwmMax) to the slice counter
func (d *PWMDriver) SetDutyCycle(pin core.PWMPin, value core.PWMValue) error {
	c, ok := d.channels[pin]
	if !ok {
		return errPWMPin
	}
	c.slice.Set(c.channel, uint32(uint64(value)*uint64(c.slice.Top())/pwmMax))
	return nil
}

func sliceOf(n uint8) pwmPeripheral {
	switch n {
	case 1:
		return machine.PWM1
	case 2:
		return machine.PWM2
	case 3:
		return machine.PWM3
	case 4:
		return machine.PWM4
	case 5:
		return machine.PWM5
	case 6:
		return machine.PWM6
	case 7:
		return machine.PWM7
	default:
		return machine.PWM0
	}
}
