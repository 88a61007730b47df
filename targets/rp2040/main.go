//go:build rp2040

// Firmware of the robot I/O controller on an RP2040 board. The master
// link arrives on GPIO interrupts; everything else runs from the main
// loop on the microsecond timer.
package main

import (
	"machine"
	"time"

	rp2pio "github.com/tinygo-org/pio/rp2-pio"

	"hailfire/controller"
	"hailfire/core"
)

// Board pin map
const (
	pinLinkSCK  = machine.GPIO2
	pinLinkMOSI = machine.GPIO3
	pinLinkMISO = machine.GPIO4
	pinLinkCS   = machine.GPIO5

	pinLEDGreen  = machine.GPIO6
	pinLEDYellow = machine.GPIO7
	pinLEDRed    = machine.LED

	pinADCSCK = machine.GPIO26
	pinADCSDO = machine.GPIO27
	pinADCSDI = machine.GPIO28
	pinADCCS  = machine.GPIO22
)

var (
	// PWM and direction pins of motors 1 and 2
	motorPins = [][2]machine.Pin{
		{machine.GPIO8, machine.GPIO9},
		{machine.GPIO10, machine.GPIO11},
	}
	// Servos 1 to 4, one PIO0 state machine each
	servoPins = []machine.Pin{machine.GPIO12, machine.GPIO13, machine.GPIO14, machine.GPIO15}
	// A and B channels of odometers 1 and 2
	encoderPins = [][2]machine.Pin{
		{machine.GPIO16, machine.GPIO17},
		{machine.GPIO18, machine.GPIO19},
	}
)

func main() {
	// Clear any watchdog left armed across a reset
	_ = machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 0})

	err := machine.SPI1.Configure(machine.SPIConfig{
		Frequency: 100_000,
		SCK:       pinADCSCK,
		SDO:       pinADCSDO,
		SDI:       pinADCSDI,
		Mode:      3,
	})
	if err != nil {
		halt("adc spi", err)
	}

	cfg := controller.DefaultConfig()
	cfg.ClockHz = ClockHz
	ctl, err := controller.New(cfg, controller.WithADC(machine.SPI1))
	if err != nil {
		halt("controller", err)
	}
	if err := setup(ctl); err != nil {
		halt("setup", err)
	}
	if err := attachLink(ctl.Engine(), pinLinkSCK, pinLinkMOSI, pinLinkMISO, pinLinkCS); err != nil {
		halt("link", err)
	}

	for {
		for i, enc := range encoderPins {
			ctl.SetEncoder(i, enc[0].Get(), enc[1].Get())
		}
		ctl.TickAt(Now())
	}
}

// setup binds the peripheral models to the board hardware
func setup(ctl *controller.Controller) error {
	gpio := GPIODriver{}
	pwm := NewPWMDriver()

	for i, p := range motorPins {
		if err := ctl.Motor(i).Attach(pwm, core.PWMPin(p[0]), gpio, core.GPIOPin(p[1])); err != nil {
			return err
		}
	}

	pulses, err := NewPulseOutput(rp2pio.PIO0, servoPins...)
	if err != nil {
		return err
	}
	for i := range servoPins {
		ctl.Servo(i).Attach(pulses, i)
	}

	for _, p := range encoderPins {
		p[0].Configure(machine.PinConfig{Mode: machine.PinInputPullup})
		p[1].Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	}

	if err := ctl.LEDs().Attach(gpio, core.GPIOPin(pinLEDGreen), core.GPIOPin(pinLEDYellow), core.GPIOPin(pinLEDRed)); err != nil {
		return err
	}

	cs, err := core.NewOutputPin(gpio, core.GPIOPin(pinADCCS), true)
	if err != nil {
		return err
	}
	ctl.ADC().SetChipSelect(cs)
	return nil
}

// halt reports a setup failure on the console and blinks the red LED
func halt(stage string, err error) {
	pinLEDRed.Configure(machine.PinConfig{Mode: machine.PinOutput})
	for {
		println("hailfire:", stage, "failed:", err.Error())
		pinLEDRed.Set(!pinLEDRed.Get())
		time.Sleep(100 * time.Millisecond)
	}
}
