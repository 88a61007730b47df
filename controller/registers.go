package controller

import (
	"fmt"

	"hailfire/core"
	"hailfire/protocol"
)

// Register keys. Read keys have the top bit clear, write keys set.
const (
	odometerCountKey protocol.Key = 0x11
	odometerSpeedKey protocol.Key = 0x21
	portKey          protocol.Key = 0x31
	magicKey         protocol.Key = 0x42
	adcKey           protocol.Key = 0x51
	testReadKey      protocol.Key = 0x71
	resetKey         protocol.Key = 0x81
	ledGreenKey      protocol.Key = 0x82
	ledYellowKey     protocol.Key = 0x83
	ledRedKey        protocol.Key = 0x84
	motorKey         protocol.Key = 0x91
	servoKey         protocol.Key = 0xA1
	controlKey       protocol.Key = 0xB1
	testWriteKey     protocol.Key = 0xF1
)

// Magic is the value of the identification register 0x42
const Magic = 0xDEADC0DE

// testRegisters backs the round-trip registers: 0xF1..0xF6 store what
// 0x71..0x76 read back
type testRegisters struct {
	u8  uint8
	u16 uint16
	u32 uint32
	i8  int8
	i16 int16
	i32 int32
}

func (c *Controller) registers() []core.Entry {
	var regs []core.Entry

	for i := range c.odometers {
		o := &c.odometers[i]
		regs = append(regs,
			core.SignedReg(odometerCountKey+protocol.Key(i), fmt.Sprintf("odometer%d_count", i+1), 32, o.Count, nil),
			core.SignedReg(odometerSpeedKey+protocol.Key(i), fmt.Sprintf("odometer%d_speed", i+1), 32, o.Speed, nil),
		)
	}
	for i := range c.ports {
		regs = append(regs, core.BitsReg(portKey+protocol.Key(i), fmt.Sprintf("ext%d_port", i+1), 8, c.ports[i].Value, nil))
	}
	regs = append(regs, core.ConstReg(magicKey, "magic", 32, Magic))
	for i := 0; i < core.ADCChannels; i++ {
		regs = append(regs, core.UnsignedReg(adcKey+protocol.Key(i), fmt.Sprintf("adc%d", i+1), core.ADCBits, func() uint16 {
			if c.adc == nil {
				return 0
			}
			return c.adc.Value(i)
		}, nil))
	}

	t := &c.test
	regs = append(regs,
		core.UnsignedReg(testReadKey+0, "test_u8", 8, func() uint8 { return t.u8 }, nil),
		core.UnsignedReg(testReadKey+1, "test_u16", 16, func() uint16 { return t.u16 }, nil),
		core.UnsignedReg(testReadKey+2, "test_u32", 32, func() uint32 { return t.u32 }, nil),
		core.SignedReg(testReadKey+3, "test_i8", 8, func() int8 { return t.i8 }, nil),
		core.SignedReg(testReadKey+4, "test_i16", 16, func() int16 { return t.i16 }, nil),
		core.SignedReg(testReadKey+5, "test_i32", 32, func() int32 { return t.i32 }, nil),
		core.UnsignedReg(testWriteKey+0, "set_test_u8", 8, nil, func(v uint8) { t.u8 = v }),
		core.UnsignedReg(testWriteKey+1, "set_test_u16", 16, nil, func(v uint16) { t.u16 = v }),
		core.UnsignedReg(testWriteKey+2, "set_test_u32", 32, nil, func(v uint32) { t.u32 = v }),
		core.SignedReg(testWriteKey+3, "set_test_i8", 8, nil, func(v int8) { t.i8 = v }),
		core.SignedReg(testWriteKey+4, "set_test_i16", 16, nil, func(v int16) { t.i16 = v }),
		core.SignedReg(testWriteKey+5, "set_test_i32", 32, nil, func(v int32) { t.i32 = v }),
	)

	regs = append(regs,
		core.PulseReg(resetKey, "reset", c.reset.Request),
		core.BoolReg(ledGreenKey, "led_green", c.leds.Green, c.leds.SetGreen).AsWriteOnly(),
		core.BoolReg(ledYellowKey, "led_yellow", c.leds.Yellow, c.leds.SetYellow).AsWriteOnly(),
		core.BoolReg(ledRedKey, "led_red_override", c.leds.RedOverride, c.leds.SetRedOverride).AsWriteOnly(),
	)

	for i, m := range c.motors {
		regs = append(regs, core.SignedReg(motorKey+protocol.Key(i), fmt.Sprintf("motor%d_speed", i+1), 11, m.Speed, m.SetSpeed).AsWriteOnly())
	}
	for i, s := range c.servos {
		regs = append(regs, core.UnsignedReg(servoKey+protocol.Key(i), fmt.Sprintf("servo%d_consign", i+1), 16, s.Consign, s.SetConsign).AsWriteOnly())
	}

	return append(regs, c.control.registers()...)
}

// KeyMap returns the register table of a default controller. Host tools
// use it for register names and widths.
func KeyMap() *core.Table {
	c, err := New(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return c.Table()
}
