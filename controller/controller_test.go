package controller

import (
	"bytes"
	"errors"
	"testing"

	"hailfire/host/klv"
	"hailfire/protocol"
	"hailfire/sim"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ClockHz = 10_000
	return cfg
}

func newRig(t *testing.T, cfg Config, opts ...Option) (*Controller, *sim.Bench, *klv.Master) {
	t.Helper()
	c, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	bench, err := sim.NewBench(c, 2)
	if err != nil {
		t.Fatalf("NewBench: %v", err)
	}
	return c, bench, klv.NewMaster(bench)
}

func mustRead(t *testing.T, m *klv.Master, key protocol.Key, n int) []byte {
	t.Helper()
	b, err := m.Read(key, n)
	if err != nil {
		t.Fatalf("Read 0x%02X: %v", uint8(key), err)
	}
	return b
}

func mustWrite(t *testing.T, m *klv.Master, key protocol.Key, value ...byte) {
	t.Helper()
	if err := m.Write(key, value); err != nil {
		t.Fatalf("Write 0x%02X: %v", uint8(key), err)
	}
}

func TestNewConfigErrors(t *testing.T) {
	cfg := testConfig()
	cfg.LEDBlinkHz = 0
	if _, err := New(cfg); !errors.Is(err, ErrConfig) {
		t.Errorf("Expected ErrConfig, got %v", err)
	}

	cfg = testConfig()
	cfg.Mode = protocol.Mode0
	if _, err := New(cfg); !errors.Is(err, protocol.ErrUnsupportedMode) {
		t.Errorf("Expected ErrUnsupportedMode, got %v", err)
	}

	cfg = testConfig()
	cfg.ClockHz = 10
	if _, err := New(cfg); !errors.Is(err, ErrConfig) {
		t.Errorf("Expected ErrConfig for a slow clock, got %v", err)
	}

	for _, width := range []uint8{4, 16} {
		cfg = testConfig()
		cfg.WordWidth = width
		if _, err := New(cfg); !errors.Is(err, ErrConfig) {
			t.Errorf("Expected ErrConfig for %d-bit words, got %v", width, err)
		}
		if err := cfg.Validate(); !errors.Is(err, ErrConfig) {
			t.Errorf("Expected Validate to reject %d-bit words, got %v", width, err)
		}
	}
}

func TestMagicAndSentinel(t *testing.T) {
	c, _, m := newRig(t, testConfig())

	testCases := []struct {
		key      protocol.Key
		n        int
		expected []byte
	}{
		{magicKey, 4, []byte{0xDE, 0xAD, 0xC0, 0xDE}},
		{magicKey, 2, []byte{0xC0, 0xDE}},
		{magicKey, 5, []byte{0x00, 0xDE, 0xAD, 0xC0, 0xDE}},
		{0x10, 8, []byte{0xDE, 0xAD, 0xBE, 0xEF, 0xBA, 0xAD, 0xF0, 0x0D}},
		{0x7F, 2, []byte{0xF0, 0x0D}},
		{0x43, 0, []byte{}},
	}
	for _, tc := range testCases {
		if got := mustRead(t, m, tc.key, tc.n); !bytes.Equal(got, tc.expected) {
			t.Errorf("0x%02X len %d: expected % X, got % X", uint8(tc.key), tc.n, tc.expected, got)
		}
	}

	s := c.Stats()
	if s.Dispatch.Reads != 3 || s.Dispatch.SentinelReads != 2 {
		t.Errorf("Expected 3 reads and 2 sentinel reads, got %+v", s.Dispatch)
	}
}

func TestRoundTripRegisters(t *testing.T) {
	_, _, m := newRig(t, testConfig())

	testCases := []struct {
		n     int
		value uint64
	}{
		{1, 0xA5},
		{2, 0xBEEF},
		{4, 0x12345678},
		{1, 0x80},       // -128
		{2, 0xFFFE},     // -2
		{4, 0x80000001}, // min + 1
	}
	for i, tc := range testCases {
		if err := m.WriteUint(testWriteKey+protocol.Key(i), tc.n, tc.value); err != nil {
			t.Fatalf("WriteUint: %v", err)
		}
	}
	for i, tc := range testCases {
		got, err := m.ReadUint(testReadKey+protocol.Key(i), tc.n)
		if err != nil {
			t.Fatalf("ReadUint: %v", err)
		}
		if got != tc.value {
			t.Errorf("0x%02X: expected 0x%X, got 0x%X", uint8(testReadKey)+uint8(i), tc.value, got)
		}
	}

	// Wider reads are zero-padded, not sign-extended
	if v, err := m.ReadUint(testReadKey+4, 4); err != nil || v != 0xFFFE {
		t.Errorf("Expected 0xFFFE from a 4-byte read of test_i16, got 0x%X (%v)", v, err)
	}
	if got := mustRead(t, m, testReadKey+3, 2); !bytes.Equal(got, []byte{0x00, 0x80}) {
		t.Errorf("Expected 00 80, got % X", got)
	}
	if v, err := m.ReadInt(testReadKey+5, 4); err != nil || v != -0x7FFFFFFF {
		t.Errorf("Expected -0x7FFFFFFF, got %d (%v)", v, err)
	}
}

func TestDiscardedWrites(t *testing.T) {
	c, _, m := newRig(t, testConfig())

	mustWrite(t, m, 0xEE, 0x01)
	mustWrite(t, m, 0xF7, 0x01, 0x02)
	if s := c.Stats(); s.Dispatch.DiscardedWrites != 2 || s.Dispatch.Writes != 0 {
		t.Errorf("Expected 2 discarded writes, got %+v", s.Dispatch)
	}
}

func TestMotorRegisters(t *testing.T) {
	c, bench, m := newRig(t, testConfig())

	testCases := []struct {
		value   []byte
		speed   int16
		duty    uint16
		forward bool
	}{
		{[]byte{0x00, 0x0A}, 10, 10, true},
		{[]byte{0x07, 0xFF}, -1, 1, false},
		{[]byte{0x04, 0x00}, -1024, 1023, false},
		{[]byte{0x03, 0xFF}, 1023, 1023, true},
	}
	for _, tc := range testCases {
		mustWrite(t, m, motorKey+2, tc.value...)
		motor := c.Motor(2)
		if motor.Speed() != tc.speed {
			t.Errorf("% X: expected speed %d, got %d", tc.value, tc.speed, motor.Speed())
		}
		bench.Run(2 * 1024)
		if motor.Duty() != tc.duty || motor.Forward() != tc.forward {
			t.Errorf("% X: expected duty %d forward %v, got %d %v", tc.value, tc.duty, tc.forward, motor.Duty(), motor.Forward())
		}
	}
}

func TestServoAndLEDRegisters(t *testing.T) {
	c, bench, m := newRig(t, testConfig())

	mustWrite(t, m, servoKey+7, 0x01, 0x2C)
	if c.Servo(7).Consign() != 300 {
		t.Errorf("Expected consign 300, got %d", c.Servo(7).Consign())
	}
	bench.Run(10_000 / 50)
	if c.Servo(7).Duty() != 300 {
		t.Errorf("Expected duty 300 after a frame, got %d", c.Servo(7).Duty())
	}

	mustWrite(t, m, ledGreenKey, 0x01)
	mustWrite(t, m, ledYellowKey, 0x01)
	mustWrite(t, m, ledRedKey, 0x01)
	leds := c.LEDs()
	if !leds.Green() || !leds.Yellow() || !leds.RedOverride() || !leds.Red() {
		t.Error("Expected all LEDs lit")
	}
	mustWrite(t, m, ledYellowKey, 0x00)
	if leds.Yellow() {
		t.Error("Expected yellow LED off")
	}
}

func TestOdometerRegisters(t *testing.T) {
	c, bench, m := newRig(t, testConfig())
	wheel := sim.NewWheel(func(a, b bool) { c.SetEncoder(0, a, b) })

	for i := 0; i < 10; i++ {
		wheel.Step(true)
		bench.Run(1)
	}
	if v, err := m.ReadInt(odometerCountKey, 4); err != nil || v != 10 {
		t.Errorf("Expected count 10, got %d (%v)", v, err)
	}

	for i := 0; i < 15; i++ {
		wheel.Step(false)
		bench.Run(1)
	}
	if got := mustRead(t, m, odometerCountKey, 4); !bytes.Equal(got, []byte{0xFF, 0xFF, 0xFF, 0xFB}) {
		t.Errorf("Expected -5 (FF FF FF FB), got % X", got)
	}

	c.Port(2).Set(0xA5)
	if got := mustRead(t, m, portKey+2, 1); got[0] != 0xA5 {
		t.Errorf("Expected port value A5, got %02X", got[0])
	}
}

func TestADCRegisters(t *testing.T) {
	dev := &sim.ADCDevice{}
	dev.Set(3, 0x155)
	dev.Set(7, 0x3FF)
	c, bench, m := newRig(t, testConfig(), WithADC(dev))

	// Two full round-robin passes
	bench.Run(2 * 8 * 12)
	if got := mustRead(t, m, adcKey+3, 2); !bytes.Equal(got, []byte{0x01, 0x55}) {
		t.Errorf("Expected 01 55, got % X", got)
	}
	if v, err := m.ReadUint(adcKey+7, 2); err != nil || v != 0x3FF {
		t.Errorf("Expected 0x3FF, got 0x%X (%v)", v, err)
	}
	if c.Stats().ADCErrors != 0 {
		t.Errorf("Expected no ADC errors, got %d", c.Stats().ADCErrors)
	}
}

func TestResetPulse(t *testing.T) {
	c, bench, m := newRig(t, testConfig())
	wheel := sim.NewWheel(func(a, b bool) { c.SetEncoder(1, a, b) })
	for i := 0; i < 4; i++ {
		wheel.Step(true)
		bench.Run(1)
	}
	mustWrite(t, m, motorKey, 0x00, 0x40)
	bench.Run(2 * 1024)
	mustWrite(t, m, ledGreenKey, 0x01)

	if err := m.Pulse(resetKey); err != nil {
		t.Fatalf("Pulse: %v", err)
	}

	if c.Odometer(1).Count() != 0 {
		t.Errorf("Expected odometer cleared, got %d", c.Odometer(1).Count())
	}
	if c.Motor(0).Speed() != 0 || c.Motor(0).Duty() != 0 {
		t.Errorf("Expected motor stopped, got speed %d duty %d", c.Motor(0).Speed(), c.Motor(0).Duty())
	}
	if !c.LEDs().Green() {
		t.Error("Expected green LED to survive reset")
	}
	if c.Stats().Resets != 1 {
		t.Errorf("Expected 1 reset, got %d", c.Stats().Resets)
	}

	// The link itself is unaffected
	if v, err := m.ReadUint(magicKey, 4); err != nil || v != Magic {
		t.Errorf("Expected magic after reset, got 0x%X (%v)", v, err)
	}
}

func TestZeroLengthWritesAreIgnored(t *testing.T) {
	c, bench, m := newRig(t, testConfig())
	mustWrite(t, m, motorKey, 0x00, 0x40)
	bench.Run(10)

	mustWrite(t, m, resetKey)
	mustWrite(t, m, controlKey)
	mustWrite(t, m, motorKey)
	bench.Run(10_000 / 100)

	s := c.Stats()
	if s.Resets != 0 {
		t.Errorf("Expected no reset, got %d", s.Resets)
	}
	if c.control.enabled {
		t.Error("Expected the control loop to stay disabled")
	}
	if c.Motor(0).Speed() != 0x40 || c.Motor(1).Speed() != 0 {
		t.Errorf("Expected motor speeds 64 and 0, got %d %d", c.Motor(0).Speed(), c.Motor(1).Speed())
	}
	if s.Dispatch.EmptyWrites != 3 || s.Dispatch.Writes != 1 {
		t.Errorf("Expected 3 empty writes and 1 write, got %+v", s.Dispatch)
	}
}

func TestControlLoop(t *testing.T) {
	c, bench, m := newRig(t, testConfig())

	if err := m.WriteInt(controlKey+4, 2, 1<<OutShift); err != nil {
		t.Fatalf("WriteInt: %v", err)
	}
	if err := m.WriteInt(controlKey, 4, 100); err != nil {
		t.Fatalf("WriteInt: %v", err)
	}
	bench.Run(10_000 / 100)
	if c.Motor(0).Speed() != 100 || c.Motor(1).Speed() != 100 {
		t.Errorf("Expected both wheels at 100, got %d %d", c.Motor(0).Speed(), c.Motor(1).Speed())
	}

	if err := m.WriteInt(controlKey+1, 4, 20); err != nil {
		t.Fatalf("WriteInt: %v", err)
	}
	bench.Run(10_000 / 100)
	if c.Motor(0).Speed() != 80 || c.Motor(1).Speed() != 120 {
		t.Errorf("Expected wheels at 80 and 120, got %d %d", c.Motor(0).Speed(), c.Motor(1).Speed())
	}

	if err := m.Pulse(resetKey); err != nil {
		t.Fatalf("Pulse: %v", err)
	}
	bench.Run(10_000 / 100)
	if c.Motor(0).Speed() != 0 {
		t.Errorf("Expected reset to stop the loop, got %d", c.Motor(0).Speed())
	}
}

func TestAbortedFrames(t *testing.T) {
	c, bench, m := newRig(t, testConfig())

	// Write key only, write key and length without the value, read key
	// only, then a read cut after one of four value bytes
	for _, tx := range [][]byte{{0xF1}, {0xF1, 0x01}, {byte(magicKey)}, {byte(magicKey), 4, 0}} {
		if err := bench.Tx(tx, nil); err != nil {
			t.Fatalf("Tx: %v", err)
		}
	}
	if s := c.Stats(); s.Decoder.Aborted != 4 || s.Dispatch.Writes != 0 {
		t.Errorf("Expected 4 aborted frames and no writes, got %+v %+v", s.Decoder, s.Dispatch)
	}
	if c.Decoder().State() != protocol.StateReadKey {
		t.Errorf("Expected read_key after aborted frames, got %s", c.Decoder().State())
	}

	mustWrite(t, m, testWriteKey, 0x33)
	if got := mustRead(t, m, testReadKey, 1); got[0] != 0x33 {
		t.Errorf("Expected 0x33 after aborted frames, got %02X", got[0])
	}
}

func TestDictionary(t *testing.T) {
	c, _, _ := newRig(t, testConfig())
	table := c.Table()

	expected := 2*Odometers + Ports + 1 + 8 + 12 + 4 + Motors + Servos + 7
	if table.Len() != expected {
		t.Errorf("Expected %d registers, got %d", expected, table.Len())
	}
	e, ok := table.Find("motor3_speed")
	if !ok || e.Key != 0x93 {
		t.Errorf("Expected motor3_speed at 0x93, got %+v", e)
	}
	if e.Describe() != "0x93 motor3_speed i11 w" {
		t.Errorf("Unexpected dictionary line %q", e.Describe())
	}
}
