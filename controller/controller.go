package controller

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"tinygo.org/x/drivers"

	"hailfire/core"
	"hailfire/protocol"
)

// Peripheral counts
const (
	Odometers = 6
	Ports     = 7
	Motors    = 8
	Servos    = 8
)

var ErrConfig = errors.New("invalid controller configuration")

// Config holds the controller settings. Rates are in Hz of the controller
// clock, which advances one tick per call to Tick.
type Config struct {
	Mode          protocol.Mode
	WordWidth     uint8
	MaxLength     int
	WatchdogTicks uint32
	ShortWrite    core.ShortWritePolicy

	Optocoupled bool
	ClockHz     uint32
	LEDBlinkHz  uint32
	ADCReadHz   uint32
	ControlHz   uint32
}

// DefaultConfig returns the settings of the robot board: a 25 MHz clock,
// an 8-bit mode 1 link and a 1 Hz heartbeat
func DefaultConfig() Config {
	return Config{
		Mode:       protocol.Mode1,
		WordWidth:  protocol.WordWidth,
		MaxLength:  protocol.MaxLength,
		ShortWrite: core.ShortWriteMerge,
		ClockHz:    25_000_000,
		LEDBlinkHz: 1,
		ADCReadHz:  100,
		ControlHz:  100,
	}
}

// Validate checks the word width and that the clock is fast enough for
// every rate
func (c Config) Validate() error {
	_, _, _, _, err := c.periods()
	return err
}

func (c Config) periods() (servo, led, adc, control uint32, err error) {
	switch {
	case c.WordWidth != protocol.WordWidth:
		return 0, 0, 0, 0, fmt.Errorf("%w: word width %d, frames use %d-bit words", ErrConfig, c.WordWidth, protocol.WordWidth)
	case c.LEDBlinkHz == 0 || c.ADCReadHz == 0 || c.ControlHz == 0:
		return 0, 0, 0, 0, fmt.Errorf("%w: rates must be non-zero", ErrConfig)
	case c.ClockHz < 2*c.LEDBlinkHz || c.ClockHz < 8*c.ADCReadHz || c.ClockHz < c.ControlHz || c.ClockHz < core.ServoFrameHz:
		return 0, 0, 0, 0, fmt.Errorf("%w: clock %d Hz too slow for the configured rates", ErrConfig, c.ClockHz)
	}
	return c.ClockHz / core.ServoFrameHz,
		c.ClockHz / (2 * c.LEDBlinkHz),
		c.ClockHz / (8 * c.ADCReadHz),
		c.ClockHz / c.ControlHz,
		nil
}

// Stats gathers the diagnostic counters of the link and the controller
type Stats struct {
	Decoder   protocol.DecoderStats
	Dispatch  core.Counters
	Resets    uint32
	ADCErrors uint32
}

// Controller is the robot I/O board: the slave link, the register
// dispatcher and the peripherals the registers map to. Link edges go to
// Engine() from the pin side; everything else runs from Tick.
type Controller struct {
	cfg Config
	log zerolog.Logger
	now uint32

	engine   *protocol.Engine
	decoder  *protocol.Decoder
	dispatch *core.Dispatcher
	trace    *core.Trace
	sched    core.Scheduler
	timers   []periodic
	reset    core.ResetLine

	odometers [Odometers]core.Odometer
	encoders  [Odometers][2]bool
	ports     [Ports]core.InputPort
	motors    [Motors]*core.Motor
	servos    [Servos]*core.Servo
	leds      core.LEDs
	adc       *core.MCP3008
	control   controlSystem
	test      testRegisters

	motorStart uint32
	servoStart uint32
}

type periodic struct {
	timer  *core.Timer
	period uint32
}

// Option configures a Controller
type Option func(*Controller)

func WithLogger(log zerolog.Logger) Option {
	return func(c *Controller) { c.log = log }
}

// WithADC polls an MCP3008 on bus for the ADC registers
func WithADC(bus drivers.SPI) Option {
	return func(c *Controller) { c.adc = core.NewMCP3008(bus) }
}

// New builds a controller
func New(cfg Config, opts ...Option) (*Controller, error) {
	servoPeriod, ledPeriod, adcPeriod, controlPeriod, err := cfg.periods()
	if err != nil {
		return nil, err
	}

	c := &Controller{cfg: cfg, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(c)
	}

	c.engine, err = protocol.NewEngine(cfg.WordWidth, cfg.Mode)
	if err != nil {
		return nil, fmt.Errorf("link engine: %w", err)
	}
	for i := range c.motors {
		c.motors[i] = core.NewMotor(cfg.Optocoupled)
	}
	for i := range c.servos {
		c.servos[i] = core.NewServo(cfg.Optocoupled)
	}
	c.control.init()

	table, err := core.NewTable(c.registers()...)
	if err != nil {
		return nil, fmt.Errorf("register table: %w", err)
	}
	c.trace = core.NewTrace(func() uint32 { return c.now })
	c.dispatch = core.NewDispatcher(table,
		core.WithShortWritePolicy(cfg.ShortWrite),
		core.WithTrace(c.trace),
		core.WithLogger(c.log),
	)

	decoderOpts := []protocol.DecoderOption{protocol.WithWatchdog(cfg.WatchdogTicks)}
	if cfg.MaxLength > 0 {
		decoderOpts = append(decoderOpts, protocol.WithCapacity(cfg.MaxLength))
	}
	c.decoder = protocol.NewDecoder(c.engine, c.dispatch, decoderOpts...)

	c.every(core.MotorPeriod, c.latchMotors)
	c.every(servoPeriod, c.latchServos)
	c.every(ledPeriod, func(uint32) { c.leds.Toggle() })
	c.every(controlPeriod, c.controlStep)
	if c.adc != nil {
		c.every(adcPeriod, c.pollADC)
	}

	c.log.Info().
		Str("mode", cfg.Mode.String()).
		Uint8("word_width", cfg.WordWidth).
		Int("registers", table.Len()).
		Uint32("clock_hz", cfg.ClockHz).
		Msg("controller ready")
	return c, nil
}

func (c *Controller) every(period uint32, fn func(now uint32)) {
	t := core.Periodic(c.now, period, fn)
	c.timers = append(c.timers, periodic{timer: t, period: period})
	c.sched.Schedule(t)
}

// Engine returns the link engine the pin-level driver feeds
func (c *Controller) Engine() *protocol.Engine { return c.engine }

// Decoder returns the frame decoder
func (c *Controller) Decoder() *protocol.Decoder { return c.decoder }

// Table returns the register table
func (c *Controller) Table() *core.Table { return c.dispatch.Table() }

// Trace returns the link event trace
func (c *Controller) Trace() *core.Trace { return c.trace }

// Now returns the controller clock
func (c *Controller) Now() uint32 { return c.now }

// Stats returns a snapshot of the diagnostic counters
func (c *Controller) Stats() Stats {
	s := Stats{
		Decoder:  c.decoder.Stats(),
		Dispatch: c.dispatch.Counters(),
		Resets:   c.reset.Pulses(),
	}
	if c.adc != nil {
		s.ADCErrors = c.adc.Errors()
	}
	return s
}

// Tick advances the controller clock by one
func (c *Controller) Tick() { c.TickAt(c.now + 1) }

// TickAt runs the controller at time now: one decoder step, the reset
// pulse, encoder sampling and every timer that is due
func (c *Controller) TickAt(now uint32) {
	c.now = now

	state := core.DisableInterrupts()
	c.decoder.Tick()
	core.RestoreInterrupts(state)

	if c.reset.Poll() {
		c.resetPeripherals()
	}
	for i := range c.odometers {
		c.odometers[i].Sample(c.encoders[i][0], c.encoders[i][1])
	}
	c.sched.Advance(now)
}

func (c *Controller) resetPeripherals() {
	c.trace.Record(core.TraceReset, resetKey, 0)
	for i := range c.odometers {
		c.odometers[i].Reset()
	}
	for _, m := range c.motors {
		m.SetSpeed(0)
		m.Reset()
	}
	for _, s := range c.servos {
		s.Reset()
	}
	c.leds.Reset()
	if c.adc != nil {
		c.adc.Reset()
	}
	c.control.reset()

	// Restart every period from the reset tick
	for _, p := range c.timers {
		p.timer.WakeTime = c.now + p.period
		c.sched.Schedule(p.timer)
	}
	c.motorStart, c.servoStart = c.now, c.now
	c.log.Debug().Uint32("tick", c.now).Msg("reset pulse")
}

func (c *Controller) latchMotors(now uint32) {
	c.motorStart = now
	for _, m := range c.motors {
		m.Latch()
	}
}

func (c *Controller) latchServos(now uint32) {
	c.servoStart = now
	for _, s := range c.servos {
		s.Latch()
	}
}

func (c *Controller) pollADC(uint32) {
	if err := c.adc.Poll(); err != nil {
		c.log.Debug().Err(err).Msg("adc poll failed")
	}
}

func (c *Controller) controlStep(uint32) {
	for i := range c.odometers {
		c.odometers[i].SampleSpeed()
	}
	for i := range c.ports {
		c.ports[i].Sample()
	}
	if !c.control.enabled {
		return
	}
	polar := core.PolarOdometer{Left: &c.odometers[0], Right: &c.odometers[1]}
	left, right := c.control.step(polar)
	c.motors[0].SetSpeed(left)
	c.motors[1].SetSpeed(right)
}

// SetEncoder sets the channel levels of odometer i (0-based); they are
// sampled on every tick
func (c *Controller) SetEncoder(i int, a, b bool) {
	if i >= 0 && i < Odometers {
		c.encoders[i] = [2]bool{a, b}
	}
}

// Odometer returns odometer i (0-based)
func (c *Controller) Odometer(i int) *core.Odometer { return &c.odometers[i] }

// Port returns extension port i (0-based)
func (c *Controller) Port(i int) *core.InputPort { return &c.ports[i] }

// Motor returns motor i (0-based)
func (c *Controller) Motor(i int) *core.Motor { return c.motors[i] }

// Servo returns servo i (0-based)
func (c *Controller) Servo(i int) *core.Servo { return c.servos[i] }

// LEDs returns the indicator LEDs
func (c *Controller) LEDs() *core.LEDs { return &c.leds }

// ADC returns the MCP3008 poller, or nil without WithADC
func (c *Controller) ADC() *core.MCP3008 { return c.adc }

// MotorOutput returns the PWM and direction levels of motor i now
func (c *Controller) MotorOutput(i int) (pwm, dir bool) {
	return c.motors[i].Output(c.now - c.motorStart)
}

// ServoOutput returns the pulse level of servo i now
func (c *Controller) ServoOutput(i int) bool {
	return c.servos[i].Output(c.now - c.servoStart)
}

// DumpTrace logs the recent link events at debug level
func (c *Controller) DumpTrace() {
	c.trace.Dump(c.log)
}
