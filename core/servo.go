package core

// ServoFrameHz is the servo PWM frame rate
const ServoFrameHz = 50

// PulseOutput generates servo pulses in hardware. SetPulse is called at
// every frame start and emits one pulse of ticks controller ticks; zero
// emits nothing.
type PulseOutput interface {
	SetPulse(channel int, ticks uint16) error
}

// Servo holds a 16-bit pulse width consign in controller ticks. Zero
// disables the output. A new consign is accepted at the next frame start.
type Servo struct {
	consign     uint16
	duty        uint16
	optocoupled bool

	out     PulseOutput
	channel int
}

func NewServo(optocoupled bool) *Servo {
	return &Servo{optocoupled: optocoupled}
}

// Attach binds the servo to a hardware pulse channel
func (s *Servo) Attach(out PulseOutput, channel int) {
	s.out, s.channel = out, channel
	s.apply()
}

func (s *Servo) SetConsign(v uint16) { s.consign = v }
func (s *Servo) Consign() uint16     { return s.consign }
func (s *Servo) Duty() uint16        { return s.duty }

// Latch runs at each frame start: it loads the consign and arms the
// frame's pulse
func (s *Servo) Latch() {
	s.duty = s.consign
	s.apply()
}

// Output returns the pin level at a tick offset within the frame
func (s *Servo) Output(phase uint32) bool {
	return (phase < uint32(s.duty)) != s.optocoupled
}

// Reset silences the output until the next frame start
func (s *Servo) Reset() {
	s.duty = 0
	s.apply()
}

func (s *Servo) apply() {
	if s.out != nil {
		_ = s.out.SetPulse(s.channel, s.duty)
	}
}
