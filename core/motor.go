package core

// Motor driver constants. The PWM period is 1024 controller ticks and the
// speed register is 11-bit signed.
const (
	MotorPeriod   = 1024
	MotorDutyMax  = MotorPeriod - 1
	MotorSpeedMin = -1024
	MotorSpeedMax = 1023
)

// Motor turns a signed speed consign into a PWM duty cycle and a
// direction. A new consign takes effect at the next period start.
type Motor struct {
	speed       int16
	duty        uint16
	forward     bool
	optocoupled bool

	pwm    PWMDriver
	pwmPin PWMPin
	pwmMax uint32
	dir    OutputPin
}

// NewMotor creates a motor driver. With optocoupled set every output is
// inverted.
func NewMotor(optocoupled bool) *Motor {
	return &Motor{forward: true, optocoupled: optocoupled}
}

// Attach binds the motor to a hardware PWM channel and a direction pin
func (m *Motor) Attach(pwm PWMDriver, pwmPin PWMPin, gpio GPIODriver, dirPin GPIOPin) error {
	if _, err := pwm.ConfigureHardwarePWM(pwmPin, MotorPeriod); err != nil {
		return err
	}
	dir, err := NewOutputPin(gpio, dirPin, m.optocoupled)
	if err != nil {
		return err
	}
	m.pwm, m.pwmPin, m.pwmMax, m.dir = pwm, pwmPin, pwm.GetMaxValue(), dir
	m.dir.Set(m.forward)
	m.apply()
	return nil
}

// SetSpeed sets the consign, clamped to the 11-bit range
func (m *Motor) SetSpeed(v int16) {
	m.speed = clamp(v, MotorSpeedMin, MotorSpeedMax)
}

func (m *Motor) Speed() int16  { return m.speed }
func (m *Motor) Duty() uint16  { return m.duty }
func (m *Motor) Forward() bool { return m.forward }

// Latch runs at each period start and loads the consign
func (m *Motor) Latch() {
	switch {
	case m.speed >= 0:
		m.duty, m.forward = uint16(m.speed), true
	case -int32(m.speed) >= MotorDutyMax:
		// -1024 has no positive counterpart in 10 bits
		m.duty, m.forward = MotorDutyMax, false
	default:
		m.duty, m.forward = uint16(-m.speed), false
	}
	m.dir.Set(m.forward)
	m.apply()
}

// Output returns the PWM and direction pin levels at a phase of the
// period, after optocoupler inversion
func (m *Motor) Output(phase uint32) (pwm, dir bool) {
	pwm = phase%MotorPeriod < uint32(m.duty)
	return pwm != m.optocoupled, m.forward != m.optocoupled
}

// Reset stops the output until the next period start
func (m *Motor) Reset() {
	m.duty, m.forward = 0, true
	m.dir.Set(true)
	m.apply()
}

func (m *Motor) apply() {
	if m.pwm == nil {
		return
	}
	v := uint32(m.duty) * m.pwmMax / MotorDutyMax
	if m.optocoupled {
		v = m.pwmMax - v
	}
	_ = m.pwm.SetDutyCycle(m.pwmPin, PWMValue(v))
}
