package core

// PWMPin identifies a hardware pin capable of PWM output
type PWMPin uint32

// PWMValue is the duty cycle value (0 to GetMaxValue)
type PWMValue uint32

// PWMDriver is the hardware PWM a target provides for the motor drivers
type PWMDriver interface {
	// ConfigureHardwarePWM configures a pin for hardware PWM output.
	// cycleTicks is the period in controller ticks; the actual period used
	// is returned.
	ConfigureHardwarePWM(pin PWMPin, cycleTicks uint32) (uint32, error)

	// SetDutyCycle sets the PWM duty cycle for a pin
	SetDutyCycle(pin PWMPin, value PWMValue) error

	// GetMaxValue returns the duty value meaning fully on
	GetMaxValue() uint32
}
