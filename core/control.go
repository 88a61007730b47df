package core

import "math"

// Filter is one stage of a control loop, stepped once per control period
type Filter interface {
	Step(in int32) int32
	Reset()
}

// Identity passes its input through unchanged
type Identity struct{}

func (Identity) Step(in int32) int32 { return in }
func (Identity) Reset()              {}

// Ramp keeps its output continuous: per step it rises by at most Rise and
// falls by at most Fall. A zero limit means unlimited.
type Ramp struct {
	Rise, Fall int32
	out        int32
}

func (r *Ramp) Step(in int32) int32 {
	delta := int64(in) - int64(r.out)
	if r.Rise > 0 && delta > int64(r.Rise) {
		delta = int64(r.Rise)
	}
	if r.Fall > 0 && delta < -int64(r.Fall) {
		delta = -int64(r.Fall)
	}
	r.out = int32(int64(r.out) + delta)
	return r.out
}

func (r *Ramp) Reset() { r.out = 0 }

// PID is a proportional, integral, derivative filter. The integral and
// derivative terms saturate at MaxI and MaxD, the weighted sum is shifted
// right by Shift and the result is clamped to [Min, Max].
type PID struct {
	P, I, D    int32
	Shift      uint8
	MaxI, MaxD int64
	Min, Max   int32

	integral   int64
	derivative int64
	prev       int32
}

// NewPID returns a PID with the given output range and saturation limits
// matching it
func NewPID(shift uint8, lo, hi int32) *PID {
	return &PID{
		Shift: shift,
		MaxI:  math.MaxInt32,
		MaxD:  math.MaxInt32,
		Min:   lo,
		Max:   hi,
	}
}

func (p *PID) Step(in int32) int32 {
	p.integral = clamp(p.integral+int64(in), -p.MaxI, p.MaxI-1)
	p.derivative = clamp(int64(in)-int64(p.prev), -p.MaxD, p.MaxD-1)
	p.prev = in
	sum := int64(in)*int64(p.P) + p.integral*int64(p.I) + p.derivative*int64(p.D)
	return int32(clamp(sum>>p.Shift, int64(p.Min), int64(p.Max)))
}

func (p *PID) Reset() {
	p.integral, p.derivative, p.prev = 0, 0, 0
}

// Loop is a closed loop: the filtered consign minus the filtered process
// output feeds the correction filter, whose output drives the process.
type Loop struct {
	Consign  Filter
	Correct  Filter
	Feedback Filter
}

// Step runs one control period and returns the process input
func (l *Loop) Step(consign, processOutput int32) int32 {
	return l.Correct.Step(l.Consign.Step(consign) - l.Feedback.Step(processOutput))
}

func (l *Loop) Reset() {
	l.Consign.Reset()
	l.Correct.Reset()
	l.Feedback.Reset()
}

// PolarToWheels converts (angle, distance) to differential wheel values
func PolarToWheels(angle, distance int32) (left, right int32) {
	return distance - angle, distance + angle
}

// WheelsToPolar converts differential wheel values to (angle, distance)
func WheelsToPolar(left, right int32) (angle, distance int32) {
	return (right - left) >> 1, (right + left) >> 1
}
