package controller

import (
	"math"

	"hailfire/core"
)

// OutShift scales the PID gains: a gain of 1<<OutShift is 1.0
const OutShift = 4

// controlSystem runs the polar position loops on odometers 1 and 2 and
// drives motors 1 and 2. It starts disabled and is enabled by the first
// consign write; a reset disables it again.
type controlSystem struct {
	enabled bool

	distance, angle int32
	rise, fall      uint16
	p, i, d         int16

	distanceRamp, angleRamp core.Ramp
	distancePID, anglePID   *core.PID
	distanceLoop, angleLoop core.Loop
}

func (cs *controlSystem) init() {
	cs.distancePID = core.NewPID(OutShift, core.MotorSpeedMin, core.MotorSpeedMax)
	cs.anglePID = core.NewPID(OutShift, core.MotorSpeedMin, core.MotorSpeedMax)
	cs.distanceLoop = core.Loop{Consign: &cs.distanceRamp, Correct: cs.distancePID, Feedback: core.Identity{}}
	cs.angleLoop = core.Loop{Consign: &cs.angleRamp, Correct: cs.anglePID, Feedback: core.Identity{}}
	cs.apply()
}

// apply copies the register values into the filters
func (cs *controlSystem) apply() {
	for _, r := range []*core.Ramp{&cs.distanceRamp, &cs.angleRamp} {
		r.Rise, r.Fall = int32(cs.rise), int32(cs.fall)
	}
	for _, pid := range []*core.PID{cs.distancePID, cs.anglePID} {
		pid.P, pid.I, pid.D = int32(cs.p), int32(cs.i), int32(cs.d)
	}
}

func (cs *controlSystem) reset() {
	cs.enabled = false
	cs.distance, cs.angle = 0, 0
	cs.distanceLoop.Reset()
	cs.angleLoop.Reset()
}

// step runs both loops and returns the left and right motor speeds
func (cs *controlSystem) step(polar core.PolarOdometer) (left, right int16) {
	d := cs.distanceLoop.Step(cs.distance, polar.Distance())
	a := cs.angleLoop.Step(cs.angle, polar.Angle())
	l, r := core.PolarToWheels(a, d)
	return saturate(l), saturate(r)
}

func saturate(v int32) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < math.MinInt16:
		return math.MinInt16
	}
	return int16(v)
}

func (cs *controlSystem) registers() []core.Entry {
	setDistance := func(v int32) { cs.distance, cs.enabled = v, true }
	setAngle := func(v int32) { cs.angle, cs.enabled = v, true }
	setU16 := func(dst *uint16) func(uint16) {
		return func(v uint16) {
			*dst = v
			cs.apply()
		}
	}
	setI16 := func(dst *int16) func(int16) {
		return func(v int16) {
			*dst = v
			cs.apply()
		}
	}
	getU16 := func(src *uint16) func() uint16 { return func() uint16 { return *src } }
	getI16 := func(src *int16) func() int16 { return func() int16 { return *src } }

	return []core.Entry{
		core.SignedReg(controlKey+0, "distance_consign", 32, func() int32 { return cs.distance }, setDistance).AsWriteOnly(),
		core.SignedReg(controlKey+1, "angle_consign", 32, func() int32 { return cs.angle }, setAngle).AsWriteOnly(),
		core.UnsignedReg(controlKey+2, "ramp_rise", 16, getU16(&cs.rise), setU16(&cs.rise)).AsWriteOnly(),
		core.UnsignedReg(controlKey+3, "ramp_fall", 16, getU16(&cs.fall), setU16(&cs.fall)).AsWriteOnly(),
		core.SignedReg(controlKey+4, "pid_p", 16, getI16(&cs.p), setI16(&cs.p)).AsWriteOnly(),
		core.SignedReg(controlKey+5, "pid_i", 16, getI16(&cs.i), setI16(&cs.i)).AsWriteOnly(),
		core.SignedReg(controlKey+6, "pid_d", 16, getI16(&cs.d), setI16(&cs.d)).AsWriteOnly(),
	}
}
