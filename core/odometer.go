package core

// Odometer counts quadrature encoder steps with a x4 decoder: every edge
// of either channel is one step. The count wraps at 32 bits.
type Odometer struct {
	count int32
	speed int32
	last  int32
	prevA bool
	prevB bool
}

// Sample feeds the current channel levels; call it faster than the
// encoder can produce edges
func (o *Odometer) Sample(a, b bool) {
	if (a != o.prevA) != (b != o.prevB) {
		if a != o.prevB {
			o.count++
		} else {
			o.count--
		}
	}
	o.prevA, o.prevB = a, b
}

// SampleSpeed records the steps counted since the previous call
func (o *Odometer) SampleSpeed() {
	o.speed = o.count - o.last
	o.last = o.count
}

func (o *Odometer) Count() int32 { return o.count }
func (o *Odometer) Speed() int32 { return o.speed }

// Reset clears the count and speed; the channel history is kept
func (o *Odometer) Reset() {
	o.count, o.speed, o.last = 0, 0, 0
}

// PolarOdometer derives distance and angle from a left and right wheel
type PolarOdometer struct {
	Left, Right *Odometer
}

// Distance is the mean of the wheel counts
func (p PolarOdometer) Distance() int32 { return (p.Right.Count() + p.Left.Count()) >> 1 }

// Angle is half the difference of the wheel counts
func (p PolarOdometer) Angle() int32 { return (p.Right.Count() - p.Left.Count()) >> 1 }

func (p PolarOdometer) DistanceSpeed() int32 { return (p.Right.Speed() + p.Left.Speed()) >> 1 }
func (p PolarOdometer) AngleSpeed() int32    { return (p.Right.Speed() - p.Left.Speed()) >> 1 }
