package core

// Timer is an event scheduled on the controller clock
type Timer struct {
	WakeTime uint32
	Handler  func(*Timer) uint8
	next     *Timer
	queued   bool
}

// Handler results
const (
	TimerDone       = 0
	TimerReschedule = 1 // handler advanced WakeTime; queue it again
)

// Scheduler runs timers in wake time order. Time is a wrapping tick
// counter; wake times within half the counter range of now compare
// correctly across the wrap.
type Scheduler struct {
	list *Timer
	now  uint32
}

// timeBefore reports whether a comes before b on the wrapping clock
func timeBefore(a, b uint32) bool {
	return int32(a-b) < 0
}

// Now returns the time of the last Advance
func (s *Scheduler) Now() uint32 { return s.now }

// Schedule queues t; a timer already queued is moved to its new wake time
func (s *Scheduler) Schedule(t *Timer) {
	if t.queued {
		s.Cancel(t)
	}
	s.insert(t)
}

func (s *Scheduler) insert(t *Timer) {
	t.queued = true
	if s.list == nil || timeBefore(t.WakeTime, s.list.WakeTime) {
		t.next = s.list
		s.list = t
		return
	}
	cur := s.list
	for cur.next != nil && !timeBefore(t.WakeTime, cur.next.WakeTime) {
		cur = cur.next
	}
	t.next = cur.next
	cur.next = t
}

// Cancel removes t from the queue
func (s *Scheduler) Cancel(t *Timer) {
	for p := &s.list; *p != nil; p = &(*p).next {
		if *p == t {
			*p = t.next
			break
		}
	}
	t.next = nil
	t.queued = false
}

// Advance moves the clock to now and runs every timer that is due
func (s *Scheduler) Advance(now uint32) {
	s.now = now
	for s.list != nil && !timeBefore(now, s.list.WakeTime) {
		t := s.list
		s.list = t.next
		t.next = nil
		t.queued = false
		if t.Handler(t) == TimerReschedule {
			s.insert(t)
		}
	}
}

// Pending returns the number of queued timers
func (s *Scheduler) Pending() int {
	n := 0
	for t := s.list; t != nil; t = t.next {
		n++
	}
	return n
}

// Periodic returns a timer calling fn every period ticks, first at start
func Periodic(start, period uint32, fn func(now uint32)) *Timer {
	return &Timer{
		WakeTime: start,
		Handler: func(t *Timer) uint8 {
			fn(t.WakeTime)
			t.WakeTime += period
			return TimerReschedule
		},
	}
}
