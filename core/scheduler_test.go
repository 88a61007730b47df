package core

import "testing"

func TestSchedulerOrder(t *testing.T) {
	var s Scheduler
	var fired []uint32
	record := func(tm *Timer) uint8 {
		fired = append(fired, tm.WakeTime)
		return TimerDone
	}

	s.Schedule(&Timer{WakeTime: 30, Handler: record})
	s.Schedule(&Timer{WakeTime: 10, Handler: record})
	s.Schedule(&Timer{WakeTime: 20, Handler: record})

	s.Advance(15)
	if len(fired) != 1 || fired[0] != 10 {
		t.Errorf("Expected [10] at t=15, got %v", fired)
	}

	s.Advance(30)
	if len(fired) != 3 || fired[1] != 20 || fired[2] != 30 {
		t.Errorf("Expected [10 20 30], got %v", fired)
	}
	if s.Pending() != 0 {
		t.Errorf("Expected no pending timers, got %d", s.Pending())
	}
}

func TestSchedulerPeriodic(t *testing.T) {
	var s Scheduler
	var calls []uint32
	s.Schedule(Periodic(5, 10, func(now uint32) { calls = append(calls, now) }))

	for now := uint32(0); now <= 40; now++ {
		s.Advance(now)
	}

	expected := []uint32{5, 15, 25, 35}
	if len(calls) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, calls)
	}
	for i := range expected {
		if calls[i] != expected[i] {
			t.Errorf("Call %d: expected %d, got %d", i, expected[i], calls[i])
		}
	}
}

func TestSchedulerWraparound(t *testing.T) {
	var s Scheduler
	fired := false
	s.Advance(0xFFFFFFF0)
	s.Schedule(&Timer{WakeTime: 0x10, Handler: func(*Timer) uint8 { fired = true; return TimerDone }})

	s.Advance(0xFFFFFFFF)
	if fired {
		t.Error("Timer fired before the clock wrapped")
	}
	s.Advance(0x10)
	if !fired {
		t.Error("Timer did not fire after the clock wrapped")
	}
}

func TestSchedulerCancelAndReschedule(t *testing.T) {
	var s Scheduler
	count := 0
	tm := &Timer{WakeTime: 10, Handler: func(*Timer) uint8 { count++; return TimerDone }}

	s.Schedule(tm)
	tm.WakeTime = 50
	s.Schedule(tm)
	if s.Pending() != 1 {
		t.Errorf("Expected rescheduling to keep one entry, got %d", s.Pending())
	}

	s.Advance(20)
	if count != 0 {
		t.Error("Expected the moved timer not to fire at t=20")
	}

	s.Cancel(tm)
	s.Advance(60)
	if count != 0 {
		t.Error("Expected a cancelled timer not to fire")
	}
}
