package core

import (
	"bytes"
	"errors"
	"testing"

	"hailfire/protocol"
)

type testRegisters struct {
	motor  int16
	green  bool
	u16    uint16
	i32    int32
	pulses int
}

func newTestDispatcher(t *testing.T, opts ...DispatchOption) (*Dispatcher, *testRegisters) {
	t.Helper()
	r := &testRegisters{}
	table, err := NewTable(
		ConstReg(0x42, "magic", 32, 0xDEADC0DE),
		SignedReg(0x91, "motor1_speed", 11, func() int16 { return r.motor }, func(v int16) { r.motor = v }).AsWriteOnly(),
		BoolReg(0x82, "led_green", nil, func(v bool) { r.green = v }),
		UnsignedReg(0xF2, "test_u16", 16, nil, func(v uint16) { r.u16 = v }),
		UnsignedReg(0x72, "test_u16", 16, func() uint16 { return r.u16 }, nil),
		SignedReg(0x76, "test_i32", 32, func() int32 { return r.i32 }, nil),
		PulseReg(0x81, "reset", func() { r.pulses++ }),
	)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return NewDispatcher(table, opts...), r
}

func read(d *Dispatcher, key protocol.Key, length int) []byte {
	buf := make([]byte, length)
	d.ReadRequest(key, buf)
	return buf
}

func TestDispatchReadScenarios(t *testing.T) {
	d, r := newTestDispatcher(t)
	r.i32 = -2

	testCases := []struct {
		name     string
		key      protocol.Key
		length   int
		expected []byte
	}{
		{"exact width", 0x42, 4, []byte{0xDE, 0xAD, 0xC0, 0xDE}},
		{"padded", 0x42, 6, []byte{0x00, 0x00, 0xDE, 0xAD, 0xC0, 0xDE}},
		{"truncated", 0x42, 2, []byte{0xC0, 0xDE}},
		{"unknown key", 0x99, 2, []byte{0xF0, 0x0D}},
		{"unknown key full sentinel", 0x10, 8, []byte{0xDE, 0xAD, 0xBE, 0xEF, 0xBA, 0xAD, 0xF0, 0x0D}},
		{"unknown key beyond sentinel", 0x10, 9, []byte{0x00, 0xDE, 0xAD, 0xBE, 0xEF, 0xBA, 0xAD, 0xF0, 0x0D}},
		{"write-only key", 0x91, 2, []byte{0xF0, 0x0D}},
		{"negative value", 0x76, 4, []byte{0xFF, 0xFF, 0xFF, 0xFE}},
	}

	for _, tc := range testCases {
		if got := read(d, tc.key, tc.length); !bytes.Equal(got, tc.expected) {
			t.Errorf("%s: expected % X, got % X", tc.name, tc.expected, got)
		}
	}

	c := d.Counters()
	if c.Reads != 4 || c.SentinelReads != 4 {
		t.Errorf("Expected 4 reads and 4 sentinel reads, got %+v", c)
	}
}

func TestDispatchWriteScenarios(t *testing.T) {
	d, r := newTestDispatcher(t)

	d.WriteComplete(0x91, []byte{0x00, 0x0A})
	if r.motor != 10 {
		t.Errorf("Expected motor speed +10, got %d", r.motor)
	}

	// 11-bit sign extension
	d.WriteComplete(0x91, []byte{0x07, 0xFF})
	if r.motor != -1 {
		t.Errorf("Expected motor speed -1, got %d", r.motor)
	}
	d.WriteComplete(0x91, []byte{0x04, 0x00})
	if r.motor != -1024 {
		t.Errorf("Expected motor speed -1024, got %d", r.motor)
	}

	d.WriteComplete(0x82, []byte{0x01})
	if !r.green {
		t.Error("Expected green LED on")
	}

	// Longer than the register: truncated to the width
	d.WriteComplete(0xF2, []byte{0x12, 0x34, 0x56, 0x78})
	if r.u16 != 0x5678 {
		t.Errorf("Expected 0x5678, got 0x%04X", r.u16)
	}

	d.WriteComplete(0x81, []byte{0x01})
	if r.pulses != 1 {
		t.Errorf("Expected 1 reset pulse, got %d", r.pulses)
	}
}

func TestDispatchEmptyWrites(t *testing.T) {
	d, r := newTestDispatcher(t)
	r.motor = 12

	d.WriteComplete(0x81, nil)
	d.WriteComplete(0x91, []byte{})
	d.WriteComplete(0xEE, nil)

	if r.pulses != 0 {
		t.Errorf("Expected no reset pulse, got %d", r.pulses)
	}
	if r.motor != 12 {
		t.Errorf("Expected motor speed unchanged, got %d", r.motor)
	}
	if c := d.Counters(); c.EmptyWrites != 3 || c.Writes != 0 || c.DiscardedWrites != 0 {
		t.Errorf("Expected 3 empty writes only, got %+v", c)
	}
}

func TestDispatchDiscardedWrites(t *testing.T) {
	d, r := newTestDispatcher(t)
	r.u16 = 7

	d.WriteComplete(0xEE, []byte{0x01})
	d.WriteComplete(0x72, []byte{0x00, 0x09}) // read-only key

	if r.u16 != 7 {
		t.Errorf("Expected read-only register unchanged, got %d", r.u16)
	}
	if c := d.Counters(); c.DiscardedWrites != 2 || c.Writes != 0 {
		t.Errorf("Expected 2 discarded writes, got %+v", c)
	}
}

func TestDispatchShortWriteMerge(t *testing.T) {
	d, r := newTestDispatcher(t)
	r.motor = 0x300

	d.WriteComplete(0x91, []byte{0x05})
	if r.motor != 0x305 {
		t.Errorf("Expected merged value 0x305, got 0x%X", r.motor)
	}

	// No getter: high bytes are cleared
	r.u16 = 0xAB00
	d.WriteComplete(0xF2, []byte{0x11})
	if r.u16 != 0x0011 {
		t.Errorf("Expected 0x0011, got 0x%04X", r.u16)
	}
	if c := d.Counters(); c.ShortWrites != 2 {
		t.Errorf("Expected 2 short writes, got %d", c.ShortWrites)
	}
}

func TestDispatchShortWriteZeroFill(t *testing.T) {
	d, r := newTestDispatcher(t, WithShortWritePolicy(ShortWriteZeroFill))
	r.motor = 0x300

	d.WriteComplete(0x91, []byte{0x05})
	if r.motor != 0x005 {
		t.Errorf("Expected zero-filled value 5, got 0x%X", r.motor)
	}
}

func TestDispatchTrace(t *testing.T) {
	var now uint32 = 100
	trace := NewTrace(func() uint32 { return now })
	d, _ := newTestDispatcher(t, WithTrace(trace))

	read(d, 0x42, 4)
	now = 200
	d.WriteComplete(0xEE, []byte{1})

	events := trace.Events()
	if len(events) != 2 {
		t.Fatalf("Expected 2 trace events, got %d", len(events))
	}
	if events[0].Kind != TraceRead || events[0].Tick != 100 || events[0].Length != 4 {
		t.Errorf("Unexpected first event %+v", events[0])
	}
	if events[1].Kind != TraceDiscardWrite || events[1].Key != 0xEE || events[1].Tick != 200 {
		t.Errorf("Unexpected second event %+v", events[1])
	}
}

func TestParseShortWritePolicy(t *testing.T) {
	for _, tc := range []struct {
		in       string
		expected ShortWritePolicy
	}{{"", ShortWriteMerge}, {"merge", ShortWriteMerge}, {"zero_fill", ShortWriteZeroFill}} {
		p, err := ParseShortWritePolicy(tc.in)
		if err != nil || p != tc.expected {
			t.Errorf("%q: expected %s, got %s (%v)", tc.in, tc.expected, p, err)
		}
	}
	if _, err := ParseShortWritePolicy("pad"); err == nil {
		t.Error("Expected error for unknown policy")
	}
}

func TestNewTableErrors(t *testing.T) {
	set := func(uint8) {}
	get := func() uint8 { return 0 }

	testCases := []struct {
		name    string
		entries []Entry
		err     error
	}{
		{"duplicate", []Entry{ConstReg(0x42, "a", 8, 1), ConstReg(0x42, "b", 8, 2)}, ErrDuplicateKey},
		{"too wide", []Entry{ConstReg(0x42, "a", 65, 1)}, ErrRegisterWidth},
		{"read key writable only", []Entry{UnsignedReg(0x12, "a", 8, nil, set)}, ErrDirectionFlags},
		{"write key readable only", []Entry{UnsignedReg(0x92, "a", 8, get, nil)}, ErrDirectionFlags},
		{"no accessors", []Entry{{Key: 0x13, Name: "a", Width: 8}}, ErrMissingAccess},
	}

	for _, tc := range testCases {
		if _, err := NewTable(tc.entries...); !errors.Is(err, tc.err) {
			t.Errorf("%s: expected %v, got %v", tc.name, tc.err, err)
		}
	}
}

func TestTableLookupAndDictionary(t *testing.T) {
	d, _ := newTestDispatcher(t)
	table := d.Table()

	if table.Len() != 7 {
		t.Errorf("Expected 7 registers, got %d", table.Len())
	}
	e, ok := table.Lookup(0x91)
	if !ok || e.Name != "motor1_speed" || e.Bytes() != 2 {
		t.Errorf("Unexpected lookup result %+v (ok=%v)", e, ok)
	}
	if _, ok := table.Lookup(0x99); ok {
		t.Error("Expected no entry for 0x99")
	}

	entries := table.Entries()
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Key >= entries[i].Key {
			t.Errorf("Entries not ordered by key at %d", i)
		}
	}

	if line := entries[0].Describe(); line != "0x42 magic u32 r" {
		t.Errorf("Unexpected dictionary line %q", line)
	}
}
