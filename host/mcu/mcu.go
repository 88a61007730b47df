package mcu

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"tinygo.org/x/drivers"

	"hailfire/controller"
	"hailfire/core"
	"hailfire/host/klv"
	"hailfire/host/serial"
	"hailfire/protocol"
)

var (
	ErrNotConnected    = errors.New("not connected to controller")
	ErrUnknownRegister = errors.New("unknown register")
	ErrNotReadable     = errors.New("register is write-only")
	ErrNotWritable     = errors.New("register is read-only")
	ErrBadMagic        = errors.New("unexpected identification value")
	ErrKeyMapMismatch  = errors.New("adapter dictionary differs from the host key map")
)

// MCU is a connection to the robot I/O controller. Registers are
// addressed by name through the controller key map.
type MCU struct {
	bus    drivers.SPI
	master *klv.Master
	table  *core.Table
	closer io.Closer
}

// Reading is the value of one register
type Reading struct {
	Entry *core.Entry
	Raw   uint64
	Value int64
}

func (r Reading) String() string {
	return fmt.Sprintf("0x%02X %-18s %d", uint8(r.Entry.Key), r.Entry.Name, r.Value)
}

// NewMCU wraps a bus that already reaches the controller
func NewMCU(bus drivers.SPI) *MCU {
	return &MCU{
		bus:    bus,
		master: klv.NewMaster(bus),
		table:  controller.KeyMap(),
	}
}

// Connect opens the USB bridge on cfg and checks the controller answers
func Connect(ctx context.Context, cfg serial.Config, timeout time.Duration) (*MCU, string, error) {
	bridge, err := serial.Dial(ctx, cfg, timeout)
	if err != nil {
		return nil, "", err
	}
	m, err := Attach(ctx, bridge)
	if err != nil {
		bridge.Close()
		return nil, "", err
	}
	return m, bridge.Identity(), nil
}

// Attach takes over a connected bridge: it checks the adapter dictionary,
// when there is one, against the host key map and pings the controller.
// Closing the MCU closes the bridge.
func Attach(ctx context.Context, bridge *serial.Bridge) (*MCU, error) {
	m := NewMCU(bridge)
	m.closer = bridge
	dict, err := bridge.Dictionary(ctx)
	if err != nil {
		return nil, err
	}
	if err := m.CheckDictionary(dict); err != nil {
		return nil, err
	}
	if err := m.Ping(); err != nil {
		return nil, err
	}
	return m, nil
}

// CheckDictionary compares a dictionary from the controller side with the
// host key map. An empty dictionary is accepted.
func (m *MCU) CheckDictionary(dict string) error {
	if dict == "" {
		return nil
	}
	local := strings.Split(m.table.Dictionary(), "\n")
	remote := strings.Split(dict, "\n")
	for i := range max(len(local), len(remote)) {
		var l, r string
		if i < len(local) {
			l = local[i]
		}
		if i < len(remote) {
			r = remote[i]
		}
		if l != r {
			return fmt.Errorf("%w: line %d: host %q, adapter %q", ErrKeyMapMismatch, i+1, l, r)
		}
	}
	return nil
}

// Close closes the connection
func (m *MCU) Close() error {
	if m.closer != nil {
		return m.closer.Close()
	}
	return nil
}

// Table returns the key map
func (m *MCU) Table() *core.Table { return m.table }

// Ping reads the identification register
func (m *MCU) Ping() error {
	if m.master == nil {
		return ErrNotConnected
	}
	v, err := m.master.ReadUint(protocol.Key(0x42), 4)
	if err != nil {
		return err
	}
	if v != controller.Magic {
		return fmt.Errorf("%w: 0x%08X", ErrBadMagic, v)
	}
	return nil
}

// Lookup resolves a register by name or by key ("0x42")
func (m *MCU) Lookup(ref string) (*core.Entry, error) {
	if strings.HasPrefix(ref, "0x") || strings.HasPrefix(ref, "0X") {
		k, err := strconv.ParseUint(ref[2:], 16, 8)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRegister, ref)
		}
		if e, ok := m.table.Lookup(protocol.Key(k)); ok {
			return e, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrUnknownRegister, ref)
	}
	if e, ok := m.table.Find(ref); ok {
		return e, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownRegister, ref)
}

// Read returns the current value of a readable register
func (m *MCU) Read(e *core.Entry) (Reading, error) {
	if !e.Access.Readable() {
		return Reading{}, fmt.Errorf("%w: %s", ErrNotReadable, e.Name)
	}
	raw, err := m.master.ReadUint(e.Key, e.Bytes())
	if err != nil {
		return Reading{}, fmt.Errorf("read %s: %w", e.Name, err)
	}
	r := Reading{Entry: e, Raw: raw, Value: int64(raw)}
	if e.Kind == core.Signed {
		r.Value = core.SignExtend(raw, e.Width)
	}
	return r, nil
}

// Write stores v in a writable register
func (m *MCU) Write(e *core.Entry, v int64) error {
	if !e.Access.Writable() {
		return fmt.Errorf("%w: %s", ErrNotWritable, e.Name)
	}
	if err := m.master.WriteInt(e.Key, e.Bytes(), v); err != nil {
		return fmt.Errorf("write %s: %w", e.Name, err)
	}
	return nil
}

// ReadRaw runs a read frame of arbitrary length, bypassing the key map
func (m *MCU) ReadRaw(key protocol.Key, n int) ([]byte, error) {
	return m.master.Read(key, n)
}

// WriteRaw runs a write frame, bypassing the key map
func (m *MCU) WriteRaw(key protocol.Key, value []byte) error {
	return m.master.Write(key, value)
}

// Scan reads every readable register
func (m *MCU) Scan() ([]Reading, error) {
	var out []Reading
	for _, e := range m.table.Entries() {
		if !e.Access.Readable() {
			continue
		}
		r, err := m.Read(e)
		if err != nil {
			return out, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Reset pulses the controller reset register
func (m *MCU) Reset() error {
	e, err := m.Lookup("reset")
	if err != nil {
		return err
	}
	return m.master.Pulse(e.Key)
}
