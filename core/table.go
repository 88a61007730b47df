package core

import (
	"errors"
	"fmt"
	"strings"

	"hailfire/protocol"
)

var (
	ErrDuplicateKey   = errors.New("duplicate register key")
	ErrRegisterWidth  = errors.New("register wider than 64 bits")
	ErrMissingAccess  = errors.New("register has neither getter nor setter")
	ErrDirectionFlags = errors.New("register access does not match key direction")
)

// Table maps register keys to entries. It is built once and never
// modified, so lookups need no locking.
type Table struct {
	slots [256]*Entry
	count int
}

// NewTable validates entries and builds the table
func NewTable(entries ...Entry) (*Table, error) {
	t := &Table{}
	for i := range entries {
		e := entries[i]
		if t.slots[e.Key] != nil {
			return nil, fmt.Errorf("%w: 0x%02X (%s and %s)", ErrDuplicateKey, uint8(e.Key), t.slots[e.Key].Name, e.Name)
		}
		if e.Width > MaxRegisterWidth {
			return nil, fmt.Errorf("%w: 0x%02X %s is %d bits", ErrRegisterWidth, uint8(e.Key), e.Name, e.Width)
		}
		if (e.Access.Readable() && e.get == nil) || (e.Access.Writable() && e.set == nil) || e.Access == 0 {
			return nil, fmt.Errorf("%w: 0x%02X %s", ErrMissingAccess, uint8(e.Key), e.Name)
		}
		// Read keys have the top bit clear, write keys set
		if (e.Access == ReadOnly && e.Key.IsWrite()) || (e.Access == WriteOnly && !e.Key.IsWrite()) {
			return nil, fmt.Errorf("%w: 0x%02X %s %s", ErrDirectionFlags, uint8(e.Key), e.Name, e.Access)
		}
		t.slots[e.Key] = &e
		t.count++
	}
	return t, nil
}

// MustTable is NewTable for static tables; it panics on error
func MustTable(entries ...Entry) *Table {
	t, err := NewTable(entries...)
	if err != nil {
		panic(err)
	}
	return t
}

// Lookup returns the entry registered under key
func (t *Table) Lookup(key protocol.Key) (*Entry, bool) {
	e := t.slots[key]
	return e, e != nil
}

// Len returns the number of registers
func (t *Table) Len() int { return t.count }

// Entries returns the registers ordered by key
func (t *Table) Entries() []*Entry {
	out := make([]*Entry, 0, t.count)
	for _, e := range t.slots {
		if e != nil {
			out = append(out, e)
		}
	}
	return out
}

// Find returns the entry with the given name
func (t *Table) Find(name string) (*Entry, bool) {
	for _, e := range t.slots {
		if e != nil && e.Name == name {
			return e, true
		}
	}
	return nil, false
}

// Dictionary lists every register, one per line, for the host tools
func (t *Table) Dictionary() string {
	var sb strings.Builder
	for _, e := range t.Entries() {
		sb.WriteString(e.Describe())
		sb.WriteByte('\n')
	}
	return sb.String()
}
