package serial

import (
	"context"
	"fmt"
	"io"
	"time"

	"hailfire/protocol"
	"hailfire/tinycompress"
)

// DefaultBridgeTimeout bounds one bridge round trip
const DefaultBridgeTimeout = time.Second

// Bridge is the USB bridge adapter seen as an SPI bus: every Tx becomes
// one chip-select framed transaction on the controller link. It
// implements drivers.SPI.
type Bridge struct {
	host    *protocol.HostBridge
	timeout time.Duration
	ident   string
}

// NewBridge starts a bridge client on port and checks that the adapter
// answers
func NewBridge(ctx context.Context, port io.ReadWriteCloser, timeout time.Duration) (*Bridge, error) {
	if timeout <= 0 {
		timeout = DefaultBridgeTimeout
	}
	b := &Bridge{host: protocol.NewHostBridge(port), timeout: timeout}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	id, err := b.host.Identify(ctx)
	if err != nil {
		b.host.Close()
		return nil, fmt.Errorf("bridge identify: %w", err)
	}
	b.ident = id
	return b, nil
}

// Dial opens the serial device and connects a bridge on it
func Dial(ctx context.Context, cfg Config, timeout time.Duration) (*Bridge, error) {
	port, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	// Drop whatever the adapter sent before we opened the port
	if err := port.Flush(); err != nil {
		port.Close()
		return nil, fmt.Errorf("flush %s: %w", cfg.Device, err)
	}
	return NewBridge(ctx, port, timeout)
}

// Identity returns the adapter identity string
func (b *Bridge) Identity() string { return b.ident }

// TxContext runs one transaction. Transactions longer than
// protocol.BridgeTransferMax are rejected by the adapter.
func (b *Bridge) TxContext(ctx context.Context, w, r []byte) error {
	if w == nil {
		w = make([]byte, len(r))
	}
	if r == nil {
		r = make([]byte, len(w))
	}
	return b.host.Transfer(ctx, w, r)
}

func (b *Bridge) Tx(w, r []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()
	return b.TxContext(ctx, w, r)
}

func (b *Bridge) Transfer(w byte) (byte, error) {
	var r [1]byte
	err := b.Tx([]byte{w}, r[:])
	return r[0], err
}

// Dictionary returns the register dictionary the adapter carries, or ""
// when it has none
func (b *Bridge) Dictionary(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 4*b.timeout)
	defer cancel()
	packed, err := b.host.Dictionary(ctx)
	if err != nil {
		return "", fmt.Errorf("bridge dictionary: %w", err)
	}
	if len(packed) == 0 {
		return "", nil
	}
	text, err := tinycompress.Decompress(packed)
	if err != nil {
		return "", fmt.Errorf("bridge dictionary: %w", err)
	}
	return string(text), nil
}

// Close stops the client and closes the port
func (b *Bridge) Close() error {
	return b.host.Close()
}
