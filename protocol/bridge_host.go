package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

var (
	ErrBridgeClosed = errors.New("bridge closed")
	ErrNak          = errors.New("bridge rejected sequence")
)

// HostBridge is the host side of the USB bridge. A background goroutine
// reads the port and sorts blocks into ACKs and responses; requests are
// serialized so only one command is in flight.
type HostBridge struct {
	port io.ReadWriteCloser

	mu  sync.Mutex // one request at a time
	seq uint8

	input  *FifoBuffer
	reader BlockReader

	ackChan  chan uint8
	respChan chan []byte

	stopChan  chan struct{}
	doneChan  chan struct{}
	closeOnce sync.Once
}

// NewHostBridge starts reading port and returns the bridge client
func NewHostBridge(port io.ReadWriteCloser) *HostBridge {
	b := &HostBridge{
		port:     port,
		seq:      BlockDest,
		input:    NewFifoBuffer(4 * BlockLengthMax),
		ackChan:  make(chan uint8, 1),
		respChan: make(chan []byte, 4),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
	go b.readLoop()
	return b
}

// Identify returns the identity string of the adapter
func (b *HostBridge) Identify(ctx context.Context) (string, error) {
	out := NewScratchOutput()
	EncodeVLQUint(out, BridgeCmdIdentify)
	resp, err := b.request(ctx, out.Result())
	if err != nil {
		return "", err
	}
	cmd, err := DecodeVLQUint(&resp)
	if err != nil {
		return "", err
	}
	if cmd != BridgeCmdIdentifyResponse {
		return "", fmt.Errorf("%w: response %d", ErrUnknownCommand, cmd)
	}
	id, err := DecodeVLQBytes(&resp)
	if err != nil {
		return "", err
	}
	return string(id), nil
}

// Transfer runs one chip-select framed transaction: tx is shifted out and
// the bytes shifted in are stored in rx, which must be as long as tx
func (b *HostBridge) Transfer(ctx context.Context, tx, rx []byte) error {
	if len(tx) > BridgeTransferMax {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrBlockTooLong, len(tx), BridgeTransferMax)
	}
	out := NewScratchOutput()
	EncodeVLQUint(out, BridgeCmdTransfer)
	EncodeVLQBytes(out, tx)
	resp, err := b.request(ctx, out.Result())
	if err != nil {
		return err
	}
	cmd, err := DecodeVLQUint(&resp)
	if err != nil {
		return err
	}
	if cmd != BridgeCmdTransferResponse {
		return fmt.Errorf("%w: response %d", ErrUnknownCommand, cmd)
	}
	status, err := DecodeVLQInt(&resp)
	if err != nil {
		return err
	}
	if status != BridgeStatusOK {
		return fmt.Errorf("%w: status %d", ErrTransferFailed, status)
	}
	data, err := DecodeVLQBytes(&resp)
	if err != nil {
		return err
	}
	copy(rx, data)
	return nil
}

// Dictionary fetches the packed register dictionary chunk by chunk. It
// is empty when the adapter has none.
func (b *HostBridge) Dictionary(ctx context.Context) ([]byte, error) {
	var dict []byte
	for {
		out := NewScratchOutput()
		EncodeVLQUint(out, BridgeCmdDictionary)
		EncodeVLQUint(out, uint32(len(dict)))
		resp, err := b.request(ctx, out.Result())
		if err != nil {
			return nil, err
		}
		cmd, err := DecodeVLQUint(&resp)
		if err != nil {
			return nil, err
		}
		if cmd != BridgeCmdDictionaryResponse {
			return nil, fmt.Errorf("%w: response %d", ErrUnknownCommand, cmd)
		}
		offset, err := DecodeVLQUint(&resp)
		if err != nil {
			return nil, err
		}
		if int(offset) != len(dict) {
			return nil, fmt.Errorf("dictionary chunk at offset %d, expected %d", offset, len(dict))
		}
		chunk, err := DecodeVLQBytes(&resp)
		if err != nil {
			return nil, err
		}
		if len(chunk) == 0 {
			return dict, nil
		}
		dict = append(dict, chunk...)
	}
}

// request sends one command block and waits for its ACK and response
func (b *HostBridge) request(ctx context.Context, payload []byte) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.drain()
	msg, err := AppendBlock(make([]byte, 0, BlockLengthMax), b.seq, payload)
	if err != nil {
		return nil, err
	}
	if _, err := b.port.Write(msg); err != nil {
		return nil, fmt.Errorf("failed to write block: %w", err)
	}

	select {
	case ack := <-b.ackChan:
		want := NextSequence(b.seq)
		if ack != want {
			// Adopt the sequence the adapter expects for the next attempt
			b.seq = ack
			return nil, fmt.Errorf("%w: expected 0x%02x, got 0x%02x", ErrNak, want, ack)
		}
		b.seq = want
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.stopChan:
		return nil, ErrBridgeClosed
	}

	select {
	case resp := <-b.respChan:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.stopChan:
		return nil, ErrBridgeClosed
	}
}

// drain drops replies left over from an abandoned request
func (b *HostBridge) drain() {
	for {
		select {
		case <-b.ackChan:
		case <-b.respChan:
		default:
			return
		}
	}
}

func (b *HostBridge) readLoop() {
	defer close(b.doneChan)

	buf := make([]byte, 256)
	for {
		select {
		case <-b.stopChan:
			return
		default:
		}

		n, err := b.port.Read(buf)
		if n > 0 {
			b.dispatch(buf[:n])
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return
			}
			select {
			case <-b.stopChan:
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
	}
}

func (b *HostBridge) dispatch(data []byte) {
	for len(data) > 0 {
		w := b.input.Write(data)
		data = data[w:]
		for {
			blk, n, ok := b.reader.Next(b.input.Data())
			if !ok {
				b.input.Pop(n)
				break
			}
			if blk.IsAck() {
				select {
				case b.ackChan <- blk.Sequence:
				default:
				}
			} else {
				resp := make([]byte, len(blk.Payload))
				copy(resp, blk.Payload)
				select {
				case b.respChan <- resp:
				default:
				}
			}
			b.input.Pop(n)
		}
		if w == 0 {
			// Input full of garbage; start over
			b.input.Reset()
			b.reader.Reset()
		}
	}
}

// Close stops the reader and closes the port
func (b *HostBridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		close(b.stopChan)
		err = b.port.Close()
		<-b.doneChan
	})
	return err
}
