package protocol

import (
	"bytes"
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

// reverse is a stand-in link: the slave answers each transaction with the
// bytes it received, reversed
func reverse(tx, rx []byte) error {
	for i := range tx {
		rx[len(tx)-1-i] = tx[i]
	}
	return nil
}

func encodeCommand(t *testing.T, seq uint8, build func(out OutputBuffer)) []byte {
	t.Helper()
	out := NewScratchOutput()
	build(out)
	msg, err := AppendBlock(nil, seq, out.Result())
	if err != nil {
		t.Fatalf("AppendBlock: %v", err)
	}
	return msg
}

func TestBridgeDeviceTransfer(t *testing.T) {
	dev := NewBridgeDevice("hailfire-test", reverse)

	msg := encodeCommand(t, BlockDest, func(out OutputBuffer) {
		EncodeVLQUint(out, BridgeCmdTransfer)
		EncodeVLQBytes(out, []byte{1, 2, 3})
	})
	reply := dev.Receive(NewSliceInputBuffer(msg))

	ack, n, err := ScanBlock(reply)
	if err != nil || !ack.IsAck() || ack.Sequence != BlockDest+1 {
		t.Fatalf("Expected ACK with seq 0x11, got %+v (%v)", ack, err)
	}
	resp, _, err := ScanBlock(reply[n:])
	if err != nil {
		t.Fatalf("ScanBlock response: %v", err)
	}
	payload := resp.Payload
	cmd, _ := DecodeVLQUint(&payload)
	status, _ := DecodeVLQInt(&payload)
	rx, _ := DecodeVLQBytes(&payload)
	if cmd != BridgeCmdTransferResponse || status != BridgeStatusOK || !bytes.Equal(rx, []byte{3, 2, 1}) {
		t.Errorf("Expected transfer_response ok [03 02 01], got cmd=%d status=%d rx=% X", cmd, status, rx)
	}
}

func TestBridgeDeviceStaleSequence(t *testing.T) {
	dev := NewBridgeDevice("hailfire-test", reverse)

	// Sequence 0x13 while 0x10 is expected: NAK only
	msg := encodeCommand(t, BlockDest|3, func(out OutputBuffer) {
		EncodeVLQUint(out, BridgeCmdIdentify)
	})
	reply := dev.Receive(NewSliceInputBuffer(msg))

	ack, n, err := ScanBlock(reply)
	if err != nil || !ack.IsAck() || ack.Sequence != BlockDest {
		t.Fatalf("Expected NAK with seq 0x10, got %+v (%v)", ack, err)
	}
	if n != len(reply) {
		t.Errorf("Expected no response for a stale block, got % X", reply[n:])
	}
}

func TestBridgeDeviceTooLong(t *testing.T) {
	dev := NewBridgeDevice("hailfire-test", reverse)

	msg := encodeCommand(t, BlockDest, func(out OutputBuffer) {
		EncodeVLQUint(out, BridgeCmdTransfer)
		EncodeVLQBytes(out, make([]byte, BridgeTransferMax+1))
	})
	reply := dev.Receive(NewSliceInputBuffer(msg))

	_, n, _ := ScanBlock(reply)
	resp, _, err := ScanBlock(reply[n:])
	if err != nil {
		t.Fatalf("ScanBlock response: %v", err)
	}
	payload := resp.Payload
	DecodeVLQUint(&payload)
	if status, _ := DecodeVLQInt(&payload); status != BridgeStatusTooLong {
		t.Errorf("Expected status %d, got %d", BridgeStatusTooLong, status)
	}
}

// serveBridge runs dev on one end of a pipe until it closes
func serveBridge(conn net.Conn, dev *BridgeDevice) {
	in := NewFifoBuffer(4 * BlockLengthMax)
	buf := make([]byte, 64)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		in.Write(buf[:n])
		if reply := dev.Receive(in); len(reply) > 0 {
			if _, err := conn.Write(reply); err != nil {
				return
			}
		}
	}
}

func TestHostBridgeRoundTrip(t *testing.T) {
	hostEnd, devEnd := net.Pipe()
	go serveBridge(devEnd, NewBridgeDevice("hailfire-test", reverse))
	defer devEnd.Close()

	b := NewHostBridge(hostEnd)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	id, err := b.Identify(ctx)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if id != "hailfire-test" {
		t.Errorf("Expected identity hailfire-test, got %q", id)
	}

	// Enough requests to wrap the sequence number
	for i := 0; i < 20; i++ {
		tx := []byte{byte(i), 0x42, 0x04}
		rx := make([]byte, len(tx))
		if err := b.Transfer(ctx, tx, rx); err != nil {
			t.Fatalf("Transfer %d: %v", i, err)
		}
		if !bytes.Equal(rx, []byte{0x04, 0x42, byte(i)}) {
			t.Errorf("Transfer %d: expected reversed bytes, got % X", i, rx)
		}
	}
}

func TestHostBridgeTransferError(t *testing.T) {
	hostEnd, devEnd := net.Pipe()
	failing := func(tx, rx []byte) error { return errors.New("bus fault") }
	go serveBridge(devEnd, NewBridgeDevice("hailfire-test", failing))
	defer devEnd.Close()

	b := NewHostBridge(hostEnd)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := b.Transfer(ctx, []byte{1}, make([]byte, 1))
	if !errors.Is(err, ErrTransferFailed) {
		t.Errorf("Expected ErrTransferFailed, got %v", err)
	}
}

func TestHostBridgeContextTimeout(t *testing.T) {
	hostEnd, devEnd := net.Pipe()
	// Device reads but never answers
	go func() {
		buf := make([]byte, 64)
		for {
			if _, err := devEnd.Read(buf); err != nil {
				return
			}
		}
	}()
	defer devEnd.Close()

	b := NewHostBridge(hostEnd)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := b.Identify(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded, got %v", err)
	}
}

func TestHostBridgeDictionary(t *testing.T) {
	dict := bytes.Repeat([]byte{0x78, 0x01, 0xAB}, 50) // three chunks
	dev := NewBridgeDevice("hailfire-test", reverse)
	dev.Dictionary = dict

	hostEnd, devEnd := net.Pipe()
	go serveBridge(devEnd, dev)
	defer devEnd.Close()

	b := NewHostBridge(hostEnd)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got, err := b.Dictionary(ctx)
	if err != nil {
		t.Fatalf("Dictionary: %v", err)
	}
	if !bytes.Equal(got, dict) {
		t.Errorf("Expected %d dictionary bytes, got %d", len(dict), len(got))
	}

	// An adapter without a dictionary answers with an empty one
	dev.Dictionary = nil
	got, err = b.Dictionary(ctx)
	if err != nil || len(got) != 0 {
		t.Errorf("Expected empty dictionary, got % X (%v)", got, err)
	}
}
