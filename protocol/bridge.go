package protocol

import "errors"

// Bridge commands. Each command block is acknowledged with an empty block
// and answered with one response block.
const (
	BridgeCmdIdentify           = 1 // () -> identify_response
	BridgeCmdIdentifyResponse   = 2 // (identity bytes)
	BridgeCmdTransfer           = 3 // (tx bytes) -> transfer_response
	BridgeCmdTransferResponse   = 4 // (status int, rx bytes)
	BridgeCmdDictionary         = 5 // (offset) -> dictionary_response
	BridgeCmdDictionaryResponse = 6 // (offset, chunk bytes)
)

// BridgeDictionaryChunk is the number of dictionary bytes per response
const BridgeDictionaryChunk = 48

// BridgeTransferMax is the longest single transaction the bridge carries
const BridgeTransferMax = 32

// Transfer status codes
const (
	BridgeStatusOK       = 0
	BridgeStatusTooLong  = 1
	BridgeStatusBusError = 2
)

var (
	ErrUnknownCommand = errors.New("unknown bridge command")
	ErrTransferFailed = errors.New("bridge transfer failed")
)

// TransferFunc performs one chip-select framed transaction on the link,
// shifting out tx and filling rx (same length)
type TransferFunc func(tx, rx []byte) error

// BridgeDevice is the adapter side of the USB bridge. It parses command
// blocks from the host, runs the transactions they carry and encodes the
// replies.
type BridgeDevice struct {
	reader   BlockReader
	expected uint8
	identity []byte
	transfer TransferFunc

	out     []byte
	scratch ScratchOutput
	rx      [BridgeTransferMax]byte

	// Dictionary is the zlib-packed register dictionary served in chunks;
	// empty when the adapter does not know the controller
	Dictionary []byte

	// OnReset is called when the host restarts its sequence numbering
	OnReset func()
}

// NewBridgeDevice creates a bridge endpoint answering with identity and
// running transfers through transfer
func NewBridgeDevice(identity string, transfer TransferFunc) *BridgeDevice {
	return &BridgeDevice{
		expected: BlockDest,
		identity: []byte(identity),
		transfer: transfer,
		out:      make([]byte, 0, 4*BlockLengthMax),
	}
}

// Receive consumes the complete blocks in input and returns the encoded
// replies. The returned slice is reused by the next call.
func (d *BridgeDevice) Receive(input InputBuffer) []byte {
	d.out = d.out[:0]
	for {
		blk, n, ok := d.reader.Next(input.Data())
		if !ok {
			input.Pop(n)
			break
		}
		if blk.Sequence == BlockDest && d.expected != BlockDest {
			d.expected = BlockDest
			if d.OnReset != nil {
				d.OnReset()
			}
		}
		var reply []byte
		if blk.Sequence == d.expected && !blk.IsAck() {
			d.expected = NextSequence(blk.Sequence)
			reply = d.handle(blk.Payload)
		}
		// Acknowledge every block; a stale sequence reads as a NAK
		d.out, _ = AppendBlock(d.out, d.expected, nil)
		if reply != nil {
			d.out, _ = AppendBlock(d.out, d.expected, reply)
		}
		input.Pop(n)
	}
	return d.out
}

// handle runs one command and returns the response payload, or nil
func (d *BridgeDevice) handle(payload []byte) []byte {
	cmd, err := DecodeVLQUint(&payload)
	if err != nil {
		return nil
	}
	d.scratch.Reset()
	switch cmd {
	case BridgeCmdIdentify:
		EncodeVLQUint(&d.scratch, BridgeCmdIdentifyResponse)
		EncodeVLQBytes(&d.scratch, d.identity)

	case BridgeCmdTransfer:
		tx, err := DecodeVLQBytes(&payload)
		if err != nil {
			return nil
		}
		var rx []byte
		status := int32(BridgeStatusOK)
		switch {
		case len(tx) > BridgeTransferMax:
			status = BridgeStatusTooLong
		case d.transfer == nil:
			status = BridgeStatusBusError
		default:
			rx = d.rx[:len(tx)]
			if err := d.transfer(tx, rx); err != nil {
				status, rx = BridgeStatusBusError, nil
			}
		}
		EncodeVLQUint(&d.scratch, BridgeCmdTransferResponse)
		EncodeVLQInt(&d.scratch, status)
		EncodeVLQBytes(&d.scratch, rx)

	case BridgeCmdDictionary:
		offset, err := DecodeVLQUint(&payload)
		if err != nil {
			return nil
		}
		var chunk []byte
		if int(offset) < len(d.Dictionary) {
			chunk = d.Dictionary[offset:min(int(offset)+BridgeDictionaryChunk, len(d.Dictionary))]
		}
		EncodeVLQUint(&d.scratch, BridgeCmdDictionaryResponse)
		EncodeVLQUint(&d.scratch, offset)
		EncodeVLQBytes(&d.scratch, chunk)

	default:
		return nil
	}
	return d.scratch.Result()
}

// Reset forgets the sequence state
func (d *BridgeDevice) Reset() {
	d.expected = BlockDest
	d.reader.Reset()
}
