package protocol

import "errors"

// Message block layout, shared by the bridge and its host:
//
//	[len][seq][payload ...][crc hi][crc lo][sync]
//
// len counts the whole block. seq carries BlockDest in the high nibble and
// a 4-bit sequence number in the low one. An empty payload is an ACK.
const (
	BlockHeaderSize  = 2
	BlockTrailerSize = 3
	BlockLengthMin   = BlockHeaderSize + BlockTrailerSize
	BlockLengthMax   = 64
	BlockPayloadMax  = BlockLengthMax - BlockLengthMin

	BlockSync    = 0x7E
	BlockDest    = 0x10
	BlockSeqMask = 0x0F
)

var (
	ErrShortBlock   = errors.New("incomplete message block")
	ErrBadBlock     = errors.New("malformed message block")
	ErrBlockTooLong = errors.New("message block too long")
)

// CRC16 is the CCITT variant used by Klipper-style message blocks
func CRC16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		b ^= uint8(crc)
		b ^= b << 4
		w := uint16(b)
		crc = (w<<8 | crc>>8) ^ (w >> 4) ^ (w << 3)
	}
	return crc
}

// Block is one decoded message block
type Block struct {
	Sequence uint8
	Payload  []byte // aliases the scanned input
}

// IsAck reports whether the block carries no payload
func (b Block) IsAck() bool { return len(b.Payload) == 0 }

// NextSequence returns the sequence byte following seq
func NextSequence(seq uint8) uint8 {
	return (seq+1)&BlockSeqMask | BlockDest
}

// AppendBlock encodes payload as a message block and appends it to dst
func AppendBlock(dst []byte, seq uint8, payload []byte) ([]byte, error) {
	n := BlockLengthMin + len(payload)
	if n > BlockLengthMax {
		return dst, ErrBlockTooLong
	}
	start := len(dst)
	dst = append(dst, uint8(n), seq)
	dst = append(dst, payload...)
	crc := CRC16(dst[start:])
	return append(dst, uint8(crc>>8), uint8(crc), BlockSync), nil
}

// ScanBlock decodes the block at the start of data. It returns the number
// of bytes the block occupies. ErrShortBlock means more input is needed;
// ErrBadBlock means the stream lost synchronization.
func ScanBlock(data []byte) (Block, int, error) {
	if len(data) < BlockLengthMin {
		return Block{}, 0, ErrShortBlock
	}
	n := int(data[0])
	if n < BlockLengthMin || n > BlockLengthMax {
		return Block{}, 0, ErrBadBlock
	}
	seq := data[1]
	if seq&^BlockSeqMask != BlockDest {
		return Block{}, 0, ErrBadBlock
	}
	if len(data) < n {
		return Block{}, 0, ErrShortBlock
	}
	if data[n-1] != BlockSync {
		return Block{}, 0, ErrBadBlock
	}
	crc := uint16(data[n-3])<<8 | uint16(data[n-2])
	if crc != CRC16(data[:n-BlockTrailerSize]) {
		return Block{}, 0, ErrBadBlock
	}
	return Block{Sequence: seq, Payload: data[BlockHeaderSize : n-BlockTrailerSize]}, n, nil
}

// BlockReader extracts blocks from a byte stream, resynchronizing on the
// sync byte after corruption
type BlockReader struct {
	lost bool
}

// Next returns the next complete block in data and the number of bytes
// consumed, including skipped garbage. ok is false when data holds no
// complete block; consumed bytes must still be dropped.
func (r *BlockReader) Next(data []byte) (blk Block, consumed int, ok bool) {
	for consumed < len(data) {
		rest := data[consumed:]
		if r.lost {
			i := 0
			for i < len(rest) && rest[i] != BlockSync {
				i++
			}
			if i == len(rest) {
				return Block{}, len(data), false
			}
			consumed += i + 1
			r.lost = false
			continue
		}
		if rest[0] == BlockSync {
			consumed++
			continue
		}
		b, n, err := ScanBlock(rest)
		switch err {
		case nil:
			return b, consumed + n, true
		case ErrShortBlock:
			return Block{}, consumed, false
		default:
			r.lost = true
		}
	}
	return Block{}, consumed, false
}

// Lost reports whether the reader is hunting for a sync byte
func (r *BlockReader) Lost() bool { return r.lost }

// Reset returns the reader to the synchronized state
func (r *BlockReader) Reset() { r.lost = false }
