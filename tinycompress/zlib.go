// Package tinycompress writes and reads zlib streams made of stored
// DEFLATE blocks. The output is valid zlib that any inflater reads; it is
// small enough for firmware, where the register dictionary is packed once
// at boot.
package tinycompress

import (
	"errors"
	"fmt"
	"hash/adler32"
)

const (
	headerCMF = 0x78 // deflate, 32K window
	headerFLG = 0x01 // no dictionary, fastest; (CMF<<8|FLG) % 31 == 0

	maxStored = 0xFFFF
)

var (
	ErrHeader      = errors.New("not a zlib stream")
	ErrUnsupported = errors.New("compressed deflate blocks are not supported")
	ErrTruncated   = errors.New("truncated zlib stream")
	ErrChecksum    = errors.New("zlib checksum mismatch")
)

// Compress appends the zlib encoding of input to dst
func Compress(dst, input []byte) []byte {
	dst = append(dst, headerCMF, headerFLG)
	rest := input
	for {
		n := min(len(rest), maxStored)
		final := byte(0)
		if n == len(rest) {
			final = 1
		}
		length := uint16(n)
		dst = append(dst, final,
			byte(length), byte(length>>8),
			byte(^length), byte(^length>>8))
		dst = append(dst, rest[:n]...)
		rest = rest[n:]
		if final == 1 {
			break
		}
	}
	sum := adler32.Checksum(input)
	return append(dst, byte(sum>>24), byte(sum>>16), byte(sum>>8), byte(sum))
}

// Decompress decodes a zlib stream of stored blocks
func Decompress(data []byte) ([]byte, error) {
	if len(data) < 2 || data[0]&0x0F != 8 || (uint16(data[0])<<8|uint16(data[1]))%31 != 0 {
		return nil, ErrHeader
	}
	if data[1]&0x20 != 0 {
		return nil, fmt.Errorf("%w: preset dictionary", ErrUnsupported)
	}
	data = data[2:]

	var out []byte
	for {
		if len(data) < 5 {
			return nil, ErrTruncated
		}
		hdr := data[0]
		if hdr>>1&3 != 0 {
			return nil, ErrUnsupported
		}
		length := uint16(data[1]) | uint16(data[2])<<8
		nlength := uint16(data[3]) | uint16(data[4])<<8
		if length != ^nlength {
			return nil, fmt.Errorf("%w: bad stored block length", ErrHeader)
		}
		data = data[5:]
		if len(data) < int(length) {
			return nil, ErrTruncated
		}
		out = append(out, data[:length]...)
		data = data[length:]
		if hdr&1 == 1 {
			break
		}
	}

	if len(data) < 4 {
		return nil, ErrTruncated
	}
	want := uint32(data[0])<<24 | uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3])
	if adler32.Checksum(out) != want {
		return nil, ErrChecksum
	}
	return out, nil
}
