// Package leb128 decodes the little-endian base-128 variable-length integer
// encodings used throughout the WebAssembly binary format.
package leb128

import (
	"errors"
	"fmt"
	"io"
)

// ErrOverflow is returned when a LEB128 encoding uses more bytes than its
// target width permits.
var ErrOverflow = errors.New("leb128: integer representation too long")

// ErrNonCanonical is returned when a LEB128 encoding's terminator byte sets
// bits that a canonical encoding of the target width would not set.
var ErrNonCanonical = errors.New("leb128: non-canonical encoding")

// DecodeUint32 decodes an unsigned LEB128 integer into a uint32, rejecting
// encodings longer than ceil(32/7)=5 bytes and terminator bytes with bits
// set beyond the 32-bit width.
func DecodeUint32(r io.Reader) (ret uint32, num uint64, err error) {
	const maxBytes = 5
	var shift uint
	for i := 0; i < maxBytes; i++ {
		b, err := readByte(r)
		if err != nil {
			return 0, 0, fmt.Errorf("read byte %d: %w", i, err)
		}
		num++
		payload := uint32(b & 0x7f)
		if shift == 28 && payload&^0xf != 0 {
			return 0, 0, fmt.Errorf("%w: terminator byte %#x at width 32", ErrNonCanonical, b)
		}
		ret |= payload << shift
		if b&0x80 == 0 {
			return ret, num, nil
		}
		shift += 7
	}
	return 0, 0, fmt.Errorf("%w: width 32", ErrOverflow)
}

// DecodeUint64 decodes an unsigned LEB128 integer into a uint64, rejecting
// encodings longer than ceil(64/7)=10 bytes and terminator bytes with bits
// set beyond the 64-bit width.
func DecodeUint64(r io.Reader) (ret uint64, num uint64, err error) {
	const maxBytes = 10
	var shift uint
	for i := 0; i < maxBytes; i++ {
		b, err := readByte(r)
		if err != nil {
			return 0, 0, fmt.Errorf("read byte %d: %w", i, err)
		}
		num++
		payload := uint64(b & 0x7f)
		if shift == 63 && payload&^0x1 != 0 {
			return 0, 0, fmt.Errorf("%w: terminator byte %#x at width 64", ErrNonCanonical, b)
		}
		ret |= payload << shift
		if b&0x80 == 0 {
			return ret, num, nil
		}
		shift += 7
	}
	return 0, 0, fmt.Errorf("%w: width 64", ErrOverflow)
}

// DecodeInt32 decodes a signed LEB128 integer into an int32. The terminator
// byte's bits beyond the 32nd must all equal the sign bit, otherwise the
// encoding is rejected as non-canonical.
func DecodeInt32(r io.Reader) (ret int32, num uint64, err error) {
	const maxBytes = 5
	const width = 32
	var shift uint
	for i := 0; i < maxBytes; i++ {
		b, err := readByte(r)
		if err != nil {
			return 0, 0, fmt.Errorf("read byte %d: %w", i, err)
		}
		num++
		last := b&0x80 == 0
		if last && shift+7 > width {
			// Only the 5th byte of a 32-bit value can overflow; its bits
			// from position 3 upward (0x78) must all equal the sign bit.
			if ov := b & 0x78; ov != 0x00 && ov != 0x78 {
				return 0, 0, fmt.Errorf("%w: terminator byte %#x at width %d", ErrNonCanonical, b, width)
			}
		}
		ret |= int32(b&0x7f) << shift
		shift += 7
		if last {
			if shift < width && b&0x40 != 0 {
				ret |= -1 << shift
			}
			return ret, num, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: width %d", ErrOverflow, width)
}

// DecodeInt64 decodes a signed LEB128 integer into an int64, applying the
// same canonical sign-extension rule as DecodeInt32.
func DecodeInt64(r io.Reader) (ret int64, num uint64, err error) {
	const maxBytes = 10
	const width = 64
	var shift uint
	for i := 0; i < maxBytes; i++ {
		b, err := readByte(r)
		if err != nil {
			return 0, 0, fmt.Errorf("read byte %d: %w", i, err)
		}
		num++
		last := b&0x80 == 0
		if last && shift+7 > width {
			// Only the 10th byte of a 64-bit value can overflow; every
			// payload bit belongs to the sign-extension region, so the
			// whole payload must be uniformly 0 or all-ones.
			if b != 0x00 && b != 0x7f {
				return 0, 0, fmt.Errorf("%w: terminator byte %#x at width %d", ErrNonCanonical, b, width)
			}
		}
		ret |= int64(b&0x7f) << shift
		shift += 7
		if last {
			if shift < width && b&0x40 != 0 {
				ret |= -1 << shift
			}
			return ret, num, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: width %d", ErrOverflow, width)
}

// EncodeUint32 encodes v as canonical unsigned LEB128.
func EncodeUint32(v uint32) []byte {
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			out = append(out, b|0x80)
		} else {
			out = append(out, b)
			return out
		}
	}
}

func readByte(r io.Reader) (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return 0, err
	}
	return buf[0], nil
}
