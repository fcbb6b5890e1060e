// Package vbyte implements the self-delimiting variable-length integer encoding
// used for all compressed index values (lengths, counts, document deltas).
//
// Values are stored little-endian in groups of seven bits, the high bit of
// every byte except the last one signals a continuation.
package vbyte

import (
	"encoding/binary"
	"errors"
)

// MaxLen is the maximum number of bytes a single encoded value can occupy.
const MaxLen = binary.MaxVarintLen64

var (
	// ErrTruncated is returned when a value runs past the end of the buffer.
	ErrTruncated = errors.New("vbyte: truncated value")
	// ErrOverflow is returned when an encoded value does not fit into 64 bits.
	ErrOverflow = errors.New("vbyte: value overflows uint64")
)

// Compress returns the encoded representation of n.
func Compress(n uint64) []byte {
	return Append(nil, n)
}

// Append appends the encoded representation of n to dst.
func Append(dst []byte, n uint64) []byte {
	for n >= 0x80 {
		dst = append(dst, byte(n)|0x80)
		n >>= 7
	}
	return append(dst, byte(n))
}

// Len returns the number of bytes required to encode n.
func Len(n uint64) int {
	sz := 1
	for n >= 0x80 {
		n >>= 7
		sz++
	}
	return sz
}

// Uncompress decodes the value starting at buf[off:] and returns it together with
// the number of bytes consumed.
func Uncompress(buf []byte, off int) (uint64, int, error) {
	if off < 0 || off >= len(buf) {
		return 0, 0, ErrTruncated
	}

	v, n := binary.Uvarint(buf[off:])
	switch {
	case n == 0:
		return 0, 0, ErrTruncated
	case n < 0:
		return 0, 0, ErrOverflow
	}
	return v, n, nil
}

// --------------------------------------------------------------------

// Decoder reads a sequence of values from a buffer. The first error is sticky:
// once a read fails, all subsequent reads return zero and Err reports the failure.
type Decoder struct {
	buf []byte
	pos int
	err error
}

// NewDecoder creates a decoder over buf.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Reset re-targets the decoder at buf[pos:] and clears errors.
func (d *Decoder) Reset(buf []byte, pos int) {
	d.buf = buf
	d.pos = pos
	d.err = nil
}

// Uint64 decodes the next value.
func (d *Decoder) Uint64() uint64 {
	if d.err != nil {
		return 0
	}

	v, n, err := Uncompress(d.buf, d.pos)
	if err != nil {
		d.err = err
		return 0
	}
	d.pos += n
	return v
}

// Int decodes the next value as an int.
func (d *Decoder) Int() int { return int(d.Uint64()) }

// Bytes returns the next n raw bytes.
func (d *Decoder) Bytes(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.pos+n > len(d.buf) {
		d.err = ErrTruncated
		return nil
	}

	p := d.buf[d.pos : d.pos+n]
	d.pos += n
	return p
}

// Pos returns the current read offset.
func (d *Decoder) Pos() int { return d.pos }

// More returns true if there are unread bytes.
func (d *Decoder) More() bool { return d.err == nil && d.pos < len(d.buf) }

// Err returns the first decoding error, if any.
func (d *Decoder) Err() error { return d.err }
