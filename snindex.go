package snindex

import (
	"errors"
	"fmt"
)

var magic = []byte{71, 39, 134, 190, 31, 122, 101, 220}

const footerLen = 16

const (
	blockNoCompression     = 0
	blockSnappyCompression = 1
	blockZstdCompression   = 2
	blockLZ4Compression    = 3
)

// ErrNotFound is returned by the reader when a key cannot be found.
var ErrNotFound = errors.New("snindex: not found")

// ErrCorrupt is returned (wrapped) when a table does not match the expected layout.
var ErrCorrupt = errors.New("snindex: corrupt table")

// ErrClosed is returned when a closed table or writer is used.
var ErrClosed = errors.New("snindex: is closed")

var (
	errBadMagic       = fmt.Errorf("%w: bad magic byte sequence", ErrCorrupt)
	errBadCompression = fmt.Errorf("%w: bad compression codec", ErrCorrupt)
	errReleased       = errors.New("snindex: iterator was released")
)

type blockInfo struct {
	MaxKey []byte // maximum key in the block
	Offset int64  // block offset position
}

// --------------------------------------------------------------------

// Compression is the compression codec
type Compression byte

func (c Compression) isValid() bool {
	return c >= SnappyCompression && c < unknownCompression
}

// Supported compression codecs
const (
	SnappyCompression Compression = iota
	NoCompression
	ZstdCompression
	LZ4Compression
	unknownCompression
)

// String returns the codec name.
func (c Compression) String() string {
	switch c {
	case SnappyCompression:
		return "snappy"
	case NoCompression:
		return "none"
	case ZstdCompression:
		return "zstd"
	case LZ4Compression:
		return "lz4"
	}
	return fmt.Sprintf("Compression(%d)", byte(c))
}

// ParseCompression parses a codec name, as returned by String.
func ParseCompression(s string) (Compression, error) {
	for c := SnappyCompression; c < unknownCompression; c++ {
		if c.String() == s {
			return c, nil
		}
	}
	return unknownCompression, fmt.Errorf("snindex: unknown compression %q", s)
}
