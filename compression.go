package snindex

import (
	"sync"

	"github.com/bsm/snindex/vbyte"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
}

// compressBlock compresses plain into dst and returns the result together with the
// block compression type. Plain blocks are returned as-is if compression
// does not save at least 25%.
func compressBlock(c Compression, dst, plain []byte) ([]byte, byte, error) {
	var out []byte

	switch c {
	case SnappyCompression:
		out = snappy.Encode(dst[:cap(dst)], plain)
		if len(out) < len(plain)-len(plain)/4 {
			return out, blockSnappyCompression, nil
		}
	case ZstdCompression:
		enc, err := getZstdEncoder()
		if err != nil {
			return nil, 0, err
		}
		out = enc.EncodeAll(plain, dst[:0])
		zstdEncoderPool.Put(enc)

		if len(out) < len(plain)-len(plain)/4 {
			return out, blockZstdCompression, nil
		}
	case LZ4Compression:
		bound := lz4.CompressBlockBound(len(plain)) + vbyte.MaxLen
		if cap(dst) < bound {
			dst = make([]byte, 0, bound)
		}
		out = vbyte.Append(dst[:0], uint64(len(plain)))
		n, err := lz4.CompressBlock(plain, out[len(out):bound], nil)
		if err != nil {
			return nil, 0, err
		}
		if n != 0 && len(out)+n < len(plain)-len(plain)/4 {
			return out[:len(out)+n], blockLZ4Compression, nil
		}
	}
	return plain, blockNoCompression, nil
}

// decompressBlock decodes a compressed block payload.
func decompressBlock(kind byte, payload []byte) ([]byte, error) {
	switch kind {
	case blockSnappyCompression:
		sz, err := snappy.DecodedLen(payload)
		if err != nil {
			return nil, err
		}
		return snappy.Decode(make([]byte, sz), payload)
	case blockZstdCompression:
		dec, err := getZstdDecoder()
		if err != nil {
			return nil, err
		}
		defer zstdDecoderPool.Put(dec)

		return dec.DecodeAll(payload, nil)
	case blockLZ4Compression:
		sz, n, err := vbyte.Uncompress(payload, 0)
		if err != nil {
			return nil, err
		}

		// lz4 expands by at most 255x
		if sz > uint64(len(payload)-n)*255+16 {
			return nil, errBadCompression
		}

		plain := make([]byte, int(sz))
		m, err := lz4.UncompressBlock(payload[n:], plain)
		if err != nil {
			return nil, err
		}
		return plain[:m], nil
	}
	return nil, errBadCompression
}
