package snindex

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/bsm/snindex/counter"
	"github.com/bsm/snindex/vbyte"
)

// WriterOptions define writer specific options.
type WriterOptions struct {
	// BlockSize is the minimum uncompressed size in bytes of each table block.
	// Default: 4KiB.
	BlockSize int

	// BlockRestartInterval is the number of keys between section
	// restart points. Binary search within a block operates on sections.
	//
	// Default: 16.
	BlockRestartInterval int

	// The compression codec to use.
	// Default: SnappyCompression.
	Compression Compression

	// Progress is incremented once per appended entry and flushed on Close.
	// Default: counter.Noop.
	Progress counter.Counter
}

func (o *WriterOptions) norm() *WriterOptions {
	var oo WriterOptions
	if o != nil {
		oo = *o
	}

	if oo.BlockSize < 1 {
		oo.BlockSize = 1 << 12
	}
	if oo.BlockRestartInterval < 1 {
		oo.BlockRestartInterval = 16
	}
	if !oo.Compression.isValid() {
		oo.Compression = SnappyCompression
	}
	if oo.Progress == nil {
		oo.Progress = counter.Noop
	}

	return &oo
}

// Writer instances can write a table.
type Writer struct {
	w io.Writer
	o *WriterOptions

	block blockInfo // the current block info
	blen  int       // the number of entries in the current block
	soffs []int     // section offsets in the current block

	buf []byte // plain buffer
	cmp []byte // compression buffer
	tmp []byte // scratch buffer

	index []blockInfo
}

// NewWriter wraps a writer and returns a Writer.
func NewWriter(w io.Writer, o *WriterOptions) *Writer {
	return &Writer{
		w:   w,
		o:   o.norm(),
		tmp: make([]byte, 2*binary.MaxVarintLen64),
	}
}

// Append appends an entry to the table. Keys must be appended in strictly
// increasing byte order.
func (w *Writer) Append(key, value []byte) error {
	if w.tmp == nil {
		return ErrClosed
	}

	if (w.blen != 0 || len(w.index) != 0) && bytes.Compare(key, w.block.MaxKey) <= 0 {
		return fmt.Errorf("snindex: attempted an out-of-order append, %q must be > %q", key, w.block.MaxKey)
	}

	if len(w.buf) != 0 && len(w.buf)+len(key)+len(value)+2*binary.MaxVarintLen64 > w.o.BlockSize {
		if err := w.flush(); err != nil {
			return err
		}
	}

	if w.blen%w.o.BlockRestartInterval == 0 { // new section?
		w.soffs = append(w.soffs, len(w.buf))
	}

	w.buf = vbyte.Append(w.buf, uint64(len(key)))
	w.buf = append(w.buf, key...)
	w.buf = vbyte.Append(w.buf, uint64(len(value)))
	w.buf = append(w.buf, value...)

	w.blen++
	w.block.MaxKey = append(w.block.MaxKey[:0], key...)
	w.o.Progress.Increment()

	return nil
}

// Close closes the writer
func (w *Writer) Close() error {
	if w.tmp == nil {
		return ErrClosed
	}
	if err := w.flush(); err != nil {
		return err
	}

	indexOffset := w.block.Offset
	if err := w.writeIndex(); err != nil {
		return err
	}

	if err := w.writeFooter(indexOffset); err != nil {
		return err
	}
	w.tmp = nil

	_ = w.o.Progress.Flush()
	return nil
}

func (w *Writer) writeIndex() error {
	var prev int64

	for _, ent := range w.index {
		w.tmp = vbyte.Append(w.tmp[:0], uint64(len(ent.MaxKey)))
		w.tmp = append(w.tmp, ent.MaxKey...)
		w.tmp = vbyte.Append(w.tmp, uint64(ent.Offset-prev)) // delta-encode
		prev = ent.Offset

		if err := w.writeRaw(w.tmp); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeFooter(indexOffset int64) error {
	w.tmp = w.tmp[:8]
	binary.LittleEndian.PutUint64(w.tmp, uint64(indexOffset))
	if err := w.writeRaw(w.tmp); err != nil {
		return err
	}
	if err := w.writeRaw(magic); err != nil {
		return err
	}
	return nil
}

func (w *Writer) writeRaw(p []byte) error {
	n, err := w.w.Write(p)
	w.block.Offset += int64(n)
	return err
}

func (w *Writer) flush() error {
	if len(w.buf) == 0 {
		return nil
	}

	var u32 [4]byte
	for _, o := range w.soffs {
		if o > 0 {
			binary.LittleEndian.PutUint32(u32[:], uint32(o))
			w.buf = append(w.buf, u32[:]...)
		}
	}
	binary.LittleEndian.PutUint32(u32[:], uint32(len(w.soffs)))
	w.buf = append(w.buf, u32[:]...)

	payload, kind, err := compressBlock(w.o.Compression, w.cmp, w.buf)
	if err != nil {
		return err
	}
	if kind != blockNoCompression {
		w.cmp = payload
	}
	block := append(payload, kind)

	w.index = append(w.index, blockInfo{
		MaxKey: append([]byte(nil), w.block.MaxKey...),
		Offset: w.block.Offset,
	})
	w.buf = w.buf[:0]
	w.soffs = w.soffs[:0]
	w.blen = 0

	return w.writeRaw(block)
}
