package parts

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sync/atomic"

	"github.com/bsm/snindex"
	"github.com/bsm/snindex/dociter"
	"github.com/bsm/snindex/operator"
	"github.com/edsrzf/mmap-go"
)

// LegacyLengths reads the fixed-width lengths format: one 4-byte big-endian
// length per document in identifier order, followed by a trailing 4-byte
// document number offset. The first stored length belongs to document offset.
// The trailing offset is never part of the mapped region.
type LegacyLengths struct {
	file   *os.File
	mem    mmap.MMap
	offset uint64
	total  int

	ops    *operator.Table
	closed atomic.Bool
}

// OpenLegacyLengths maps a legacy lengths file.
func OpenLegacyLengths(name string) (*LegacyLengths, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	size := fi.Size()
	if size < 4 || size%4 != 0 {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s has invalid size %d", snindex.ErrCorrupt, name, size)
	}

	var trailer [4]byte
	if _, err := f.ReadAt(trailer[:], size-4); err != nil {
		_ = f.Close()
		return nil, err
	}

	l := &LegacyLengths{
		file:   f,
		offset: uint64(binary.BigEndian.Uint32(trailer[:])),
		total:  int(size/4 - 1),
	}
	if l.total > 0 {
		if l.mem, err = mmap.MapRegion(f, int(size-4), mmap.RDONLY, 0, 0); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("parts: mmap %s: %w", name, err)
		}
	}

	l.ops = operator.NewTable(operator.Entry{
		Name: LengthsOperator,
		Kind: operator.KindCounts,
		New: func(*operator.Node) (dociter.Iterator, error) {
			it, err := l.LengthsIterator()
			if err != nil {
				return nil, err
			}
			return it, nil
		},
	})
	return l, nil
}

// DocumentOffset returns the number of the first stored document.
func (l *LegacyLengths) DocumentOffset() uint64 { return l.offset }

// TotalDocuments returns the number of stored documents.
func (l *LegacyLengths) TotalDocuments() int { return l.total }

// Length returns the length of a document or ErrNotFound if the document is
// outside of [offset, offset+total).
func (l *LegacyLengths) Length(doc uint64) (int, error) {
	if l.closed.Load() {
		return 0, snindex.ErrClosed
	}
	if doc < l.offset || doc-l.offset >= uint64(l.total) {
		return 0, ErrNotFound
	}
	return l.at(int(doc - l.offset)), nil
}

// KeyIterator returns an iterator over all stored documents.
func (l *LegacyLengths) KeyIterator() *LegacyKeyIterator {
	return &LegacyKeyIterator{l: l}
}

// LengthsIterator returns a dense document-ordered iterator.
func (l *LegacyLengths) LengthsIterator() (*LegacyLengthsIterator, error) {
	if l.closed.Load() {
		return nil, snindex.ErrClosed
	}
	return &LegacyLengthsIterator{l: l, done: l.total == 0}, nil
}

// Operators implements Part.
func (l *LegacyLengths) Operators() *operator.Table { return l.ops }

// Iterator implements Part.
func (l *LegacyLengths) Iterator(n *operator.Node) (dociter.Iterator, error) {
	return l.ops.Iterator(n)
}

// Close releases the mapping.
func (l *LegacyLengths) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return snindex.ErrClosed
	}
	if l.mem != nil {
		if err := l.mem.Unmap(); err != nil {
			_ = l.file.Close()
			return err
		}
	}
	return l.file.Close()
}

func (l *LegacyLengths) at(pos int) int {
	return int(binary.BigEndian.Uint32(l.mem[pos*4:]))
}

// --------------------------------------------------------------------

// LegacyKeyIterator walks all stored documents.
type LegacyKeyIterator struct {
	l   *LegacyLengths
	pos int
}

// Done returns true once all documents were visited.
func (it *LegacyKeyIterator) Done() bool { return it.pos >= it.l.total || it.l.closed.Load() }

// Next advances to the next document.
func (it *LegacyKeyIterator) Next() bool {
	if it.Done() {
		return false
	}
	it.pos++
	return !it.Done()
}

// Reset rewinds the iterator.
func (it *LegacyKeyIterator) Reset() { it.pos = 0 }

// Document returns the current document.
func (it *LegacyKeyIterator) Document() uint64 { return it.l.offset + uint64(it.pos) }

// Length returns the current length.
func (it *LegacyKeyIterator) Length() (int, error) { return it.l.Length(it.Document()) }

// WriteRecord writes the current entry as "doc, length".
func (it *LegacyKeyIterator) WriteRecord(w io.Writer) error {
	n, err := it.Length()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%d, %d\n", it.Document(), n)
	return err
}

// LegacyLengthsIterator presents every document in [offset, offset+total)
// as a real entry. Positions are computed directly, so every move is a skip.
type LegacyLengthsIterator struct {
	l    *LegacyLengths
	pos  int
	done bool
}

// Done implements dociter.Iterator.
func (it *LegacyLengthsIterator) Done() bool { return it.done }

// Candidate implements dociter.Iterator.
func (it *LegacyLengthsIterator) Candidate() uint64 { return it.l.offset + uint64(it.pos) }

// HasMatch implements dociter.Iterator.
func (it *LegacyLengthsIterator) HasMatch(doc uint64) bool {
	return !it.done && it.Candidate() == doc
}

// Flags implements dociter.Iterator.
func (it *LegacyLengthsIterator) Flags() dociter.Flags { return dociter.HasSkips }

// MoveTo implements dociter.Iterator.
func (it *LegacyLengthsIterator) MoveTo(doc uint64) error {
	if it.l.closed.Load() {
		it.done = true
		return snindex.ErrClosed
	}
	if it.done || doc <= it.Candidate() {
		return nil
	}
	if doc-it.l.offset >= uint64(it.l.total) {
		it.done = true
		return nil
	}
	it.pos = int(doc - it.l.offset)
	return nil
}

// MovePast implements dociter.Iterator.
func (it *LegacyLengthsIterator) MovePast(doc uint64) error {
	if doc == math.MaxUint64 {
		it.done = true
		return nil
	}
	return it.MoveTo(doc + 1)
}

// SkipTo implements dociter.Iterator.
func (it *LegacyLengthsIterator) SkipTo(doc uint64) (bool, error) {
	if err := it.MoveTo(doc); err != nil {
		return false, err
	}
	return it.HasMatch(doc), nil
}

// Count implements dociter.Counts.
func (it *LegacyLengthsIterator) Count(doc uint64) int {
	if !it.HasMatch(doc) || it.l.closed.Load() {
		return 0
	}
	return it.l.at(it.pos)
}

// TotalEntries implements dociter.Counts.
func (it *LegacyLengthsIterator) TotalEntries() (int64, error) {
	return int64(it.l.total), nil
}

// --------------------------------------------------------------------

// WriteLegacyLengths writes lengths in the fixed-width format.
func WriteLegacyLengths(w io.Writer, offset uint32, lengths []uint32) error {
	buf := make([]byte, 4*len(lengths)+4)
	for i, n := range lengths {
		binary.BigEndian.PutUint32(buf[i*4:], n)
	}
	binary.BigEndian.PutUint32(buf[4*len(lengths):], offset)

	_, err := w.Write(buf)
	return err
}
