package parts

import (
	"fmt"
	"io"

	"github.com/bsm/snindex"
	"github.com/bsm/snindex/dociter"
	"github.com/bsm/snindex/operator"
	"github.com/bsm/snindex/vbyte"
)

// LengthsOperator is the operator name served by document length parts.
const LengthsOperator = "lengths"

// Lengths reads document lengths, stored as compressed integers keyed by document.
type Lengths struct {
	table
	ops *operator.Table
}

// OpenLengths opens a lengths part file.
func OpenLengths(name string, o *snindex.ReaderOptions) (*Lengths, error) {
	t, err := openTable(name, o)
	if err != nil {
		return nil, err
	}
	return newLengths(t), nil
}

// NewLengths wraps an open table reader.
func NewLengths(r *snindex.Reader) *Lengths {
	return newLengths(wrapTable(r))
}

func newLengths(t table) *Lengths {
	l := &Lengths{table: t}
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
	return l
}

// Length returns the length of a document or ErrNotFound.
func (l *Lengths) Length(doc uint64) (int, error) {
	val, err := l.get(doc)
	if err != nil {
		return 0, err
	}
	return decodeLength(val)
}

// KeyIterator returns an iterator over all stored entries.
func (l *Lengths) KeyIterator() (*LengthsKeyIterator, error) {
	keys, err := dociter.NewKeys(l.r)
	if err != nil {
		return nil, err
	}
	return &LengthsKeyIterator{Keys: keys}, nil
}

// LengthsIterator returns a document-ordered iterator, Count reports the length.
func (l *Lengths) LengthsIterator() (*LengthsIterator, error) {
	v, err := newValues(l.r, decodeLength, 0)
	if err != nil {
		return nil, err
	}
	return &LengthsIterator{values: v}, nil
}

// Operators implements Part.
func (l *Lengths) Operators() *operator.Table { return l.ops }

// Iterator implements Part.
func (l *Lengths) Iterator(n *operator.Node) (dociter.Iterator, error) { return l.ops.Iterator(n) }

// --------------------------------------------------------------------

// LengthsKeyIterator exposes raw entries together with typed accessors.
type LengthsKeyIterator struct {
	*dociter.Keys
}

// Document returns the current document.
func (it *LengthsKeyIterator) Document() uint64 { return it.Candidate() }

// Length returns the length of the current document.
func (it *LengthsKeyIterator) Length() (int, error) { return decodeLength(it.Value()) }

// WriteRecord writes the current entry as "doc, length".
func (it *LengthsKeyIterator) WriteRecord(w io.Writer) error {
	n, err := it.Length()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%d, %d\n", it.Document(), n)
	return err
}

// LengthsIterator is the document-ordered iterator of the lengths operator.
type LengthsIterator struct {
	*values[int]
}

// Count implements dociter.Counts.
func (it *LengthsIterator) Count(doc uint64) int { return it.value(doc) }

// TotalEntries implements dociter.Counts. Tables do not store an entry count.
func (it *LengthsIterator) TotalEntries() (int64, error) { return 0, dociter.ErrTotalUnsupported }

// --------------------------------------------------------------------

// LengthsWriter writes a lengths part.
type LengthsWriter struct {
	w   *snindex.Writer
	key []byte
	val []byte
}

// NewLengthsWriter wraps w.
func NewLengthsWriter(w io.Writer, o *snindex.WriterOptions) *LengthsWriter {
	return &LengthsWriter{w: snindex.NewWriter(w, o)}
}

// Append appends a document length. Documents must be appended in increasing order.
func (w *LengthsWriter) Append(doc uint64, length int) error {
	if length < 0 {
		return fmt.Errorf("parts: negative length %d for document %d", length, doc)
	}
	w.key = dociter.AppendKey(w.key[:0], doc)
	w.val = vbyte.Append(w.val[:0], uint64(length))
	return w.w.Append(w.key, w.val)
}

// Close flushes and closes the writer.
func (w *LengthsWriter) Close() error { return w.w.Close() }

func decodeLength(val []byte) (int, error) {
	n, sz, err := vbyte.Uncompress(val, 0)
	if err != nil {
		return 0, fmt.Errorf("%w: length: %v", snindex.ErrCorrupt, err)
	}
	if sz != len(val) {
		return 0, fmt.Errorf("%w: length: %d trailing bytes", snindex.ErrCorrupt, len(val)-sz)
	}
	return int(n), nil
}
