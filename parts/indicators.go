package parts

import (
	"fmt"
	"io"
	"math"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/bsm/snindex"
	"github.com/bsm/snindex/dociter"
	"github.com/bsm/snindex/operator"
)

// IndicatorOperator is the operator name served by indicator parts.
const IndicatorOperator = "indicator"

// Indicators reads boolean document flags. Documents without an entry
// report the part default.
type Indicators struct {
	table
	def bool
	ops *operator.Table
}

// OpenIndicators opens an indicator part file.
func OpenIndicators(name string, def bool, o *snindex.ReaderOptions) (*Indicators, error) {
	t, err := openTable(name, o)
	if err != nil {
		return nil, err
	}
	return newIndicators(t, def), nil
}

// NewIndicators wraps an open table reader.
func NewIndicators(r *snindex.Reader, def bool) *Indicators {
	return newIndicators(wrapTable(r), def)
}

func newIndicators(t table, def bool) *Indicators {
	p := &Indicators{table: t, def: def}
	p.ops = operator.NewTable(operator.Entry{
		Name: IndicatorOperator,
		Kind: operator.KindIndicator,
		New: func(n *operator.Node) (dociter.Iterator, error) {
			def, err := n.Bool("default", p.def)
			if err != nil {
				return nil, err
			}
			it, err := p.IndicatorIterator(def)
			if err != nil {
				return nil, err
			}
			return it, nil
		},
	})
	return p
}

// Default returns the value reported for documents without an entry.
func (p *Indicators) Default() bool { return p.def }

// Indicator returns the stored flag of a document or ErrNotFound.
func (p *Indicators) Indicator(doc uint64) (bool, error) {
	val, err := p.get(doc)
	if err != nil {
		return false, err
	}
	return decodeIndicator(val)
}

// Positives returns the set of documents with a true flag.
func (p *Indicators) Positives() (*roaring.Bitmap, error) {
	it, err := p.KeyIterator()
	if err != nil {
		return nil, err
	}
	defer it.Release()

	bm := roaring.New()
	for ; !it.Done(); it.Next() {
		ok, err := it.Indicator()
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		doc := it.Document()
		if doc > math.MaxUint32 {
			return nil, fmt.Errorf("parts: document %d exceeds bitmap range", doc)
		}
		bm.Add(uint32(doc))
	}
	return bm, it.Err()
}

// KeyIterator returns an iterator over all stored entries.
func (p *Indicators) KeyIterator() (*IndicatorsKeyIterator, error) {
	keys, err := dociter.NewKeys(p.r)
	if err != nil {
		return nil, err
	}
	return &IndicatorsKeyIterator{Keys: keys}, nil
}

// IndicatorIterator returns a document-ordered iterator over stored entries,
// absent documents report def.
func (p *Indicators) IndicatorIterator(def bool) (*IndicatorIterator, error) {
	v, err := newValues(p.r, decodeIndicator, def)
	if err != nil {
		return nil, err
	}
	return &IndicatorIterator{values: v}, nil
}

// Operators implements Part.
func (p *Indicators) Operators() *operator.Table { return p.ops }

// Iterator implements Part.
func (p *Indicators) Iterator(n *operator.Node) (dociter.Iterator, error) { return p.ops.Iterator(n) }

// --------------------------------------------------------------------

// IndicatorsKeyIterator exposes raw entries together with typed accessors.
type IndicatorsKeyIterator struct {
	*dociter.Keys
}

// Document returns the current document.
func (it *IndicatorsKeyIterator) Document() uint64 { return it.Candidate() }

// Indicator returns the flag of the current document.
func (it *IndicatorsKeyIterator) Indicator() (bool, error) { return decodeIndicator(it.Value()) }

// WriteRecord writes the current entry as "doc\tflag".
func (it *IndicatorsKeyIterator) WriteRecord(w io.Writer) error {
	ok, err := it.Indicator()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%d\t%t\n", it.Document(), ok)
	return err
}

// IndicatorIterator is the document-ordered iterator of the indicator operator.
type IndicatorIterator struct {
	*values[bool]
}

// Indicator implements dociter.Indicators.
func (it *IndicatorIterator) Indicator(doc uint64) bool { return it.value(doc) }

// --------------------------------------------------------------------

// IndicatorsWriter writes an indicator part.
type IndicatorsWriter struct {
	w   *snindex.Writer
	key []byte
}

// NewIndicatorsWriter wraps w.
func NewIndicatorsWriter(w io.Writer, o *snindex.WriterOptions) *IndicatorsWriter {
	return &IndicatorsWriter{w: snindex.NewWriter(w, o)}
}

// Append appends a document flag. Documents must be appended in increasing order.
func (w *IndicatorsWriter) Append(doc uint64, flag bool) error {
	val := []byte{0}
	if flag {
		val[0] = 1
	}
	w.key = dociter.AppendKey(w.key[:0], doc)
	return w.w.Append(w.key, val)
}

// Close flushes and closes the writer.
func (w *IndicatorsWriter) Close() error { return w.w.Close() }

func decodeIndicator(val []byte) (bool, error) {
	if len(val) != 1 || val[0] > 1 {
		return false, fmt.Errorf("%w: bad indicator value %x", snindex.ErrCorrupt, val)
	}
	return val[0] == 1, nil
}
