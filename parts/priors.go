package parts

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/bsm/snindex"
	"github.com/bsm/snindex/dociter"
	"github.com/bsm/snindex/operator"
)

// PriorOperator is the operator name served by prior parts.
const PriorOperator = "prior"

// Priors reads per-document prior scores. Documents without an entry
// report the part default.
type Priors struct {
	table
	def float64
	ops *operator.Table
}

// OpenPriors opens a prior part file.
func OpenPriors(name string, def float64, o *snindex.ReaderOptions) (*Priors, error) {
	t, err := openTable(name, o)
	if err != nil {
		return nil, err
	}
	return newPriors(t, def), nil
}

// NewPriors wraps an open table reader.
func NewPriors(r *snindex.Reader, def float64) *Priors {
	return newPriors(wrapTable(r), def)
}

func newPriors(t table, def float64) *Priors {
	p := &Priors{table: t, def: def}
	p.ops = operator.NewTable(operator.Entry{
		Name: PriorOperator,
		Kind: operator.KindScores,
		New: func(n *operator.Node) (dociter.Iterator, error) {
			def, err := n.Float("default", p.def)
			if err != nil {
				return nil, err
			}
			it, err := p.PriorIterator(def)
			if err != nil {
				return nil, err
			}
			return it, nil
		},
	})
	return p
}

// Default returns the score reported for documents without an entry.
func (p *Priors) Default() float64 { return p.def }

// Prior returns the stored score of a document or ErrNotFound.
func (p *Priors) Prior(doc uint64) (float64, error) {
	val, err := p.get(doc)
	if err != nil {
		return 0, err
	}
	return decodePrior(val)
}

// KeyIterator returns an iterator over all stored entries.
func (p *Priors) KeyIterator() (*PriorsKeyIterator, error) {
	keys, err := dociter.NewKeys(p.r)
	if err != nil {
		return nil, err
	}
	return &PriorsKeyIterator{Keys: keys}, nil
}

// PriorIterator returns a document-ordered iterator over stored entries,
// absent documents score def.
func (p *Priors) PriorIterator(def float64) (*PriorIterator, error) {
	v, err := newValues(p.r, decodePrior, def)
	if err != nil {
		return nil, err
	}
	return &PriorIterator{values: v}, nil
}

// Operators implements Part.
func (p *Priors) Operators() *operator.Table { return p.ops }

// Iterator implements Part.
func (p *Priors) Iterator(n *operator.Node) (dociter.Iterator, error) { return p.ops.Iterator(n) }

// --------------------------------------------------------------------

// PriorsKeyIterator exposes raw entries together with typed accessors.
type PriorsKeyIterator struct {
	*dociter.Keys
}

// Document returns the current document.
func (it *PriorsKeyIterator) Document() uint64 { return it.Candidate() }

// Score returns the prior of the current document.
func (it *PriorsKeyIterator) Score() (float64, error) { return decodePrior(it.Value()) }

// WriteRecord writes the current entry as "doc\tscore".
func (it *PriorsKeyIterator) WriteRecord(w io.Writer) error {
	score, err := it.Score()
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%d\t%g\n", it.Document(), score)
	return err
}

// PriorIterator is the document-ordered iterator of the prior operator.
type PriorIterator struct {
	*values[float64]
}

// Score implements dociter.Scores.
func (it *PriorIterator) Score(doc uint64) float64 { return it.value(doc) }

// --------------------------------------------------------------------

// PriorsWriter writes a prior part.
type PriorsWriter struct {
	w   *snindex.Writer
	key []byte
	val [8]byte
}

// NewPriorsWriter wraps w.
func NewPriorsWriter(w io.Writer, o *snindex.WriterOptions) *PriorsWriter {
	return &PriorsWriter{w: snindex.NewWriter(w, o)}
}

// Append appends a document prior. Documents must be appended in increasing order.
func (w *PriorsWriter) Append(doc uint64, score float64) error {
	if math.IsNaN(score) {
		return fmt.Errorf("parts: NaN prior for document %d", doc)
	}
	binary.BigEndian.PutUint64(w.val[:], math.Float64bits(score))
	w.key = dociter.AppendKey(w.key[:0], doc)
	return w.w.Append(w.key, w.val[:])
}

// Close flushes and closes the writer.
func (w *PriorsWriter) Close() error { return w.w.Close() }

func decodePrior(val []byte) (float64, error) {
	if len(val) != 8 {
		return 0, fmt.Errorf("%w: bad prior value length %d", snindex.ErrCorrupt, len(val))
	}
	return math.Float64frombits(binary.BigEndian.Uint64(val)), nil
}
