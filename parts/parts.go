// Package parts contains the typed readers of the individual index parts.
// Each reader layers domain semantics (a length, a flag, a prior score, term
// postings) onto a sorted table and exposes its iterators through an
// operator table.
package parts

import (
	"io"

	"github.com/bsm/snindex"
	"github.com/bsm/snindex/dociter"
	"github.com/bsm/snindex/operator"
)

// ErrNotFound is returned when a document or term has no entry.
// A stored zero is never reported as ErrNotFound.
var ErrNotFound = snindex.ErrNotFound

// Part is implemented by all part readers.
type Part interface {
	// Operators returns the operators supported by this part.
	Operators() *operator.Table
	// Iterator returns an iterator for the node or an *operator.UnsupportedError.
	Iterator(*operator.Node) (dociter.Iterator, error)
	// Close releases the part. All iterators become invalid.
	Close() error
}

var (
	_ Part = (*Lengths)(nil)
	_ Part = (*LegacyLengths)(nil)
	_ Part = (*Indicators)(nil)
	_ Part = (*Priors)(nil)
	_ Part = (*Postings)(nil)
)

// table is the storage shared by all table-backed parts.
type table struct {
	r      *snindex.Reader
	closer io.Closer
}

func openTable(name string, o *snindex.ReaderOptions) (table, error) {
	t, err := snindex.Open(name, o)
	if err != nil {
		return table{}, err
	}
	return table{r: t.Reader, closer: t}, nil
}

func wrapTable(r *snindex.Reader) table {
	return table{r: r, closer: r}
}

// Close releases the underlying table.
func (t table) Close() error { return t.closer.Close() }

// Table returns the underlying table reader.
func (t table) Table() *snindex.Reader { return t.r }

func (t table) get(doc uint64) ([]byte, error) {
	return t.r.Get(dociter.Key(doc))
}
