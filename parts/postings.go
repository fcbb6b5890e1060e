package parts

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/bsm/snindex"
	"github.com/bsm/snindex/dociter"
	"github.com/bsm/snindex/operator"
	"github.com/bsm/snindex/vbyte"
)

// CountsOperator is the operator name served by postings parts.
const CountsOperator = "counts"

// DefaultSkipInterval is the number of postings between skip entries.
const DefaultSkipInterval = 128

// Posting is a single (document, count) entry of a term's postings list.
type Posting struct {
	Doc   uint64
	Count int
}

// Postings reads term postings lists. Keys are terms, values encode
//
//	doc count, skip interval, skip count,
//	skip count * (last doc of run delta, byte offset of next run delta),
//	doc count * (doc delta, count)
//
// as compressed integers. Skip entries are written after every full run of
// skip interval postings which is followed by another run.
type Postings struct {
	table
	ops *operator.Table
}

// OpenPostings opens a postings part file.
func OpenPostings(name string, o *snindex.ReaderOptions) (*Postings, error) {
	t, err := openTable(name, o)
	if err != nil {
		return nil, err
	}
	return newPostings(t), nil
}

// NewPostings wraps an open table reader.
func NewPostings(r *snindex.Reader) *Postings {
	return newPostings(wrapTable(r))
}

func newPostings(t table) *Postings {
	p := &Postings{table: t}
	p.ops = operator.NewTable(operator.Entry{
		Name: CountsOperator,
		Kind: operator.KindCounts,
		New: func(n *operator.Node) (dociter.Iterator, error) {
			term := n.Get("term", n.Default())
			it, err := p.PostingsIterator(term)
			if errors.Is(err, ErrNotFound) {
				return emptyPostings(), nil
			}
			if err != nil {
				return nil, err
			}
			return it, nil
		},
	})
	return p
}

// PostingsIterator returns the iterator over the postings of a term or ErrNotFound.
func (p *Postings) PostingsIterator(term string) (*PostingsIterator, error) {
	val, err := p.r.Get([]byte(term))
	if err != nil {
		return nil, err
	}
	return newPostingsIterator(val)
}

// KeyIterator returns an iterator over all terms.
func (p *Postings) KeyIterator() (*PostingsKeyIterator, error) {
	iter, err := p.r.First()
	if err != nil {
		return nil, err
	}
	return &PostingsKeyIterator{Iterator: iter}, nil
}

// Operators implements Part.
func (p *Postings) Operators() *operator.Table { return p.ops }

// Iterator implements Part.
func (p *Postings) Iterator(n *operator.Node) (dociter.Iterator, error) { return p.ops.Iterator(n) }

// --------------------------------------------------------------------

// PostingsKeyIterator walks the terms of a postings part.
type PostingsKeyIterator struct {
	*snindex.Iterator
}

// Term returns the current term.
func (it *PostingsKeyIterator) Term() string { return string(it.Key()) }

// PostingsIterator decodes the postings of the current term.
func (it *PostingsKeyIterator) PostingsIterator() (*PostingsIterator, error) {
	return newPostingsIterator(append([]byte(nil), it.Value()...))
}

// WriteRecord writes the current entry as "term\tdocs".
func (it *PostingsKeyIterator) WriteRecord(w io.Writer) error {
	docs, _, err := vbyte.Uncompress(it.Value(), 0)
	if err != nil {
		return fmt.Errorf("%w: postings: %v", snindex.ErrCorrupt, err)
	}
	_, err = fmt.Fprintf(w, "%s\t%d\n", it.Term(), docs)
	return err
}

// --------------------------------------------------------------------

type skipEntry struct {
	last   uint64 // last document of the run
	offset int    // offset of the next run, relative to the start of postings
}

// PostingsIterator is the document-ordered iterator of the counts operator.
type PostingsIterator struct {
	postings []byte
	dec      vbyte.Decoder

	total    int
	interval int
	skips    []skipEntry

	idx   int // index of the current posting
	doc   uint64
	count int
	done  bool
}

func emptyPostings() *PostingsIterator {
	return &PostingsIterator{done: true}
}

func newPostingsIterator(val []byte) (*PostingsIterator, error) {
	it := &PostingsIterator{}

	dec := vbyte.NewDecoder(val)
	it.total = dec.Int()
	it.interval = dec.Int()
	nskips := dec.Int()
	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("%w: postings header: %v", snindex.ErrCorrupt, err)
	}
	if it.total < 0 || nskips < 0 || nskips > it.total || (nskips != 0 && it.interval < 1) {
		return nil, fmt.Errorf("%w: postings header: bad counts", snindex.ErrCorrupt)
	}

	if nskips != 0 {
		it.skips = make([]skipEntry, 0, nskips)
		var last uint64
		var offset int
		for i := 0; i < nskips; i++ {
			last += dec.Uint64()
			offset += dec.Int()
			it.skips = append(it.skips, skipEntry{last: last, offset: offset})
		}
		if err := dec.Err(); err != nil {
			return nil, fmt.Errorf("%w: postings skips: %v", snindex.ErrCorrupt, err)
		}
	}

	it.postings = val[dec.Pos():]
	it.dec.Reset(it.postings, 0)
	it.idx = -1
	if err := it.next(); err != nil {
		return nil, err
	}
	return it, nil
}

// Done implements dociter.Iterator.
func (it *PostingsIterator) Done() bool { return it.done }

// Candidate implements dociter.Iterator.
func (it *PostingsIterator) Candidate() uint64 { return it.doc }

// HasMatch implements dociter.Iterator.
func (it *PostingsIterator) HasMatch(doc uint64) bool { return !it.done && it.doc == doc }

// Flags implements dociter.Iterator.
func (it *PostingsIterator) Flags() dociter.Flags {
	if len(it.skips) != 0 {
		return dociter.HasSkips
	}
	return 0
}

// MoveTo implements dociter.Iterator.
func (it *PostingsIterator) MoveTo(doc uint64) error {
	for !it.done && it.doc < doc {
		if err := it.next(); err != nil {
			return err
		}
	}
	return nil
}

// MovePast implements dociter.Iterator.
func (it *PostingsIterator) MovePast(doc uint64) error {
	if doc == math.MaxUint64 {
		it.done = true
		return nil
	}
	return it.MoveTo(doc + 1)
}

// SkipTo implements dociter.Iterator. It jumps to the last run which ends
// before doc and scans forward from there.
func (it *PostingsIterator) SkipTo(doc uint64) (bool, error) {
	if it.done || it.doc >= doc {
		return it.HasMatch(doc), nil
	}

	// the first skip entry whose run ends at or after doc
	k := sort.Search(len(it.skips), func(i int) bool {
		return it.skips[i].last >= doc
	}) - 1
	if k >= 0 {
		if runEnd := (k+1)*it.interval - 1; runEnd > it.idx {
			it.dec.Reset(it.postings, it.skips[k].offset)
			it.idx = runEnd
			it.doc = it.skips[k].last
		}
	}

	if err := it.MoveTo(doc); err != nil {
		return false, err
	}
	return it.HasMatch(doc), nil
}

// Count implements dociter.Counts.
func (it *PostingsIterator) Count(doc uint64) int {
	if it.HasMatch(doc) {
		return it.count
	}
	return 0
}

// TotalEntries implements dociter.Counts.
func (it *PostingsIterator) TotalEntries() (int64, error) {
	return int64(it.total), nil
}

func (it *PostingsIterator) next() error {
	if it.idx+1 >= it.total {
		it.done = true
		return nil
	}

	delta := it.dec.Uint64()
	count := it.dec.Int()
	if err := it.dec.Err(); err != nil {
		it.done = true
		return fmt.Errorf("%w: postings: %v", snindex.ErrCorrupt, err)
	}

	if it.idx < 0 {
		it.doc = delta
	} else {
		it.doc += delta
	}
	it.count = count
	it.idx++
	return nil
}

// --------------------------------------------------------------------

// PostingsWriterOptions define postings writer options.
type PostingsWriterOptions struct {
	snindex.WriterOptions

	// SkipInterval is the number of postings between skip entries, a negative
	// value disables skips.
	// Default: DefaultSkipInterval.
	SkipInterval int
}

// PostingsWriter writes a postings part.
type PostingsWriter struct {
	w        *snindex.Writer
	interval int
	val      []byte
	body     []byte
}

// NewPostingsWriter wraps w.
func NewPostingsWriter(w io.Writer, o *PostingsWriterOptions) *PostingsWriter {
	var oo PostingsWriterOptions
	if o != nil {
		oo = *o
	}
	if oo.SkipInterval == 0 {
		oo.SkipInterval = DefaultSkipInterval
	}
	return &PostingsWriter{w: snindex.NewWriter(w, &oo.WriterOptions), interval: oo.SkipInterval}
}

// Append appends the postings of a term. Terms must be appended in increasing
// byte order, postings must be sorted by document.
func (w *PostingsWriter) Append(term string, postings []Posting) error {
	for i, p := range postings {
		if i != 0 && p.Doc <= postings[i-1].Doc {
			return fmt.Errorf("parts: postings of %q out of order, %d must be > %d", term, p.Doc, postings[i-1].Doc)
		}
		if p.Count < 0 {
			return fmt.Errorf("parts: negative count for %q in document %d", term, p.Doc)
		}
	}

	interval := w.interval
	if interval < 0 {
		interval = 0
	}

	var skips []skipEntry
	var prev uint64
	w.body = w.body[:0]
	for i, p := range postings {
		if interval > 0 && i != 0 && i%interval == 0 {
			skips = append(skips, skipEntry{last: prev, offset: len(w.body)})
		}
		w.body = vbyte.Append(w.body, p.Doc-prev)
		w.body = vbyte.Append(w.body, uint64(p.Count))
		prev = p.Doc
	}

	w.val = vbyte.Append(w.val[:0], uint64(len(postings)))
	w.val = vbyte.Append(w.val, uint64(interval))
	w.val = vbyte.Append(w.val, uint64(len(skips)))

	var last uint64
	var offset int
	for _, s := range skips {
		w.val = vbyte.Append(w.val, s.last-last)
		w.val = vbyte.Append(w.val, uint64(s.offset-offset))
		last, offset = s.last, s.offset
	}
	w.val = append(w.val, w.body...)

	return w.w.Append([]byte(term), w.val)
}

// Close flushes and closes the writer.
func (w *PostingsWriter) Close() error { return w.w.Close() }
