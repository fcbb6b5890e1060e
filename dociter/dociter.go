// Package dociter defines the document-ordered iteration contract shared by all
// index parts. Query operators merge, intersect and score documents by walking
// increasing document identifiers across any number of such iterators.
//
// Iterators are forward-only. Once an iterator is positioned at a candidate it
// never moves back to a smaller one, and once it is done it stays done.
// Iterators are not safe for concurrent use; create one per query.
package dociter

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Flags advertise optional iterator capabilities.
type Flags uint8

// HasSkips is set by iterators that back SkipTo with an auxiliary skip
// structure. Iterators without it fall back to linear MoveTo semantics.
const HasSkips Flags = 1 << iota

// Has returns true if all bits of f2 are set.
func (f Flags) Has(f2 Flags) bool { return f&f2 == f2 }

// ErrTotalUnsupported is returned by TotalEntries when the number of entries
// cannot be determined without a full scan.
var ErrTotalUnsupported = errors.New("dociter: total entries unsupported")

// ErrBadKey is returned (wrapped) when a stored key is not a document identifier.
var ErrBadKey = errors.New("dociter: bad document key")

// Iterator is the document-ordered navigation contract.
type Iterator interface {
	// Done returns true once no more candidates exist.
	Done() bool
	// Candidate returns the current document. It is undefined if Done.
	Candidate() uint64
	// HasMatch returns true if the iterator has a real entry for exactly doc.
	HasMatch(doc uint64) bool
	// MoveTo advances until Candidate() >= doc. Moving backwards is a no-op.
	MoveTo(doc uint64) error
	// MovePast advances until Candidate() > doc.
	MovePast(doc uint64) error
	// SkipTo is like MoveTo but may use skip data for large forward jumps.
	// It returns true if doc exists as a real entry.
	SkipTo(doc uint64) (bool, error)
	// Flags returns the capabilities of this iterator.
	Flags() Flags
}

// Counts is implemented by iterators that expose a numeric weight per document,
// such as a term frequency or a document length.
type Counts interface {
	Iterator
	// Count returns the count for doc, zero unless HasMatch(doc).
	Count(doc uint64) int
	// TotalEntries returns the total number of entries or ErrTotalUnsupported.
	TotalEntries() (int64, error)
}

// Scores is implemented by iterators that expose a score per document.
type Scores interface {
	Iterator
	// Score returns the score for doc, or the iterator's default if the
	// document has no entry.
	Score(doc uint64) float64
}

// Indicators is implemented by iterators that expose a boolean per document.
type Indicators interface {
	Iterator
	// Indicator returns the flag for doc, or the iterator's default if the
	// document has no entry.
	Indicator(doc uint64) bool
}

// --------------------------------------------------------------------

// KeyLen is the length of an encoded document key.
const KeyLen = 8

// Key encodes a document identifier so that byte order equals numeric order.
func Key(doc uint64) []byte {
	return AppendKey(make([]byte, 0, KeyLen), doc)
}

// AppendKey appends the encoded document key to dst.
func AppendKey(dst []byte, doc uint64) []byte {
	var b [KeyLen]byte
	binary.BigEndian.PutUint64(b[:], doc)
	return append(dst, b[:]...)
}

// ParseKey decodes a document key.
func ParseKey(key []byte) (uint64, error) {
	if len(key) != KeyLen {
		return 0, fmt.Errorf("%w: %d bytes", ErrBadKey, len(key))
	}
	return binary.BigEndian.Uint64(key), nil
}

// --------------------------------------------------------------------

// Collect drains the iterator and returns all remaining candidates.
func Collect(it Iterator) ([]uint64, error) {
	var docs []uint64
	for !it.Done() {
		doc := it.Candidate()
		docs = append(docs, doc)
		if err := it.MovePast(doc); err != nil {
			return docs, err
		}
	}
	return docs, nil
}

// movePast is the shared MovePast implementation on top of MoveTo.
func movePast(it Iterator, doc uint64, exhaust func()) error {
	if doc == ^uint64(0) {
		exhaust()
		return nil
	}
	return it.MoveTo(doc + 1)
}
