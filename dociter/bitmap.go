package dociter

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2"
)

// Bitmap iterates over the documents of a roaring bitmap. Every member is a
// real entry with a count of one.
type Bitmap struct {
	bm   *roaring.Bitmap
	it   roaring.IntPeekable
	doc  uint64
	done bool
}

// NewBitmap creates an iterator positioned at the smallest member of bm.
func NewBitmap(bm *roaring.Bitmap) *Bitmap {
	b := &Bitmap{bm: bm, it: bm.Iterator()}
	b.next()
	return b
}

// Done implements Iterator.
func (b *Bitmap) Done() bool { return b.done }

// Candidate implements Iterator.
func (b *Bitmap) Candidate() uint64 { return b.doc }

// HasMatch implements Iterator.
func (b *Bitmap) HasMatch(doc uint64) bool { return !b.done && b.doc == doc }

// Flags implements Iterator.
func (b *Bitmap) Flags() Flags { return HasSkips }

// MoveTo implements Iterator.
func (b *Bitmap) MoveTo(doc uint64) error {
	for !b.done && b.doc < doc {
		b.next()
	}
	return nil
}

// MovePast implements Iterator.
func (b *Bitmap) MovePast(doc uint64) error {
	return movePast(b, doc, func() { b.done = true })
}

// SkipTo implements Iterator.
func (b *Bitmap) SkipTo(doc uint64) (bool, error) {
	if b.done || b.doc >= doc {
		return b.HasMatch(doc), nil
	}
	if doc > math.MaxUint32 {
		b.done = true
		return false, nil
	}

	b.it.AdvanceIfNeeded(uint32(doc))
	b.next()
	return b.HasMatch(doc), nil
}

// Count implements Counts.
func (b *Bitmap) Count(doc uint64) int {
	if b.HasMatch(doc) {
		return 1
	}
	return 0
}

// TotalEntries implements Counts.
func (b *Bitmap) TotalEntries() (int64, error) {
	return int64(b.bm.GetCardinality()), nil
}

// Indicator implements Indicators.
func (b *Bitmap) Indicator(doc uint64) bool {
	return doc <= math.MaxUint32 && b.bm.Contains(uint32(doc))
}

func (b *Bitmap) next() {
	if !b.it.HasNext() {
		b.done = true
		return
	}
	b.doc = uint64(b.it.Next())
}
