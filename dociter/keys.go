package dociter

import (
	"github.com/bsm/snindex"
)

// Keys adapts a table cursor to the iteration contract: every key, decoded as
// a document identifier, becomes a candidate. MoveTo scans forward entry by
// entry, SkipTo uses the table's block index to seek.
type Keys struct {
	iter *snindex.Iterator
	doc  uint64
	done bool
	err  error
}

// NewKeys creates an adapter positioned at the first entry of r.
func NewKeys(r *snindex.Reader) (*Keys, error) {
	iter, err := r.First()
	if err != nil {
		return nil, err
	}

	k := &Keys{iter: iter}
	if err := k.sync(); err != nil {
		iter.Release()
		return nil, err
	}
	return k, nil
}

// Done implements Iterator.
func (k *Keys) Done() bool { return k.done }

// Candidate implements Iterator.
func (k *Keys) Candidate() uint64 { return k.doc }

// HasMatch implements Iterator.
func (k *Keys) HasMatch(doc uint64) bool { return !k.done && k.doc == doc }

// Flags implements Iterator.
func (k *Keys) Flags() Flags { return HasSkips }

// MoveTo implements Iterator.
func (k *Keys) MoveTo(doc uint64) error {
	for !k.done && k.doc < doc {
		k.iter.Next()
		if err := k.sync(); err != nil {
			return err
		}
	}
	return k.err
}

// MovePast implements Iterator.
func (k *Keys) MovePast(doc uint64) error {
	return movePast(k, doc, k.exhaust)
}

// SkipTo implements Iterator.
func (k *Keys) SkipTo(doc uint64) (bool, error) {
	if k.done || k.doc >= doc {
		return k.HasMatch(doc), k.err
	}

	k.iter.Seek(Key(doc))
	if err := k.sync(); err != nil {
		return false, err
	}
	return k.HasMatch(doc), nil
}

// Next advances to the next entry, returns false when done.
func (k *Keys) Next() bool {
	if k.done {
		return false
	}
	k.iter.Next()
	return k.sync() == nil && !k.done
}

// Key returns the raw key of the current entry.
func (k *Keys) Key() []byte {
	if k.done {
		return nil
	}
	return k.iter.Key()
}

// Value returns the raw value of the current entry. Please note that values
// are temporary buffers and must be copied if used beyond the next cursor move.
func (k *Keys) Value() []byte {
	if k.done {
		return nil
	}
	return k.iter.Value()
}

// Err returns the first error encountered.
func (k *Keys) Err() error { return k.err }

// Release releases the underlying cursor.
func (k *Keys) Release() {
	k.iter.Release()
	k.done = true
}

func (k *Keys) exhaust() { k.done = true }

func (k *Keys) sync() error {
	if k.err != nil {
		return k.err
	}
	if k.iter.Done() {
		k.done = true
		k.err = k.iter.Err()
		return k.err
	}

	doc, err := ParseKey(k.iter.Key())
	if err != nil {
		k.done, k.err = true, err
		return err
	}
	k.doc = doc
	return nil
}
