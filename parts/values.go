package parts

import (
	"fmt"

	"github.com/bsm/snindex"
	"github.com/bsm/snindex/dociter"
)

// values decodes the value of every candidate visited by the key adapter.
// Candidates are sparse: only stored documents are visited, absent
// documents report the default value.
type values[T any] struct {
	*dociter.Keys

	decode func([]byte) (T, error)
	cur    T
	def    T
	err    error
}

func newValues[T any](r *snindex.Reader, decode func([]byte) (T, error), def T) (*values[T], error) {
	keys, err := dociter.NewKeys(r)
	if err != nil {
		return nil, err
	}

	v := &values[T]{Keys: keys, decode: decode, def: def}
	if err := v.load(); err != nil {
		keys.Release()
		return nil, err
	}
	return v, nil
}

func (v *values[T]) MoveTo(doc uint64) error {
	if err := v.Keys.MoveTo(doc); err != nil {
		return err
	}
	return v.load()
}

func (v *values[T]) MovePast(doc uint64) error {
	if err := v.Keys.MovePast(doc); err != nil {
		return err
	}
	return v.load()
}

func (v *values[T]) SkipTo(doc uint64) (bool, error) {
	found, err := v.Keys.SkipTo(doc)
	if err != nil {
		return false, err
	}
	if err := v.load(); err != nil {
		return false, err
	}
	return found, nil
}

// Next advances to the next stored document and decodes its value.
func (v *values[T]) Next() bool {
	if v.err != nil || !v.Keys.Next() {
		return false
	}
	if err := v.load(); err != nil {
		v.err = err
		return false
	}
	return true
}

// Err returns the first error encountered.
func (v *values[T]) Err() error {
	if v.err != nil {
		return v.err
	}
	return v.Keys.Err()
}

func (v *values[T]) value(doc uint64) T {
	if v.HasMatch(doc) {
		return v.cur
	}
	return v.def
}

func (v *values[T]) load() error {
	if v.Done() {
		return nil
	}

	cur, err := v.decode(v.Value())
	if err != nil {
		return fmt.Errorf("parts: document %d: %w", v.Candidate(), err)
	}
	v.cur = cur
	return nil
}
