package snindex

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// Table is a reader over a memory-mapped table file. The mapping is shared
// read-only across all iterators; it is released by Close.
type Table struct {
	*Reader

	name string
	file *os.File
	mem  mmap.MMap
}

// Open maps the named file and opens a reader.
func Open(name string, o *ReaderOptions) (*Table, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	if fi.Size() < footerLen {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s is truncated (%d bytes)", ErrCorrupt, name, fi.Size())
	}

	mem, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("snindex: mmap %s: %w", name, err)
	}

	rd, err := newReader(bytes.NewReader(mem), mem, int64(len(mem)), o)
	if err != nil {
		_ = mem.Unmap()
		_ = f.Close()
		return nil, fmt.Errorf("snindex: open %s: %w", name, err)
	}

	return &Table{Reader: rd, name: name, file: f, mem: mem}, nil
}

// Name returns the file name.
func (t *Table) Name() string { return t.name }

// Size returns the size of the mapped region.
func (t *Table) Size() int64 { return int64(len(t.mem)) }

// Close invalidates all iterators and releases the mapping.
func (t *Table) Close() error {
	if err := t.Reader.Close(); err != nil {
		return err
	}

	var errs []error
	if err := t.mem.Unmap(); err != nil {
		errs = append(errs, fmt.Errorf("snindex: munmap: %w", err))
	}
	if err := t.file.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
