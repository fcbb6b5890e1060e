package snindex

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/bsm/snindex/vbyte"
	lru "github.com/hashicorp/golang-lru/v2"
)

// ReaderOptions define reader specific options.
type ReaderOptions struct {
	// BlockCacheSize is the number of decompressed blocks to keep in
	// an LRU cache. Uncompressed blocks of memory-mapped tables are never cached.
	// Default: 0 (disabled).
	BlockCacheSize int
}

func (o *ReaderOptions) norm() *ReaderOptions {
	var oo ReaderOptions
	if o != nil {
		oo = *o
	}
	if oo.BlockCacheSize < 0 {
		oo.BlockCacheSize = 0
	}
	return &oo
}

// Reader instances can seek and iterate across data in tables.
// A reader is safe for concurrent use, iterators are not.
type Reader struct {
	r   io.ReaderAt
	mem []byte // set when the source is memory-mapped

	index     []blockInfo
	maxOffset int64

	cache  *lru.Cache[int, []byte]
	closed atomic.Bool
}

// NewReader opens a reader.
func NewReader(r io.ReaderAt, size int64, o *ReaderOptions) (*Reader, error) {
	return newReader(r, nil, size, o)
}

func newReader(r io.ReaderAt, mem []byte, size int64, o *ReaderOptions) (*Reader, error) {
	o = o.norm()
	if size < footerLen {
		return nil, fmt.Errorf("%w: size %d is too small for a footer", ErrCorrupt, size)
	}

	// read footer
	footer := make([]byte, footerLen)
	footerOffset := size - footerLen
	if _, err := r.ReadAt(footer, footerOffset); err != nil {
		return nil, err
	}

	// parse footer
	if !bytes.Equal(footer[8:16], magic) {
		return nil, errBadMagic
	}
	indexOffset := int64(binary.LittleEndian.Uint64(footer[:8]))
	if indexOffset < 0 || indexOffset > footerOffset {
		return nil, fmt.Errorf("%w: index offset %d out of bounds", ErrCorrupt, indexOffset)
	}

	// read index
	raw := make([]byte, footerOffset-indexOffset)
	if _, err := r.ReadAt(raw, indexOffset); err != nil {
		return nil, err
	}

	var index []blockInfo
	var offset int64

	dec := vbyte.NewDecoder(raw)
	for dec.More() {
		klen := dec.Int()
		key := dec.Bytes(klen)
		offset += int64(dec.Uint64())
		if err := dec.Err(); err != nil {
			return nil, fmt.Errorf("%w: block index: %v", ErrCorrupt, err)
		}
		if offset >= indexOffset || (len(index) != 0 && offset <= index[len(index)-1].Offset) {
			return nil, fmt.Errorf("%w: block offset %d out of bounds", ErrCorrupt, offset)
		}

		index = append(index, blockInfo{MaxKey: key, Offset: offset})
	}
	if err := dec.Err(); err != nil {
		return nil, fmt.Errorf("%w: block index: %v", ErrCorrupt, err)
	}

	rd := &Reader{
		r:   r,
		mem: mem,

		index:     index, // block offsets
		maxOffset: indexOffset,
	}
	if o.BlockCacheSize > 0 {
		cache, err := lru.New[int, []byte](o.BlockCacheSize)
		if err != nil {
			return nil, err
		}
		rd.cache = cache
	}
	return rd, nil
}

// NumBlocks returns the number of stored blocks.
func (r *Reader) NumBlocks() int {
	return len(r.index)
}

// Append retrieves a single value for a key. Unlike Get it doesn't
// appends it to dst instead of allocating a new byte slice.
// It may return an ErrNotFound error.
func (r *Reader) Append(dst []byte, key []byte) ([]byte, error) {
	iter, err := r.Seek(key)
	if err != nil {
		return dst, err
	}
	defer iter.Release()

	if iter.Done() || !bytes.Equal(iter.Key(), key) {
		return dst, ErrNotFound
	}
	return append(dst, iter.Value()...), nil
}

// Get is a shortcut for Append(nil, key).
// It may return an ErrNotFound error.
func (r *Reader) Get(key []byte) ([]byte, error) {
	return r.Append(nil, key)
}

// Seek returns an iterator positioned at the smallest key >= key.
func (r *Reader) Seek(key []byte) (*Iterator, error) {
	iter := &Iterator{r: r}
	iter.Seek(key)
	if err := iter.Err(); err != nil {
		iter.Release()
		return nil, err
	}
	return iter, nil
}

// First returns an iterator positioned at the first entry.
func (r *Reader) First() (*Iterator, error) {
	return r.Seek(nil)
}

// GetBlock returns a reader for the n-th block.
func (r *Reader) GetBlock(bpos int) (*BlockReader, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	if len(r.index) == 0 {
		return &BlockReader{}, nil
	}
	if bpos < 0 {
		bpos = 0
	}
	if bpos >= len(r.index) {
		return &BlockReader{
			bpos: len(r.index),
		}, nil
	}
	return r.readBlock(bpos)
}

// SeekBlock seeks the block containing the key.
func (r *Reader) SeekBlock(key []byte) (*BlockReader, error) {
	return r.GetBlock(r.searchBlock(key))
}

// Close marks the reader as closed. All iterators derived from it become
// invalid. It does not close the underlying source.
func (r *Reader) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}
	if r.cache != nil {
		r.cache.Purge()
	}
	return nil
}

func (r *Reader) searchBlock(key []byte) int {
	return sort.Search(len(r.index), func(i int) bool {
		return bytes.Compare(r.index[i].MaxKey, key) >= 0
	})
}

func (r *Reader) readBlock(bpos int) (*BlockReader, error) {
	if r.cache != nil {
		if block, ok := r.cache.Get(bpos); ok {
			return r.newBlockReader(block, bpos, false)
		}
	}

	min := r.index[bpos].Offset
	max := r.maxOffset
	if next := bpos + 1; next < len(r.index) {
		max = r.index[next].Offset
	}

	var raw []byte
	var pooled bool
	if r.mem != nil {
		raw = r.mem[min:max]
	} else {
		raw = fetchBuffer(int(max - min))
		pooled = true
		if _, err := r.r.ReadAt(raw, min); err != nil {
			releaseBuffer(raw)
			return nil, err
		}
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty block %d", ErrCorrupt, bpos)
	}

	var block []byte
	switch cBitPos := len(raw) - 1; raw[cBitPos] {
	case blockNoCompression:
		block = raw[:cBitPos]
		if r.mem != nil {
			return r.newBlockReader(block, bpos, false)
		}
	default:
		plain, err := decompressBlock(raw[cBitPos], raw[:cBitPos])
		if pooled {
			releaseBuffer(raw)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: block %d: %v", ErrCorrupt, bpos, err)
		}
		block, pooled = plain, false
	}

	if r.cache != nil {
		r.cache.Add(bpos, block)
		pooled = false
	}
	return r.newBlockReader(block, bpos, pooled)
}

func (r *Reader) newBlockReader(block []byte, bpos int, pooled bool) (*BlockReader, error) {
	if len(block) < 4 {
		if pooled {
			releaseBuffer(block)
		}
		return nil, fmt.Errorf("%w: block %d is too short", ErrCorrupt, bpos)
	}

	scnt := int(binary.LittleEndian.Uint32(block[len(block)-4:]))
	if scnt < 1 || scnt*4 > len(block) {
		if pooled {
			releaseBuffer(block)
		}
		return nil, fmt.Errorf("%w: block %d has a bad section count", ErrCorrupt, bpos)
	}

	return &BlockReader{
		block:  block,
		bpos:   bpos,
		scnt:   scnt,
		maxKey: r.index[bpos].MaxKey,
		pooled: pooled,
	}, nil
}

// --------------------------------------------------------------------

// BlockReader reads a single block.
type BlockReader struct {
	block  []byte
	bpos   int // the current block position
	scnt   int // the section count
	maxKey []byte
	pooled bool
}

// NumSections returns the number of sections in this block.
func (r *BlockReader) NumSections() int { return r.scnt }

// Pos returns the index position the current block within the table.
func (r *BlockReader) Pos() int { return r.bpos }

// GetSection gets a single section.
func (r *BlockReader) GetSection(spos int) *SectionReader {
	if spos < 0 {
		spos = 0
	}
	if spos >= r.scnt {
		return &SectionReader{spos: r.scnt}
	}

	min := r.sectionOffset(spos)
	max := r.sectionOffset(spos + 1)
	if min > max || max > len(r.block) {
		return &SectionReader{spos: spos, err: fmt.Errorf("%w: bad section offset", ErrCorrupt)}
	}
	return &SectionReader{section: r.block[min:max], spos: spos}
}

// SeekSection seeks the section for a key.
func (r *BlockReader) SeekSection(key []byte) *SectionReader {
	if bytes.Compare(key, r.maxKey) > 0 {
		return r.GetSection(r.scnt)
	}

	spos := sort.Search(r.scnt, func(i int) bool {
		return bytes.Compare(r.firstKey(i), key) > 0
	}) - 1
	return r.GetSection(spos)
}

// Release releases the block reader and frees up resources. The reader must not be used
// after this method is called.
func (r *BlockReader) Release() {
	if r.pooled {
		releaseBuffer(r.block)
	}
	r.block = nil
	r.pooled = false
}

// The starting offset of the section within the block.
func (r *BlockReader) sectionOffset(spos int) int {
	if spos < 1 {
		return 0
	} else if spos >= r.scnt {
		return len(r.block) - r.scnt*4
	} else {
		nn := len(r.block) - r.scnt*4 + (spos-1)*4
		return int(binary.LittleEndian.Uint32(r.block[nn:]))
	}
}

// The first key of a section, nil if it cannot be decoded.
func (r *BlockReader) firstKey(spos int) []byte {
	off := r.sectionOffset(spos)
	klen, n, err := vbyte.Uncompress(r.block, off)
	if err != nil || off+n+int(klen) > len(r.block) {
		return nil
	}
	return r.block[off+n : off+n+int(klen)]
}

// --------------------------------------------------------------------

// SectionReader reads an individual section within a block.
type SectionReader struct {
	section []byte

	spos int // the section
	read int // bytes read

	key []byte // current key
	val []byte // current value
	err error
}

// Seek positions the cursor before the first entry >= key.
// It returns false if no such entry exists within the section.
func (r *SectionReader) Seek(key []byte) bool {
	for r.More() {
		k, v, next, err := r.decode(r.read)
		if err != nil {
			r.err = err
			return false
		}
		if bytes.Compare(k, key) >= 0 {
			return true
		}
		r.key, r.val, r.read = k, v, next
	}
	return false
}

// Pos returns the index position the current section within the block.
func (r *SectionReader) Pos() int { return r.spos }

// Key returns the key if the current entry.
func (r *SectionReader) Key() []byte { return r.key }

// Value returns the value of the current entry. Please note that values
// are temporary buffers and must be copied if used beyond the next cursor move.
func (r *SectionReader) Value() []byte { return r.val }

// More returns true if more data can be read in the section.
func (r *SectionReader) More() bool { return r.err == nil && r.read < len(r.section) }

// Err returns decoding errors, if any.
func (r *SectionReader) Err() error { return r.err }

// Next advances the cursor to the next entry within the section and
// returns true if successful.
func (r *SectionReader) Next() bool {
	if !r.More() {
		return false
	}

	k, v, next, err := r.decode(r.read)
	if err != nil {
		r.err = err
		return false
	}
	r.key, r.val, r.read = k, v, next
	return true
}

func (r *SectionReader) decode(pos int) (key, val []byte, next int, err error) {
	klen, n, err := vbyte.Uncompress(r.section, pos)
	if err != nil {
		return nil, nil, pos, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	pos += n
	if pos+int(klen) > len(r.section) {
		return nil, nil, pos, fmt.Errorf("%w: key exceeds section", ErrCorrupt)
	}
	key = r.section[pos : pos+int(klen)]
	pos += int(klen)

	vlen, n, err := vbyte.Uncompress(r.section, pos)
	if err != nil {
		return nil, nil, pos, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	pos += n
	if pos+int(vlen) > len(r.section) {
		return nil, nil, pos, fmt.Errorf("%w: value exceeds section", ErrCorrupt)
	}
	val = r.section[pos : pos+int(vlen)]
	return key, val, pos + int(vlen), nil
}

// --------------------------------------------------------------------

// Iterator is a forward cursor across block and section boundaries.
// It is always either positioned at an entry or done.
type Iterator struct {
	r *Reader
	b *BlockReader
	s *SectionReader

	valid bool
	err   error
}

// Seek positions the cursor at the smallest key >= key and returns true if
// the key was matched exactly. The cursor remains usable after a miss.
func (i *Iterator) Seek(key []byte) bool {
	if !i.check() {
		return false
	}

	bpos := i.r.searchBlock(key)
	if i.b == nil || i.b.Pos() != bpos {
		if i.b != nil {
			i.b.Release()
		}
		if i.b, i.err = i.r.GetBlock(bpos); i.err != nil {
			i.b, i.s, i.valid = nil, nil, false
			return false
		}
	}

	i.s = i.b.SeekSection(key)
	i.s.Seek(key)
	i.valid = i.advance()
	return i.valid && bytes.Equal(i.s.Key(), key)
}

// Key returns the key if the current entry. Please note that keys
// are temporary buffers and must be copied if used beyond the next cursor move.
func (i *Iterator) Key() []byte {
	if !i.valid || i.r.closed.Load() {
		return nil
	}
	return i.s.Key()
}

// Value returns the value of the current entry. Please note that values
// are temporary buffers and must be copied if used beyond the next cursor move.
func (i *Iterator) Value() []byte {
	if !i.valid || i.r.closed.Load() {
		return nil
	}
	return i.s.Value()
}

// Done returns true once the cursor moved past the last entry.
func (i *Iterator) Done() bool { return !i.valid }

// Next advances the cursor to the next entry and returns true if successful.
func (i *Iterator) Next() bool {
	if !i.valid || !i.check() {
		return false
	}
	i.valid = i.advance()
	return i.valid
}

// Err exposes iterator errors, if any.
func (i *Iterator) Err() error {
	return i.err
}

// Release releases the iterator and frees up resources. The iterator must not be used
// after this method is called.
func (i *Iterator) Release() {
	if i.b != nil {
		i.b.Release()
	}
	i.b, i.s, i.valid = nil, nil, false
	i.err = errReleased
}

func (i *Iterator) check() bool {
	if i.err != nil {
		i.valid = false
		return false
	}
	if i.r.closed.Load() {
		i.err = ErrClosed
		i.valid = false
		return false
	}
	return true
}

func (i *Iterator) advance() bool {
	for {
		// more entries in the section
		if i.s.Next() {
			return true
		}
		if err := i.s.Err(); err != nil {
			i.err = err
			return false
		}

		// more sections in the block
		if n := i.s.Pos() + 1; n < i.b.NumSections() {
			i.s = i.b.GetSection(n)
			continue
		}

		// more blocks
		if n := i.b.Pos() + 1; n < i.r.NumBlocks() {
			i.b.Release()
			if i.b, i.err = i.r.GetBlock(n); i.err != nil {
				i.b, i.s = nil, nil
				return false
			}
			i.s = i.b.GetSection(0)
			continue
		}

		return false
	}
}

// --------------------------------------------------------------------

var bufPool sync.Pool

func fetchBuffer(sz int) []byte {
	if v := bufPool.Get(); v != nil {
		if p := v.([]byte); sz <= cap(p) {
			return p[:sz]
		}
	}
	return make([]byte, sz)
}

func releaseBuffer(p []byte) {
	if cap(p) != 0 {
		bufPool.Put(p) //nolint:staticcheck
	}
}
