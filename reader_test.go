package snindex_test

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/bsm/snindex"
	"github.com/bsm/snindex/vbyte"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/types"
)

var _ = Describe("Reader", func() {
	var subject *snindex.Reader

	HavePos := func(n int) types.GomegaMatcher {
		return WithTransform(func(x interface{ Pos() int }) int {
			return x.Pos()
		}, Equal(n))
	}

	HaveKey := func(n uint64) types.GomegaMatcher {
		return WithTransform(func(x interface{ Key() []byte }) uint64 {
			if len(x.Key()) != 8 {
				return 0
			}
			return binary.BigEndian.Uint64(x.Key())
		}, Equal(n))
	}

	// The following will seed 100 keys into 4 blocks:
	//
	// B0:   0..112
	// B1: 116..228
	// B2: 232..344
	// B3: 348..396
	//
	BeforeEach(func() {
		var err error
		subject, err = seedReader(100)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should init", func() {
		Expect(subject.NumBlocks()).To(Equal(4))

		tr10k, err := seedReader(10000)
		Expect(err).NotTo(HaveOccurred())
		Expect(tr10k.NumBlocks()).To(Equal(345))
	})

	It("should reject bad input", func() {
		_, err := snindex.NewReader(bytes.NewReader(nil), 0, nil)
		Expect(err).To(MatchError(snindex.ErrCorrupt))

		junk := bytes.Repeat([]byte{1}, 32)
		_, err = snindex.NewReader(bytes.NewReader(junk), int64(len(junk)), nil)
		Expect(err).To(MatchError(snindex.ErrCorrupt))
	})

	It("should reject bad lz4 block lengths", func() {
		empty := new(bytes.Buffer)
		Expect(snindex.NewWriter(empty, nil).Close()).To(Succeed())
		magic := empty.Bytes()[8:]

		// single lz4 block claiming 2^64-1 plain bytes
		table := vbyte.Append(nil, math.MaxUint64)
		table = append(table, 0x10, 'a', 3)
		indexOffset := len(table)
		table = vbyte.Append(table, 1)
		table = append(table, 'a')
		table = vbyte.Append(table, 0)
		table = binary.LittleEndian.AppendUint64(table, uint64(indexOffset))
		table = append(table, magic...)

		r, err := snindex.NewReader(bytes.NewReader(table), int64(len(table)), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(r.NumBlocks()).To(Equal(1))

		_, err = r.Get([]byte("a"))
		Expect(err).To(MatchError(snindex.ErrCorrupt))
	})

	It("should Get/Append", func() {
		for i := uint64(0); i <= 396; i += 4 {
			Expect(subject.Get(key(i))).To(HaveSuffix(fmtKey(i)), "for %d", i)
		}

		_, err := subject.Get(key(1))
		Expect(err).To(MatchError(snindex.ErrNotFound))
		_, err = subject.Get(key(395))
		Expect(err).To(MatchError(snindex.ErrNotFound))
		_, err = subject.Get(key(400))
		Expect(err).To(MatchError(snindex.ErrNotFound))

		dst := []byte("prefix:")
		dst, err = subject.Append(dst, key(8))
		Expect(err).NotTo(HaveOccurred())
		Expect(string(dst)).To(HavePrefix("prefix:"))
		Expect(string(dst)).To(HaveSuffix("00000008"))
	})

	It("should retrieve blocks", func() {
		b0, err := subject.GetBlock(0)
		Expect(err).NotTo(HaveOccurred())
		Expect(b0.Pos()).To(Equal(0))

		b1, err := subject.GetBlock(1)
		Expect(err).NotTo(HaveOccurred())
		Expect(b1.Pos()).To(Equal(1))

		b0, err = subject.GetBlock(-1)
		Expect(err).NotTo(HaveOccurred())
		Expect(b0.Pos()).To(Equal(0))
	})

	It("should seek blocks", func() {
		Expect(subject.SeekBlock(key(50))).To(HavePos(0))
		Expect(subject.SeekBlock(key(112))).To(HavePos(0))
		Expect(subject.SeekBlock(key(113))).To(HavePos(1))
		Expect(subject.SeekBlock(key(340))).To(HavePos(2))
		Expect(subject.SeekBlock(key(345))).To(HavePos(3))
		Expect(subject.SeekBlock(key(396))).To(HavePos(3))
		Expect(subject.SeekBlock(key(397))).To(HavePos(4))
		Expect(subject.SeekBlock(key(1000))).To(HavePos(4))
	})

	It("should invalidate iterators on close", func() {
		iter, err := subject.First()
		Expect(err).NotTo(HaveOccurred())
		Expect(iter).To(HaveKey(0))

		Expect(subject.Close()).To(Succeed())
		Expect(subject.Close()).To(MatchError(snindex.ErrClosed))

		Expect(iter.Key()).To(BeNil())
		Expect(iter.Value()).To(BeNil())
		Expect(iter.Next()).To(BeFalse())
		Expect(iter.Err()).To(MatchError(snindex.ErrClosed))

		_, err = subject.Get(key(4))
		Expect(err).To(MatchError(snindex.ErrClosed))
	})

	Describe("BlockReader", func() {
		var block *snindex.BlockReader

		// B1 (116..228) is split into 2 sections:
		// S0: 116..176
		// S1: 180..228
		BeforeEach(func() {
			var err error
			block, err = subject.GetBlock(1)
			Expect(err).NotTo(HaveOccurred())
		})

		It("should have pos", func() {
			Expect(block.Pos()).To(Equal(1))
		})

		It("should have sections", func() {
			Expect(block.NumSections()).To(Equal(2))
			Expect(block.GetSection(0).Pos()).To(Equal(0))
			Expect(block.GetSection(1).Pos()).To(Equal(1))
			Expect(block.GetSection(2).Pos()).To(Equal(2))
			Expect(block.GetSection(3).Pos()).To(Equal(2))
			Expect(block.GetSection(-1).Pos()).To(Equal(0))
		})

		It("should seek sections", func() {
			Expect(block.SeekSection(key(0)).Pos()).To(Equal(0))
			Expect(block.SeekSection(key(116)).Pos()).To(Equal(0))
			Expect(block.SeekSection(key(176)).Pos()).To(Equal(0))
			Expect(block.SeekSection(key(179)).Pos()).To(Equal(0))
			Expect(block.SeekSection(key(180)).Pos()).To(Equal(1))
			Expect(block.SeekSection(key(228)).Pos()).To(Equal(1))
			Expect(block.SeekSection(key(229)).Pos()).To(Equal(2))
		})
	})

	Describe("SectionReader", func() {
		var section *snindex.SectionReader

		// S1: 180..228
		BeforeEach(func() {
			block, err := subject.GetBlock(1)
			Expect(err).NotTo(HaveOccurred())

			section = block.GetSection(1)
		})

		It("should have pos", func() {
			Expect(section.Pos()).To(Equal(1))
		})

		It("should seek", func() {
			Expect(section.Seek(key(200))).To(BeTrue())
			Expect(section.Next()).To(BeTrue())
			Expect(section).To(HaveKey(200))

			Expect(section.Seek(key(213))).To(BeTrue())
			Expect(section.Next()).To(BeTrue())
			Expect(section).To(HaveKey(216))

			Expect(section.Seek(key(300))).To(BeFalse())
		})

		It("should iterate", func() {
			Expect(section.More()).To(BeTrue())
			Expect(section.Next()).To(BeTrue())
			Expect(section).To(HaveKey(180))
			Expect(section.Value()).To(HaveSuffix("00000180"))

			Expect(section.More()).To(BeTrue())
			Expect(section.Next()).To(BeTrue())
			Expect(section).To(HaveKey(184))
			Expect(section.Value()).To(HaveSuffix("00000184"))

			for i := 0; i < 10; i++ {
				Expect(section.More()).To(BeTrue())
				Expect(section.Next()).To(BeTrue())
			}
			Expect(section).To(HaveKey(224))
			Expect(section.Value()).To(HaveSuffix("00000224"))

			Expect(section.More()).To(BeTrue())
			Expect(section.Next()).To(BeTrue())
			Expect(section).To(HaveKey(228))
			Expect(section.Value()).To(HaveSuffix("00000228"))

			Expect(section.More()).To(BeFalse())
			Expect(section.Next()).To(BeFalse())
			Expect(section.Err()).NotTo(HaveOccurred())
		})
	})

	Describe("Iterator", func() {
		It("should iterate from beginning", func() {
			iter, err := subject.First()
			Expect(err).NotTo(HaveOccurred())
			defer iter.Release()

			Expect(iter.Done()).To(BeFalse())
			Expect(iter).To(HaveKey(0))
			Expect(iter.Value()).To(HaveSuffix("00000000"))

			Expect(iter.Next()).To(BeTrue())
			Expect(iter).To(HaveKey(4))
			Expect(iter.Value()).To(HaveSuffix("00000004"))

			for i := 0; i < 97; i++ {
				Expect(iter.Next()).To(BeTrue())
			}

			Expect(iter.Next()).To(BeTrue())
			Expect(iter).To(HaveKey(396))
			Expect(iter.Value()).To(HaveSuffix("00000396"))

			Expect(iter.Next()).To(BeFalse())
			Expect(iter.Done()).To(BeTrue())
			Expect(iter.Next()).To(BeFalse())
			Expect(iter.Err()).NotTo(HaveOccurred())
		})

		It("should yield strictly increasing keys", func() {
			iter, err := subject.First()
			Expect(err).NotTo(HaveOccurred())
			defer iter.Release()

			var prev []byte
			var n int
			for ; !iter.Done(); iter.Next() {
				if prev != nil {
					Expect(bytes.Compare(prev, iter.Key())).To(Equal(-1))
				}
				prev = append(prev[:0], iter.Key()...)
				n++
			}
			Expect(n).To(Equal(100))
			Expect(iter.Err()).NotTo(HaveOccurred())
		})

		It("should seek", func() {
			iter, err := subject.Seek(key(118))
			Expect(err).NotTo(HaveOccurred())
			defer iter.Release()
			Expect(iter).To(HaveKey(120))

			Expect(iter.Seek(key(228))).To(BeTrue())
			Expect(iter).To(HaveKey(228))

			Expect(iter.Seek(key(229))).To(BeFalse())
			Expect(iter).To(HaveKey(232))
			Expect(iter.Next()).To(BeTrue())
			Expect(iter).To(HaveKey(236))

			Expect(iter.Seek(key(100))).To(BeTrue())
			Expect(iter).To(HaveKey(100))

			Expect(iter.Seek(key(397))).To(BeFalse())
			Expect(iter.Done()).To(BeTrue())
			Expect(iter.Key()).To(BeNil())
			Expect(iter.Err()).NotTo(HaveOccurred())
		})

		It("should seek across all keys", func() {
			iter, err := subject.First()
			Expect(err).NotTo(HaveOccurred())
			defer iter.Release()

			for n := uint64(0); n <= 400; n++ {
				found := iter.Seek(key(n))
				Expect(found).To(Equal(n%4 == 0 && n <= 396), "for %d", n)
				if n <= 396 {
					Expect(iter).To(HaveKey((n+3)/4*4), "for %d", n)
				} else {
					Expect(iter.Done()).To(BeTrue())
				}
			}
		})

		It("should reject use after release", func() {
			iter, err := subject.First()
			Expect(err).NotTo(HaveOccurred())
			iter.Release()

			Expect(iter.Done()).To(BeTrue())
			Expect(iter.Next()).To(BeFalse())
			Expect(iter.Seek(key(0))).To(BeFalse())
			Expect(iter.Err()).To(HaveOccurred())
		})
	})
})

var _ = Describe("Table", func() {
	var dir string

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "snindex-table")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(os.RemoveAll(dir)).To(Succeed())
	})

	for _, c := range []snindex.Compression{snindex.NoCompression, snindex.SnappyCompression, snindex.ZstdCompression, snindex.LZ4Compression} {
		c := c

		It("should open mapped files ("+c.String()+")", func() {
			name, err := seedFile(dir, 1000, c)
			Expect(err).NotTo(HaveOccurred())

			tbl, err := snindex.Open(name, &snindex.ReaderOptions{BlockCacheSize: 8})
			Expect(err).NotTo(HaveOccurred())
			defer tbl.Close()

			Expect(tbl.Name()).To(Equal(name))
			Expect(tbl.Size()).To(BeNumerically(">", 16))

			for _, n := range []uint64{0, 4, 1996, 3996, 1996} {
				Expect(tbl.Get(key(n))).To(HaveSuffix(fmtKey(n)), "for %d", n)
			}

			iter, err := tbl.First()
			Expect(err).NotTo(HaveOccurred())
			defer iter.Release()

			var cnt int
			for ; !iter.Done(); iter.Next() {
				cnt++
			}
			Expect(iter.Err()).NotTo(HaveOccurred())
			Expect(cnt).To(Equal(1000))
		})
	}

	It("should fail on missing or truncated files", func() {
		_, err := snindex.Open(dir+"/missing.snx", nil)
		Expect(os.IsNotExist(err)).To(BeTrue())

		name := dir + "/short.snx"
		Expect(os.WriteFile(name, []byte("short"), 0o644)).To(Succeed())
		_, err = snindex.Open(name, nil)
		Expect(err).To(MatchError(snindex.ErrCorrupt))
	})

	It("should close", func() {
		name, err := seedFile(dir, 10, snindex.NoCompression)
		Expect(err).NotTo(HaveOccurred())

		tbl, err := snindex.Open(name, nil)
		Expect(err).NotTo(HaveOccurred())

		iter, err := tbl.First()
		Expect(err).NotTo(HaveOccurred())

		Expect(tbl.Close()).To(Succeed())
		Expect(tbl.Close()).To(MatchError(snindex.ErrClosed))
		Expect(iter.Value()).To(BeNil())
		Expect(iter.Next()).To(BeFalse())
		Expect(iter.Err()).To(MatchError(snindex.ErrClosed))
	})
})

func fmtKey(n uint64) string {
	return fmt.Sprintf("%08d", n)
}
