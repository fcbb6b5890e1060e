package parts_test

import (
	"bytes"

	"github.com/bsm/snindex"
	"github.com/bsm/snindex/dociter"
	"github.com/bsm/snindex/operator"
	"github.com/bsm/snindex/parts"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func seedLengths(lengths map[uint64]int, docs ...uint64) *bytes.Buffer {
	buf := new(bytes.Buffer)
	w := parts.NewLengthsWriter(buf, nil)
	for _, doc := range docs {
		Expect(w.Append(doc, lengths[doc])).To(Succeed())
	}
	Expect(w.Close()).To(Succeed())
	return buf
}

var _ = Describe("Lengths", func() {
	var subject *parts.Lengths

	BeforeEach(func() {
		buf := seedLengths(map[uint64]int{0: 5, 1: 7, 2: 3}, 0, 1, 2)
		subject = parts.NewLengths(openReader(buf))
	})

	AfterEach(func() {
		_ = subject.Close()
	})

	It("should get lengths", func() {
		Expect(subject.Length(0)).To(Equal(5))
		Expect(subject.Length(1)).To(Equal(7))
		Expect(subject.Length(2)).To(Equal(3))

		_, err := subject.Length(3)
		Expect(err).To(MatchError(parts.ErrNotFound))
	})

	It("should tell zero from missing", func() {
		zero := parts.NewLengths(openReader(seedLengths(map[uint64]int{4: 0}, 4)))
		Expect(zero.Length(4)).To(Equal(0))
		_, err := zero.Length(5)
		Expect(err).To(MatchError(parts.ErrNotFound))
	})

	It("should iterate documents in order", func() {
		it, err := subject.Iterator(operator.NewNode("lengths"))
		Expect(err).NotTo(HaveOccurred())

		counts, ok := it.(dociter.Counts)
		Expect(ok).To(BeTrue())
		Expect(counts.Candidate()).To(Equal(uint64(0)))
		Expect(counts.Count(0)).To(Equal(5))

		Expect(counts.MoveTo(1)).To(Succeed())
		Expect(counts.HasMatch(1)).To(BeTrue())
		Expect(counts.HasMatch(3)).To(BeFalse())
		Expect(counts.Count(1)).To(Equal(7))
		Expect(counts.Count(3)).To(Equal(0))

		Expect(counts.MovePast(1)).To(Succeed())
		Expect(counts.Candidate()).To(Equal(uint64(2)))
		Expect(counts.Count(2)).To(Equal(3))

		_, err = counts.TotalEntries()
		Expect(err).To(MatchError(dociter.ErrTotalUnsupported))

		Expect(counts.MovePast(2)).To(Succeed())
		Expect(counts.Done()).To(BeTrue())
	})

	It("should collect candidates", func() {
		it, err := subject.LengthsIterator()
		Expect(err).NotTo(HaveOccurred())
		Expect(dociter.Collect(it)).To(Equal([]uint64{0, 1, 2}))
	})

	It("should decode values on Next", func() {
		it, err := subject.LengthsIterator()
		Expect(err).NotTo(HaveOccurred())

		Expect(it.Next()).To(BeTrue())
		Expect(it.Candidate()).To(Equal(uint64(1)))
		Expect(it.HasMatch(1)).To(BeTrue())
		Expect(it.Count(1)).To(Equal(7))

		Expect(it.Next()).To(BeTrue())
		Expect(it.Count(2)).To(Equal(3))
		Expect(it.Next()).To(BeFalse())
		Expect(it.Done()).To(BeTrue())
		Expect(it.Err()).NotTo(HaveOccurred())
	})

	It("should stop Next on corrupt values", func() {
		buf := new(bytes.Buffer)
		w := snindex.NewWriter(buf, nil)
		Expect(w.Append(dociter.Key(1), []byte{4})).To(Succeed())
		Expect(w.Append(dociter.Key(2), []byte{0x80})).To(Succeed())
		Expect(w.Close()).To(Succeed())

		it, err := parts.NewLengths(openReader(buf)).LengthsIterator()
		Expect(err).NotTo(HaveOccurred())
		Expect(it.Count(1)).To(Equal(4))

		Expect(it.Next()).To(BeFalse())
		Expect(it.Err()).To(MatchError(snindex.ErrCorrupt))
		Expect(it.Next()).To(BeFalse())
	})

	It("should skip", func() {
		it, err := subject.LengthsIterator()
		Expect(err).NotTo(HaveOccurred())
		Expect(it.Flags().Has(dociter.HasSkips)).To(BeTrue())
		Expect(it.SkipTo(2)).To(BeTrue())
		Expect(it.Count(2)).To(Equal(3))
		Expect(it.SkipTo(3)).To(BeFalse())
		Expect(it.Done()).To(BeTrue())
	})

	It("should expose key iterators", func() {
		it, err := subject.KeyIterator()
		Expect(err).NotTo(HaveOccurred())
		defer it.Release()

		out := new(bytes.Buffer)
		for ; !it.Done(); it.Next() {
			Expect(it.Key()).To(HaveLen(dociter.KeyLen))
			Expect(it.WriteRecord(out)).To(Succeed())
		}
		Expect(out.String()).To(Equal("0, 5\n1, 7\n2, 3\n"))
	})

	It("should reject unsupported operators", func() {
		Expect(subject.Operators().Names()).To(Equal([]string{"lengths"}))

		_, err := subject.Iterator(operator.NewNode("bogus"))
		Expect(err).To(MatchError(operator.ErrUnsupported))
		Expect(err).To(MatchError(`operator: unsupported operator "bogus"`))
	})

	It("should reject corrupt values", func() {
		buf := new(bytes.Buffer)
		w := snindex.NewWriter(buf, nil)
		Expect(w.Append(dociter.Key(1), []byte{0x80})).To(Succeed())
		Expect(w.Close()).To(Succeed())

		corrupt := parts.NewLengths(openReader(buf))
		_, err := corrupt.Length(1)
		Expect(err).To(MatchError(snindex.ErrCorrupt))

		_, err = corrupt.LengthsIterator()
		Expect(err).To(MatchError(snindex.ErrCorrupt))
	})

	It("should reject negative lengths", func() {
		w := parts.NewLengthsWriter(new(bytes.Buffer), nil)
		Expect(w.Append(1, -1)).To(MatchError(`parts: negative length -1 for document 1`))
	})

	It("should open files", func() {
		name := writeFile("lengths.snx", seedLengths(map[uint64]int{10: 100, 20: 200}, 10, 20))
		lengths, err := parts.OpenLengths(name, nil)
		Expect(err).NotTo(HaveOccurred())

		Expect(lengths.Length(20)).To(Equal(200))
		Expect(lengths.Table().NumBlocks()).To(Equal(1))

		it, err := lengths.LengthsIterator()
		Expect(err).NotTo(HaveOccurred())

		Expect(lengths.Close()).To(Succeed())
		Expect(it.MoveTo(20)).To(MatchError(snindex.ErrClosed))
		_, err = lengths.Length(10)
		Expect(err).To(MatchError(snindex.ErrClosed))
	})
})
