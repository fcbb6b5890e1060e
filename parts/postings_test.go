package parts_test

import (
	"bytes"

	"github.com/bsm/snindex"
	"github.com/bsm/snindex/dociter"
	"github.com/bsm/snindex/operator"
	"github.com/bsm/snindex/parts"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
)

// docs 0, 7, 14, ... with count doc%5+1
func seedPostings(n int) []parts.Posting {
	postings := make([]parts.Posting, 0, n)
	for i := 0; i < n; i++ {
		doc := uint64(i * 7)
		postings = append(postings, parts.Posting{Doc: doc, Count: int(doc%5) + 1})
	}
	return postings
}

var _ = Describe("Postings", func() {
	var subject *parts.Postings

	open := func(interval int) *parts.Postings {
		buf := new(bytes.Buffer)
		w := parts.NewPostingsWriter(buf, &parts.PostingsWriterOptions{SkipInterval: interval})
		Expect(w.Append("apple", seedPostings(3))).To(Succeed())
		Expect(w.Append("banana", seedPostings(500))).To(Succeed())
		Expect(w.Append("cherry", nil)).To(Succeed())
		Expect(w.Close()).To(Succeed())
		return parts.NewPostings(openReader(buf))
	}

	BeforeEach(func() {
		subject = open(4)
	})

	AfterEach(func() {
		_ = subject.Close()
	})

	It("should iterate postings", func() {
		it, err := subject.PostingsIterator("apple")
		Expect(err).NotTo(HaveOccurred())
		Expect(it.TotalEntries()).To(Equal(int64(3)))
		Expect(it.Flags().Has(dociter.HasSkips)).To(BeFalse())

		Expect(it.Candidate()).To(Equal(uint64(0)))
		Expect(it.Count(0)).To(Equal(1))
		Expect(it.MovePast(0)).To(Succeed())
		Expect(it.Candidate()).To(Equal(uint64(7)))
		Expect(it.Count(7)).To(Equal(3))
		Expect(it.Count(8)).To(Equal(0))
		Expect(dociter.Collect(it)).To(Equal([]uint64{7, 14}))
		Expect(it.Done()).To(BeTrue())
	})

	It("should handle empty postings", func() {
		it, err := subject.PostingsIterator("cherry")
		Expect(err).NotTo(HaveOccurred())
		Expect(it.Done()).To(BeTrue())
		Expect(it.TotalEntries()).To(Equal(int64(0)))
	})

	It("should skip", func() {
		it, err := subject.PostingsIterator("banana")
		Expect(err).NotTo(HaveOccurred())
		Expect(it.Flags().Has(dociter.HasSkips)).To(BeTrue())

		Expect(it.SkipTo(700)).To(BeTrue())
		Expect(it.Count(700)).To(Equal(1))
		Expect(it.SkipTo(701)).To(BeFalse())
		Expect(it.Candidate()).To(Equal(uint64(707)))
		Expect(it.Count(707)).To(Equal(3))

		// never backwards
		Expect(it.SkipTo(7)).To(BeFalse())
		Expect(it.Candidate()).To(Equal(uint64(707)))

		Expect(it.SkipTo(3493)).To(BeTrue())
		Expect(it.SkipTo(3494)).To(BeFalse())
		Expect(it.Done()).To(BeTrue())
	})

	DescribeTable("should skip like it moves",
		func(interval int, targets []uint64) {
			subject := open(interval)
			defer subject.Close()

			skipper, err := subject.PostingsIterator("banana")
			Expect(err).NotTo(HaveOccurred())
			mover, err := subject.PostingsIterator("banana")
			Expect(err).NotTo(HaveOccurred())

			for _, target := range targets {
				found, err := skipper.SkipTo(target)
				Expect(err).NotTo(HaveOccurred())
				Expect(mover.MoveTo(target)).To(Succeed())

				Expect(found).To(Equal(mover.HasMatch(target)), "target %d", target)
				Expect(skipper.Done()).To(Equal(mover.Done()), "target %d", target)
				if !mover.Done() {
					Expect(skipper.Candidate()).To(Equal(mover.Candidate()), "target %d", target)
					Expect(skipper.Count(target)).To(Equal(mover.Count(target)), "target %d", target)
				}
			}
		},
		Entry("interval 4", 4, []uint64{0, 1, 27, 28, 29, 500, 1001, 1001, 2000, 3493, 4000}),
		Entry("interval 1", 1, []uint64{3, 14, 15, 3000, 3500}),
		Entry("interval 128", 128, []uint64{895, 896, 897, 1792, 3493}),
		Entry("no skips", -1, []uint64{1, 700, 3500}),
	)

	It("should serve the counts operator", func() {
		it, err := subject.Iterator(operator.NewNode("counts", "term", "apple"))
		Expect(err).NotTo(HaveOccurred())
		Expect(dociter.Collect(it)).To(Equal([]uint64{0, 7, 14}))

		it, err = subject.Iterator(operator.NewNode("counts", "default", "banana"))
		Expect(err).NotTo(HaveOccurred())
		Expect(it.(dociter.Counts).TotalEntries()).To(Equal(int64(500)))

		it, err = subject.Iterator(operator.NewNode("counts", "term", "durian"))
		Expect(err).NotTo(HaveOccurred())
		Expect(it.Done()).To(BeTrue())

		_, err = subject.Iterator(operator.NewNode("lengths"))
		Expect(err).To(MatchError(operator.ErrUnsupported))
	})

	It("should report missing terms", func() {
		_, err := subject.PostingsIterator("durian")
		Expect(err).To(MatchError(parts.ErrNotFound))
	})

	It("should walk terms", func() {
		it, err := subject.KeyIterator()
		Expect(err).NotTo(HaveOccurred())
		defer it.Release()

		out := new(bytes.Buffer)
		for ; !it.Done(); it.Next() {
			Expect(it.WriteRecord(out)).To(Succeed())
		}
		Expect(out.String()).To(Equal("apple\t3\nbanana\t500\ncherry\t0\n"))

		it2, err := subject.KeyIterator()
		Expect(err).NotTo(HaveOccurred())
		defer it2.Release()
		Expect(it2.Term()).To(Equal("apple"))

		pi, err := it2.PostingsIterator()
		Expect(err).NotTo(HaveOccurred())
		Expect(pi.TotalEntries()).To(Equal(int64(3)))
	})

	It("should validate appends", func() {
		w := parts.NewPostingsWriter(new(bytes.Buffer), nil)
		Expect(w.Append("a", []parts.Posting{{Doc: 2}, {Doc: 2}})).To(MatchError(`parts: postings of "a" out of order, 2 must be > 2`))
		Expect(w.Append("a", []parts.Posting{{Doc: 2, Count: -1}})).To(MatchError(`parts: negative count for "a" in document 2`))
		Expect(w.Append("b", nil)).To(Succeed())
		Expect(w.Append("a", nil)).To(MatchError(ContainSubstring("out-of-order")))
	})

	It("should reject corrupt values", func() {
		buf := new(bytes.Buffer)
		w := snindex.NewWriter(buf, nil)
		Expect(w.Append([]byte("bad"), []byte{5, 0, 9})).To(Succeed())
		Expect(w.Close()).To(Succeed())

		corrupt := parts.NewPostings(openReader(buf))
		_, err := corrupt.PostingsIterator("bad")
		Expect(err).To(MatchError(snindex.ErrCorrupt))
	})
})
