package audit_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/glassbox/pkg/audit"
	"github.com/papercomputeco/glassbox/pkg/storage"
	"github.com/papercomputeco/glassbox/pkg/storage/inmemory"
)

func fixedClock() func() time.Time {
	var (
		mu sync.Mutex
		t  = time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Millisecond)
		return t
	}
}

var _ = Describe("Log", func() {
	var (
		ctx   context.Context
		store *inmemory.Driver
		log   *audit.Log
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewDriver()
		var err error
		log, err = audit.Open(ctx, store, audit.WithClock(fixedClock()))
		Expect(err).NotTo(HaveOccurred())
	})

	appendN := func(n int) []*audit.Record {
		out := make([]*audit.Record, n)
		for i := 0; i < n; i++ {
			r, err := log.Append(ctx, fmt.Sprintf("p%d", i), fmt.Sprintf("r%d", i))
			Expect(err).NotTo(HaveOccurred())
			out[i] = r
		}
		return out
	}

	Describe("Open", func() {
		It("writes the header to an empty store", func() {
			h, err := store.Header(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(h).To(Equal(audit.DefaultHeader()))
		})

		It("starts at the genesis hash", func() {
			root, err := log.RootHash()
			Expect(err).NotTo(HaveOccurred())
			Expect(root).To(Equal(audit.GenesisHash))
			Expect(log.Len()).To(BeZero())
		})

		It("rebuilds the root by replay", func() {
			records := appendN(4)
			reopened, err := audit.Open(ctx, store)
			Expect(err).NotTo(HaveOccurred())
			root, err := reopened.RootHash()
			Expect(err).NotTo(HaveOccurred())
			Expect(root).To(Equal(records[3].RecordHash))
			Expect(reopened.Len()).To(Equal(uint64(4)))
		})

		It("refuses a tampered store", func() {
			appendN(3)
			store.Tamper(1, func(w *storage.WireRecord) { w.Prompt = "edited" })
			_, err := audit.Open(ctx, store)
			Expect(err).To(MatchError(audit.ErrCorruption))
			var ce *audit.CorruptionError
			Expect(errors.As(err, &ce)).To(BeTrue())
			Expect(ce.Sequence).To(Equal(uint64(1)))
		})

		It("refuses an unknown header", func() {
			s := inmemory.NewDriver()
			Expect(s.WriteHeader(ctx, &audit.Header{FormatVersion: 2, GenesisHash: audit.GenesisHash})).To(Succeed())
			_, err := audit.Open(ctx, s)
			Expect(err).To(MatchError(audit.ErrCorruption))
		})

		It("surfaces a header write failure as a persistence error", func() {
			s := inmemory.NewDriver()
			Expect(s.Close()).To(Succeed())
			_, err := audit.Open(ctx, s)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Append", func() {
		It("chains each record to the previous root", func() {
			records := appendN(3)
			Expect(records[0].PrevHash).To(Equal(audit.GenesisHash))
			Expect(records[1].PrevHash).To(Equal(records[0].RecordHash))
			Expect(records[2].PrevHash).To(Equal(records[1].RecordHash))
			for i, r := range records {
				Expect(r.Sequence).To(Equal(uint64(i)))
			}
		})

		It("returns the new root as H(prev || H(p) || H(r) || seq)", func() {
			r, err := log.Append(ctx, "2+2=", "4")
			Expect(err).NotTo(HaveOccurred())
			Expect(r.RecordHash).To(Equal(expectedHash(audit.GenesisHash, "2+2=", "4", 0)))
			root, _ := log.RootHash()
			Expect(root).To(Equal(r.RecordHash))
		})

		It("gives a repeated interaction a different root", func() {
			r1, err := log.Append(ctx, "2+2=", "4")
			Expect(err).NotTo(HaveOccurred())
			r2, err := log.Append(ctx, "2+2=", "4")
			Expect(err).NotTo(HaveOccurred())
			Expect(r2.RecordHash).NotTo(Equal(r1.RecordHash))
		})

		It("leaves the log unchanged when storage fails", func() {
			appendN(1)
			before, _ := log.RootHash()

			store.AppendErr = errors.New("disk full")
			_, err := log.Append(ctx, "p", "r")
			Expect(err).To(MatchError(audit.ErrPersistence))
			var pe *audit.PersistenceError
			Expect(errors.As(err, &pe)).To(BeTrue())
			Expect(pe.Sequence).To(Equal(uint64(1)))

			after, _ := log.RootHash()
			Expect(after).To(Equal(before))
			Expect(log.Len()).To(Equal(uint64(1)))

			store.AppendErr = nil
			r, err := log.Append(ctx, "p", "r")
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Sequence).To(Equal(uint64(1)))
		})

		It("totally orders concurrent appends", func() {
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					_, err := log.Append(ctx, fmt.Sprintf("p%d", i), "r")
					Expect(err).NotTo(HaveOccurred())
				}(i)
			}
			wg.Wait()
			Expect(log.Len()).To(Equal(uint64(20)))
			Expect(log.VerifyAll(ctx)).To(Succeed())
		})
	})

	Describe("RootHashAt", func() {
		It("returns the root after each append", func() {
			records := appendN(3)
			for i, r := range records {
				h, err := log.RootHashAt(uint64(i))
				Expect(err).NotTo(HaveOccurred())
				Expect(h).To(Equal(r.RecordHash))
			}
			_, err := log.RootHashAt(3)
			Expect(err).To(MatchError(audit.ErrOutOfRange))
		})
	})

	Describe("Record", func() {
		It("reads a record back from storage", func() {
			records := appendN(2)
			r, err := log.Record(ctx, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Prompt).To(Equal("p1"))
			Expect(r.Timestamp.Equal(records[1].Timestamp)).To(BeTrue())
		})

		It("fails past the end", func() {
			_, err := log.Record(ctx, 0)
			Expect(err).To(MatchError(audit.ErrOutOfRange))
		})
	})

	Describe("Verify", func() {
		It("succeeds on an untouched log", func() {
			appendN(5)
			Expect(log.Verify(ctx, 0, 5)).To(Succeed())
			Expect(log.Verify(ctx, 2, 4)).To(Succeed())
			Expect(log.Verify(ctx, 5, 5)).To(Succeed())
		})

		It("rejects ranges past the end", func() {
			appendN(2)
			Expect(log.Verify(ctx, 0, 3)).To(MatchError(audit.ErrOutOfRange))
			Expect(log.Verify(ctx, 2, 1)).To(HaveOccurred())
		})

		DescribeTable("detects tampering at the edited sequence",
			func(edit func(*storage.WireRecord)) {
				appendN(4)
				store.Tamper(2, edit)

				err := log.Verify(ctx, 0, 4)
				Expect(err).To(MatchError(audit.ErrCorruption))
				var ce *audit.CorruptionError
				Expect(errors.As(err, &ce)).To(BeTrue())
				Expect(ce.Sequence).To(Equal(uint64(2)))
			},
			Entry("prompt", func(w *storage.WireRecord) { w.Prompt += "!" }),
			Entry("response", func(w *storage.WireRecord) { w.Response = "" }),
			Entry("timestamp", func(w *storage.WireRecord) { w.TimestampNS++ }),
			Entry("sequence", func(w *storage.WireRecord) { w.Sequence = 7 }),
			Entry("prev hash", func(w *storage.WireRecord) { w.PrevHash = audit.GenesisHash }),
			Entry("seal", func(w *storage.WireRecord) { w.Seal = w.RecordHash }),
		)

		It("detects a consistently rehashed record against the replayed chain", func() {
			appendN(3)
			forged, err := audit.NewRecord(audit.GenesisHash, 0, time.Now().UTC(), "forged", "record")
			Expect(err).NotTo(HaveOccurred())
			store.Tamper(0, func(w *storage.WireRecord) { *w = storage.ToWire(forged) })

			err = log.Verify(ctx, 0, 1)
			Expect(err).To(MatchError(audit.ErrCorruption))
		})

		It("detects reordering", func() {
			records := appendN(3)
			store.Tamper(1, func(w *storage.WireRecord) { *w = storage.ToWire(records[2]) })
			Expect(log.Verify(ctx, 0, 3)).To(MatchError(audit.ErrCorruption))
		})

		It("detects truncation", func() {
			appendN(3)
			store.Truncate(1)
			err := log.Verify(ctx, 0, 3)
			Expect(err).To(MatchError(audit.ErrCorruption))
			Expect(err.(*audit.CorruptionError).Sequence).To(Equal(uint64(1)))
		})

		It("only checks the requested range", func() {
			appendN(4)
			store.Tamper(3, func(w *storage.WireRecord) { w.Prompt = "x" })
			Expect(log.Verify(ctx, 0, 3)).To(Succeed())
		})

		It("poisons the log once corruption is found", func() {
			appendN(2)
			store.Tamper(0, func(w *storage.WireRecord) { w.Prompt = "x" })
			first := log.Verify(ctx, 0, 2)
			Expect(first).To(MatchError(audit.ErrCorruption))

			_, err := log.Append(ctx, "p", "r")
			Expect(err).To(Equal(first))
			_, err = log.RootHash()
			Expect(err).To(Equal(first))
			_, err = log.RootHashAt(0)
			Expect(err).To(Equal(first))
			_, err = log.InclusionProof(0)
			Expect(err).To(Equal(first))
			Expect(log.Verify(ctx, 1, 2)).To(Equal(first))
		})
	})

	Describe("CheckAnchor", func() {
		It("accepts the current state and any earlier prefix", func() {
			records := appendN(3)
			Expect(log.CheckAnchor(3, records[2].RecordHash)).To(Succeed())
			Expect(log.CheckAnchor(1, records[0].RecordHash)).To(Succeed())
			Expect(log.CheckAnchor(0, "")).To(Succeed())
		})

		It("reports a log shorter than the anchor", func() {
			records := appendN(2)

			reopened, err := audit.Open(ctx, store)
			Expect(err).NotTo(HaveOccurred())
			store.Truncate(1)
			truncated, err := audit.Open(ctx, store)
			Expect(err).NotTo(HaveOccurred())

			Expect(reopened.CheckAnchor(2, records[1].RecordHash)).To(Succeed())
			err = truncated.CheckAnchor(2, records[1].RecordHash)
			Expect(err).To(MatchError(audit.ErrTruncated))
			Expect(err).To(MatchError(audit.ErrCorruption))
			Expect(err.(*audit.CorruptionError).Sequence).To(Equal(uint64(1)))
		})

		It("reports a root that differs from the anchor", func() {
			appendN(2)
			err := log.CheckAnchor(2, audit.GenesisHash)
			Expect(err).To(MatchError(audit.ErrCorruption))
			Expect(err.(*audit.CorruptionError).Sequence).To(Equal(uint64(1)))

			_, err = log.RootHash()
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("Merkle proofs", func() {
		It("proves every record against the Merkle root", func() {
			appendN(6)
			root, err := log.MerkleRoot()
			Expect(err).NotTo(HaveOccurred())
			for seq := uint64(0); seq < 6; seq++ {
				p, err := log.InclusionProof(seq)
				Expect(err).NotTo(HaveOccurred())
				Expect(p.Root).To(Equal(root))
				Expect(p.TreeSize).To(Equal(uint64(6)))
				Expect(audit.VerifyProof(p)).To(BeTrue())
			}
		})

		It("rejects a proof for a different record", func() {
			records := appendN(3)
			p, err := log.InclusionProof(1)
			Expect(err).NotTo(HaveOccurred())
			p.RecordHash = records[2].RecordHash
			Expect(audit.VerifyProof(p)).To(BeFalse())
		})

		It("rejects malformed proofs", func() {
			appendN(2)
			p, err := log.InclusionProof(0)
			Expect(err).NotTo(HaveOccurred())
			p.Path[0] = "zz"
			Expect(audit.VerifyProof(p)).To(BeFalse())
		})

		It("fails past the end", func() {
			_, err := log.InclusionProof(0)
			Expect(err).To(MatchError(audit.ErrOutOfRange))
		})

		It("keeps the Merkle root distinct from the chain root", func() {
			appendN(2)
			chain, _ := log.RootHash()
			tree, _ := log.MerkleRoot()
			Expect(tree).NotTo(Equal(chain))
		})
	})
})
