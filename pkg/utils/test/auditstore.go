package testutils

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/glassbox/pkg/audit"
	"github.com/papercomputeco/glassbox/pkg/storage"
)

// NewTestRecords builds a valid chain of n records starting at genesis.
func NewTestRecords(n int) []*audit.Record {
	base := time.Date(2026, 1, 2, 3, 4, 5, 6, time.UTC)
	prev := audit.GenesisHash
	out := make([]*audit.Record, n)
	for i := 0; i < n; i++ {
		r, err := audit.NewRecord(prev, uint64(i), base.Add(time.Duration(i)*time.Second),
			fmt.Sprintf("prompt %d", i), fmt.Sprintf("response %d", i))
		Expect(err).NotTo(HaveOccurred())
		out[i] = r
		prev = r.RecordHash
	}
	return out
}

// AuditStoreBehaviour registers the tests every storage.Driver must pass.
// newStore must return an empty store.
func AuditStoreBehaviour(newStore func() storage.Driver) {
	var (
		ctx   context.Context
		store storage.Driver
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = newStore()
	})

	AfterEach(func() {
		if store != nil {
			_ = store.Close()
		}
	})

	It("starts without a header or records", func() {
		h, err := store.Header(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(h).To(BeNil())

		n, err := store.Count(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(BeZero())
	})

	It("stores the header", func() {
		Expect(store.WriteHeader(ctx, audit.DefaultHeader())).To(Succeed())
		h, err := store.Header(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(h).To(Equal(audit.DefaultHeader()))
	})

	It("appends and ranges over records", func() {
		Expect(store.WriteHeader(ctx, audit.DefaultHeader())).To(Succeed())
		records := NewTestRecords(5)
		for _, r := range records {
			Expect(store.Append(ctx, r)).To(Succeed())
		}

		n, err := store.Count(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(uint64(5)))

		got, err := store.Range(ctx, 1, 4)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(HaveLen(3))
		for i, r := range got {
			want := records[i+1]
			Expect(r.Sequence).To(Equal(want.Sequence))
			Expect(r.Timestamp.Equal(want.Timestamp)).To(BeTrue())
			Expect(r.Prompt).To(Equal(want.Prompt))
			Expect(r.Response).To(Equal(want.Response))
			Expect(r.PrevHash).To(Equal(want.PrevHash))
			Expect(r.RecordHash).To(Equal(want.RecordHash))
			Expect(r.Seal).To(Equal(want.Seal))
		}
	})

	It("returns an empty range past the end", func() {
		Expect(store.WriteHeader(ctx, audit.DefaultHeader())).To(Succeed())
		Expect(store.Append(ctx, NewTestRecords(1)[0])).To(Succeed())
		got, err := store.Range(ctx, 3, 9)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(BeEmpty())
	})

	It("rejects out of order appends", func() {
		Expect(store.WriteHeader(ctx, audit.DefaultHeader())).To(Succeed())
		records := NewTestRecords(3)
		Expect(store.Append(ctx, records[0])).To(Succeed())
		Expect(store.Append(ctx, records[2])).NotTo(Succeed())
		Expect(store.Append(ctx, records[0])).NotTo(Succeed())

		n, err := store.Count(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(uint64(1)))
	})

	It("round trips unusual text", func() {
		Expect(store.WriteHeader(ctx, audit.DefaultHeader())).To(Succeed())
		r, err := audit.NewRecord(audit.GenesisHash, 0, time.Unix(0, 1).UTC(), "<b>\"quoted\"\n\ttab & é", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Append(ctx, r)).To(Succeed())

		got, err := store.Range(ctx, 0, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(got[0].Prompt).To(Equal(r.Prompt))
		Expect(got[0].Response).To(BeEmpty())
	})
}
