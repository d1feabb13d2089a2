package retrieval_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/glassbox/pkg/model"
	"github.com/papercomputeco/glassbox/pkg/retrieval"
	testutils "github.com/papercomputeco/glassbox/pkg/utils/test"
	"github.com/papercomputeco/glassbox/pkg/vector"
)

var _ = Describe("Retriever", func() {
	var (
		ctx      context.Context
		embedder *testutils.MockEmbedder
		store    *vector.Store
	)

	BeforeEach(func() {
		ctx = context.Background()
		embedder = testutils.NewMockEmbedder(2)
		embedder.Embeddings["query"] = []float32{0, 0}
		embedder.Embeddings["alpha"] = []float32{1, 0}
		embedder.Embeddings["bravo"] = []float32{2, 0}
		embedder.Embeddings["charlie"] = []float32{3, 0}

		var err error
		store, err = vector.NewStore(ctx, testutils.NewMockVectorDriver(2), embedder, vector.StoreConfig{}, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		// Insert out of rank order.
		for _, t := range []string{"charlie", "alpha", "bravo"} {
			_, err := store.Insert(ctx, t, "")
			Expect(err).NotTo(HaveOccurred())
		}
	})

	It("fails when no store is attached", func() {
		r := retrieval.New(nil, model.ByteTokenizer{}, retrieval.Config{}, zap.NewNop())
		_, err := r.Retrieve(ctx, "query")
		Expect(err).To(MatchError(retrieval.ErrUnavailable))
	})

	It("fails once the store is closed", func() {
		r := retrieval.New(store, model.ByteTokenizer{}, retrieval.Config{}, zap.NewNop())
		Expect(store.Close()).To(Succeed())
		_, err := r.Retrieve(ctx, "query")
		Expect(err).To(MatchError(retrieval.ErrUnavailable))
	})

	It("joins chunks in rank order", func() {
		r := retrieval.New(store, model.ByteTokenizer{}, retrieval.Config{}, zap.NewNop())
		w, err := r.Retrieve(ctx, "query")
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Text).To(Equal("alpha\nbravo\ncharlie"))
		Expect(w.Tokens).To(Equal(len("alpha\nbravo\ncharlie")))
		Expect(w.Chunks).To(HaveLen(3))
		Expect(w.Dropped).To(Equal(0))
	})

	It("embeds the prompt with the store's embedder", func() {
		r := retrieval.New(store, model.ByteTokenizer{}, retrieval.Config{}, zap.NewNop())
		_, err := r.Retrieve(ctx, "query")
		Expect(err).NotTo(HaveOccurred())
		Expect(embedder.Calls).To(ContainElement("query"))
	})

	It("requests only TopN chunks", func() {
		r := retrieval.New(store, model.ByteTokenizer{}, retrieval.Config{TopN: 2}, zap.NewNop())
		w, err := r.Retrieve(ctx, "query")
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Text).To(Equal("alpha\nbravo"))
	})

	It("drops the lowest ranked chunks that do not fit", func() {
		// "alpha\nbravo" is 11 bytes; adding "\ncharlie" exceeds 15.
		r := retrieval.New(store, model.ByteTokenizer{}, retrieval.Config{MaxContextTokens: 15}, zap.NewNop())
		w, err := r.Retrieve(ctx, "query")
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Text).To(Equal("alpha\nbravo"))
		Expect(w.Dropped).To(Equal(1))
	})

	It("never cuts a chunk", func() {
		r := retrieval.New(store, model.ByteTokenizer{}, retrieval.Config{MaxContextTokens: 3}, zap.NewNop())
		w, err := r.Retrieve(ctx, "query")
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Text).To(BeEmpty())
		Expect(w.Chunks).To(BeEmpty())
		Expect(w.Dropped).To(Equal(3))
	})

	It("returns an empty window for an empty store", func() {
		empty, err := vector.NewStore(ctx, testutils.NewMockVectorDriver(2), embedder, vector.StoreConfig{}, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		r := retrieval.New(empty, model.ByteTokenizer{}, retrieval.Config{}, zap.NewNop())
		w, err := r.Retrieve(ctx, "query")
		Expect(err).NotTo(HaveOccurred())
		Expect(w.Text).To(BeEmpty())
	})

	It("produces the same window on repeated calls", func() {
		r := retrieval.New(store, model.ByteTokenizer{}, retrieval.Config{}, zap.NewNop())
		a, err := r.Retrieve(ctx, "query")
		Expect(err).NotTo(HaveOccurred())
		b, err := r.Retrieve(ctx, "query")
		Expect(err).NotTo(HaveOccurred())
		Expect(b).To(Equal(a))
	})
})
