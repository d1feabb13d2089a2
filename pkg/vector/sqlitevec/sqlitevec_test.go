package sqlitevec_test

import (
	"context"
	"database/sql"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/glassbox/pkg/vector"
	"github.com/papercomputeco/glassbox/pkg/vector/sqlitevec"
)

var _ = Describe("SQLiteVecDriver", func() {
	var (
		ctx    context.Context
		logger *zap.Logger
	)

	BeforeEach(func() {
		ctx = context.Background()
		logger = zap.NewNop()
	})

	chunk := func(text string, emb ...float32) *vector.Chunk {
		return &vector.Chunk{ID: vector.NewChunkID(text), Text: text, Embedding: emb, SourceRef: "ref:" + text}
	}

	Describe("NewSQLiteVecDriver", func() {
		It("should return an error when DBPath is empty", func() {
			_, err := sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{DBPath: ""}, logger)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("database path is required"))
		})

		It("should create a driver with an in-memory database", func() {
			driver, err := sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
				DBPath:     ":memory:",
				Dimensions: 4,
			}, logger)
			Expect(err).NotTo(HaveOccurred())
			Expect(driver.Spec()).To(Equal(vector.Spec{Metric: vector.MetricL2, Dimensions: 4}))
			Expect(driver.Close()).To(Succeed())
		})

		It("should error when dimension not specified", func() {
			_, err := sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
				DBPath: ":memory:",
			}, logger)
			Expect(err).To(HaveOccurred())
		})

		It("should error on an unknown metric", func() {
			_, err := sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
				DBPath:     ":memory:",
				Metric:     "hamming",
				Dimensions: 4,
			}, logger)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("with an in-memory database", func() {
		var driver *sqlitevec.SQLiteVecDriver

		BeforeEach(func() {
			var err error
			driver, err = sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
				DBPath:     ":memory:",
				Dimensions: 4,
			}, logger)
			Expect(err).NotTo(HaveOccurred())
		})

		AfterEach(func() {
			Expect(driver.Close()).To(Succeed())
		})

		It("should assign zero based sequence numbers", func() {
			a := chunk("a", 0.1, 0.2, 0.3, 0.4)
			b := chunk("b", 0.5, 0.6, 0.7, 0.8)
			added, err := driver.Add(ctx, a)
			Expect(err).NotTo(HaveOccurred())
			Expect(added).To(BeTrue())
			_, err = driver.Add(ctx, b)
			Expect(err).NotTo(HaveOccurred())
			Expect(a.Seq).To(Equal(uint64(0)))
			Expect(b.Seq).To(Equal(uint64(1)))
		})

		It("should leave an existing chunk untouched", func() {
			_, err := driver.Add(ctx, chunk("a", 0.1, 0.2, 0.3, 0.4))
			Expect(err).NotTo(HaveOccurred())

			dup := chunk("a", 0.9, 0.9, 0.9, 0.9)
			added, err := driver.Add(ctx, dup)
			Expect(err).NotTo(HaveOccurred())
			Expect(added).To(BeFalse())

			got, err := driver.Get(ctx, vector.NewChunkID("a"))
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Embedding).To(Equal([]float32{0.1, 0.2, 0.3, 0.4}))
		})

		It("should reject embeddings of the wrong width", func() {
			_, err := driver.Add(ctx, chunk("a", 0.1, 0.2))
			Expect(err).To(HaveOccurred())
		})

		It("should return all chunks in insertion order", func() {
			for _, t := range []string{"z", "y", "x"} {
				_, err := driver.Add(ctx, chunk(t, 1, 2, 3, 4))
				Expect(err).NotTo(HaveOccurred())
			}
			all, err := driver.All(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(3))
			Expect(all[0].Text).To(Equal("z"))
			Expect(all[2].Text).To(Equal("x"))
			Expect(all[2].SourceRef).To(Equal("ref:x"))

			n, err := driver.Count(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(3))
		})

		It("should rank inside sqlite in the same order as vector.Rank", func() {
			for _, c := range []*vector.Chunk{
				chunk("origin", 0, 0, 0, 0),
				chunk("far", 3, 0, 0, 0),
				chunk("near", 1, 0, 0, 0),
				chunk("near twin", 1, 0, 0, 0),
			} {
				_, err := driver.Add(ctx, c)
				Expect(err).NotTo(HaveOccurred())
			}
			query := []float32{0.9, 0, 0, 0}

			got, err := driver.Nearest(ctx, query, 3)
			Expect(err).NotTo(HaveOccurred())
			all, err := driver.All(ctx)
			Expect(err).NotTo(HaveOccurred())
			want := vector.Rank(vector.MetricL2, all, query, 3)

			Expect(got).To(HaveLen(3))
			for i := range want {
				Expect(got[i].ID).To(Equal(want[i].ID), "rank %d", i)
				Expect(got[i].Distance).To(BeNumerically("~", want[i].Distance, 1e-5))
			}
			Expect(got[0].Text).To(Equal("near"))
			Expect(got[1].Text).To(Equal("near twin"))
		})

		It("should return nothing from Nearest for k <= 0", func() {
			_, err := driver.Add(ctx, chunk("a", 1, 2, 3, 4))
			Expect(err).NotTo(HaveOccurred())
			got, err := driver.Nearest(ctx, []float32{1, 2, 3, 4}, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(got).To(BeEmpty())
		})

		It("should reject a Nearest query of the wrong width", func() {
			_, err := driver.Nearest(ctx, []float32{1, 2}, 1)
			Expect(err).To(MatchError(vector.ErrInvalidChunk))
		})

		It("should return ErrNotFound for a missing chunk", func() {
			_, err := driver.Get(ctx, "nope")
			Expect(err).To(MatchError(vector.ErrNotFound))
		})
	})

	Describe("with a database file", func() {
		var path string

		BeforeEach(func() {
			path = filepath.Join(GinkgoT().TempDir(), "vectors.db")
		})

		open := func(metric vector.Metric, dims uint) (*sqlitevec.SQLiteVecDriver, error) {
			return sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{DBPath: path, Metric: metric, Dimensions: dims}, logger)
		}

		It("should reload chunks after reopening", func() {
			d, err := open(vector.MetricCosine, 2)
			Expect(err).NotTo(HaveOccurred())
			_, err = d.Add(ctx, chunk("kept", 0.25, 0.75))
			Expect(err).NotTo(HaveOccurred())
			Expect(d.Persist(ctx)).To(Succeed())
			Expect(d.Close()).To(Succeed())

			d, err = open(vector.MetricCosine, 2)
			Expect(err).NotTo(HaveOccurred())
			defer d.Close()
			all, err := d.All(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(1))
			Expect(all[0].Embedding).To(Equal([]float32{0.25, 0.75}))
		})

		It("should rank by cosine distance when created with cosine", func() {
			d, err := open(vector.MetricCosine, 2)
			Expect(err).NotTo(HaveOccurred())
			defer d.Close()
			for _, c := range []*vector.Chunk{
				chunk("x axis", 1, 0),
				chunk("y axis", 0, 1),
				chunk("diagonal", 1, 1),
			} {
				_, err := d.Add(ctx, c)
				Expect(err).NotTo(HaveOccurred())
			}
			query := []float32{1, 0.2}

			got, err := d.Nearest(ctx, query, 3)
			Expect(err).NotTo(HaveOccurred())
			all, err := d.All(ctx)
			Expect(err).NotTo(HaveOccurred())
			want := vector.Rank(vector.MetricCosine, all, query, 3)
			for i := range want {
				Expect(got[i].ID).To(Equal(want[i].ID), "rank %d", i)
				Expect(got[i].Distance).To(BeNumerically("~", want[i].Distance, 1e-5))
			}
			Expect(got[0].Text).To(Equal("x axis"))
		})

		It("should refuse to load an embedding blob of the wrong width", func() {
			d, err := open(vector.MetricL2, 2)
			Expect(err).NotTo(HaveOccurred())
			_, err = d.Add(ctx, chunk("widened", 0.25, 0.75))
			Expect(err).NotTo(HaveOccurred())
			Expect(d.Close()).To(Succeed())

			db, err := sql.Open("sqlite3", path)
			Expect(err).NotTo(HaveOccurred())
			// Three little-endian float32 ones.
			_, err = db.Exec(`UPDATE vec_chunks SET embedding = x'0000803f0000803f0000803f'`)
			Expect(err).NotTo(HaveOccurred())
			Expect(db.Close()).To(Succeed())

			d, err = open(vector.MetricL2, 2)
			Expect(err).NotTo(HaveOccurred())
			defer d.Close()
			_, err = d.All(ctx)
			Expect(err).To(MatchError(ContainSubstring("3 dimensions")))
		})

		It("should refuse a different metric", func() {
			d, err := open(vector.MetricL2, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(d.Close()).To(Succeed())

			_, err = open(vector.MetricCosine, 2)
			Expect(err).To(MatchError(vector.ErrSpecMismatch))
		})

		It("should refuse different dimensions", func() {
			d, err := open(vector.MetricL2, 2)
			Expect(err).NotTo(HaveOccurred())
			Expect(d.Close()).To(Succeed())

			_, err = open(vector.MetricL2, 3)
			Expect(err).To(MatchError(vector.ErrSpecMismatch))
		})
	})
})
