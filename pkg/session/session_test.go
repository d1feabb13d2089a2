package session_test

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/glassbox/pkg/audit"
	"github.com/papercomputeco/glassbox/pkg/eventstream"
	"github.com/papercomputeco/glassbox/pkg/eventstream/memory"
	"github.com/papercomputeco/glassbox/pkg/model"
	"github.com/papercomputeco/glassbox/pkg/session"
	"github.com/papercomputeco/glassbox/pkg/storage"
	"github.com/papercomputeco/glassbox/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/glassbox/pkg/utils/test"
	vectorutils "github.com/papercomputeco/glassbox/pkg/vector/utils"
)

func chainHash(prev string, seq uint64, prompt, response string) string {
	prevRaw, err := hex.DecodeString(prev)
	Expect(err).NotTo(HaveOccurred())
	p := sha256.Sum256([]byte(prompt))
	r := sha256.Sum256([]byte(response))
	h := sha256.New()
	h.Write(prevRaw)
	h.Write(p[:])
	h.Write(r[:])
	_ = binary.Write(h, binary.BigEndian, seq)
	return hex.EncodeToString(h.Sum(nil))
}

var _ = Describe("Session", func() {
	var (
		ctx      context.Context
		dir      string
		dbPath   string
		tm       *testutils.TableModel
		embedder *testutils.MockEmbedder
		store    *inmemory.Driver
		s        *session.Session
	)

	newSession := func(extra ...func(*session.Options)) *session.Session {
		opts := session.Options{
			Loader:         testutils.TableLoader(tm),
			Embedder:       embedder,
			VectorProvider: vectorutils.ProviderMemory,
			AuditStore:     store,
			Logger:         zap.NewNop(),
		}
		for _, fn := range extra {
			fn(&opts)
		}
		return session.New(opts)
	}

	BeforeEach(func() {
		ctx = context.Background()
		dir = GinkgoT().TempDir()
		dbPath = filepath.Join(dir, "vectors.gbvs")
		tm = testutils.NewTableModel(map[string]string{"2+2=": "4"})
		embedder = testutils.NewMockEmbedder(4)
		store = inmemory.NewDriver()
		s = newSession()
	})

	Describe("before Initialize", func() {
		It("is uninitialized", func() {
			Expect(s.State()).To(Equal(session.Uninitialized))
		})

		It("rejects every operation", func() {
			_, err := s.Generate(ctx, "2+2=")
			Expect(err).To(MatchError(session.ErrNotInitialized))

			_, err = s.LogInteraction(ctx, "p", "r")
			Expect(err).To(MatchError(session.ErrNotInitialized))

			_, err = s.Ingest(ctx, "text", "ref")
			Expect(err).To(MatchError(session.ErrNotInitialized))

			_, err = s.AuditRootAt(0)
			Expect(err).To(MatchError(session.ErrNotInitialized))

			Expect(s.VerifyAudit(ctx, 0, 0)).To(MatchError(session.ErrNotInitialized))
			Expect(s.Persist(ctx)).To(MatchError(session.ErrNotInitialized))
		})

		It("closes as a no-op", func() {
			Expect(s.Close()).To(Succeed())
		})
	})

	Describe("Initialize", func() {
		It("becomes ready", func() {
			Expect(s.Initialize(ctx, "model.bin", dbPath)).To(Succeed())
			Expect(s.State()).To(Equal(session.Ready))
		})

		It("succeeds only once and keeps the first session", func() {
			Expect(s.Initialize(ctx, "model.bin", dbPath)).To(Succeed())
			_, err := s.LogInteraction(ctx, "p", "r")
			Expect(err).NotTo(HaveOccurred())

			Expect(s.Initialize(ctx, "other.bin", filepath.Join(dir, "other.gbvs"))).To(MatchError(session.ErrAlreadyInitialized))
			Expect(s.State()).To(Equal(session.Ready))

			root, err := s.AuditRootAt(0)
			Expect(err).NotTo(HaveOccurred())
			Expect(root).To(Equal(chainHash(audit.GenesisHash, 0, "p", "r")))
		})

		It("lets exactly one of many concurrent calls win", func() {
			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				wins     int
				rejected int
			)
			for range 8 {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					err := s.Initialize(ctx, "model.bin", dbPath)
					mu.Lock()
					defer mu.Unlock()
					if err == nil {
						wins++
					} else {
						Expect(err).To(MatchError(session.ErrAlreadyInitialized))
						rejected++
					}
				}()
			}
			wg.Wait()
			Expect(wins).To(Equal(1))
			Expect(rejected).To(Equal(7))
		})

		It("fails fast on an empty model path", func() {
			err := s.Initialize(ctx, "", dbPath)
			Expect(err).To(MatchError(model.ErrModelNotFound))
			Expect(s.State()).To(Equal(session.Uninitialized))
			Expect(embedder.Calls).To(BeEmpty())
		})

		It("reports a missing model file with the default loader", func() {
			plain := session.New(session.Options{
				Embedder:       embedder,
				VectorProvider: vectorutils.ProviderMemory,
				AuditStore:     store,
			})
			err := plain.Initialize(ctx, filepath.Join(dir, "missing.bin"), dbPath)
			Expect(err).To(MatchError(model.ErrModelNotFound))
			Expect(plain.State()).To(Equal(session.Uninitialized))
		})

		It("closes what it opened when a later step fails", func() {
			seed, err := audit.Open(ctx, store)
			Expect(err).NotTo(HaveOccurred())
			_, err = seed.Append(ctx, "p", "r")
			Expect(err).NotTo(HaveOccurred())
			store.Tamper(0, func(w *storage.WireRecord) { w.Response = "R" })

			err = s.Initialize(ctx, "model.bin", dbPath)
			Expect(err).To(MatchError(audit.ErrCorruption))
			Expect(s.State()).To(Equal(session.Uninitialized))
			Expect(tm.Closed).To(BeTrue())
			Expect(embedder.Closed).To(BeTrue())
		})

		It("can be retried after a failure", func() {
			Expect(s.Initialize(ctx, "", dbPath)).NotTo(Succeed())
			Expect(s.Initialize(ctx, "model.bin", dbPath)).To(Succeed())
		})

		It("rejects a vector store created with another dimensionality", func() {
			Expect(s.Initialize(ctx, "model.bin", dbPath)).To(Succeed())
			_, err := s.Ingest(ctx, "hello", "ref")
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Close()).To(Succeed())

			wider := newSession(func(o *session.Options) {
				o.Embedder = testutils.NewMockEmbedder(8)
				o.AuditStore = inmemory.NewDriver()
			})
			err = wider.Initialize(ctx, "model.bin", dbPath)
			Expect(err).To(HaveOccurred())
			Expect(wider.State()).To(Equal(session.Uninitialized))
		})
	})

	Describe("when ready", func() {
		BeforeEach(func() {
			Expect(s.Initialize(ctx, "model.bin", dbPath)).To(Succeed())
		})

		It("answers 2+2= with 4 and chains two logged interactions", func() {
			resp, err := s.Generate(ctx, "2+2=")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp).To(Equal("4"))

			r1, err := s.LogInteraction(ctx, "2+2=", resp)
			Expect(err).NotTo(HaveOccurred())
			Expect(r1).To(Equal(chainHash(audit.GenesisHash, 0, "2+2=", "4")))

			r2, err := s.LogInteraction(ctx, "2+2=", resp)
			Expect(err).NotTo(HaveOccurred())
			Expect(r2).To(Equal(chainHash(r1, 1, "2+2=", "4")))
			Expect(r2).NotTo(Equal(r1))

			Expect(s.VerifyAudit(ctx, 0, 2)).To(Succeed())
			Expect(s.AuditRootAt(0)).To(Equal(r1))
		})

		It("does not log generations on its own", func() {
			_, err := s.Generate(ctx, "2+2=")
			Expect(err).NotTo(HaveOccurred())

			log, err := s.Audit()
			Expect(err).NotTo(HaveOccurred())
			Expect(log.Len()).To(BeZero())
		})

		It("is deterministic across calls", func() {
			first, err := s.Generate(ctx, "2+2=")
			Expect(err).NotTo(HaveOccurred())
			for range 5 {
				Expect(s.Generate(ctx, "2+2=")).To(Equal(first))
			}
		})

		It("answers with retrieved context present", func() {
			_, err := s.Ingest(ctx, "arithmetic facts", "notes#0")
			Expect(err).NotTo(HaveOccurred())

			gen, err := s.Generation(ctx, "2+2=")
			Expect(err).NotTo(HaveOccurred())
			Expect(gen.Response).To(Equal("4"))
			Expect(gen.Context.Chunks).To(HaveLen(1))
			Expect(gen.Context.Text).To(Equal("arithmetic facts"))
		})

		It("ingests files through the ingester", func() {
			doc := filepath.Join(dir, "doc.txt")
			Expect(os.WriteFile(doc, []byte("One. Two."), 0o600)).To(Succeed())

			report, err := s.IngestPaths(ctx, doc)
			Expect(err).NotTo(HaveOccurred())
			Expect(report.Inserted).To(Equal(1))
			Expect(s.Chunks()).To(Equal(1))
		})

		It("persists the vector store across sessions", func() {
			_, err := s.Ingest(ctx, "kept across restarts", "ref")
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Persist(ctx)).To(Succeed())
			Expect(s.Close()).To(Succeed())

			again := newSession(func(o *session.Options) {
				o.Embedder = testutils.NewMockEmbedder(4)
				o.AuditStore = inmemory.NewDriver()
			})
			Expect(again.Initialize(ctx, "model.bin", dbPath)).To(Succeed())
			Expect(again.Chunks()).To(Equal(1))
		})

		It("emits structured events in order", func() {
			var (
				mu    sync.Mutex
				types []string
			)
			s.Subscribe(func(_ context.Context, e *eventstream.Event) error {
				mu.Lock()
				defer mu.Unlock()
				types = append(types, e.EventType)
				return nil
			})

			resp, err := s.Generate(ctx, "2+2=")
			Expect(err).NotTo(HaveOccurred())
			_, err = s.LogInteraction(ctx, "2+2=", resp)
			Expect(err).NotTo(HaveOccurred())

			Expect(types).To(Equal([]string{
				eventstream.EventTypeContextRetrieved,
				eventstream.EventTypeResponseGenerated,
				eventstream.EventTypeAppended,
			}))
		})

		It("delivers events to publishers after subscribers", func() {
			sink := memory.NewPublisher()
			withSink := newSession(func(o *session.Options) {
				o.Embedder = testutils.NewMockEmbedder(4)
				o.AuditStore = inmemory.NewDriver()
				o.Publishers = []eventstream.Publisher{sink}
			})
			Expect(withSink.Initialize(ctx, "model.bin", filepath.Join(dir, "sink.gbvs"))).To(Succeed())
			DeferCleanup(withSink.Close)

			_, err := withSink.LogInteraction(ctx, "p", "r")
			Expect(err).NotTo(HaveOccurred())
			Expect(sink.Types()).To(Equal([]string{
				eventstream.EventTypeInitialized,
				eventstream.EventTypeAppended,
			}))
			Expect(sink.Events()[1].Appended.RootHash).To(Equal(chainHash(audit.GenesisHash, 0, "p", "r")))

			// Publishers belong to the caller.
			Expect(withSink.Close()).To(Succeed())
			Expect(sink.Closed()).To(BeFalse())
		})

		It("never fails an operation because a subscriber failed", func() {
			s.Subscribe(func(context.Context, *eventstream.Event) error {
				return errors.New("subscriber down")
			})
			_, err := s.LogInteraction(ctx, "p", "r")
			Expect(err).NotTo(HaveOccurred())
		})

		It("surfaces audit persistence failures and keeps the root", func() {
			before, err := s.LogInteraction(ctx, "p", "r")
			Expect(err).NotTo(HaveOccurred())

			store.AppendErr = errors.New("disk full")
			_, err = s.LogInteraction(ctx, "p2", "r2")
			Expect(err).To(MatchError(audit.ErrPersistence))

			store.AppendErr = nil
			log, err := s.Audit()
			Expect(err).NotTo(HaveOccurred())
			Expect(log.RootHash()).To(Equal(before))
		})

		It("returns to uninitialized on close", func() {
			Expect(s.Close()).To(Succeed())
			Expect(s.State()).To(Equal(session.Uninitialized))
			Expect(tm.Closed).To(BeTrue())

			_, err := s.Generate(ctx, "2+2=")
			Expect(err).To(MatchError(session.ErrNotInitialized))
		})

		It("can be initialized again after close", func() {
			Expect(s.Close()).To(Succeed())

			reusable := newSession(func(o *session.Options) { o.AuditStore = nil })
			Expect(reusable.Initialize(ctx, "model.bin", dbPath)).To(Succeed())
			Expect(reusable.Close()).To(Succeed())
			Expect(reusable.Initialize(ctx, "model.bin", dbPath)).To(Succeed())
			Expect(reusable.Generate(ctx, "2+2=")).To(Equal("4"))
		})

		It("stamps records with the configured clock", func() {
			Expect(s.Close()).To(Succeed())
			at := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)
			clocked := newSession(func(o *session.Options) {
				o.Embedder = testutils.NewMockEmbedder(4)
				o.AuditStore = inmemory.NewDriver()
				o.Clock = func() time.Time { return at }
			})
			Expect(clocked.Initialize(ctx, "model.bin", dbPath)).To(Succeed())
			_, err := clocked.LogInteraction(ctx, "p", "r")
			Expect(err).NotTo(HaveOccurred())

			log, err := clocked.Audit()
			Expect(err).NotTo(HaveOccurred())
			rec, err := log.Record(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Timestamp.Equal(at)).To(BeTrue())
		})
	})
})
