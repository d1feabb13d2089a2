// Package session owns the engine, the vector store and the audit log for
// one interactive tool, and exposes the three operations its collaborator
// drives: initialize, generate and log an interaction.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/glassbox/pkg/audit"
	"github.com/papercomputeco/glassbox/pkg/decoder"
	"github.com/papercomputeco/glassbox/pkg/embeddings"
	embeddingutils "github.com/papercomputeco/glassbox/pkg/embeddings/utils"
	"github.com/papercomputeco/glassbox/pkg/engine"
	"github.com/papercomputeco/glassbox/pkg/eventstream"
	"github.com/papercomputeco/glassbox/pkg/ingest"
	"github.com/papercomputeco/glassbox/pkg/model"
	"github.com/papercomputeco/glassbox/pkg/model/digest"
	"github.com/papercomputeco/glassbox/pkg/retrieval"
	"github.com/papercomputeco/glassbox/pkg/storage"
	storageutils "github.com/papercomputeco/glassbox/pkg/storage/utils"
	"github.com/papercomputeco/glassbox/pkg/vector"
	vectorutils "github.com/papercomputeco/glassbox/pkg/vector/utils"
)

var (
	// ErrAlreadyInitialized is returned by Initialize on a session that is
	// initializing or ready.
	ErrAlreadyInitialized = errors.New("session already initialized")

	// ErrNotInitialized is returned by every operation before Initialize
	// succeeds. It is the engine's sentinel so callers match either.
	ErrNotInitialized = engine.ErrNotInitialized
)

// State is the lifecycle position of a Session.
type State int

const (
	Uninitialized State = iota
	Initializing
	Ready
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Session is the explicitly owned engine session. All methods are safe for
// concurrent use.
type Session struct {
	opts   Options
	bus    *eventstream.Bus
	logger *zap.Logger

	mu    sync.RWMutex
	state State

	modelPath string
	dbPath    string

	embedder   embeddings.Embedder
	store      *vector.Store
	auditStore storage.Driver
	log        *audit.Log
	engine     *engine.Engine
	ingester   *ingest.Ingester
}

// New creates an uninitialized session.
func New(opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.Logger = logger
	if opts.Loader == nil {
		opts.Loader = digest.Load
	}

	return &Session{
		opts:   opts,
		bus:    eventstream.NewBus(opts.Publishers...),
		logger: logger,
	}
}

// Subscribe registers an in-process event handler.
func (s *Session) Subscribe(h eventstream.Handler) {
	s.bus.Subscribe(h)
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// resources collects what Initialize has opened so far so a failure can
// close exactly those, newest first.
type resources struct {
	closers []func() error
}

func (r *resources) add(fn func() error) {
	r.closers = append(r.closers, fn)
}

func (r *resources) closeAll() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Initialize loads the model at modelPath and opens the vector store at
// dbPath and the configured audit log. It succeeds once; later calls fail
// with ErrAlreadyInitialized and leave the first session intact. On failure
// everything opened is closed and the session returns to Uninitialized.
func (s *Session) Initialize(ctx context.Context, modelPath, dbPath string) (err error) {
	s.mu.Lock()
	if s.state != Uninitialized {
		s.mu.Unlock()
		return ErrAlreadyInitialized
	}
	s.state = Initializing
	s.mu.Unlock()

	var res resources
	defer func() {
		if err == nil {
			return
		}
		if cerr := res.closeAll(); cerr != nil {
			s.logger.Warn("closing partially initialized session", zap.Error(cerr))
		}
		s.mu.Lock()
		s.state = Uninitialized
		s.mu.Unlock()
	}()

	if modelPath == "" {
		return fmt.Errorf("%w: empty model path", model.ErrModelNotFound)
	}

	start := time.Now()

	m, err := s.opts.Loader(modelPath)
	if err != nil {
		return fmt.Errorf("loading model: %w", err)
	}
	res.add(m.Close)

	embedder := s.opts.Embedder
	if embedder == nil {
		eo := s.opts.Embedding
		embedder, err = embeddingutils.NewEmbedder(&eo)
		if err != nil {
			return fmt.Errorf("creating embedder: %w", err)
		}
	}
	res.add(embedder.Close)

	driver, err := vectorutils.NewVectorDriver(&vectorutils.NewVectorDriverOpts{
		ProviderType: s.opts.VectorProvider,
		Path:         dbPath,
		Metric:       s.opts.Metric,
		Dimensions:   embedder.Dimensions(),
		Logger:       s.logger,
	})
	if err != nil {
		return fmt.Errorf("opening vector store: %w", err)
	}

	store, err := vector.NewStore(ctx, driver, embedder, vector.StoreConfig{MaxTextBytes: s.opts.MaxChunkBytes}, s.logger)
	if err != nil {
		driver.Close()
		return err
	}
	res.add(store.Close)

	auditStore := s.opts.AuditStore
	if auditStore == nil {
		ao := s.opts.Audit
		if ao.ProviderType == "" && ao.Path == "" {
			ao.ProviderType = storageutils.ProviderMemory
		}
		ao.Logger = s.logger
		auditStore, err = storageutils.NewAuditStore(ctx, &ao)
		if err != nil {
			return fmt.Errorf("opening audit store: %w", err)
		}
	}
	res.add(auditStore.Close)

	logOpts := []audit.Option{audit.WithLogger(s.logger)}
	if s.opts.Clock != nil {
		logOpts = append(logOpts, audit.WithClock(s.opts.Clock))
	}
	log, err := audit.Open(ctx, auditStore, logOpts...)
	if err != nil {
		return err
	}

	r := retrieval.New(store, m, s.opts.Retrieval, s.logger)
	eng := engine.New(m, r, decoder.Greedy{MaxTokens: s.opts.MaxTokens}, s.logger)

	ic := s.opts.Ingest
	ic.Logger = s.logger
	ing, err := ingest.New(store, ic)
	if err != nil {
		return err
	}

	root, err := log.RootHash()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.modelPath = modelPath
	s.dbPath = dbPath
	s.embedder = embedder
	s.store = store
	s.auditStore = auditStore
	s.log = log
	s.engine = eng
	s.ingester = ing
	s.state = Ready
	s.mu.Unlock()

	s.logger.Info("session initialized",
		zap.String("model_path", modelPath),
		zap.String("db_path", dbPath),
		zap.Int("chunks", store.Size()),
		zap.Uint64("audit_records", log.Len()),
		zap.Duration("elapsed", time.Since(start)),
	)
	s.publish(ctx, eventstream.NewInitialized(eventstream.Initialized{
		ModelPath:   modelPath,
		DBPath:      dbPath,
		Chunks:      store.Size(),
		AuditLength: log.Len(),
		RootHash:    root,
	}))
	return nil
}

// ready runs fn with the session's read lock held once it is Ready. Close
// waits for every fn in flight.
func (s *Session) ready(fn func() error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state != Ready {
		return ErrNotInitialized
	}
	return fn()
}

// Generate answers prompt. It does not log the interaction.
func (s *Session) Generate(ctx context.Context, prompt string) (string, error) {
	gen, err := s.Generation(ctx, prompt)
	if err != nil {
		return "", err
	}
	return gen.Response, nil
}

// Generation answers prompt and returns the context window and decode
// details along with the response.
func (s *Session) Generation(ctx context.Context, prompt string) (*engine.Generation, error) {
	var gen *engine.Generation
	err := s.ready(func() error {
		var err error
		gen, err = s.engine.Generate(ctx, prompt)
		return err
	})
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(gen.Context.Chunks))
	for i, c := range gen.Context.Chunks {
		ids[i] = string(c.ID)
	}
	s.publish(ctx, eventstream.NewContextRetrieved(eventstream.ContextRetrieved{
		ChunkIDs: ids,
		Tokens:   gen.Context.Tokens,
		Dropped:  gen.Context.Dropped,
	}))
	s.publish(ctx, eventstream.NewResponseGenerated(eventstream.ResponseGenerated{
		InputTokens:  gen.Decode.InputTokens,
		OutputTokens: len(gen.Decode.Tokens),
		ResponseLen:  len(gen.Response),
		StopReason:   string(gen.Decode.Reason),
		DurationMs:   gen.Duration.Milliseconds(),
	}))
	return gen, nil
}

// LogInteraction commits prompt and response to the audit log and returns
// the new root hash in hex.
func (s *Session) LogInteraction(ctx context.Context, prompt, response string) (string, error) {
	var rec *audit.Record
	err := s.ready(func() error {
		var err error
		rec, err = s.log.Append(ctx, prompt, response)
		return err
	})
	if err != nil {
		return "", err
	}

	s.publish(ctx, eventstream.NewAppended(eventstream.Appended{
		Sequence: rec.Sequence,
		RootHash: rec.RecordHash,
	}))
	return rec.RecordHash, nil
}

// Ingest inserts one chunk of text into the vector store.
func (s *Session) Ingest(ctx context.Context, text, sourceRef string) (vector.ChunkID, error) {
	var id vector.ChunkID
	err := s.ready(func() error {
		var err error
		id, err = s.store.Insert(ctx, text, sourceRef)
		return err
	})
	return id, err
}

// IngestPaths chunks and inserts files and directories.
func (s *Session) IngestPaths(ctx context.Context, paths ...string) (*ingest.Report, error) {
	var report *ingest.Report
	err := s.ready(func() error {
		var err error
		report, err = s.ingester.IngestPaths(ctx, paths...)
		return err
	})
	return report, err
}

// Ingester returns the session's ingester, for building a watcher.
func (s *Session) Ingester() (*ingest.Ingester, error) {
	var ing *ingest.Ingester
	err := s.ready(func() error {
		ing = s.ingester
		return nil
	})
	return ing, err
}

// Chunks returns the number of chunks in the vector store.
func (s *Session) Chunks() (int, error) {
	var n int
	err := s.ready(func() error {
		n = s.store.Size()
		return nil
	})
	return n, err
}

// Audit returns the audit log for read-only inspection.
func (s *Session) Audit() (*audit.Log, error) {
	var log *audit.Log
	err := s.ready(func() error {
		log = s.log
		return nil
	})
	return log, err
}

// VerifyAudit re-reads [from, to) from storage and checks it against the
// chain.
func (s *Session) VerifyAudit(ctx context.Context, from, to uint64) error {
	return s.ready(func() error {
		return s.log.Verify(ctx, from, to)
	})
}

// AuditRootAt returns the root hash right after record seq was appended.
func (s *Session) AuditRootAt(seq uint64) (string, error) {
	var root string
	err := s.ready(func() error {
		var err error
		root, err = s.log.RootHashAt(seq)
		return err
	})
	return root, err
}

// Persist flushes the vector store to dbPath.
func (s *Session) Persist(ctx context.Context) error {
	return s.ready(func() error {
		return s.store.Persist(ctx)
	})
}

// Close persists and releases everything Initialize opened. The session
// returns to Uninitialized and may be initialized again. Closing a session
// that is not ready is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Ready {
		return nil
	}

	var errs []error
	if err := s.store.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.engine.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.embedder.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.auditStore.Close(); err != nil {
		errs = append(errs, err)
	}

	s.embedder = nil
	s.store = nil
	s.auditStore = nil
	s.log = nil
	s.engine = nil
	s.ingester = nil
	s.state = Uninitialized

	s.logger.Info("session closed", zap.String("db_path", s.dbPath))
	return errors.Join(errs...)
}

// publish delivers e to subscribers. Failures are logged and never fail
// the operation that produced the event.
func (s *Session) publish(ctx context.Context, e *eventstream.Event) {
	if err := s.bus.Publish(ctx, e); err != nil {
		s.logger.Warn("publishing event",
			zap.String("event_type", e.EventType),
			zap.Error(err),
		)
	}
}
