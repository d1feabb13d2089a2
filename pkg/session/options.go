package session

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/glassbox/pkg/config"
	"github.com/papercomputeco/glassbox/pkg/embeddings"
	embeddingutils "github.com/papercomputeco/glassbox/pkg/embeddings/utils"
	"github.com/papercomputeco/glassbox/pkg/eventstream"
	"github.com/papercomputeco/glassbox/pkg/ingest"
	"github.com/papercomputeco/glassbox/pkg/model"
	modelutils "github.com/papercomputeco/glassbox/pkg/model/utils"
	"github.com/papercomputeco/glassbox/pkg/retrieval"
	"github.com/papercomputeco/glassbox/pkg/storage"
	storageutils "github.com/papercomputeco/glassbox/pkg/storage/utils"
	"github.com/papercomputeco/glassbox/pkg/vector"
)

// Options wires the collaborators a session opens on Initialize. The zero
// value selects the digest model loader, the hashing embedder, the
// sqlite-vec store and an in-memory audit log.
type Options struct {
	// Loader opens the model file. Defaults to the digest loader.
	Loader model.Loader

	// Embedding selects the embedder built on Initialize. Ignored when
	// Embedder is set.
	Embedding embeddingutils.NewEmbedderOpts

	// Embedder, when set, is used instead of building one. The session
	// takes ownership and closes it.
	Embedder embeddings.Embedder

	// VectorProvider is a vectorutils provider name.
	VectorProvider string
	Metric         vector.Metric
	MaxChunkBytes  int

	Retrieval retrieval.Config

	// MaxTokens caps generated tokens. Defaults to decoder.DefaultMaxTokens.
	MaxTokens int

	// Audit selects the audit store built on Initialize. Ignored when
	// AuditStore is set.
	Audit storageutils.NewAuditStoreOpts

	// AuditStore, when set, is used instead of building one. The session
	// takes ownership and closes it.
	AuditStore storage.Driver

	Ingest ingest.Config

	// Publishers receive every event after in-process subscribers. They are
	// owned by the caller.
	Publishers []eventstream.Publisher

	// Clock stamps audit records. Defaults to time.Now.
	Clock func() time.Time

	Logger *zap.Logger
}

// OptionsFromConfig maps the persistent configuration onto Options.
// Relative paths are resolved against dir, the .glassbox/ directory.
func OptionsFromConfig(cfg *config.Config, dir string) (Options, error) {
	loader, err := modelutils.NewLoader(cfg.Model.Loader)
	if err != nil {
		return Options{}, err
	}

	metric, err := vector.ParseMetric(cfg.VectorStore.Metric)
	if err != nil {
		return Options{}, fmt.Errorf("vector_store.metric: %w", err)
	}

	return Options{
		Loader: loader,
		Embedding: embeddingutils.NewEmbedderOpts{
			ProviderType: cfg.Embedding.Provider,
			TargetURL:    cfg.Embedding.Target,
			Model:        cfg.Embedding.Model,
			Dimensions:   cfg.Embedding.Dimensions,
		},
		VectorProvider: cfg.VectorStore.Provider,
		Metric:         metric,
		MaxChunkBytes:  cfg.VectorStore.MaxChunkBytes,
		Retrieval: retrieval.Config{
			TopN:             cfg.Retrieval.TopN,
			MaxContextTokens: cfg.Retrieval.MaxContextTokens,
		},
		MaxTokens: cfg.Model.MaxOutputTokens,
		Audit: storageutils.NewAuditStoreOpts{
			ProviderType: cfg.Audit.Provider,
			Path:         config.ResolvePath(dir, cfg.Audit.Path),
			Target:       cfg.Audit.Target,
		},
		Ingest: ingest.Config{
			SentencesPerChunk: cfg.Ingest.SentencesPerChunk,
			OverlapSentences:  cfg.Ingest.OverlapSentences,
			Workers:           cfg.Ingest.Workers,
			Extensions:        cfg.Ingest.Extensions,
		},
	}, nil
}
