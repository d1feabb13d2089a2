package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/glassbox/pkg/dotdir"
)

// EnvPrefix prefixes every environment override, e.g. GLASSBOX_MODEL_PATH.
const EnvPrefix = "GLASSBOX"

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the GLASSBOX_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (GLASSBOX_MODEL_PATH, GLASSBOX_AUDIT_PATH, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: GLASSBOX_MODEL_PATH, GLASSBOX_AUDIT_PROVIDER, etc.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper materializes the effective configuration after flag, env, file
// and default layering.
func FromViper(v *viper.Viper) *Config {
	return &Config{
		Version: v.GetInt("version"),
		Model: ModelConfig{
			Path:            v.GetString("model.path"),
			Loader:          v.GetString("model.loader"),
			MaxOutputTokens: v.GetInt("model.max_output_tokens"),
		},
		VectorStore: VectorStoreConfig{
			Provider:      v.GetString("vector_store.provider"),
			Path:          v.GetString("vector_store.path"),
			Metric:        v.GetString("vector_store.metric"),
			MaxChunkBytes: v.GetInt("vector_store.max_chunk_bytes"),
		},
		Embedding: EmbeddingConfig{
			Provider:   v.GetString("embedding.provider"),
			Target:     v.GetString("embedding.target"),
			Model:      v.GetString("embedding.model"),
			Dimensions: v.GetUint("embedding.dimensions"),
		},
		Retrieval: RetrievalConfig{
			TopN:             v.GetInt("retrieval.top_n"),
			MaxContextTokens: v.GetInt("retrieval.max_context_tokens"),
		},
		Audit: AuditConfig{
			Provider: v.GetString("audit.provider"),
			Path:     v.GetString("audit.path"),
			Target:   v.GetString("audit.target"),
		},
		Ingest: IngestConfig{
			SentencesPerChunk: v.GetInt("ingest.sentences_per_chunk"),
			OverlapSentences:  v.GetInt("ingest.overlap_sentences"),
			Workers:           v.GetUint("ingest.workers"),
			Extensions:        v.GetStringSlice("ingest.extensions"),
		},
		Events: EventsConfig{
			Path: v.GetString("events.path"),
		},
		Metrics: MetricsConfig{
			Textfile: v.GetString("metrics.textfile"),
		},
	}
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// Model
	v.SetDefault("model.path", d.Model.Path)
	v.SetDefault("model.loader", d.Model.Loader)
	v.SetDefault("model.max_output_tokens", d.Model.MaxOutputTokens)

	// Vector store
	v.SetDefault("vector_store.provider", d.VectorStore.Provider)
	v.SetDefault("vector_store.path", d.VectorStore.Path)
	v.SetDefault("vector_store.metric", d.VectorStore.Metric)
	v.SetDefault("vector_store.max_chunk_bytes", d.VectorStore.MaxChunkBytes)

	// Embedding
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.target", d.Embedding.Target)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)

	// Retrieval
	v.SetDefault("retrieval.top_n", d.Retrieval.TopN)
	v.SetDefault("retrieval.max_context_tokens", d.Retrieval.MaxContextTokens)

	// Audit
	v.SetDefault("audit.provider", d.Audit.Provider)
	v.SetDefault("audit.path", d.Audit.Path)
	v.SetDefault("audit.target", d.Audit.Target)

	// Ingest
	v.SetDefault("ingest.sentences_per_chunk", d.Ingest.SentencesPerChunk)
	v.SetDefault("ingest.overlap_sentences", d.Ingest.OverlapSentences)
	v.SetDefault("ingest.workers", d.Ingest.Workers)
	v.SetDefault("ingest.extensions", d.Ingest.Extensions)

	// Events and metrics
	v.SetDefault("events.path", d.Events.Path)
	v.SetDefault("metrics.textfile", d.Metrics.Textfile)
}
