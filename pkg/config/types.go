package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Config represents the persistent glassbox configuration stored as
// config.toml in the .glassbox/ directory. The TOML layout uses sections for
// logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	Model       ModelConfig       `toml:"model"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	Retrieval   RetrievalConfig   `toml:"retrieval"`
	Audit       AuditConfig       `toml:"audit"`
	Ingest      IngestConfig      `toml:"ingest"`
	Events      EventsConfig      `toml:"events"`
	Metrics     MetricsConfig     `toml:"metrics"`
}

// ModelConfig selects the model file and the decode limits.
type ModelConfig struct {
	Path            string `toml:"path,omitempty"`
	Loader          string `toml:"loader,omitempty"`
	MaxOutputTokens int    `toml:"max_output_tokens,omitempty"`
}

// VectorStoreConfig holds vector store settings. Metric is fixed when the
// store file is created.
type VectorStoreConfig struct {
	Provider      string `toml:"provider,omitempty"`
	Path          string `toml:"path,omitempty"`
	Metric        string `toml:"metric,omitempty"`
	MaxChunkBytes int    `toml:"max_chunk_bytes,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	Model      string `toml:"model,omitempty"`
	Dimensions uint   `toml:"dimensions,omitempty"`
}

// RetrievalConfig bounds the context window.
type RetrievalConfig struct {
	TopN             int `toml:"top_n,omitempty"`
	MaxContextTokens int `toml:"max_context_tokens,omitempty"`
}

// AuditConfig selects the audit log backend. Target is only used by the
// postgres provider.
type AuditConfig struct {
	Provider string `toml:"provider,omitempty"`
	Path     string `toml:"path,omitempty"`
	Target   string `toml:"target,omitempty"`
}

// IngestConfig holds document chunking settings.
type IngestConfig struct {
	SentencesPerChunk int      `toml:"sentences_per_chunk,omitempty"`
	OverlapSentences  int      `toml:"overlap_sentences,omitempty"`
	Workers           uint     `toml:"workers,omitempty"`
	Extensions        []string `toml:"extensions,omitempty"`
}

// EventsConfig enables the JSONL event log when Path is set.
type EventsConfig struct {
	Path string `toml:"path,omitempty"`
}

// MetricsConfig enables the Prometheus textfile when Textfile is set.
type MetricsConfig struct {
	Textfile string `toml:"textfile,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func intKey(name string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.Itoa(*field(c))
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			if n < 0 {
				return fmt.Errorf("invalid value for %s: must not be negative", name)
			}
			*field(c) = n
			return nil
		},
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string {
			if *field(c) == 0 {
				return ""
			}
			return strconv.FormatUint(uint64(*field(c)), 10)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"model.path":   stringKey(func(c *Config) *string { return &c.Model.Path }),
	"model.loader": stringKey(func(c *Config) *string { return &c.Model.Loader }),
	"model.max_output_tokens": intKey("model.max_output_tokens",
		func(c *Config) *int { return &c.Model.MaxOutputTokens }),

	"vector_store.provider": stringKey(func(c *Config) *string { return &c.VectorStore.Provider }),
	"vector_store.path":     stringKey(func(c *Config) *string { return &c.VectorStore.Path }),
	"vector_store.metric":   stringKey(func(c *Config) *string { return &c.VectorStore.Metric }),
	"vector_store.max_chunk_bytes": intKey("vector_store.max_chunk_bytes",
		func(c *Config) *int { return &c.VectorStore.MaxChunkBytes }),

	"embedding.provider": stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":   stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":    stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.dimensions": uintKey("embedding.dimensions",
		func(c *Config) *uint { return &c.Embedding.Dimensions }),

	"retrieval.top_n": intKey("retrieval.top_n",
		func(c *Config) *int { return &c.Retrieval.TopN }),
	"retrieval.max_context_tokens": intKey("retrieval.max_context_tokens",
		func(c *Config) *int { return &c.Retrieval.MaxContextTokens }),

	"audit.provider": stringKey(func(c *Config) *string { return &c.Audit.Provider }),
	"audit.path":     stringKey(func(c *Config) *string { return &c.Audit.Path }),
	"audit.target":   stringKey(func(c *Config) *string { return &c.Audit.Target }),

	"ingest.sentences_per_chunk": intKey("ingest.sentences_per_chunk",
		func(c *Config) *int { return &c.Ingest.SentencesPerChunk }),
	"ingest.overlap_sentences": intKey("ingest.overlap_sentences",
		func(c *Config) *int { return &c.Ingest.OverlapSentences }),
	"ingest.workers": uintKey("ingest.workers",
		func(c *Config) *uint { return &c.Ingest.Workers }),
	"ingest.extensions": {
		get: func(c *Config) string { return strings.Join(c.Ingest.Extensions, ",") },
		set: func(c *Config, v string) error {
			var exts []string
			for _, e := range strings.Split(v, ",") {
				e = strings.TrimSpace(e)
				if e == "" {
					continue
				}
				if !strings.HasPrefix(e, ".") {
					e = "." + e
				}
				exts = append(exts, strings.ToLower(e))
			}
			c.Ingest.Extensions = exts
			return nil
		},
	},

	"events.path":      stringKey(func(c *Config) *string { return &c.Events.Path }),
	"metrics.textfile": stringKey(func(c *Config) *string { return &c.Metrics.Textfile }),
}
