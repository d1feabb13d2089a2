package config

const (
	defaultModelLoader     = "digest"
	defaultMaxOutputTokens = 100

	defaultVectorProvider = "sqlite-vec"
	defaultVectorPath     = "vectors.db"
	defaultVectorMetric   = "l2"
	defaultMaxChunkBytes  = 8192

	defaultEmbeddingProvider   = "hashing"
	defaultEmbeddingTarget     = "http://localhost:11434"
	defaultEmbeddingModel      = "nomic-embed-text"
	defaultEmbeddingDimensions = 384

	defaultTopN             = 4
	defaultMaxContextTokens = 1024

	defaultAuditProvider = "file"
	defaultAuditPath     = "audit.jsonl"

	defaultSentencesPerChunk = 5
	defaultOverlapSentences  = 0
	defaultIngestWorkers     = 3
)

var defaultExtensions = []string{".txt", ".md"}

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		Model: ModelConfig{
			Loader:          defaultModelLoader,
			MaxOutputTokens: defaultMaxOutputTokens,
		},
		VectorStore: VectorStoreConfig{
			Provider:      defaultVectorProvider,
			Path:          defaultVectorPath,
			Metric:        defaultVectorMetric,
			MaxChunkBytes: defaultMaxChunkBytes,
		},
		Embedding: EmbeddingConfig{
			Provider:   defaultEmbeddingProvider,
			Target:     defaultEmbeddingTarget,
			Model:      defaultEmbeddingModel,
			Dimensions: defaultEmbeddingDimensions,
		},
		Retrieval: RetrievalConfig{
			TopN:             defaultTopN,
			MaxContextTokens: defaultMaxContextTokens,
		},
		Audit: AuditConfig{
			Provider: defaultAuditProvider,
			Path:     defaultAuditPath,
		},
		Ingest: IngestConfig{
			SentencesPerChunk: defaultSentencesPerChunk,
			OverlapSentences:  defaultOverlapSentences,
			Workers:           defaultIngestWorkers,
			Extensions:        append([]string(nil), defaultExtensions...),
		},
	}
}
