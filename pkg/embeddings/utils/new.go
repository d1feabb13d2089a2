// Package embeddingutils is the embeddings utility package
package embeddingutils

import (
	"fmt"

	"github.com/papercomputeco/glassbox/pkg/embeddings"
	"github.com/papercomputeco/glassbox/pkg/embeddings/hashing"
	"github.com/papercomputeco/glassbox/pkg/embeddings/ollama"
)

const (
	ProviderHashing = "hashing"
	ProviderOllama  = "ollama"
)

type NewEmbedderOpts struct {
	ProviderType string
	TargetURL    string
	Model        string
	Dimensions   uint
}

func NewEmbedder(o *NewEmbedderOpts) (embeddings.Embedder, error) {
	switch o.ProviderType {
	case ProviderHashing, "":
		return hashing.NewEmbedder(hashing.Config{
			Dimensions: o.Dimensions,
		}), nil
	case ProviderOllama:
		return ollama.NewEmbedder(ollama.EmbedderConfig{
			BaseURL:    o.TargetURL,
			Model:      o.Model,
			Dimensions: o.Dimensions,
		})
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", o.ProviderType)
	}
}
