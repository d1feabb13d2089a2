// Package model defines the opaque scoring contract the decoder drives.
// A Model maps a token buffer to one score per vocabulary entry; its
// internals are not part of glassbox.
package model

import "errors"

// Token is a vocabulary index.
type Token int32

// ErrModelNotFound is returned when a model path does not exist.
var ErrModelNotFound = errors.New("model file not found")

// Tokenizer converts between text and tokens.
type Tokenizer interface {
	Tokenize(text string) ([]Token, error)
	Detokenize(tokens []Token) (string, error)
}

// Model is a deterministic next-token scorer over a fixed vocabulary.
type Model interface {
	Tokenizer

	// VocabSize is the number of scores Score returns, stop token included.
	VocabSize() int

	// StopToken ends decoding when selected.
	StopToken() Token

	// Score returns one logit per vocabulary entry for the token that
	// follows tokens. Implementations must accumulate in a fixed order.
	Score(tokens []Token) ([]float64, error)

	// Close releases model resources.
	Close() error
}

// Loader opens a model from a path.
type Loader func(path string) (Model, error)
