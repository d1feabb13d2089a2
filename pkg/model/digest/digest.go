// Package digest provides a self-contained deterministic model whose weights
// are derived from the SHA-256 digest of a model file. It lets glassbox run
// end to end against any file at the configured model path.
//
// Scoring walks a small state-space recurrence over the token buffer,
//
//	s[i] = 0.7*s[i] + 0.2*E[tok][i] + 0.1*E[prev][(i+1) % H]
//
// then projects the state onto per-token output weights. Every sum runs in
// index order with explicit rounding, so scores are bit-identical across
// runs and machines for the same file.
package digest

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/papercomputeco/glassbox/pkg/model"
)

// HiddenSize is the width of the recurrent state.
const HiddenSize = 64

// stopBias grows the stop token's score with buffer length so decodes
// terminate on their own.
const stopBias = 0.015

// Model is a digest-seeded byte-level model.
type Model struct {
	model.ByteTokenizer

	digest  [32]byte
	embed   [model.ByteVocabSize][HiddenSize]float64
	project [model.ByteVocabSize][HiddenSize]float64
}

// Load hashes the file at path and derives the model weights from it.
func Load(path string) (model.Model, error) {
	return Open(path)
}

// Open is Load returning the concrete type.
func Open(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", model.ErrModelNotFound, path)
		}
		return nil, fmt.Errorf("opening model: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("hashing model: %w", err)
	}

	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return FromDigest(digest), nil
}

// FromDigest builds the model for a known digest.
func FromDigest(digest [32]byte) *Model {
	m := &Model{digest: digest}
	w := newWeightStream(digest)
	for t := 0; t < model.ByteVocabSize; t++ {
		for i := 0; i < HiddenSize; i++ {
			m.embed[t][i] = w.next()
		}
	}
	for t := 0; t < model.ByteVocabSize; t++ {
		for i := 0; i < HiddenSize; i++ {
			m.project[t][i] = w.next()
		}
	}
	return m
}

// Digest returns the hex SHA-256 of the model file.
func (m *Model) Digest() string {
	return hex.EncodeToString(m.digest[:])
}

// VocabSize is 256 bytes plus the stop token.
func (m *Model) VocabSize() int {
	return model.ByteVocabSize
}

// StopToken returns model.ByteStopToken.
func (m *Model) StopToken() model.Token {
	return model.ByteStopToken
}

// Score returns the logits for the token following tokens. Bytes outside
// printable ASCII and newline score negative infinity.
func (m *Model) Score(tokens []model.Token) ([]float64, error) {
	var state [HiddenSize]float64
	prev := model.ByteStopToken
	for pos, t := range tokens {
		if t < 0 || int(t) >= model.ByteVocabSize {
			return nil, fmt.Errorf("token %d at position %d out of range", t, pos)
		}
		for i := 0; i < HiddenSize; i++ {
			a := float64(0.7 * state[i])
			b := float64(0.2 * m.embed[t][i])
			c := float64(0.1 * m.embed[prev][(i+1)%HiddenSize])
			state[i] = a + b + c
		}
		prev = t
	}

	logits := make([]float64, model.ByteVocabSize)
	for v := 0; v < model.ByteVocabSize; v++ {
		if !emittable(model.Token(v)) {
			logits[v] = math.Inf(-1)
			continue
		}
		var acc float64
		for i := 0; i < HiddenSize; i++ {
			acc += float64(m.project[v][i] * state[i])
		}
		logits[v] = acc
	}
	logits[model.ByteStopToken] += float64(stopBias * float64(len(tokens)))
	return logits, nil
}

// Close is a no-op.
func (m *Model) Close() error {
	return nil
}

func emittable(t model.Token) bool {
	return t == model.ByteStopToken || t == '\n' || (t >= 0x20 && t <= 0x7e)
}

// weightStream expands a digest into uniform weights in [-1, 1) by hashing
// the digest with a block counter.
type weightStream struct {
	seed    [32]byte
	counter uint64
	block   [32]byte
	off     int
}

func newWeightStream(seed [32]byte) *weightStream {
	return &weightStream{seed: seed, off: sha256.Size}
}

func (w *weightStream) next() float64 {
	if w.off+4 > len(w.block) {
		var buf [40]byte
		copy(buf[:32], w.seed[:])
		binary.BigEndian.PutUint64(buf[32:], w.counter)
		w.block = sha256.Sum256(buf[:])
		w.counter++
		w.off = 0
	}
	u := binary.BigEndian.Uint32(w.block[w.off:])
	w.off += 4
	return float64(u)/float64(1<<31) - 1
}

var _ model.Model = (*Model)(nil)
