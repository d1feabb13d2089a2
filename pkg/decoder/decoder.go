// Package decoder implements seed-free greedy decoding over a model.Model.
package decoder

import (
	"errors"
	"fmt"
	"math"

	"github.com/papercomputeco/glassbox/pkg/model"
)

// DefaultMaxTokens caps the output length when none is configured.
const DefaultMaxTokens = 100

// ErrDecodeFailure is matched by every *FailureError.
var ErrDecodeFailure = errors.New("decode failure")

// FailureError reports a model or scoring failure at an output step.
type FailureError struct {
	Step int
	Err  error
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("decode failed at step %d: %v", e.Step, e.Err)
}

func (e *FailureError) Unwrap() error {
	return e.Err
}

func (e *FailureError) Is(target error) bool {
	return target == ErrDecodeFailure
}

// StopReason says why a decode ended.
type StopReason string

const (
	StopToken     StopReason = "stop_token"
	StopMaxTokens StopReason = "max_tokens"
)

// Result is the outcome of one decode.
type Result struct {
	Text        string
	InputTokens int
	Tokens      []model.Token
	Reason      StopReason
}

// Greedy picks the highest scoring token at every step. Equal scores resolve
// to the lowest token id.
type Greedy struct {
	// MaxTokens bounds the number of generated tokens.
	// Defaults to DefaultMaxTokens if zero.
	MaxTokens int
}

// state is the per-call token buffer. It is never shared between calls.
type state struct {
	buffer []model.Token
	output []model.Token
	pos    int
}

// Decode returns the response text for prompt given the retrieved context.
func (g Greedy) Decode(m model.Model, retrieved, prompt string) (string, error) {
	res, err := g.Run(m, retrieved, prompt)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// Input builds the text the model is conditioned on.
func Input(retrieved, prompt string) string {
	if retrieved == "" {
		return prompt
	}
	return retrieved + "\n\n" + prompt
}

// Run decodes and reports token level detail.
func (g Greedy) Run(m model.Model, retrieved, prompt string) (*Result, error) {
	if m == nil {
		return nil, &FailureError{Step: 0, Err: errors.New("no model loaded")}
	}

	maxTokens := g.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	input, err := m.Tokenize(Input(retrieved, prompt))
	if err != nil {
		return nil, &FailureError{Step: 0, Err: fmt.Errorf("tokenizing input: %w", err)}
	}

	st := &state{buffer: append(make([]model.Token, 0, len(input)+maxTokens), input...)}
	vocab := m.VocabSize()
	stop := m.StopToken()
	reason := StopMaxTokens

	for st.pos < maxTokens {
		scores, err := m.Score(st.buffer)
		if err != nil {
			return nil, &FailureError{Step: st.pos, Err: err}
		}
		next, err := argmax(scores, vocab)
		if err != nil {
			return nil, &FailureError{Step: st.pos, Err: err}
		}
		if next == stop {
			reason = StopToken
			break
		}
		st.buffer = append(st.buffer, next)
		st.output = append(st.output, next)
		st.pos++
	}

	text, err := m.Detokenize(st.output)
	if err != nil {
		return nil, &FailureError{Step: st.pos, Err: fmt.Errorf("detokenizing output: %w", err)}
	}

	return &Result{
		Text:        text,
		InputTokens: len(input),
		Tokens:      st.output,
		Reason:      reason,
	}, nil
}

// argmax returns the first index holding the maximum score.
func argmax(scores []float64, vocab int) (model.Token, error) {
	if len(scores) != vocab {
		return 0, fmt.Errorf("model returned %d scores for a vocabulary of %d", len(scores), vocab)
	}
	if vocab == 0 {
		return 0, errors.New("empty vocabulary")
	}

	best := 0
	for i, s := range scores {
		if math.IsNaN(s) {
			return 0, fmt.Errorf("score for token %d is NaN", i)
		}
		if s > scores[best] {
			best = i
		}
	}
	return model.Token(best), nil
}
