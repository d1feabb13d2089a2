package testutils

import (
	"sort"
	"strings"
	"sync"

	"github.com/papercomputeco/glassbox/pkg/model"
)

// TableModel is a byte-level model that continues any buffer ending with a
// known prompt (optionally followed by part of its answer) with the next byte
// of that answer, then the stop token. Unknown buffers stop immediately.
type TableModel struct {
	model.ByteTokenizer

	Answers map[string]string

	mu     sync.Mutex
	Scores int
	Closed bool
}

// NewTableModel creates a TableModel answering prompt -> answer pairs.
func NewTableModel(answers map[string]string) *TableModel {
	return &TableModel{Answers: answers}
}

func (m *TableModel) VocabSize() int         { return model.ByteVocabSize }
func (m *TableModel) StopToken() model.Token { return model.ByteStopToken }

func (m *TableModel) Score(tokens []model.Token) ([]float64, error) {
	m.mu.Lock()
	m.Scores++
	m.mu.Unlock()

	text, err := m.Detokenize(tokens)
	if err != nil {
		return nil, err
	}

	next := model.ByteStopToken
	prompts := make([]string, 0, len(m.Answers))
	for p := range m.Answers {
		prompts = append(prompts, p)
	}
	// Longest prompt first so overlapping prompts resolve the same way
	// every time.
	sort.Slice(prompts, func(i, j int) bool {
		if len(prompts[i]) != len(prompts[j]) {
			return len(prompts[i]) > len(prompts[j])
		}
		return prompts[i] < prompts[j]
	})

	for _, p := range prompts {
		idx := strings.LastIndex(text, p)
		if idx < 0 {
			continue
		}
		answer := m.Answers[p]
		sofar := text[idx+len(p):]
		if !strings.HasPrefix(answer, sofar) {
			continue
		}
		if len(sofar) < len(answer) {
			next = model.Token(answer[len(sofar)])
		}
		break
	}

	scores := make([]float64, model.ByteVocabSize)
	scores[next] = 1
	return scores, nil
}

func (m *TableModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// TableLoader returns a model.Loader that hands out m for any path.
func TableLoader(m model.Model) model.Loader {
	return func(string) (model.Model, error) {
		return m, nil
	}
}

// FuncModel scores with an arbitrary function over a small byte vocabulary.
type FuncModel struct {
	model.ByteTokenizer

	Vocab   int
	Stop    model.Token
	ScoreFn func(tokens []model.Token) ([]float64, error)
}

func (m *FuncModel) VocabSize() int         { return m.Vocab }
func (m *FuncModel) StopToken() model.Token { return m.Stop }
func (m *FuncModel) Close() error           { return nil }

func (m *FuncModel) Score(tokens []model.Token) ([]float64, error) {
	return m.ScoreFn(tokens)
}
