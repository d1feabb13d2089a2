package ingest

import (
	"regexp"
	"strings"
)

const (
	DefaultSentencesPerChunk = 5
	DefaultOverlapSentences  = 1
)

// sentencePattern matches a run of text ending at sentence punctuation, or
// the unterminated remainder at the end of the input.
var sentencePattern = regexp.MustCompile(`[^.!?]+(?:[.!?]+|$)`)

// SentenceChunker splits text into sentence-based chunks with overlap.
type SentenceChunker struct {
	sentencesPerChunk int
	overlapSentences  int
}

// NewSentenceChunker builds a chunker. Non-positive sizes fall back to the
// defaults. Overlap is clamped below the chunk size so chunking always
// advances.
func NewSentenceChunker(sentencesPerChunk, overlapSentences int) *SentenceChunker {
	if sentencesPerChunk <= 0 {
		sentencesPerChunk = DefaultSentencesPerChunk
	}
	if overlapSentences < 0 {
		overlapSentences = 0
	}
	if overlapSentences >= sentencesPerChunk {
		overlapSentences = sentencesPerChunk - 1
	}
	return &SentenceChunker{
		sentencesPerChunk: sentencesPerChunk,
		overlapSentences:  overlapSentences,
	}
}

// Chunk returns the chunk texts of content in document order.
func (c *SentenceChunker) Chunk(content string) []string {
	var sentences []string
	for _, s := range sentencePattern.FindAllString(content, -1) {
		s = strings.Join(strings.Fields(s), " ")
		if s != "" {
			sentences = append(sentences, s)
		}
	}
	if len(sentences) == 0 {
		return nil
	}

	var chunks []string
	i := 0
	for {
		end := min(i+c.sentencesPerChunk, len(sentences))
		chunks = append(chunks, strings.Join(sentences[i:end], " "))
		if end == len(sentences) {
			return chunks
		}
		i = end - c.overlapSentences
	}
}
