package model

import "fmt"

// ByteStopToken follows the 256 byte tokens.
const ByteStopToken Token = 256

// ByteVocabSize is the byte vocabulary plus the stop token.
const ByteVocabSize = 257

// ByteTokenizer maps every byte to its own token.
type ByteTokenizer struct{}

// Tokenize returns one token per byte of text.
func (ByteTokenizer) Tokenize(text string) ([]Token, error) {
	out := make([]Token, len(text))
	for i := 0; i < len(text); i++ {
		out[i] = Token(text[i])
	}
	return out, nil
}

// Detokenize reverses Tokenize. The stop token and out-of-range tokens are
// errors.
func (ByteTokenizer) Detokenize(tokens []Token) (string, error) {
	buf := make([]byte, len(tokens))
	for i, t := range tokens {
		if t < 0 || t > 255 {
			return "", fmt.Errorf("token %d is not a byte", t)
		}
		buf[i] = byte(t)
	}
	return string(buf), nil
}
