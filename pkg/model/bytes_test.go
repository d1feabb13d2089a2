package model_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/glassbox/pkg/model"
)

var _ = Describe("ByteTokenizer", func() {
	tok := model.ByteTokenizer{}

	It("round trips text including multi-byte runes", func() {
		tokens, err := tok.Tokenize("2+2=é")
		Expect(err).NotTo(HaveOccurred())
		Expect(tokens).To(HaveLen(6))
		Expect(tokens[0]).To(Equal(model.Token('2')))

		text, err := tok.Detokenize(tokens)
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(Equal("2+2=é"))
	})

	It("refuses to detokenize the stop token", func() {
		_, err := tok.Detokenize([]model.Token{'a', model.ByteStopToken})
		Expect(err).To(HaveOccurred())
	})
})
