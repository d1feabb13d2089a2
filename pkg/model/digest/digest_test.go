package digest_test

import (
	"crypto/sha256"
	"math"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/glassbox/pkg/model"
	"github.com/papercomputeco/glassbox/pkg/model/digest"
)

var _ = Describe("Model", func() {
	var path string

	BeforeEach(func() {
		path = filepath.Join(GinkgoT().TempDir(), "m.gguf")
		Expect(os.WriteFile(path, []byte("weights v1"), 0o600)).To(Succeed())
	})

	It("fails fast on a missing file", func() {
		_, err := digest.Load(filepath.Join(GinkgoT().TempDir(), "absent.gguf"))
		Expect(err).To(MatchError(model.ErrModelNotFound))
	})

	It("derives its identity from the file contents", func() {
		m, err := digest.Open(path)
		Expect(err).NotTo(HaveOccurred())
		sum := sha256.Sum256([]byte("weights v1"))
		Expect(m.Digest()).To(HaveLen(64))
		Expect(digest.FromDigest(sum).Digest()).To(Equal(m.Digest()))
	})

	It("scores the full vocabulary", func() {
		m, err := digest.Open(path)
		Expect(err).NotTo(HaveOccurred())
		logits, err := m.Score([]model.Token{'h', 'i'})
		Expect(err).NotTo(HaveOccurred())
		Expect(logits).To(HaveLen(m.VocabSize()))
		for _, l := range logits {
			Expect(math.IsNaN(l)).To(BeFalse())
		}
	})

	It("masks non printable bytes", func() {
		m, err := digest.Open(path)
		Expect(err).NotTo(HaveOccurred())
		logits, err := m.Score([]model.Token{'a'})
		Expect(err).NotTo(HaveOccurred())
		Expect(math.IsInf(logits[0x07], -1)).To(BeTrue())
		Expect(math.IsInf(logits[0xff], -1)).To(BeTrue())
		Expect(math.IsInf(logits['a'], 0)).To(BeFalse())
		Expect(math.IsInf(logits['\n'], 0)).To(BeFalse())
	})

	It("is bit-identical across independently loaded instances", func() {
		a, err := digest.Open(path)
		Expect(err).NotTo(HaveOccurred())
		b, err := digest.Open(path)
		Expect(err).NotTo(HaveOccurred())

		tokens, _ := a.Tokenize("what is 2+2?")
		la, err := a.Score(tokens)
		Expect(err).NotTo(HaveOccurred())
		lb, err := b.Score(tokens)
		Expect(err).NotTo(HaveOccurred())
		for i := range la {
			Expect(math.Float64bits(la[i])).To(Equal(math.Float64bits(lb[i])))
		}
	})

	It("differs for different model files", func() {
		other := filepath.Join(GinkgoT().TempDir(), "other.gguf")
		Expect(os.WriteFile(other, []byte("weights v2"), 0o600)).To(Succeed())

		a, err := digest.Open(path)
		Expect(err).NotTo(HaveOccurred())
		b, err := digest.Open(other)
		Expect(err).NotTo(HaveOccurred())

		la, _ := a.Score([]model.Token{'x'})
		lb, _ := b.Score([]model.Token{'x'})
		Expect(la).NotTo(Equal(lb))
	})

	It("rejects out of range tokens", func() {
		m, err := digest.Open(path)
		Expect(err).NotTo(HaveOccurred())
		_, err = m.Score([]model.Token{999})
		Expect(err).To(HaveOccurred())
	})
})
