package versioncmder_test

import (
	"bytes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	versioncmder "github.com/papercomputeco/glassbox/cmd/version"
	"github.com/papercomputeco/glassbox/pkg/utils"
)

var _ = Describe("NewVersionCmd", func() {
	It("prints the build info", func() {
		out := &bytes.Buffer{}
		cmd := versioncmder.NewVersionCmd()
		cmd.SetOut(out)
		cmd.SetArgs([]string{})
		Expect(cmd.Execute()).To(Succeed())
		Expect(out.String()).To(ContainSubstring(utils.Version))
		Expect(out.String()).To(ContainSubstring("log format"))
	})

	It("prints only the version with --short", func() {
		out := &bytes.Buffer{}
		cmd := versioncmder.NewVersionCmd()
		cmd.SetOut(out)
		cmd.SetArgs([]string{"--short"})
		Expect(cmd.Execute()).To(Succeed())
		Expect(out.String()).To(Equal(utils.Version + "\n"))
	})
})
