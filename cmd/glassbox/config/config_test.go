package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/glassbox/cmd/glassbox/config"
	"github.com/papercomputeco/glassbox/pkg/config"
)

var _ = Describe("NewConfigCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))
	})

	It("has set, get, and list subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		subcommands := []string{}
		for _, sub := range cmd.Commands() {
			subcommands = append(subcommands, sub.Name())
		}
		Expect(subcommands).To(ContainElements("set", "get", "list"))
	})
})

var _ = Describe("Config command execution", func() {
	var (
		tmpDir string
		out    *bytes.Buffer
	)

	execute := func(args ...string) error {
		cmd := configcmder.NewConfigCmd()
		out = &bytes.Buffer{}
		cmd.SetOut(out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		origDir, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		// A local .glassbox dir wins over ~/.glassbox.
		Expect(os.MkdirAll(filepath.Join(tmpDir, ".glassbox"), 0o755)).To(Succeed())
		Expect(os.Chdir(tmpDir)).To(Succeed())
		DeferCleanup(func() {
			Expect(os.Chdir(origDir)).To(Succeed())
		})
	})

	loadConfig := func() *config.Config {
		data, err := os.ReadFile(filepath.Join(tmpDir, ".glassbox", "config.toml"))
		Expect(err).NotTo(HaveOccurred())
		cfg, err := config.ParseConfigTOML(data)
		Expect(err).NotTo(HaveOccurred())
		return cfg
	}

	Describe("set subcommand", func() {
		It("writes the value to config.toml", func() {
			Expect(execute("set", "model.path", "/models/a.bin")).To(Succeed())
			Expect(loadConfig().Model.Path).To(Equal("/models/a.bin"))
			Expect(out.String()).To(ContainSubstring("model.path"))
		})

		It("normalizes extensions", func() {
			Expect(execute("set", "ingest.extensions", "TXT, md")).To(Succeed())
			Expect(loadConfig().Ingest.Extensions).To(Equal([]string{".txt", ".md"}))
		})

		It("rejects unknown keys", func() {
			Expect(execute("set", "proxy.provider", "anthropic")).To(MatchError(ContainSubstring("unknown config key")))
		})

		It("rejects invalid numeric values", func() {
			Expect(execute("set", "retrieval.top_n", "many")).NotTo(Succeed())
			Expect(execute("set", "embedding.dimensions", "-1")).NotTo(Succeed())
		})

		It("requires exactly two arguments", func() {
			Expect(execute("set", "model.path")).NotTo(Succeed())
			Expect(execute("set")).NotTo(Succeed())
		})
	})

	Describe("get subcommand", func() {
		It("prints a previously set value", func() {
			Expect(execute("set", "audit.provider", "sqlite")).To(Succeed())
			Expect(execute("get", "audit.provider")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("sqlite"))
		})

		It("prints the default when the file is missing", func() {
			Expect(execute("get", "vector_store.metric")).To(Succeed())
			Expect(out.String()).To(ContainSubstring("l2"))
			Expect(out.String()).To(ContainSubstring("No config file found"))
		})

		It("rejects unknown keys", func() {
			Expect(execute("get", "invalid_key")).NotTo(Succeed())
		})

		It("requires exactly one argument", func() {
			Expect(execute("get")).NotTo(Succeed())
		})
	})

	Describe("list subcommand", func() {
		It("lists every key", func() {
			Expect(execute("set", "retrieval.top_n", "8")).To(Succeed())
			Expect(execute("list")).To(Succeed())
			for _, key := range config.ValidConfigKeys() {
				Expect(out.String()).To(ContainSubstring(key))
			}
			Expect(out.String()).To(ContainSubstring(`"8"`))
		})

		It("rejects any arguments", func() {
			Expect(execute("list", "extra")).NotTo(Succeed())
		})
	})

	It("honors --config-dir", func() {
		other := filepath.Join(tmpDir, "elsewhere")

		root := &cobra.Command{Use: "glassbox"}
		root.PersistentFlags().String("config-dir", "", "")
		root.AddCommand(configcmder.NewConfigCmd())
		root.SetOut(&bytes.Buffer{})
		root.SetArgs([]string{"config", "set", "model.path", "m.bin", "--config-dir", other})
		Expect(root.Execute()).To(Succeed())

		Expect(filepath.Join(other, "config.toml")).To(BeARegularFile())
		Expect(filepath.Join(tmpDir, ".glassbox", "config.toml")).NotTo(BeAnExistingFile())
	})
})
