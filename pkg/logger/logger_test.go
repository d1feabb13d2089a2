package logger_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/glassbox/pkg/logger"
)

var _ = Describe("Logger", func() {
	Describe("New", func() {
		It("creates a default console logger", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf))
			l.Info("hello", zap.String("key", "value"))
			Expect(l.Sync()).To(Succeed())

			output := buf.String()
			Expect(output).To(ContainSubstring("hello"))
			Expect(output).To(ContainSubstring("key"))
			Expect(output).To(ContainSubstring("value"))
		})

		It("respects debug level", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithDebug(true))
			l.Debug("debug msg")

			Expect(buf.String()).To(ContainSubstring("debug msg"))
		})

		It("filters debug when not enabled", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithDebug(false))
			l.Debug("hidden")

			Expect(buf.String()).To(BeEmpty())
		})

		It("creates a JSON logger", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithJSON(true))
			l.Info("structured", zap.Int("count", 42))

			var parsed map[string]any
			err := json.Unmarshal(buf.Bytes(), &parsed)
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed["msg"]).To(Equal("structured"))
			Expect(parsed["count"]).To(BeNumerically("==", 42))
		})

		It("supports multiple writers", func() {
			var buf1, buf2 bytes.Buffer
			l := logger.NewLoggerWithWriters(false, &buf1, &buf2)
			l.Info("multi")

			Expect(buf1.String()).To(ContainSubstring("multi"))
			Expect(buf2.String()).To(ContainSubstring("multi"))
		})
	})

	Describe("Nop", func() {
		It("does not panic on any method", func() {
			l := logger.Nop()
			Expect(func() {
				l.Debug("msg")
				l.Info("msg")
				l.Warn("msg")
				l.Error("msg")
				l.With(zap.String("key", "value")).Info("msg")
			}).NotTo(Panic())
		})
	})

	Describe("Multi", func() {
		It("dispatches to all loggers", func() {
			var buf1, buf2 bytes.Buffer
			l1 := logger.New(logger.WithWriter(&buf1))
			l2 := logger.New(logger.WithWriter(&buf2), logger.WithJSON(true))
			multi := logger.Multi(l1, l2)

			multi.Info("broadcast", zap.String("key", "val"))

			Expect(buf1.String()).To(ContainSubstring("broadcast"))
			Expect(buf2.String()).To(ContainSubstring("broadcast"))
		})

		It("keeps fields bound with With", func() {
			var buf bytes.Buffer
			l := logger.New(logger.WithWriter(&buf), logger.WithJSON(true))
			child := logger.Multi(l).With(zap.String("component", "test"))
			child.Info("hello")

			var parsed map[string]any
			err := json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &parsed)
			Expect(err).NotTo(HaveOccurred())
			Expect(parsed["component"]).To(Equal("test"))
		})
	})
})

var _ = Describe("ForCLI", func() {
	It("logs to the console only without a log file", func() {
		var console bytes.Buffer
		l, closeLog, err := logger.ForCLI(false, &console, "")
		Expect(err).NotTo(HaveOccurred())

		l.Info("opened")
		l.Debug("hidden")
		Expect(closeLog()).To(Succeed())

		Expect(console.String()).To(ContainSubstring("opened"))
		Expect(console.String()).NotTo(ContainSubstring("hidden"))
	})

	It("tees debug entries as JSON into the log file", func() {
		var console bytes.Buffer
		path := filepath.Join(GinkgoT().TempDir(), "logs", "glassbox.log")
		l, closeLog, err := logger.ForCLI(false, &console, path)
		Expect(err).NotTo(HaveOccurred())

		l.Debug("replaying", zap.Uint64("records", 3))
		l.Info("opened")
		Expect(closeLog()).To(Succeed())

		Expect(console.String()).NotTo(ContainSubstring("replaying"))

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		lines := strings.Split(strings.TrimSpace(string(data)), "\n")
		Expect(lines).To(HaveLen(2))

		var first map[string]any
		Expect(json.Unmarshal([]byte(lines[0]), &first)).To(Succeed())
		Expect(first["msg"]).To(Equal("replaying"))
		Expect(first["level"]).To(Equal("debug"))
		Expect(first["records"]).To(BeNumerically("==", 3))
	})
})
