package logger

import (
	"io"

	"go.uber.org/zap"
)

// Option configures a Logger created with New.
type Option func(*config)

// WithDebug sets the log level to Debug when true, Info otherwise.
func WithDebug(debug bool) Option {
	return func(c *config) {
		if debug {
			c.level = zap.DebugLevel
		} else {
			c.level = zap.InfoLevel
		}
	}
}

// WithJSON switches to zap's JSON encoder for structured service logs.
func WithJSON(json bool) Option {
	return func(c *config) {
		c.json = json
	}
}

// WithWriter overrides the output writer. Defaults to os.Stdout.
func WithWriter(w io.Writer) Option {
	return func(c *config) {
		c.writers = []io.Writer{w}
	}
}

// WithWriters sets multiple output writers.
func WithWriters(w ...io.Writer) Option {
	return func(c *config) {
		c.writers = w
	}
}

// WithSource includes the caller file:line in log output.
func WithSource(source bool) Option {
	return func(c *config) {
		c.source = source
	}
}
