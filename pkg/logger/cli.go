package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// ForCLI builds the logger a command runs with: console output on console
// at info or debug level, and when logFile is set, every entry at debug
// level as JSON lines appended to logFile. The returned func syncs the
// logger and closes the file.
func ForCLI(debug bool, console io.Writer, logFile string) (*zap.Logger, func() error, error) {
	consoleLogger := New(WithDebug(debug), WithWriter(console))
	if logFile == "" {
		return consoleLogger, func() error {
			_ = consoleLogger.Sync()
			return nil
		}, nil
	}

	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	fileLogger := New(WithDebug(true), WithJSON(true), WithWriter(f))
	l := Multi(consoleLogger, fileLogger)
	return l, func() error {
		_ = l.Sync()
		return f.Close()
	}, nil
}
