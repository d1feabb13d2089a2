// Package dbpath resolves the vector store database a command opens.
package dbpath

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// EnvDB overrides the configured vector store path.
const EnvDB = "GLASSBOX_DB"

// ResolveDBPath picks the vector store path. Order of precedence:
//  1. override, usually the --db flag
//  2. $GLASSBOX_DB
//  3. configured, resolved against dir when relative
func ResolveDBPath(override, configured, dir string) (string, error) {
	if override != "" {
		return override, nil
	}

	if envPath := strings.TrimSpace(os.Getenv(EnvDB)); envPath != "" {
		return envPath, nil
	}

	if configured == "" {
		return "", errors.New("no vector store path configured; pass --db or set vector_store.path")
	}
	if filepath.IsAbs(configured) || dir == "" {
		return configured, nil
	}
	return filepath.Join(dir, configured), nil
}
