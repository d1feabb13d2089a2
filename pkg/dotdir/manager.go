// Package dotdir manages the .glassbox/ and ~/.glassbox directories.
//
// The directory holds config.toml, the default vector store and audit log
// files, and the audit anchor written after each successful verification.
package dotdir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DirName is the name of the glassbox directory.
const DirName = ".glassbox"

type Manager struct {
	// homeDir is swapped in tests.
	homeDir func() (string, error)
}

func NewManager() *Manager {
	return &Manager{homeDir: os.UserHomeDir}
}

// Target returns the absolute path of the .glassbox/ directory to use,
// creating it when missing. Order of precedence:
//  1. overrideDir
//  2. the nearest .glassbox/ in the working directory or a parent
//  3. ~/.glassbox/
func (m *Manager) Target(overrideDir string) (string, error) {
	dir := overrideDir
	if dir == "" {
		local, err := m.FindLocal()
		if err != nil {
			return "", err
		}
		dir = local
	}
	if dir == "" {
		home, err := m.homeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, DirName)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating glassbox directory %s: %w", dir, err)
	}
	return filepath.Abs(dir)
}

// Path joins name onto the Target directory.
func (m *Manager) Path(overrideDir, name string) (string, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// FindLocal walks up from the working directory and returns the first
// .glassbox/ directory found, or "" when there is none. The home directory
// is not treated as local.
func (m *Manager) FindLocal() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting current directory: %w", err)
	}
	home, _ := m.homeDir()

	for dir := cwd; ; dir = filepath.Dir(dir) {
		if dir == home {
			return "", nil
		}
		candidate := filepath.Join(dir, DirName)
		info, err := os.Stat(candidate)
		switch {
		case err == nil && info.IsDir():
			return candidate, nil
		case err != nil && !errors.Is(err, os.ErrNotExist):
			return "", fmt.Errorf("checking %s: %w", candidate, err)
		}

		if parent := filepath.Dir(dir); parent == dir {
			return "", nil
		}
	}
}

// InitLocal creates ./.glassbox/ under parent and returns its path.
func (m *Manager) InitLocal(parent string) (string, error) {
	dir := filepath.Join(parent, DirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating glassbox directory %s: %w", dir, err)
	}
	return filepath.Abs(dir)
}
