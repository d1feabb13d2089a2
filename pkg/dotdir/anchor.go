package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

const (
	anchorFile = "anchor.json"
)

// Anchor remembers the audit log state at the last successful verification.
// The hash chain cannot detect a log truncated at a record boundary; a
// remembered length and root can.
type Anchor struct {
	// Length is the number of records verified.
	Length uint64 `json:"length"`

	// RootHash is the chain root after record Length-1.
	RootHash string `json:"root_hash"`

	// VerifiedAt is when the verification ran.
	VerifiedAt time.Time `json:"verified_at"`
}

// LoadAnchor loads the anchor from a target .glassbox/anchor.json.
// Returns nil, nil if no anchor exists.
func (m *Manager) LoadAnchor(overrideDir string) (*Anchor, error) {
	path, err := m.Path(overrideDir, anchorFile)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading anchor: %w", err)
	}

	a := &Anchor{}
	if err := json.Unmarshal(data, a); err != nil {
		return nil, fmt.Errorf("parsing anchor: %w", err)
	}
	return a, nil
}

// SaveAnchor persists the anchor to a target .glassbox/anchor.json.
func (m *Manager) SaveAnchor(a *Anchor, overrideDir string) error {
	if a == nil {
		return errors.New("cannot save nil anchor")
	}

	path, err := m.Path(overrideDir, anchorFile)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling anchor: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing anchor: %w", err)
	}
	return nil
}

// ClearAnchor removes the anchor file. Returns nil if it does not exist.
func (m *Manager) ClearAnchor(overrideDir string) error {
	path, err := m.Path(overrideDir, anchorFile)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("removing anchor: %w", err)
	}
	return nil
}
