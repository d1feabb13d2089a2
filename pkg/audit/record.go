// Package audit implements the append-only, hash chained interaction log.
//
// Each record commits to its predecessor:
//
//	record_hash = H(prev_hash || H(prompt) || H(response) || seq)
//	seal        = H(record_hash || timestamp_unix_nano)
//
// H is SHA-256, digests are concatenated raw and seq and the timestamp are
// 8 byte big-endian integers. The root hash is the last record hash, or
// GenesisHash for an empty log.
package audit

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"time"
	"unicode/utf8"
)

// FormatVersion is written in the log header.
const FormatVersion = 1

// GenesisHash is the root hash of an empty log.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Header describes a persisted log.
type Header struct {
	FormatVersion int    `json:"format_version"`
	GenesisHash   string `json:"genesis_hash"`
}

// DefaultHeader is the header written for a new log.
func DefaultHeader() *Header {
	return &Header{FormatVersion: FormatVersion, GenesisHash: GenesisHash}
}

// Record is one committed prompt and response pair.
type Record struct {
	Sequence   uint64    `json:"sequence"`
	Timestamp  time.Time `json:"timestamp"`
	Prompt     string    `json:"prompt"`
	Response   string    `json:"response"`
	PrevHash   string    `json:"prev_hash"`
	RecordHash string    `json:"record_hash"`
	Seal       string    `json:"seal"`
}

// NewRecord builds the record following prevHash at seq. Prompt and
// response must be valid UTF-8.
func NewRecord(prevHash string, seq uint64, ts time.Time, prompt, response string) (*Record, error) {
	if !utf8.ValidString(prompt) {
		return nil, fmt.Errorf("prompt: %w", ErrInvalidText)
	}
	if !utf8.ValidString(response) {
		return nil, fmt.Errorf("response: %w", ErrInvalidText)
	}
	rh, err := ComputeRecordHash(prevHash, prompt, response, seq)
	if err != nil {
		return nil, err
	}
	seal, err := ComputeSeal(rh, ts)
	if err != nil {
		return nil, err
	}
	return &Record{
		Sequence:   seq,
		Timestamp:  ts,
		Prompt:     prompt,
		Response:   response,
		PrevHash:   prevHash,
		RecordHash: rh,
		Seal:       seal,
	}, nil
}

// ComputeRecordHash returns the hex record hash for a record at seq.
func ComputeRecordHash(prevHash, prompt, response string, seq uint64) (string, error) {
	prev, err := decodeHash(prevHash)
	if err != nil {
		return "", fmt.Errorf("prev hash: %w", err)
	}

	ph := sha256.Sum256([]byte(prompt))
	rh := sha256.Sum256([]byte(response))
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], seq)

	h := sha256.New()
	h.Write(prev)
	h.Write(ph[:])
	h.Write(rh[:])
	h.Write(seqBuf[:])
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ComputeSeal binds a timestamp to a record hash.
func ComputeSeal(recordHash string, ts time.Time) (string, error) {
	rh, err := decodeHash(recordHash)
	if err != nil {
		return "", fmt.Errorf("record hash: %w", err)
	}
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(ts.UnixNano()))

	h := sha256.New()
	h.Write(rh)
	h.Write(tsBuf[:])
	return hex.EncodeToString(h.Sum(nil)), nil
}

// check recomputes r as the successor of prevHash at seq. Stored hashes are
// compared as strings so a re-cased hex digit is still a mismatch.
func (r *Record) check(prevHash string, seq uint64) error {
	if r.Sequence != seq {
		return fmt.Errorf("sequence %d found where %d was expected", r.Sequence, seq)
	}
	if r.PrevHash != prevHash {
		return fmt.Errorf("prev hash %s does not link to %s", r.PrevHash, prevHash)
	}
	rh, err := ComputeRecordHash(prevHash, r.Prompt, r.Response, r.Sequence)
	if err != nil {
		return err
	}
	if r.RecordHash != rh {
		return fmt.Errorf("record hash %s does not match recomputed %s", r.RecordHash, rh)
	}
	seal, err := ComputeSeal(rh, r.Timestamp)
	if err != nil {
		return err
	}
	if r.Seal != seal {
		return fmt.Errorf("seal %s does not match recomputed %s", r.Seal, seal)
	}
	return nil
}

func decodeHash(s string) ([]byte, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(b) != sha256.Size {
		return nil, fmt.Errorf("hash is %d bytes, expected %d", len(b), sha256.Size)
	}
	return b, nil
}
