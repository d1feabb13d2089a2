package storage

import (
	"time"

	"github.com/papercomputeco/glassbox/pkg/audit"
)

// WireRecord is the persisted shape of an audit.Record. Timestamps are kept
// as Unix nanoseconds, the value the seal commits to.
type WireRecord struct {
	Sequence    uint64 `json:"sequence"`
	TimestampNS int64  `json:"timestamp_ns"`
	Prompt      string `json:"prompt"`
	Response    string `json:"response"`
	PrevHash    string `json:"prev_hash"`
	RecordHash  string `json:"record_hash"`
	Seal        string `json:"seal"`
}

// ToWire converts r for storage.
func ToWire(r *audit.Record) WireRecord {
	return WireRecord{
		Sequence:    r.Sequence,
		TimestampNS: r.Timestamp.UnixNano(),
		Prompt:      r.Prompt,
		Response:    r.Response,
		PrevHash:    r.PrevHash,
		RecordHash:  r.RecordHash,
		Seal:        r.Seal,
	}
}

// Record converts w back to an audit.Record.
func (w WireRecord) Record() *audit.Record {
	return &audit.Record{
		Sequence:   w.Sequence,
		Timestamp:  time.Unix(0, w.TimestampNS).UTC(),
		Prompt:     w.Prompt,
		Response:   w.Response,
		PrevHash:   w.PrevHash,
		RecordHash: w.RecordHash,
		Seal:       w.Seal,
	}
}
