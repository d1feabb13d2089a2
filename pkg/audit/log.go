package audit

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/papercomputeco/glassbox/pkg/merkle"
)

// replayBatch is the number of records read per Range call while replaying.
const replayBatch = 512

// Log is the in-memory view of a Store: the chain of record hashes plus a
// Merkle tree over them. Appends are serialized.
type Log struct {
	mu      sync.Mutex
	store   Store
	hashes  []string
	tree    *merkle.Tree
	corrupt error
	clock   func() time.Time
	logger  *zap.Logger
}

// Option configures a Log.
type Option func(*Log)

// WithClock replaces the wall clock used for record timestamps.
func WithClock(clock func() time.Time) Option {
	return func(l *Log) {
		l.clock = clock
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Log) {
		l.logger = logger
	}
}

// Open loads the log held by store. A store without a header is initialized;
// otherwise every record is replayed and verified, and the root is rebuilt
// from the replay.
func Open(ctx context.Context, store Store, opts ...Option) (*Log, error) {
	l := &Log{
		store:  store,
		tree:   merkle.NewTree(),
		clock:  time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}

	header, err := store.Header(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading audit header: %w", err)
	}

	count, err := store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting audit records: %w", err)
	}

	if header == nil {
		if count > 0 {
			return nil, Corrupt(0, "%d records stored without a header", count)
		}
		if err := store.WriteHeader(ctx, DefaultHeader()); err != nil {
			return nil, &PersistenceError{Sequence: 0, Err: fmt.Errorf("writing header: %w", err)}
		}
		l.logger.Info("audit log created", zap.Int("format_version", FormatVersion))
		return l, nil
	}

	if header.FormatVersion != FormatVersion {
		return nil, Corrupt(0, "unsupported format version %d", header.FormatVersion)
	}
	if header.GenesisHash != GenesisHash {
		return nil, Corrupt(0, "unexpected genesis hash %s", header.GenesisHash)
	}

	for from := uint64(0); from < count; from += replayBatch {
		to := min(from+replayBatch, count)
		records, err := store.Range(ctx, from, to)
		if err != nil {
			return nil, err
		}
		if uint64(len(records)) != to-from {
			return nil, Corrupt(from+uint64(len(records)), "store returned %d records for range [%d, %d)", len(records), from, to)
		}
		for _, r := range records {
			seq := uint64(len(l.hashes))
			if err := r.check(l.rootLocked(), seq); err != nil {
				return nil, &CorruptionError{Sequence: seq, Err: err}
			}
			leaf, err := decodeHash(r.RecordHash)
			if err != nil {
				return nil, &CorruptionError{Sequence: seq, Err: fmt.Errorf("record hash: %w", err)}
			}
			l.push(r.RecordHash, leaf)
		}
	}

	l.logger.Info("audit log replayed",
		zap.Uint64("records", count),
		zap.String("root_hash", l.rootLocked()),
	)
	return l, nil
}

// Append commits a prompt and response. The record is persisted before the
// in-memory chain advances; a storage failure leaves the log unchanged.
func (l *Log) Append(ctx context.Context, prompt, response string) (*Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.corrupt != nil {
		return nil, l.corrupt
	}

	seq := uint64(len(l.hashes))
	ts := l.clock().UTC().Round(0)

	r, err := NewRecord(l.rootLocked(), seq, ts, prompt, response)
	if err != nil {
		return nil, fmt.Errorf("building audit record: %w", err)
	}

	leaf, err := decodeHash(r.RecordHash)
	if err != nil {
		return nil, fmt.Errorf("building audit record: %w", err)
	}

	if err := l.store.Append(ctx, r); err != nil {
		return nil, &PersistenceError{Sequence: seq, Err: err}
	}

	l.push(r.RecordHash, leaf)
	l.logger.Debug("audit record appended",
		zap.Uint64("sequence", seq),
		zap.String("root_hash", r.RecordHash),
	)
	return r, nil
}

// RootHash returns the current root hash.
func (l *Log) RootHash() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.corrupt != nil {
		return "", l.corrupt
	}
	return l.rootLocked(), nil
}

// RootHashAt returns the root hash as it was right after record seq was
// appended.
func (l *Log) RootHashAt(seq uint64) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.corrupt != nil {
		return "", l.corrupt
	}
	if seq >= uint64(len(l.hashes)) {
		return "", fmt.Errorf("%w: %d >= %d", ErrOutOfRange, seq, len(l.hashes))
	}
	return l.hashes[seq], nil
}

// Len returns the number of records.
func (l *Log) Len() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return uint64(len(l.hashes))
}

// Record reads record seq back from storage and checks it against the chain.
func (l *Log) Record(ctx context.Context, seq uint64) (*Record, error) {
	records, err := l.Records(ctx, seq, seq+1)
	if err != nil {
		return nil, err
	}
	return records[0], nil
}

// Records reads [from, to) back from storage, verifying each record.
func (l *Log) Records(ctx context.Context, from, to uint64) ([]*Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.readLocked(ctx, from, to)
}

// Verify re-reads the half-open range [from, to) from storage and recomputes
// every record, checking linkage to the record before from. It returns nil
// or a *CorruptionError naming the first failing sequence. Corruption is
// permanent for this Log.
func (l *Log) Verify(ctx context.Context, from, to uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if from >= to {
		_, err := l.readLocked(ctx, from, to)
		return err
	}
	for start := from; start < to; start += replayBatch {
		if _, err := l.readLocked(ctx, start, min(start+replayBatch, to)); err != nil {
			return err
		}
	}
	return nil
}

// VerifyAll verifies every record.
func (l *Log) VerifyAll(ctx context.Context) error {
	return l.Verify(ctx, 0, l.Len())
}

// CheckAnchor compares the log with a previously observed state: length
// records ending in root. It catches a log cut back at a record boundary,
// which replay alone cannot. The log is not poisoned; the anchor may be
// stale rather than the log corrupt.
func (l *Log) CheckAnchor(length uint64, root string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.corrupt != nil {
		return l.corrupt
	}
	if length == 0 {
		return nil
	}
	n := uint64(len(l.hashes))
	if n < length {
		return &CorruptionError{Sequence: n, Err: fmt.Errorf("%w: %d records, anchor expects at least %d", ErrTruncated, n, length)}
	}
	if got := l.hashes[length-1]; got != root {
		return Corrupt(length-1, "root hash %s does not match anchor %s", got, root)
	}
	return nil
}

// Proof is a Merkle inclusion proof for one record.
type Proof struct {
	Sequence   uint64   `json:"sequence"`
	TreeSize   uint64   `json:"tree_size"`
	RecordHash string   `json:"record_hash"`
	Path       []string `json:"path"`
	Root       string   `json:"merkle_root"`
}

// MerkleRoot returns the RFC 6962 tree head over every record hash.
func (l *Log) MerkleRoot() (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.corrupt != nil {
		return "", l.corrupt
	}
	root := l.tree.Root()
	return hex.EncodeToString(root[:]), nil
}

// InclusionProof proves record seq is part of the current Merkle root
// without replaying the chain.
func (l *Log) InclusionProof(seq uint64) (*Proof, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.corrupt != nil {
		return nil, l.corrupt
	}
	path, err := l.tree.InclusionProof(seq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOutOfRange, err)
	}
	root := l.tree.Root()

	p := &Proof{
		Sequence:   seq,
		TreeSize:   l.tree.Size(),
		RecordHash: l.hashes[seq],
		Path:       make([]string, len(path)),
		Root:       hex.EncodeToString(root[:]),
	}
	for i, h := range path {
		p.Path[i] = hex.EncodeToString(h[:])
	}
	return p, nil
}

// VerifyProof checks a proof on its own.
func VerifyProof(p *Proof) bool {
	rh, err := decodeHash(p.RecordHash)
	if err != nil {
		return false
	}
	root, err := decodeHash(p.Root)
	if err != nil {
		return false
	}
	path := make([]merkle.Hash, len(p.Path))
	for i, s := range p.Path {
		b, err := decodeHash(s)
		if err != nil {
			return false
		}
		copy(path[i][:], b)
	}
	var rootHash merkle.Hash
	copy(rootHash[:], root)
	return merkle.VerifyInclusion(merkle.LeafHash(rh), p.Sequence, p.TreeSize, path, rootHash)
}

func (l *Log) readLocked(ctx context.Context, from, to uint64) ([]*Record, error) {
	if l.corrupt != nil {
		return nil, l.corrupt
	}
	if from > to {
		return nil, fmt.Errorf("invalid range [%d, %d)", from, to)
	}
	if to > uint64(len(l.hashes)) {
		return nil, fmt.Errorf("%w: %d > %d", ErrOutOfRange, to, len(l.hashes))
	}
	if from == to {
		return []*Record{}, nil
	}

	records, err := l.store.Range(ctx, from, to)
	if err != nil {
		var ce *CorruptionError
		if errors.As(err, &ce) {
			return nil, l.poison(ce)
		}
		return nil, err
	}
	if uint64(len(records)) != to-from {
		return nil, l.poison(Corrupt(from+uint64(len(records)),
			"store returned %d records for range [%d, %d)", len(records), from, to))
	}

	for i, r := range records {
		seq := from + uint64(i)
		prev := GenesisHash
		if seq > 0 {
			prev = l.hashes[seq-1]
		}
		if err := r.check(prev, seq); err != nil {
			return nil, l.poison(&CorruptionError{Sequence: seq, Err: err})
		}
		if r.RecordHash != l.hashes[seq] {
			return nil, l.poison(Corrupt(seq, "stored record hash %s differs from replayed %s", r.RecordHash, l.hashes[seq]))
		}
	}
	return records, nil
}

func (l *Log) poison(err *CorruptionError) error {
	if l.corrupt == nil {
		l.corrupt = err
		l.logger.Error("audit log corrupted",
			zap.Uint64("sequence", err.Sequence),
			zap.Error(err),
		)
	}
	return l.corrupt
}

func (l *Log) rootLocked() string {
	if len(l.hashes) == 0 {
		return GenesisHash
	}
	return l.hashes[len(l.hashes)-1]
}

// push advances the chain. leaf is recordHash decoded; callers decode it
// before anything is persisted so a bad hash never reaches the tree.
func (l *Log) push(recordHash string, leaf []byte) {
	l.hashes = append(l.hashes, recordHash)
	l.tree.Append(leaf)
}
