// Package merkle keeps an RFC 6962 Merkle tree over an append-only
// sequence of leaves and serves tree heads and inclusion proofs from it.
//
// Hashing and proof construction come from transparency-dev/merkle; this
// package stores every perfect subtree hash as leaves arrive so historical
// roots and proofs never rehash leaves.
package merkle

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/transparency-dev/merkle/compact"
	"github.com/transparency-dev/merkle/proof"
	"github.com/transparency-dev/merkle/rfc6962"
)

// Hash is a SHA-256 digest.
type Hash [sha256.Size]byte

// ErrIndexOutOfRange is returned for a proof request past the tree size.
var ErrIndexOutOfRange = errors.New("leaf index out of range")

var hasher = rfc6962.DefaultHasher

// EmptyRoot is the root of a tree with no leaves.
var EmptyRoot = toHash(hasher.EmptyRoot())

// LeafHash hashes leaf data with the leaf domain prefix.
func LeafHash(data []byte) Hash {
	return toHash(hasher.HashLeaf(data))
}

// NodeHash combines two child hashes with the interior domain prefix.
func NodeHash(left, right Hash) Hash {
	return toHash(hasher.HashChildren(left[:], right[:]))
}

// Tree is an append-only Merkle tree. It is not safe for concurrent use.
type Tree struct {
	rf    *compact.RangeFactory
	rng   *compact.Range
	nodes map[compact.NodeID][]byte
}

// NewTree creates an empty tree.
func NewTree() *Tree {
	rf := &compact.RangeFactory{Hash: hasher.HashChildren}
	return &Tree{
		rf:    rf,
		rng:   rf.NewEmptyRange(0),
		nodes: make(map[compact.NodeID][]byte),
	}
}

// Append adds a leaf for data and returns its index.
func (t *Tree) Append(data []byte) uint64 {
	index := t.rng.End()
	// Appending at the end of a range that starts at 0 cannot fail.
	_ = t.rng.Append(hasher.HashLeaf(data), t.visit)
	return index
}

func (t *Tree) visit(id compact.NodeID, hash []byte) {
	t.nodes[id] = hash
}

// Size is the number of leaves.
func (t *Tree) Size() uint64 {
	return t.rng.End()
}

// Leaf returns the hash of leaf index.
func (t *Tree) Leaf(index uint64) (Hash, error) {
	if index >= t.Size() {
		return Hash{}, fmt.Errorf("%w: %d >= %d", ErrIndexOutOfRange, index, t.Size())
	}
	return toHash(t.nodes[compact.NewNodeID(0, index)]), nil
}

// Root returns the tree head over every leaf.
func (t *Tree) Root() Hash {
	root, _ := t.RootAt(t.Size())
	return root
}

// RootAt returns the tree head over the first size leaves.
func (t *Tree) RootAt(size uint64) (Hash, error) {
	if size > t.Size() {
		return Hash{}, fmt.Errorf("%w: size %d > %d", ErrIndexOutOfRange, size, t.Size())
	}
	if size == 0 {
		return EmptyRoot, nil
	}

	ids := compact.RangeNodes(0, size, nil)
	hashes := make([][]byte, len(ids))
	for i, id := range ids {
		hashes[i] = t.nodes[id]
	}
	rng, err := t.rf.NewRange(0, size, hashes)
	if err != nil {
		return Hash{}, fmt.Errorf("rebuilding range of %d leaves: %w", size, err)
	}
	root, err := rng.GetRootHash(nil)
	if err != nil {
		return Hash{}, fmt.Errorf("hashing range of %d leaves: %w", size, err)
	}
	return toHash(root), nil
}

// InclusionProof returns the audit path for leaf index in the current tree.
func (t *Tree) InclusionProof(index uint64) ([]Hash, error) {
	size := t.Size()
	if index >= size {
		return nil, fmt.Errorf("%w: %d >= %d", ErrIndexOutOfRange, index, size)
	}

	nodes, err := proof.Inclusion(index, size)
	if err != nil {
		return nil, fmt.Errorf("planning proof for leaf %d: %w", index, err)
	}
	hashes := make([][]byte, len(nodes.IDs))
	for i, id := range nodes.IDs {
		hashes[i] = t.nodes[id]
	}
	path, err := nodes.Rehash(hashes, hasher.HashChildren)
	if err != nil {
		return nil, fmt.Errorf("building proof for leaf %d: %w", index, err)
	}

	out := make([]Hash, len(path))
	for i, h := range path {
		out[i] = toHash(h)
	}
	return out, nil
}

// VerifyInclusion checks that leaf sits at index in a tree of size leaves
// whose head is root.
func VerifyInclusion(leaf Hash, index, size uint64, path []Hash, root Hash) bool {
	raw := make([][]byte, len(path))
	for i := range path {
		raw[i] = path[i][:]
	}
	return proof.VerifyInclusion(hasher, index, size, leaf[:], raw, root[:]) == nil
}

func toHash(b []byte) Hash {
	var h Hash
	copy(h[:], b)
	return h
}
