// Package engine implements the STARK engine proper: polynomial
// interpolation/low-degree extension, Merkle commitment, a Fiat-Shamir
// transcript channel, and FRI. This is the part spec.md §OVERVIEW declares
// out of scope for the core's content ("the core specifies only the inputs
// it hands to that engine"); it is carried here as the ambient machinery the
// facade needs to actually produce and check a proof, grounded on the
// teacher's core/merkle.go, utils/channel.go, utils/config.go, and
// protocols/fri.go.
package engine

import (
	"crypto/sha256"
	"fmt"

	"github.com/cairostark/cairo-stark-vm/internal/cairostark/field"
)

// MerkleTree commits to a column of field elements via sha256, following
// core/merkle.go's binary tree shape (duplicate the last node on an odd
// level instead of promoting it unpaired).
type MerkleTree struct {
	leaves [][]byte
	levels [][][]byte
	root   []byte
}

// ProofNode is one sibling hash on a Merkle authentication path.
type ProofNode struct {
	Hash    []byte
	IsRight bool
}

func hashLeaf(f field.Felt) []byte {
	b := f.Bytes()
	h := sha256.Sum256(b[:])
	return h[:]
}

func hashPair(a, b []byte) []byte {
	buf := make([]byte, 0, len(a)+len(b))
	buf = append(buf, a...)
	buf = append(buf, b...)
	h := sha256.Sum256(buf)
	return h[:]
}

// NewMerkleTree commits to a non-empty column of field elements.
func NewMerkleTree(column []field.Felt) (*MerkleTree, error) {
	if len(column) == 0 {
		return nil, fmt.Errorf("engine: cannot commit to an empty column")
	}
	leaves := make([][]byte, len(column))
	for i, v := range column {
		leaves[i] = hashLeaf(v)
	}
	levels := [][][]byte{leaves}
	current := leaves
	for len(current) > 1 {
		next := make([][]byte, 0, (len(current)+1)/2)
		for i := 0; i < len(current); i += 2 {
			if i+1 < len(current) {
				next = append(next, hashPair(current[i], current[i+1]))
			} else {
				next = append(next, hashPair(current[i], current[i]))
			}
		}
		levels = append(levels, next)
		current = next
	}
	return &MerkleTree{leaves: leaves, levels: levels, root: current[0]}, nil
}

// Root returns the commitment's Merkle root.
func (mt *MerkleTree) Root() []byte {
	return append([]byte(nil), mt.root...)
}

// Open returns the authentication path for the leaf at index.
func (mt *MerkleTree) Open(index int) ([]ProofNode, error) {
	if index < 0 || index >= len(mt.leaves) {
		return nil, fmt.Errorf("engine: merkle index %d out of range [0,%d)", index, len(mt.leaves))
	}
	var path []ProofNode
	idx := index
	for level := 0; level < len(mt.levels)-1; level++ {
		cur := mt.levels[level]
		var siblingIdx int
		var isRight bool
		if idx%2 == 0 {
			siblingIdx, isRight = idx+1, true
		} else {
			siblingIdx, isRight = idx-1, false
		}
		if siblingIdx < len(cur) {
			path = append(path, ProofNode{Hash: cur[siblingIdx], IsRight: isRight})
		} else {
			path = append(path, ProofNode{Hash: cur[idx], IsRight: true})
		}
		idx /= 2
	}
	return path, nil
}

// VerifyPath checks leaf/path against root at the given index.
func VerifyPath(root []byte, leaf field.Felt, path []ProofNode, index int) bool {
	hash := hashLeaf(leaf)
	for _, node := range path {
		if node.IsRight {
			hash = hashPair(hash, node.Hash)
		} else {
			hash = hashPair(node.Hash, hash)
		}
	}
	_ = index // index is only needed by callers re-deriving sibling order; path already encodes it
	return string(hash) == string(root)
}
