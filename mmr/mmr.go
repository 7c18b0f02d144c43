// Package mmr implements a Merkle Mountain Range: an append-only
// authenticated list of digests supporting compact membership proofs,
// in-place leaf mutation and rollback by truncation.
//
// The range is kept as per-height levels of complete subtrees. The set of
// peaks corresponds to the binary decomposition of the leaf count; the root
// commits to the bagged peaks together with the leaf count.
package mmr

import (
	"github.com/triton-chain/triton/digest"
	"github.com/triton-chain/triton/errors"
)

type MMR struct {
	// levels[0] holds the leaves, levels[k][i] is the root of the complete
	// subtree over leaves [i*2^k, (i+1)*2^k).
	levels [][]digest.Digest
}

func New() *MMR {
	return &MMR{levels: [][]digest.Digest{nil}}
}

// NewFromLeaves rebuilds a range from its leaves. Used when decoding
// persisted snapshots; the upper levels are fully determined by the leaves.
func NewFromLeaves(leaves []digest.Digest) *MMR {
	m := New()
	for _, leaf := range leaves {
		m.AddLeaf(leaf)
	}

	return m
}

func (m *MMR) LeafCount() uint64 {
	return uint64(len(m.levels[0]))
}

func (m *MMR) Leaves() []digest.Digest {
	out := make([]digest.Digest, len(m.levels[0]))
	copy(out, m.levels[0])

	return out
}

// GetLeaf returns the leaf at the given index.
func (m *MMR) GetLeaf(index uint64) (digest.Digest, error) {
	if index >= m.LeafCount() {
		return digest.Empty, errors.NewInvalidArgumentError("leaf index %d out of range, have %d leaves", index, m.LeafCount())
	}

	return m.levels[0][index], nil
}

// AddLeaf appends a leaf and returns its index.
func (m *MMR) AddLeaf(leaf digest.Digest) uint64 {
	index := uint64(len(m.levels[0]))
	m.levels[0] = append(m.levels[0], leaf)

	// at most one new parent forms per height
	for k := 0; ; k++ {
		if k+1 >= len(m.levels) {
			m.levels = append(m.levels, nil)
		}

		lower := m.levels[k]
		upper := m.levels[k+1]

		if len(lower) < 2*(len(upper)+1) {
			break
		}

		i := len(upper)
		m.levels[k+1] = append(upper, digest.HashPair(lower[2*i], lower[2*i+1]))
	}

	return index
}

// Peaks returns the subtree roots, highest tree first.
func (m *MMR) Peaks() []digest.Digest {
	leafCount := m.LeafCount()

	var peaks []digest.Digest

	offset := uint64(0)

	for k := len(m.levels) - 1; k >= 0; k-- {
		if leafCount&(1<<uint(k)) == 0 {
			continue
		}

		peaks = append(peaks, m.levels[k][offset>>uint(k)])
		offset += 1 << uint(k)
	}

	return peaks
}

// Root commits to the peaks and the leaf count.
func (m *MMR) Root() digest.Digest {
	return RootFromPeaks(m.Peaks(), m.LeafCount())
}

// ProveLeaf produces a membership proof for the leaf at the given index
// against the current state of the range.
func (m *MMR) ProveLeaf(index uint64) (*MembershipProof, error) {
	leafCount := m.LeafCount()
	if index >= leafCount {
		return nil, errors.NewInvalidArgumentError("leaf index %d out of range, have %d leaves", index, leafCount)
	}

	height := m.peakHeight(index)

	path := make([]digest.Digest, 0, height)

	for k := 0; k < height; k++ {
		sibling := (index >> uint(k)) ^ 1
		path = append(path, m.levels[k][sibling])
	}

	return &MembershipProof{
		LeafIndex: index,
		Path:      path,
	}, nil
}

// MutateLeaf replaces the leaf at the given index and recomputes the nodes
// on its path to the containing peak. Membership proofs for other leaves in
// the same subtree are invalidated.
func (m *MMR) MutateLeaf(index uint64, leaf digest.Digest) error {
	if index >= m.LeafCount() {
		return errors.NewInvalidArgumentError("leaf index %d out of range, have %d leaves", index, m.LeafCount())
	}

	m.levels[0][index] = leaf

	for k := 1; k < len(m.levels); k++ {
		i := index >> uint(k)
		if i >= uint64(len(m.levels[k])) {
			break
		}

		m.levels[k][i] = digest.HashPair(m.levels[k-1][2*i], m.levels[k-1][2*i+1])
	}

	return nil
}

// TruncateToLeaves discards all leaves at index n and above. Upper levels
// are rebuilt; used when rolling back the chain.
func (m *MMR) TruncateToLeaves(n uint64) error {
	if n > m.LeafCount() {
		return errors.NewInvalidArgumentError("cannot truncate to %d leaves, have %d", n, m.LeafCount())
	}

	leaves := m.levels[0][:n]
	rebuilt := NewFromLeaves(leaves)
	m.levels = rebuilt.levels

	return nil
}

func (m *MMR) Clone() *MMR {
	clone := &MMR{levels: make([][]digest.Digest, len(m.levels))}
	for k, level := range m.levels {
		clone.levels[k] = make([]digest.Digest, len(level))
		copy(clone.levels[k], level)
	}

	return clone
}

// peakHeight returns the height of the peak containing the given leaf.
func (m *MMR) peakHeight(index uint64) int {
	leafCount := m.LeafCount()
	offset := uint64(0)

	for k := len(m.levels) - 1; k >= 0; k-- {
		if leafCount&(1<<uint(k)) == 0 {
			continue
		}

		size := uint64(1) << uint(k)
		if index < offset+size {
			return k
		}

		offset += size
	}

	return 0
}
