package mmr

import (
	"encoding/binary"

	"github.com/triton-chain/triton/digest"
)

// MembershipProof authenticates one leaf against a set of peaks.
type MembershipProof struct {
	LeafIndex uint64          `cbor:"1,keyasint"`
	Path      []digest.Digest `cbor:"2,keyasint"`
}

// Verify checks that leaf is present at LeafIndex given the peaks and leaf
// count of the range the proof was generated against.
func (p *MembershipProof) Verify(peaks []digest.Digest, leafCount uint64, leaf digest.Digest) bool {
	if p == nil || p.LeafIndex >= leafCount {
		return false
	}

	node := leaf
	for k, sibling := range p.Path {
		if (p.LeafIndex>>uint(k))&1 == 1 {
			node = digest.HashPair(sibling, node)
		} else {
			node = digest.HashPair(node, sibling)
		}
	}

	// the folded node must equal the peak of the subtree containing the leaf
	expectedHeight, peakPos, ok := peakPosition(p.LeafIndex, leafCount)
	if !ok || expectedHeight != len(p.Path) || peakPos >= len(peaks) {
		return false
	}

	return peaks[peakPos] == node
}

func (p *MembershipProof) Clone() *MembershipProof {
	if p == nil {
		return nil
	}

	path := make([]digest.Digest, len(p.Path))
	copy(path, p.Path)

	return &MembershipProof{
		LeafIndex: p.LeafIndex,
		Path:      path,
	}
}

// RootFromPeaks bags the peaks right to left and commits to the leaf count.
func RootFromPeaks(peaks []digest.Digest, leafCount uint64) digest.Digest {
	var countBytes [8]byte
	binary.BigEndian.PutUint64(countBytes[:], leafCount)

	if len(peaks) == 0 {
		return digest.Hash(countBytes[:])
	}

	bagged := peaks[len(peaks)-1]
	for i := len(peaks) - 2; i >= 0; i-- {
		bagged = digest.HashPair(peaks[i], bagged)
	}

	return digest.Hash(countBytes[:], bagged[:])
}

// peakPosition locates the peak containing leafIndex: its height and its
// position in the peaks slice (highest tree first).
func peakPosition(leafIndex, leafCount uint64) (height, pos int, ok bool) {
	if leafIndex >= leafCount {
		return 0, 0, false
	}

	offset := uint64(0)
	pos = 0

	for k := 63; k >= 0; k-- {
		if leafCount&(1<<uint(k)) == 0 {
			continue
		}

		size := uint64(1) << uint(k)
		if leafIndex < offset+size {
			return k, pos, true
		}

		offset += size
		pos++
	}

	return 0, 0, false
}
