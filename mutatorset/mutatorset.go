package mutatorset

import (
	"github.com/triton-chain/triton/digest"
	"github.com/triton-chain/triton/errors"
	"github.com/triton-chain/triton/mmr"
)

// MutatorSet is the archival accumulator: it keeps the full AOCL and
// inactive-filter MMRs plus the contents of every committed chunk, so it can
// produce membership proofs and removal records for any live member. The
// chain-state manager owns exactly one canonical instance; block validation
// works on clones.
type MutatorSet struct {
	aocl         *mmr.MMR
	swbfInactive *mmr.MMR
	chunks       []*Chunk
	activeWindow *ActiveWindow
}

func New() *MutatorSet {
	return &MutatorSet{
		aocl:         mmr.New(),
		swbfInactive: mmr.New(),
		activeWindow: NewActiveWindow(),
	}
}

// LeafCount is the number of commitments ever added.
func (ms *MutatorSet) LeafCount() uint64 {
	return ms.aocl.LeafCount()
}

// batchIndex is the batch of the most recent addition; it determines where
// the active window starts.
func (ms *MutatorSet) batchIndex() uint64 {
	n := ms.aocl.LeafCount()
	if n == 0 {
		return 0
	}

	return (n - 1) / BatchSize
}

// windowSlides reports whether absorbing the addition with the given AOCL
// index moves the window.
func windowSlides(index uint64) bool {
	return index != 0 && index%BatchSize == 0
}

// Add absorbs an addition record and returns the AOCL index it occupies.
// Every BatchSize additions the active window slides: the oldest chunk is
// folded into the inactive filter MMR.
func (ms *MutatorSet) Add(record AdditionRecord) uint64 {
	index := ms.aocl.AddLeaf(record.Commitment)

	if windowSlides(index) {
		chunk := ms.activeWindow.SlidChunk()
		ms.chunks = append(ms.chunks, chunk)
		ms.swbfInactive.AddLeaf(chunk.Digest())
		ms.activeWindow.SlideWindow()
	}

	return index
}

// CanRemove reports whether the removal record corresponds to a
// currently-live member: all indices must be within the filter's committed
// range and at least one of them must still be unset. Applying the same
// record twice deterministically fails the second time, since the first
// application sets every index.
func (ms *MutatorSet) CanRemove(record *RemovalRecord) bool {
	if record == nil || len(record.AbsoluteIndices) != NumTrials {
		return false
	}

	batchIndex := ms.batchIndex()
	windowStart := batchIndex * ChunkSize

	hasUnset := false

	for _, index := range record.AbsoluteIndices {
		chunkIndex := index / ChunkSize

		if chunkIndex >= batchIndex {
			relative := index - windowStart
			if relative >= WindowSize {
				// index beyond the current window: record for an item
				// that was never added to this set
				return false
			}

			if !ms.activeWindow.GetBit(uint32(relative)) {
				hasUnset = true
			}

			continue
		}

		if !ms.chunks[chunkIndex].GetBit(uint32(index % ChunkSize)) {
			hasUnset = true
		}
	}

	return hasUnset
}

// Remove clears a live member by setting all of its Bloom filter indices.
// Chunks in the inactive filter are mutated in place and their MMR leaves
// updated. Fails with ERR_INVALID_REMOVAL when the record does not match a
// live member, including the double-application case.
func (ms *MutatorSet) Remove(record *RemovalRecord) error {
	if !ms.CanRemove(record) {
		return errors.NewInvalidRemovalError("removal record %s is not applicable", record.ID())
	}

	batchIndex := ms.batchIndex()
	windowStart := batchIndex * ChunkSize

	for chunkIndex, indices := range indicesByChunk(record.AbsoluteIndices) {
		if chunkIndex >= batchIndex {
			for _, index := range indices {
				ms.activeWindow.SetBit(uint32(index - windowStart))
			}

			continue
		}

		chunk := ms.chunks[chunkIndex]
		for _, index := range indices {
			chunk.SetBit(uint32(index % ChunkSize))
		}

		if err := ms.swbfInactive.MutateLeaf(chunkIndex, chunk.Digest()); err != nil {
			return errors.NewProcessingError("updating inactive filter chunk %d", chunkIndex, err)
		}
	}

	return nil
}

// DropRecord builds the removal record for a member, referencing the
// inactive chunks its indices fall into.
func (ms *MutatorSet) DropRecord(item digest.Digest, proof *MembershipProof) (*RemovalRecord, error) {
	indices := BloomIndices(item, proof.Randomness, proof.AOCLIndex)

	targetChunks, err := ms.referencedChunks(indices)
	if err != nil {
		return nil, err
	}

	return &RemovalRecord{
		AbsoluteIndices: indices,
		TargetChunks:    targetChunks,
	}, nil
}

// Prove generates a membership proof for an item that was added at the
// given AOCL index. Callers know (item, randomness) for their own outputs;
// the set itself never learns them.
func (ms *MutatorSet) Prove(item, randomness digest.Digest, aoclIndex uint64) (*MembershipProof, error) {
	aoclPath, err := ms.aocl.ProveLeaf(aoclIndex)
	if err != nil {
		return nil, err
	}

	indices := BloomIndices(item, randomness, aoclIndex)

	targetChunks, err := ms.referencedChunks(indices)
	if err != nil {
		return nil, err
	}

	return &MembershipProof{
		Randomness:   randomness,
		AOCLIndex:    aoclIndex,
		AOCLPath:     aoclPath,
		TargetChunks: targetChunks,
	}, nil
}

// Verify checks a membership proof: the commitment must authenticate
// against the AOCL, every referenced inactive chunk must authenticate
// against the inactive filter MMR, and at least one Bloom filter index must
// be unset.
func (ms *MutatorSet) Verify(item digest.Digest, proof *MembershipProof) bool {
	if proof == nil || proof.AOCLIndex >= ms.aocl.LeafCount() {
		return false
	}

	commitment := digest.HashPair(item, proof.Randomness)
	if !proof.AOCLPath.Verify(ms.aocl.Peaks(), ms.aocl.LeafCount(), commitment) {
		return false
	}

	batchIndex := ms.batchIndex()
	windowStart := batchIndex * ChunkSize

	swbfPeaks := ms.swbfInactive.Peaks()
	swbfLeafCount := ms.swbfInactive.LeafCount()

	hasUnset := false

	for chunkIndex, indices := range indicesByChunk(BloomIndices(item, proof.Randomness, proof.AOCLIndex)) {
		if chunkIndex >= batchIndex {
			for _, index := range indices {
				relative := index - windowStart
				if relative >= WindowSize {
					return false
				}

				if !ms.activeWindow.GetBit(uint32(relative)) {
					hasUnset = true
				}
			}

			continue
		}

		target, ok := proof.TargetChunks[chunkIndex]
		if !ok {
			return false
		}

		if !target.Proof.Verify(swbfPeaks, swbfLeafCount, target.Chunk.Digest()) {
			return false
		}

		for _, index := range indices {
			if !target.Chunk.GetBit(uint32(index % ChunkSize)) {
				hasUnset = true
			}
		}
	}

	return hasUnset
}

// Validate checks a removal record's chunk references against the current
// state: every inactive index must be covered by a target chunk whose
// authentication path is valid.
func (ms *MutatorSet) Validate(record *RemovalRecord) bool {
	if record == nil || len(record.AbsoluteIndices) != NumTrials {
		return false
	}

	batchIndex := ms.batchIndex()
	swbfPeaks := ms.swbfInactive.Peaks()
	swbfLeafCount := ms.swbfInactive.LeafCount()

	for chunkIndex := range indicesByChunk(record.AbsoluteIndices) {
		if chunkIndex >= batchIndex {
			continue
		}

		target, ok := record.TargetChunks[chunkIndex]
		if !ok {
			return false
		}

		if !target.Proof.Verify(swbfPeaks, swbfLeafCount, target.Chunk.Digest()) {
			return false
		}
	}

	return true
}

// Root is the single deterministic commitment to the whole set, as included
// in block headers.
func (ms *MutatorSet) Root() digest.Digest {
	aoclRoot := ms.aocl.Root()
	swbfRoot := ms.swbfInactive.Root()
	windowDigest := ms.activeWindow.Digest()

	return digest.Hash(aoclRoot[:], swbfRoot[:], windowDigest[:])
}

func (ms *MutatorSet) Clone() *MutatorSet {
	chunks := make([]*Chunk, len(ms.chunks))
	for i, chunk := range ms.chunks {
		chunks[i] = chunk.Clone()
	}

	return &MutatorSet{
		aocl:         ms.aocl.Clone(),
		swbfInactive: ms.swbfInactive.Clone(),
		chunks:       chunks,
		activeWindow: ms.activeWindow.Clone(),
	}
}

// referencedChunks collects proofs and contents for the inactive chunks
// covering the given indices.
func (ms *MutatorSet) referencedChunks(indices []uint64) (ChunkDictionary, error) {
	batchIndex := ms.batchIndex()
	targetChunks := make(ChunkDictionary)

	for chunkIndex := range indicesByChunk(indices) {
		if chunkIndex >= batchIndex {
			continue
		}

		chunkProof, err := ms.swbfInactive.ProveLeaf(chunkIndex)
		if err != nil {
			return nil, errors.NewProcessingError("proving inactive filter chunk %d", chunkIndex, err)
		}

		targetChunks[chunkIndex] = &TargetChunk{
			Proof: chunkProof,
			Chunk: ms.chunks[chunkIndex].Clone(),
		}
	}

	return targetChunks, nil
}
