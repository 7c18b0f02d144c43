// Package mutatorset implements the privacy-preserving authenticated
// accumulator committing to the unspent-output set.
//
// The construction has three parts: an append-only commitment list (AOCL,
// a Merkle Mountain Range over output commitments), a sliding-window Bloom
// filter whose recent portion is an in-memory active window, and an MMR over
// the Bloom filter chunks that have slid out of the active window. Adding an
// output appends its commitment to the AOCL; spending an output sets its
// Bloom filter indices. Because the filter indices are derived from
// sender-chosen randomness, a removal does not reveal which AOCL slot was
// spent.
package mutatorset

import (
	"encoding/binary"

	"github.com/triton-chain/triton/digest"
)

const (
	// NumTrials is the number of Bloom filter indices per removal record.
	NumTrials = 45

	// BatchSize is the number of additions after which the active window
	// slides by one chunk.
	BatchSize = 8

	// ChunkSize is the number of Bloom filter bits per committed chunk.
	ChunkSize = 1024

	// WindowSize is the width of the active window in bits.
	WindowSize = BatchSize * ChunkSize
)

// BloomIndices derives the absolute Bloom filter indices for an item added
// at the given AOCL leaf index. Counter-mode hashing; duplicates are skipped
// and replaced by further counters, so the result is always NumTrials
// distinct indices. Fully deterministic in (item, randomness, aoclIndex).
func BloomIndices(item, randomness digest.Digest, aoclIndex uint64) []uint64 {
	batchIndex := aoclIndex / BatchSize
	base := batchIndex * ChunkSize

	var aoclBytes [8]byte
	binary.BigEndian.PutUint64(aoclBytes[:], aoclIndex)

	seen := make(map[uint64]struct{}, NumTrials)
	indices := make([]uint64, 0, NumTrials)

	for counter := uint64(0); len(indices) < NumTrials; counter++ {
		var counterBytes [8]byte
		binary.BigEndian.PutUint64(counterBytes[:], counter)

		sample := digest.Hash(item[:], randomness[:], aoclBytes[:], counterBytes[:])
		index := base + sample.Uint64()%WindowSize

		if _, ok := seen[index]; ok {
			continue
		}

		seen[index] = struct{}{}
		indices = append(indices, index)
	}

	return indices
}

// indicesByChunk groups absolute indices by the chunk they fall into.
func indicesByChunk(indices []uint64) map[uint64][]uint64 {
	out := make(map[uint64][]uint64)
	for _, index := range indices {
		chunkIndex := index / ChunkSize
		out[chunkIndex] = append(out[chunkIndex], index)
	}

	return out
}
