package mutatorset

import (
	"encoding/binary"
	"sort"

	"github.com/triton-chain/triton/digest"
	"github.com/triton-chain/triton/mmr"
)

// AdditionRecord commits to one new output: H(item, randomness). The
// randomness is chosen by the sender and shared with the receiver off-chain;
// the chain only ever sees the commitment.
type AdditionRecord struct {
	Commitment digest.Digest `cbor:"1,keyasint"`
}

// NewAdditionRecord commits to an item with explicit randomness.
func NewAdditionRecord(item, randomness digest.Digest) AdditionRecord {
	return AdditionRecord{Commitment: digest.HashPair(item, randomness)}
}

// TargetChunk is an inactive Bloom filter chunk referenced by a removal
// record or membership proof, together with its MMR authentication path.
type TargetChunk struct {
	Proof *mmr.MembershipProof `cbor:"1,keyasint"`
	Chunk *Chunk               `cbor:"2,keyasint"`
}

func (t *TargetChunk) Clone() *TargetChunk {
	return &TargetChunk{
		Proof: t.Proof.Clone(),
		Chunk: t.Chunk.Clone(),
	}
}

// ChunkDictionary maps chunk indices to referenced chunks.
type ChunkDictionary map[uint64]*TargetChunk

func (d ChunkDictionary) Clone() ChunkDictionary {
	out := make(ChunkDictionary, len(d))
	for chunkIndex, target := range d {
		out[chunkIndex] = target.Clone()
	}

	return out
}

// sortedChunkIndices returns the dictionary keys in ascending order, for
// deterministic iteration.
func (d ChunkDictionary) sortedChunkIndices() []uint64 {
	indices := make([]uint64, 0, len(d))
	for chunkIndex := range d {
		indices = append(indices, chunkIndex)
	}

	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

	return indices
}

// RemovalRecord is the data needed to remove one output from the set: the
// output's Bloom filter indices plus, for indices that have slid into the
// inactive filter, the affected chunks and their authentication paths. It
// never identifies the AOCL slot being spent.
type RemovalRecord struct {
	AbsoluteIndices []uint64        `cbor:"1,keyasint"`
	TargetChunks    ChunkDictionary `cbor:"2,keyasint"`
}

// ID is the conflict key of a removal record: two records spending the same
// output derive the same indices and therefore the same ID.
func (r *RemovalRecord) ID() digest.Digest {
	buf := make([]byte, 8*len(r.AbsoluteIndices))
	for i, index := range r.AbsoluteIndices {
		binary.BigEndian.PutUint64(buf[8*i:], index)
	}

	return digest.Hash(buf)
}

func (r *RemovalRecord) Clone() *RemovalRecord {
	indices := make([]uint64, len(r.AbsoluteIndices))
	copy(indices, r.AbsoluteIndices)

	return &RemovalRecord{
		AbsoluteIndices: indices,
		TargetChunks:    r.TargetChunks.Clone(),
	}
}

// MembershipProof proves that an item is a live member of the set: its
// commitment is in the AOCL and not all of its Bloom filter indices are set.
type MembershipProof struct {
	Randomness   digest.Digest        `cbor:"1,keyasint"`
	AOCLIndex    uint64               `cbor:"2,keyasint"`
	AOCLPath     *mmr.MembershipProof `cbor:"3,keyasint"`
	TargetChunks ChunkDictionary      `cbor:"4,keyasint"`
}
