package mutatorset

import (
	"encoding/binary"
	"sort"

	"github.com/triton-chain/triton/digest"
)

// Chunk is one committed slice of the sliding-window Bloom filter, kept as
// sorted distinct relative bit indices. The filter is sparse in practice, so
// an index list is much smaller than a dense bitmap.
type Chunk struct {
	Indices []uint32 `cbor:"1,keyasint"`
}

func NewChunk() *Chunk {
	return &Chunk{}
}

func ChunkFromIndices(indices []uint32) *Chunk {
	c := NewChunk()
	for _, index := range indices {
		c.SetBit(index)
	}

	return c
}

func (c *Chunk) GetBit(index uint32) bool {
	i := sort.Search(len(c.Indices), func(i int) bool { return c.Indices[i] >= index })

	return i < len(c.Indices) && c.Indices[i] == index
}

func (c *Chunk) SetBit(index uint32) {
	i := sort.Search(len(c.Indices), func(i int) bool { return c.Indices[i] >= index })
	if i < len(c.Indices) && c.Indices[i] == index {
		return
	}

	c.Indices = append(c.Indices, 0)
	copy(c.Indices[i+1:], c.Indices[i:])
	c.Indices[i] = index
}

// Or merges the set bits of other into c.
func (c *Chunk) Or(other *Chunk) {
	for _, index := range other.Indices {
		c.SetBit(index)
	}
}

func (c *Chunk) IsEmpty() bool {
	return len(c.Indices) == 0
}

func (c *Chunk) Clone() *Chunk {
	indices := make([]uint32, len(c.Indices))
	copy(indices, c.Indices)

	return &Chunk{Indices: indices}
}

// Digest commits to the chunk contents: the count followed by each index in
// ascending order, all big-endian.
func (c *Chunk) Digest() digest.Digest {
	buf := make([]byte, 4+4*len(c.Indices))
	binary.BigEndian.PutUint32(buf, uint32(len(c.Indices)))

	for i, index := range c.Indices {
		binary.BigEndian.PutUint32(buf[4+4*i:], index)
	}

	return digest.Hash(buf)
}
