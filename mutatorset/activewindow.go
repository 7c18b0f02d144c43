package mutatorset

import (
	"encoding/binary"
	"sort"

	"github.com/triton-chain/triton/digest"
)

// ActiveWindow is the in-memory portion of the sliding-window Bloom filter:
// the most recent WindowSize bits, kept as sorted distinct window-relative
// indices. Bits are only ever set here; they leave the window when it slides
// and the oldest chunk is folded into the inactive MMR.
type ActiveWindow struct {
	Indices []uint32 `cbor:"1,keyasint"`
}

func NewActiveWindow() *ActiveWindow {
	return &ActiveWindow{}
}

func (w *ActiveWindow) GetBit(index uint32) bool {
	i := sort.Search(len(w.Indices), func(i int) bool { return w.Indices[i] >= index })

	return i < len(w.Indices) && w.Indices[i] == index
}

func (w *ActiveWindow) SetBit(index uint32) {
	i := sort.Search(len(w.Indices), func(i int) bool { return w.Indices[i] >= index })
	if i < len(w.Indices) && w.Indices[i] == index {
		return
	}

	w.Indices = append(w.Indices, 0)
	copy(w.Indices[i+1:], w.Indices[i:])
	w.Indices[i] = index
}

// SlidChunk returns the chunk that becomes inactive on the next slide: the
// lowest ChunkSize bits of the window.
func (w *ActiveWindow) SlidChunk() *Chunk {
	chunk := NewChunk()

	for _, index := range w.Indices {
		if index < ChunkSize {
			chunk.SetBit(index)
		}
	}

	return chunk
}

// SlideWindow drops the lowest chunk and shifts the rest down by ChunkSize.
func (w *ActiveWindow) SlideWindow() {
	kept := w.Indices[:0]

	for _, index := range w.Indices {
		if index >= ChunkSize {
			kept = append(kept, index-ChunkSize)
		}
	}

	w.Indices = kept
}

// SlideWindowBack undoes a slide by shifting up and restoring the chunk.
// The top chunk of the window must be empty, which holds whenever slides
// are undone in reverse order.
func (w *ActiveWindow) SlideWindowBack(chunk *Chunk) {
	for i := range w.Indices {
		w.Indices[i] += ChunkSize
	}

	for _, index := range chunk.Indices {
		w.SetBit(index)
	}
}

func (w *ActiveWindow) Clone() *ActiveWindow {
	indices := make([]uint32, len(w.Indices))
	copy(indices, w.Indices)

	return &ActiveWindow{Indices: indices}
}

// Digest commits to the window contents.
func (w *ActiveWindow) Digest() digest.Digest {
	buf := make([]byte, 4+4*len(w.Indices))
	binary.BigEndian.PutUint32(buf, uint32(len(w.Indices)))

	for i, index := range w.Indices {
		binary.BigEndian.PutUint32(buf[4+4*i:], index)
	}

	return digest.Hash(buf)
}
