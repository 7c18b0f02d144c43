package mutatorset

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/triton-chain/triton/digest"
	"github.com/triton-chain/triton/errors"
	"github.com/triton-chain/triton/mmr"
)

// The snapshot encoding is canonical: deterministic CBOR with fixed integer
// keys. Storage keys and consensus digests are derived from encodings, so
// two nodes must serialize identical states to identical bytes.

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}

	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic(err)
	}
}

type snapshot struct {
	AOCLLeaves    []digest.Digest `cbor:"1,keyasint"`
	Chunks        []*Chunk        `cbor:"2,keyasint"`
	ActiveIndices []uint32        `cbor:"3,keyasint"`
}

// Bytes encodes the full set state. The inactive filter MMR is not encoded:
// its leaves are the chunk digests and it is rebuilt on decode.
func (ms *MutatorSet) Bytes() ([]byte, error) {
	snap := snapshot{
		AOCLLeaves:    ms.aocl.Leaves(),
		Chunks:        ms.chunks,
		ActiveIndices: ms.activeWindow.Indices,
	}

	b, err := encMode.Marshal(&snap)
	if err != nil {
		return nil, errors.NewProcessingError("encoding mutator set snapshot", err)
	}

	return b, nil
}

// NewFromBytes decodes a snapshot produced by Bytes.
func NewFromBytes(b []byte) (*MutatorSet, error) {
	var snap snapshot
	if err := decMode.Unmarshal(b, &snap); err != nil {
		return nil, errors.NewProcessingError("decoding mutator set snapshot", err)
	}

	swbfInactive := mmr.New()
	for _, chunk := range snap.Chunks {
		swbfInactive.AddLeaf(chunk.Digest())
	}

	ms := &MutatorSet{
		aocl:         mmr.NewFromLeaves(snap.AOCLLeaves),
		swbfInactive: swbfInactive,
		chunks:       snap.Chunks,
		activeWindow: &ActiveWindow{Indices: snap.ActiveIndices},
	}

	if ms.chunks == nil {
		ms.chunks = []*Chunk{}
	}

	if ms.activeWindow.Indices == nil {
		ms.activeWindow.Indices = []uint32{}
	}

	// a snapshot is internally consistent only if the chunk count matches
	// the number of window slides implied by the AOCL
	if uint64(len(ms.chunks)) != ms.batchIndex() {
		return nil, errors.NewCorruptStateError("snapshot has %d chunks, AOCL implies %d", len(ms.chunks), ms.batchIndex())
	}

	return ms, nil
}
