package model

import (
	"encoding/binary"
	"math/big"

	"github.com/triton-chain/triton/digest"
	"github.com/triton-chain/triton/errors"
)

// headerBytesLen is the length of the canonical header encoding: version
// (4), predecessor hash (32), height (8), timestamp (8), difficulty (32),
// nonce (32), mutator set root (32), cumulative work (32).
const headerBytesLen = 180

// maxTarget is the largest possible proof-of-work target, 2^256 - 1.
var maxTarget = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

type BlockHeader struct {
	// Version of the block format.
	Version uint32

	// Hash of the predecessor block's header.
	HashPrevBlock digest.Digest

	// Height is the number of blocks between this block and genesis.
	Height uint64

	// Timestamp the block was created, unix seconds.
	Timestamp int64

	// Difficulty is the expected number of nonce guesses needed to find
	// this block. The proof-of-work target is derived from it.
	Difficulty *big.Int

	// Nonce is the proof-of-work witness.
	Nonce digest.Digest

	// MutatorSetRoot commits to the accumulator state after applying
	// every transaction in this block.
	MutatorSetRoot digest.Digest

	// CumulativeWork is the total work from genesis up to and including
	// this block.
	CumulativeWork *big.Int
}

// Bytes returns the canonical fixed-width encoding. Header hashes, and
// therefore block identity and proof-of-work, are computed over it.
func (bh *BlockHeader) Bytes() []byte {
	b := make([]byte, 0, headerBytesLen)

	var scratch [8]byte

	binary.BigEndian.PutUint32(scratch[:4], bh.Version)
	b = append(b, scratch[:4]...)
	b = append(b, bh.HashPrevBlock[:]...)

	binary.BigEndian.PutUint64(scratch[:], bh.Height)
	b = append(b, scratch[:]...)

	binary.BigEndian.PutUint64(scratch[:], uint64(bh.Timestamp))
	b = append(b, scratch[:]...)

	b = append(b, bigIntBytes(bh.Difficulty)...)
	b = append(b, bh.Nonce[:]...)
	b = append(b, bh.MutatorSetRoot[:]...)
	b = append(b, bigIntBytes(bh.CumulativeWork)...)

	return b
}

func NewBlockHeaderFromBytes(headerBytes []byte) (*BlockHeader, error) {
	if len(headerBytes) != headerBytesLen {
		return nil, errors.NewInvalidArgumentError("block header should be %d bytes long, got %d", headerBytesLen, len(headerBytes))
	}

	hashPrevBlock, err := digest.FromBytes(headerBytes[4:36])
	if err != nil {
		return nil, errors.NewInvalidArgumentError("reading predecessor hash", err)
	}

	nonce, err := digest.FromBytes(headerBytes[84:116])
	if err != nil {
		return nil, errors.NewInvalidArgumentError("reading nonce", err)
	}

	mutatorSetRoot, err := digest.FromBytes(headerBytes[116:148])
	if err != nil {
		return nil, errors.NewInvalidArgumentError("reading mutator set root", err)
	}

	return &BlockHeader{
		Version:        binary.BigEndian.Uint32(headerBytes[:4]),
		HashPrevBlock:  hashPrevBlock,
		Height:         binary.BigEndian.Uint64(headerBytes[36:44]),
		Timestamp:      int64(binary.BigEndian.Uint64(headerBytes[44:52])),
		Difficulty:     new(big.Int).SetBytes(headerBytes[52:84]),
		Nonce:          nonce,
		MutatorSetRoot: mutatorSetRoot,
		CumulativeWork: new(big.Int).SetBytes(headerBytes[148:180]),
	}, nil
}

func (bh *BlockHeader) Hash() digest.Digest {
	return digest.Hash(bh.Bytes())
}

// Target converts the difficulty into the threshold a header hash must stay
// below to have proof-of-work.
func (bh *BlockHeader) Target() *big.Int {
	if bh.Difficulty == nil || bh.Difficulty.Sign() <= 0 {
		return new(big.Int).Set(maxTarget)
	}

	return new(big.Int).Div(maxTarget, bh.Difficulty)
}

// Valid reports whether the header hash satisfies its own difficulty
// target.
func (bh *BlockHeader) Valid() bool {
	hash := bh.Hash()

	return new(big.Int).SetBytes(hash[:]).Cmp(bh.Target()) <= 0
}

func (bh *BlockHeader) Clone() *BlockHeader {
	clone := *bh
	clone.Difficulty = new(big.Int).Set(bh.Difficulty)
	clone.CumulativeWork = new(big.Int).Set(bh.CumulativeWork)

	return &clone
}

// bigIntBytes encodes a non-negative big integer as 32 bytes big-endian.
func bigIntBytes(v *big.Int) []byte {
	out := make([]byte, 32)
	if v == nil {
		return out
	}

	v.FillBytes(out)

	return out
}
