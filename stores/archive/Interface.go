// Package archive persists the canonical chain: every accepted block, a
// height index, an append-only MMR over block hashes for archival
// inclusion proofs, and a mutator set snapshot per height so chain
// reorganizations can restore any recent state without replaying from
// genesis.
package archive

import (
	"context"

	"github.com/triton-chain/triton/digest"
	"github.com/triton-chain/triton/mmr"
	"github.com/triton-chain/triton/model"
)

type Store interface {
	// Height returns the height of the newest archived block. Check
	// Empty first; an empty archive has no height.
	Height() uint64

	// Empty reports whether the archive holds no blocks at all.
	Empty() bool

	// AppendBlock archives a block at the next height together with the
	// mutator set snapshot taken after applying it. The write is atomic:
	// either every index is updated or none is.
	AppendBlock(ctx context.Context, block *model.Block, accumulatorSnapshot []byte) error

	// GetBlockByHeight returns the archived block at the given height.
	GetBlockByHeight(ctx context.Context, height uint64) (*model.Block, error)

	// GetBlockByHash returns the archived block with the given header
	// hash.
	GetBlockByHash(ctx context.Context, hash digest.Digest) (*model.Block, error)

	// GetHeightByHash resolves a block hash to its canonical height.
	GetHeightByHash(ctx context.Context, hash digest.Digest) (uint64, error)

	// GetAccumulatorSnapshot returns the mutator set snapshot taken after
	// the block at the given height was applied.
	GetAccumulatorSnapshot(ctx context.Context, height uint64) ([]byte, error)

	// BlockHashRoot returns the root of the MMR over all archived block
	// hashes.
	BlockHashRoot() digest.Digest

	// ProveBlockHash returns an inclusion proof for the block hash at the
	// given height against the current BlockHashRoot.
	ProveBlockHash(ctx context.Context, height uint64) (*mmr.MembershipProof, error)

	// RollbackTo discards every block above the given height. Used when a
	// reorganization disconnects part of the canonical chain.
	RollbackTo(ctx context.Context, height uint64) error

	// Close releases the underlying database.
	Close() error
}
