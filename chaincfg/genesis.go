package chaincfg

import (
	"math/big"

	"github.com/triton-chain/triton/digest"
	"github.com/triton-chain/triton/model"
	"github.com/triton-chain/triton/mutatorset"
)

// emptyMutatorSetRoot is the root of an accumulator with no members. Every
// chain starts from it.
var emptyMutatorSetRoot = mutatorset.New().Root()

// newGenesisBlock builds the first block of a chain. The genesis block has
// no predecessor, no transactions and carries no proof of work; validators
// treat it as valid by definition. Its cumulative work equals its own
// difficulty so the work arithmetic is uniform from the first real block on.
func newGenesisBlock(timestamp int64, difficulty *big.Int) model.Block {
	return model.Block{
		Header: &model.BlockHeader{
			Version:        1,
			HashPrevBlock:  digest.Digest{},
			Height:         0,
			Timestamp:      timestamp,
			Difficulty:     new(big.Int).Set(difficulty),
			Nonce:          digest.Digest{},
			MutatorSetRoot: emptyMutatorSetRoot,
			CumulativeWork: new(big.Int).Set(difficulty),
		},
	}
}

// genesisBlock defines the genesis block of the block chain which serves as
// the public ledger for the main network.
var genesisBlock = newGenesisBlock(1719792000, new(big.Int).Lsh(bigOne, 20))

// testNetGenesisBlock defines the genesis block for the test network.
var testNetGenesisBlock = newGenesisBlock(1719792001, new(big.Int).Lsh(bigOne, 10))

// regTestGenesisBlock defines the genesis block for the regression test
// network.
var regTestGenesisBlock = newGenesisBlock(1719792002, big.NewInt(2))
