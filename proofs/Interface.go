package proofs

import (
	"github.com/triton-chain/triton/model"
)

// Verifier checks validity proofs against the public statements derived
// from transactions and blocks. Implementations must be safe for
// concurrent use; block validation verifies transaction proofs in
// parallel.
type Verifier interface {
	// VerifyTransaction checks the transaction's proof against its public
	// statement. A nil error means the proof is valid.
	VerifyTransaction(tx *model.Transaction) error

	// VerifyBlock checks the block-level proof. Implementations that only
	// support per-transaction proofs may verify each transaction instead.
	VerifyBlock(block *model.Block) error
}
