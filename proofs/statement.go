// Package proofs verifies the zero-knowledge validity proofs attached to
// transactions and blocks. The node never re-executes spending logic; a
// proof attests that the inputs are unspent members of the accumulator,
// that amounts balance and that the spending locks are satisfied, without
// revealing any of them. The only thing the node contributes is the public
// statement the proof must bind to.
package proofs

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/triton-chain/triton/digest"
	"github.com/triton-chain/triton/errors"
	"github.com/triton-chain/triton/model"
)

// Statement is the public input of a validity proof. Everything in it is
// visible on chain already; the proof binds to its digest.
type Statement struct {
	// RemovalIDs identify the inputs being consumed.
	RemovalIDs []digest.Digest `cbor:"1,keyasint"`

	// AdditionCommitments are the output commitments being created.
	AdditionCommitments []digest.Digest `cbor:"2,keyasint"`

	// Fee is the declared transaction fee, or the total fees for a block
	// statement.
	Fee uint64 `cbor:"3,keyasint"`

	// MutatorSetRoot is only set for block statements: the accumulator
	// root the block claims after applying its transactions.
	MutatorSetRoot digest.Digest `cbor:"4,keyasint"`
}

// NewTransactionStatement derives the public statement a transaction proof
// must attest to.
func NewTransactionStatement(tx *model.Transaction) Statement {
	commitments := make([]digest.Digest, len(tx.Outputs))
	for i, out := range tx.Outputs {
		commitments[i] = out.Commitment
	}

	return Statement{
		RemovalIDs:          tx.InputIDs(),
		AdditionCommitments: commitments,
		Fee:                 tx.Fee,
	}
}

// NewBlockStatement derives the public statement a block proof must attest
// to. It covers every record in the block plus the claimed accumulator root.
func NewBlockStatement(block *model.Block) Statement {
	removals := block.RemovalRecords()
	removalIDs := make([]digest.Digest, len(removals))

	for i, r := range removals {
		removalIDs[i] = r.ID()
	}

	additions := block.AdditionRecords()
	commitments := make([]digest.Digest, len(additions))

	for i, a := range additions {
		commitments[i] = a.Commitment
	}

	return Statement{
		RemovalIDs:          removalIDs,
		AdditionCommitments: commitments,
		Fee:                 block.TotalFees(),
		MutatorSetRoot:      block.Header.MutatorSetRoot,
	}
}

// Hash returns the digest the proof binds to.
func (s Statement) Hash() (digest.Digest, error) {
	b, err := encMode.Marshal(&s)
	if err != nil {
		return digest.Digest{}, errors.NewProcessingError("encoding statement", err)
	}

	return digest.Hash(b), nil
}

var encMode cbor.EncMode

func init() {
	var err error

	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
}
