package proofs

import (
	"bytes"

	"github.com/triton-chain/triton/errors"
	"github.com/triton-chain/triton/model"
)

// MockVerifier accepts a proof iff it equals the statement digest. It keeps
// the bind-to-statement property of the real verifier (a proof for one
// statement never verifies against another) without any cryptography, so
// tests and regtest nodes can mint valid proofs with MockProve*.
type MockVerifier struct{}

func NewMockVerifier() *MockVerifier {
	return &MockVerifier{}
}

func (v *MockVerifier) VerifyTransaction(tx *model.Transaction) error {
	return v.verify(tx.Proof, NewTransactionStatement(tx))
}

func (v *MockVerifier) VerifyBlock(block *model.Block) error {
	return v.verify(block.Proof, NewBlockStatement(block))
}

func (v *MockVerifier) verify(proofBytes []byte, statement Statement) error {
	if len(proofBytes) == 0 {
		return errors.NewProofInvalidError("missing proof")
	}

	statementHash, err := statement.Hash()
	if err != nil {
		return err
	}

	if !bytes.Equal(proofBytes, statementHash[:]) {
		return errors.NewProofInvalidError("proof does not match statement")
	}

	return nil
}

// MockProveTransaction attaches a proof MockVerifier will accept.
func MockProveTransaction(tx *model.Transaction) error {
	statementHash, err := NewTransactionStatement(tx).Hash()
	if err != nil {
		return err
	}

	tx.Proof = statementHash[:]

	return nil
}

// MockProveBlock attaches a block proof MockVerifier will accept. The
// header must already carry its final mutator set root; the statement
// binds to it.
func MockProveBlock(block *model.Block) error {
	statementHash, err := NewBlockStatement(block).Hash()
	if err != nil {
		return err
	}

	block.Proof = statementHash[:]

	return nil
}
