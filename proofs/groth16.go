package proofs

import (
	"bytes"
	"math/big"
	"os"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"

	"github.com/triton-chain/triton/errors"
	"github.com/triton-chain/triton/model"
)

// proofCurve is the pairing curve the validity circuits are compiled over.
var proofCurve = ecc.BW6_761

// statementWitness is the public witness layout of the validity circuits.
// The sole public input is the statement digest; everything else the
// circuit works with is private to the prover.
type statementWitness struct {
	StatementHash frontend.Variable `gnark:",public"`
}

func (c *statementWitness) Define(api frontend.API) error {
	// the constraint system lives with the prover; verification only
	// needs the public witness layout
	return nil
}

// Groth16Verifier verifies Groth16 validity proofs against a trusted
// verifying key.
type Groth16Verifier struct {
	vk groth16.VerifyingKey
}

// NewGroth16Verifier wraps an already-loaded verifying key.
func NewGroth16Verifier(vk groth16.VerifyingKey) *Groth16Verifier {
	return &Groth16Verifier{vk: vk}
}

// NewGroth16VerifierFromFile loads the verifying key from disk.
func NewGroth16VerifierFromFile(path string) (*Groth16Verifier, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewConfigurationError("opening verifying key %s", path, err)
	}
	defer f.Close()

	vk := groth16.NewVerifyingKey(proofCurve)
	if _, err := vk.ReadFrom(f); err != nil {
		return nil, errors.NewConfigurationError("reading verifying key %s", path, err)
	}

	return &Groth16Verifier{vk: vk}, nil
}

func (v *Groth16Verifier) VerifyTransaction(tx *model.Transaction) error {
	return v.verify(tx.Proof, NewTransactionStatement(tx))
}

func (v *Groth16Verifier) VerifyBlock(block *model.Block) error {
	return v.verify(block.Proof, NewBlockStatement(block))
}

func (v *Groth16Verifier) verify(proofBytes []byte, statement Statement) error {
	if len(proofBytes) == 0 {
		return errors.NewProofInvalidError("missing proof")
	}

	proof := groth16.NewProof(proofCurve)
	if _, err := proof.ReadFrom(bytes.NewReader(proofBytes)); err != nil {
		return errors.NewProofInvalidError("decoding proof", err)
	}

	statementHash, err := statement.Hash()
	if err != nil {
		return err
	}

	assignment := &statementWitness{
		StatementHash: new(big.Int).SetBytes(statementHash[:]),
	}

	w, err := frontend.NewWitness(assignment, proofCurve.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return errors.NewProcessingError("building public witness", err)
	}

	if err := groth16.Verify(proof, v.vk, w); err != nil {
		return errors.NewProofInvalidError("proof does not verify", err)
	}

	return nil
}
