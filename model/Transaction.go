package model

import (
	"github.com/fxamacker/cbor/v2"

	"github.com/triton-chain/triton/digest"
	"github.com/triton-chain/triton/errors"
	"github.com/triton-chain/triton/mutatorset"
)

// Transaction moves value by removing inputs from the mutator set and
// adding outputs to it. The validity proof attests that the inputs are
// genuine unspent members, that amounts balance (inputs >= outputs + fee)
// and that the spending locks are satisfied, without revealing amounts or
// which outputs are spent. The node never sees key material.
type Transaction struct {
	Inputs    []*mutatorset.RemovalRecord  `cbor:"1,keyasint"`
	Outputs   []mutatorset.AdditionRecord  `cbor:"2,keyasint"`
	Fee       uint64                       `cbor:"3,keyasint"`
	Timestamp int64                        `cbor:"4,keyasint"`
	Proof     []byte                       `cbor:"5,keyasint"`
}

// txIDPayload is the proof-independent part of a transaction. Two
// transactions with the same records, fee and timestamp are the same
// transaction even if proved differently.
type txIDPayload struct {
	InputIDs  []digest.Digest             `cbor:"1,keyasint"`
	Outputs   []mutatorset.AdditionRecord `cbor:"2,keyasint"`
	Fee       uint64                      `cbor:"3,keyasint"`
	Timestamp int64                       `cbor:"4,keyasint"`
}

// TxID identifies the transaction.
func (tx *Transaction) TxID() digest.Digest {
	payload := txIDPayload{
		InputIDs:  tx.InputIDs(),
		Outputs:   tx.Outputs,
		Fee:       tx.Fee,
		Timestamp: tx.Timestamp,
	}

	b, err := encMode.Marshal(&payload)
	if err != nil {
		// the payload contains no unencodable types
		panic(err)
	}

	return digest.Hash(b)
}

// InputIDs returns the conflict keys of all inputs, in input order.
func (tx *Transaction) InputIDs() []digest.Digest {
	ids := make([]digest.Digest, len(tx.Inputs))
	for i, input := range tx.Inputs {
		ids[i] = input.ID()
	}

	return ids
}

// Bytes returns the canonical encoding of the full transaction.
func (tx *Transaction) Bytes() ([]byte, error) {
	b, err := encMode.Marshal(tx)
	if err != nil {
		return nil, errors.NewProcessingError("encoding transaction", err)
	}

	return b, nil
}

func NewTransactionFromBytes(b []byte) (*Transaction, error) {
	tx := &Transaction{}
	if err := decMode.Unmarshal(b, tx); err != nil {
		return nil, errors.NewInvalidArgumentError("decoding transaction", err)
	}

	return tx, nil
}

// Size is the length of the canonical encoding in bytes. It is the
// resource unit for mempool accounting.
func (tx *Transaction) Size() uint64 {
	b, err := tx.Bytes()
	if err != nil {
		return 0
	}

	return uint64(len(b))
}

// FeePerByte is the mempool ordering metric.
func (tx *Transaction) FeePerByte() float64 {
	size := tx.Size()
	if size == 0 {
		return 0
	}

	return float64(tx.Fee) / float64(size)
}

// ConflictsWith reports whether the two transactions consume a common
// removal record.
func (tx *Transaction) ConflictsWith(other *Transaction) bool {
	ids := make(map[digest.Digest]struct{}, len(tx.Inputs))
	for _, id := range tx.InputIDs() {
		ids[id] = struct{}{}
	}

	for _, id := range other.InputIDs() {
		if _, ok := ids[id]; ok {
			return true
		}
	}

	return false
}

// Merge combines two non-conflicting transactions into one: inputs and
// outputs are concatenated, fees summed. The merged proof is the prover's
// concern; here the two proof blobs are combined so a recursive verifier
// can check both halves.
func Merge(a, b *Transaction) (*Transaction, error) {
	if a.ConflictsWith(b) {
		return nil, errors.NewTxConflictError("cannot merge transactions sharing a removal record")
	}

	inputs := make([]*mutatorset.RemovalRecord, 0, len(a.Inputs)+len(b.Inputs))
	inputs = append(inputs, a.Inputs...)
	inputs = append(inputs, b.Inputs...)

	outputs := make([]mutatorset.AdditionRecord, 0, len(a.Outputs)+len(b.Outputs))
	outputs = append(outputs, a.Outputs...)
	outputs = append(outputs, b.Outputs...)

	timestamp := a.Timestamp
	if b.Timestamp > timestamp {
		timestamp = b.Timestamp
	}

	merged := &Transaction{
		Inputs:    inputs,
		Outputs:   outputs,
		Fee:       a.Fee + b.Fee,
		Timestamp: timestamp,
	}

	proof := make([]byte, 0, len(a.Proof)+len(b.Proof))
	proof = append(proof, a.Proof...)
	proof = append(proof, b.Proof...)
	merged.Proof = proof

	return merged, nil
}

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
