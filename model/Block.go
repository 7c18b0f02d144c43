package model

import (
	"math/big"

	"github.com/triton-chain/triton/digest"
	"github.com/triton-chain/triton/errors"
	"github.com/triton-chain/triton/mutatorset"
)

// Block is a header plus an ordered list of transactions and a block-level
// validity proof. Blocks are immutable once accepted and identified by their
// header hash.
type Block struct {
	Header       *BlockHeader
	Transactions []*Transaction
	Proof        []byte
}

// blockWire is the persisted form; the header travels as its canonical
// fixed-width bytes rather than a CBOR map.
type blockWire struct {
	Header       []byte         `cbor:"1,keyasint"`
	Transactions []*Transaction `cbor:"2,keyasint"`
	Proof        []byte         `cbor:"3,keyasint"`
}

func (b *Block) Hash() digest.Digest {
	return b.Header.Hash()
}

func (b *Block) Bytes() ([]byte, error) {
	wire := blockWire{
		Header:       b.Header.Bytes(),
		Transactions: b.Transactions,
		Proof:        b.Proof,
	}

	encoded, err := encMode.Marshal(&wire)
	if err != nil {
		return nil, errors.NewProcessingError("encoding block", err)
	}

	return encoded, nil
}

func NewBlockFromBytes(b []byte) (*Block, error) {
	var wire blockWire
	if err := decMode.Unmarshal(b, &wire); err != nil {
		return nil, errors.NewInvalidArgumentError("decoding block", err)
	}

	header, err := NewBlockHeaderFromBytes(wire.Header)
	if err != nil {
		return nil, err
	}

	return &Block{
		Header:       header,
		Transactions: wire.Transactions,
		Proof:        wire.Proof,
	}, nil
}

// AdditionRecords returns every output commitment in the block, in
// transaction order. The order is consensus-relevant: the accumulator
// transition applies them in exactly this sequence.
func (b *Block) AdditionRecords() []mutatorset.AdditionRecord {
	var records []mutatorset.AdditionRecord
	for _, tx := range b.Transactions {
		records = append(records, tx.Outputs...)
	}

	return records
}

// RemovalRecords returns every input removal record in the block, in
// transaction order.
func (b *Block) RemovalRecords() []*mutatorset.RemovalRecord {
	var records []*mutatorset.RemovalRecord
	for _, tx := range b.Transactions {
		records = append(records, tx.Inputs...)
	}

	return records
}

// TotalFees is the sum of all transaction fees in the block.
func (b *Block) TotalFees() uint64 {
	var total uint64
	for _, tx := range b.Transactions {
		total += tx.Fee
	}

	return total
}

// Work is the block's contribution to cumulative chain work. The expected
// number of hash guesses to find a block equals its difficulty.
func (b *Block) Work() *big.Int {
	return new(big.Int).Set(b.Header.Difficulty)
}
