package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triton-chain/triton/digest"
	"github.com/triton-chain/triton/mutatorset"
)

func removalRecord(indices ...uint64) *mutatorset.RemovalRecord {
	return &mutatorset.RemovalRecord{
		AbsoluteIndices: indices,
		TargetChunks:    mutatorset.ChunkDictionary{},
	}
}

func testTransaction(seed string, input *mutatorset.RemovalRecord) *Transaction {
	return &Transaction{
		Inputs: []*mutatorset.RemovalRecord{input},
		Outputs: []mutatorset.AdditionRecord{
			mutatorset.NewAdditionRecord(digest.Hash([]byte(seed)), digest.Hash([]byte(seed+" randomness"))),
		},
		Fee:       10,
		Timestamp: 1700000000,
		Proof:     []byte(seed + " proof"),
	}
}

func TestTransactionBytesRoundTrip(t *testing.T) {
	tx := testTransaction("a", removalRecord(1, 2, 3))

	b, err := tx.Bytes()
	require.NoError(t, err)

	back, err := NewTransactionFromBytes(b)
	require.NoError(t, err)

	assert.Equal(t, tx.TxID(), back.TxID())
	assert.Equal(t, tx.Fee, back.Fee)
	assert.Equal(t, tx.Proof, back.Proof)

	reencoded, err := back.Bytes()
	require.NoError(t, err)
	assert.Equal(t, b, reencoded, "canonical encoding must be stable across a round trip")
}

func TestTransactionFromBytesRejectsGarbage(t *testing.T) {
	_, err := NewTransactionFromBytes([]byte{0xff, 0x00, 0x01})
	require.Error(t, err)
}

func TestTxIDIgnoresProof(t *testing.T) {
	a := testTransaction("a", removalRecord(1, 2, 3))
	b := testTransaction("a", removalRecord(1, 2, 3))
	b.Proof = []byte("a different proof of the same statement")

	assert.Equal(t, a.TxID(), b.TxID())

	b.Fee++
	assert.NotEqual(t, a.TxID(), b.TxID())
}

func TestConflictsWith(t *testing.T) {
	shared := removalRecord(7, 8, 9)

	a := testTransaction("a", shared)
	b := testTransaction("b", shared)
	c := testTransaction("c", removalRecord(10, 11, 12))

	assert.True(t, a.ConflictsWith(b), "same input removal record is a conflict")
	assert.True(t, b.ConflictsWith(a))
	assert.False(t, a.ConflictsWith(c))
}

func TestMerge(t *testing.T) {
	a := testTransaction("a", removalRecord(1, 2, 3))
	b := testTransaction("b", removalRecord(4, 5, 6))
	b.Fee = 25
	b.Timestamp = a.Timestamp + 100

	merged, err := Merge(a, b)
	require.NoError(t, err)

	assert.Len(t, merged.Inputs, 2)
	assert.Len(t, merged.Outputs, 2)
	assert.Equal(t, a.Fee+b.Fee, merged.Fee)
	assert.Equal(t, b.Timestamp, merged.Timestamp)
	assert.Equal(t, append(append([]byte{}, a.Proof...), b.Proof...), merged.Proof)
}

func TestMergeRejectsConflicting(t *testing.T) {
	shared := removalRecord(7, 8, 9)

	_, err := Merge(testTransaction("a", shared), testTransaction("b", shared))
	require.Error(t, err)
}

func TestFeePerByte(t *testing.T) {
	tx := testTransaction("a", removalRecord(1, 2, 3))

	size := tx.Size()
	require.NotZero(t, size)

	assert.InDelta(t, float64(tx.Fee)/float64(size), tx.FeePerByte(), 1e-12)
}

func TestBlockBytesRoundTrip(t *testing.T) {
	block := &Block{
		Header: testHeader(),
		Transactions: []*Transaction{
			testTransaction("a", removalRecord(1, 2, 3)),
			testTransaction("b", removalRecord(4, 5, 6)),
		},
		Proof: []byte("block proof"),
	}

	b, err := block.Bytes()
	require.NoError(t, err)

	back, err := NewBlockFromBytes(b)
	require.NoError(t, err)

	assert.Equal(t, block.Hash(), back.Hash())
	assert.Len(t, back.Transactions, 2)
	assert.Equal(t, block.Transactions[0].TxID(), back.Transactions[0].TxID())
	assert.Equal(t, block.Proof, back.Proof)
}

func TestBlockRecordOrder(t *testing.T) {
	txA := testTransaction("a", removalRecord(1, 2, 3))
	txB := testTransaction("b", removalRecord(4, 5, 6))

	block := &Block{Header: testHeader(), Transactions: []*Transaction{txA, txB}}

	removals := block.RemovalRecords()
	require.Len(t, removals, 2)
	assert.Equal(t, txA.Inputs[0].ID(), removals[0].ID())
	assert.Equal(t, txB.Inputs[0].ID(), removals[1].ID())

	additions := block.AdditionRecords()
	require.Len(t, additions, 2)
	assert.Equal(t, txA.Outputs[0], additions[0])
	assert.Equal(t, txB.Outputs[0], additions[1])

	assert.Equal(t, txA.Fee+txB.Fee, block.TotalFees())
	assert.Equal(t, 0, block.Work().Cmp(block.Header.Difficulty))
}
