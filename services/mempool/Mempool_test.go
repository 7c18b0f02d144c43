package mempool

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triton-chain/triton/digest"
	"github.com/triton-chain/triton/errors"
	"github.com/triton-chain/triton/model"
	"github.com/triton-chain/triton/mutatorset"
	"github.com/triton-chain/triton/proofs"
	"github.com/triton-chain/triton/settings"
	"github.com/triton-chain/triton/ulogger"
)

func newTestMempool(t *testing.T, mutate ...func(*settings.Settings)) *Mempool {
	t.Helper()

	tSettings := settings.NewRegtestSettings()
	for _, m := range mutate {
		m(tSettings)
	}

	return New(ulogger.TestLogger{}, tSettings, proofs.NewMockVerifier())
}

// mintTx creates a proven transaction with only outputs, so admission
// needs no live accumulator members.
func mintTx(t *testing.T, seed string, fee uint64) *model.Transaction {
	t.Helper()

	tx := &model.Transaction{
		Outputs: []mutatorset.AdditionRecord{
			mutatorset.NewAdditionRecord(digest.Hash([]byte(seed)), digest.Hash([]byte(seed+" r"))),
		},
		Fee:       fee,
		Timestamp: 1700000000,
	}

	require.NoError(t, proofs.MockProveTransaction(tx))

	return tx
}

// spendTx creates a proven transaction consuming the given record.
func spendTx(t *testing.T, seed string, fee uint64, record *mutatorset.RemovalRecord) *model.Transaction {
	t.Helper()

	tx := &model.Transaction{
		Inputs: []*mutatorset.RemovalRecord{record},
		Outputs: []mutatorset.AdditionRecord{
			mutatorset.NewAdditionRecord(digest.Hash([]byte(seed)), digest.Hash([]byte(seed+" r"))),
		},
		Fee:       fee,
		Timestamp: 1700000000,
	}

	require.NoError(t, proofs.MockProveTransaction(tx))

	return tx
}

// liveRecord adds an item to the accumulator and returns a removal record
// for it.
func liveRecord(t *testing.T, accumulator *mutatorset.MutatorSet, seed string) *mutatorset.RemovalRecord {
	t.Helper()

	item := digest.Hash([]byte(seed))
	randomness := digest.Hash([]byte(seed + " randomness"))

	index := accumulator.Add(mutatorset.NewAdditionRecord(item, randomness))

	proof, err := accumulator.Prove(item, randomness, index)
	require.NoError(t, err)

	record, err := accumulator.DropRecord(item, proof)
	require.NoError(t, err)

	return record
}

func TestInsertAndQuery(t *testing.T) {
	m := newTestMempool(t)
	accumulator := mutatorset.New()

	tx := mintTx(t, "a", 10)
	require.NoError(t, m.Insert(tx, accumulator))

	assert.True(t, m.Contains(tx.TxID()))
	assert.Equal(t, 1, m.Count())
	assert.Equal(t, tx.Size(), m.TotalBytes())
}

func TestInsertDuplicate(t *testing.T) {
	m := newTestMempool(t)
	accumulator := mutatorset.New()

	tx := mintTx(t, "a", 10)
	require.NoError(t, m.Insert(tx, accumulator))

	err := m.Insert(tx, accumulator)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTxExists))
	assert.Equal(t, 1, m.Count())
}

func TestInsertBadProofLeavesPoolUnchanged(t *testing.T) {
	m := newTestMempool(t)
	accumulator := mutatorset.New()

	require.NoError(t, m.Insert(mintTx(t, "a", 10), accumulator))

	bad := mintTx(t, "b", 10)
	bad.Proof = []byte("forged")

	err := m.Insert(bad, accumulator)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrProofInvalid))

	assert.Equal(t, 1, m.Count())
	assert.False(t, m.Contains(bad.TxID()))
}

func TestInsertBelowMinFeeRate(t *testing.T) {
	m := newTestMempool(t, func(s *settings.Settings) {
		s.Mempool.MinFeeRate = 1000
	})

	err := m.Insert(mintTx(t, "a", 1), mutatorset.New())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTxInvalid))
}

func TestInsertUnspendableInput(t *testing.T) {
	m := newTestMempool(t)
	accumulator := mutatorset.New()

	record := liveRecord(t, accumulator, "coin")
	require.NoError(t, accumulator.Remove(record))

	// the record was already consumed; spending it again is refused
	stale := spendTx(t, "a", 10, record)

	err := m.Insert(stale, accumulator)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidRemoval))
	assert.Equal(t, 0, m.Count())
}

func TestConflictReplacement(t *testing.T) {
	m := newTestMempool(t)
	accumulator := mutatorset.New()

	record := liveRecord(t, accumulator, "coin")

	first := spendTx(t, "a", 10, record)
	require.NoError(t, m.Insert(first, accumulator))

	// an equal fee rate does not displace the incumbent
	equal := spendTx(t, "b", 10, record.Clone())
	err := m.Insert(equal, accumulator)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTxConflict))
	assert.True(t, m.Contains(first.TxID()))

	// a strictly higher fee rate does
	better := spendTx(t, "c", 500, record.Clone())
	require.NoError(t, m.Insert(better, accumulator))

	assert.False(t, m.Contains(first.TxID()))
	assert.True(t, m.Contains(better.TxID()))
	assert.Equal(t, 1, m.Count())
}

func TestCapacityEviction(t *testing.T) {
	m := newTestMempool(t, func(s *settings.Settings) {
		s.Mempool.MaxTxs = 3
	})
	accumulator := mutatorset.New()

	cheap := mintTx(t, "ta", 10)
	mid := mintTx(t, "tb", 20)
	rich := mintTx(t, "tc", 30)

	require.NoError(t, m.Insert(cheap, accumulator))
	require.NoError(t, m.Insert(mid, accumulator))
	require.NoError(t, m.Insert(rich, accumulator))

	// richer newcomer displaces the cheapest entry
	richer := mintTx(t, "td", 40)
	require.NoError(t, m.Insert(richer, accumulator))

	assert.Equal(t, 3, m.Count())
	assert.False(t, m.Contains(cheap.TxID()))
	assert.True(t, m.Contains(richer.TxID()))

	// a newcomer cheaper than everything pooled is refused
	pauper := mintTx(t, "te", 1)
	err := m.Insert(pauper, accumulator)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMempoolFull))
	assert.Equal(t, 3, m.Count())
}

func TestInsertNilTransaction(t *testing.T) {
	m := newTestMempool(t)

	err := m.Insert(nil, mutatorset.New())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTxInvalid))
	assert.Equal(t, 0, m.Count())
}

func TestRejectedConflictKeepsIncumbent(t *testing.T) {
	accumulator := mutatorset.New()
	record := liveRecord(t, accumulator, "coin")

	pooled := spendTx(t, "a", 10, record)

	// a conflicting transaction paying a higher fee rate but too large to
	// ever fit; refusing it must not evict the entry it conflicts with
	huge := spendTx(t, "b", 1_000_000, record.Clone())
	for i := uint64(0); i < 64; i++ {
		huge.Outputs = append(huge.Outputs, mutatorset.NewAdditionRecord(
			digest.HashUint64(digest.Hash([]byte("pad")), i),
			digest.Hash([]byte("pad r")),
		))
	}
	require.NoError(t, proofs.MockProveTransaction(huge))

	m := newTestMempool(t, func(s *settings.Settings) {
		s.Mempool.MaxBytes = pooled.Size() + 32
	})

	require.NoError(t, m.Insert(pooled, accumulator))
	require.Greater(t, huge.Size(), m.settings.Mempool.MaxBytes)
	require.Greater(t, huge.FeePerByte(), pooled.FeePerByte())

	err := m.Insert(huge, accumulator)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMempoolFull))

	assert.Equal(t, 1, m.Count())
	assert.True(t, m.Contains(pooled.TxID()))
	assert.False(t, m.Contains(huge.TxID()))
	assert.Equal(t, pooled.Size(), m.TotalBytes())
}

func TestSnapshotOrdering(t *testing.T) {
	m := newTestMempool(t)
	accumulator := mutatorset.New()

	low := mintTx(t, "ta", 10)
	highFirst := mintTx(t, "tb", 90)
	highSecond := mintTx(t, "tc", 90)

	require.NoError(t, m.Insert(low, accumulator))
	require.NoError(t, m.Insert(highFirst, accumulator))
	require.NoError(t, m.Insert(highSecond, accumulator))

	// equal seed lengths give equal sizes, so equal fees tie exactly
	require.Equal(t, highFirst.Size(), highSecond.Size())

	snapshot := m.Snapshot()
	require.Len(t, snapshot, 3)

	assert.Equal(t, highFirst.TxID(), snapshot[0].TxID(), "ties break first-in first-out")
	assert.Equal(t, highSecond.TxID(), snapshot[1].TxID())
	assert.Equal(t, low.TxID(), snapshot[2].TxID())
}

func TestRemoveConfirmed(t *testing.T) {
	m := newTestMempool(t)
	accumulator := mutatorset.New()

	record := liveRecord(t, accumulator, "coin")

	confirmed := spendTx(t, "a", 10, record)
	unrelated := mintTx(t, "b", 10)

	require.NoError(t, m.Insert(confirmed, accumulator))
	require.NoError(t, m.Insert(unrelated, accumulator))

	block := &model.Block{
		Header: &model.BlockHeader{
			Difficulty:     big.NewInt(2),
			CumulativeWork: big.NewInt(4),
		},
		Transactions: []*model.Transaction{confirmed},
	}

	m.RemoveConfirmed(block)

	assert.False(t, m.Contains(confirmed.TxID()))
	assert.True(t, m.Contains(unrelated.TxID()))
	assert.Equal(t, unrelated.Size(), m.TotalBytes())
}

func TestRemoveConfirmedDropsConflicts(t *testing.T) {
	m := newTestMempool(t)
	accumulator := mutatorset.New()

	record := liveRecord(t, accumulator, "coin")

	pooled := spendTx(t, "a", 10, record)
	require.NoError(t, m.Insert(pooled, accumulator))

	// a different transaction consuming the same record gets confirmed
	confirmed := spendTx(t, "b", 20, record.Clone())
	block := &model.Block{
		Header: &model.BlockHeader{
			Difficulty:     big.NewInt(2),
			CumulativeWork: big.NewInt(4),
		},
		Transactions: []*model.Transaction{confirmed},
	}

	m.RemoveConfirmed(block)

	assert.False(t, m.Contains(pooled.TxID()))
	assert.Equal(t, 0, m.Count())
}

func TestRevalidate(t *testing.T) {
	m := newTestMempool(t)
	accumulator := mutatorset.New()

	record := liveRecord(t, accumulator, "coin")

	spend := spendTx(t, "a", 10, record)
	mint := mintTx(t, "b", 10)

	require.NoError(t, m.Insert(spend, accumulator))
	require.NoError(t, m.Insert(mint, accumulator))

	// the record gets consumed on chain; the spender is now invalid
	require.NoError(t, accumulator.Remove(record))

	m.Revalidate(accumulator)

	assert.False(t, m.Contains(spend.TxID()))
	assert.True(t, m.Contains(mint.TxID()))
}
