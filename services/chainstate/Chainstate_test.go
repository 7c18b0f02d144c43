package chainstate

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/triton-chain/triton/digest"
	"github.com/triton-chain/triton/errors"
	"github.com/triton-chain/triton/model"
	"github.com/triton-chain/triton/mutatorset"
	"github.com/triton-chain/triton/proofs"
	"github.com/triton-chain/triton/settings"
	"github.com/triton-chain/triton/stores/archive"
	"github.com/triton-chain/triton/ulogger"
)

func newTestManager(t *testing.T, mutate ...func(*settings.Settings)) (*Manager, *archive.LevelDB) {
	t.Helper()

	tSettings := settings.NewRegtestSettings()
	for _, m := range mutate {
		m(tSettings)
	}

	store, err := archive.NewInMemory(ulogger.TestLogger{})
	require.NoError(t, err)

	manager, err := New(context.Background(), ulogger.TestLogger{}, tSettings, store, proofs.NewMockVerifier())
	require.NoError(t, err)

	t.Cleanup(func() {
		manager.Stop()
		_ = store.Close()
	})

	return manager, store
}

// mineChild builds and mines a valid child of parent. tsOffset shifts the
// timestamp so competing forks get distinct hashes.
func mineChild(t *testing.T, tSettings *settings.Settings, parent *model.BlockHeader, state *mutatorset.MutatorSet, tsOffset int64, txs ...*model.Transaction) (*model.Block, *mutatorset.MutatorSet) {
	t.Helper()

	params := tSettings.ChainCfgParams
	timestamp := parent.Timestamp + 1 + tsOffset

	difficulty := model.DifficultyControl(
		timestamp,
		parent.Timestamp,
		parent.Difficulty,
		params.TargetBlockInterval,
		parent.Height,
		params.MinimumDifficulty,
	)

	applied := state.Clone()

	for _, tx := range txs {
		for _, record := range tx.Inputs {
			require.NoError(t, applied.Remove(record))
		}

		for _, record := range tx.Outputs {
			applied.Add(record)
		}
	}

	block := &model.Block{
		Header: &model.BlockHeader{
			Version:        1,
			HashPrevBlock:  parent.Hash(),
			Height:         parent.Height + 1,
			Timestamp:      timestamp,
			Difficulty:     difficulty,
			MutatorSetRoot: applied.Root(),
			CumulativeWork: model.CalculateWork(parent.CumulativeWork, difficulty),
		},
		Transactions: txs,
	}

	require.NoError(t, proofs.MockProveBlock(block))

	seed := digest.Hash([]byte("chainstate mining seed"))

	for i := uint64(0); ; i++ {
		require.Less(t, i, uint64(10_000), "no valid nonce found")

		block.Header.Nonce = digest.HashUint64(seed, i)
		if block.Header.Valid() {
			break
		}
	}

	return block, applied
}

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

func TestGenesisSeeding(t *testing.T) {
	manager, store := newTestManager(t)

	params := settings.NewRegtestSettings().ChainCfgParams

	tip := manager.GetTip()
	assert.Equal(t, uint64(0), tip.Height)
	assert.Equal(t, params.GenesisHash, tip.Hash())
	assert.Equal(t, mutatorset.New().Root(), manager.GetAccumulatorRoot())

	assert.False(t, store.Empty())
	assert.Equal(t, uint64(0), store.Height())
}

func TestExtendCanonicalChain(t *testing.T) {
	manager, store := newTestManager(t)
	ctx := context.Background()

	tip := manager.GetTip()
	state := mutatorset.New()

	tx := mintTx(t, "coins", 5)

	block, applied := mineChild(t, manager.settings, tip, state, 0, tx)
	require.NoError(t, manager.ProcessBlock(ctx, block))

	newTip := manager.GetTip()
	assert.Equal(t, uint64(1), newTip.Height)
	assert.Equal(t, block.Hash(), newTip.Hash())
	assert.Equal(t, applied.Root(), manager.GetAccumulatorRoot())
	assert.Equal(t, uint64(1), store.Height())
}

func TestProcessBlockIdempotent(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	block, _ := mineChild(t, manager.settings, manager.GetTip(), mutatorset.New(), 0)
	require.NoError(t, manager.ProcessBlock(ctx, block))

	err := manager.ProcessBlock(ctx, block)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBlockExists))

	assert.Equal(t, block.Hash(), manager.GetTip().Hash())
}

func TestOrphanBlockRejected(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	unknown := &model.BlockHeader{
		Version:        1,
		HashPrevBlock:  digest.Hash([]byte("nowhere")),
		Height:         41,
		Timestamp:      1700000000,
		Difficulty:     manager.GetTip().Difficulty,
		CumulativeWork: manager.GetTip().CumulativeWork,
	}

	err := manager.ProcessBlock(ctx, &model.Block{Header: unknown})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrOrphanBlock))
}

func TestInvalidBlockRejected(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	block, _ := mineChild(t, manager.settings, manager.GetTip(), mutatorset.New(), 0)
	block.Header.MutatorSetRoot = digest.Hash([]byte("nonsense"))
	require.NoError(t, proofs.MockProveBlock(block))

	seed := digest.Hash([]byte("remine"))
	for i := uint64(0); !block.Header.Valid(); i++ {
		block.Header.Nonce = digest.HashUint64(seed, i)
	}

	err := manager.ProcessBlock(ctx, block)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrRootMismatch))
	assert.Equal(t, uint64(0), manager.GetTip().Height)
}

func TestEqualWorkTieBreaksOnSmallerHash(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	genesis := manager.GetTip()
	state := mutatorset.New()

	blockA, _ := mineChild(t, manager.settings, genesis, state, 0)
	blockB, _ := mineChild(t, manager.settings, genesis, state, 1)

	require.Equal(t, 0, blockA.Header.CumulativeWork.Cmp(blockB.Header.CumulativeWork))

	require.NoError(t, manager.ProcessBlock(ctx, blockA))
	require.NoError(t, manager.ProcessBlock(ctx, blockB))

	winner := blockA.Hash()
	if blockB.Hash().Compare(blockA.Hash()) < 0 {
		winner = blockB.Hash()
	}

	assert.Equal(t, winner, manager.GetTip().Hash(), "equal work resolves to the smaller hash")
}

func TestReorganization(t *testing.T) {
	manager, store := newTestManager(t)
	ctx := context.Background()

	genesis := manager.GetTip()
	genesisState := mutatorset.New()

	notifications := manager.Subscribe()

	// canonical chain: genesis -> a1 -> a2
	a1, a1State := mineChild(t, manager.settings, genesis, genesisState, 0, mintTx(t, "a1", 1))
	require.NoError(t, manager.ProcessBlock(ctx, a1))

	a2, _ := mineChild(t, manager.settings, a1.Header, a1State, 0, mintTx(t, "a2", 1))
	require.NoError(t, manager.ProcessBlock(ctx, a2))

	require.Equal(t, uint64(2), manager.GetTip().Height)

	// competing branch from genesis, one block longer
	b1, b1State := mineChild(t, manager.settings, genesis, genesisState, 5, mintTx(t, "b1", 1))
	b2, b2State := mineChild(t, manager.settings, b1.Header, b1State, 5, mintTx(t, "b2", 1))
	b3, b3State := mineChild(t, manager.settings, b2.Header, b2State, 5, mintTx(t, "b3", 1))

	require.NoError(t, manager.ProcessBlock(ctx, b1))

	// process the rest of the branch; by b3 it carries strictly more work
	require.NoError(t, manager.ProcessBlock(ctx, b2))
	require.NoError(t, manager.ProcessBlock(ctx, b3))

	tip := manager.GetTip()
	assert.Equal(t, b3.Hash(), tip.Hash())
	assert.Equal(t, uint64(3), tip.Height)
	assert.Equal(t, b3State.Root(), manager.GetAccumulatorRoot())

	// the archive now holds the new branch
	assert.Equal(t, uint64(3), store.Height())

	archived, err := store.GetBlockByHeight(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, b1.Hash(), archived.Hash())

	// the old branch blocks remain reachable by hash
	oldBlock, err := manager.GetBlock(ctx, a2.Hash())
	require.NoError(t, err)
	assert.Equal(t, a2.Hash(), oldBlock.Hash())

	// subscribers saw the accepted b3 last
	var last *model.Notification
	for len(notifications) > 0 {
		last = <-notifications
	}

	require.NotNil(t, last)
	assert.Equal(t, model.NotificationTypeBlockAccepted, last.Type)
	assert.Equal(t, b3.Hash(), last.Hash)
}

// stallVerifier blocks the first block proof verification until released,
// so a test can observe the manager while a block is mid-validation.
type stallVerifier struct {
	inner   proofs.Verifier
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (v *stallVerifier) VerifyTransaction(tx *model.Transaction) error {
	return v.inner.VerifyTransaction(tx)
}

func (v *stallVerifier) VerifyBlock(block *model.Block) error {
	v.once.Do(func() { close(v.entered) })
	<-v.release

	return v.inner.VerifyBlock(block)
}

func TestQueriesAnswerWhileProofsVerify(t *testing.T) {
	tSettings := settings.NewRegtestSettings()

	store, err := archive.NewInMemory(ulogger.TestLogger{})
	require.NoError(t, err)

	defer func() { _ = store.Close() }()

	verifier := &stallVerifier{
		inner:   proofs.NewMockVerifier(),
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}

	ctx := context.Background()

	manager, err := New(ctx, ulogger.TestLogger{}, tSettings, store, verifier)
	require.NoError(t, err)

	defer manager.Stop()

	block, _ := mineChild(t, tSettings, manager.GetTip(), mutatorset.New(), 0)

	processed := make(chan error, 1)

	go func() {
		processed <- manager.ProcessBlock(ctx, block)
	}()

	<-verifier.entered

	// the block's proofs are still verifying; reads must not be blocked
	assert.Equal(t, uint64(0), manager.GetTip().Height)
	assert.Equal(t, mutatorset.New().Root(), manager.GetAccumulatorRoot())

	close(verifier.release)
	require.NoError(t, <-processed)
	assert.Equal(t, uint64(1), manager.GetTip().Height)
}

func TestSideBlockWithoutProofOfWorkRejected(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	genesis := manager.GetTip()
	state := mutatorset.New()

	a1, _ := mineChild(t, manager.settings, genesis, state, 0)
	require.NoError(t, manager.ProcessBlock(ctx, a1))

	// competing block off genesis, re-nonced so it misses the target
	b1, _ := mineChild(t, manager.settings, genesis, state, 3)

	seed := digest.Hash([]byte("misses"))
	for i := uint64(0); b1.Header.Valid(); i++ {
		b1.Header.Nonce = digest.HashUint64(seed, i)
	}

	err := manager.ProcessBlock(ctx, b1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBlockInvalid))

	// nothing was stored for it
	_, err = manager.GetBlock(ctx, b1.Hash())
	require.Error(t, err)
	assert.Equal(t, a1.Hash(), manager.GetTip().Hash())
}

func TestDeepSideBlocksPruned(t *testing.T) {
	manager, _ := newTestManager(t, func(s *settings.Settings) {
		s.Block.MaxReorgDepth = 2
	})
	ctx := context.Background()

	genesis := manager.GetTip()
	genesisState := mutatorset.New()

	a1, a1State := mineChild(t, manager.settings, genesis, genesisState, 0)
	require.NoError(t, manager.ProcessBlock(ctx, a1))

	a2, a2State := mineChild(t, manager.settings, a1.Header, a1State, 0)
	require.NoError(t, manager.ProcessBlock(ctx, a2))

	// a losing fork block stays around while a reorganization onto its
	// branch is still possible
	b1, _ := mineChild(t, manager.settings, genesis, genesisState, 9)
	require.NoError(t, manager.ProcessBlock(ctx, b1))

	stored, err := manager.GetBlock(ctx, b1.Hash())
	require.NoError(t, err)
	require.Equal(t, b1.Hash(), stored.Hash())

	// extend the canonical chain until the fork point is beyond the
	// reorganization limit
	parent, state := a2.Header, a2State

	for i := 0; i < 3; i++ {
		var block *model.Block

		block, state = mineChild(t, manager.settings, parent, state, 0)
		require.NoError(t, manager.ProcessBlock(ctx, block))

		parent = block.Header
	}

	_, err = manager.GetBlock(ctx, b1.Hash())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrBlockNotFound))
}

func TestReorganizationReconcilesMempool(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	genesis := manager.GetTip()
	genesisState := mutatorset.New()

	// a1 mints the contested record; both branches build on it
	a1, a1State := mineChild(t, manager.settings, genesis, genesisState, 0, mintTx(t, "funds", 1))
	require.NoError(t, manager.ProcessBlock(ctx, a1))

	item := digest.Hash([]byte("funds"))
	randomness := digest.Hash([]byte("funds r"))

	proof, err := a1State.Prove(item, randomness, 0)
	require.NoError(t, err)

	record, err := a1State.DropRecord(item, proof)
	require.NoError(t, err)

	a2, _ := mineChild(t, manager.settings, a1.Header, a1State, 0, mintTx(t, "a2", 1))
	require.NoError(t, manager.ProcessBlock(ctx, a2))

	// pool a spend of the contested record and an unrelated mint
	doomed := &model.Transaction{
		Inputs: []*mutatorset.RemovalRecord{record.Clone()},
		Outputs: []mutatorset.AdditionRecord{
			mutatorset.NewAdditionRecord(digest.Hash([]byte("doomed")), digest.Hash([]byte("doomed r"))),
		},
		Fee:       3,
		Timestamp: 1700000000,
	}
	require.NoError(t, proofs.MockProveTransaction(doomed))
	require.NoError(t, manager.SubmitTransaction(doomed))

	survivor := mintTx(t, "survivor", 2)
	require.NoError(t, manager.SubmitTransaction(survivor))

	require.Equal(t, 2, manager.Mempool().Count())

	// the competing branch from a1 confirms a conflicting spend
	rival := &model.Transaction{
		Inputs: []*mutatorset.RemovalRecord{record.Clone()},
		Outputs: []mutatorset.AdditionRecord{
			mutatorset.NewAdditionRecord(digest.Hash([]byte("rival")), digest.Hash([]byte("rival r"))),
		},
		Fee:       5,
		Timestamp: 1700000000,
	}
	require.NoError(t, proofs.MockProveTransaction(rival))

	b2, b2State := mineChild(t, manager.settings, a1.Header, a1State, 5, rival)
	b3, b3State := mineChild(t, manager.settings, b2.Header, b2State, 5, mintTx(t, "b3", 1))

	require.NoError(t, manager.ProcessBlock(ctx, b2))
	require.NoError(t, manager.ProcessBlock(ctx, b3))

	require.Equal(t, b3.Hash(), manager.GetTip().Hash())
	require.Equal(t, b3State.Root(), manager.GetAccumulatorRoot())

	// the conflicting entry is gone, the unrelated one survived, and the
	// disconnected a2 transaction found its way back into the pool
	assert.False(t, manager.Mempool().Contains(doomed.TxID()))
	assert.True(t, manager.Mempool().Contains(survivor.TxID()))
	assert.True(t, manager.Mempool().Contains(a2.Transactions[0].TxID()))
}

func TestReorgTooDeep(t *testing.T) {
	manager, _ := newTestManager(t, func(s *settings.Settings) {
		s.Block.MaxReorgDepth = 1
	})
	ctx := context.Background()

	genesis := manager.GetTip()
	genesisState := mutatorset.New()

	// canonical chain three blocks deep
	parent := genesis
	state := genesisState

	for i := 0; i < 3; i++ {
		block, applied := mineChild(t, manager.settings, parent, state, 0)
		require.NoError(t, manager.ProcessBlock(ctx, block))

		parent = block.Header
		state = applied
	}

	// competing branch from genesis that would disconnect all three
	sideParent := genesis
	sideState := genesisState

	var err error

	for i := 0; i < 4; i++ {
		var block *model.Block

		block, sideState = mineChild(t, manager.settings, sideParent, sideState, 7)

		err = manager.ProcessBlock(ctx, block)
		sideParent = block.Header
	}

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrReorgTooDeep))
	assert.Equal(t, parent.Hash(), manager.GetTip().Hash(), "tip unchanged")
}

func TestTransactionLifecycle(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	tx := mintTx(t, "pooled", 5)
	require.NoError(t, manager.SubmitTransaction(tx))

	snapshot := manager.GetMempoolSnapshot()
	require.Len(t, snapshot, 1)
	assert.Equal(t, tx.TxID(), snapshot[0].TxID())

	// confirming the transaction removes it from the pool
	block, _ := mineChild(t, manager.settings, manager.GetTip(), mutatorset.New(), 0, tx)
	require.NoError(t, manager.ProcessBlock(ctx, block))

	assert.Empty(t, manager.GetMempoolSnapshot())
}

func TestRestoreFromArchive(t *testing.T) {
	tSettings := settings.NewRegtestSettings()

	store, err := archive.NewInMemory(ulogger.TestLogger{})
	require.NoError(t, err)

	defer func() { _ = store.Close() }()

	ctx := context.Background()

	first, err := New(ctx, ulogger.TestLogger{}, tSettings, store, proofs.NewMockVerifier())
	require.NoError(t, err)

	parent := first.GetTip()
	state := mutatorset.New()

	for i := 0; i < 3; i++ {
		block, applied := mineChild(t, tSettings, parent, state, 0, mintTx(t, "restore", uint64(i+1)))
		require.NoError(t, first.ProcessBlock(ctx, block))

		parent = block.Header
		state = applied
	}

	tipHash := first.GetTip().Hash()
	root := first.GetAccumulatorRoot()
	first.Stop()

	// a fresh manager over the same archive restores the same state
	second, err := New(ctx, ulogger.TestLogger{}, tSettings, store, proofs.NewMockVerifier())
	require.NoError(t, err)

	defer second.Stop()

	assert.Equal(t, tipHash, second.GetTip().Hash())
	assert.Equal(t, uint64(3), second.GetTip().Height)
	assert.Equal(t, root, second.GetAccumulatorRoot())
}

func TestArchivalBlockProofs(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	parent := manager.GetTip()
	state := mutatorset.New()

	for i := 0; i < 4; i++ {
		block, applied := mineChild(t, manager.settings, parent, state, 0)
		require.NoError(t, manager.ProcessBlock(ctx, block))

		parent = block.Header
		state = applied
	}

	root := manager.BlockHashRoot()
	assert.False(t, root.IsEmpty())

	proof, err := manager.ProveBlockHash(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), proof.LeafIndex)
}

func TestMembershipProofFromCanonicalState(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	item := digest.Hash([]byte("owned"))
	randomness := digest.Hash([]byte("owned randomness"))

	tx := &model.Transaction{
		Outputs:   []mutatorset.AdditionRecord{mutatorset.NewAdditionRecord(item, randomness)},
		Fee:       1,
		Timestamp: 1700000000,
	}
	require.NoError(t, proofs.MockProveTransaction(tx))

	block, _ := mineChild(t, manager.settings, manager.GetTip(), mutatorset.New(), 0, tx)
	require.NoError(t, manager.ProcessBlock(ctx, block))

	proof, err := manager.ProveMembership(item, randomness, 0)
	require.NoError(t, err)
	require.NotNil(t, proof)
}
