// Package chainstate owns the canonical chain: the current tip, the
// accumulator state after it, the archive of everything behind it and the
// side blocks that might yet overtake it. All consensus decisions funnel
// through ProcessBlock; fork choice is heaviest cumulative work with the
// lexicographically smaller block hash breaking exact ties.
package chainstate

import (
	"context"
	"time"

	"github.com/triton-chain/triton/digest"
	"github.com/triton-chain/triton/errors"
	"github.com/triton-chain/triton/mmr"
	"github.com/triton-chain/triton/model"
	"github.com/triton-chain/triton/mutatorset"
	"github.com/triton-chain/triton/proofs"
	"github.com/triton-chain/triton/services/blockvalidation"
	"github.com/triton-chain/triton/services/mempool"
	"github.com/triton-chain/triton/settings"
	"github.com/triton-chain/triton/stores/archive"
	"github.com/triton-chain/triton/ulogger"
	"github.com/triton-chain/triton/util/locker"
)

type Manager struct {
	logger    ulogger.Logger
	settings  *settings.Settings
	archive   archive.Store
	validator *blockvalidation.BlockValidation
	mempool   *mempool.Mempool

	mu *locker.Locker

	// accumulator is the mutator set after applying every canonical block
	// up to the tip.
	accumulator *mutatorset.MutatorSet
	tip         *model.BlockHeader
	tipHash     digest.Digest

	// headers indexes every known header, canonical and side, by hash.
	headers map[digest.Digest]*model.BlockHeader

	// canonical maps the hash of every canonical block to its height.
	canonical map[digest.Digest]uint64

	// sideBlocks holds full blocks off the canonical chain, kept in case
	// their branch becomes the heaviest.
	sideBlocks map[digest.Digest]*model.Block

	subscribers []chan *model.Notification
}

// New builds the manager on top of an archive. An empty archive is seeded
// with the genesis block; a populated one has its tip state restored from
// the newest snapshot.
func New(ctx context.Context, logger ulogger.Logger, tSettings *settings.Settings, store archive.Store, verifier proofs.Verifier) (*Manager, error) {
	initPrometheusMetrics()

	lockOpts := []locker.Option{locker.WithLogger(logger)}
	if tSettings.Lock.DiagnosticsEnabled {
		lockOpts = append(lockOpts, locker.WithDiagnostics(tSettings.Lock.SlowHoldThreshold))
	}

	m := &Manager{
		logger:     logger,
		settings:   tSettings,
		archive:    store,
		validator:  blockvalidation.New(logger, tSettings, verifier),
		mempool:    mempool.New(logger, tSettings, verifier),
		mu:         locker.New("chainstate", lockOpts...),
		headers:    make(map[digest.Digest]*model.BlockHeader),
		canonical:  make(map[digest.Digest]uint64),
		sideBlocks: make(map[digest.Digest]*model.Block),
	}

	if store.Empty() {
		if err := m.seedGenesis(ctx); err != nil {
			return nil, err
		}
	} else if err := m.restore(ctx); err != nil {
		return nil, err
	}

	m.validator.Start()

	prometheusChainstateTipHeight.Set(float64(m.tip.Height))

	return m, nil
}

func (m *Manager) seedGenesis(ctx context.Context) error {
	genesis := m.settings.ChainCfgParams.GenesisBlock
	accumulator := mutatorset.New()

	snapshot, err := accumulator.Bytes()
	if err != nil {
		return err
	}

	if err := m.archive.AppendBlock(ctx, genesis, snapshot); err != nil {
		return err
	}

	m.accumulator = accumulator
	m.tip = genesis.Header
	m.tipHash = genesis.Header.Hash()
	m.headers[m.tipHash] = genesis.Header
	m.canonical[m.tipHash] = 0

	m.logger.Infof("[chainstate] seeded %s genesis %s", m.settings.ChainCfgParams.Name, m.tipHash)

	return nil
}

func (m *Manager) restore(ctx context.Context) error {
	tipHeight := m.archive.Height()

	for height := uint64(0); height <= tipHeight; height++ {
		block, err := m.archive.GetBlockByHeight(ctx, height)
		if err != nil {
			return errors.NewCorruptStateError("archive missing canonical block at height %d", height, err)
		}

		hash := block.Hash()
		m.headers[hash] = block.Header
		m.canonical[hash] = height

		if height == tipHeight {
			m.tip = block.Header
			m.tipHash = hash
		}
	}

	snapshot, err := m.archive.GetAccumulatorSnapshot(ctx, tipHeight)
	if err != nil {
		return errors.NewCorruptStateError("archive missing tip snapshot at height %d", tipHeight, err)
	}

	m.accumulator, err = mutatorset.NewFromBytes(snapshot)
	if err != nil {
		return errors.NewCorruptStateError("tip snapshot unreadable", err)
	}

	m.logger.Infof("[chainstate] restored tip %s at height %d", m.tipHash, tipHeight)

	return nil
}

// Stop shuts down the background loops.
func (m *Manager) Stop() {
	m.validator.Stop()
}

// ProcessBlock accepts a block from any source and decides its fate:
// extend the canonical chain, sit on a side chain, trigger a
// reorganization, or be rejected. Processing the same block twice returns
// ErrBlockExists and changes nothing.
//
// Proof verification runs against a snapshot of the tip state with no
// lock held, so queries stay live while proofs verify. The writer lock is
// only taken to commit; a commit whose snapshot went stale because
// another block moved the tip is abandoned and the block reprocessed.
func (m *Manager) ProcessBlock(ctx context.Context, block *model.Block) error {
	start := time.Now()
	defer func() {
		prometheusChainstateProcessBlock.Observe(time.Since(start).Seconds())
	}()

	if block == nil || block.Header == nil {
		return errors.NewBlockInvalidError("block has no header")
	}

	hash := block.Hash()

	for {
		done, err := m.processBlockOnce(ctx, block, hash)
		if done {
			return err
		}
	}
}

func (m *Manager) processBlockOnce(ctx context.Context, block *model.Block, hash digest.Digest) (bool, error) {
	guard := m.mu.RLock()

	if _, ok := m.headers[hash]; ok {
		guard.Unlock()
		prometheusChainstateBlocks.WithLabelValues("duplicate").Inc()

		return true, errors.NewBlockExistsError("block %s already processed", hash)
	}

	parentHash := block.Header.HashPrevBlock

	parent, known := m.headers[parentHash]
	if !known {
		guard.Unlock()
		prometheusChainstateBlocks.WithLabelValues("orphan").Inc()

		return true, errors.NewOrphanBlockError("predecessor %s of block %s is unknown", parentHash, hash)
	}

	tip := m.tip
	tipHash := m.tipHash
	accumulator := m.accumulator
	guard.Unlock()

	if parentHash != tipHash {
		return m.processSideBlock(ctx, block, hash, parent)
	}

	return m.extendCanonical(ctx, block, hash, tip, tipHash, accumulator)
}

// extendCanonical validates the block against the snapshotted tip state,
// proofs included, with no lock held, then takes the writer lock to
// commit. The canonical accumulator is only swapped after the archive
// append succeeds, so a storage failure leaves the old state fully
// intact.
func (m *Manager) extendCanonical(ctx context.Context, block *model.Block, hash digest.Digest, tip *model.BlockHeader, tipHash digest.Digest, accumulator *mutatorset.MutatorSet) (bool, error) {
	applied, err := m.validator.ValidateBlock(ctx, block, tip, accumulator)
	if err != nil {
		prometheusChainstateBlocks.WithLabelValues("rejected").Inc()

		return true, err
	}

	snapshot, err := applied.Bytes()
	if err != nil {
		return true, err
	}

	guard := m.mu.Lock()
	defer guard.Unlock()

	if m.tipHash != tipHash {
		// another block moved the tip while proofs were verifying;
		// reprocess against the new state
		return false, nil
	}

	if err := m.archive.AppendBlock(ctx, block, snapshot); err != nil {
		return true, err
	}

	m.accumulator = applied
	m.tip = block.Header
	m.tipHash = hash
	m.headers[hash] = block.Header
	m.canonical[hash] = block.Header.Height

	m.pruneSideBlocks()
	m.mempool.RemoveConfirmed(block)
	m.notify(model.NotificationTypeBlockAccepted, block)

	prometheusChainstateBlocks.WithLabelValues("extended").Inc()
	prometheusChainstateTipHeight.Set(float64(block.Header.Height))

	m.logger.Infof("[chainstate] new tip %s at height %d, work %v", hash, block.Header.Height, block.Header.CumulativeWork)

	return true, nil
}

// processSideBlock stores a block off the current tip and switches chains
// if its branch now wins fork choice.
func (m *Manager) processSideBlock(ctx context.Context, block *model.Block, hash digest.Digest, parent *model.BlockHeader) (bool, error) {
	// sanity and proof of work before holding on to it; full validation
	// happens if the branch ever competes
	if block.Header.Height != parent.Height+1 {
		prometheusChainstateBlocks.WithLabelValues("rejected").Inc()

		return true, errors.NewBlockInvalidError("height %d does not follow parent height %d", block.Header.Height, parent.Height)
	}

	if !block.Header.Valid() {
		prometheusChainstateBlocks.WithLabelValues("rejected").Inc()

		return true, errors.NewBlockInvalidError("side block %s fails its proof of work", hash)
	}

	guard := m.mu.Lock()
	defer guard.Unlock()

	if _, ok := m.headers[hash]; ok {
		prometheusChainstateBlocks.WithLabelValues("duplicate").Inc()

		return true, errors.NewBlockExistsError("block %s already processed", hash)
	}

	if block.Header.HashPrevBlock == m.tipHash {
		// the tip moved onto this block's parent meanwhile; it extends
		// the chain now, reprocess
		return false, nil
	}

	m.headers[hash] = block.Header
	m.sideBlocks[hash] = block
	m.pruneSideBlocks()
	prometheusChainstateSideBlocks.Set(float64(len(m.sideBlocks)))

	if !m.winsForkChoice(block.Header, hash) {
		prometheusChainstateBlocks.WithLabelValues("side").Inc()

		m.logger.Infof("[chainstate] stored side block %s at height %d, work %v", hash, block.Header.Height, block.Header.CumulativeWork)

		return true, nil
	}

	return true, m.reorganize(ctx, block.Header, hash)
}

// pruneSideBlocks discards side blocks too far below the tip to ever win
// fork choice; reorganizing onto them or their descendants would exceed
// the depth limit. Callers hold the write lock.
func (m *Manager) pruneSideBlocks() {
	limit := m.settings.MaxReorgDepth()
	if limit == 0 || m.tip.Height <= limit {
		return
	}

	horizon := m.tip.Height - limit

	for {
		var doomed digest.Digest

		found := false

		for hash, block := range m.sideBlocks {
			if block.Header.Height < horizon {
				doomed = hash
				found = true

				break
			}
		}

		if !found {
			return
		}

		m.pruneBranch(doomed)
	}
}

// winsForkChoice reports whether the candidate tip beats the current one:
// strictly more cumulative work, or equal work and the smaller hash.
func (m *Manager) winsForkChoice(candidate *model.BlockHeader, candidateHash digest.Digest) bool {
	if candidate.CumulativeWork == nil {
		return false
	}

	switch candidate.CumulativeWork.Cmp(m.tip.CumulativeWork) {
	case 1:
		return true
	case 0:
		return candidateHash.Compare(m.tipHash) < 0
	default:
		return false
	}
}

// notify fans a block event out to all subscribers without ever blocking
// block processing.
func (m *Manager) notify(notificationType model.NotificationType, block *model.Block) {
	if len(m.subscribers) == 0 {
		return
	}

	notification := &model.Notification{
		Type:            notificationType,
		Hash:            block.Hash(),
		Height:          block.Header.Height,
		AdditionRecords: block.AdditionRecords(),
		RemovalRecords:  block.RemovalRecords(),
	}

	for _, ch := range m.subscribers {
		select {
		case ch <- notification:
		default:
			m.logger.Warnf("[chainstate] dropping %s notification for slow subscriber", notificationType)
		}
	}
}

// Subscribe returns a channel receiving a notification for every block
// connected to or disconnected from the canonical chain. Slow receivers
// lose notifications rather than stalling consensus.
func (m *Manager) Subscribe() <-chan *model.Notification {
	guard := m.mu.Lock()
	defer guard.Unlock()

	ch := make(chan *model.Notification, 128)
	m.subscribers = append(m.subscribers, ch)

	return ch
}

// GetTip returns a copy of the canonical tip header.
func (m *Manager) GetTip() *model.BlockHeader {
	guard := m.mu.RLock()
	defer guard.Unlock()

	return m.tip.Clone()
}

// GetAccumulatorRoot returns the root of the canonical mutator set.
func (m *Manager) GetAccumulatorRoot() digest.Digest {
	guard := m.mu.RLock()
	defer guard.Unlock()

	return m.accumulator.Root()
}

// GetBlock returns a block by hash, canonical or side.
func (m *Manager) GetBlock(ctx context.Context, hash digest.Digest) (*model.Block, error) {
	guard := m.mu.RLock()

	if block, ok := m.sideBlocks[hash]; ok {
		guard.Unlock()

		return block, nil
	}

	guard.Unlock()

	return m.archive.GetBlockByHash(ctx, hash)
}

// GetBlockByHeight returns the canonical block at the given height.
func (m *Manager) GetBlockByHeight(ctx context.Context, height uint64) (*model.Block, error) {
	return m.archive.GetBlockByHeight(ctx, height)
}

// ProveMembership builds a membership proof for an item against the
// canonical accumulator. The caller supplies the item's randomness and its
// position in the append-only commitment list.
func (m *Manager) ProveMembership(item, randomness digest.Digest, aoclIndex uint64) (*mutatorset.MembershipProof, error) {
	guard := m.mu.RLock()
	defer guard.Unlock()

	return m.accumulator.Prove(item, randomness, aoclIndex)
}

// ProveBlockHash returns an archival inclusion proof for the block at the
// given canonical height.
func (m *Manager) ProveBlockHash(ctx context.Context, height uint64) (*mmr.MembershipProof, error) {
	return m.archive.ProveBlockHash(ctx, height)
}

// BlockHashRoot returns the root of the archival block hash accumulator.
func (m *Manager) BlockHashRoot() digest.Digest {
	return m.archive.BlockHashRoot()
}

// SubmitTransaction admits a transaction to the mempool against the
// current canonical state.
func (m *Manager) SubmitTransaction(tx *model.Transaction) error {
	guard := m.mu.RLock()
	accumulator := m.accumulator
	guard.Unlock()

	return m.mempool.Insert(tx, accumulator)
}

// GetMempoolSnapshot returns the pooled transactions in block building
// order.
func (m *Manager) GetMempoolSnapshot() []*model.Transaction {
	return m.mempool.Snapshot()
}

// Mempool exposes the pool for diagnostics.
func (m *Manager) Mempool() *mempool.Mempool {
	return m.mempool
}

// LockStats exposes the chain state lock counters for diagnostics.
func (m *Manager) LockStats() locker.Stats {
	return m.mu.Stats()
}
