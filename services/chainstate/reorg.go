package chainstate

import (
	"context"

	"github.com/triton-chain/triton/digest"
	"github.com/triton-chain/triton/errors"
	"github.com/triton-chain/triton/model"
	"github.com/triton-chain/triton/mutatorset"
)

// reorganize switches the canonical chain to the branch ending at newTip.
// The branch is fully validated against a state reconstructed from the
// fork point snapshot before anything canonical is touched; a branch that
// fails validation is discarded and the current chain stays as it is.
// Once validated, the archive rewrite must succeed; a failure halfway
// through leaves the node with corrupt state and is reported as such.
func (m *Manager) reorganize(ctx context.Context, newTip *model.BlockHeader, newTipHash digest.Digest) error {
	branch, ancestorHash, err := m.forkPath(newTipHash)
	if err != nil {
		return err
	}

	ancestorHeight := m.canonical[ancestorHash]

	depth := m.tip.Height - ancestorHeight
	if depth > m.settings.MaxReorgDepth() {
		prometheusChainstateBlocks.WithLabelValues("reorg_too_deep").Inc()

		return errors.NewReorgTooDeepError("fork point at height %d is %d blocks behind tip %d, limit %d", ancestorHeight, depth, m.tip.Height, m.settings.MaxReorgDepth())
	}

	// rebuild the accumulator as it stood at the fork point
	snapshot, err := m.archive.GetAccumulatorSnapshot(ctx, ancestorHeight)
	if err != nil {
		return m.corrupt("missing snapshot at fork point height %d", ancestorHeight, err)
	}

	state, err := mutatorset.NewFromBytes(snapshot)
	if err != nil {
		return m.corrupt("snapshot at fork point height %d unreadable", ancestorHeight, err)
	}

	// validate the whole branch before touching canonical state
	parent := m.headers[ancestorHash]
	snapshots := make([][]byte, 0, len(branch))

	for _, block := range branch {
		applied, err := m.validator.ValidateBlock(ctx, block, parent, state)
		if err != nil {
			m.pruneBranch(block.Hash())
			prometheusChainstateBlocks.WithLabelValues("rejected").Inc()

			return errors.NewBlockInvalidError("competing branch fails at block %s", block.Hash(), err)
		}

		blockSnapshot, err := applied.Bytes()
		if err != nil {
			return err
		}

		snapshots = append(snapshots, blockSnapshot)
		state = applied
		parent = block.Header
	}

	// remember what we are about to disconnect; the wallet notifications
	// and the mempool need the bodies
	disconnected := make([]*model.Block, 0, depth)

	for height := ancestorHeight + 1; height <= m.tip.Height; height++ {
		block, err := m.archive.GetBlockByHeight(ctx, height)
		if err != nil {
			return m.corrupt("canonical block at height %d unreadable", height, err)
		}

		disconnected = append(disconnected, block)
	}

	// the branch is valid; rewrite the archive
	if err := m.archive.RollbackTo(ctx, ancestorHeight); err != nil {
		return m.corrupt("archive rollback to height %d failed", ancestorHeight, err)
	}

	for i, block := range branch {
		if err := m.archive.AppendBlock(ctx, block, snapshots[i]); err != nil {
			return m.corrupt("archive append of block %s failed mid-reorganization", block.Hash(), err)
		}
	}

	// disconnected blocks become side blocks; the branch becomes canonical
	for _, block := range disconnected {
		hash := block.Hash()
		delete(m.canonical, hash)
		m.sideBlocks[hash] = block
	}

	for _, block := range branch {
		hash := block.Hash()
		delete(m.sideBlocks, hash)
		m.canonical[hash] = block.Header.Height
	}

	m.accumulator = state
	m.tip = newTip
	m.tipHash = newTipHash

	m.pruneSideBlocks()

	// tip first, so a wallet unwinds in reverse application order
	for i := len(disconnected) - 1; i >= 0; i-- {
		m.notify(model.NotificationTypeBlockDisconnected, disconnected[i])
	}

	for _, block := range branch {
		m.notify(model.NotificationTypeBlockAccepted, block)
	}

	// drop pooled transactions the new state invalidates, then give the
	// disconnected transactions a chance to re-enter
	m.mempool.Revalidate(state)

	for _, block := range disconnected {
		for _, tx := range block.Transactions {
			if err := m.mempool.Insert(tx, state); err != nil {
				m.logger.Debugf("[chainstate] disconnected transaction %s not re-pooled: %v", tx.TxID(), err)
			}
		}
	}

	prometheusChainstateReorgs.Inc()
	prometheusChainstateReorgDepth.Observe(float64(depth))
	prometheusChainstateBlocks.WithLabelValues("reorg").Inc()
	prometheusChainstateTipHeight.Set(float64(newTip.Height))
	prometheusChainstateSideBlocks.Set(float64(len(m.sideBlocks)))

	m.logger.Warnf("[chainstate] reorganized: disconnected %d blocks, connected %d, new tip %s at height %d", len(disconnected), len(branch), newTipHash, newTip.Height)

	return nil
}

// forkPath walks from the candidate tip back to the canonical chain and
// returns the branch in application order plus the fork point hash.
func (m *Manager) forkPath(tipHash digest.Digest) ([]*model.Block, digest.Digest, error) {
	var reversed []*model.Block

	hash := tipHash

	for {
		if _, ok := m.canonical[hash]; ok {
			break
		}

		block, ok := m.sideBlocks[hash]
		if !ok {
			return nil, digest.Digest{}, errors.NewProcessingError("side chain block %s has no stored body", hash)
		}

		reversed = append(reversed, block)
		hash = block.Header.HashPrevBlock
	}

	branch := make([]*model.Block, len(reversed))
	for i, block := range reversed {
		branch[len(reversed)-1-i] = block
	}

	return branch, hash, nil
}

// pruneBranch removes a side block and every stored descendant of it.
func (m *Manager) pruneBranch(hash digest.Digest) {
	delete(m.headers, hash)
	delete(m.sideBlocks, hash)

	for childHash, child := range m.sideBlocks {
		if child.Header.HashPrevBlock == hash {
			m.pruneBranch(childHash)
		}
	}

	prometheusChainstateSideBlocks.Set(float64(len(m.sideBlocks)))
}

// corrupt logs and returns a fatal state error. The node cannot continue
// safely past one of these.
func (m *Manager) corrupt(format string, params ...interface{}) error {
	err := errors.NewCorruptStateError(format, params...)
	m.logger.Errorf("[chainstate] %v", err)

	return err
}
