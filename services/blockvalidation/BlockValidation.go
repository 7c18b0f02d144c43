// Package blockvalidation decides whether a candidate block is valid
// against a given parent and accumulator state. Checks run in a fixed
// order, cheapest first, and the expensive accumulator transition happens
// on a private clone so a failing block can never dirty canonical state.
package blockvalidation

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/looplab/fsm"
	"golang.org/x/sync/errgroup"

	"github.com/triton-chain/triton/digest"
	"github.com/triton-chain/triton/errors"
	"github.com/triton-chain/triton/model"
	"github.com/triton-chain/triton/mutatorset"
	"github.com/triton-chain/triton/proofs"
	"github.com/triton-chain/triton/settings"
	"github.com/triton-chain/triton/ulogger"
)

type BlockValidation struct {
	logger   ulogger.Logger
	settings *settings.Settings
	verifier proofs.Verifier

	// rejected remembers recently failed block hashes with their failure
	// reason so resubmissions fail fast without revalidating.
	rejected *ttlcache.Cache[digest.Digest, string]
}

func New(logger ulogger.Logger, tSettings *settings.Settings, verifier proofs.Verifier) *BlockValidation {
	initPrometheusMetrics()

	return &BlockValidation{
		logger:   logger,
		settings: tSettings,
		verifier: verifier,
		rejected: ttlcache.New[digest.Digest, string](
			ttlcache.WithTTL[digest.Digest, string](tSettings.Block.RejectedCacheTTL),
			ttlcache.WithCapacity[digest.Digest, string](uint64(tSettings.Block.RejectedCacheSize)),
		),
	}
}

// Start begins background expiry of the rejected block cache.
func (bv *BlockValidation) Start() {
	go bv.rejected.Start()
}

func (bv *BlockValidation) Stop() {
	bv.rejected.Stop()
}

// ValidateBlock runs every consensus check on the candidate block and, if
// all pass, returns the accumulator state after applying it. The passed
// accumulator is never mutated; the transition runs on a clone.
//
// The checks run in order: header and proof-of-work, validity proofs,
// accumulator transition. The first failure wins and its error is
// returned; the block hash is then cached so repeats are refused without
// rework.
func (bv *BlockValidation) ValidateBlock(ctx context.Context, block *model.Block, parent *model.BlockHeader, accumulator *mutatorset.MutatorSet) (*mutatorset.MutatorSet, error) {
	start := time.Now()
	defer func() {
		prometheusBlockValidationValidateBlock.Observe(time.Since(start).Seconds())
	}()

	if block == nil || block.Header == nil {
		return nil, errors.NewBlockInvalidError("block has no header")
	}

	hash := block.Hash()

	if item := bv.rejected.Get(hash); item != nil {
		prometheusBlockValidationRejectedCache.Inc()

		return nil, errors.NewBlockInvalidError("block %s was recently rejected: %s", hash, item.Value())
	}

	machine := newCandidateFSM()

	if err := bv.checkHeader(block.Header, parent); err != nil {
		return nil, bv.reject(ctx, machine, hash, "header", err)
	}

	if err := machine.Event(ctx, EventCheckHeader); err != nil {
		return nil, errors.NewProcessingError("candidate state machine", err)
	}

	if err := bv.verifyProofs(ctx, block); err != nil {
		return nil, bv.reject(ctx, machine, hash, "proofs", err)
	}

	if err := machine.Event(ctx, EventVerifyProofs); err != nil {
		return nil, errors.NewProcessingError("candidate state machine", err)
	}

	applied, err := bv.applyToClone(block, accumulator)
	if err != nil {
		return nil, bv.reject(ctx, machine, hash, "accumulator", err)
	}

	if err := machine.Event(ctx, EventApply); err != nil {
		return nil, errors.NewProcessingError("candidate state machine", err)
	}

	if err := machine.Event(ctx, EventAccept); err != nil {
		return nil, errors.NewProcessingError("candidate state machine", err)
	}

	prometheusBlockValidationAccepted.Inc()
	bv.logger.Infof("[blockvalidation] block %s at height %d valid (%d txs)", hash, block.Header.Height, len(block.Transactions))

	return applied, nil
}

// checkHeader verifies everything decidable from the two headers alone:
// linkage, timestamps, the difficulty schedule, work accounting and proof
// of work.
func (bv *BlockValidation) checkHeader(header, parent *model.BlockHeader) error {
	if parent == nil {
		return errors.NewOrphanBlockError("no parent header")
	}

	if header.Height != parent.Height+1 {
		return errors.NewBlockInvalidError("height %d does not follow parent height %d", header.Height, parent.Height)
	}

	if header.HashPrevBlock != parent.Hash() {
		return errors.NewBlockInvalidError("predecessor hash %s does not match parent %s", header.HashPrevBlock, parent.Hash())
	}

	if header.Timestamp <= parent.Timestamp {
		return errors.NewBlockInvalidError("timestamp %d not after parent timestamp %d", header.Timestamp, parent.Timestamp)
	}

	maxTimestamp := time.Now().Add(bv.settings.MaxFutureBlockTime()).Unix()
	if header.Timestamp > maxTimestamp {
		return errors.NewBlockInvalidError("timestamp %d too far in the future", header.Timestamp)
	}

	params := bv.settings.ChainCfgParams

	expectedDifficulty := model.DifficultyControl(
		header.Timestamp,
		parent.Timestamp,
		parent.Difficulty,
		params.TargetBlockInterval,
		parent.Height,
		params.MinimumDifficulty,
	)
	if header.Difficulty == nil || header.Difficulty.Cmp(expectedDifficulty) != 0 {
		return errors.NewBlockInvalidError("difficulty %v does not match schedule %v", header.Difficulty, expectedDifficulty)
	}

	expectedWork := model.CalculateWork(parent.CumulativeWork, header.Difficulty)
	if header.CumulativeWork == nil || header.CumulativeWork.Cmp(expectedWork) != 0 {
		return errors.NewBlockInvalidError("cumulative work %v does not match expected %v", header.CumulativeWork, expectedWork)
	}

	if !header.Valid() {
		return errors.NewBlockInvalidError("header hash does not meet difficulty target")
	}

	return nil
}

// verifyProofs checks the block proof and every transaction proof.
// Transaction proofs are independent so they verify in parallel.
func (bv *BlockValidation) verifyProofs(ctx context.Context, block *model.Block) error {
	start := time.Now()
	defer func() {
		prometheusBlockValidationProofVerify.Observe(time.Since(start).Seconds())
	}()

	if err := bv.verifier.VerifyBlock(block); err != nil {
		return err
	}

	g, _ := errgroup.WithContext(ctx)

	if concurrency := bv.settings.Block.ProofVerifyConcurrency; concurrency > 0 {
		g.SetLimit(concurrency)
	}

	for _, tx := range block.Transactions {
		tx := tx

		g.Go(func() error {
			if err := bv.verifier.VerifyTransaction(tx); err != nil {
				return errors.NewProofInvalidError("transaction %s", tx.TxID(), err)
			}

			return nil
		})
	}

	return g.Wait()
}

// applyToClone runs the accumulator transition on a clone of the parent
// state and checks the result against the header commitment.
func (bv *BlockValidation) applyToClone(block *model.Block, accumulator *mutatorset.MutatorSet) (*mutatorset.MutatorSet, error) {
	// a removal record consumed twice within one block is a double spend
	// regardless of what the accumulator says
	seen := make(map[digest.Digest]struct{})

	for _, record := range block.RemovalRecords() {
		id := record.ID()
		if _, ok := seen[id]; ok {
			return nil, errors.NewBlockInvalidError("removal record %s consumed twice", id)
		}

		seen[id] = struct{}{}
	}

	applied := accumulator.Clone()

	for _, tx := range block.Transactions {
		for _, record := range tx.Inputs {
			if err := applied.Remove(record); err != nil {
				return nil, errors.NewBlockInvalidError("transaction %s", tx.TxID(), err)
			}
		}

		for _, record := range tx.Outputs {
			applied.Add(record)
		}
	}

	if root := applied.Root(); root != block.Header.MutatorSetRoot {
		return nil, errors.NewRootMismatchError("accumulator root %s does not match header commitment %s", root, block.Header.MutatorSetRoot)
	}

	return applied, nil
}

func (bv *BlockValidation) reject(ctx context.Context, machine *fsm.FSM, hash digest.Digest, stage string, err error) error {
	if fsmErr := machine.Event(ctx, EventReject); fsmErr != nil {
		bv.logger.Errorf("[blockvalidation] reject transition failed: %v", fsmErr)
	}

	bv.rejected.Set(hash, err.Error(), ttlcache.DefaultTTL)
	prometheusBlockValidationRejected.WithLabelValues(stage).Inc()

	bv.logger.Warnf("[blockvalidation] block %s rejected at %s: %v", hash, stage, err)

	return err
}
