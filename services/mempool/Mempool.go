// Package mempool holds verified, unconfirmed transactions awaiting a
// block. Admission re-checks the validity proof and the spendability of
// every input against the current accumulator; a transaction that fails
// any check leaves the pool exactly as it was. Conflicting transactions
// never coexist: a newcomer replaces the entries it conflicts with only
// when it pays a strictly higher fee rate than every one of them.
package mempool

import (
	"sort"

	"github.com/triton-chain/triton/digest"
	"github.com/triton-chain/triton/errors"
	"github.com/triton-chain/triton/model"
	"github.com/triton-chain/triton/mutatorset"
	"github.com/triton-chain/triton/proofs"
	"github.com/triton-chain/triton/settings"
	"github.com/triton-chain/triton/ulogger"
	"github.com/triton-chain/triton/util/locker"
)

type entry struct {
	tx      *model.Transaction
	size    uint64
	feeRate float64

	// sequence orders entries with equal fee rates first-in first-out.
	sequence uint64
}

type Mempool struct {
	logger   ulogger.Logger
	settings *settings.Settings
	verifier proofs.Verifier

	mu *locker.Locker

	txs     map[digest.Digest]*entry        // txid -> entry
	byInput map[digest.Digest]digest.Digest // removal record ID -> txid

	totalBytes   uint64
	nextSequence uint64
}

func New(logger ulogger.Logger, tSettings *settings.Settings, verifier proofs.Verifier) *Mempool {
	initPrometheusMetrics()

	lockOpts := []locker.Option{locker.WithLogger(logger)}
	if tSettings.Lock.DiagnosticsEnabled {
		lockOpts = append(lockOpts, locker.WithDiagnostics(tSettings.Lock.SlowHoldThreshold))
	}

	return &Mempool{
		logger:   logger,
		settings: tSettings,
		verifier: verifier,
		mu:       locker.New("mempool", lockOpts...),
		txs:      make(map[digest.Digest]*entry),
		byInput:  make(map[digest.Digest]digest.Digest),
	}
}

// Insert admits a transaction. The accumulator is the state the
// transaction would be confirmed against; every input must be removable
// from it. On any failure the pool is left unchanged and the error says
// why.
func (m *Mempool) Insert(tx *model.Transaction, accumulator *mutatorset.MutatorSet) error {
	if tx == nil {
		prometheusMempoolRejected.WithLabelValues("malformed").Inc()

		return errors.NewTxInvalidError("nil transaction")
	}

	// proof verification is the expensive check; do it before taking the
	// write lock so a flood of invalid transactions cannot stall the pool
	if err := m.verifier.VerifyTransaction(tx); err != nil {
		prometheusMempoolRejected.WithLabelValues("proof").Inc()

		return err
	}

	txID := tx.TxID()
	size := tx.Size()
	feeRate := tx.FeePerByte()

	if feeRate < m.settings.Mempool.MinFeeRate {
		prometheusMempoolRejected.WithLabelValues("feerate").Inc()

		return errors.NewTxInvalidError("fee rate %.6f below minimum %.6f", feeRate, m.settings.Mempool.MinFeeRate)
	}

	guard := m.mu.Lock()
	defer guard.Unlock()

	if _, ok := m.txs[txID]; ok {
		prometheusMempoolRejected.WithLabelValues("exists").Inc()

		return errors.NewTxExistsError("transaction %s already in mempool", txID)
	}

	inputIDs := tx.InputIDs()

	for i, id := range inputIDs {
		if !accumulator.CanRemove(tx.Inputs[i]) {
			prometheusMempoolRejected.WithLabelValues("unspendable").Inc()

			return errors.NewInvalidRemovalError("input %s is not a live member", id)
		}
	}

	// collect the entries this transaction conflicts with; replacement is
	// all or nothing and only for a strictly higher fee rate
	conflicts := make(map[digest.Digest]*entry)

	for _, id := range inputIDs {
		if conflictID, ok := m.byInput[id]; ok {
			conflicts[conflictID] = m.txs[conflictID]
		}
	}

	for conflictID, conflict := range conflicts {
		if feeRate <= conflict.feeRate {
			prometheusMempoolRejected.WithLabelValues("conflict").Inc()

			return errors.NewTxConflictError("transaction %s conflicts with %s at an equal or higher fee rate", txID, conflictID)
		}
	}

	// decide admission before mutating anything; a transaction refused
	// for capacity must not have evicted the entries it conflicted with
	victims, err := m.planEvictions(size, feeRate, conflicts)
	if err != nil {
		prometheusMempoolRejected.WithLabelValues("full").Inc()

		return err
	}

	for conflictID := range conflicts {
		m.drop(conflictID)
		prometheusMempoolReplaced.Inc()
	}

	for _, victimID := range victims {
		m.drop(victimID)
		prometheusMempoolEvicted.Inc()
	}

	m.txs[txID] = &entry{
		tx:       tx,
		size:     size,
		feeRate:  feeRate,
		sequence: m.nextSequence,
	}
	m.nextSequence++

	for _, id := range inputIDs {
		m.byInput[id] = txID
	}

	m.totalBytes += size

	prometheusMempoolInserted.Inc()
	m.updateGauges()

	m.logger.Debugf("[mempool] admitted %s (%d bytes, %.6f fee rate), %d txs pooled", txID, size, feeRate, len(m.txs))

	return nil
}

// planEvictions decides, without touching the pool, which entries have to
// go for the incoming transaction to fit. Entries in excluded are treated
// as already removed; they are the conflicts the transaction replaces.
// Eviction goes cheapest first and never throws away a better-paying
// transaction to admit a worse one; an incoming transaction that cannot
// fit is refused with the pool intact.
func (m *Mempool) planEvictions(incomingSize uint64, incomingFeeRate float64, excluded map[digest.Digest]*entry) ([]digest.Digest, error) {
	maxBytes := m.settings.Mempool.MaxBytes
	maxTxs := m.settings.Mempool.MaxTxs

	if maxBytes > 0 && incomingSize > maxBytes {
		return nil, errors.NewMempoolFullError("transaction of %d bytes exceeds mempool capacity %d", incomingSize, maxBytes)
	}

	pooledBytes := m.totalBytes
	pooledTxs := len(m.txs)

	skip := make(map[digest.Digest]bool, len(excluded))

	for id, e := range excluded {
		skip[id] = true
		pooledBytes -= e.size
		pooledTxs--
	}

	over := func() bool {
		if maxBytes > 0 && pooledBytes+incomingSize > maxBytes {
			return true
		}

		return maxTxs > 0 && pooledTxs+1 > maxTxs
	}

	var victims []digest.Digest

	for over() {
		victim := m.cheapest(skip)
		if victim == nil {
			return nil, errors.NewMempoolFullError("mempool capacity exhausted")
		}

		if victim.feeRate >= incomingFeeRate {
			return nil, errors.NewMempoolFullError("fee rate %.6f too low for a full mempool", incomingFeeRate)
		}

		victimID := victim.tx.TxID()
		skip[victimID] = true
		victims = append(victims, victimID)
		pooledBytes -= victim.size
		pooledTxs--
	}

	return victims, nil
}

// cheapest returns the entry with the lowest fee rate, newest first on
// ties, skipping the given ids; nil when nothing eligible remains.
func (m *Mempool) cheapest(skip map[digest.Digest]bool) *entry {
	var victim *entry

	for txID, e := range m.txs {
		if skip[txID] {
			continue
		}

		if victim == nil ||
			e.feeRate < victim.feeRate ||
			(e.feeRate == victim.feeRate && e.sequence > victim.sequence) {
			victim = e
		}
	}

	return victim
}

// drop removes an entry and its input index. Callers hold the write lock.
func (m *Mempool) drop(txID digest.Digest) {
	e, ok := m.txs[txID]
	if !ok {
		return
	}

	delete(m.txs, txID)
	m.totalBytes -= e.size

	for _, id := range e.tx.InputIDs() {
		if m.byInput[id] == txID {
			delete(m.byInput, id)
		}
	}
}

// RemoveConfirmed drops every pooled transaction the block confirmed and
// every pooled transaction that conflicts with one the block confirmed.
func (m *Mempool) RemoveConfirmed(block *model.Block) {
	guard := m.mu.Lock()
	defer guard.Unlock()

	var removed int

	for _, tx := range block.Transactions {
		txID := tx.TxID()
		if _, ok := m.txs[txID]; ok {
			m.drop(txID)

			removed++
		}
	}

	for _, record := range block.RemovalRecords() {
		if conflictID, ok := m.byInput[record.ID()]; ok {
			m.drop(conflictID)

			removed++
		}
	}

	if removed > 0 {
		m.logger.Debugf("[mempool] removed %d transactions confirmed or conflicted by block %s", removed, block.Hash())
	}

	m.updateGauges()
}

// Revalidate drops every pooled transaction with an input that is no
// longer removable from the given accumulator. Called after a chain
// reorganization switches the state the pool fronts for.
func (m *Mempool) Revalidate(accumulator *mutatorset.MutatorSet) {
	guard := m.mu.Lock()
	defer guard.Unlock()

	var doomed []digest.Digest

	for txID, e := range m.txs {
		for _, record := range e.tx.Inputs {
			if !accumulator.CanRemove(record) {
				doomed = append(doomed, txID)
				break
			}
		}
	}

	for _, txID := range doomed {
		m.drop(txID)
	}

	if len(doomed) > 0 {
		m.logger.Infof("[mempool] dropped %d transactions invalidated by reorganization", len(doomed))
	}

	m.updateGauges()
}

// Snapshot returns the pooled transactions ordered by descending fee
// rate, first-in first-out on ties. This is the order a block builder
// should consume them in.
func (m *Mempool) Snapshot() []*model.Transaction {
	guard := m.mu.RLock()
	defer guard.Unlock()

	entries := make([]*entry, 0, len(m.txs))
	for _, e := range m.txs {
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].feeRate != entries[j].feeRate {
			return entries[i].feeRate > entries[j].feeRate
		}

		return entries[i].sequence < entries[j].sequence
	})

	txs := make([]*model.Transaction, len(entries))
	for i, e := range entries {
		txs[i] = e.tx
	}

	return txs
}

// Contains reports whether the transaction is pooled.
func (m *Mempool) Contains(txID digest.Digest) bool {
	guard := m.mu.RLock()
	defer guard.Unlock()

	_, ok := m.txs[txID]

	return ok
}

// Count returns the number of pooled transactions.
func (m *Mempool) Count() int {
	guard := m.mu.RLock()
	defer guard.Unlock()

	return len(m.txs)
}

// TotalBytes returns the total size of all pooled transactions.
func (m *Mempool) TotalBytes() uint64 {
	guard := m.mu.RLock()
	defer guard.Unlock()

	return m.totalBytes
}

// LockStats exposes the pool lock counters for diagnostics.
func (m *Mempool) LockStats() locker.Stats {
	return m.mu.Stats()
}

func (m *Mempool) updateGauges() {
	prometheusMempoolTransactions.Set(float64(len(m.txs)))
	prometheusMempoolBytes.Set(float64(m.totalBytes))
}
