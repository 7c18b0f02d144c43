package settings

import (
	"time"

	"github.com/triton-chain/triton/chaincfg"
)

type BlockSettings struct {
	// MaxFutureBlockTime overrides the chain default when set; zero means
	// use chaincfg.Params.MaxFutureBlockTime.
	MaxFutureBlockTime time.Duration

	// MaxReorgDepth overrides the chain default when non-zero.
	MaxReorgDepth uint64

	// RejectedCacheTTL is how long a rejected block hash stays cached so
	// repeated submissions fail fast without revalidation.
	RejectedCacheTTL time.Duration

	// RejectedCacheSize caps the rejected block cache.
	RejectedCacheSize int

	// ProofVerifyConcurrency is the number of transaction proofs verified
	// in parallel during block validation. Zero means GOMAXPROCS.
	ProofVerifyConcurrency int
}

type MempoolSettings struct {
	// MaxBytes caps the total size of all transactions in the mempool.
	MaxBytes uint64

	// MaxTxs caps the number of transactions in the mempool.
	MaxTxs int

	// MinFeeRate is the minimum fee per byte a transaction needs to be
	// admitted.
	MinFeeRate float64
}

type ArchiveSettings struct {
	// StorePath is the directory holding the leveldb block archive.
	StorePath string

	// InMemory keeps the archive in memory instead of on disk. Used by
	// tests and throwaway regtest nodes.
	InMemory bool
}

type ProofSettings struct {
	// VerifyingKeyPath points at the Groth16 verifying key for transaction
	// and block proofs.
	VerifyingKeyPath string

	// UseMockVerifier replaces the SNARK verifier with a structural one.
	// Never enable outside regtest.
	UseMockVerifier bool
}

type LockSettings struct {
	// DiagnosticsEnabled turns on lock hold-time instrumentation.
	DiagnosticsEnabled bool

	// SlowHoldThreshold is the hold duration above which a lock release is
	// logged. Zero disables the logging even with diagnostics on.
	SlowHoldThreshold time.Duration
}

type Settings struct {
	ClientName string
	DataFolder string
	LogLevel   string

	// MetricsListenAddress serves prometheus metrics and pprof; empty
	// disables the listener.
	MetricsListenAddress string

	ChainCfgParams *chaincfg.Params

	Block   BlockSettings
	Mempool MempoolSettings
	Archive ArchiveSettings
	Proof   ProofSettings
	Lock    LockSettings
}

// MaxFutureBlockTime resolves the override against the chain default.
func (s *Settings) MaxFutureBlockTime() time.Duration {
	if s.Block.MaxFutureBlockTime > 0 {
		return s.Block.MaxFutureBlockTime
	}

	return s.ChainCfgParams.MaxFutureBlockTime
}

// MaxReorgDepth resolves the override against the chain default.
func (s *Settings) MaxReorgDepth() uint64 {
	if s.Block.MaxReorgDepth > 0 {
		return s.Block.MaxReorgDepth
	}

	return s.ChainCfgParams.MaxReorgDepth
}
