package settings

import (
	"path/filepath"
	"time"

	"github.com/triton-chain/triton/chaincfg"
)

// NewSettings reads the node configuration. Every value has a sane default;
// gocore resolves overrides from settings.conf and the environment.
func NewSettings() *Settings {
	params, err := chaincfg.GetChainParams(getString("network", "mainnet"))
	if err != nil {
		panic(err)
	}

	dataFolder := getString("dataFolder", "data")

	return &Settings{
		ClientName: getString("clientName", "triton"),
		DataFolder: dataFolder,
		LogLevel:   getString("logLevel", "INFO"),

		MetricsListenAddress: getString("metricsListenAddress", ":9090"),

		ChainCfgParams: params,
		Block: BlockSettings{
			MaxFutureBlockTime:     getDuration("block_maxFutureBlockTime", 0),
			MaxReorgDepth:          uint64(getInt("block_maxReorgDepth", 0)),
			RejectedCacheTTL:       getDuration("block_rejectedCacheTTL", 10*time.Minute),
			RejectedCacheSize:      getInt("block_rejectedCacheSize", 4096),
			ProofVerifyConcurrency: getInt("block_proofVerifyConcurrency", 0),
		},
		Mempool: MempoolSettings{
			MaxBytes:   uint64(getInt("mempool_maxBytes", 256*1024*1024)),
			MaxTxs:     getInt("mempool_maxTxs", 100_000),
			MinFeeRate: getFloat64("mempool_minFeeRate", 0),
		},
		Archive: ArchiveSettings{
			StorePath: getString("archive_storePath", filepath.Join(dataFolder, "archive")),
			InMemory:  getBool("archive_inMemory", false),
		},
		Proof: ProofSettings{
			VerifyingKeyPath: getString("proof_verifyingKeyPath", filepath.Join(dataFolder, "triton.vk")),
			UseMockVerifier:  getBool("proof_useMockVerifier", false),
		},
		Lock: LockSettings{
			DiagnosticsEnabled: getBool("lock_diagnosticsEnabled", false),
			SlowHoldThreshold:  getDuration("lock_slowHoldThreshold", 100*time.Millisecond),
		},
	}
}

// NewRegtestSettings returns settings suitable for tests: regtest chain
// parameters, in-memory archive and the mock proof verifier.
func NewRegtestSettings() *Settings {
	s := NewSettings()
	s.ChainCfgParams = &chaincfg.RegressionNetParams
	s.MetricsListenAddress = ""
	s.Archive.InMemory = true
	s.Proof.UseMockVerifier = true

	return s
}
