package chaincfg

import (
	"math/big"
	"time"

	"github.com/triton-chain/triton/digest"
	"github.com/triton-chain/triton/errors"
	"github.com/triton-chain/triton/model"
)

var bigOne = big.NewInt(1)

// TritonNet defines the magic bytes used to identify a network.
type TritonNet uint32

const (
	mainNet TritonNet = 0x7472694d // "triM"
	testNet TritonNet = 0x74726954 // "triT"
	regNet  TritonNet = 0x74726952 // "triR"
)

// Params defines a triton network by its parameters. These parameters may be
// used by applications to differentiate one network from another.
type Params struct {
	// Name defines a human-readable identifier for the network.
	Name string

	// Net defines the magic bytes used to identify the network.
	Net TritonNet

	// DefaultPort defines the default peer-to-peer port for the network.
	DefaultPort string

	// GenesisBlock defines the first block of the chain.
	GenesisBlock *model.Block

	// GenesisHash is the starting block hash.
	GenesisHash digest.Digest

	// TargetBlockInterval is the block interval the difficulty controller
	// regulates towards.
	TargetBlockInterval time.Duration

	// MinimumDifficulty is the floor the difficulty controller never goes
	// below. It doubles as the genesis difficulty.
	MinimumDifficulty *big.Int

	// MaxFutureBlockTime is how far into the future a block timestamp may
	// lie, relative to the local clock, before the block is rejected.
	MaxFutureBlockTime time.Duration

	// MaxReorgDepth bounds how many blocks a chain reorganization may
	// disconnect. Deeper forks are refused even when they carry more work.
	MaxReorgDepth uint64
}

// MainNetParams defines the network parameters for the main triton network.
var MainNetParams = Params{
	Name:        "mainnet",
	Net:         mainNet,
	DefaultPort: "9798",

	GenesisBlock: &genesisBlock,
	GenesisHash:  genesisBlock.Header.Hash(),

	TargetBlockInterval: 588 * time.Second,
	MinimumDifficulty:   new(big.Int).Lsh(bigOne, 20),
	MaxFutureBlockTime:  5 * time.Minute,
	MaxReorgDepth:       60,
}

// TestNetParams defines the network parameters for the test network.
var TestNetParams = Params{
	Name:        "testnet",
	Net:         testNet,
	DefaultPort: "19798",

	GenesisBlock: &testNetGenesisBlock,
	GenesisHash:  testNetGenesisBlock.Header.Hash(),

	TargetBlockInterval: 120 * time.Second,
	MinimumDifficulty:   new(big.Int).Lsh(bigOne, 10),
	MaxFutureBlockTime:  5 * time.Minute,
	MaxReorgDepth:       60,
}

// RegressionNetParams defines the network parameters for the regression test
// network. Difficulty is kept trivial so tests can mine blocks instantly.
var RegressionNetParams = Params{
	Name:        "regtest",
	Net:         regNet,
	DefaultPort: "29798",

	GenesisBlock: &regTestGenesisBlock,
	GenesisHash:  regTestGenesisBlock.Header.Hash(),

	TargetBlockInterval: 1 * time.Second,
	MinimumDifficulty:   big.NewInt(2),
	MaxFutureBlockTime:  5 * time.Minute,
	MaxReorgDepth:       10,
}

var registeredNets = make(map[TritonNet]struct{})

// ErrDuplicateNet describes an error where the parameters for a network
// could not be set due to the network already being registered (either a
// standard network or one previously registered via this package).
var ErrDuplicateNet = errors.NewConfigurationError("duplicate network")

// Register registers the network parameters for a triton network. Network
// parameters should be registered into this package by a main package as
// early as possible. Then, library packages may look up networks based on
// inputs and work regardless of the network being standard or not.
func Register(params *Params) error {
	if _, ok := registeredNets[params.Net]; ok {
		return ErrDuplicateNet
	}

	registeredNets[params.Net] = struct{}{}

	return nil
}

// mustRegister performs the same function as Register except it panics if
// there is an error. This should only be called from package init functions.
func mustRegister(params *Params) {
	if err := Register(params); err != nil {
		panic("failed to register network: " + err.Error())
	}
}

func GetChainParams(network string) (*Params, error) {
	switch network {
	case "mainnet":
		return &MainNetParams, nil
	case "testnet":
		return &TestNetParams, nil
	case "regtest":
		return &RegressionNetParams, nil
	default:
		return nil, errors.NewConfigurationError("unknown network %s", network)
	}
}

func init() {
	// Register all default networks when the package is initialized.
	mustRegister(&MainNetParams)
	mustRegister(&TestNetParams)
	mustRegister(&RegressionNetParams)
}
