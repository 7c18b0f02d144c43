package model

import (
	"math/big"
	"time"
)

// DifficultyControl computes the difficulty for a block from its timestamp,
// its predecessor's timestamp and difficulty, and the target block
// interval. It regulates the block interval by tuning the difficulty.
//
// The mechanism is a P-controller with P = -2^-4 and the relative error
// clamped to [-1, 4]. The clamp upper bound matters: without it a single
// arbitrarily slow block could collapse the difficulty. Fixed-point
// arithmetic with 32 fractional bits keeps the computation exact and
// identical on every node.
func DifficultyControl(
	newTimestamp int64,
	oldTimestamp int64,
	oldDifficulty *big.Int,
	targetBlockInterval time.Duration,
	previousBlockHeight uint64,
	minimumDifficulty *big.Int,
) *big.Int {
	// no adjustment if the previous block is the genesis block
	if previousBlockHeight == 0 {
		return new(big.Int).Set(oldDifficulty)
	}

	targetSeconds := int64(targetBlockInterval / time.Second)
	if targetSeconds <= 0 {
		targetSeconds = 1
	}

	deltaT := newTimestamp - oldTimestamp

	// relative error in fixed point, clamped to [-1, 4]
	absoluteError := deltaT - targetSeconds
	relativeError := new(big.Int).Quo(
		new(big.Int).Lsh(big.NewInt(absoluteError), 32),
		big.NewInt(targetSeconds),
	)

	lowerBound := new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 32))
	upperBound := new(big.Int).Lsh(big.NewInt(4), 32)

	if relativeError.Cmp(lowerBound) < 0 {
		relativeError.Set(lowerBound)
	}

	if relativeError.Cmp(upperBound) > 0 {
		relativeError.Set(upperBound)
	}

	// adjustment factor = 1 + P * error, P = -1/16
	onePlusPTimesError := new(big.Int).Lsh(big.NewInt(1), 32)
	onePlusPTimesError.Sub(onePlusPTimesError, new(big.Int).Rsh(relativeError, 4))

	newDifficulty := new(big.Int).Mul(oldDifficulty, onePlusPTimesError)
	newDifficulty.Rsh(newDifficulty, 32)

	if newDifficulty.Cmp(minimumDifficulty) < 0 {
		newDifficulty.Set(minimumDifficulty)
	}

	return newDifficulty
}

// CalculateWork returns the cumulative work after a block with the given
// difficulty: the predecessor's cumulative work plus the expected number of
// hashes to find the block.
func CalculateWork(prevWork, difficulty *big.Int) *big.Int {
	return new(big.Int).Add(prevWork, difficulty)
}
