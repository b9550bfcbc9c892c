package router

import (
	"math/big"

	"github.com/hxuan190/swap-engine/internal/domain"
)

// MinOut applies the slippage tolerance to a quoted output:
// floor(amountOut * (10000 - slippageBps) / 10000). Out-of-range tolerances are rejected.
func MinOut(amountOut *big.Int, slippageBps uint16) (*big.Int, error) {
	if err := domain.ValidateSlippageBps(slippageBps); err != nil {
		return nil, err
	}
	if !positive(amountOut) {
		return new(big.Int), nil
	}

	multiplier := GetBigInt()
	defer PutBigInt(multiplier)
	multiplier.SetUint64(BpsDenominator - uint64(slippageBps))

	minOut := new(big.Int).Mul(amountOut, multiplier)
	return minOut.Quo(minOut, BPS_DENOM), nil
}
