package router

import (
	"errors"
	"math/big"
	"sync"

	"github.com/holiman/uint256"
)

const (
	// FeeDenominator is the base of v2 pair fees, which are expressed per mille.
	FeeDenominator = 1000

	// BpsDenominator is the base of slippage and price impact values.
	BpsDenominator = 10000
)

var (
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrInvalidAmount         = errors.New("invalid amount")
)

// Pre-computed constants (avoid allocation on every call)
var (
	FEE_DENOM = big.NewInt(FeeDenominator)
	BPS_DENOM = big.NewInt(BpsDenominator)

	u256FeeDenom = uint256.NewInt(FeeDenominator)
)

var bigIntPool = sync.Pool{
	New: func() interface{} {
		return new(big.Int)
	},
}

// GetBigInt gets a zeroed big.Int from the pool
func GetBigInt() *big.Int {
	return bigIntPool.Get().(*big.Int).SetInt64(0)
}

// PutBigInt returns a big.Int to the pool
func PutBigInt(b *big.Int) {
	if b != nil {
		bigIntPool.Put(b)
	}
}

func positive(x *big.Int) bool {
	return x != nil && x.Sign() > 0
}

// QuoteConstantProduct computes the output of a constant-product swap exactly as a v2 pair does:
//
//	amountInWithFee = amountIn * (1000 - fee)
//	amountOut       = floor(amountInWithFee * reserveOut / (reserveIn * 1000 + amountInWithFee))
//
// Any zero or missing operand yields 0, as does a fee of 1000 or more.
func QuoteConstantProduct(amountIn, reserveIn, reserveOut *big.Int, fee uint16) *big.Int {
	if !positive(amountIn) || !positive(reserveIn) || !positive(reserveOut) || fee >= FeeDenominator {
		return new(big.Int)
	}

	feeMultiplier := GetBigInt()
	amountInWithFee := GetBigInt()
	numerator := GetBigInt()
	denominator := GetBigInt()
	defer func() {
		PutBigInt(feeMultiplier)
		PutBigInt(amountInWithFee)
		PutBigInt(numerator)
		PutBigInt(denominator)
	}()

	feeMultiplier.SetUint64(uint64(FeeDenominator - fee))
	amountInWithFee.Mul(amountIn, feeMultiplier)
	numerator.Mul(amountInWithFee, reserveOut)
	denominator.Mul(reserveIn, FEE_DENOM)
	denominator.Add(denominator, amountInWithFee)

	// operands are positive, so truncation is floor
	return new(big.Int).Quo(numerator, denominator)
}

// QuoteExactIn is QuoteConstantProduct with a uint256 fast path when every operand fits.
func QuoteExactIn(amountIn, reserveIn, reserveOut *big.Int, fee uint16) *big.Int {
	if !positive(amountIn) || !positive(reserveIn) || !positive(reserveOut) {
		return new(big.Int)
	}

	in, overflowIn := uint256.FromBig(amountIn)
	rIn, overflowRIn := uint256.FromBig(reserveIn)
	rOut, overflowROut := uint256.FromBig(reserveOut)
	if !overflowIn && !overflowRIn && !overflowROut {
		if out, ok := QuoteConstantProductU256(in, rIn, rOut, fee); ok {
			return out.ToBig()
		}
	}
	return QuoteConstantProduct(amountIn, reserveIn, reserveOut, fee)
}

// QuoteTwoHop feeds the first hop's output into the second hop. If either hop has no
// liquidity the composed output is 0.
func QuoteTwoHop(amountIn, firstIn, firstOut, secondIn, secondOut *big.Int, fee uint16) (mid, out *big.Int) {
	mid = QuoteExactIn(amountIn, firstIn, firstOut, fee)
	if mid.Sign() == 0 || !positive(secondIn) || !positive(secondOut) {
		return mid, new(big.Int)
	}
	return mid, QuoteExactIn(mid, secondIn, secondOut, fee)
}

// QuoteAmountIn is the inverse of QuoteConstantProduct: the smallest input that yields at
// least amountOut, rounded up the way a v2 router does it.
func QuoteAmountIn(amountOut, reserveIn, reserveOut *big.Int, fee uint16) (*big.Int, error) {
	if !positive(amountOut) {
		return nil, ErrInvalidAmount
	}
	if !positive(reserveIn) || !positive(reserveOut) || amountOut.Cmp(reserveOut) >= 0 {
		return nil, ErrInsufficientLiquidity
	}
	if fee >= FeeDenominator {
		return nil, ErrInsufficientLiquidity
	}

	numerator := GetBigInt()
	denominator := GetBigInt()
	defer func() {
		PutBigInt(numerator)
		PutBigInt(denominator)
	}()

	numerator.Mul(reserveIn, amountOut)
	numerator.Mul(numerator, FEE_DENOM)
	denominator.Sub(reserveOut, amountOut)
	denominator.Mul(denominator, big.NewInt(int64(FeeDenominator-fee)))

	amountIn := new(big.Int).Quo(numerator, denominator)
	return amountIn.Add(amountIn, big.NewInt(1)), nil
}
