package domain

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// CanonicalOrder returns the two tokens in the order a v2 pair stores them:
// ascending by address bytes.
func CanonicalOrder(a, b common.Address) (token0, token1 common.Address) {
	if bytes.Compare(a[:], b[:]) < 0 {
		return a, b
	}
	return b, a
}

// Reserves are the balances of a v2 pair, tagged with the token held in each slot.
type Reserves struct {
	Pair               common.Address
	Token0             common.Address
	Token1             common.Address
	Reserve0           *big.Int
	Reserve1           *big.Int
	BlockTimestampLast uint32
}

// NewReserves tags raw getReserves() output with the pair's canonical token order.
func NewReserves(pair, tokenA, tokenB common.Address, reserve0, reserve1 *big.Int, ts uint32) *Reserves {
	token0, token1 := CanonicalOrder(tokenA, tokenB)
	return &Reserves{
		Pair:               pair,
		Token0:             token0,
		Token1:             token1,
		Reserve0:           reserve0,
		Reserve1:           reserve1,
		BlockTimestampLast: ts,
	}
}

// Oriented remaps the reserves to (reserveIn, reserveOut) for a swap selling tokenIn.
// ok is false when tokenIn is not one of the pair's tokens.
func (r *Reserves) Oriented(tokenIn common.Address) (reserveIn, reserveOut *big.Int, ok bool) {
	if r == nil {
		return nil, nil, false
	}
	switch tokenIn {
	case r.Token0:
		return r.Reserve0, r.Reserve1, true
	case r.Token1:
		return r.Reserve1, r.Reserve0, true
	}
	return nil, nil, false
}

// IsEmpty reports whether either side of the pair holds nothing.
func (r *Reserves) IsEmpty() bool {
	return r == nil ||
		r.Reserve0 == nil || r.Reserve0.Sign() <= 0 ||
		r.Reserve1 == nil || r.Reserve1.Sign() <= 0
}
