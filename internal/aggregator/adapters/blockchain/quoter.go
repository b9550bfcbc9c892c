package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

// ErrNoQuote means the quoter could not price the trade, usually because the pool for the
// fee tier does not exist or lacks liquidity. It is an absent route, not a failure.
var ErrNoQuote = errors.New("no concentrated liquidity quote")

// V3Quote is the quoter's answer for an exact-input single-pool trade.
type V3Quote struct {
	AmountOut               *big.Int
	SqrtPriceX96After       *big.Int
	InitializedTicksCrossed uint32
	GasEstimate             uint64
}

// Quoter prices single-pool trades through an on-chain concentrated liquidity quoter.
// Both the tuple-argument QuoterV2 and the positional QuoterV1 signatures are supported.
type Quoter struct {
	caller  *Caller
	address common.Address
}

func NewQuoter(caller *Caller, address common.Address) *Quoter {
	return &Quoter{caller: caller, address: address}
}

func (q *Quoter) Address() common.Address {
	return q.address
}

// QuoteExactInputSingle tries QuoterV2 first and falls back to QuoterV1 only when the V2
// signature is rejected. A revert from both is reported as ErrNoQuote; transport errors are
// returned as they are.
func (q *Quoter) QuoteExactInputSingle(ctx context.Context, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*V3Quote, error) {
	quote, errV2 := q.quoteV2(ctx, tokenIn, tokenOut, fee, amountIn)
	if errV2 == nil {
		return quote, nil
	}
	if ctx.Err() != nil || !(isAbsent(errV2) || errors.Is(errV2, ErrUnexpectedOutput)) {
		return nil, errV2
	}
	log.Debug().Err(errV2).Msg("[quoter] v2 quote failed, trying v1 signature")

	quote, errV1 := q.quoteV1(ctx, tokenIn, tokenOut, fee, amountIn)
	if errV1 == nil {
		return quote, nil
	}
	if isAbsent(errV1) {
		return nil, fmt.Errorf("%w: %v", ErrNoQuote, errV1)
	}
	return nil, errV1
}

func isAbsent(err error) bool {
	return errors.Is(err, ErrReverted) || errors.Is(err, ErrEmptyResult)
}

func (q *Quoter) quoteV2(ctx context.Context, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*V3Quote, error) {
	params := QuoteExactInputSingleParams{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		AmountIn:          amountIn,
		Fee:               new(big.Int).SetUint64(uint64(fee)),
		SqrtPriceLimitX96: new(big.Int),
	}
	out, err := q.caller.Call(ctx, q.address, QuoterV2ABI, "quoteExactInputSingle", params)
	if err != nil {
		return nil, err
	}
	if len(out) != 4 {
		return nil, fmt.Errorf("%w: quoteExactInputSingle returned %d values", ErrUnexpectedOutput, len(out))
	}
	amountOut, ok0 := out[0].(*big.Int)
	sqrtAfter, ok1 := out[1].(*big.Int)
	ticks, ok2 := out[2].(uint32)
	gas, ok3 := out[3].(*big.Int)
	if !ok0 || !ok1 || !ok2 || !ok3 {
		return nil, fmt.Errorf("%w: quoteExactInputSingle types %T %T %T %T", ErrUnexpectedOutput, out[0], out[1], out[2], out[3])
	}
	return &V3Quote{
		AmountOut:               amountOut,
		SqrtPriceX96After:       sqrtAfter,
		InitializedTicksCrossed: ticks,
		GasEstimate:             gas.Uint64(),
	}, nil
}

func (q *Quoter) quoteV1(ctx context.Context, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*V3Quote, error) {
	out, err := q.caller.Call(ctx, q.address, QuoterV1ABI, "quoteExactInputSingle",
		tokenIn, tokenOut, new(big.Int).SetUint64(uint64(fee)), amountIn, new(big.Int))
	if err != nil {
		return nil, err
	}
	amountOut, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: quoteExactInputSingle returned %T", ErrUnexpectedOutput, out[0])
	}
	return &V3Quote{AmountOut: amountOut}, nil
}
