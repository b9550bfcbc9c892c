package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hxuan190/swap-engine/internal/domain"
)

var ErrUnexpectedOutput = errors.New("unexpected contract output")

// PairReader reads constant-product pairs from a v2 factory.
type PairReader struct {
	caller  *Caller
	factory common.Address
}

func NewPairReader(caller *Caller, factory common.Address) *PairReader {
	return &PairReader{caller: caller, factory: factory}
}

// GetPair returns the pair address for the two tokens, or the zero address when none exists.
func (r *PairReader) GetPair(ctx context.Context, tokenA, tokenB common.Address) (common.Address, error) {
	out, err := r.caller.Call(ctx, r.factory, V2FactoryABI, "getPair", tokenA, tokenB)
	if err != nil {
		return common.Address{}, err
	}
	pair, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%w: getPair returned %T", ErrUnexpectedOutput, out[0])
	}
	return pair, nil
}

// GetReserves reads a pair's reserves tagged with the canonical token order of tokenA/tokenB.
func (r *PairReader) GetReserves(ctx context.Context, pair, tokenA, tokenB common.Address) (*domain.Reserves, error) {
	out, err := r.caller.Call(ctx, pair, V2PairABI, "getReserves")
	if err != nil {
		return nil, err
	}
	if len(out) != 3 {
		return nil, fmt.Errorf("%w: getReserves returned %d values", ErrUnexpectedOutput, len(out))
	}
	reserve0, ok0 := out[0].(*big.Int)
	reserve1, ok1 := out[1].(*big.Int)
	ts, ok2 := out[2].(uint32)
	if !ok0 || !ok1 || !ok2 {
		return nil, fmt.Errorf("%w: getReserves types %T %T %T", ErrUnexpectedOutput, out[0], out[1], out[2])
	}
	return domain.NewReserves(pair, tokenA, tokenB, reserve0, reserve1, ts), nil
}
