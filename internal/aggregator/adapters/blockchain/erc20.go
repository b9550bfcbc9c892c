package blockchain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hxuan190/swap-engine/internal/domain"
)

// ERC20 reads token allowances and balances.
type ERC20 struct {
	caller *Caller
}

func NewERC20(caller *Caller) *ERC20 {
	return &ERC20{caller: caller}
}

func (e *ERC20) Allowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return e.readUint(ctx, token, "allowance", owner, spender)
}

func (e *ERC20) BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error) {
	return e.readUint(ctx, token, "balanceOf", account)
}

// NeedsApproval re-reads the allowance and reports whether it falls short of amountIn.
// A zero amount never needs approval and skips the read.
func (e *ERC20) NeedsApproval(ctx context.Context, token, owner, spender common.Address, amountIn *big.Int) (bool, domain.AllowanceState, error) {
	state := domain.AllowanceState{Token: token, Owner: owner, Spender: spender}
	if amountIn == nil || amountIn.Sign() == 0 {
		return false, state, nil
	}

	current, err := e.Allowance(ctx, token, owner, spender)
	if err != nil {
		return false, state, err
	}
	state.Current = current
	return !state.Covers(amountIn), state, nil
}

func (e *ERC20) readUint(ctx context.Context, token common.Address, method string, args ...interface{}) (*big.Int, error) {
	out, err := e.caller.Call(ctx, token, ERC20ABI, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%w: %s returned %T", ErrUnexpectedOutput, method, out[0])
	}
	return v, nil
}
