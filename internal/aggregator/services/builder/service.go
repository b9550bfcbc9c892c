package builder

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/hxuan190/swap-engine/internal/aggregator/adapters/blockchain"
	"github.com/hxuan190/swap-engine/internal/aggregator/services/priority"
	"github.com/hxuan190/swap-engine/internal/domain"
)

var (
	ErrUnsupportedRoute   = errors.New("unsupported route")
	ErrVenueNotConfigured = errors.New("venue router is not configured")
	ErrInvalidRecipient   = errors.New("invalid recipient address")
	ErrBuildFailed        = errors.New("failed to build transaction")
)

const BUILDER_SERVICE_NAME = "BuilderService"

// Call is an unsigned contract invocation.
type Call struct {
	To    common.Address
	Data  []byte
	Value *big.Int
}

// Msg is the eth_call / eth_estimateGas form of the call sent by from.
func (c *Call) Msg(from common.Address) ethereum.CallMsg {
	to := c.To
	return ethereum.CallMsg{From: from, To: &to, Data: c.Data, Value: c.Value}
}

// BuilderService encodes venue calls and assembles transactions.
type BuilderService struct {
	caller   bind.ContractCaller
	chainID  *big.Int
	v2Router common.Address
	v3Router common.Address
}

// NewBuilderService creates the builder. v3Router may be the zero address when the concentrated
// liquidity venue is not configured.
func NewBuilderService(caller bind.ContractCaller, chainID *big.Int, v2Router, v3Router common.Address) *BuilderService {
	return &BuilderService{
		caller:   caller,
		chainID:  new(big.Int).Set(chainID),
		v2Router: v2Router,
		v3Router: v3Router,
	}
}

func (svc *BuilderService) ID() string {
	return BUILDER_SERVICE_NAME
}

func (svc *BuilderService) ChainID() *big.Int {
	return new(big.Int).Set(svc.chainID)
}

// Spender is the contract that pulls the input token for routes of kind: the router of
// the venue that executes them.
func (svc *BuilderService) Spender(kind domain.RouteKind) (common.Address, error) {
	switch kind {
	case domain.RouteDirectV2, domain.RouteTwoHopV2:
		return svc.v2Router, nil
	case domain.RouteSingleV3:
		if svc.v3Router == (common.Address{}) {
			return common.Address{}, ErrVenueNotConfigured
		}
		return svc.v3Router, nil
	}
	return common.Address{}, fmt.Errorf("%w: %s", ErrUnsupportedRoute, kind)
}

// BuildSwapCall encodes the venue call that executes route for intent, paying at least minOut.
func (svc *BuilderService) BuildSwapCall(route domain.Route, intent *domain.SwapIntent, minOut *big.Int) (*Call, error) {
	if intent.Recipient == (common.Address{}) {
		return nil, ErrInvalidRecipient
	}
	deadline := big.NewInt(intent.Deadline)

	switch r := route.(type) {
	case *domain.DirectV2Route, *domain.TwoHopV2Route:
		data, err := blockchain.V2RouterABI.Pack("swapExactTokensForTokens",
			intent.AmountIn, minOut, r.Path(), intent.Recipient, deadline)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBuildFailed, err)
		}
		return &Call{To: svc.v2Router, Data: data, Value: new(big.Int)}, nil

	case *domain.SingleV3Route:
		if svc.v3Router == (common.Address{}) {
			return nil, ErrVenueNotConfigured
		}
		params := blockchain.ExactInputSingleParams{
			TokenIn:           r.TokenIn,
			TokenOut:          r.TokenOut,
			Fee:               new(big.Int).SetUint64(uint64(r.Fee)),
			Recipient:         intent.Recipient,
			Deadline:          deadline,
			AmountIn:          intent.AmountIn,
			AmountOutMinimum:  minOut,
			SqrtPriceLimitX96: new(big.Int),
		}
		data, err := blockchain.V3RouterABI.Pack("exactInputSingle", params)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBuildFailed, err)
		}
		return &Call{To: svc.v3Router, Data: data, Value: new(big.Int)}, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedRoute, route)
}

// BuildApproveCall encodes approve(spender, amount) on token.
func (svc *BuilderService) BuildApproveCall(token, spender common.Address, amount *big.Int) (*Call, error) {
	data, err := blockchain.ERC20ABI.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBuildFailed, err)
	}
	return &Call{To: token, Data: data, Value: new(big.Int)}, nil
}

// BuildTransaction assembles the unsigned EIP-1559 transaction.
func (svc *BuilderService) BuildTransaction(call *Call, nonce uint64, cfg *priority.PriorityConfig) *types.Transaction {
	to := call.To
	value := call.Value
	if value == nil {
		value = new(big.Int)
	}
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   svc.ChainID(),
		Nonce:     nonce,
		GasTipCap: cfg.TipCap,
		GasFeeCap: cfg.MaxFee,
		Gas:       cfg.GasLimit,
		To:        &to,
		Value:     value,
		Data:      call.Data,
	})
}
