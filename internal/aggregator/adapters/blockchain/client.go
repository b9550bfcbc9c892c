package blockchain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog/log"
)

var (
	ErrReverted    = errors.New("execution reverted")
	ErrEmptyResult = errors.New("contract call returned no data")
)

// ChainClient is the subset of the node API the engine uses. *ethclient.Client satisfies it.
type ChainClient interface {
	bind.ContractCaller
	bind.DeployBackend

	ChainID(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	FeeHistory(ctx context.Context, blockCount uint64, lastBlock *big.Int, rewardPercentiles []float64) (*ethereum.FeeHistory, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// Dial connects to the JSON-RPC endpoint.
func Dial(ctx context.Context, url string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc %s: %w", url, err)
	}
	return client, nil
}

var ErrWrongChain = errors.New("rpc endpoint serves another chain")

// CheckChainID fails when the node's chain id is not want.
func CheckChainID(ctx context.Context, client ChainClient, want uint64) error {
	id, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to read chain id: %w", err)
	}
	if !id.IsUint64() || id.Uint64() != want {
		return fmt.Errorf("%w: got %s, want %d", ErrWrongChain, id, want)
	}
	return nil
}

// RevertError carries the decoded reason of a reverted call.
type RevertError struct {
	Reason string
	Data   []byte
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return ErrReverted.Error()
	}
	return ErrReverted.Error() + ": " + e.Reason
}

func (e *RevertError) Unwrap() error { return ErrReverted }

// AsRevert extracts a RevertError from err, if it is one.
func AsRevert(err error) (*RevertError, bool) {
	var rev *RevertError
	if errors.As(err, &rev) {
		return rev, true
	}
	return nil, false
}

// ClassifyCallError turns node errors signalling a revert into a *RevertError. Any other
// error is returned unchanged.
func ClassifyCallError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := AsRevert(err); ok {
		return err
	}

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if hexData, ok := dataErr.ErrorData().(string); ok {
			data, decodeErr := hexutil.Decode(hexData)
			if decodeErr == nil {
				rev := &RevertError{Data: data}
				if reason, unpackErr := abi.UnpackRevert(data); unpackErr == nil {
					rev.Reason = reason
				} else {
					rev.Reason = revertReasonFromMessage(err.Error())
				}
				return rev
			}
		}
	}

	msg := err.Error()
	if strings.Contains(strings.ToLower(msg), "execution reverted") {
		return &RevertError{Reason: revertReasonFromMessage(msg)}
	}
	return err
}

func revertReasonFromMessage(msg string) string {
	lower := strings.ToLower(msg)
	idx := strings.Index(lower, "execution reverted")
	if idx < 0 {
		return ""
	}
	rest := strings.TrimSpace(msg[idx+len("execution reverted"):])
	return strings.TrimSpace(strings.TrimPrefix(rest, ":"))
}

// Caller packs, executes and unpacks read-only contract calls. Transient failures are
// retried; reverts are permanent.
type Caller struct {
	backend ChainClient
	retry   RetryConfig
}

func NewCaller(backend ChainClient, retry RetryConfig) *Caller {
	return &Caller{backend: backend, retry: retry}
}

func (c *Caller) Backend() ChainClient {
	return c.backend
}

func (c *Caller) Call(ctx context.Context, to common.Address, contract *abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	input, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}

	msg := ethereum.CallMsg{To: &to, Data: input}
	attempt := 0
	out, err := backoff.RetryWithData(func() ([]byte, error) {
		attempt++
		res, callErr := c.backend.CallContract(ctx, msg, nil)
		if callErr == nil {
			return res, nil
		}
		callErr = ClassifyCallError(callErr)
		if errors.Is(callErr, ErrReverted) || ctx.Err() != nil {
			return nil, backoff.Permanent(callErr)
		}
		log.Debug().Err(callErr).Str("method", method).Int("attempt", attempt).Msg("[chainCaller] transient read error")
		return nil, callErr
	}, c.retry.backOff(ctx))
	if err != nil {
		return nil, fmt.Errorf("%s on %s: %w", method, to.Hex(), err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s on %s: %w", method, to.Hex(), ErrEmptyResult)
	}

	values, err := contract.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	return values, nil
}
