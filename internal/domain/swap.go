package domain

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	DefaultSlippageBps uint16 = 50
	MaxSlippageBps     uint16 = 5000

	// Slippage presets offered to users
	SlippageLowBps    uint16 = 10
	SlippageMediumBps uint16 = 50
	SlippageHighBps   uint16 = 100

	DefaultDeadlineMinutes = 20
	MaxDeadlineMinutes     = 120
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrSameToken          = errors.New("input and output token must differ")
	ErrSlippageOutOfRange = errors.New("slippage must be between 0 and 5000 bps")
	ErrDeadlineOutOfRange = errors.New("deadline must be between 1 and 120 minutes")
)

// SwapIntent is a validated, immutable request to swap an exact input amount.
type SwapIntent struct {
	TokenIn     common.Address
	TokenOut    common.Address
	AmountIn    *big.Int
	SlippageBps uint16
	Deadline    int64
	Recipient   common.Address
}

// NewSwapIntent validates the user inputs and fixes the deadline to now + deadlineMinutes.
func NewSwapIntent(
	tokenIn, tokenOut common.Address,
	amountIn *big.Int,
	slippageBps uint16,
	deadlineMinutes int,
	recipient common.Address,
	now time.Time,
) (*SwapIntent, error) {
	if tokenIn == tokenOut {
		return nil, ErrSameToken
	}
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("%w: must be positive", ErrInvalidAmount)
	}
	if err := ValidateSlippageBps(slippageBps); err != nil {
		return nil, err
	}
	if err := ValidateDeadlineMinutes(deadlineMinutes); err != nil {
		return nil, err
	}

	return &SwapIntent{
		TokenIn:     tokenIn,
		TokenOut:    tokenOut,
		AmountIn:    new(big.Int).Set(amountIn),
		SlippageBps: slippageBps,
		Deadline:    now.Add(time.Duration(deadlineMinutes) * time.Minute).Unix(),
		Recipient:   recipient,
	}, nil
}

func ValidateSlippageBps(bps uint16) error {
	if bps > MaxSlippageBps {
		return fmt.Errorf("%w: got %d", ErrSlippageOutOfRange, bps)
	}
	return nil
}

func ValidateDeadlineMinutes(minutes int) error {
	if minutes <= 0 || minutes > MaxDeadlineMinutes {
		return fmt.Errorf("%w: got %d", ErrDeadlineOutOfRange, minutes)
	}
	return nil
}

// SimulationResult is the outcome of an eth_call pre-flight of a transaction.
type SimulationResult struct {
	Success      bool   `json:"success"`
	Error        string `json:"error,omitempty"`
	RevertReason string `json:"revertReason,omitempty"`
	GasEstimate  uint64 `json:"gasEstimate,omitempty"`

	InsufficientFunds bool `json:"insufficientFunds"`
	SlippageExceeded  bool `json:"slippageExceeded"`
	DeadlineExpired   bool `json:"deadlineExpired"`
}
