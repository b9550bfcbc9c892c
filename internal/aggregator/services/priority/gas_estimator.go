package priority

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/rs/zerolog/log"
)

// Gas limits used when estimation fails
const (
	DefaultApproveGas = 60_000
	DefaultSwapGas    = 300_000
	GasBufferPercent  = 20
	MaxGasLimit       = 3_000_000
)

type gasEstimateSource interface {
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
}

// GasEstimator estimates gas limits for transactions
type GasEstimator struct {
	client gasEstimateSource
}

func NewGasEstimator(client gasEstimateSource) *GasEstimator {
	return &GasEstimator{client: client}
}

// GasEstimateResult holds the estimation result
type GasEstimateResult struct {
	Estimated  uint64 // node estimate, zero when it failed
	WithBuffer uint64 // limit to put on the transaction
	Defaulted  bool
}

// EstimateGas asks the node and adds a 20% buffer, capped at MaxGasLimit. When the node
// cannot estimate, fallback is used as is.
func (e *GasEstimator) EstimateGas(ctx context.Context, msg ethereum.CallMsg, fallback uint64) *GasEstimateResult {
	estimated, err := e.client.EstimateGas(ctx, msg)
	if err != nil || estimated == 0 {
		log.Debug().Err(err).Uint64("fallback", fallback).Msg("[GasEstimator] estimation failed, using default")
		return &GasEstimateResult{WithBuffer: fallback, Defaulted: true}
	}

	withBuffer := estimated + estimated*GasBufferPercent/100
	if withBuffer > MaxGasLimit {
		withBuffer = MaxGasLimit
	}
	return &GasEstimateResult{Estimated: estimated, WithBuffer: withBuffer}
}
