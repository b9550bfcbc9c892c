package priority

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
)

// Service provides fee estimation and gas limits
type Service struct {
	gasEstimator  *GasEstimator
	feeCalculator *FeeCalculator
}

type chainSource interface {
	feeHistorySource
	gasEstimateSource
}

func NewService(client chainSource, head baseFeeSource) *Service {
	return &Service{
		gasEstimator:  NewGasEstimator(client),
		feeCalculator: NewFeeCalculator(client, head),
	}
}

// PriorityConfig holds the computed fee settings for a transaction
type PriorityConfig struct {
	GasLimit  uint64
	TipCap    *big.Int
	MaxFee    *big.Int
	MaxCost   *big.Int // MaxFee * GasLimit
	Urgency   Urgency
	Defaulted bool // gas limit is a default, not an estimate
}

// GetPriorityConfig estimates gas for msg and calculates the fees for urgency.
func (s *Service) GetPriorityConfig(ctx context.Context, msg ethereum.CallMsg, fallbackGas uint64, urgency Urgency) *PriorityConfig {
	gas := s.gasEstimator.EstimateGas(ctx, msg, fallbackGas)
	fee := s.feeCalculator.GetOptimalFee(ctx, urgency)

	return &PriorityConfig{
		GasLimit:  gas.WithBuffer,
		TipCap:    fee.TipCap,
		MaxFee:    fee.MaxFee,
		MaxCost:   fee.GetFeeForGas(gas.WithBuffer),
		Urgency:   urgency,
		Defaulted: gas.Defaulted,
	}
}
