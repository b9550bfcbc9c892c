package priority

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/swap-engine/internal/aggregator/adapters/blockchain/blockchaintest"
)

type staticBaseFee struct {
	fee *big.Int
	err error
}

func (s staticBaseFee) BaseFee(context.Context) (*big.Int, error) {
	return s.fee, s.err
}

func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000))
}

// TestGetOptimalFeeFromHistory tests that the median of recent tips is used and maxFee covers two base fees
func TestGetOptimalFeeFromHistory(t *testing.T) {
	backend := blockchaintest.NewBackend()
	backend.Rewards = []*big.Int{gwei(1), gwei(3), gwei(2), big.NewInt(0)}

	calc := NewFeeCalculator(backend, staticBaseFee{fee: gwei(10)})
	res := calc.GetOptimalFee(context.Background(), UrgencyHigh)

	assert.Equal(t, 0, res.TipCap.Cmp(gwei(2)))
	assert.Equal(t, 0, res.MaxFee.Cmp(gwei(22)))
	assert.Equal(t, 90, res.Percentile)
	assert.Equal(t, 3, res.SampleCount)
}

// TestGetOptimalFeeFallbacks tests the suggestion and default paths
func TestGetOptimalFeeFallbacks(t *testing.T) {
	t.Run("empty history uses scaled suggestion", func(t *testing.T) {
		backend := blockchaintest.NewBackend()
		backend.TipCap = gwei(2)
		calc := NewFeeCalculator(backend, staticBaseFee{fee: gwei(1)})

		res := calc.GetOptimalFee(context.Background(), UrgencyExtreme)
		assert.Equal(t, 0, res.TipCap.Cmp(gwei(6)))
		assert.Zero(t, res.SampleCount)
	})

	t.Run("node down uses defaults", func(t *testing.T) {
		backend := blockchaintest.NewBackend()
		backend.HistoryErr = errors.New("down")
		backend.TipCapErr = errors.New("down")
		calc := NewFeeCalculator(backend, staticBaseFee{err: errors.New("down")})

		res := calc.GetOptimalFee(context.Background(), UrgencyMedium)
		assert.Equal(t, 0, res.TipCap.Cmp(DefaultTips[UrgencyMedium]))
		want := new(big.Int).Add(new(big.Int).Mul(DefaultBaseFee, big.NewInt(2)), DefaultTips[UrgencyMedium])
		assert.Equal(t, 0, res.MaxFee.Cmp(want))
	})

	t.Run("tip floor", func(t *testing.T) {
		backend := blockchaintest.NewBackend()
		backend.Rewards = []*big.Int{big.NewInt(5)}
		calc := NewFeeCalculator(backend, staticBaseFee{fee: big.NewInt(100)})

		res := calc.GetOptimalFee(context.Background(), UrgencyLow)
		assert.Equal(t, 0, res.TipCap.Cmp(MinTipCap))
	})
}

func TestPercentilePerUrgency(t *testing.T) {
	assert.Equal(t, 50, getPercentileForUrgency(UrgencyLow))
	assert.Equal(t, 75, getPercentileForUrgency(UrgencyMedium))
	assert.Equal(t, 90, getPercentileForUrgency(UrgencyHigh))
	assert.Equal(t, 99, getPercentileForUrgency(UrgencyExtreme))
}

func TestParseUrgency(t *testing.T) {
	for in, want := range map[string]Urgency{"low": UrgencyLow, "": UrgencyMedium, "HIGH": UrgencyHigh, "extreme": UrgencyExtreme} {
		got, err := ParseUrgency(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseUrgency("ludicrous")
	assert.Error(t, err)
}

// TestEstimateGas tests the 20% buffer, the cap and the default on failure
func TestEstimateGas(t *testing.T) {
	backend := blockchaintest.NewBackend()
	est := NewGasEstimator(backend)

	backend.Gas = 100_000
	res := est.EstimateGas(context.Background(), ethereum.CallMsg{}, DefaultSwapGas)
	assert.Equal(t, uint64(120_000), res.WithBuffer)
	assert.False(t, res.Defaulted)

	backend.Gas = 2_900_000
	res = est.EstimateGas(context.Background(), ethereum.CallMsg{}, DefaultSwapGas)
	assert.Equal(t, uint64(MaxGasLimit), res.WithBuffer)

	backend.GasErr = errors.New("execution reverted")
	res = est.EstimateGas(context.Background(), ethereum.CallMsg{}, DefaultApproveGas)
	assert.Equal(t, uint64(DefaultApproveGas), res.WithBuffer)
	assert.True(t, res.Defaulted)
}

func TestGetPriorityConfig(t *testing.T) {
	backend := blockchaintest.NewBackend()
	backend.Gas = 100_000
	backend.Rewards = []*big.Int{gwei(1)}

	svc := NewService(backend, staticBaseFee{fee: gwei(1)})
	cfg := svc.GetPriorityConfig(context.Background(), ethereum.CallMsg{}, DefaultSwapGas, UrgencyMedium)

	assert.Equal(t, uint64(120_000), cfg.GasLimit)
	assert.Equal(t, 0, cfg.MaxFee.Cmp(gwei(3)))
	assert.Equal(t, 0, cfg.MaxCost.Cmp(new(big.Int).Mul(gwei(3), big.NewInt(120_000))))
}
