package priority

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum"
)

// Urgency represents the priority level for a transaction
type Urgency uint8

const (
	// UrgencyLow uses the p50 tip of recent blocks
	UrgencyLow Urgency = iota
	// UrgencyMedium uses the p75 tip - normal swaps
	UrgencyMedium
	// UrgencyHigh uses the p90 tip - time-sensitive
	UrgencyHigh
	// UrgencyExtreme uses the p99 tip
	UrgencyExtreme
)

const feeHistoryBlocks = 20

var ErrUnknownUrgency = errors.New("unknown urgency")

// MinTipCap is the floor applied to any computed tip, in wei.
var MinTipCap = big.NewInt(1_000_000)

// DefaultTips are fallback tips in wei when the node gives us nothing usable.
var DefaultTips = map[Urgency]*big.Int{
	UrgencyLow:     big.NewInt(1_000_000),     // 0.001 gwei
	UrgencyMedium:  big.NewInt(10_000_000),    // 0.01 gwei
	UrgencyHigh:    big.NewInt(100_000_000),   // 0.1 gwei
	UrgencyExtreme: big.NewInt(1_000_000_000), // 1 gwei
}

// DefaultBaseFee is used when no header could be read, in wei.
var DefaultBaseFee = big.NewInt(50_000_000)

func (u Urgency) String() string {
	switch u {
	case UrgencyLow:
		return "low"
	case UrgencyMedium:
		return "medium"
	case UrgencyHigh:
		return "high"
	case UrgencyExtreme:
		return "extreme"
	default:
		return "medium"
	}
}

func ParseUrgency(s string) (Urgency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return UrgencyLow, nil
	case "", "medium":
		return UrgencyMedium, nil
	case "high":
		return UrgencyHigh, nil
	case "extreme":
		return UrgencyExtreme, nil
	}
	return UrgencyMedium, fmt.Errorf("%w %q", ErrUnknownUrgency, s)
}

type feeHistorySource interface {
	FeeHistory(ctx context.Context, blockCount uint64, lastBlock *big.Int, rewardPercentiles []float64) (*ethereum.FeeHistory, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
}

type baseFeeSource interface {
	BaseFee(ctx context.Context) (*big.Int, error)
}

// FeeCalculator derives EIP-1559 fees from recent blocks
type FeeCalculator struct {
	history feeHistorySource
	head    baseFeeSource
}

func NewFeeCalculator(history feeHistorySource, head baseFeeSource) *FeeCalculator {
	return &FeeCalculator{history: history, head: head}
}

// FeeResult holds the calculated fee information
type FeeResult struct {
	TipCap      *big.Int
	MaxFee      *big.Int
	BaseFee     *big.Int
	Urgency     Urgency
	Percentile  int
	SampleCount int
}

// GetOptimalFee picks the tip at the urgency's percentile over recent blocks and sets
// maxFee = 2*baseFee + tip. Node errors fall back to defaults rather than failing.
func (f *FeeCalculator) GetOptimalFee(ctx context.Context, urgency Urgency) *FeeResult {
	percentile := getPercentileForUrgency(urgency)

	baseFee, err := f.head.BaseFee(ctx)
	if err != nil || baseFee == nil {
		baseFee = new(big.Int).Set(DefaultBaseFee)
	}

	tip, samples := f.tipFromHistory(ctx, percentile)
	if tip == nil {
		tip = f.suggestedTip(ctx, urgency)
	}
	if tip.Cmp(MinTipCap) < 0 {
		tip = new(big.Int).Set(MinTipCap)
	}

	maxFee := new(big.Int).Mul(baseFee, big.NewInt(2))
	maxFee.Add(maxFee, tip)

	return &FeeResult{
		TipCap:      tip,
		MaxFee:      maxFee,
		BaseFee:     baseFee,
		Urgency:     urgency,
		Percentile:  percentile,
		SampleCount: samples,
	}
}

func (f *FeeCalculator) tipFromHistory(ctx context.Context, percentile int) (*big.Int, int) {
	history, err := f.history.FeeHistory(ctx, feeHistoryBlocks, nil, []float64{float64(percentile)})
	if err != nil || history == nil {
		return nil, 0
	}

	tips := make([]*big.Int, 0, len(history.Reward))
	for _, row := range history.Reward {
		if len(row) > 0 && row[0] != nil && row[0].Sign() > 0 {
			tips = append(tips, row[0])
		}
	}
	if len(tips) == 0 {
		return nil, 0
	}

	sort.Slice(tips, func(i, j int) bool { return tips[i].Cmp(tips[j]) < 0 })
	return medianOf(tips), len(tips)
}

// suggestedTip scales the node's suggestion by urgency, or uses DefaultTips.
func (f *FeeCalculator) suggestedTip(ctx context.Context, urgency Urgency) *big.Int {
	suggested, err := f.history.SuggestGasTipCap(ctx)
	if err != nil || suggested == nil || suggested.Sign() <= 0 {
		return new(big.Int).Set(DefaultTips[urgency])
	}
	num, den := urgencyScale(urgency)
	tip := new(big.Int).Mul(suggested, big.NewInt(num))
	return tip.Quo(tip, big.NewInt(den))
}

func urgencyScale(urgency Urgency) (num, den int64) {
	switch urgency {
	case UrgencyLow:
		return 1, 1
	case UrgencyHigh:
		return 3, 2
	case UrgencyExtreme:
		return 3, 1
	default:
		return 5, 4
	}
}

// getPercentileForUrgency returns the percentile to use for each urgency level
func getPercentileForUrgency(urgency Urgency) int {
	switch urgency {
	case UrgencyLow:
		return 50
	case UrgencyMedium:
		return 75
	case UrgencyHigh:
		return 90
	case UrgencyExtreme:
		return 99
	default:
		return 75
	}
}

func medianOf(sorted []*big.Int) *big.Int {
	n := len(sorted)
	if n%2 == 1 {
		return new(big.Int).Set(sorted[n/2])
	}
	sum := new(big.Int).Add(sorted[n/2-1], sorted[n/2])
	return sum.Rsh(sum, 1)
}

// GetFeeForGas is the worst-case fee for gasLimit units.
func (r *FeeResult) GetFeeForGas(gasLimit uint64) *big.Int {
	return new(big.Int).Mul(r.MaxFee, new(big.Int).SetUint64(gasLimit))
}
