package router

import (
	"math/big"

	"github.com/hxuan190/swap-engine/internal/domain"
)

// Price impact thresholds in basis points (bps)
const (
	PriceImpactLow      uint16 = 100  // 1% - Low impact
	PriceImpactModerate uint16 = 300  // 3% - Moderate impact
	PriceImpactHigh     uint16 = 500  // 5% - High impact
	PriceImpactExtreme  uint16 = 1000 // 10% - Extreme impact
)

// PriceImpactSeverity represents the severity level of price impact
type PriceImpactSeverity string

const (
	SeverityNone     PriceImpactSeverity = "none"     // < 1%
	SeverityLow      PriceImpactSeverity = "low"      // 1-3%
	SeverityModerate PriceImpactSeverity = "moderate" // 3-5%
	SeverityHigh     PriceImpactSeverity = "high"     // 5-10%
	SeverityExtreme  PriceImpactSeverity = "extreme"  // > 10%
)

// GetPriceImpactSeverity returns the severity level based on price impact bps
func GetPriceImpactSeverity(priceImpactBps uint16) PriceImpactSeverity {
	switch {
	case priceImpactBps < PriceImpactLow:
		return SeverityNone
	case priceImpactBps < PriceImpactModerate:
		return SeverityLow
	case priceImpactBps < PriceImpactHigh:
		return SeverityModerate
	case priceImpactBps < PriceImpactExtreme:
		return SeverityHigh
	default:
		return SeverityExtreme
	}
}

// GetPriceImpactWarning returns a user-friendly warning message based on impact
func GetPriceImpactWarning(priceImpactBps uint16) string {
	switch GetPriceImpactSeverity(priceImpactBps) {
	case SeverityLow:
		return "Low price impact"
	case SeverityModerate:
		return "Moderate price impact - consider reducing trade size"
	case SeverityHigh:
		return "High price impact - you may receive significantly less tokens"
	case SeverityExtreme:
		return "EXTREME price impact - this trade will severely move the pool price"
	default:
		return ""
	}
}

type hopReserves struct {
	in, out *big.Int
}

// CalculatePriceImpactV2 compares the realised output of a constant-product path with the
// output at the pools' spot prices, fees excluded.
//
//	ideal  = amountIn * prod((1000 - fee) * reserveOut) / prod(1000 * reserveIn)
//	impact = (ideal - amountOut) / ideal * 10000
func CalculatePriceImpactV2(amountIn, amountOut *big.Int, fee uint16, hops ...hopReserves) uint16 {
	if !positive(amountIn) || amountOut == nil || len(hops) == 0 || fee >= FeeDenominator {
		return 0
	}

	idealNum := new(big.Int).Set(amountIn)
	idealDen := big.NewInt(1)
	feeMultiplier := big.NewInt(int64(FeeDenominator - fee))
	for _, h := range hops {
		if !positive(h.in) || !positive(h.out) {
			return 0
		}
		idealNum.Mul(idealNum, feeMultiplier)
		idealNum.Mul(idealNum, h.out)
		idealDen.Mul(idealDen, FEE_DENOM)
		idealDen.Mul(idealDen, h.in)
	}

	// compare amountOut with idealNum/idealDen without dividing
	actual := new(big.Int).Mul(amountOut, idealDen)
	if actual.Cmp(idealNum) >= 0 {
		return 0
	}

	impact := new(big.Int).Sub(idealNum, actual)
	impact.Mul(impact, BPS_DENOM)
	impact.Quo(impact, idealNum)
	if !impact.IsUint64() || impact.Uint64() > BpsDenominator {
		return BpsDenominator
	}
	return uint16(impact.Uint64())
}

// RoutePriceImpact returns the price impact of a constant-product route. Concentrated-liquidity
// quotes carry no reserves, so ok is false for them.
func RoutePriceImpact(route domain.Route, fee uint16) (bps uint16, ok bool) {
	switch r := route.(type) {
	case *domain.DirectV2Route:
		in, out, oriented := r.Pair.Oriented(r.TokenIn)
		if !oriented {
			return 0, false
		}
		return CalculatePriceImpactV2(r.AmountIn, r.Out, fee, hopReserves{in, out}), true
	case *domain.TwoHopV2Route:
		in1, out1, ok1 := r.First.Oriented(r.TokenIn)
		in2, out2, ok2 := r.Second.Oriented(r.Bridge)
		if !ok1 || !ok2 {
			return 0, false
		}
		return CalculatePriceImpactV2(r.AmountIn, r.Out, fee, hopReserves{in1, out1}, hopReserves{in2, out2}), true
	default:
		return 0, false
	}
}
