package router

import "github.com/holiman/uint256"

// QuoteConstantProductU256 is the uint256 version of QuoteConstantProduct.
// ok is false when an intermediate product overflows 256 bits; callers then fall back to big.Int.
func QuoteConstantProductU256(amountIn, reserveIn, reserveOut *uint256.Int, fee uint16) (out *uint256.Int, ok bool) {
	if amountIn.IsZero() || reserveIn.IsZero() || reserveOut.IsZero() || fee >= FeeDenominator {
		return new(uint256.Int), true
	}

	var amountInWithFee, numerator, denominator uint256.Int
	if _, overflow := amountInWithFee.MulOverflow(amountIn, uint256.NewInt(uint64(FeeDenominator-fee))); overflow {
		return nil, false
	}
	if _, overflow := numerator.MulOverflow(&amountInWithFee, reserveOut); overflow {
		return nil, false
	}
	if _, overflow := denominator.MulOverflow(reserveIn, u256FeeDenom); overflow {
		return nil, false
	}
	if _, overflow := denominator.AddOverflow(&denominator, &amountInWithFee); overflow {
		return nil, false
	}

	return new(uint256.Int).Div(&numerator, &denominator), true
}
