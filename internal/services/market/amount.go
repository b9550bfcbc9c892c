package market

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/hxuan190/swap-engine/internal/domain"
)

var ten = big.NewInt(10)

// ParseAmount converts a user-typed decimal string into raw token units.
// It accepts digits with at most one '.' separator and no more fractional digits than the
// token has decimals. Signs, exponents, grouping characters and whitespace inside the
// number are rejected.
func ParseAmount(s string, decimals uint8) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", domain.ErrInvalidAmount)
	}
	if strings.Count(s, ".") > 1 {
		return nil, fmt.Errorf("%w: more than one decimal separator in %q", domain.ErrInvalidAmount, s)
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("%w: no digits in %q", domain.ErrInvalidAmount, s)
	}
	for _, part := range []string{whole, frac} {
		for _, c := range part {
			if c < '0' || c > '9' {
				return nil, fmt.Errorf("%w: non-numeric character %q in %q", domain.ErrInvalidAmount, c, s)
			}
		}
	}
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("%w: %q has more than %d fractional digits", domain.ErrInvalidAmount, s, decimals)
	}

	digits := whole + frac + strings.Repeat("0", int(decimals)-len(frac))
	raw, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidAmount, s)
	}
	return raw, nil
}

// FormatAmount renders raw token units as a decimal string with trailing zeros trimmed.
func FormatAmount(raw *big.Int, decimals uint8) string {
	if raw == nil {
		return "0"
	}
	neg := raw.Sign() < 0
	abs := new(big.Int).Abs(raw)

	unit := new(big.Int).Exp(ten, big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(abs, unit, new(big.Int))

	out := whole.String()
	if decimals > 0 && frac.Sign() > 0 {
		fracStr := frac.String()
		fracStr = strings.Repeat("0", int(decimals)-len(fracStr)) + fracStr
		out += "." + strings.TrimRight(fracStr, "0")
	}
	if neg {
		out = "-" + out
	}
	return out
}
