package domain

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

type Token struct {
	Address  common.Address `json:"address"`
	Symbol   string         `json:"symbol"`
	Name     string         `json:"name"`
	Decimals uint8          `json:"decimals"`
	LogoURI  string         `json:"logoURI,omitempty"`
}

func (t Token) String() string {
	return t.Symbol
}

// AllowanceState is a fresh read of an ERC-20 allowance. It is never cached.
type AllowanceState struct {
	Token   common.Address `json:"token"`
	Owner   common.Address `json:"owner"`
	Spender common.Address `json:"spender"`
	Current *big.Int       `json:"current"`
}

// Covers reports whether the allowance already covers amount. A zero amount needs no approval.
func (a AllowanceState) Covers(amount *big.Int) bool {
	if amount == nil || amount.Sign() <= 0 {
		return true
	}
	if a.Current == nil {
		return false
	}
	return a.Current.Cmp(amount) >= 0
}
