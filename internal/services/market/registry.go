package market

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hxuan190/swap-engine/internal/domain"
)

const MaxTokenDecimals = 18

var (
	ErrUnknownToken   = errors.New("unknown token")
	ErrDuplicateToken = errors.New("duplicate token")
	ErrInvalidToken   = errors.New("invalid token")
)

// BaseTokens is the static token list of the Base network.
var BaseTokens = []domain.Token{
	{
		Address:  common.HexToAddress("0x4200000000000000000000000000000000000006"),
		Symbol:   "WETH",
		Name:     "Wrapped Ether",
		Decimals: 18,
	},
	{
		Address:  common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"),
		Symbol:   "USDC",
		Name:     "USD Coin",
		Decimals: 6,
	},
	{
		Address:  common.HexToAddress("0x50C5725949A6F0c72E6C4a641F24049A917DB0Cb"),
		Symbol:   "DAI",
		Name:     "DAI Stablecoin",
		Decimals: 18,
	},
}

// TokenRegistry resolves tokens by address or symbol. It is filled once at start-up and
// read-only afterwards, so lookups need no locking.
type TokenRegistry struct {
	tokens    []domain.Token
	byAddress map[common.Address]int
	bySymbol  map[string]int
}

func NewTokenRegistry(tokens ...domain.Token) (*TokenRegistry, error) {
	r := &TokenRegistry{
		tokens:    make([]domain.Token, 0, len(tokens)),
		byAddress: make(map[common.Address]int, len(tokens)),
		bySymbol:  make(map[string]int, len(tokens)),
	}
	for _, t := range tokens {
		if err := r.add(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// NewDefaultTokenRegistry returns the registry of BaseTokens.
func NewDefaultTokenRegistry() *TokenRegistry {
	r, err := NewTokenRegistry(BaseTokens...)
	if err != nil {
		panic(fmt.Sprintf("invalid built-in token list: %v", err))
	}
	return r
}

func (r *TokenRegistry) add(t domain.Token) error {
	if t.Address == (common.Address{}) || t.Symbol == "" {
		return fmt.Errorf("%w: address and symbol are required", ErrInvalidToken)
	}
	if t.Decimals > MaxTokenDecimals {
		return fmt.Errorf("%w: %s has %d decimals", ErrInvalidToken, t.Symbol, t.Decimals)
	}

	symbol := strings.ToUpper(t.Symbol)
	if _, ok := r.byAddress[t.Address]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateToken, t.Address.Hex())
	}
	if _, ok := r.bySymbol[symbol]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateToken, t.Symbol)
	}

	r.tokens = append(r.tokens, t)
	r.byAddress[t.Address] = len(r.tokens) - 1
	r.bySymbol[symbol] = len(r.tokens) - 1
	return nil
}

// Resolve looks a token up by 0x address or by symbol, both case-insensitive.
func (r *TokenRegistry) Resolve(addressOrSymbol string) (domain.Token, error) {
	id := strings.TrimSpace(addressOrSymbol)
	if common.IsHexAddress(id) {
		if i, ok := r.byAddress[common.HexToAddress(id)]; ok {
			return r.tokens[i], nil
		}
		return domain.Token{}, fmt.Errorf("%w: %s", ErrUnknownToken, id)
	}
	if i, ok := r.bySymbol[strings.ToUpper(id)]; ok {
		return r.tokens[i], nil
	}
	return domain.Token{}, fmt.Errorf("%w: %q", ErrUnknownToken, id)
}

// ResolveAddress is Resolve for an already parsed address.
func (r *TokenRegistry) ResolveAddress(addr common.Address) (domain.Token, error) {
	if i, ok := r.byAddress[addr]; ok {
		return r.tokens[i], nil
	}
	return domain.Token{}, fmt.Errorf("%w: %s", ErrUnknownToken, addr.Hex())
}

// List returns the tokens in registration order.
func (r *TokenRegistry) List() []domain.Token {
	out := make([]domain.Token, len(r.tokens))
	copy(out, r.tokens)
	return out
}
