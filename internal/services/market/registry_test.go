package market

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/swap-engine/internal/domain"
)

func TestTokenRegistryResolve(t *testing.T) {
	r := NewDefaultTokenRegistry()

	tests := []struct {
		name   string
		id     string
		symbol string
	}{
		{"symbol", "USDC", "USDC"},
		{"lower symbol", "weth", "WETH"},
		{"mixed symbol with spaces", "  Dai ", "DAI"},
		{"checksummed address", "0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913", "USDC"},
		{"lower address", "0x833589fcd6edb6e08f4c7c32d4f71b54bda02913", "USDC"},
		{"upper address", "0x50C5725949A6F0C72E6C4A641F24049A917DB0CB", "DAI"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tok, err := r.Resolve(tt.id)
			require.NoError(t, err)
			assert.Equal(t, tt.symbol, tok.Symbol)
		})
	}

	usdc, err := r.Resolve("usdc")
	require.NoError(t, err)
	assert.Equal(t, uint8(6), usdc.Decimals)

	for _, id := range []string{"BTC", "", "0x0000000000000000000000000000000000000001", "0x1234"} {
		_, err := r.Resolve(id)
		assert.ErrorIs(t, err, ErrUnknownToken, "id=%q", id)
	}

	_, err = r.ResolveAddress(common.HexToAddress("0x4200000000000000000000000000000000000006"))
	require.NoError(t, err)
}

func TestTokenRegistryRejectsBadLists(t *testing.T) {
	good := domain.Token{Address: common.Address{1}, Symbol: "AAA", Decimals: 6}

	_, err := NewTokenRegistry(good, domain.Token{Address: common.Address{1}, Symbol: "BBB", Decimals: 6})
	assert.ErrorIs(t, err, ErrDuplicateToken)

	_, err = NewTokenRegistry(good, domain.Token{Address: common.Address{2}, Symbol: "aaa", Decimals: 6})
	assert.ErrorIs(t, err, ErrDuplicateToken)

	_, err = NewTokenRegistry(domain.Token{Address: common.Address{3}, Symbol: "X", Decimals: 19})
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewTokenRegistry(domain.Token{Symbol: "NOADDR", Decimals: 6})
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenRegistryListOrder(t *testing.T) {
	list := NewDefaultTokenRegistry().List()
	require.Len(t, list, 3)
	assert.Equal(t, "WETH", list[0].Symbol)
	assert.Equal(t, "USDC", list[1].Symbol)
	assert.Equal(t, "DAI", list[2].Symbol)

	// callers get a copy
	list[0].Symbol = "MUTATED"
	assert.Equal(t, "WETH", NewDefaultTokenRegistry().List()[0].Symbol)
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in       string
		decimals uint8
		want     string
	}{
		{"100", 6, "100000000"},
		{"1.5", 18, "1500000000000000000"},
		{"0.000001", 6, "1"},
		{".5", 6, "500000"},
		{"5.", 6, "5000000"},
		{"007", 0, "7"},
		{"0", 6, "0"},
		{" 2.25 ", 2, "225"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAmount(tt.in, tt.decimals)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestParseAmountRejects(t *testing.T) {
	for _, in := range []string{"", ".", "1.2.3", "1,5", "abc", "-1", "+1", "1e18", "1 000", "0x10", "0.0000001", "１"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseAmount(in, 6)
			assert.ErrorIs(t, err, domain.ErrInvalidAmount)
		})
	}
}

func TestFormatAmount(t *testing.T) {
	tests := []struct {
		raw      *big.Int
		decimals uint8
		want     string
	}{
		{big.NewInt(100_000_000), 6, "100"},
		{big.NewInt(1_500_000), 6, "1.5"},
		{big.NewInt(1), 6, "0.000001"},
		{big.NewInt(0), 18, "0"},
		{big.NewInt(42), 0, "42"},
		{big.NewInt(-2_500_000), 6, "-2.5"},
		{nil, 6, "0"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatAmount(tt.raw, tt.decimals))
	}

	// parse inverts format for the fixture used across the engine
	raw, err := ParseAmount(FormatAmount(big.NewInt(48453000589428254), 18), 18)
	require.NoError(t, err)
	assert.Equal(t, "48453000589428254", raw.String())
}
