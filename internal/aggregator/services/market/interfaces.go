package market

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hxuan190/swap-engine/internal/aggregator/adapters/blockchain"
	"github.com/hxuan190/swap-engine/internal/domain"
)

// PairSource reads constant-product pairs. GetPair returns the zero address when no pair exists.
type PairSource interface {
	GetPair(ctx context.Context, tokenA, tokenB common.Address) (common.Address, error)
	GetReserves(ctx context.Context, pair, tokenA, tokenB common.Address) (*domain.Reserves, error)
}

// ConcentratedQuoter prices exact-input single-pool trades on the concentrated liquidity venue.
// It returns blockchain.ErrNoQuote when the pool cannot price the trade.
type ConcentratedQuoter interface {
	QuoteExactInputSingle(ctx context.Context, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*blockchain.V3Quote, error)
}

var (
	_ PairSource         = (*blockchain.PairReader)(nil)
	_ ConcentratedQuoter = (*blockchain.Quoter)(nil)
)
