package market

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/hxuan190/swap-engine/internal/aggregator/adapters/blockchain"
	"github.com/hxuan190/swap-engine/internal/domain"
	"github.com/hxuan190/swap-engine/internal/metrics"
	"github.com/hxuan190/swap-engine/internal/services"
	"github.com/hxuan190/swap-engine/internal/services/router"
)

const (
	ServiceName = "MarketService"

	defaultPairCacheSize = 1024
)

const (
	outcomeOK     = "ok"
	outcomeAbsent = "absent"
	outcomeError  = "error"
)

type Options struct {
	// Bridge is the intermediate asset of two-hop routes.
	Bridge common.Address
	// V2Fee is the constant-product fee in per mille.
	V2Fee uint16
	// V3Fee is the concentrated liquidity fee tier in hundredths of a bip.
	V3Fee         uint32
	PairCacheSize int
}

// Service reads every candidate route for a trade. The three lookups run concurrently and
// a failure in one never cancels the others.
type Service struct {
	logger *services.ServiceLogger
	pairs  PairSource
	quoter ConcentratedQuoter
	opts   Options

	// Pair contracts never move once deployed, so only non-zero addresses are kept.
	pairCache *BoundedLRUCache[pairKey, common.Address]
}

type pairKey struct {
	token0, token1 common.Address
}

func newPairKey(a, b common.Address) pairKey {
	t0, t1 := domain.CanonicalOrder(a, b)
	return pairKey{token0: t0, token1: t1}
}

// NewService builds the reader. quoter may be nil, in which case only constant-product
// routes are read.
func NewService(pairs PairSource, quoter ConcentratedQuoter, opts Options) *Service {
	if opts.PairCacheSize <= 0 {
		opts.PairCacheSize = defaultPairCacheSize
	}
	svc := &Service{
		pairs:     pairs,
		quoter:    quoter,
		opts:      opts,
		pairCache: NewBoundedLRUCache[pairKey, common.Address](opts.PairCacheSize),
	}
	svc.logger = services.NewServiceLogger(svc)
	return svc
}

func (svc *Service) ID() string {
	return ServiceName
}

func (svc *Service) HasConcentratedVenue() bool {
	return svc.quoter != nil
}

// ReadCandidates fetches the direct, two-hop and concentrated liquidity candidates for
// selling amountIn of tokenIn for tokenOut.
func (svc *Service) ReadCandidates(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) domain.Candidates {
	candidates := domain.Candidates{
		Direct: domain.Candidate{Kind: domain.RouteDirectV2},
		TwoHop: domain.Candidate{Kind: domain.RouteTwoHopV2},
		V3:     domain.Candidate{Kind: domain.RouteSingleV3},
	}

	// No shared cancellation: each lookup reports into its own slot.
	var g errgroup.Group
	g.Go(func() error {
		candidates.Direct.Route, candidates.Direct.Err = svc.readDirect(ctx, tokenIn, tokenOut, amountIn)
		return nil
	})
	g.Go(func() error {
		candidates.TwoHop.Route, candidates.TwoHop.Err = svc.readTwoHop(ctx, tokenIn, tokenOut, amountIn)
		return nil
	})
	g.Go(func() error {
		candidates.V3.Route, candidates.V3.Err = svc.readConcentrated(ctx, tokenIn, tokenOut, amountIn)
		return nil
	})
	_ = g.Wait()

	for _, c := range candidates.All() {
		outcome := outcomeOK
		switch {
		case c.Err != nil:
			outcome = outcomeError
			svc.logger.Warn().Err(c.Err).Str("route", c.Kind.String()).Msg("[MarketService] candidate read failed")
		case !c.Available():
			outcome = outcomeAbsent
		}
		metrics.CandidateOutcomes.WithLabelValues(c.Kind.String(), outcome).Inc()
	}
	return candidates
}

// pairAddress resolves the pair through the cache. The zero address means no pair.
func (svc *Service) pairAddress(ctx context.Context, tokenA, tokenB common.Address) (common.Address, error) {
	key := newPairKey(tokenA, tokenB)
	if addr, ok := svc.pairCache.Get(key); ok {
		metrics.PairCacheHits.Inc()
		return addr, nil
	}
	metrics.PairCacheMisses.Inc()

	addr, err := svc.pairs.GetPair(ctx, tokenA, tokenB)
	if err != nil {
		metrics.ChainReads.WithLabelValues("getPair", outcomeError).Inc()
		return common.Address{}, err
	}
	metrics.ChainReads.WithLabelValues("getPair", outcomeOK).Inc()
	if addr != (common.Address{}) {
		svc.pairCache.Set(key, addr)
		metrics.PairCacheSize.Set(float64(svc.pairCache.Size()))
	}
	return addr, nil
}

// readPool returns the reserves of the tokenA/tokenB pair, or nil when the pair does not
// exist or is empty.
func (svc *Service) readPool(ctx context.Context, tokenA, tokenB common.Address) (*domain.Reserves, error) {
	pair, err := svc.pairAddress(ctx, tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	if pair == (common.Address{}) {
		return nil, nil
	}

	reserves, err := svc.pairs.GetReserves(ctx, pair, tokenA, tokenB)
	if err != nil {
		metrics.ChainReads.WithLabelValues("getReserves", outcomeError).Inc()
		return nil, err
	}
	metrics.ChainReads.WithLabelValues("getReserves", outcomeOK).Inc()
	if reserves.IsEmpty() {
		return nil, nil
	}
	return reserves, nil
}

func (svc *Service) readDirect(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (domain.Route, error) {
	pool, err := svc.readPool(ctx, tokenIn, tokenOut)
	if err != nil || pool == nil {
		return nil, err
	}
	reserveIn, reserveOut, ok := pool.Oriented(tokenIn)
	if !ok {
		return nil, fmt.Errorf("pair %s does not hold %s", pool.Pair.Hex(), tokenIn.Hex())
	}
	return &domain.DirectV2Route{
		TokenIn:  tokenIn,
		TokenOut: tokenOut,
		AmountIn: amountIn,
		Out:      router.QuoteExactIn(amountIn, reserveIn, reserveOut, svc.opts.V2Fee),
		Pair:     pool,
	}, nil
}

func (svc *Service) readTwoHop(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (domain.Route, error) {
	bridge := svc.opts.Bridge
	if bridge == (common.Address{}) || tokenIn == bridge || tokenOut == bridge {
		return nil, nil
	}

	var first, second *domain.Reserves
	var g errgroup.Group
	g.Go(func() (err error) {
		first, err = svc.readPool(ctx, tokenIn, bridge)
		return err
	})
	g.Go(func() (err error) {
		second, err = svc.readPool(ctx, bridge, tokenOut)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if first == nil || second == nil {
		return nil, nil
	}

	firstIn, firstOut, ok1 := first.Oriented(tokenIn)
	secondIn, secondOut, ok2 := second.Oriented(bridge)
	if !ok1 || !ok2 {
		return nil, errors.New("bridge pairs do not hold the expected tokens")
	}
	mid, out := router.QuoteTwoHop(amountIn, firstIn, firstOut, secondIn, secondOut, svc.opts.V2Fee)
	return &domain.TwoHopV2Route{
		TokenIn:   tokenIn,
		Bridge:    bridge,
		TokenOut:  tokenOut,
		AmountIn:  amountIn,
		MidAmount: mid,
		Out:       out,
		First:     first,
		Second:    second,
	}, nil
}

func (svc *Service) readConcentrated(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (domain.Route, error) {
	if svc.quoter == nil {
		return nil, nil
	}
	quote, err := svc.quoter.QuoteExactInputSingle(ctx, tokenIn, tokenOut, svc.opts.V3Fee, amountIn)
	if errors.Is(err, blockchain.ErrNoQuote) {
		metrics.ChainReads.WithLabelValues("quoteExactInputSingle", outcomeAbsent).Inc()
		return nil, nil
	}
	if err != nil {
		metrics.ChainReads.WithLabelValues("quoteExactInputSingle", outcomeError).Inc()
		return nil, err
	}
	metrics.ChainReads.WithLabelValues("quoteExactInputSingle", outcomeOK).Inc()
	return &domain.SingleV3Route{
		TokenIn:           tokenIn,
		TokenOut:          tokenOut,
		Fee:               svc.opts.V3Fee,
		AmountIn:          amountIn,
		Out:               quote.AmountOut,
		SqrtPriceX96After: quote.SqrtPriceX96After,
		GasEstimate:       quote.GasEstimate,
	}, nil
}
