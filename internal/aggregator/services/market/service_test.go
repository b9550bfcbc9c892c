package market

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/swap-engine/internal/aggregator/adapters/blockchain"
	"github.com/hxuan190/swap-engine/internal/domain"
	"github.com/hxuan190/swap-engine/internal/services/router"
)

var (
	weth = common.HexToAddress("0x4200000000000000000000000000000000000006")
	usdc = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	dai  = common.HexToAddress("0x50C5725949A6F0c72E6C4a641F24049A917DB0Cb")
)

type fakePool struct {
	addr               common.Address
	reserve0, reserve1 *big.Int
}

type fakePairs struct {
	mu          sync.Mutex
	pools       map[pairKey]fakePool
	getPairErr  map[pairKey]error
	reservesErr map[common.Address]error
	delay       time.Duration

	getPairCalls atomic.Int32
}

func newFakePairs() *fakePairs {
	return &fakePairs{
		pools:       make(map[pairKey]fakePool),
		getPairErr:  make(map[pairKey]error),
		reservesErr: make(map[common.Address]error),
	}
}

// add registers a pool holding amountA of a and amountB of b.
func (f *fakePairs) add(a, b common.Address, amountA, amountB int64) common.Address {
	f.mu.Lock()
	defer f.mu.Unlock()
	addr := common.BigToAddress(big.NewInt(int64(len(f.pools) + 100)))
	r0, r1 := big.NewInt(amountA), big.NewInt(amountB)
	if t0, _ := domain.CanonicalOrder(a, b); t0 != a {
		r0, r1 = r1, r0
	}
	f.pools[newPairKey(a, b)] = fakePool{addr: addr, reserve0: r0, reserve1: r1}
	return addr
}

func (f *fakePairs) GetPair(ctx context.Context, a, b common.Address) (common.Address, error) {
	f.getPairCalls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.getPairErr[newPairKey(a, b)]; err != nil {
		return common.Address{}, err
	}
	return f.pools[newPairKey(a, b)].addr, nil
}

func (f *fakePairs) GetReserves(ctx context.Context, pair, a, b common.Address) (*domain.Reserves, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.reservesErr[pair]; err != nil {
		return nil, err
	}
	p := f.pools[newPairKey(a, b)]
	return domain.NewReserves(pair, a, b, p.reserve0, p.reserve1, 0), nil
}

type fakeQuoter struct {
	out   *big.Int
	err   error
	calls atomic.Int32
}

func (f *fakeQuoter) QuoteExactInputSingle(ctx context.Context, tokenIn, tokenOut common.Address, fee uint32, amountIn *big.Int) (*blockchain.V3Quote, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return &blockchain.V3Quote{AmountOut: f.out, SqrtPriceX96After: big.NewInt(1), GasEstimate: 80_000}, nil
}

func testOptions() Options {
	return Options{Bridge: weth, V2Fee: 3, V3Fee: 3000, PairCacheSize: 16}
}

func TestReadCandidatesAllRoutes(t *testing.T) {
	pairs := newFakePairs()
	pairs.add(usdc, dai, 1_000_000, 1_000_000)
	pairs.add(usdc, weth, 2_000_000, 1_000)
	pairs.add(weth, dai, 1_000, 2_000_000)
	quoter := &fakeQuoter{out: big.NewInt(990)}

	svc := NewService(pairs, quoter, testOptions())
	amountIn := big.NewInt(1_000_000)
	c := svc.ReadCandidates(context.Background(), usdc, dai, amountIn)

	require.True(t, c.Direct.Available())
	require.True(t, c.TwoHop.Available())
	require.True(t, c.V3.Available())

	want := router.QuoteConstantProduct(amountIn, big.NewInt(1_000_000), big.NewInt(1_000_000), 3)
	assert.Equal(t, 0, c.Direct.Route.AmountOut().Cmp(want))

	_, wantTwoHop := router.QuoteTwoHop(amountIn, big.NewInt(2_000_000), big.NewInt(1_000), big.NewInt(1_000), big.NewInt(2_000_000), 3)
	assert.Equal(t, 0, c.TwoHop.Route.AmountOut().Cmp(wantTwoHop))

	v3 := c.V3.Route.(*domain.SingleV3Route)
	assert.Equal(t, uint32(3000), v3.Fee)
	assert.Equal(t, uint64(80_000), v3.GasEstimate)
}

func TestReadCandidatesAbsentPairs(t *testing.T) {
	pairs := newFakePairs()
	pairs.add(usdc, weth, 2_000_000, 1_000)
	// no weth/dai pair, no direct pair

	svc := NewService(pairs, nil, testOptions())
	c := svc.ReadCandidates(context.Background(), usdc, dai, big.NewInt(1_000))

	assert.Nil(t, c.Direct.Route)
	assert.NoError(t, c.Direct.Err)
	assert.Nil(t, c.TwoHop.Route)
	assert.NoError(t, c.TwoHop.Err)
	assert.Nil(t, c.V3.Route)
	assert.NoError(t, c.V3.Err)
	assert.Nil(t, router.SelectBestRoute(c))
}

func TestReadCandidatesEmptyReserves(t *testing.T) {
	pairs := newFakePairs()
	pairs.add(usdc, dai, 0, 1_000_000)

	svc := NewService(pairs, nil, testOptions())
	c := svc.ReadCandidates(context.Background(), usdc, dai, big.NewInt(1_000))
	assert.Nil(t, c.Direct.Route)
	assert.NoError(t, c.Direct.Err)
}

func TestReadCandidatesSkipsTwoHopThroughBridge(t *testing.T) {
	pairs := newFakePairs()
	pairs.add(usdc, weth, 2_000_000, 1_000)

	svc := NewService(pairs, nil, testOptions())
	c := svc.ReadCandidates(context.Background(), usdc, weth, big.NewInt(1_000_000))
	assert.True(t, c.Direct.Available())
	assert.Nil(t, c.TwoHop.Route)
	// direct lookup only
	assert.Equal(t, int32(1), pairs.getPairCalls.Load())
}

func TestReadCandidatesIsolatesFailures(t *testing.T) {
	pairs := newFakePairs()
	pairs.add(usdc, dai, 1_000_000, 1_000_000)
	pairs.add(usdc, weth, 2_000_000, 1_000)
	pairs.add(weth, dai, 1_000, 2_000_000)
	pairs.getPairErr[newPairKey(weth, dai)] = errors.New("rpc timeout")
	quoter := &fakeQuoter{err: errors.New("rpc timeout")}

	svc := NewService(pairs, quoter, testOptions())
	c := svc.ReadCandidates(context.Background(), usdc, dai, big.NewInt(1_000))

	assert.True(t, c.Direct.Available())
	assert.Error(t, c.TwoHop.Err)
	assert.Error(t, c.V3.Err)
	assert.Len(t, c.Errs(), 2)

	best := router.SelectBestRoute(c)
	require.NotNil(t, best)
	assert.Equal(t, domain.RouteDirectV2, best.Kind())
}

func TestReadCandidatesNoQuoteIsAbsent(t *testing.T) {
	pairs := newFakePairs()
	quoter := &fakeQuoter{err: fmt.Errorf("%w: SPL", blockchain.ErrNoQuote)}

	svc := NewService(pairs, quoter, testOptions())
	c := svc.ReadCandidates(context.Background(), usdc, dai, big.NewInt(1_000))
	assert.NoError(t, c.V3.Err)
	assert.Nil(t, c.V3.Route)
}

func TestReadCandidatesRunsConcurrently(t *testing.T) {
	pairs := newFakePairs()
	pairs.add(usdc, dai, 1_000_000, 1_000_000)
	pairs.add(usdc, weth, 2_000_000, 1_000)
	pairs.add(weth, dai, 1_000, 2_000_000)
	pairs.delay = 50 * time.Millisecond

	svc := NewService(pairs, nil, testOptions())
	start := time.Now()
	c := svc.ReadCandidates(context.Background(), usdc, dai, big.NewInt(1_000_000))
	elapsed := time.Since(start)

	assert.True(t, c.Direct.Available())
	assert.True(t, c.TwoHop.Available())
	// three getPair calls, each 50ms, overlapped
	assert.Less(t, elapsed, 140*time.Millisecond)
}

func TestPairAddressCache(t *testing.T) {
	pairs := newFakePairs()
	pairs.add(usdc, dai, 1_000_000, 1_000_000)

	svc := NewService(pairs, nil, Options{Bridge: weth, V2Fee: 3, PairCacheSize: 16})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = svc.ReadCandidates(ctx, usdc, dai, big.NewInt(1_000))
		_ = svc.ReadCandidates(ctx, dai, usdc, big.NewInt(1_000))
	}
	// usdc/dai resolved once; the missing bridge pairs are asked every time
	calls := pairs.getPairCalls.Load()
	assert.Equal(t, int32(1+6*2), calls)
}

func TestBoundedLRUCacheEviction(t *testing.T) {
	c := NewBoundedLRUCache[int, string](2)
	assert.False(t, c.Set(1, "a"))
	assert.False(t, c.Set(2, "b"))

	_, ok := c.Get(1) // 1 becomes most recent
	require.True(t, ok)

	assert.True(t, c.Set(3, "c"))
	_, ok = c.Get(2)
	assert.False(t, ok, "least recently used entry should be evicted")
	v, ok := c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "a", v)
	assert.Equal(t, 2, c.Size())
}
