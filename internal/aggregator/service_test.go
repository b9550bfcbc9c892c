package aggregator

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/swap-engine/internal/adapters/persistence"
	"github.com/hxuan190/swap-engine/internal/aggregator/adapters/blockchain"
	"github.com/hxuan190/swap-engine/internal/aggregator/adapters/blockchain/blockchaintest"
	"github.com/hxuan190/swap-engine/internal/aggregator/services/executor"
	"github.com/hxuan190/swap-engine/internal/aggregator/services/market"
	"github.com/hxuan190/swap-engine/internal/config"
	"github.com/hxuan190/swap-engine/internal/domain"
	registry "github.com/hxuan190/swap-engine/internal/services/market"
	"github.com/hxuan190/swap-engine/internal/services/router"
)

const ownerKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

var (
	weth = common.HexToAddress("0x4200000000000000000000000000000000000006")
	usdc = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	dai  = common.HexToAddress("0x50C5725949A6F0c72E6C4a641F24049A917DB0Cb")

	factory  = common.HexToAddress(config.DefaultV2Factory)
	v2Router = common.HexToAddress(config.DefaultV2Router)
	v3Quoter = common.HexToAddress("0x3d4e44Eb1374240CE5F1B871ab261CD16335B76a")
	v3Router = common.HexToAddress("0x2626664c2603336E57B271c5C0b26F421741e481")
)

func e6(n int64) *big.Int { return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000)) }
func e18(n int64) *big.Int { return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000_000_000_000)) }

func testConfig(withV3 bool) config.Config {
	cfg := config.Config{
		Venue: config.VenueConfig{
			ChainID:   config.BaseChainID,
			V2Factory: factory,
			V2Router:  v2Router,
			V2Fee:     3,
			V3Fee:     3000,
			Bridge:    weth,
		},
		Swap: config.SwapConfig{
			DefaultSlippageBps:     50,
			DefaultDeadlineMinutes: 20,
			Urgency:                "medium",
			Simulate:               true,
			PairCacheSize:          64,
			MaxSessions:            16,
		},
	}
	if withV3 {
		cfg.Venue.V3Quoter = v3Quoter
		cfg.Venue.V3Router = v3Router
	}
	return cfg
}

type pool struct {
	addr               common.Address
	reserve0, reserve1 *big.Int
}

// chain scripts the factory, pairs and tokens on a blockchaintest backend.
type chain struct {
	*blockchaintest.Backend

	mu    sync.Mutex
	pools map[[2]common.Address]pool
	// onGetPair runs before every getPair answer.
	onGetPair func()
}

func newChain() *chain {
	c := &chain{Backend: blockchaintest.NewBackend(), pools: make(map[[2]common.Address]pool)}
	c.Handle(factory, blockchain.V2FactoryABI, "getPair", func(input []byte) ([]byte, error) {
		args, err := blockchain.V2FactoryABI.Methods["getPair"].Inputs.Unpack(input[4:])
		if err != nil {
			return nil, err
		}
		if c.onGetPair != nil {
			c.onGetPair()
		}
		t0, t1 := domain.CanonicalOrder(args[0].(common.Address), args[1].(common.Address))
		c.mu.Lock()
		p := c.pools[[2]common.Address{t0, t1}]
		c.mu.Unlock()
		return blockchain.V2FactoryABI.Methods["getPair"].Outputs.Pack(p.addr)
	})
	return c
}

// addPool creates a pair holding amountA of a and amountB of b.
func (c *chain) addPool(a, b common.Address, amountA, amountB *big.Int) common.Address {
	c.mu.Lock()
	defer c.mu.Unlock()
	addr := common.BigToAddress(big.NewInt(int64(0x1000 + len(c.pools))))
	t0, t1 := domain.CanonicalOrder(a, b)
	r0, r1 := amountA, amountB
	if t0 != a {
		r0, r1 = r1, r0
	}
	c.pools[[2]common.Address{t0, t1}] = pool{addr: addr, reserve0: r0, reserve1: r1}
	c.Returns(addr, blockchain.V2PairABI, "getReserves", r0, r1, uint32(1_700_000_000))
	return addr
}

func (c *chain) setAllowance(token common.Address, amount *big.Int) {
	c.Returns(token, blockchain.ERC20ABI, "allowance", amount)
}

func (c *chain) setV3Quote(out *big.Int) {
	c.Returns(v3Quoter, blockchain.QuoterV2ABI, "quoteExactInputSingle", out, big.NewInt(1), uint32(1), big.NewInt(90_000))
}

type fixture struct {
	chain   *chain
	journal *persistence.MemoryJournal
	signer  *executor.LocalSigner
	svc     *Service
}

func newFixture(t *testing.T, withV3 bool) *fixture {
	t.Helper()
	c := newChain()
	journal := persistence.NewMemoryJournal()
	signer, err := executor.NewLocalSigner(ownerKey)
	require.NoError(t, err)

	svc := NewService(testConfig(withV3), c, journal, signer)
	require.NoError(t, svc.Start())
	t.Cleanup(func() { _ = svc.Stop() })
	return &fixture{chain: c, journal: journal, signer: signer, svc: svc}
}

func (f *fixture) swapRequest(in, out, amount string) SwapRequest {
	return SwapRequest{
		QuoteRequest: QuoteRequest{Session: "alice", TokenIn: in, TokenOut: out, Amount: amount},
		Owner:        f.signer.Address(),
	}
}

func bps(v uint16) *uint16 { return &v }

// TestQuoteDirect tests a direct pool quote with its minimum output and price impact
func TestQuoteDirect(t *testing.T) {
	f := newFixture(t, false)
	f.chain.addPool(usdc, weth, e6(2_000_000), e18(1_000))

	quote, err := f.svc.Quote(context.Background(), QuoteRequest{TokenIn: "usdc", TokenOut: "WETH", Amount: "2000"})
	require.NoError(t, err)

	want := router.QuoteExactIn(e6(2_000), e6(2_000_000), e18(1_000), 3)
	require.IsType(t, &domain.DirectV2Route{}, quote.Best)
	assert.Equal(t, 0, want.Cmp(quote.Best.AmountOut()))
	assert.Equal(t, uint16(50), quote.SlippageBps)

	minOut, err := router.MinOut(want, 50)
	require.NoError(t, err)
	assert.Equal(t, 0, minOut.Cmp(quote.MinOut))
	assert.True(t, quote.PriceImpactKnown)
	assert.Equal(t, "USDC", quote.TokenIn.Symbol)
	assert.NotEmpty(t, quote.Fingerprint)
	// output token is the bridge, so no two-hop lookup
	assert.Nil(t, quote.Candidates.TwoHop.Route)
}

// TestQuotePrefersConcentratedVenue tests that a present v3 quote wins over v2 routes
func TestQuotePrefersConcentratedVenue(t *testing.T) {
	f := newFixture(t, true)
	f.chain.addPool(usdc, weth, e6(2_000_000), e18(1_000))
	f.chain.addPool(weth, dai, e18(1_000), e18(2_000_000))
	f.chain.setV3Quote(big.NewInt(1))

	quote, err := f.svc.Quote(context.Background(), QuoteRequest{TokenIn: "USDC", TokenOut: "DAI", Amount: "10", SlippageBps: bps(100)})
	require.NoError(t, err)
	require.IsType(t, &domain.SingleV3Route{}, quote.Best)
	assert.False(t, quote.PriceImpactKnown)
	assert.NotNil(t, quote.Candidates.TwoHop.Route)
}

// TestQuoteFallsBackWhenConcentratedReadFails tests the v2 fallback on a quoter transport error
func TestQuoteFallsBackWhenConcentratedReadFails(t *testing.T) {
	f := newFixture(t, true)
	f.chain.addPool(usdc, weth, e6(2_000_000), e18(1_000))
	f.chain.addPool(weth, dai, e18(1_000), e18(2_000_000))
	f.chain.Fails(v3Quoter, blockchain.QuoterV2ABI, "quoteExactInputSingle", errors.New("connection reset"))
	f.chain.Fails(v3Quoter, blockchain.QuoterV1ABI, "quoteExactInputSingle", errors.New("connection reset"))

	quote, err := f.svc.Quote(context.Background(), QuoteRequest{TokenIn: "USDC", TokenOut: "DAI", Amount: "10"})
	require.NoError(t, err)
	require.IsType(t, &domain.TwoHopV2Route{}, quote.Best)
	assert.Error(t, quote.Candidates.V3.Err)
}

// TestQuoteNoRoute tests that missing liquidity everywhere is ErrNoRoute, not a failure
func TestQuoteNoRoute(t *testing.T) {
	f := newFixture(t, false)

	_, err := f.svc.Quote(context.Background(), QuoteRequest{TokenIn: "USDC", TokenOut: "DAI", Amount: "10"})
	assert.ErrorIs(t, err, ErrNoRoute)
}

// TestQuoteUnavailable tests that read failures without any route surface as unavailable
func TestQuoteUnavailable(t *testing.T) {
	f := newFixture(t, false)
	f.chain.Fails(factory, blockchain.V2FactoryABI, "getPair", errors.New("503 service unavailable"))

	_, err := f.svc.Quote(context.Background(), QuoteRequest{TokenIn: "USDC", TokenOut: "DAI", Amount: "10"})
	assert.ErrorIs(t, err, ErrQuoteUnavailable)
	assert.NotErrorIs(t, err, ErrNoRoute)
}

// TestQuoteValidation tests that bad input is rejected before any chain read
func TestQuoteValidation(t *testing.T) {
	tests := []struct {
		name string
		req  QuoteRequest
		err  error
	}{
		{"unknown token", QuoteRequest{TokenIn: "PEPE", TokenOut: "WETH", Amount: "1"}, registry.ErrUnknownToken},
		{"same token", QuoteRequest{TokenIn: "WETH", TokenOut: "weth", Amount: "1"}, domain.ErrSameToken},
		{"zero amount", QuoteRequest{TokenIn: "USDC", TokenOut: "WETH", Amount: "0"}, domain.ErrInvalidAmount},
		{"malformed amount", QuoteRequest{TokenIn: "USDC", TokenOut: "WETH", Amount: "1.2.3"}, domain.ErrInvalidAmount},
		{"too many decimals", QuoteRequest{TokenIn: "USDC", TokenOut: "WETH", Amount: "0.0000001"}, domain.ErrInvalidAmount},
		{"slippage", QuoteRequest{TokenIn: "USDC", TokenOut: "WETH", Amount: "1", SlippageBps: bps(5001)}, domain.ErrSlippageOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, false)
			_, err := f.svc.Quote(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.err)
			assert.Zero(t, f.chain.CallCount(factory, blockchain.V2FactoryABI, "getPair"))
		})
	}
}

// TestQuoteSuperseded tests that a quote is dropped when a newer one starts on the same session
func TestQuoteSuperseded(t *testing.T) {
	f := newFixture(t, false)
	f.chain.addPool(usdc, weth, e6(2_000_000), e18(1_000))

	var once sync.Once
	f.chain.onGetPair = func() {
		once.Do(func() { f.svc.sessions.Get("alice").Begin(market.QuoteInput{TokenIn: usdc}) })
	}

	_, err := f.svc.Quote(context.Background(), QuoteRequest{Session: "alice", TokenIn: "USDC", TokenOut: "WETH", Amount: "1"})
	assert.ErrorIs(t, err, ErrSuperseded)

	// other sessions are unaffected
	_, err = f.svc.Quote(context.Background(), QuoteRequest{Session: "bob", TokenIn: "USDC", TokenOut: "WETH", Amount: "1"})
	assert.NoError(t, err)
}

// TestAnonymousQuotesAreIndependent tests that requests without a session never supersede
// each other
func TestAnonymousQuotesAreIndependent(t *testing.T) {
	f := newFixture(t, false)
	f.chain.addPool(usdc, weth, e6(2_000_000), e18(1_000))

	// the nested quote reads getPair itself, so only the first read fires it
	var fired atomic.Bool
	f.chain.onGetPair = func() {
		if fired.CompareAndSwap(false, true) {
			_, _ = f.svc.Quote(context.Background(), QuoteRequest{TokenIn: "DAI", TokenOut: "WETH", Amount: "5"})
		}
	}

	quote, err := f.svc.Quote(context.Background(), QuoteRequest{TokenIn: "USDC", TokenOut: "WETH", Amount: "1"})
	require.NoError(t, err)
	assert.Zero(t, quote.Sequence)
	assert.NotEmpty(t, quote.Fingerprint)
}

// TestOwnerRequestsIgnoreQuotePolling tests that allowance checks and prepares are not dropped
// when the same session or any other client quotes meanwhile
func TestOwnerRequestsIgnoreQuotePolling(t *testing.T) {
	for _, session := range []string{"", "alice"} {
		t.Run("session "+session, func(t *testing.T) {
			f := newFixture(t, false)
			f.chain.addPool(usdc, weth, e6(2_000_000), e18(1_000))
			f.chain.setAllowance(usdc, e6(1_000))

			var fired atomic.Bool
			f.chain.onGetPair = func() {
				if fired.CompareAndSwap(false, true) {
					_, _ = f.svc.Quote(context.Background(), QuoteRequest{Session: session, TokenIn: "DAI", TokenOut: "WETH", Amount: "5"})
					f.svc.sessions.Get("alice").Begin(market.QuoteInput{TokenIn: dai})
				}
			}

			req := f.swapRequest("USDC", "WETH", "10")
			req.Session = session
			res, err := f.svc.CheckAllowance(context.Background(), req)
			require.NoError(t, err)
			assert.False(t, res.NeedsApproval)

			plan, err := f.svc.PrepareSwap(context.Background(), req)
			require.NoError(t, err)
			require.NotNil(t, plan.Prepared)
		})
	}
}

// TestAllowanceAndApprove tests the approval flow against the router of the chosen venue
func TestAllowanceAndApprove(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.chain.addPool(usdc, weth, e6(2_000_000), e18(1_000))
	f.chain.setAllowance(usdc, e6(5))

	req := f.swapRequest("USDC", "WETH", "10")
	res, err := f.svc.CheckAllowance(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.NeedsApproval)
	assert.Equal(t, v2Router, res.Allowance.Spender)
	assert.Equal(t, 0, e6(5).Cmp(res.Allowance.Current))
	assert.Nil(t, res.Balance, "balanceOf not served")
	assert.False(t, res.InsufficientBalance())

	f.chain.Returns(usdc, blockchain.ERC20ABI, "balanceOf", e6(7))
	res, err = f.svc.CheckAllowance(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 0, e6(7).Cmp(res.Balance))
	assert.True(t, res.InsufficientBalance())

	plan, err := f.svc.PrepareSwap(ctx, req)
	assert.ErrorIs(t, err, ErrApprovalRequired)
	require.NotNil(t, plan)
	assert.Nil(t, plan.Prepared)

	plan, err = f.svc.PrepareApprove(ctx, req)
	require.NoError(t, err)
	tx := plan.Prepared.Tx
	assert.Equal(t, usdc, *tx.To())
	assert.Equal(t, domain.TxKindApprove, plan.Prepared.Record.Kind)

	args, err := blockchain.ERC20ABI.Methods["approve"].Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	assert.Equal(t, v2Router, args[0])
	assert.Equal(t, 0, e6(10).Cmp(args[1].(*big.Int)))

	f.chain.setAllowance(usdc, e6(10))
	_, err = f.svc.PrepareApprove(ctx, req)
	assert.ErrorIs(t, err, ErrApprovalNotNeeded)
}

// TestAllowanceRequiresOwner tests that an allowance check needs an account
func TestAllowanceRequiresOwner(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.svc.CheckAllowance(context.Background(), SwapRequest{QuoteRequest: QuoteRequest{TokenIn: "USDC", TokenOut: "WETH", Amount: "1"}})
	assert.ErrorIs(t, err, ErrInvalidOwner)
}

// TestPrepareSwapAndSubmitSigned tests a client-signed swap confirmed by the receipt watcher
func TestPrepareSwapAndSubmitSigned(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.chain.addPool(usdc, weth, e6(2_000_000), e18(1_000))
	f.chain.setAllowance(usdc, e6(1_000))
	f.chain.AutoReceipt = func(tx *types.Transaction) *types.Receipt {
		return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: tx.Hash(), BlockNumber: big.NewInt(77), GasUsed: 120_000}
	}
	now := time.Unix(1_700_000_000, 0)
	f.svc.now = func() time.Time { return now }

	req := f.swapRequest("USDC", "WETH", "10")
	req.DeadlineMinutes = 5
	plan, err := f.svc.PrepareSwap(ctx, req)
	require.NoError(t, err)

	prepared := plan.Prepared
	assert.Equal(t, domain.TxPendingSignature, prepared.Record.State)
	assert.Equal(t, v2Router, *prepared.Tx.To())
	assert.Equal(t, now.Add(5*time.Minute).Unix(), prepared.Record.Deadline)
	assert.Equal(t, plan.Quote.MinOut.String(), prepared.Record.MinOut)
	assert.Equal(t, "direct_v2", prepared.Record.RouteKind)

	args, err := blockchain.V2RouterABI.Methods["swapExactTokensForTokens"].Inputs.Unpack(prepared.Tx.Data()[4:])
	require.NoError(t, err)
	// recipient defaults to the owner
	assert.Equal(t, f.signer.Address(), args[3])

	signed, err := f.signer.SignTx(prepared.Tx, big.NewInt(config.BaseChainID))
	require.NoError(t, err)
	raw, err := signed.MarshalBinary()
	require.NoError(t, err)

	rec, err := f.svc.Submit(ctx, prepared.Record.ID, hexutil.Encode(raw))
	require.NoError(t, err)
	assert.Equal(t, domain.TxSubmitted, rec.State)
	assert.Equal(t, signed.Hash().Hex(), rec.Hash)

	require.Eventually(t, func() bool {
		rec, err := f.svc.TxStatus(ctx, prepared.Record.ID)
		return err == nil && rec.State == domain.TxConfirmed
	}, 5*time.Second, 20*time.Millisecond)

	rec, err = f.svc.TxStatus(ctx, prepared.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(77), rec.Block)
}

// TestSignAndSubmitWithConfiguredSigner tests the server-held key path
func TestSignAndSubmitWithConfiguredSigner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.chain.addPool(usdc, weth, e6(2_000_000), e18(1_000))
	f.chain.setAllowance(usdc, e6(1_000))
	f.chain.AutoReceipt = func(tx *types.Transaction) *types.Receipt {
		return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: tx.Hash(), BlockNumber: big.NewInt(9)}
	}

	plan, err := f.svc.PrepareSwap(ctx, f.swapRequest("USDC", "WETH", "1"))
	require.NoError(t, err)

	rec, err := f.svc.SignAndSubmit(ctx, plan.Prepared.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxSubmitted, rec.State)

	rec, err = f.svc.Wait(ctx, plan.Prepared.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxConfirmed, rec.State)
}

// TestPrepareSwapPreflightFailure tests that a reverting pre-flight fails the attempt
func TestPrepareSwapPreflightFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)
	f.chain.addPool(usdc, weth, e6(2_000_000), e18(1_000))
	f.chain.setAllowance(usdc, e6(1_000))
	f.chain.Reverts(v2Router, blockchain.V2RouterABI, "swapExactTokensForTokens", "UniswapV2Router: INSUFFICIENT_OUTPUT_AMOUNT")

	plan, err := f.svc.PrepareSwap(ctx, f.swapRequest("USDC", "WETH", "1"))
	assert.ErrorIs(t, err, executor.ErrPreflightFailed)
	require.NotNil(t, plan.Prepared)
	assert.Equal(t, domain.TxFailed, plan.Prepared.Record.State)
	assert.Equal(t, "price moved beyond slippage tolerance", plan.Prepared.Record.Reason)
	assert.Empty(t, f.chain.SentTransactions())
}

// TestSubmitErrors tests submission guards
func TestSubmitErrors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, false)

	_, err := f.svc.Submit(ctx, "nope", "0xzz")
	assert.ErrorIs(t, err, ErrInvalidRawTx)

	_, err = f.svc.TxStatus(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrTxNotFound)

	svc := NewService(testConfig(false), newChain(), persistence.NewMemoryJournal(), nil)
	_, err = svc.SignAndSubmit(ctx, "nope")
	assert.ErrorIs(t, err, ErrNoSigner)
}

// TestPrepareSwapDeadlineValidation tests the deadline range
func TestPrepareSwapDeadlineValidation(t *testing.T) {
	f := newFixture(t, false)
	req := f.swapRequest("USDC", "WETH", "1")
	req.DeadlineMinutes = 121

	_, err := f.svc.PrepareSwap(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrDeadlineOutOfRange)
}
