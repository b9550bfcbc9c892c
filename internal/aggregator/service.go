package aggregator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/hxuan190/swap-engine/internal/aggregator/adapters/blockchain"
	"github.com/hxuan190/swap-engine/internal/aggregator/services/builder"
	"github.com/hxuan190/swap-engine/internal/aggregator/services/executor"
	"github.com/hxuan190/swap-engine/internal/aggregator/services/market"
	"github.com/hxuan190/swap-engine/internal/aggregator/services/priority"
	"github.com/hxuan190/swap-engine/internal/config"
	"github.com/hxuan190/swap-engine/internal/domain"
	"github.com/hxuan190/swap-engine/internal/metrics"
	"github.com/hxuan190/swap-engine/internal/services"
	registry "github.com/hxuan190/swap-engine/internal/services/market"
	"github.com/hxuan190/swap-engine/internal/services/router"
)

const AGGREGATOR_SERVICE = "aggregator-service"

var (
	ErrNoRoute           = router.ErrNoRoute
	ErrSuperseded        = market.ErrSuperseded
	ErrQuoteUnavailable  = errors.New("quote unavailable")
	ErrApprovalRequired  = errors.New("approval required before swap")
	ErrApprovalNotNeeded = errors.New("allowance already covers the amount")
	ErrNoSigner          = errors.New("no signer configured")
	ErrInvalidRawTx      = errors.New("invalid raw transaction")
	ErrInvalidOwner      = errors.New("owner address is required")
	ErrForeignRecipient  = errors.New("server key only signs swaps paying out to itself")
)

// Service runs the quote, allowance and execution pipeline over one chain connection.
type Service struct {
	logger *services.ServiceLogger
	cfg    config.Config

	tokens    *registry.TokenRegistry
	sessions  *market.Sessions
	marketSvc *market.Service
	erc20     *blockchain.ERC20
	head      *blockchain.HeadCacheService
	builder   *builder.BuilderService
	submitter *executor.Submitter
	signer    executor.Signer

	now func() time.Time

	watchCtx    context.Context
	watchCancel context.CancelFunc
	watchers    sync.WaitGroup
}

// NewService wires the pipeline. signer may be nil, in which case transactions can only be
// signed by the client.
func NewService(cfg config.Config, chain blockchain.ChainClient, journal executor.Journal, signer executor.Signer) *Service {
	caller := blockchain.NewCaller(chain, blockchain.RetryConfig{
		MaxRetries:      uint64(cfg.RPC.MaxRetries),
		InitialInterval: cfg.RPC.InitialInterval,
		MaxInterval:     cfg.RPC.MaxInterval,
	})

	var quoter market.ConcentratedQuoter
	if cfg.Venue.HasV3() {
		quoter = blockchain.NewQuoter(caller, cfg.Venue.V3Quoter)
	}

	head := blockchain.NewHeadCacheService(chain)
	b := builder.NewBuilderService(chain, new(big.Int).SetUint64(cfg.Venue.ChainID), cfg.Venue.V2Router, cfg.Venue.V3Router)

	svc := &Service{
		cfg:      cfg,
		tokens:   registry.NewDefaultTokenRegistry(),
		sessions: market.NewSessions(cfg.Swap.MaxSessions),
		marketSvc: market.NewService(blockchain.NewPairReader(caller, cfg.Venue.V2Factory), quoter, market.Options{
			Bridge:        cfg.Venue.Bridge,
			V2Fee:         cfg.Venue.V2Fee,
			V3Fee:         cfg.Venue.V3Fee,
			PairCacheSize: cfg.Swap.PairCacheSize,
		}),
		erc20:     blockchain.NewERC20(caller),
		head:      head,
		builder:   b,
		submitter: executor.NewSubmitter(chain, b, priority.NewService(chain, head), journal),
		signer:    signer,
		now:       time.Now,
	}
	svc.watchCtx, svc.watchCancel = context.WithCancel(context.Background())
	svc.logger = services.NewServiceLogger(svc)
	return svc
}

func (svc *Service) ID() string {
	return AGGREGATOR_SERVICE
}

func (svc *Service) Start() error {
	if err := svc.head.Start(); err != nil {
		return err
	}
	svc.logger.Info().
		Bool("v3", svc.marketSvc.HasConcentratedVenue()).
		Bool("signer", svc.signer != nil).
		Msg("[aggregatorService] started")
	return nil
}

// Stop abandons receipt watchers. Their records stay Submitted in the journal.
func (svc *Service) Stop() error {
	svc.watchCancel()
	svc.watchers.Wait()
	return svc.head.Stop()
}

func (svc *Service) Tokens() []domain.Token {
	return svc.tokens.List()
}

func (svc *Service) ResolveToken(id string) (domain.Token, error) {
	return svc.tokens.Resolve(id)
}

// Signer returns the configured signer, or nil.
func (svc *Service) Signer() executor.Signer {
	return svc.signer
}

// Quote reads every candidate route and returns the best one with its minimum output.
// Inputs are validated before any chain read. The result is dropped with ErrSuperseded if a
// newer quote began on the same session while this one was reading. Requests without a
// session are never superseded.
func (svc *Service) Quote(ctx context.Context, req QuoteRequest) (*domain.QuoteResult, error) {
	return svc.observedQuote(ctx, req, svc.sessionFor(req.Session))
}

// freshQuote quotes for an owner-bound request. It is never ordered against the session's
// quotes, which a client keeps polling while it prepares a transaction.
func (svc *Service) freshQuote(ctx context.Context, req QuoteRequest) (*domain.QuoteResult, error) {
	return svc.observedQuote(ctx, req, nil)
}

func (svc *Service) observedQuote(ctx context.Context, req QuoteRequest, session *market.Session) (*domain.QuoteResult, error) {
	start := time.Now()
	quote, err := svc.quote(ctx, req, session)

	status := quoteStatus(err)
	metrics.QuoteDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	routeLabel := domain.RouteNone.String()
	if quote != nil {
		routeLabel = quote.Best.Kind().String()
	}
	metrics.QuoteRequests.WithLabelValues(routeLabel, status).Inc()
	return quote, err
}

func (svc *Service) quote(ctx context.Context, req QuoteRequest, session *market.Session) (*domain.QuoteResult, error) {
	tokenIn, tokenOut, amountIn, slippage, err := svc.validateQuote(req)
	if err != nil {
		return nil, err
	}

	input := market.QuoteInput{
		TokenIn:     tokenIn.Address,
		TokenOut:    tokenOut.Address,
		AmountIn:    amountIn,
		SlippageBps: slippage,
	}
	ticket := market.Ticket{Fingerprint: market.Fingerprint(input)}
	if session != nil {
		ticket = session.Begin(input)
	}

	candidates := svc.marketSvc.ReadCandidates(ctx, tokenIn.Address, tokenOut.Address, amountIn)

	if session != nil {
		if err := session.Accept(ticket); err != nil {
			metrics.SupersededQuotes.Inc()
			return nil, err
		}
	}

	best := router.SelectBestRoute(candidates)
	if best == nil {
		if errs := candidates.Errs(); len(errs) > 0 {
			return nil, fmt.Errorf("%w: %w", ErrQuoteUnavailable, errors.Join(errs...))
		}
		return nil, ErrNoRoute
	}

	minOut, err := router.MinOut(best.AmountOut(), slippage)
	if err != nil {
		return nil, err
	}

	result := &domain.QuoteResult{
		Fingerprint: ticket.Fingerprint,
		Sequence:    ticket.Sequence,
		TokenIn:     tokenIn,
		TokenOut:    tokenOut,
		AmountIn:    amountIn,
		Best:        best,
		Candidates:  candidates,
		MinOut:      minOut,
		SlippageBps: slippage,
	}
	if bps, ok := router.RoutePriceImpact(best, svc.cfg.Venue.V2Fee); ok {
		result.PriceImpactBps = bps
		result.PriceImpactKnown = true
		metrics.PriceImpact.WithLabelValues(string(router.GetPriceImpactSeverity(bps))).Observe(float64(bps))
	}
	return result, nil
}

func (svc *Service) validateQuote(req QuoteRequest) (tokenIn, tokenOut domain.Token, amountIn *big.Int, slippage uint16, err error) {
	if tokenIn, err = svc.tokens.Resolve(req.TokenIn); err != nil {
		return
	}
	if tokenOut, err = svc.tokens.Resolve(req.TokenOut); err != nil {
		return
	}
	if tokenIn.Address == tokenOut.Address {
		err = domain.ErrSameToken
		return
	}
	if amountIn, err = registry.ParseAmount(req.Amount, tokenIn.Decimals); err != nil {
		return
	}
	if amountIn.Sign() == 0 {
		err = fmt.Errorf("%w: must be positive", domain.ErrInvalidAmount)
		return
	}
	slippage = svc.cfg.Swap.DefaultSlippageBps
	if req.SlippageBps != nil {
		slippage = *req.SlippageBps
	}
	err = domain.ValidateSlippageBps(slippage)
	return
}

// CheckAllowance quotes the trade to find the executing venue and reads the owner's
// allowance for that venue's router. The allowance is read on every call.
func (svc *Service) CheckAllowance(ctx context.Context, req SwapRequest) (*AllowanceResult, error) {
	if req.Owner == (common.Address{}) {
		return nil, ErrInvalidOwner
	}
	quote, err := svc.freshQuote(ctx, req.QuoteRequest)
	if err != nil {
		return nil, err
	}
	return svc.allowanceFor(ctx, req.Owner, quote)
}

func (svc *Service) allowanceFor(ctx context.Context, owner common.Address, quote *domain.QuoteResult) (*AllowanceResult, error) {
	spender, err := svc.builder.Spender(quote.Best.Kind())
	if err != nil {
		return nil, err
	}
	needs, state, err := svc.erc20.NeedsApproval(ctx, quote.TokenIn.Address, owner, spender, quote.AmountIn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuoteUnavailable, err)
	}
	res := &AllowanceResult{Quote: quote, Allowance: state, NeedsApproval: needs}

	balance, err := svc.erc20.BalanceOf(ctx, quote.TokenIn.Address, owner)
	if err != nil {
		svc.logger.Debug().Err(err).Str("owner", owner.Hex()).Msg("[aggregatorService] balance unavailable")
		return res, nil
	}
	res.Balance = balance
	return res, nil
}

// PrepareApprove builds an approve of exactly the input amount for the router of the best
// route.
func (svc *Service) PrepareApprove(ctx context.Context, req SwapRequest) (*Plan, error) {
	allowance, err := svc.CheckAllowance(ctx, req)
	if err != nil {
		return nil, err
	}
	if !allowance.NeedsApproval {
		return nil, ErrApprovalNotNeeded
	}
	urgency, err := svc.urgency(req.Urgency)
	if err != nil {
		return nil, err
	}

	quote := allowance.Quote
	call, err := svc.builder.BuildApproveCall(quote.TokenIn.Address, allowance.Allowance.Spender, quote.AmountIn)
	if err != nil {
		return nil, err
	}
	prepared, err := svc.submitter.Prepare(ctx, &executor.PrepareRequest{
		Kind:     domain.TxKindApprove,
		From:     req.Owner,
		Call:     call,
		AmountIn: quote.AmountIn,
		Urgency:  urgency,
	})
	return &Plan{Quote: quote, Prepared: prepared}, err
}

// PrepareSwap quotes afresh, checks the allowance and builds the swap for the best route
// with a new deadline. Quotes are never reused across attempts.
func (svc *Service) PrepareSwap(ctx context.Context, req SwapRequest) (*Plan, error) {
	deadlineMinutes := req.DeadlineMinutes
	if deadlineMinutes == 0 {
		deadlineMinutes = svc.cfg.Swap.DefaultDeadlineMinutes
	}
	if err := domain.ValidateDeadlineMinutes(deadlineMinutes); err != nil {
		return nil, err
	}
	urgency, err := svc.urgency(req.Urgency)
	if err != nil {
		return nil, err
	}

	allowance, err := svc.CheckAllowance(ctx, req)
	if err != nil {
		return nil, err
	}
	quote := allowance.Quote
	if allowance.NeedsApproval {
		return &Plan{Quote: quote}, ErrApprovalRequired
	}

	recipient := req.Recipient
	if recipient == (common.Address{}) {
		recipient = req.Owner
	}
	intent, err := domain.NewSwapIntent(quote.TokenIn.Address, quote.TokenOut.Address, quote.AmountIn,
		quote.SlippageBps, deadlineMinutes, recipient, svc.now())
	if err != nil {
		return nil, err
	}

	call, err := svc.builder.BuildSwapCall(quote.Best, intent, quote.MinOut)
	if err != nil {
		return nil, err
	}
	prepared, err := svc.submitter.Prepare(ctx, &executor.PrepareRequest{
		Kind:      domain.TxKindSwap,
		RouteKind: quote.Best.Kind(),
		From:      req.Owner,
		Recipient: intent.Recipient,
		Call:      call,
		AmountIn:  intent.AmountIn,
		MinOut:    quote.MinOut,
		Deadline:  intent.Deadline,
		Urgency:   urgency,
		Simulate:  svc.cfg.Swap.Simulate,
	})
	return &Plan{Quote: quote, Prepared: prepared}, err
}

// Submit broadcasts a client-signed transaction (0x-prefixed RLP/typed envelope) and
// watches for its receipt in the background.
func (svc *Service) Submit(ctx context.Context, id, rawTx string) (*domain.TxRecord, error) {
	raw, err := hexutil.Decode(strings.TrimSpace(rawTx))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRawTx, err)
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRawTx, err)
	}

	rec, err := svc.submitter.SubmitSigned(ctx, id, tx)
	if err != nil {
		return rec, err
	}
	svc.watch(id)
	return rec, nil
}

// Reject records that the user declined to sign the prepared transaction.
func (svc *Service) Reject(ctx context.Context, id, reason string) (*domain.TxRecord, error) {
	return svc.submitter.Reject(ctx, id, reason)
}

// SignAndSubmit signs with the configured signer. The caller waits with Wait.
func (svc *Service) SignAndSubmit(ctx context.Context, id string) (*domain.TxRecord, error) {
	if svc.signer == nil {
		return nil, ErrNoSigner
	}
	return svc.submitter.SignAndSubmit(ctx, id, svc.signer)
}

// SignAndSubmitAsync is SignAndSubmit on behalf of a remote caller, with the receipt watched
// in the background. Swaps paying out to anyone but the signer are refused unless allowed.
func (svc *Service) SignAndSubmitAsync(ctx context.Context, id string) (*domain.TxRecord, error) {
	if svc.signer == nil {
		return nil, ErrNoSigner
	}
	if !svc.cfg.Swap.AllowForeignRecipient {
		rec, err := svc.submitter.Status(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec.Kind == domain.TxKindSwap && !strings.EqualFold(rec.Recipient, svc.signer.Address().Hex()) {
			return rec, fmt.Errorf("%w: recipient %s", ErrForeignRecipient, rec.Recipient)
		}
	}
	rec, err := svc.SignAndSubmit(ctx, id)
	if err != nil {
		return rec, err
	}
	svc.watch(id)
	return rec, nil
}

// Wait blocks until the transaction is mined or ctx ends.
func (svc *Service) Wait(ctx context.Context, id string) (*domain.TxRecord, error) {
	return svc.submitter.Wait(ctx, id)
}

// TxStatus returns the journaled record, first settling a Submitted one that nothing in this
// process is waiting on. A failed receipt read still returns the journaled record.
func (svc *Service) TxStatus(ctx context.Context, id string) (*domain.TxRecord, error) {
	rec, err := svc.submitter.Reconcile(ctx, id)
	if err != nil && rec != nil {
		svc.logger.Warn().Err(err).Str("id", id).Msg("[aggregatorService] could not reconcile transaction")
		return rec, nil
	}
	return rec, err
}

func (svc *Service) watch(id string) {
	svc.watchers.Add(1)
	go func() {
		defer svc.watchers.Done()
		rec, err := svc.submitter.Wait(svc.watchCtx, id)
		if err != nil && !errors.Is(err, context.Canceled) {
			svc.logger.Warn().Err(err).Str("id", id).Msg("[aggregatorService] transaction did not confirm")
			return
		}
		if rec != nil {
			svc.logger.Debug().Str("id", id).Str("state", rec.State.String()).Msg("[aggregatorService] receipt watcher done")
		}
	}()
}

func (svc *Service) urgency(raw string) (priority.Urgency, error) {
	if raw == "" {
		raw = svc.cfg.Swap.Urgency
	}
	return priority.ParseUrgency(raw)
}

// sessionFor returns nil for an anonymous request so unrelated clients never supersede
// each other.
func (svc *Service) sessionFor(id string) *market.Session {
	if strings.TrimSpace(id) == "" {
		return nil
	}
	return svc.sessions.Get(id)
}

func quoteStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNoRoute):
		return "no_route"
	case errors.Is(err, ErrSuperseded):
		return "superseded"
	case errors.Is(err, ErrQuoteUnavailable):
		return "unavailable"
	default:
		return "invalid"
	}
}
