package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"

	"github.com/hxuan190/swap-engine/internal/aggregator/adapters/blockchain"
	"github.com/hxuan190/swap-engine/internal/aggregator/services/builder"
	"github.com/hxuan190/swap-engine/internal/aggregator/services/priority"
	"github.com/hxuan190/swap-engine/internal/domain"
	"github.com/hxuan190/swap-engine/internal/metrics"
	"github.com/hxuan190/swap-engine/internal/services"
)

const SUBMITTER_SERVICE = "SubmitterService"

var (
	ErrPreflightFailed   = errors.New("pre-flight simulation failed")
	ErrNotPending        = errors.New("transaction is not awaiting a signature")
	ErrNotSubmitted      = errors.New("transaction is not submitted")
	ErrSignedTxMismatch  = errors.New("signed transaction does not match the prepared one")
	ErrSignatureRejected = errors.New("signature rejected")
	ErrNodeRejected      = errors.New("transaction rejected by node")
	ErrReverted          = errors.New("transaction reverted")
)

// Chain is the node surface the submitter needs.
type Chain interface {
	bind.ContractCaller
	bind.DeployBackend
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

type feeSource interface {
	GetPriorityConfig(ctx context.Context, msg ethereum.CallMsg, fallbackGas uint64, urgency priority.Urgency) *priority.PriorityConfig
}

// PrepareRequest describes one approve or swap attempt.
type PrepareRequest struct {
	Kind      domain.TxKind
	RouteKind domain.RouteKind
	From      common.Address
	Recipient common.Address
	Call      *builder.Call
	AmountIn  *big.Int
	MinOut    *big.Int
	Deadline  int64
	Urgency   priority.Urgency
	// Simulate runs an eth_call of the transaction before it is handed out for signing.
	Simulate bool
}

// Prepared is an unsigned transaction awaiting its signature.
type Prepared struct {
	Record     *domain.TxRecord
	Tx         *types.Transaction
	Priority   *priority.PriorityConfig
	Simulation *domain.SimulationResult
}

type inflight struct {
	from     common.Address
	unsigned *types.Transaction
	signed   *types.Transaction
	// sending is set once a signature is being broadcast
	sending bool
}

// Submitter drives transactions through Idle, PendingSignature, Submitted and then Confirmed
// or Failed. Nothing is retried: every failure ends the attempt.
type Submitter struct {
	chain   Chain
	builder *builder.BuilderService
	fees    feeSource
	journal Journal
	logger  *services.ServiceLogger
	now     func() time.Time

	mu       sync.Mutex
	inflight map[string]*inflight
}

func NewSubmitter(chain Chain, b *builder.BuilderService, fees feeSource, journal Journal) *Submitter {
	s := &Submitter{
		chain:    chain,
		builder:  b,
		fees:     fees,
		journal:  journal,
		now:      time.Now,
		inflight: make(map[string]*inflight),
	}
	s.logger = services.NewServiceLogger(s)
	return s
}

func (s *Submitter) ID() string {
	return SUBMITTER_SERVICE
}

// Prepare moves a fresh record to PendingSignature and returns the unsigned transaction.
// A failing pre-flight moves it straight to Failed; the record is returned with the error.
func (s *Submitter) Prepare(ctx context.Context, req *PrepareRequest) (*Prepared, error) {
	if req.Call == nil {
		return nil, fmt.Errorf("prepare %s: call is nil", req.Kind)
	}
	now := s.now()
	rec := &domain.TxRecord{
		ID:        uuid.NewString(),
		Kind:      req.Kind,
		State:     domain.TxIdle,
		From:      req.From.Hex(),
		To:        req.Call.To.Hex(),
		Deadline:  req.Deadline,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.RouteKind != domain.RouteNone {
		rec.RouteKind = req.RouteKind.String()
	}
	if req.Recipient != (common.Address{}) {
		rec.Recipient = req.Recipient.Hex()
	}
	if req.AmountIn != nil {
		rec.AmountIn = req.AmountIn.String()
	}
	if req.MinOut != nil {
		rec.MinOut = req.MinOut.String()
	}

	// journaled once the transaction is built
	if err := s.transition(rec, domain.TxPendingSignature); err != nil {
		return nil, err
	}
	prepared := &Prepared{Record: rec}

	if req.Simulate {
		sim, err := s.builder.SimulateCall(ctx, req.From, req.Call)
		if err != nil {
			return prepared, s.fail(ctx, rec, err.Error(), err)
		}
		prepared.Simulation = sim
		if err := builder.ValidateSwapSimulation(sim); err != nil {
			return prepared, s.fail(ctx, rec, sim.Error, fmt.Errorf("%w: %s", ErrPreflightFailed, sim.Error))
		}
	}

	nonce, err := s.chain.PendingNonceAt(ctx, req.From)
	if err != nil {
		return prepared, s.fail(ctx, rec, "failed to read nonce", fmt.Errorf("failed to read nonce: %w", err))
	}
	rec.Nonce = nonce

	cfg := s.fees.GetPriorityConfig(ctx, req.Call.Msg(req.From), fallbackGas(req.Kind), req.Urgency)
	prepared.Priority = cfg
	prepared.Tx = s.builder.BuildTransaction(req.Call, nonce, cfg)

	s.mu.Lock()
	s.inflight[rec.ID] = &inflight{from: req.From, unsigned: prepared.Tx}
	s.mu.Unlock()

	if err := s.journal.Save(ctx, rec); err != nil {
		return prepared, fmt.Errorf("failed to journal %s: %w", rec.ID, err)
	}

	s.logger.Info().
		Str("id", rec.ID).
		Str("kind", string(rec.Kind)).
		Uint64("nonce", nonce).
		Uint64("gas", cfg.GasLimit).
		Msg("[Submitter] prepared transaction")
	return prepared, nil
}

// SubmitSigned broadcasts a signature of the prepared transaction. The signed transaction must
// come from the preparing account and keep the destination, calldata, value and nonce.
func (s *Submitter) SubmitSigned(ctx context.Context, id string, signed *types.Transaction) (*domain.TxRecord, error) {
	rec, flight, err := s.pending(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.verify(flight, signed); err != nil {
		return rec, err
	}
	if !s.claim(flight) {
		return rec, fmt.Errorf("%w: %s is already being submitted", ErrNotPending, id)
	}

	if err := s.chain.SendTransaction(ctx, signed); err != nil {
		s.forget(id)
		reason := err.Error()
		if rev, ok := blockchain.AsRevert(blockchain.ClassifyCallError(err)); ok {
			reason = builder.UserMessage(rev.Reason)
		}
		return rec, s.fail(ctx, rec, reason, fmt.Errorf("%w: %v", ErrNodeRejected, err))
	}

	rec.Hash = signed.Hash().Hex()
	rec.Nonce = signed.Nonce()
	s.mu.Lock()
	flight.signed = signed
	s.mu.Unlock()
	if err := s.advance(ctx, rec, domain.TxSubmitted); err != nil {
		return rec, err
	}
	metrics.GasLimit.Observe(float64(signed.Gas()))

	s.logger.With("id", id).Info().Str("hash", rec.Hash).Msg("[Submitter] transaction submitted")
	return rec, nil
}

// SignAndSubmit signs the prepared transaction with signer and broadcasts it.
func (s *Submitter) SignAndSubmit(ctx context.Context, id string, signer Signer) (*domain.TxRecord, error) {
	rec, flight, err := s.pending(ctx, id)
	if err != nil {
		return nil, err
	}
	if signer.Address() != flight.from {
		return rec, fmt.Errorf("%w: signer %s, sender %s", ErrSignedTxMismatch, signer.Address().Hex(), flight.from.Hex())
	}

	signed, err := signer.SignTx(flight.unsigned, s.builder.ChainID())
	if err != nil {
		s.forget(id)
		return rec, s.fail(ctx, rec, "signing failed: "+err.Error(), fmt.Errorf("%w: %v", ErrSignatureRejected, err))
	}
	return s.SubmitSigned(ctx, id, signed)
}

// Reject records that the user declined to sign.
func (s *Submitter) Reject(ctx context.Context, id, reason string) (*domain.TxRecord, error) {
	rec, flight, err := s.pending(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.claim(flight) {
		return rec, fmt.Errorf("%w: %s is already being submitted", ErrNotPending, id)
	}
	s.forget(id)
	if reason == "" {
		reason = "user rejected signing"
	}
	if err := s.fail(ctx, rec, reason, nil); err != nil {
		return rec, err
	}
	return rec, nil
}

// Wait blocks until the submitted transaction is mined, or ctx ends. The engine sets no
// timeout of its own: the on-chain deadline bounds execution.
func (s *Submitter) Wait(ctx context.Context, id string) (*domain.TxRecord, error) {
	rec, err := s.journal.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.State.Terminal() {
		return rec, nil
	}

	s.mu.Lock()
	flight, ok := s.inflight[id]
	ok = ok && flight.signed != nil
	s.mu.Unlock()
	if !ok || rec.State != domain.TxSubmitted {
		return rec, fmt.Errorf("%w: %s is %s", ErrNotSubmitted, id, rec.State)
	}

	receipt, err := bind.WaitMined(ctx, s.chain, flight.signed)
	if err != nil {
		return rec, fmt.Errorf("waiting for %s: %w", rec.Hash, err)
	}
	s.forget(id)

	rec.Block = receipt.BlockNumber.Uint64()
	rec.GasUsed = receipt.GasUsed
	if receipt.Status == types.ReceiptStatusSuccessful {
		if err := s.advance(ctx, rec, domain.TxConfirmed); err != nil {
			return rec, err
		}
		s.logger.With("id", id).Info().Uint64("block", rec.Block).Msg("[Submitter] transaction confirmed")
		return rec, nil
	}

	reason := s.revertReason(ctx, flight, receipt.BlockNumber)
	return rec, s.fail(ctx, rec, reason, fmt.Errorf("%w: %s", ErrReverted, reason))
}

// Reconcile settles a Submitted record from its receipt when no Wait in this process owns it,
// as after a restart. The record is returned unchanged while the transaction is unmined.
// The calldata is gone by then, so a revert gets the generic reason.
func (s *Submitter) Reconcile(ctx context.Context, id string) (*domain.TxRecord, error) {
	rec, err := s.journal.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.State != domain.TxSubmitted || rec.Hash == "" {
		return rec, nil
	}
	s.mu.Lock()
	_, tracked := s.inflight[id]
	s.mu.Unlock()
	if tracked {
		return rec, nil
	}

	receipt, err := s.chain.TransactionReceipt(ctx, common.HexToHash(rec.Hash))
	if errors.Is(err, ethereum.NotFound) {
		return rec, nil
	}
	if err != nil {
		return rec, fmt.Errorf("failed to read receipt of %s: %w", rec.Hash, err)
	}

	rec.Block = receipt.BlockNumber.Uint64()
	rec.GasUsed = receipt.GasUsed
	if receipt.Status == types.ReceiptStatusSuccessful {
		return rec, s.advance(ctx, rec, domain.TxConfirmed)
	}
	return rec, s.fail(ctx, rec, builder.UserMessage(""), nil)
}

// Status returns the journaled record.
func (s *Submitter) Status(ctx context.Context, id string) (*domain.TxRecord, error) {
	return s.journal.Get(ctx, id)
}

// revertReason replays the transaction at the block it was mined in to recover the reason.
func (s *Submitter) revertReason(ctx context.Context, flight *inflight, block *big.Int) string {
	tx := flight.signed
	msg := ethereum.CallMsg{
		From:  flight.from,
		To:    tx.To(),
		Gas:   tx.Gas(),
		Value: tx.Value(),
		Data:  tx.Data(),
	}
	_, err := s.chain.CallContract(ctx, msg, block)
	if err == nil {
		return builder.UserMessage("")
	}
	if rev, ok := blockchain.AsRevert(blockchain.ClassifyCallError(err)); ok {
		return builder.UserMessage(rev.Reason)
	}
	s.logger.Warn().Err(err).Str("hash", tx.Hash().Hex()).Msg("[Submitter] could not replay reverted transaction")
	return builder.UserMessage("")
}

func (s *Submitter) pending(ctx context.Context, id string) (*domain.TxRecord, *inflight, error) {
	rec, err := s.journal.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	s.mu.Lock()
	flight, ok := s.inflight[id]
	s.mu.Unlock()
	if !ok || rec.State != domain.TxPendingSignature {
		return rec, nil, fmt.Errorf("%w: %s is %s", ErrNotPending, id, rec.State)
	}
	return rec, flight, nil
}

// claim marks flight as taken by one caller. Later callers get false.
func (s *Submitter) claim(flight *inflight) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if flight.sending {
		return false
	}
	flight.sending = true
	return true
}

func (s *Submitter) verify(flight *inflight, signed *types.Transaction) error {
	if signed == nil {
		return fmt.Errorf("%w: empty transaction", ErrSignedTxMismatch)
	}
	sender, err := types.Sender(types.LatestSignerForChainID(s.builder.ChainID()), signed)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignedTxMismatch, err)
	}
	want := flight.unsigned
	switch {
	case sender != flight.from:
		return fmt.Errorf("%w: signed by %s", ErrSignedTxMismatch, sender.Hex())
	case signed.To() == nil || *signed.To() != *want.To():
		return fmt.Errorf("%w: destination", ErrSignedTxMismatch)
	case !bytes.Equal(signed.Data(), want.Data()):
		return fmt.Errorf("%w: calldata", ErrSignedTxMismatch)
	case signed.Value().Cmp(want.Value()) != 0:
		return fmt.Errorf("%w: value", ErrSignedTxMismatch)
	case signed.Nonce() != want.Nonce():
		return fmt.Errorf("%w: nonce", ErrSignedTxMismatch)
	}
	return nil
}

func (s *Submitter) transition(rec *domain.TxRecord, next domain.TxState) error {
	if err := rec.Transition(next, s.now()); err != nil {
		return err
	}
	metrics.TxTransitions.WithLabelValues(string(rec.Kind), next.String()).Inc()
	return nil
}

// advance transitions rec and journals it.
func (s *Submitter) advance(ctx context.Context, rec *domain.TxRecord, next domain.TxState) error {
	if err := s.transition(rec, next); err != nil {
		return err
	}
	if err := s.journal.Save(ctx, rec); err != nil {
		return fmt.Errorf("failed to journal %s: %w", rec.ID, err)
	}
	return nil
}

// fail moves rec to Failed with reason and returns cause (or nil).
func (s *Submitter) fail(ctx context.Context, rec *domain.TxRecord, reason string, cause error) error {
	rec.Reason = reason
	if err := s.advance(ctx, rec, domain.TxFailed); err != nil {
		return err
	}
	s.logger.With("id", rec.ID).Warn().Str("kind", string(rec.Kind)).Str("reason", reason).Msg("[Submitter] transaction failed")
	return cause
}

func (s *Submitter) forget(id string) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

func fallbackGas(kind domain.TxKind) uint64 {
	if kind == domain.TxKindApprove {
		return priority.DefaultApproveGas
	}
	return priority.DefaultSwapGas
}
