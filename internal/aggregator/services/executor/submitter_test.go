package executor

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/swap-engine/internal/adapters/persistence"
	"github.com/hxuan190/swap-engine/internal/aggregator/adapters/blockchain"
	"github.com/hxuan190/swap-engine/internal/aggregator/adapters/blockchain/blockchaintest"
	"github.com/hxuan190/swap-engine/internal/aggregator/services/builder"
	"github.com/hxuan190/swap-engine/internal/aggregator/services/priority"
	"github.com/hxuan190/swap-engine/internal/domain"
)

const (
	ownerKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	otherKey = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"
)

var (
	usdc     = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")
	weth     = common.HexToAddress("0x4200000000000000000000000000000000000006")
	v2Router = common.HexToAddress("0x4752ba5DBc23f44D87826276BF6Fd6b1C372aD24")
)

type fixture struct {
	backend   *blockchaintest.Backend
	builder   *builder.BuilderService
	journal   *persistence.MemoryJournal
	submitter *Submitter
	signer    *LocalSigner
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := blockchaintest.NewBackend()
	b := builder.NewBuilderService(backend, big.NewInt(8453), v2Router, common.Address{})
	fees := priority.NewService(backend, blockchain.NewHeadCacheService(backend))
	journal := persistence.NewMemoryJournal()

	signer, err := NewLocalSigner(ownerKey)
	require.NoError(t, err)

	return &fixture{
		backend:   backend,
		builder:   b,
		journal:   journal,
		submitter: NewSubmitter(backend, b, fees, journal),
		signer:    signer,
	}
}

func (f *fixture) swapRequest(t *testing.T) *PrepareRequest {
	t.Helper()
	route := &domain.DirectV2Route{TokenIn: usdc, TokenOut: weth, AmountIn: big.NewInt(1_000_000), Out: big.NewInt(500)}
	intent := &domain.SwapIntent{
		TokenIn: usdc, TokenOut: weth, AmountIn: big.NewInt(1_000_000),
		SlippageBps: 50, Deadline: 1_900_000_000, Recipient: f.signer.Address(),
	}
	call, err := f.builder.BuildSwapCall(route, intent, big.NewInt(497))
	require.NoError(t, err)
	return &PrepareRequest{
		Kind:      domain.TxKindSwap,
		RouteKind: domain.RouteDirectV2,
		From:      f.signer.Address(),
		Call:      call,
		AmountIn:  intent.AmountIn,
		MinOut:    big.NewInt(497),
		Deadline:  intent.Deadline,
		Urgency:   priority.UrgencyMedium,
		Simulate:  true,
	}
}

func minedReceipt(status uint64) func(tx *types.Transaction) *types.Receipt {
	return func(tx *types.Transaction) *types.Receipt {
		return &types.Receipt{Status: status, TxHash: tx.Hash(), BlockNumber: big.NewInt(42), GasUsed: 91_000}
	}
}

// TestSwapLifecycleConfirmed tests Idle to Confirmed with a local signer
func TestSwapLifecycleConfirmed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.backend.Nonce = 3
	f.backend.AutoReceipt = minedReceipt(types.ReceiptStatusSuccessful)

	prepared, err := f.submitter.Prepare(ctx, f.swapRequest(t))
	require.NoError(t, err)
	assert.Equal(t, domain.TxPendingSignature, prepared.Record.State)
	assert.True(t, prepared.Simulation.Success)
	assert.Equal(t, uint64(3), prepared.Tx.Nonce())
	// 150k estimate plus the 20% buffer
	assert.Equal(t, uint64(180_000), prepared.Tx.Gas())

	stored, err := f.submitter.Status(ctx, prepared.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxPendingSignature, stored.State)

	rec, err := f.submitter.SignAndSubmit(ctx, prepared.Record.ID, f.signer)
	require.NoError(t, err)
	assert.Equal(t, domain.TxSubmitted, rec.State)
	require.Len(t, f.backend.SentTransactions(), 1)
	assert.Equal(t, f.backend.SentTransactions()[0].Hash().Hex(), rec.Hash)

	rec, err = f.submitter.Wait(ctx, prepared.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxConfirmed, rec.State)
	assert.Equal(t, uint64(42), rec.Block)
	assert.Equal(t, uint64(91_000), rec.GasUsed)

	stored, err = f.submitter.Status(ctx, prepared.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxConfirmed, stored.State)
}

// TestPreflightFailureGoesToFailed tests that a reverting pre-flight never reaches signing
func TestPreflightFailureGoesToFailed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.backend.Reverts(v2Router, blockchain.V2RouterABI, "swapExactTokensForTokens", "UniswapV2Router: INSUFFICIENT_OUTPUT_AMOUNT")

	prepared, err := f.submitter.Prepare(ctx, f.swapRequest(t))
	assert.ErrorIs(t, err, ErrPreflightFailed)
	require.NotNil(t, prepared)
	assert.Equal(t, domain.TxFailed, prepared.Record.State)
	assert.Equal(t, "price moved beyond slippage tolerance", prepared.Record.Reason)
	assert.True(t, prepared.Simulation.SlippageExceeded)

	stored, err := f.submitter.Status(ctx, prepared.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxFailed, stored.State)

	_, err = f.submitter.SignAndSubmit(ctx, prepared.Record.ID, f.signer)
	assert.ErrorIs(t, err, ErrNotPending)
	assert.Empty(t, f.backend.SentTransactions())
}

// TestSubmitSignedVerifiesSender tests that a signature from another account is refused
func TestSubmitSignedVerifiesSender(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	prepared, err := f.submitter.Prepare(ctx, f.swapRequest(t))
	require.NoError(t, err)

	other, err := NewLocalSigner("0x" + otherKey)
	require.NoError(t, err)
	signed, err := other.SignTx(prepared.Tx, big.NewInt(8453))
	require.NoError(t, err)

	_, err = f.submitter.SubmitSigned(ctx, prepared.Record.ID, signed)
	assert.ErrorIs(t, err, ErrSignedTxMismatch)

	_, err = f.submitter.SignAndSubmit(ctx, prepared.Record.ID, other)
	assert.ErrorIs(t, err, ErrSignedTxMismatch)

	stored, err := f.submitter.Status(ctx, prepared.Record.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxPendingSignature, stored.State)

	signed, err = f.signer.SignTx(prepared.Tx, big.NewInt(8453))
	require.NoError(t, err)
	rec, err := f.submitter.SubmitSigned(ctx, prepared.Record.ID, signed)
	require.NoError(t, err)
	assert.Equal(t, domain.TxSubmitted, rec.State)
}

// TestNodeRejection tests PendingSignature to Failed when broadcast fails
func TestNodeRejection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.backend.SendErr = errors.New("insufficient funds for gas * price + value")

	prepared, err := f.submitter.Prepare(ctx, f.swapRequest(t))
	require.NoError(t, err)

	rec, err := f.submitter.SignAndSubmit(ctx, prepared.Record.ID, f.signer)
	assert.ErrorIs(t, err, ErrNodeRejected)
	assert.Equal(t, domain.TxFailed, rec.State)
	assert.Contains(t, rec.Reason, "insufficient funds")

	_, err = f.submitter.SignAndSubmit(ctx, prepared.Record.ID, f.signer)
	assert.ErrorIs(t, err, ErrNotPending)
}

// TestRejectSignature tests the user declining to sign
func TestRejectSignature(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	prepared, err := f.submitter.Prepare(ctx, f.swapRequest(t))
	require.NoError(t, err)

	rec, err := f.submitter.Reject(ctx, prepared.Record.ID, "")
	require.NoError(t, err)
	assert.Equal(t, domain.TxFailed, rec.State)
	assert.Equal(t, "user rejected signing", rec.Reason)

	_, err = f.submitter.Reject(ctx, prepared.Record.ID, "")
	assert.ErrorIs(t, err, ErrNotPending)
}

// TestRejectWhileBroadcasting tests that a transaction being broadcast cannot be rejected
func TestRejectWhileBroadcasting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	prepared, err := f.submitter.Prepare(ctx, f.swapRequest(t))
	require.NoError(t, err)
	id := prepared.Record.ID

	f.submitter.mu.Lock()
	flight := f.submitter.inflight[id]
	f.submitter.mu.Unlock()
	require.NotNil(t, flight)
	require.True(t, f.submitter.claim(flight))

	_, err = f.submitter.Reject(ctx, id, "")
	assert.ErrorIs(t, err, ErrNotPending)

	stored, err := f.submitter.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TxPendingSignature, stored.State)
	assert.Empty(t, stored.Reason)

	f.submitter.mu.Lock()
	_, tracked := f.submitter.inflight[id]
	f.submitter.mu.Unlock()
	assert.True(t, tracked)
}

// TestOnChainRevertSurfacesReason tests Submitted to Failed with the replayed revert reason
func TestOnChainRevertSurfacesReason(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.backend.AutoReceipt = minedReceipt(types.ReceiptStatusFailed)

	prepared, err := f.submitter.Prepare(ctx, f.swapRequest(t))
	require.NoError(t, err)
	_, err = f.submitter.SignAndSubmit(ctx, prepared.Record.ID, f.signer)
	require.NoError(t, err)

	// price moved between submission and inclusion
	f.backend.Reverts(v2Router, blockchain.V2RouterABI, "swapExactTokensForTokens", "UniswapV2Router: INSUFFICIENT_OUTPUT_AMOUNT")

	rec, err := f.submitter.Wait(ctx, prepared.Record.ID)
	assert.ErrorIs(t, err, ErrReverted)
	assert.Equal(t, domain.TxFailed, rec.State)
	assert.Equal(t, "price moved beyond slippage tolerance", rec.Reason)
	assert.Equal(t, uint64(42), rec.Block)
}

// TestWaitHonoursContext tests that waiting stops with the caller's context and keeps Submitted
func TestWaitHonoursContext(t *testing.T) {
	f := newFixture(t)

	prepared, err := f.submitter.Prepare(context.Background(), f.swapRequest(t))
	require.NoError(t, err)
	_, err = f.submitter.SignAndSubmit(context.Background(), prepared.Record.ID, f.signer)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec, err := f.submitter.Wait(ctx, prepared.Record.ID)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, domain.TxSubmitted, rec.State)
}

// TestApproveUsesDefaultGasWhenEstimateFails tests the approve fallback limit
func TestApproveUsesDefaultGasWhenEstimateFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.backend.GasErr = errors.New("estimate failed")

	call, err := f.builder.BuildApproveCall(usdc, v2Router, big.NewInt(1_000_000))
	require.NoError(t, err)

	prepared, err := f.submitter.Prepare(ctx, &PrepareRequest{
		Kind:     domain.TxKindApprove,
		From:     f.signer.Address(),
		Call:     call,
		AmountIn: big.NewInt(1_000_000),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(priority.DefaultApproveGas), prepared.Tx.Gas())
	assert.True(t, prepared.Priority.Defaulted)
	assert.Empty(t, prepared.Record.RouteKind)
}

// TestStatusUnknown tests lookups of ids that were never prepared
func TestStatusUnknown(t *testing.T) {
	f := newFixture(t)
	_, err := f.submitter.Status(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrTxNotFound)

	_, err = f.submitter.Wait(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrTxNotFound)
}

// TestNewLocalSignerRejectsGarbage tests key parsing
func TestNewLocalSignerRejectsGarbage(t *testing.T) {
	_, err := NewLocalSigner("not-a-key")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

// TestReconcileAfterRestart tests settling a Submitted record that no Wait is tracking
func TestReconcileAfterRestart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	prepared, err := f.submitter.Prepare(ctx, f.swapRequest(t))
	require.NoError(t, err)
	sent, err := f.submitter.SignAndSubmit(ctx, prepared.Record.ID, f.signer)
	require.NoError(t, err)

	restarted := NewSubmitter(f.backend, f.builder, priority.NewService(f.backend, blockchain.NewHeadCacheService(f.backend)), f.journal)

	rec, err := restarted.Reconcile(ctx, sent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxSubmitted, rec.State)

	f.backend.SetReceipt(common.HexToHash(sent.Hash), minedReceipt(types.ReceiptStatusFailed)(f.backend.SentTransactions()[0]))
	rec, err = restarted.Reconcile(ctx, sent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxFailed, rec.State)
	assert.Equal(t, "transaction reverted", rec.Reason)
	assert.Equal(t, uint64(42), rec.Block)

	// terminal records are left alone
	rec, err = restarted.Reconcile(ctx, sent.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxFailed, rec.State)
}
