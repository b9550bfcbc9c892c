package persistence

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hxuan190/swap-engine/internal/config"
	"github.com/hxuan190/swap-engine/internal/domain"
)

func sampleRecord() *domain.TxRecord {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return &domain.TxRecord{
		ID:        "6f1c2a8e-0000-4000-8000-000000000001",
		Kind:      domain.TxKindSwap,
		RouteKind: domain.RouteDirectV2.String(),
		State:     domain.TxSubmitted,
		From:      "0x000000000000000000000000000000000000bEEF",
		To:        "0x4752ba5DBc23f44D87826276BF6Fd6b1C372aD24",
		Recipient: "0x000000000000000000000000000000000000bEEF",
		Hash:      "0xabc",
		Nonce:     4,
		AmountIn:  "100000000",
		MinOut:    "49750",
		Deadline:  1_700_001_200,
		CreatedAt: created,
		UpdatedAt: created.Add(time.Second),
	}
}

// TestMemoryJournal tests that stored records are copies and unknown ids fail
func TestMemoryJournal(t *testing.T) {
	ctx := context.Background()
	j := NewMemoryJournal()
	rec := sampleRecord()

	require.NoError(t, j.Save(ctx, rec))
	rec.State = domain.TxConfirmed

	got, err := j.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxSubmitted, got.State)

	got.Reason = "mutated"
	again, err := j.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Reason)

	_, err = j.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrTxNotFound)
}

// TestBoltJournal tests that records survive a reopen
func TestBoltJournal(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := NewBoltJournal(path)
	require.NoError(t, err)
	rec := sampleRecord()
	require.NoError(t, j.Save(ctx, rec))

	rec.State = domain.TxConfirmed
	rec.Block = 99
	require.NoError(t, j.Save(ctx, rec))

	_, err = j.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrTxNotFound)
	require.NoError(t, j.Close())

	reopened, err := NewBoltJournal(path)
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxConfirmed, got.State)
	assert.Equal(t, uint64(99), got.Block)
	assert.Equal(t, rec.MinOut, got.MinOut)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))

	all, err := reopened.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

var txColumns = []string{
	"id", "kind", "route_kind", "state", "from_addr", "to_addr", "recipient", "tx_hash", "nonce",
	"amount_in", "min_out", "deadline", "reason", "block", "gas_used", "created_at", "updated_at",
}

func newMockJournal(t *testing.T) (*PostgresJournal, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS swap_transactions")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("ALTER TABLE swap_transactions ADD COLUMN IF NOT EXISTS recipient")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	j, err := newPostgresJournal(context.Background(), db)
	require.NoError(t, err)
	return j, mock
}

// TestPostgresJournalSave tests the upsert arguments
func TestPostgresJournalSave(t *testing.T) {
	j, mock := newMockJournal(t)
	rec := sampleRecord()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO swap_transactions")).
		WithArgs(rec.ID, "swap", "direct_v2", "submitted", rec.From, rec.To, rec.Recipient, rec.Hash, int64(4),
			rec.AmountIn, rec.MinOut, rec.Deadline, "", int64(0), int64(0), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, j.Save(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestPostgresJournalGet tests decoding a row and the not found path
func TestPostgresJournalGet(t *testing.T) {
	j, mock := newMockJournal(t)
	rec := sampleRecord()

	rows := sqlmock.NewRows(txColumns).AddRow(
		rec.ID, "swap", "direct_v2", "failed", rec.From, rec.To, rec.Recipient, rec.Hash, int64(4),
		rec.AmountIn, rec.MinOut, rec.Deadline, "price moved beyond slippage tolerance",
		int64(120), int64(95_000), rec.CreatedAt, rec.UpdatedAt,
	)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, kind")).WithArgs(rec.ID).WillReturnRows(rows)

	got, err := j.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxFailed, got.State)
	assert.Equal(t, domain.TxKindSwap, got.Kind)
	assert.Equal(t, uint64(4), got.Nonce)
	assert.Equal(t, rec.Recipient, got.Recipient)
	assert.Equal(t, uint64(120), got.Block)
	assert.Equal(t, uint64(95_000), got.GasUsed)
	assert.Equal(t, "price moved beyond slippage tolerance", got.Reason)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, kind")).WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(txColumns))
	_, err = j.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrTxNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

// TestOpen tests driver selection
func TestOpen(t *testing.T) {
	ctx := context.Background()

	j, err := Open(ctx, config.JournalConfig{Driver: config.JournalMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryJournal{}, j)
	require.NoError(t, j.Close())

	j, err = Open(ctx, config.JournalConfig{Driver: config.JournalBolt, DBPath: filepath.Join(t.TempDir(), "open.db")})
	require.NoError(t, err)
	assert.IsType(t, &BoltJournal{}, j)
	require.NoError(t, j.Close())

	_, err = Open(ctx, config.JournalConfig{Driver: "redis"})
	assert.Error(t, err)
}
