package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/hxuan190/swap-engine/internal/domain"
)

const createTxTable = `CREATE TABLE IF NOT EXISTS swap_transactions (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	route_kind  TEXT NOT NULL DEFAULT '',
	state       TEXT NOT NULL,
	from_addr   TEXT NOT NULL,
	to_addr     TEXT NOT NULL,
	recipient   TEXT NOT NULL DEFAULT '',
	tx_hash     TEXT NOT NULL DEFAULT '',
	nonce       BIGINT NOT NULL DEFAULT 0,
	amount_in   TEXT NOT NULL DEFAULT '',
	min_out     TEXT NOT NULL DEFAULT '',
	deadline    BIGINT NOT NULL DEFAULT 0,
	reason      TEXT NOT NULL DEFAULT '',
	block       BIGINT NOT NULL DEFAULT 0,
	gas_used    BIGINT NOT NULL DEFAULT 0,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
)`

// Tables created before recipients were journaled lack the column.
const addRecipientColumn = `ALTER TABLE swap_transactions ADD COLUMN IF NOT EXISTS recipient TEXT NOT NULL DEFAULT ''`

const upsertTx = `INSERT INTO swap_transactions
	(id, kind, route_kind, state, from_addr, to_addr, recipient, tx_hash, nonce, amount_in, min_out, deadline, reason, block, gas_used, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	ON CONFLICT (id) DO UPDATE SET
		state = EXCLUDED.state,
		tx_hash = EXCLUDED.tx_hash,
		nonce = EXCLUDED.nonce,
		reason = EXCLUDED.reason,
		block = EXCLUDED.block,
		gas_used = EXCLUDED.gas_used,
		updated_at = EXCLUDED.updated_at`

const selectTx = `SELECT id, kind, route_kind, state, from_addr, to_addr, recipient, tx_hash, nonce, amount_in, min_out, deadline, reason, block, gas_used, created_at, updated_at
	FROM swap_transactions WHERE id = $1`

// PostgresJournal stores transaction records in a single table.
type PostgresJournal struct {
	db *sql.DB
}

// NewPostgresJournal connects with dsn and creates the table if needed.
func NewPostgresJournal(ctx context.Context, dsn string) (*PostgresJournal, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}

	j, err := newPostgresJournal(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	log.Info().Msg("[txJournal] connected to postgres")
	return j, nil
}

func newPostgresJournal(ctx context.Context, db *sql.DB) (*PostgresJournal, error) {
	if _, err := db.ExecContext(ctx, createTxTable); err != nil {
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	if _, err := db.ExecContext(ctx, addRecipientColumn); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &PostgresJournal{db: db}, nil
}

func (j *PostgresJournal) Close() error {
	return j.db.Close()
}

func (j *PostgresJournal) Save(ctx context.Context, rec *domain.TxRecord) error {
	_, err := j.db.ExecContext(ctx, upsertTx,
		rec.ID, string(rec.Kind), rec.RouteKind, rec.State.String(),
		rec.From, rec.To, rec.Recipient, rec.Hash, int64(rec.Nonce),
		rec.AmountIn, rec.MinOut, rec.Deadline, rec.Reason,
		int64(rec.Block), int64(rec.GasUsed), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save tx %s: %w", rec.ID, err)
	}
	return nil
}

func (j *PostgresJournal) Get(ctx context.Context, id string) (*domain.TxRecord, error) {
	var (
		rec                   domain.TxRecord
		kind, state           string
		nonce, block, gasUsed int64
	)
	err := j.db.QueryRowContext(ctx, selectTx, id).Scan(
		&rec.ID, &kind, &rec.RouteKind, &state,
		&rec.From, &rec.To, &rec.Recipient, &rec.Hash, &nonce,
		&rec.AmountIn, &rec.MinOut, &rec.Deadline, &rec.Reason,
		&block, &gasUsed, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrTxNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tx %s: %w", id, err)
	}

	if err := rec.State.UnmarshalText([]byte(state)); err != nil {
		return nil, fmt.Errorf("tx %s: %w", id, err)
	}
	rec.Kind = domain.TxKind(kind)
	rec.Nonce = uint64(nonce)
	rec.Block = uint64(block)
	rec.GasUsed = uint64(gasUsed)
	return &rec, nil
}
