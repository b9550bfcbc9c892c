package persistence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	boltdb "github.com/andrew-solarstorm/bolt-db"
	"github.com/bytedance/sonic"
	"github.com/rs/zerolog/log"

	"github.com/hxuan190/swap-engine/internal/domain"
)

const (
	TxBucket = "transactions"

	DefaultDBPath = "./data/swap-engine.db"
)

// BoltJournal stores transaction records as JSON documents keyed by id.
type BoltJournal struct {
	db     *boltdb.BoltDatabase
	dbPath string
}

func NewBoltJournal(dbPath string) (*BoltJournal, error) {
	if dbPath == "" {
		dbPath = DefaultDBPath
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database dir: %w", err)
	}

	db := boltdb.NewBoltDatabase(dbPath)
	if db == nil {
		return nil, fmt.Errorf("failed to open database at %s", dbPath)
	}

	log.Info().Str("path", dbPath).Msg("[txJournal] opened database")

	return &BoltJournal{
		db:     db,
		dbPath: dbPath,
	}, nil
}

func (j *BoltJournal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

func (j *BoltJournal) Save(_ context.Context, rec *domain.TxRecord) error {
	data, err := sonic.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal tx %s: %w", rec.ID, err)
	}
	return j.db.Set(TxBucket, []byte(rec.ID), data)
}

func (j *BoltJournal) Get(_ context.Context, id string) (*domain.TxRecord, error) {
	data, err := j.db.List(TxBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	value, ok := data[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrTxNotFound, id)
	}

	var rec domain.TxRecord
	if err := sonic.Unmarshal(value, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal tx %s: %w", id, err)
	}
	return &rec, nil
}

// LoadAll returns every journaled record. Undecodable entries are skipped.
func (j *BoltJournal) LoadAll(_ context.Context) ([]*domain.TxRecord, error) {
	data, err := j.db.List(TxBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	records := make([]*domain.TxRecord, 0, len(data))
	unmarshalFailed := 0
	for id, value := range data {
		var rec domain.TxRecord
		if err := sonic.Unmarshal(value, &rec); err != nil {
			log.Error().Str("id", id).Err(err).Msg("[txJournal] failed to unmarshal tx, skipping")
			unmarshalFailed++
			continue
		}
		records = append(records, &rec)
	}

	log.Info().
		Int("loaded", len(records)).
		Int("unmarshalFailed", unmarshalFailed).
		Msg("[txJournal] loaded transactions")
	return records, nil
}
