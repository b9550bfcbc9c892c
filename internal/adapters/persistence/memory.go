package persistence

import (
	"context"
	"fmt"
	"sync"

	"github.com/hxuan190/swap-engine/internal/domain"
)

// MemoryJournal keeps records for the life of the process.
type MemoryJournal struct {
	mu      sync.RWMutex
	records map[string]domain.TxRecord
}

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{records: make(map[string]domain.TxRecord)}
}

func (j *MemoryJournal) Save(_ context.Context, rec *domain.TxRecord) error {
	j.mu.Lock()
	j.records[rec.ID] = *rec
	j.mu.Unlock()
	return nil
}

func (j *MemoryJournal) Get(_ context.Context, id string) (*domain.TxRecord, error) {
	j.mu.RLock()
	rec, ok := j.records[id]
	j.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrTxNotFound, id)
	}
	return &rec, nil
}

func (j *MemoryJournal) Close() error {
	return nil
}
