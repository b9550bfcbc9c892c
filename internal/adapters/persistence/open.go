package persistence

import (
	"context"
	"fmt"

	"github.com/hxuan190/swap-engine/internal/config"
	"github.com/hxuan190/swap-engine/internal/domain"
)

// Journal is a transaction journal that holds a resource until closed.
type Journal interface {
	Save(ctx context.Context, rec *domain.TxRecord) error
	Get(ctx context.Context, id string) (*domain.TxRecord, error)
	Close() error
}

// Open returns the journal selected by conf.Driver.
func Open(ctx context.Context, conf config.JournalConfig) (Journal, error) {
	switch conf.Driver {
	case config.JournalMemory:
		return NewMemoryJournal(), nil
	case config.JournalBolt:
		return NewBoltJournal(conf.DBPath)
	case config.JournalPostgres:
		return NewPostgresJournal(ctx, conf.PostgresDSN)
	}
	return nil, fmt.Errorf("unknown journal driver %q", conf.Driver)
}
