package executor

import (
	"context"

	"github.com/hxuan190/swap-engine/internal/domain"
)

// Journal persists transaction records. Get returns domain.ErrTxNotFound for unknown ids.
type Journal interface {
	Save(ctx context.Context, rec *domain.TxRecord) error
	Get(ctx context.Context, id string) (*domain.TxRecord, error)
}
