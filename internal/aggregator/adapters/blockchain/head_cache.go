package blockchain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const HEAD_CACHE_SERVICE = "cache-head-svc"

const headFreshness = 2 * time.Second

var ErrNoBaseFee = errors.New("latest header has no base fee")

type CachedHead struct {
	Number    uint64
	BaseFee   *big.Int
	Time      uint64
	UpdatedAt time.Time
}

// HeadCacheService keeps the latest header for fee calculation. A cached head younger than
// two seconds is served without a round trip; on RPC failure the last known head is served.
type HeadCacheService struct {
	mu      sync.RWMutex
	current *CachedHead
	client  ChainClient
	now     func() time.Time
}

func NewHeadCacheService(client ChainClient) *HeadCacheService {
	return &HeadCacheService{client: client, now: time.Now}
}

func (svc *HeadCacheService) ID() string {
	return HEAD_CACHE_SERVICE
}

func (svc *HeadCacheService) Start() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := svc.refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("[HeadCacheService] failed to fetch initial head, will retry on first request")
	}
	return nil
}

func (svc *HeadCacheService) Stop() error {
	return nil
}

func (svc *HeadCacheService) refresh(ctx context.Context) error {
	header, err := svc.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return err
	}
	if header.BaseFee == nil {
		return ErrNoBaseFee
	}

	head := &CachedHead{
		Number:    header.Number.Uint64(),
		BaseFee:   new(big.Int).Set(header.BaseFee),
		Time:      header.Time,
		UpdatedAt: svc.now(),
	}
	svc.mu.Lock()
	svc.current = head
	svc.mu.Unlock()
	return nil
}

// GetHead returns the latest known head.
func (svc *HeadCacheService) GetHead(ctx context.Context) (*CachedHead, error) {
	svc.mu.RLock()
	cached := svc.current
	svc.mu.RUnlock()

	if cached != nil && svc.now().Sub(cached.UpdatedAt) < headFreshness {
		return cached, nil
	}

	if err := svc.refresh(ctx); err != nil {
		if cached != nil {
			log.Debug().Err(err).Uint64("block", cached.Number).Msg("[HeadCacheService] serving stale head")
			return cached, nil
		}
		return nil, err
	}

	svc.mu.RLock()
	defer svc.mu.RUnlock()
	return svc.current, nil
}

// BaseFee is GetHead reduced to the base fee.
func (svc *HeadCacheService) BaseFee(ctx context.Context) (*big.Int, error) {
	head, err := svc.GetHead(ctx)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(head.BaseFee), nil
}
