package market

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/zeebo/blake3"
)

var ErrSuperseded = errors.New("quote superseded by a newer request")

// QuoteInput is what a user typed. Two requests with the same input have the same fingerprint.
type QuoteInput struct {
	TokenIn     common.Address
	TokenOut    common.Address
	AmountIn    *big.Int
	SlippageBps uint16
}

// Fingerprint is a short blake3 digest of the input.
func Fingerprint(in QuoteInput) string {
	h := blake3.New()
	_, _ = h.Write(in.TokenIn.Bytes())
	_, _ = h.Write(in.TokenOut.Bytes())
	if in.AmountIn != nil {
		_, _ = h.Write(in.AmountIn.Bytes())
	}
	var bps [2]byte
	binary.BigEndian.PutUint16(bps[:], in.SlippageBps)
	_, _ = h.Write(bps[:])

	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:16])
}

// Ticket identifies one quote request within a session.
type Ticket struct {
	Sequence    uint64
	Fingerprint string
}

// Session orders the quote requests of one user. Only the result of the most recent
// request may be shown; older results are dropped, never cancelled.
type Session struct {
	latest atomic.Uint64
}

func (s *Session) Begin(in QuoteInput) Ticket {
	return Ticket{Sequence: s.latest.Add(1), Fingerprint: Fingerprint(in)}
}

// Accept returns ErrSuperseded when a newer request has begun since t.
func (s *Session) Accept(t Ticket) error {
	if s.latest.Load() != t.Sequence {
		return ErrSuperseded
	}
	return nil
}

// Sessions keeps a bounded set of sessions by client id.
type Sessions struct {
	mu    sync.Mutex
	cache *BoundedLRUCache[string, *Session]
}

func NewSessions(maxSize int) *Sessions {
	return &Sessions{cache: NewBoundedLRUCache[string, *Session](maxSize)}
}

// Get returns the session for id, creating it on first use.
func (s *Sessions) Get(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.cache.Get(id); ok {
		return sess
	}
	sess := &Session{}
	s.cache.Set(id, sess)
	return sess
}
