package domain

import (
	"errors"
	"fmt"
	"time"
)

type TxState uint8

const (
	TxIdle TxState = iota
	TxPendingSignature
	TxSubmitted
	TxConfirmed
	TxFailed
)

var (
	ErrInvalidTransition = errors.New("invalid transaction state transition")
	ErrTxNotFound        = errors.New("transaction not found")
)

var txStateNames = map[TxState]string{
	TxIdle:             "idle",
	TxPendingSignature: "pending_signature",
	TxSubmitted:        "submitted",
	TxConfirmed:        "confirmed",
	TxFailed:           "failed",
}

func (s TxState) String() string {
	if name, ok := txStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(s))
}

func (s TxState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *TxState) UnmarshalText(text []byte) error {
	for state, name := range txStateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown tx state %q", text)
}

// Terminal reports whether no further transition is possible.
func (s TxState) Terminal() bool {
	return s == TxConfirmed || s == TxFailed
}

// CanTransition reports whether moving from s to next is allowed. Transitions only move forward.
func (s TxState) CanTransition(next TxState) bool {
	switch s {
	case TxIdle:
		return next == TxPendingSignature
	case TxPendingSignature:
		return next == TxSubmitted || next == TxFailed
	case TxSubmitted:
		return next == TxConfirmed || next == TxFailed
	default:
		return false
	}
}

type TxKind string

const (
	TxKindApprove TxKind = "approve"
	TxKindSwap    TxKind = "swap"
)

// TxRecord is the journal entry of one approve or swap attempt.
type TxRecord struct {
	ID        string    `json:"id"`
	Kind      TxKind    `json:"kind"`
	RouteKind string    `json:"routeKind,omitempty"`
	State     TxState   `json:"state"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Recipient string    `json:"recipient,omitempty"`
	Hash      string    `json:"hash,omitempty"`
	Nonce     uint64    `json:"nonce"`
	AmountIn  string    `json:"amountIn,omitempty"`
	MinOut    string    `json:"minOut,omitempty"`
	Deadline  int64     `json:"deadline,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Block     uint64    `json:"block,omitempty"`
	GasUsed   uint64    `json:"gasUsed,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Transition moves the record to next, stamping the update time.
func (r *TxRecord) Transition(next TxState, now time.Time) error {
	if !r.State.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, r.State, next)
	}
	r.State = next
	r.UpdatedAt = now
	return nil
}
