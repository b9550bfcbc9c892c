package aggregator

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hxuan190/swap-engine/internal/aggregator/services/executor"
	"github.com/hxuan190/swap-engine/internal/domain"
)

// QuoteRequest is a trade as typed by a user. Tokens are symbols or addresses; Amount is a
// decimal string in whole tokens.
type QuoteRequest struct {
	Session  string
	TokenIn  string
	TokenOut string
	Amount   string
	// SlippageBps nil means the configured default.
	SlippageBps *uint16
}

// SwapRequest is a QuoteRequest bound to an account.
type SwapRequest struct {
	QuoteRequest
	Owner common.Address
	// Recipient defaults to Owner.
	Recipient common.Address
	// DeadlineMinutes zero means the configured default.
	DeadlineMinutes int
	// Urgency is low, medium, high or extreme; empty means the configured default.
	Urgency string
}

type AllowanceResult struct {
	Quote         *domain.QuoteResult
	Allowance     domain.AllowanceState
	NeedsApproval bool
	// Balance of the input token held by the owner, nil when it could not be read.
	Balance *big.Int
}

// InsufficientBalance reports a balance read that falls short of the input amount.
func (r *AllowanceResult) InsufficientBalance() bool {
	return r.Balance != nil && r.Balance.Cmp(r.Quote.AmountIn) < 0
}

// Plan is a prepared transaction together with the quote it was built from.
type Plan struct {
	Quote    *domain.QuoteResult
	Prepared *executor.Prepared
}
