package builder

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hxuan190/swap-engine/internal/aggregator/adapters/blockchain"
	"github.com/hxuan190/swap-engine/internal/domain"
	"github.com/hxuan190/swap-engine/internal/metrics"
)

var ErrSimulationFailed = errors.New("simulation failed")

// revert reasons emitted by the v2 router/library and the v3 router
var (
	insufficientFundsMarkers = []string{"TRANSFER_FROM_FAILED", "STF", "insufficient funds", "insufficient balance", "insufficient allowance", "exceeds balance", "exceeds allowance"}
	slippageMarkers          = []string{"INSUFFICIENT_OUTPUT_AMOUNT", "Too little received"}
	deadlineMarkers          = []string{"EXPIRED", "Transaction too old"}
)

// SimulateCall runs call as an eth_call from the sender. A revert is reported in the result,
// not as an error; the error return is reserved for transport failures.
func (svc *BuilderService) SimulateCall(ctx context.Context, from common.Address, call *Call) (*domain.SimulationResult, error) {
	if call == nil {
		return nil, fmt.Errorf("call is nil")
	}
	metrics.SimulationRequests.Inc()

	_, err := svc.caller.CallContract(ctx, call.Msg(from), nil)
	if err == nil {
		return &domain.SimulationResult{Success: true}, nil
	}

	err = blockchain.ClassifyCallError(err)
	rev, ok := blockchain.AsRevert(err)
	if !ok {
		return nil, fmt.Errorf("simulation transport error: %w", err)
	}

	result := ClassifyRevert(rev.Reason)
	metrics.SimulationFailures.WithLabelValues(failureLabel(result)).Inc()
	return result, nil
}

func failureLabel(res *domain.SimulationResult) string {
	switch {
	case res.InsufficientFunds:
		return "insufficient_funds"
	case res.SlippageExceeded:
		return "slippage"
	case res.DeadlineExpired:
		return "deadline"
	default:
		return "other"
	}
}

// ClassifyRevert builds a failed simulation result from a revert reason.
func ClassifyRevert(reason string) *domain.SimulationResult {
	res := &domain.SimulationResult{
		Success:      false,
		RevertReason: reason,
	}
	res.InsufficientFunds = containsAny(reason, insufficientFundsMarkers)
	res.SlippageExceeded = containsAny(reason, slippageMarkers)
	res.DeadlineExpired = containsAny(reason, deadlineMarkers)
	res.Error = UserMessage(reason)
	return res
}

// UserMessage maps a revert reason to the most specific message available.
func UserMessage(reason string) string {
	switch {
	case containsAny(reason, slippageMarkers):
		return "price moved beyond slippage tolerance"
	case containsAny(reason, deadlineMarkers):
		return "transaction deadline expired"
	case containsAny(reason, insufficientFundsMarkers):
		return "insufficient token balance or allowance"
	case reason == "":
		return "transaction reverted"
	default:
		return "transaction reverted: " + reason
	}
}

// ValidateSwapSimulation returns ErrSimulationFailed carrying the user message when the
// simulation did not succeed.
func ValidateSwapSimulation(result *domain.SimulationResult) error {
	if result == nil {
		return fmt.Errorf("%w: no result", ErrSimulationFailed)
	}
	if result.Success {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrSimulationFailed, result.Error)
}

// "STF" is matched as a whole reason only, it is too short to search for.
func containsAny(reason string, markers []string) bool {
	if reason == "" {
		return false
	}
	lower := strings.ToLower(reason)
	for _, m := range markers {
		if m == "STF" {
			if reason == m {
				return true
			}
			continue
		}
		if strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}
