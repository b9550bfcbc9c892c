package http

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	aggregator "github.com/hxuan190/swap-engine/internal/aggregator"
	"github.com/hxuan190/swap-engine/internal/aggregator/services/executor"
	"github.com/hxuan190/swap-engine/internal/aggregator/services/priority"
	"github.com/hxuan190/swap-engine/internal/common"
	"github.com/hxuan190/swap-engine/internal/domain"
	"github.com/hxuan190/swap-engine/internal/http/httputil"
	registry "github.com/hxuan190/swap-engine/internal/services/market"
)

var (
	badRequestErrors = []error{
		domain.ErrInvalidAmount,
		domain.ErrSameToken,
		domain.ErrSlippageOutOfRange,
		domain.ErrDeadlineOutOfRange,
		registry.ErrUnknownToken,
		priority.ErrUnknownUrgency,
		aggregator.ErrInvalidOwner,
		aggregator.ErrInvalidRawTx,
	}
	conflictErrors = []error{
		aggregator.ErrSuperseded,
		aggregator.ErrApprovalRequired,
		aggregator.ErrApprovalNotNeeded,
		executor.ErrNotPending,
		executor.ErrNotSubmitted,
		domain.ErrInvalidTransition,
	}
	rejectedErrors = []error{
		executor.ErrPreflightFailed,
		executor.ErrSignedTxMismatch,
		executor.ErrSignatureRejected,
		executor.ErrNodeRejected,
	}
)

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// toHttpError maps engine errors to responses. Unknown errors are 500s.
func toHttpError(err error) *common.HttpError {
	switch {
	case isAny(err, badRequestErrors):
		return common.HTTPErrorBadRequest(err.Error())
	case errors.Is(err, aggregator.ErrNoRoute):
		return common.HTTPErrorNotFound(err.Error()).WithCode(common.CodeNoRoute)
	case errors.Is(err, domain.ErrTxNotFound):
		return common.HTTPErrorNotFound(err.Error())
	case errors.Is(err, aggregator.ErrSuperseded):
		return common.HTTPErrorResourceConflict(err.Error()).WithCode(common.CodeSuperseded)
	case errors.Is(err, aggregator.ErrApprovalRequired):
		return common.HTTPErrorResourceConflict(err.Error()).WithCode(common.CodeApprovalRequired)
	case isAny(err, conflictErrors):
		return common.HTTPErrorResourceConflict(err.Error())
	case isAny(err, rejectedErrors):
		return common.HTTPErrorUnprocessable(err.Error())
	case errors.Is(err, aggregator.ErrQuoteUnavailable):
		return common.HTTPErrorServiceUnavailable(err.Error())
	case errors.Is(err, aggregator.ErrNoSigner):
		return common.HTTPErrorForbidden("server-side signing is disabled")
	case errors.Is(err, aggregator.ErrForeignRecipient):
		return common.HTTPErrorForbidden(err.Error())
	default:
		return common.HTTPErrorInternalError(err.Error())
	}
}

func handleError(c *gin.Context, err error) {
	e := toHttpError(err)
	if e.StatusCode >= 500 {
		log.Error().Err(err).Str("path", c.FullPath()).Msg("[httpService] request failed")
	}
	httputil.HttpError(c, e)
}
