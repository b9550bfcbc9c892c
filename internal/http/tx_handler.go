package http

import (
	"github.com/gin-gonic/gin"

	aggregator "github.com/hxuan190/swap-engine/internal/aggregator"
	"github.com/hxuan190/swap-engine/internal/http/httputil"
)

// TxHandler submits signed transactions and reports their journal records.
type TxHandler struct {
	aggregatorSvc *aggregator.Service
}

func NewTxHandler(aggregatorSvc *aggregator.Service) *TxHandler {
	return &TxHandler{aggregatorSvc: aggregatorSvc}
}

func (h *TxHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.GET("/:id", h.getTx)
	pub.POST("/:id/submit", h.submitTx)
	pub.POST("/:id/reject", h.rejectTx)
	private.POST("/:id/sign", h.signTx)
}

func (h *TxHandler) Root() string {
	return "/tx"
}

// SubmitTxRequest carries the owner's signature of a prepared transaction
type SubmitTxRequest struct {
	// Signed typed transaction envelope, 0x-prefixed hex (eth_sendRawTransaction format)
	SignedTx string `json:"signedTx" binding:"required" example:"0x02f8b1822105..."`
}

// RejectTxRequest records that the owner declined to sign
type RejectTxRequest struct {
	Reason string `json:"reason" example:"user rejected signing"`
}

// @Summary Get transaction
// @Description Read the journal record of an approve or swap attempt.
// @Description States: pending_signature, submitted, confirmed, failed.
// @Tags tx
// @Produce json
// @Param id path string true "Transaction id"
// @Success 200 {object} domain.TxRecord
// @Failure 404 {object} httputil.Response "Unknown id"
// @Router /api/v1/tx/{id} [get]
func (h *TxHandler) getTx(c *gin.Context) {
	rec, err := h.aggregatorSvc.TxStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	httputil.Success(c, rec)
}

// @Summary Submit signed transaction
// @Description Broadcast the owner's signature of a prepared transaction. The signature must
// @Description come from the preparing account and keep the prepared destination, calldata,
// @Description value and nonce. The receipt is watched in the background; poll GET /tx/{id}.
// @Tags tx
// @Accept json
// @Produce json
// @Param id path string true "Transaction id"
// @Param request body SubmitTxRequest true "Signed transaction"
// @Success 200 {object} domain.TxRecord "Submitted"
// @Failure 400 {object} httputil.Response "Malformed transaction"
// @Failure 404 {object} httputil.Response "Unknown id"
// @Failure 409 {object} httputil.Response "Not awaiting a signature"
// @Failure 422 {object} httputil.Response "Signature mismatch or node rejection"
// @Router /api/v1/tx/{id}/submit [post]
func (h *TxHandler) submitTx(c *gin.Context) {
	var req SubmitTxRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.BadRequest(c, "invalid request body: "+err.Error())
		return
	}
	rec, err := h.aggregatorSvc.Submit(c.Request.Context(), c.Param("id"), req.SignedTx)
	if err != nil {
		handleError(c, err)
		return
	}
	httputil.Success(c, rec)
}

// @Summary Reject transaction
// @Description Mark a prepared transaction as failed because the owner declined to sign it.
// @Tags tx
// @Accept json
// @Produce json
// @Param id path string true "Transaction id"
// @Param request body RejectTxRequest false "Reason"
// @Success 200 {object} domain.TxRecord "Failed"
// @Failure 404 {object} httputil.Response "Unknown id"
// @Failure 409 {object} httputil.Response "Not awaiting a signature"
// @Router /api/v1/tx/{id}/reject [post]
func (h *TxHandler) rejectTx(c *gin.Context) {
	var req RejectTxRequest
	// the body is optional
	_ = c.ShouldBindJSON(&req)

	rec, err := h.aggregatorSvc.Reject(c.Request.Context(), c.Param("id"), req.Reason)
	if err != nil {
		handleError(c, err)
		return
	}
	httputil.Success(c, rec)
}

// @Summary Sign and submit with the server key
// @Description Sign a prepared transaction with the key configured on the server and
// @Description broadcast it. Disabled (403) when no key is configured.
// @Tags tx
// @Produce json
// @Param id path string true "Transaction id"
// @Success 200 {object} domain.TxRecord "Submitted"
// @Failure 403 {object} httputil.Response "Server-side signing is disabled"
// @Failure 404 {object} httputil.Response "Unknown id"
// @Router /api/v1/tx/{id}/sign [post]
func (h *TxHandler) signTx(c *gin.Context) {
	rec, err := h.aggregatorSvc.SignAndSubmitAsync(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	httputil.Success(c, rec)
}
