package http

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"

	aggregator "github.com/hxuan190/swap-engine/internal/aggregator"
	"github.com/hxuan190/swap-engine/internal/domain"
	"github.com/hxuan190/swap-engine/internal/http/httputil"
)

// SwapHandler prepares approve and swap transactions for a client-side signer.
type SwapHandler struct {
	aggregatorSvc *aggregator.Service
}

func NewSwapHandler(aggregatorSvc *aggregator.Service) *SwapHandler {
	return &SwapHandler{aggregatorSvc: aggregatorSvc}
}

func (h *SwapHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.GET("/allowance", h.getAllowance)
	pub.POST("/approve/prepare", h.prepareApprove)
	pub.POST("/swap/prepare", h.prepareSwap)
}

func (h *SwapHandler) Root() string {
	return ""
}

// SwapHandlerRequest represents the parameters for preparing an approve or swap transaction
type SwapHandlerRequest struct {
	QuoteRequest

	// Account that signs and sends the transaction
	Owner string `form:"owner" json:"owner" binding:"required" example:"0x000000000000000000000000000000000000bEEF"`

	// Receiver of the output tokens. Default: owner
	Recipient string `form:"recipient" json:"recipient" example:"0x000000000000000000000000000000000000bEEF"`

	// Minutes from now until the swap expires on-chain, 1 to 120. Default: 20
	DeadlineMinutes int `form:"deadlineMinutes" json:"deadlineMinutes" example:"20"`

	// Fee urgency: low, medium, high or extreme. Default: medium
	Urgency string `form:"urgency" json:"urgency" enums:"low,medium,high,extreme" example:"medium"`
}

func parseAddress(field, raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, &fieldError{field: field, value: raw}
	}
	return common.HexToAddress(raw), nil
}

type fieldError struct {
	field string
	value string
}

func (e *fieldError) Error() string {
	return "invalid " + e.field + " address: " + e.value
}

func (r SwapHandlerRequest) toSwapRequest(session string) (aggregator.SwapRequest, error) {
	req := aggregator.SwapRequest{
		QuoteRequest:    r.QuoteRequest.toQuoteRequest(session),
		DeadlineMinutes: r.DeadlineMinutes,
		Urgency:         r.Urgency,
	}
	owner, err := parseAddress("owner", r.Owner)
	if err != nil {
		return req, err
	}
	req.Owner = owner
	if r.Recipient != "" {
		if req.Recipient, err = parseAddress("recipient", r.Recipient); err != nil {
			return req, err
		}
	}
	return req, nil
}

// AllowanceResponse reports whether the owner must approve before swapping
type AllowanceResponse struct {
	// Router of the venue the best route executes on
	Spender string `json:"spender" example:"0x4752ba5DBc23f44D87826276BF6Fd6b1C372aD24"`

	Owner string `json:"owner" example:"0x000000000000000000000000000000000000bEEF"`

	// Current allowance in raw units, read fresh from the chain
	Current string `json:"current" example:"0"`

	// Amount the swap needs in raw units
	Required string `json:"required" example:"1500000"`

	NeedsApproval bool `json:"needsApproval" example:"true"`

	// Owner's balance of the input token in raw units, omitted when it could not be read
	Balance string `json:"balance,omitempty" example:"25000000"`

	InsufficientBalance bool `json:"insufficientBalance" example:"false"`

	Quote QuoteResponse `json:"quote"`
}

// PreparedTxResponse is an unsigned EIP-1559 transaction awaiting the owner's signature
type PreparedTxResponse struct {
	// Journal id used to submit the signed transaction and to poll its status
	ID string `json:"id" example:"5b9e3c1e-6d0c-4a55-9f3b-1f7f3c1c2a10"`

	Kind string `json:"kind" enums:"approve,swap" example:"swap"`

	State string `json:"state" example:"pending_signature"`

	ChainID string `json:"chainId" example:"8453"`

	From string `json:"from" example:"0x000000000000000000000000000000000000bEEF"`

	To string `json:"to" example:"0x4752ba5DBc23f44D87826276BF6Fd6b1C372aD24"`

	// Calldata, 0x-prefixed hex
	Data string `json:"data"`

	Value string `json:"value" example:"0"`

	Nonce uint64 `json:"nonce" example:"12"`

	Gas uint64 `json:"gas" example:"180000"`

	// Fee cap and tip in wei
	MaxFeePerGas         string `json:"maxFeePerGas" example:"2010000"`
	MaxPriorityFeePerGas string `json:"maxPriorityFeePerGas" example:"10000"`

	// Worst case fee in wei: maxFeePerGas * gas
	MaxCost string `json:"maxCost" example:"361800000000"`

	// Unsigned typed transaction envelope, 0x-prefixed hex
	UnsignedTx string `json:"unsignedTx"`

	// Unix time after which the swap reverts on-chain (swaps only)
	Deadline int64 `json:"deadline,omitempty" example:"1700001200"`

	// Pre-flight eth_call result (swaps only)
	Simulation *domain.SimulationResult `json:"simulation,omitempty"`

	Quote QuoteResponse `json:"quote"`
}

func newPreparedTxResponse(plan *aggregator.Plan) (PreparedTxResponse, error) {
	p := plan.Prepared
	tx := p.Tx
	raw, err := tx.MarshalBinary()
	if err != nil {
		return PreparedTxResponse{}, err
	}
	resp := PreparedTxResponse{
		ID:                   p.Record.ID,
		Kind:                 string(p.Record.Kind),
		State:                p.Record.State.String(),
		ChainID:              tx.ChainId().String(),
		From:                 p.Record.From,
		To:                   tx.To().Hex(),
		Data:                 hexutil.Encode(tx.Data()),
		Value:                tx.Value().String(),
		Nonce:                tx.Nonce(),
		Gas:                  tx.Gas(),
		MaxFeePerGas:         tx.GasFeeCap().String(),
		MaxPriorityFeePerGas: tx.GasTipCap().String(),
		UnsignedTx:           hexutil.Encode(raw),
		Deadline:             p.Record.Deadline,
		Simulation:           p.Simulation,
		Quote:                newQuoteResponse(plan.Quote),
	}
	if p.Priority != nil && p.Priority.MaxCost != nil {
		resp.MaxCost = p.Priority.MaxCost.String()
	}
	return resp, nil
}

// writePlan answers a prepare call. A plan whose preparation failed still carries the failed
// record, which is reported through the error.
func writePlan(c *gin.Context, plan *aggregator.Plan, err error) {
	if err != nil {
		handleError(c, err)
		return
	}
	resp, err := newPreparedTxResponse(plan)
	if err != nil {
		handleError(c, err)
		return
	}
	httputil.Success(c, resp)
}

// @Summary Check allowance
// @Description Quote the trade and read the owner's ERC-20 allowance for the router of the
// @Description venue the best route executes on. The allowance is never cached.
// @Tags swap
// @Produce json
// @Param tokenIn query string true "Input token symbol or address" example("USDC")
// @Param tokenOut query string true "Output token symbol or address" example("WETH")
// @Param amount query string true "Input amount in whole tokens" example("1.5")
// @Param owner query string true "Owner address"
// @Param slippageBps query int false "Slippage tolerance in basis points" default(50)
// @Success 200 {object} AllowanceResponse
// @Failure 400 {object} httputil.Response "Invalid request parameters"
// @Failure 404 {object} httputil.Response "No route found"
// @Failure 503 {object} httputil.Response "Chain reads failed"
// @Router /api/v1/allowance [get]
func (h *SwapHandler) getAllowance(c *gin.Context) {
	var body SwapHandlerRequest
	if err := c.ShouldBindQuery(&body); err != nil {
		httputil.BadRequest(c, "invalid query parameters: "+err.Error())
		return
	}
	req, err := body.toSwapRequest(sessionOf(c))
	if err != nil {
		httputil.BadRequest(c, err.Error())
		return
	}

	res, err := h.aggregatorSvc.CheckAllowance(c.Request.Context(), req)
	if err != nil {
		handleError(c, err)
		return
	}

	current := "0"
	if res.Allowance.Current != nil {
		current = res.Allowance.Current.String()
	}
	var balance string
	if res.Balance != nil {
		balance = res.Balance.String()
	}
	httputil.Success(c, AllowanceResponse{
		Spender:             res.Allowance.Spender.Hex(),
		Owner:               res.Allowance.Owner.Hex(),
		Current:             current,
		Required:            res.Quote.AmountIn.String(),
		NeedsApproval:       res.NeedsApproval,
		Balance:             balance,
		InsufficientBalance: res.InsufficientBalance(),
		Quote:               newQuoteResponse(res.Quote),
	})
}

// @Summary Prepare approve transaction
// @Description Build an unsigned approve of exactly the input amount for the router of the
// @Description best route. Returns 409 when the allowance already covers the amount.
// @Tags swap
// @Accept json
// @Produce json
// @Param request body SwapHandlerRequest true "Approve request"
// @Success 200 {object} PreparedTxResponse "Unsigned transaction ready to sign"
// @Failure 400 {object} httputil.Response "Invalid request parameters"
// @Failure 404 {object} httputil.Response "No route found"
// @Failure 409 {object} httputil.Response "Allowance already sufficient"
// @Router /api/v1/approve/prepare [post]
func (h *SwapHandler) prepareApprove(c *gin.Context) {
	req, ok := bindSwapRequest(c)
	if !ok {
		return
	}
	plan, err := h.aggregatorSvc.PrepareApprove(c.Request.Context(), req)
	writePlan(c, plan, err)
}

// @Summary Prepare swap transaction
// @Description Quote afresh and build an unsigned swap for the best route.
// @Description
// @Description **Transaction Flow:**
// @Description 1. API quotes, checks the allowance and simulates the swap with eth_call
// @Description 2. Client signs the returned transaction with the owner's key
// @Description 3. Client posts the signed transaction to /api/v1/tx/{id}/submit
// @Description 4. Client polls /api/v1/tx/{id} until it is confirmed or failed
// @Description
// @Description **Error Handling:**
// @Description - 400: Invalid parameters
// @Description - 404: No route found between the token pair
// @Description - 409: Approval required first, or superseded by a newer quote
// @Description - 422: Pre-flight simulation reverted
// @Description - 503: Chain reads failed
// @Tags swap
// @Accept json
// @Produce json
// @Param request body SwapHandlerRequest true "Swap request"
// @Success 200 {object} PreparedTxResponse "Unsigned transaction ready to sign"
// @Failure 400 {object} httputil.Response "Invalid request parameters"
// @Failure 404 {object} httputil.Response "No route found"
// @Failure 409 {object} httputil.Response "Approval required"
// @Failure 422 {object} httputil.Response "Pre-flight simulation failed"
// @Router /api/v1/swap/prepare [post]
func (h *SwapHandler) prepareSwap(c *gin.Context) {
	req, ok := bindSwapRequest(c)
	if !ok {
		return
	}
	plan, err := h.aggregatorSvc.PrepareSwap(c.Request.Context(), req)
	writePlan(c, plan, err)
}

func bindSwapRequest(c *gin.Context) (aggregator.SwapRequest, bool) {
	var body SwapHandlerRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		httputil.BadRequest(c, "invalid request body: "+err.Error())
		return aggregator.SwapRequest{}, false
	}
	req, err := body.toSwapRequest(sessionOf(c))
	if err != nil {
		httputil.BadRequest(c, err.Error())
		return req, false
	}
	return req, true
}
