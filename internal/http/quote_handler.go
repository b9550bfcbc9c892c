package http

import (
	"fmt"

	"github.com/gin-gonic/gin"

	aggregator "github.com/hxuan190/swap-engine/internal/aggregator"
	"github.com/hxuan190/swap-engine/internal/common"
	"github.com/hxuan190/swap-engine/internal/domain"
	"github.com/hxuan190/swap-engine/internal/http/httputil"
	registry "github.com/hxuan190/swap-engine/internal/services/market"
	"github.com/hxuan190/swap-engine/internal/services/router"
)

type QuoteHandler struct {
	aggregatorSvc *aggregator.Service
}

func NewQuoteHandler(aggregatorSvc *aggregator.Service) *QuoteHandler {
	return &QuoteHandler{aggregatorSvc: aggregatorSvc}
}

func (h *QuoteHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.GET("", h.getQuote)
}

func (h *QuoteHandler) Root() string {
	return "/quote"
}

// QuoteRequest represents the parameters for requesting a swap quote
type QuoteRequest struct {
	// Input token symbol or address
	TokenIn string `form:"tokenIn" json:"tokenIn" binding:"required" example:"USDC"`

	// Output token symbol or address
	TokenOut string `form:"tokenOut" json:"tokenOut" binding:"required" example:"WETH"`

	// Amount of the input token as a decimal string in whole tokens
	// "1.5" USDC is 1500000 raw units
	Amount string `form:"amount" json:"amount" binding:"required" example:"1.5"`

	// Slippage tolerance in basis points (1 bps = 0.01%), 0 to 5000
	// Default: 50 bps (0.5%)
	SlippageBps *uint16 `form:"slippageBps" json:"slippageBps" example:"50"`
}

func (r QuoteRequest) toQuoteRequest(session string) aggregator.QuoteRequest {
	return aggregator.QuoteRequest{
		Session:     session,
		TokenIn:     r.TokenIn,
		TokenOut:    r.TokenOut,
		Amount:      r.Amount,
		SlippageBps: r.SlippageBps,
	}
}

// RouteInfo describes the route a swap would execute through
type RouteInfo struct {
	// Route kind: direct_v2, two_hop_v2 or single_v3
	Kind string `json:"kind" enums:"direct_v2,two_hop_v2,single_v3" example:"direct_v2"`

	// Token path from input to output
	Path []string `json:"path" example:"0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913,0x4200000000000000000000000000000000000006"`

	// Constant-product pair addresses in hop order (v2 routes only)
	Pairs []string `json:"pairs,omitempty"`

	// Bridge amount received after the first hop (two-hop routes only)
	MidAmount string `json:"midAmount,omitempty"`

	// Pool fee tier in hundredths of a bip (v3 routes only)
	FeeTier uint32 `json:"feeTier,omitempty" example:"3000"`

	// Output of this route in raw units of the output token
	AmountOut string `json:"amountOut" example:"498003"`
}

// CandidateInfo is the outcome of one route lookup
type CandidateInfo struct {
	Kind      string `json:"kind" example:"two_hop_v2"`
	Available bool   `json:"available"`
	AmountOut string `json:"amountOut,omitempty"`
	// Read failure, if any. Missing liquidity is not an error.
	Error string `json:"error,omitempty"`
}

// QuoteResponse contains the best route with slippage-adjusted minimum output
type QuoteResponse struct {
	// Digest of the quoted input, identical for identical requests
	Fingerprint string `json:"fingerprint" example:"4f1c2a9e0b7d6c5a4f1c2a9e0b7d6c5a"`

	// Sequence of this quote within the session
	Sequence uint64 `json:"sequence" example:"7"`

	TokenIn  TokenInfo `json:"tokenIn"`
	TokenOut TokenInfo `json:"tokenOut"`

	// Input amount in raw units
	AmountIn string `json:"amountIn" example:"1500000"`

	// Input amount in whole tokens
	AmountInFormatted string `json:"amountInFormatted" example:"1.5"`

	// Expected output in raw units
	AmountOut string `json:"amountOut" example:"498003"`

	AmountOutFormatted string `json:"amountOutFormatted" example:"0.000498003"`

	// Minimum output after slippage: floor(amountOut * (10000 - slippageBps) / 10000)
	MinOut string `json:"minOut" example:"495512"`

	MinOutFormatted string `json:"minOutFormatted" example:"0.000495512"`

	SlippageBps uint16 `json:"slippageBps" example:"50"`

	// Price impact in basis points. Omitted for concentrated liquidity routes, which
	// carry no reserves to measure it against.
	PriceImpactBps *uint16 `json:"priceImpactBps,omitempty" example:"25"`

	// Human-readable price impact percentage
	PriceImpactPercent string `json:"priceImpactPercent,omitempty" example:"0.25%"`

	// Price impact severity classification
	PriceImpactSeverity string `json:"priceImpactSeverity,omitempty" enums:"none,low,moderate,high,extreme" example:"low"`

	// User-friendly warning message about price impact
	PriceImpactWarning string `json:"priceImpactWarning,omitempty"`

	Route RouteInfo `json:"route"`

	// Every route that was looked up, available or not
	Candidates []CandidateInfo `json:"candidates"`
}

func hexPath(route domain.Route) []string {
	path := make([]string, 0, 3)
	for _, a := range route.Path() {
		path = append(path, a.Hex())
	}
	return path
}

func newRouteInfo(route domain.Route) RouteInfo {
	info := RouteInfo{
		Kind:      route.Kind().String(),
		Path:      hexPath(route),
		AmountOut: route.AmountOut().String(),
	}
	switch r := route.(type) {
	case *domain.DirectV2Route:
		info.Pairs = []string{r.Pair.Pair.Hex()}
	case *domain.TwoHopV2Route:
		info.Pairs = []string{r.First.Pair.Hex(), r.Second.Pair.Hex()}
		info.MidAmount = r.MidAmount.String()
	case *domain.SingleV3Route:
		info.FeeTier = r.Fee
	}
	return info
}

func newCandidateInfo(c domain.Candidate) CandidateInfo {
	info := CandidateInfo{Kind: c.Kind.String(), Available: c.Available()}
	if c.Route != nil && c.Route.AmountOut() != nil {
		info.AmountOut = c.Route.AmountOut().String()
	}
	if c.Err != nil {
		info.Error = c.Err.Error()
	}
	return info
}

func newQuoteResponse(q *domain.QuoteResult) QuoteResponse {
	out := q.Best.AmountOut()
	resp := QuoteResponse{
		Fingerprint:        q.Fingerprint,
		Sequence:           q.Sequence,
		TokenIn:            newTokenInfo(q.TokenIn),
		TokenOut:           newTokenInfo(q.TokenOut),
		AmountIn:           q.AmountIn.String(),
		AmountInFormatted:  registry.FormatAmount(q.AmountIn, q.TokenIn.Decimals),
		AmountOut:          out.String(),
		AmountOutFormatted: registry.FormatAmount(out, q.TokenOut.Decimals),
		MinOut:             q.MinOut.String(),
		MinOutFormatted:    registry.FormatAmount(q.MinOut, q.TokenOut.Decimals),
		SlippageBps:        q.SlippageBps,
		Route:              newRouteInfo(q.Best),
	}
	if q.PriceImpactKnown {
		impact := q.PriceImpactBps
		resp.PriceImpactBps = &impact
		resp.PriceImpactPercent = fmt.Sprintf("%.2f%%", float64(impact)/100.0)
		resp.PriceImpactSeverity = string(router.GetPriceImpactSeverity(impact))
		resp.PriceImpactWarning = router.GetPriceImpactWarning(impact)
	}
	for _, c := range q.Candidates.All() {
		resp.Candidates = append(resp.Candidates, newCandidateInfo(c))
	}
	return resp
}

// sessionOf reads the quote session from the header, then the query string.
func sessionOf(c *gin.Context) string {
	if s := c.GetHeader(common.SessionHeader); s != "" {
		return s
	}
	return c.Query("session")
}

// @Summary Get swap quote
// @Description Quote an exact-input swap on Base. Three routes are looked up concurrently:
// @Description - the direct constant-product pair
// @Description - a two-hop constant-product route through WETH
// @Description - a single concentrated liquidity pool, when that venue is configured
// @Description
// @Description A usable concentrated liquidity quote always wins. Otherwise the larger
// @Description constant-product output wins and ties stay on the direct pair.
// @Description
// @Description Quotes are last-input-wins per session (X-Session-ID header): a response whose
// @Description request was overtaken by a newer one on the same session returns 409. Requests
// @Description without a session are never overtaken.
// @Tags quote
// @Produce json
// @Param tokenIn query string true "Input token symbol or address" example("USDC")
// @Param tokenOut query string true "Output token symbol or address" example("WETH")
// @Param amount query string true "Input amount in whole tokens" example("1.5")
// @Param slippageBps query int false "Slippage tolerance in basis points. Default: 50 (0.5%)" default(50)
// @Param X-Session-ID header string false "Quote session id"
// @Success 200 {object} QuoteResponse "Best route with minimum output"
// @Failure 400 {object} httputil.Response "Invalid request parameters"
// @Failure 404 {object} httputil.Response "No route found between the token pair"
// @Failure 409 {object} httputil.Response "Superseded by a newer quote on the same session"
// @Failure 503 {object} httputil.Response "Chain reads failed and no route could be established"
// @Router /api/v1/quote [get]
func (h *QuoteHandler) getQuote(c *gin.Context) {
	var req QuoteRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		httputil.BadRequest(c, "invalid query parameters: "+err.Error())
		return
	}

	quote, err := h.aggregatorSvc.Quote(c.Request.Context(), req.toQuoteRequest(sessionOf(c)))
	if err != nil {
		handleError(c, err)
		return
	}
	httputil.Success(c, newQuoteResponse(quote))
}
