package http

import (
	"github.com/gin-gonic/gin"

	aggregator "github.com/hxuan190/swap-engine/internal/aggregator"
	"github.com/hxuan190/swap-engine/internal/domain"
	"github.com/hxuan190/swap-engine/internal/http/httputil"
)

type TokenHandler struct {
	aggregatorSvc *aggregator.Service
}

func NewTokenHandler(aggregatorSvc *aggregator.Service) *TokenHandler {
	return &TokenHandler{aggregatorSvc: aggregatorSvc}
}

func (h *TokenHandler) SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup) {
	pub.GET("", h.listTokens)
	pub.GET("/:id", h.getToken)
}

func (h *TokenHandler) Root() string {
	return "/tokens"
}

// TokenInfo describes a supported ERC-20 token
type TokenInfo struct {
	// Token contract address (EIP-55 checksummed)
	Address string `json:"address" example:"0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913"`

	Symbol string `json:"symbol" example:"USDC"`

	Name string `json:"name" example:"USD Coin"`

	// Number of decimals of the token's raw unit
	Decimals uint8 `json:"decimals" example:"6"`

	LogoURI string `json:"logoURI,omitempty"`
}

func newTokenInfo(t domain.Token) TokenInfo {
	return TokenInfo{
		Address:  t.Address.Hex(),
		Symbol:   t.Symbol,
		Name:     t.Name,
		Decimals: t.Decimals,
		LogoURI:  t.LogoURI,
	}
}

// TokenListResponse is the static token list
type TokenListResponse struct {
	Tokens []TokenInfo `json:"tokens"`
	Total  int         `json:"total" example:"3"`
}

// @Summary List tokens
// @Description List the tokens that can be quoted and swapped, in registry order.
// @Tags tokens
// @Produce json
// @Success 200 {object} TokenListResponse
// @Router /api/v1/tokens [get]
func (h *TokenHandler) listTokens(c *gin.Context) {
	tokens := h.aggregatorSvc.Tokens()
	infos := make([]TokenInfo, 0, len(tokens))
	for _, t := range tokens {
		infos = append(infos, newTokenInfo(t))
	}
	httputil.Success(c, TokenListResponse{Tokens: infos, Total: len(infos)})
}

// @Summary Get token
// @Description Resolve a token by symbol or address, both case-insensitive.
// @Tags tokens
// @Produce json
// @Param id path string true "Token symbol or address" example("USDC")
// @Success 200 {object} TokenInfo
// @Failure 400 {object} httputil.Response "Unknown token"
// @Router /api/v1/tokens/{id} [get]
func (h *TokenHandler) getToken(c *gin.Context) {
	token, err := h.aggregatorSvc.ResolveToken(c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	httputil.Success(c, newTokenInfo(token))
}
