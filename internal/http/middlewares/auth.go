package middlewares

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/hxuan190/swap-engine/internal/common"
	"github.com/hxuan190/swap-engine/internal/http/httputil"
)

const bearerPrefix = "Bearer "

// BearerAuthMiddleware admits requests carrying "Authorization: Bearer <token>". An empty
// token closes the group entirely.
func BearerAuthMiddleware(token string) gin.HandlerFunc {
	if token == "" {
		return func(c *gin.Context) {
			httputil.HttpError(c, common.HTTPErrorForbidden("private routes are disabled"))
			c.Abort()
		}
	}

	want := []byte(token)
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) {
			httputil.HttpError(c, common.HTTPErrorUnauthorized("missing bearer token"))
			c.Abort()
			return
		}
		got := []byte(strings.TrimPrefix(header, bearerPrefix))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			httputil.HttpError(c, common.HTTPErrorUnauthorized("invalid bearer token"))
			c.Abort()
			return
		}
		c.Next()
	}
}
