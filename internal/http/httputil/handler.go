package httputil

import "github.com/gin-gonic/gin"

// IHttpHandler mounts one resource. Routes are registered relative to Root on the public,
// private and admin groups of /api/v1.
type IHttpHandler interface {
	Root() string
	SetRoutes(pub *gin.RouterGroup, private *gin.RouterGroup, admin *gin.RouterGroup)
}
