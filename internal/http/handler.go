package http

import (
	"context"
	"fmt"
	gohttp "net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	aggregator "github.com/hxuan190/swap-engine/internal/aggregator"
	"github.com/hxuan190/swap-engine/internal/common"
	"github.com/hxuan190/swap-engine/internal/config"
	"github.com/hxuan190/swap-engine/internal/http/httputil"
	"github.com/hxuan190/swap-engine/internal/http/middlewares"
)

const (
	API_VERSION  = "v1"
	HTTP_SERVICE = "http-service"
)

type HTTPService struct {
	aggregatorSvc *aggregator.Service
	rateLimiter   *middlewares.RateLimiter
	server        *gohttp.Server
	conf          config.GeneralConfig

	handlers []httputil.IHttpHandler
}

func NewHTTPService(conf config.GeneralConfig, aggregatorSvc *aggregator.Service) *HTTPService {
	return &HTTPService{
		aggregatorSvc: aggregatorSvc,
		rateLimiter:   middlewares.NewRateLimiter(10, 20),
		conf:          conf,
		handlers: []httputil.IHttpHandler{
			NewTokenHandler(aggregatorSvc),
			NewQuoteHandler(aggregatorSvc),
			NewSwapHandler(aggregatorSvc),
			NewTxHandler(aggregatorSvc),
		},
	}
}

func (svc *HTTPService) ID() string {
	return HTTP_SERVICE
}

// Engine builds the gin router with every route mounted.
func (svc *HTTPService) Engine() *gin.Engine {
	if svc.conf.Env == config.ProdEnv {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	corsConf := cors.DefaultConfig()
	corsConf.AllowAllOrigins = true
	corsConf.AddAllowHeaders(common.SessionHeader, "Authorization")
	r.Use(cors.New(corsConf))

	r.Use(middlewares.MetricsMiddleware("/metrics", "/health"))
	r.Use(svc.rateLimiter.RateLimitMiddleware())

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(gohttp.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("api")
	pub := api.Group(API_VERSION)
	priv := api.Group(API_VERSION, middlewares.BearerAuthMiddleware(svc.conf.PrivateToken))

	admin := api.Group(fmt.Sprintf("%s/admin", API_VERSION), middlewares.BearerAuthMiddleware(svc.conf.PrivateToken))

	svc.setupHandlers(pub, priv, admin)
	return r
}

// Start serves until Stop is called.
func (svc *HTTPService) Start() error {
	svc.server = &gohttp.Server{
		Addr:    svc.conf.Addr(),
		Handler: svc.Engine(),
	}
	log.Info().Str("host", svc.conf.HTTPHost).Str("port", svc.conf.HTTPPort).Msg("[httpService] http server started")

	if err := svc.server.ListenAndServe(); err != nil && err != gohttp.ErrServerClosed {
		return err
	}

	return nil
}

func (svc *HTTPService) Stop() error {
	if svc.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), common.ShutdownTimeout)
	defer cancel()

	if err := svc.server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("[httpService] failed to stop http server")
		return err
	}
	log.Info().Msg("[httpService] http server stopped gracefully")
	return nil
}

func (svc *HTTPService) setupHandlers(
	rootPub *gin.RouterGroup,
	rootPriv *gin.RouterGroup,
	rootAdmin *gin.RouterGroup,
) {
	for _, h := range svc.handlers {
		pub := rootPub.Group(h.Root())
		priv := rootPriv.Group(h.Root())
		admin := rootAdmin.Group(h.Root())
		h.SetRoutes(pub, priv, admin)
	}
}
