package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/smallbiznis/valora-connect/internal/config"
	"github.com/smallbiznis/valora-connect/internal/http/handler"
	httpmiddleware "github.com/smallbiznis/valora-connect/internal/http/middleware"
	"github.com/smallbiznis/valora-connect/internal/middleware"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(cfg config.Config, connectHandler *handler.ConnectHandler, authMiddleware *httpmiddleware.Auth, rateLimiter *middleware.RateLimiter) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestLogger(nil))
	if rateLimiter != nil {
		r.Use(rateLimiter.Handler())
	}
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	oauth := r.Group("/oauth")
	{
		oauth.GET("/launch/:provider", authMiddleware.Authenticate, connectHandler.Launch)
		// The provider redirects back here; identity travels in the state.
		oauth.GET("/callback/:provider", connectHandler.Callback)
		oauth.POST("/audit", authMiddleware.Authenticate, connectHandler.Audit)
		oauth.GET("/providers", authMiddleware.Authenticate, connectHandler.Providers)
	}

	connections := r.Group("/connections")
	{
		connections.POST("/:provider/deactivate", authMiddleware.Authenticate, connectHandler.Deactivate)
	}

	r.GET("/healthz", connectHandler.Healthz)

	return r
}
