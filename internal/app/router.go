package app

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/pCruvinel/Minervav2-sub003/internal/api/handlers"
	"github.com/pCruvinel/Minervav2-sub003/internal/api/middleware"
	"github.com/pCruvinel/Minervav2-sub003/internal/config"
	"github.com/pCruvinel/Minervav2-sub003/internal/domain"
	"github.com/pCruvinel/Minervav2-sub003/internal/pkg/logger"
)

const apiBasePath = "/api/v1"

// defaultAllowedOrigins are the local frontend dev servers.
var defaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
}

func newRouter(cfg *config.Config, server *handlers.Server, jwtCfg middleware.JWTConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestID(), cors.New(buildCORSConfig(cfg)))

	// Response validation runs outside ErrorHandler so rendered errors are
	// checked against the contract too.
	api := router.Group(apiBasePath,
		middleware.MustOpenAPIValidator(apiBasePath, middleware.WithResponseValidation()),
		middleware.ErrorHandler(),
	)
	server.RegisterPublic(api)

	protected := api.Group("",
		middleware.JWTAuth(jwtCfg),
		middleware.StoreTimeout(cfg.Server.StoreTimeout),
	)
	server.RegisterProtected(protected)

	debug := router.Group("/debug",
		middleware.ErrorHandler(),
		middleware.JWTAuth(jwtCfg),
		middleware.RequireCargo("change log level", domain.CargoAdmin),
	)
	debug.Any("/loglevel", gin.WrapH(logger.HTTPHandler()))

	return router
}

// buildCORSConfig restricts origins to the configured allowlist. A "*"
// entry is honoured only with UnsafeAllowAllOrigins, which also turns
// credentials off.
func buildCORSConfig(cfg *config.Config) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: cfg.Server.AllowCredentials,
		MaxAge:           12 * time.Hour,
	}

	if cfg.Server.UnsafeAllowAllOrigins {
		c.AllowAllOrigins = true
		c.AllowCredentials = false
		return c
	}

	origins := make([]string, 0, len(cfg.Server.AllowedOrigins))
	for _, o := range cfg.Server.AllowedOrigins {
		if o == "*" {
			continue
		}
		origins = append(origins, o)
	}
	if len(origins) == 0 {
		origins = append(origins, defaultAllowedOrigins...)
	}
	c.AllowOrigins = origins
	return c
}
