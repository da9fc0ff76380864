package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"comm-terminal/internal/config"
	"comm-terminal/internal/delivery/http/handler"
	"comm-terminal/internal/delivery/ws"
	"comm-terminal/internal/logger"
	"comm-terminal/internal/middleware"
	"comm-terminal/internal/transport/realtime"
	"comm-terminal/internal/transport/rest"
)

// Handlers bundles the constructed delivery handlers for route wiring.
type Handlers struct {
	Broadcast *handler.BroadcastHandler
	Channel   *handler.ChannelHandler
	Direct    *handler.DirectHandler
	Device    *handler.DeviceHandler
	Sync      *handler.SyncHandler
}

func SetupRoutes(cfg *config.Config, backend *rest.Client, rt *realtime.Subscriber, hub *ws.Hub, h Handlers) *gin.Engine {
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware in order: recovery, request ID, logging, security headers,
	// CORS, request size limit, general rate limit.
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggingMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.CORSMiddleware(&cfg.CORS))
	router.Use(middleware.RequestSizeLimitMiddleware(middleware.DefaultMaxRequestSize))
	router.Use(middleware.RateLimitMiddleware(cfg.RateLimit.GeneralRPS, cfg.RateLimit.GeneralBurst))

	router.GET("/health", func(c *gin.Context) {
		if err := backend.Health(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "unhealthy",
				"message": "Backend unreachable",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":   "healthy",
			"message":  "Service is running",
			"realtime": rt.Connected(),
		})
	})

	v1 := router.Group("/api/v1")
	{
		protected := v1.Group("")
		protected.Use(middleware.AuthMiddleware(cfg))
		{
			h.Broadcast.RegisterRoutes(protected)
			h.Channel.RegisterRoutes(protected)
			h.Direct.RegisterRoutes(protected)
			h.Device.RegisterRoutes(protected)
			h.Sync.RegisterRoutes(protected)

			protected.GET("/stream", ws.ServeWS(hub))
		}
	}

	logger.Info("All routes initialized")
	return router
}
