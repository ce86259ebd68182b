package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-relay/internal/config"
	"github.com/vovakirdan/wirechat-relay/internal/core"
)

// NewServer builds an HTTP server with the WebSocket endpoint and the read API.
func NewServer(hub *core.Hub, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", healthHandler)

	// Clients dial the root; /ws is kept for tooling.
	ws := gin.WrapH(NewWSHandler(hub, cfg, logger))
	router.GET("/", ws)
	router.GET("/ws", ws)

	api := NewAPIHandlers(hub, logger)
	apiGroup := router.Group("/api")
	{
		apiGroup.GET("/online", api.Online)
		apiGroup.GET("/history", api.History)
	}

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func healthHandler(c *gin.Context) {
	c.String(stdhttp.StatusOK, "ok")
}
