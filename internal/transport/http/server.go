package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/driftline/chatwire/internal/auth"
	"github.com/driftline/chatwire/internal/config"
	"github.com/driftline/chatwire/internal/core"
	"github.com/driftline/chatwire/internal/store"
)

// NewServer builds the HTTP server: health, metrics and the ws endpoint.
func NewServer(
	registry *core.Registry,
	dispatcher *core.Dispatcher,
	aggregator *core.Aggregator,
	validator *auth.Validator,
	st store.Store,
	cfg *config.Config,
	logger *zerolog.Logger,
) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	ws := NewWSHandler(registry, dispatcher, aggregator, validator, st, cfg.QueueCapacity, logger)
	router.GET("/ws", gin.WrapH(ws))

	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}
