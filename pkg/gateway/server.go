// Package gateway serves the operational HTTP endpoints: health, Prometheus
// metrics and curation store counts.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nomland/nunti/pkg/config"
	"github.com/nomland/nunti/pkg/logger"
	"github.com/nomland/nunti/pkg/store"
)

// StatsSource reports the current store counts.
type StatsSource interface {
	Stats() store.Stats
}

type Server struct {
	srv    *http.Server
	engine *gin.Engine
}

// NewServer builds the router. ready reports whether the bot is polling;
// a nil ready always reports healthy.
func NewServer(cfg config.GatewayConfig, stats StatsSource, ready func() bool) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	RegisterRoutes(r, stats, ready)

	return &Server{
		engine: r,
		srv: &http.Server{
			Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

func RegisterRoutes(r *gin.Engine, stats StatsSource, ready func() bool) {
	r.GET("/healthz", func(c *gin.Context) {
		if ready != nil && !ready() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	v1.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, stats.Stats())
	})
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start listens in the background. Listen errors other than a clean
// shutdown are logged.
func (s *Server) Start() {
	logger.InfoCF("gateway", "Ops server listening", map[string]interface{}{
		"addr": s.srv.Addr,
	})
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorCF("gateway", "Ops server stopped", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
