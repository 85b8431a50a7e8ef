// Package server is the outer HTTP front end. It accepts raw requests,
// resolves the leading numeric path segment to a live session, and
// hands the request to that session's protocol engine. Everything
// protocol-shaped lives in internal/session; this package only does
// listener lifecycle, routing and service-level endpoints.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/retroview/retroview/internal/config"
	"github.com/retroview/retroview/internal/logging"
	"github.com/retroview/retroview/internal/monitoring"
	"github.com/retroview/retroview/internal/session"
)

// Server wraps the HTTP listener and its dependencies.
type Server struct {
	router  *gin.Engine
	manager *session.Manager
	metrics *monitoring.Metrics
	log     *logging.Logger
	http    *http.Server
}

// NewServer wires the gin engine, middleware and routes.
func NewServer(
	cfg *config.Config,
	log *logging.Logger,
	metrics *monitoring.Metrics,
	manager *session.Manager,
	gatherer prometheus.Gatherer,
) *Server {
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics, log))

	s := &Server{
		router:  router,
		manager: manager,
		metrics: metrics,
		log:     log,
	}

	router.GET("/", s.handleNewWindow)
	router.GET("/healthz", s.handleHealth)
	router.GET("/stats", s.handleStats)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// Session routes carry a numeric ID prefix and a grammar of their
	// own; everything unmatched above goes through the session
	// dispatcher, which produces the protocol's 400s itself.
	router.NoRoute(s.handleSession)

	return s
}

// Run starts serving on addr and blocks until the listener fails or
// Shutdown is called.
func (s *Server) Run(addr string) error {
	s.http = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the listener gracefully and closes every session.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.http != nil {
		err = s.http.Shutdown(ctx)
	}
	s.manager.Stop()
	return err
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"sessions": s.manager.SessionCount(),
		"uptime":   s.metrics.Uptime().Round(time.Second).String(),
	})
}
