// Package httpapi serves the SLO engine's operational REST API, health probe
// and Prometheus scrape endpoint.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/apflow/ap-slo-engine/internal/services"
)

// Server is the REST server.
type Server struct {
	logger *slog.Logger
	svc    *services.SLOService
	router *gin.Engine
	http   *http.Server
}

// NewServer builds the router. A nil gatherer serves the default Prometheus registry.
func NewServer(logger *slog.Logger, svc *services.SLOService, gatherer prometheus.Gatherer) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	s := &Server{logger: logger, svc: svc, router: router}
	s.http = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/measurements/run", s.handleRun)
		v1.GET("/slos", s.handleListSLOs)
		v1.POST("/slos/:id/calculate", s.handleCalculate)
		v1.POST("/slos/:id/enable", s.handleSetActive(true))
		v1.POST("/slos/:id/disable", s.handleSetActive(false))
		v1.GET("/slos/:id/history", s.handleHistory)
		v1.GET("/alerts", s.handleListAlerts)
		v1.POST("/alerts/:id/acknowledge", s.handleAcknowledge)
		v1.POST("/alerts/:id/resolve", s.handleResolve)
		v1.GET("/dashboard", s.handleDashboard)
	}
	return s
}

// Handler exposes the router (useful for tests).
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve accepts connections on lis until Shutdown is called.
func (s *Server) Serve(lis net.Listener) error {
	if err := s.http.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve http: %w", err)
	}
	return nil
}

// ListenAndServe binds addr and serves until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(lis)
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		level := slog.LevelDebug
		if status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", status),
			slog.Duration("latency", time.Since(start)),
		)
	}
}
