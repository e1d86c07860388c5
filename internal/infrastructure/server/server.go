// Package server runs the optional debug HTTP server exposing Prometheus
// metrics and the state of the shell session.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/robertmeta/dwim/internal/infrastructure/logging"
	"github.com/robertmeta/dwim/internal/infrastructure/monitoring"
	"github.com/robertmeta/dwim/internal/shell"
)

// SessionSource reports the current shell session
type SessionSource interface {
	Info() shell.SessionInfo
}

// Config holds debug server settings
type Config struct {
	Addr        string
	Development bool
}

// Health is the /healthz response body
type Health struct {
	Status  string            `json:"status"`
	Session shell.SessionInfo `json:"session"`
}

// Server wraps the debug HTTP server and its dependencies
type Server struct {
	router   *gin.Engine
	httpSrv  *http.Server
	listener net.Listener
	logger   *logging.Logger
	addr     string
}

// New builds the router. Call Start to begin serving.
func New(cfg Config, gatherer prometheus.Gatherer, sessions SessionSource, metrics *monitoring.Metrics, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))

	router.GET("/healthz", func(c *gin.Context) {
		info := sessions.Info()
		health := Health{Status: "ok", Session: info}
		code := http.StatusOK
		if info.State != shell.StateReady.String() && info.State != shell.StateBusy.String() {
			health.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, health)
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	return &Server{
		router: router,
		logger: logger.Named("debug"),
		addr:   cfg.Addr,
	}
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	s.httpSrv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.logger.Info("Starting debug server", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("debug server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address once started
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Close shuts the server down gracefully
func (s *Server) Close(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	s.logger.Info("Shutting down debug server...")
	return s.httpSrv.Shutdown(ctx)
}
