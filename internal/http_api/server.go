package http_api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wishliste/donum/internal/config"
	"github.com/wishliste/donum/internal/metrics"
	"github.com/wishliste/donum/internal/models"
	"github.com/wishliste/donum/pkg/logger"
)

const (
	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout = 10 * time.Second
)

// HTTPServer is the HTTP server struct that will serve the API
type HTTPServer struct {
	// logger is the logger instance
	logger *logger.Logger
	// config holds ports, cookie and rate limit settings
	config *config.Config

	// router is the HTTP router
	router *gin.Engine
	// server is the underlying HTTP server
	server *http.Server

	// donum is the main application struct
	donum   models.DonumI
	metrics *metrics.Metrics
	limiter *clientLimiter

	// closing ends websocket, event and poll streams so they do not hold
	// up Shutdown.
	closing   chan struct{}
	closeOnce sync.Once
}

// NewHTTPServer creates a new HTTP server instance
func NewHTTPServer(donum models.DonumI, cfg *config.Config, m *metrics.Metrics, logger *logger.Logger) *HTTPServer {
	if !cfg.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(requestLogger(logger.Named("http")), recovery(logger), corsMiddleware(cfg.AllowedOrigins))

	server := &HTTPServer{
		router:  router,
		config:  cfg,
		donum:   donum,
		metrics: m,
		logger:  logger.Named("http"),
		limiter: newClientLimiter(cfg.ReserveRateLimit, cfg.ReserveRateBurst),
		closing: make(chan struct{}),
	}

	// Define routes
	server.routes()

	server.server = &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%v", cfg.APIPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return server
}

// Handler exposes the router, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.logger.Info("Starting HTTP server", "address", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start the HTTP server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the HTTP server
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, ShutdownTimeout)
	defer cancel()

	s.logger.Info("Shutting down HTTP server...")
	s.closeOnce.Do(func() { close(s.closing) })
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", err)
	}

	s.logger.Info("HTTP server shut down successfully")
	return nil
}
