// Package http provides the HTTP adapter for the application layer.
// This is a thin layer that translates HTTP requests to application service calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/trungvu/tripflow/internal/application/service"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Server is the HTTP server adapter
type Server struct {
	config            ServerConfig
	httpServer        *http.Server
	router            *gin.Engine
	submissionService service.SubmissionService
	decisionService   service.DecisionService
	optimizerService  service.OptimizerService
	auditService      service.AuditService
	logger            Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(
	config ServerConfig,
	submissionService service.SubmissionService,
	decisionService service.DecisionService,
	optimizerService service.OptimizerService,
	auditService service.AuditService,
	logger Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config:            config,
		router:            gin.New(),
		submissionService: submissionService,
		decisionService:   decisionService,
		optimizerService:  optimizerService,
		auditService:      auditService,
		logger:            logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.submissionService, s.decisionService, s.optimizerService, s.auditService, s.logger)

	// Health check
	s.router.GET("/health", handlers.HealthCheck)

	// One-click manager decision links land here from the approval email.
	s.router.GET("/approval/decide", handlers.DecideByToken)

	api := s.router.Group("/api/v1")
	{
		api.POST("/trips", handlers.SubmitTrip)
		api.GET("/trips", handlers.ListTrips)
		api.GET("/trips/:id", handlers.GetTrip)
		api.POST("/trips/:id/cancel", handlers.CancelTrip)

		api.GET("/groups/:id", handlers.GetGroup)
		api.GET("/audit", handlers.QueryAudit)

		admin := api.Group("/admin", handlers.requireAdmin)
		{
			admin.POST("/trips/:id/override", handlers.AdminOverride)
			admin.POST("/optimize", handlers.RunOptimizer)
			admin.POST("/groups/:id/approve", handlers.ApproveGroup)
			admin.POST("/groups/:id/reject", handlers.RejectGroup)
		}
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled or the
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}
