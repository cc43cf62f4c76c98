package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/0xguardapp/0xguard-engine/internal/judge"
	"github.com/0xguardapp/0xguard-engine/pkg/logging"
)

// Config holds the server configuration
type Config struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server exposes the judge's HTTP surface: intake endpoints feeding the
// transport pump, plus the read-only control side.
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	logger     logging.Logger
}

func NewServer(cfg Config, logger logging.Logger, engine *judge.Engine, intake Intake) *Server {
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 30 * time.Second
	}

	router := gin.New()

	srv := &Server{
		router: router,
		logger: logger,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%s", cfg.Port),
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}

	srv.setupRoutes(engine, intake)
	return srv
}

func (s *Server) setupRoutes(engine *judge.Engine, intake Intake) {
	handler := NewHandler(s.logger, engine, intake)

	s.router.Use(gin.Recovery())
	s.router.Use(LoggingMiddleware(s.logger))

	s.router.POST("/attacks", handler.HandleAttackIntake)
	s.router.POST("/claims", handler.HandleClaimIntake)

	s.router.GET("/health", handler.HandleHealth)
	s.router.GET("/status", handler.HandleStatus)
	s.router.GET("/stats", handler.HandleStats)
	s.router.GET("/earnings/:submitter", handler.HandleEarnings)
	s.router.GET("/events/:type", handler.HandleEvents)
	s.router.GET("/payouts", handler.HandlePayouts)
	s.router.GET("/proofs/:audit_id", handler.HandleProof)
	s.router.GET("/metrics", handler.HandleMetrics)
}

// Start starts the server and blocks until shutdown.
func (s *Server) Start() error {
	s.logger.Infof("Starting judge API server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start judge API server: %w", err)
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Infof("Stopping judge API server")
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the underlying router for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
