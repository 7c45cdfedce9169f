// Package http provides the API server wiring: routes, guard middleware, and
// the metrics server.
package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"

	authHTTP "github.com/mesaops/perimeter/internal/auth/http"
	"github.com/mesaops/perimeter/internal/config"
)

// Server is the public API server carrying the authentication endpoints.
type Server struct {
	server *http.Server
	router *gin.Engine
	logger *slog.Logger
}

// NewServer builds the API server and its route table.
//
// Route layout:
//
//	POST /v1/auth/login     rate-limited
//	POST /v1/auth/register  rate-limited
//	POST /v1/auth/refresh   rate-limited
//	POST /v1/auth/logout    CSRF-checked
//	GET  /v1/auth/me        authenticated
//	GET  /health, /ready    unauthenticated probes
func NewServer(
	cfg *config.Config,
	logger *slog.Logger,
	authHandler *authHTTP.AuthHandler,
	guard *authHTTP.GuardMiddleware,
	metricsMiddleware gin.HandlerFunc,
) *Server {
	gin.SetMode(cfg.GetGinMode())

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestid.New())
	router.Use(CustomLoggerMiddleware(logger))
	if metricsMiddleware != nil {
		router.Use(metricsMiddleware)
	}
	if corsMiddleware := createCORSMiddleware(cfg.CORSEnabled, cfg.CORSAllowOrigins, logger); corsMiddleware != nil {
		router.Use(corsMiddleware)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	router.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	v1 := router.Group("/v1/auth")
	{
		// Unauthenticated endpoints carry the rate limiter: this is where
		// credential stuffing concentrates.
		public := v1.Group("")
		if cfg.RateLimitEnabled {
			public.Use(guard.RateLimit())
		}
		public.POST("/login", authHandler.LoginHandler)
		public.POST("/register", authHandler.RegisterHandler)
		public.POST("/refresh", authHandler.RefreshHandler)

		session := v1.Group("")
		if cfg.CSRFEnabled {
			session.Use(guard.RequireCSRF())
		}
		session.POST("/logout", authHandler.LogoutHandler)

		v1.GET("/me", guard.RequireAuth(), authHandler.MeHandler)
	}

	return &Server{
		router: router,
		logger: logger,
		server: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
}

// Router exposes the gin engine so guarded application routes can be attached
// and tests can drive the handler directly.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start starts the API server.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("starting api server", slog.String("addr", s.server.Addr))

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down api server")
	return s.server.Shutdown(ctx)
}
