// Package api serves the playmesh control plane over HTTP: the public
// session API, the agent callback API, and a websocket feed of session
// events.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/playmesh/playmesh/internal/auth"
	"github.com/playmesh/playmesh/internal/billing"
	"github.com/playmesh/playmesh/internal/config"
	"github.com/playmesh/playmesh/internal/orchestration"
	"github.com/playmesh/playmesh/internal/storage"
	"github.com/playmesh/playmesh/internal/version"
)

// Server is the playmesh API server.
type Server struct {
	echo         *echo.Echo
	storage      *storage.Storage
	config       *config.Config
	orchestrator *orchestration.Orchestrator
	billing      *billing.Service
	wsHub        *Hub
	authService  *auth.Service
	authMiddle   *auth.Middleware
}

// debugLog logs a message only when debug mode is enabled.
func (s *Server) debugLog(format string, args ...interface{}) {
	if s.config.Server.Debug {
		log.Printf(format, args...)
	}
}

// New creates an API server. The hub's broadcast loop starts immediately.
func New(cfg *config.Config, store *storage.Storage, orch *orchestration.Orchestrator, bill *billing.Service, hub *Hub) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Debug = cfg.Server.Debug
	e.HTTPErrorHandler = HTTPErrorHandler

	if hub == nil {
		hub = NewHub()
	}

	authService := auth.NewService(cfg)

	server := &Server{
		echo:         e,
		storage:      store,
		config:       cfg,
		orchestrator: orch,
		billing:      bill,
		wsHub:        hub,
		authService:  authService,
		authMiddle:   auth.NewMiddleware(authService),
	}

	go hub.Run()

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// Hub returns the websocket hub so callers can wire it as an event sink.
func (s *Server) Hub() *Hub {
	return s.wsHub
}

// setupMiddleware configures the echo middleware chain.
func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "[${time_rfc3339}] ${status} ${method} ${uri} (${latency_human})\n",
	}))

	s.echo.Use(middleware.Recover())
	s.echo.Use(SecurityHeaders)

	if len(s.config.Security.AllowedOrigins) > 0 {
		s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: s.config.Security.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		}))
	}

	s.echo.Use(middleware.RequestID())

	if s.config.Security.RateLimit > 0 {
		s.echo.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(
			rate.Limit(s.config.Security.RateLimit),
		)))
	}

	s.echo.Use(ValidateContentType)
}

// setupRoutes configures the public, agent, and websocket routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	sessions := s.echo.Group("/sessions")
	sessions.POST("", s.createSession)
	sessions.GET("/:host_id", s.getSession)
	sessions.POST("/:host_id/stop", s.stopSession)
	sessions.DELETE("/:host_id", s.destroySession)

	platforms := s.echo.Group("/platforms")
	platforms.GET("", s.listPlatforms)
	platforms.GET("/:platform", s.getPlatform)
	platforms.PUT("/:platform", s.putPlatform)

	s.echo.GET("/placements/candidates", s.placementCandidates)
	s.echo.GET("/billing", s.billingReport)

	hosts := s.echo.Group("/hosts")
	hosts.GET("/:vm_token/manifest", s.getManifest)
	hosts.POST("/:host_id/started", s.agentStarted, s.authMiddle.RequireAgent)
	hosts.POST("/:host_id/save_event", s.agentSaveEvent, s.authMiddle.RequireAgent)
	hosts.POST("/:host_id/idle", s.agentIdle, s.authMiddle.RequireAgent)
	hosts.POST("/:host_id/ended", s.agentEnded, s.authMiddle.RequireAgent)

	s.echo.GET("/ws/events", s.handleEventSocket)
}

// Start runs the HTTP server until Shutdown or listen failure.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	log.Printf("api: listening on http://%s (debug=%v)", addr, s.config.Server.Debug)

	s.echo.Server.ReadTimeout = s.config.Server.ReadTimeout
	s.echo.Server.WriteTimeout = s.config.Server.WriteTimeout

	return s.echo.Start(addr)
}

// Shutdown gracefully drains the server and closes storage.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	if err := s.storage.Close(); err != nil {
		return fmt.Errorf("closing storage: %w", err)
	}
	return nil
}

// ServeHTTP lets tests drive the router without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// healthCheck reports control-plane health and fleet counts.
func (s *Server) healthCheck(c echo.Context) error {
	stats, err := s.storage.GetFleetStats()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unhealthy",
			"error":  "storage unavailable",
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "playmesh",
		"version": version.Version,
		"fleet":   stats,
	})
}
