package server

import (
	"context"
	"net/http"
	"time"

	"chatlog/internal/analytics"
	"chatlog/internal/auth"
	"chatlog/internal/config"
	"chatlog/internal/eventstore"
	"chatlog/internal/frequency"
	"chatlog/internal/handlers"
	"chatlog/internal/ingest"
	"chatlog/internal/retention"
	"chatlog/internal/session"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"
)

// Services bundles the application services the routes depend on.
type Services struct {
	Ingest    *ingest.Service
	Events    *eventstore.Service
	Sessions  *session.Service
	Queries   *frequency.Service
	Analytics *analytics.Service
	Retention *retention.Service
}

// Server represents the application server
type Server struct {
	echo     *echo.Echo
	db       *sqlx.DB
	config   *config.Config
	logger   zerolog.Logger
	services Services
	auth     *auth.Manager
}

// New creates a new server instance
func New(cfg *config.Config, db *sqlx.DB, services Services, logger zerolog.Logger) *Server {
	return &Server{
		config:   cfg,
		db:       db,
		logger:   logger,
		services: services,
		auth:     auth.NewManager(cfg),
	}
}

// zerologMiddleware creates a zerolog-based logging middleware for Echo
func (s *Server) zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			req := c.Request()
			res := c.Response()

			s.logger.Info().
				Str("method", req.Method).
				Str("uri", req.RequestURI).
				Str("remote_ip", c.RealIP()).
				Int("status", res.Status).
				Int64("latency_ms", time.Since(start).Milliseconds()).
				Str("user_agent", req.UserAgent()).
				Msg("HTTP request")

			return err
		}
	}
}

// Initialize sets up the Echo framework with middleware and routes
func (s *Server) Initialize() {
	s.echo = echo.New()

	// Middleware
	s.echo.Use(s.zerologMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORS())

	// Hide Echo banner
	s.echo.HideBanner = true

	// Setup routes
	s.setupRoutes()
}

// setupRoutes configures all the application routes
func (s *Server) setupRoutes() {
	// API group with /api prefix
	api := s.echo.Group("/api")

	// Swagger documentation
	s.echo.GET("/swagger/*", echoSwagger.WrapHandler)

	// Health endpoints (keep at root level for monitoring)
	s.echo.GET("/healthz", handlers.HealthHandler(s.config.Version))
	s.echo.GET("/healthz/db", handlers.DBHealthHandler(s.db))

	// Public API endpoints
	api.GET("/", handlers.RootHandler(s.config.Version))
	api.POST("/messages", handlers.SubmitMessageHandler(s.services.Ingest))
	api.GET("/analytics/recent", handlers.RecentActivityHandler(s.services.Analytics))
	api.GET("/analytics/dashboard", handlers.DashboardHandler(s.services.Analytics))
	api.GET("/analytics/intents", handlers.TopIntentsHandler(s.services.Analytics))

	// Admin endpoints behind token auth
	api.POST("/admin/login", handlers.AdminLoginHandler(s.auth))

	admin := api.Group("/admin", auth.Middleware(s.auth))
	admin.GET("/sessions", handlers.ListSessionsHandler(s.services.Sessions))
	admin.GET("/sessions/:sessionId", handlers.GetSessionHandler(s.services.Sessions, s.services.Events))
	admin.POST("/sessions/:sessionId/outcome", handlers.SetSessionOutcomeHandler(s.services.Sessions))
	admin.GET("/queries/top", handlers.TopQueriesHandler(s.services.Queries))
	admin.POST("/queries/reset", handlers.ResetQueriesHandler(s.services.Queries))
	admin.POST("/retention/run", handlers.RunRetentionHandler(
		s.services.Retention, s.config.MessageRetentionDays, s.config.AnalyticsRetentionDays))
}

// Handler exposes the routed handler for in-process testing.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info().Str("port", s.config.Port).Msg("Server starting")
	return s.echo.Start(":" + s.config.Port)
}

// Shutdown stops the HTTP server gracefully
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
