// Package api exposes the engine over HTTP: snapshot tick ingest and
// thread views for the agent platform, deploy controls, a WebSocket
// stream, and a dashboard surface behind WorkOS session auth.
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/openpreview/openpreview/internal/auth"
	"github.com/openpreview/openpreview/internal/engine"
	"github.com/openpreview/openpreview/internal/metrics"
	"github.com/openpreview/openpreview/internal/store"
)

// Config holds the API server dependencies. PG, JWTIssuer and WorkOS are
// optional: without PG the static APIKey guards the API, without a JWT
// issuer stream tokens are disabled, and without WorkOS the dashboard
// routes are not registered at all.
type Config struct {
	Engine    *engine.Engine
	PG        *store.Postgres
	JWTIssuer *auth.JWTIssuer
	WorkOS    *auth.WorkOSMiddleware
	APIKey    string
}

// Server holds the API server state.
type Server struct {
	echo      *echo.Echo
	engine    *engine.Engine
	pg        *store.Postgres
	jwtIssuer *auth.JWTIssuer
	workos    *auth.WorkOSMiddleware
	apiKey    string
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:      e,
		engine:    cfg.Engine,
		pg:        cfg.PG,
		jwtIssuer: cfg.JWTIssuer,
		workos:    cfg.WorkOS,
		apiKey:    cfg.APIKey,
	}

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())
	e.Use(metrics.EchoMiddleware())

	// Health check and metrics (no auth)
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	// API routes (with auth)
	api := e.Group("/api/v1")
	api.Use(auth.PGAPIKeyMiddleware(cfg.PG, cfg.APIKey))

	// Thread state and views
	api.GET("/threads", s.listThreads)
	api.POST("/threads/:id/state", s.applyState)
	api.GET("/threads/:id/status", s.getStatus)
	api.GET("/threads/:id/tree", s.getTree)
	api.GET("/threads/:id/changes", s.getChanges)
	api.GET("/threads/:id/file", s.getFile)
	api.GET("/threads/:id/record", s.getRecord)
	api.GET("/threads/:id/events", s.listEvents)

	// Deploy controls
	api.POST("/threads/:id/deploy", s.deployNow)
	api.POST("/threads/:id/cancel", s.cancelCountdown)
	api.POST("/threads/:id/reset", s.resetThread)

	// Frameworks
	api.GET("/frameworks", s.listFrameworks)

	// Stream token minting happens under API key auth; the stream itself
	// accepts either an API key or a thread-scoped token.
	api.POST("/threads/:id/stream-token", s.mintStreamToken)
	e.GET("/api/v1/threads/:id/stream", s.threadStream)

	// Dashboard OAuth flow and API
	if cfg.WorkOS != nil {
		oauth := auth.NewOAuthHandlers(cfg.WorkOS)
		e.GET("/auth/login", oauth.HandleLogin)
		e.GET("/auth/callback", oauth.HandleCallback)
		e.POST("/auth/logout", oauth.HandleLogout)

		dash := e.Group("/dashboard/api")
		dash.Use(cfg.WorkOS.Middleware())
		dash.GET("/me", oauth.HandleMe)
		dash.GET("/deployments", s.dashboardDeployments)
		dash.GET("/deployments/:id/events", s.dashboardThreadEvents)
		dash.GET("/keys", s.dashboardListAPIKeys)
		dash.POST("/keys", s.dashboardCreateAPIKey)
		dash.DELETE("/keys/:id", s.dashboardDeleteAPIKey)
	}

	return s
}

// Start starts the HTTP server on the given address.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Close gracefully shuts down the server.
func (s *Server) Close() error {
	return s.echo.Close()
}

// Handler exposes the echo engine as an http.Handler for tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}
