package api

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/reelwise/reelwise/internal/api/handlers"
	apimw "github.com/reelwise/reelwise/internal/api/middleware"
	"github.com/reelwise/reelwise/internal/backend"
	"github.com/reelwise/reelwise/internal/explore"
	"github.com/reelwise/reelwise/internal/preferences"
	"github.com/reelwise/reelwise/internal/results"
	"github.com/reelwise/reelwise/internal/watchlist"
	"github.com/reelwise/reelwise/internal/websocket"
)

// ExplorePage is the explore page controller driven by the API.
type ExplorePage interface {
	Query(req explore.QueryRequest) (string, error)
	Cancel() bool
	Rerun(ctx context.Context, f explore.Filters) (bool, error)
	Feedback(ctx context.Context, mediaID string, value backend.FeedbackValue) error
	Snapshot() explore.Snapshot
	Item(mediaID string) (results.Item, bool)
}

// WatchlistService performs optimistic watchlist mutations.
type WatchlistService interface {
	Add(ctx context.Context, item results.Item) error
	SetStatus(ctx context.Context, mediaID string, status backend.WatchlistStatus) error
	Rate(ctx context.Context, mediaID string, value float64) error
	Remove(ctx context.Context, mediaID string) error
	Get(mediaID string) (watchlist.Entry, bool)
}

// TokenStore holds the bearer token handed over by the auth provider.
type TokenStore interface {
	Set(token string)
	Clear()
	Token() (string, error)
	Subject() string
	ExpiresAt() time.Time
}

// Services are the components the API exposes. Nil optional services leave
// their routes unregistered.
type Services struct {
	Page        ExplorePage
	Watchlist   WatchlistService
	Tokens      TokenStore
	Preferences *preferences.Service
	Logs        LogsProvider
	Scheduler   handlers.TaskRunner
	Rebuild     handlers.RebuildStatus
}

// Server handles HTTP requests for the local agent API.
type Server struct {
	echo   *echo.Echo
	hub    *websocket.Hub
	logger zerolog.Logger
	svc    Services
}

// NewServer creates a new API server instance.
func NewServer(svc Services, hub *websocket.Hub, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:   e,
		hub:    hub,
		logger: logger.With().Str("component", "api").Logger(),
		svc:    svc,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(apimw.SecurityHeaders())
	s.echo.Use(middleware.BodyLimit("1M"))

	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Err(v.Error).
					Msg("request error")
			} else {
				s.logger.Debug().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
			}
			return nil
		},
	}))

	s.echo.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			return c.Request().Header.Get("Upgrade") == "websocket"
		},
	}))
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	if s.hub != nil {
		s.echo.GET("/ws", s.hub.HandleWebSocket)
	}

	api := s.echo.Group("/api/v1")
	api.GET("/health", s.healthCheck)

	if s.svc.Tokens != nil {
		session := api.Group("/session")
		session.GET("", s.getSession)
		session.PUT("/token", s.setToken)
		session.DELETE("/token", s.clearToken)
	}

	if s.svc.Page != nil {
		page := api.Group("/explore")
		page.POST("/query", s.startQuery)
		page.POST("/cancel", s.cancelQuery)
		page.POST("/rerun", s.rerun)
		page.GET("/state", s.getExploreState)
		page.GET("/items/:id", s.getItem)
		page.PUT("/items/:id/feedback", s.setFeedback)
	}

	if s.svc.Watchlist != nil {
		wl := api.Group("/watchlist")
		wl.GET("/:id", s.getWatchlistEntry)
		wl.POST("/:id", s.addToWatchlist)
		wl.PUT("/:id/status", s.setWatchlistStatus)
		wl.PUT("/:id/rating", s.setWatchlistRating)
		wl.DELETE("/:id", s.removeFromWatchlist)
	}

	if s.svc.Preferences != nil {
		preferences.NewHandlers(s.svc.Preferences).RegisterRoutes(api.Group("/preferences"))
	}

	if s.svc.Logs != nil {
		NewLogsHandlers(s.svc.Logs).RegisterRoutes(api.Group("/diagnostics"))
	}

	if s.svc.Scheduler != nil || s.svc.Rebuild != nil {
		handlers.NewTasksHandler(s.svc.Scheduler, s.svc.Rebuild).RegisterRoutes(api)
	}
}

// Start starts the HTTP server.
func (s *Server) Start(address string) error {
	s.logger.Info().Str("address", address).Msg("Starting HTTP server")
	return s.echo.Start(address)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
