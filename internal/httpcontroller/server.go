// Package httpcontroller serves the OncoDerma web interface: authentication,
// image upload and classification, scan history, the chat assistant, the
// dashboard and user profiles.
package httpcontroller

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/patrickmn/go-cache"

	"github.com/oncoderma/oncoderma-go/internal/buildinfo"
	"github.com/oncoderma/oncoderma-go/internal/classifier"
	"github.com/oncoderma/oncoderma-go/internal/conf"
	"github.com/oncoderma/oncoderma-go/internal/datastore"
	"github.com/oncoderma/oncoderma-go/internal/errors"
	"github.com/oncoderma/oncoderma-go/internal/logger"
	"github.com/oncoderma/oncoderma-go/internal/media"
	"github.com/oncoderma/oncoderma-go/internal/observability"
	"github.com/oncoderma/oncoderma-go/internal/security"
)

const (
	// statsCacheTTL bounds how stale dashboard counters may be. Uploads
	// invalidate the entry of their owner immediately.
	statsCacheTTL     = 30 * time.Second
	statsCacheCleanup = 5 * time.Minute
)

// ChatResponder answers a question about one of the user's predictions.
// *chat.Service implements it.
type ChatResponder interface {
	Respond(ctx context.Context, userID, scanID uint, message string) (string, error)
}

// PredictionNotifier is told about every stored prediction.
// *notification.Dispatcher implements it.
type PredictionNotifier interface {
	PredictionSaved(p datastore.Prediction)
}

// Dependencies are the services the server is built from. Settings, DS,
// Classifier and Media are required.
type Dependencies struct {
	Settings   *conf.Settings
	DS         datastore.Interface
	Classifier *classifier.Classifier
	Chat       ChatResponder
	Media      *media.Store
	Notifier   PredictionNotifier
	Metrics    *observability.Metrics
	Build      *buildinfo.Context
}

// Server encapsulates Echo server and related configurations.
type Server struct {
	Echo       *echo.Echo
	DS         datastore.Interface
	Settings   *conf.Settings
	Classifier *classifier.Classifier
	Chat       ChatResponder
	Media      *media.Store
	Sessions   *security.SessionManager
	Notifier   PredictionNotifier
	Metrics    *observability.Metrics
	Build      *buildinfo.Context

	statsCache *cache.Cache
	validate   *validator.Validate
	startedAt  time.Time
}

// New initializes a new HTTP server with the given dependencies.
func New(deps Dependencies) (*Server, error) {
	if deps.Settings == nil || deps.DS == nil || deps.Classifier == nil || deps.Media == nil {
		return nil, errors.NewConfigurationError("http server requires settings, datastore, classifier and media store")
	}
	if deps.Build == nil {
		deps.Build = buildinfo.NewContext("", "")
	}

	s := &Server{
		Echo:       echo.New(),
		DS:         deps.DS,
		Settings:   deps.Settings,
		Classifier: deps.Classifier,
		Chat:       deps.Chat,
		Media:      deps.Media,
		Sessions:   security.NewSessionManager(&deps.Settings.Security),
		Notifier:   deps.Notifier,
		Metrics:    deps.Metrics,
		Build:      deps.Build,
		statsCache: cache.New(statsCacheTTL, statsCacheCleanup),
		validate:   newValidator(),
		startedAt:  time.Now(),
	}

	if err := s.initializeServer(); err != nil {
		return nil, err
	}
	return s, nil
}

// initializeServer configures and initializes the server.
func (s *Server) initializeServer() error {
	s.Echo.HideBanner = true
	s.Echo.HidePort = true
	s.Echo.Logger = logger.NewEchoLoggerAdapter(GetLogger().Module("echo"))
	s.Echo.Debug = s.Settings.Debug
	s.Echo.HTTPErrorHandler = s.HTTPErrorHandler
	s.Echo.Server.ReadTimeout = s.Settings.WebServer.ReadTimeout
	s.Echo.Server.WriteTimeout = s.Settings.WebServer.WriteTimeout

	if err := s.setupTemplateRenderer(); err != nil {
		return err
	}
	if err := s.configureMiddleware(); err != nil {
		return err
	}
	return s.initRoutes()
}

// Addr returns the listen address built from the web server settings.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.Settings.WebServer.Listen, s.Settings.WebServer.Port)
}

// Start listens on Addr and blocks until the server stops.
// A server stopped through Shutdown returns nil.
func (s *Server) Start() error {
	addr := s.Addr()
	GetLogger().Info("HTTP server starting",
		logger.String("address", addr),
		logger.Bool("model_ready", s.Classifier.Ready()),
		logger.Bool("csrf", s.Settings.Security.CSRF),
		logger.Bool("metrics", s.Metrics != nil && s.Settings.Observability.Metrics.Enabled))

	if err := s.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.New(fmt.Errorf("http server failed: %w", err)).
			Component("http-controller").
			Category(errors.CategoryNetwork).
			Context("address", addr).
			Build()
	}
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	GetLogger().Info("HTTP server shutting down")
	if err := s.Echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// currentUser returns the user loaded by AuthMiddleware.
func currentUser(c echo.Context) *datastore.User {
	user, _ := c.Get(userContextKey).(*datastore.User)
	return user
}

// isAJAX reports whether the request was sent by the page scripts.
func isAJAX(c echo.Context) bool {
	return c.Request().Header.Get(echo.HeaderXRequestedWith) == "XMLHttpRequest"
}

// newPage builds the common template data for a page.
func (s *Server) newPage(c echo.Context, page, title string, data any) PageData {
	token, _ := c.Get(CSRFContextKey).(string)
	return PageData{
		C:         c,
		Page:      page,
		Title:     title,
		User:      currentUser(c),
		Flashes:   s.Sessions.Flashes(c),
		CSRFToken: token,
		Data:      data,
	}
}

// render writes a full page wrapped in the layout.
func (s *Server) render(c echo.Context, status int, page PageData) error {
	return c.Render(status, layoutTemplate, page)
}
