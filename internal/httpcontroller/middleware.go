package httpcontroller

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/oncoderma/oncoderma-go/internal/errors"
	"github.com/oncoderma/oncoderma-go/internal/logger"
)

// Context keys set by the middleware
const (
	CSRFContextKey      = "oncoderma-csrf"
	userContextKey      = "user"
	requestIDContextKey = "request_id"
)

const (
	rateLimiterExpiry = 3 * time.Minute
	maxRequestIDLen   = 64
)

// configureMiddleware sets up middleware for the server.
func (s *Server) configureMiddleware() error {
	// Django-style URLs end in a slash; route them to the same handlers.
	s.Echo.Pre(middleware.RemoveTrailingSlash())

	s.Echo.Use(s.LoggingMiddleware())
	s.Echo.Use(middleware.Recover())

	if limit := s.Settings.WebServer.UploadLimit; limit != "" {
		s.Echo.Use(middleware.BodyLimit(limit))
	}
	if s.Settings.Security.CSRF {
		s.Echo.Use(s.CSRFMiddleware())
	}
	s.Echo.Use(s.AuthMiddleware)
	return nil
}

// LoggingMiddleware assigns a correlation id to every request and logs the
// completed request with its status and latency.
func (s *Server) LoggingMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" || len(requestID) > maxRequestIDLen {
				requestID = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)
			c.Set(requestIDContextKey, requestID)
			c.SetRequest(req.WithContext(logger.WithTraceID(req.Context(), requestID)))

			// Resolve the error here so the logged status is the one sent
			if err := next(c); err != nil {
				c.Error(err)
			}

			res := c.Response()
			latency := time.Since(start)
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}

			fields := []logger.Field{
				logger.String("request_id", requestID),
				logger.String("method", req.Method),
				logger.String("path", req.URL.Path),
				logger.String("route", route),
				logger.Int("status", res.Status),
				logger.Int64("bytes", res.Size),
				logger.Duration("latency", latency),
				logger.String("ip", c.RealIP()),
			}
			if user := currentUser(c); user != nil {
				fields = append(fields, logger.Uint("user_id", user.ID))
			}

			log := GetLogger()
			switch {
			case res.Status >= http.StatusInternalServerError:
				log.Error("request failed", fields...)
			case res.Status >= http.StatusBadRequest:
				log.Warn("request rejected", fields...)
			default:
				log.Debug("request completed", fields...)
			}

			if s.Metrics != nil {
				s.Metrics.HTTP.RecordHTTPRequest(req.Method, route, res.Status, latency.Seconds())
				s.Metrics.HTTP.RecordHTTPResponseSize(req.Method, route, res.Size)
			}
			return nil
		}
	}
}

// CSRFMiddleware configures CSRF protection for the server
func (s *Server) CSRFMiddleware() echo.MiddlewareFunc {
	return middleware.CSRFWithConfig(middleware.CSRFConfig{
		TokenLookup:    "header:X-CSRF-Token,form:_csrf",
		CookieName:     "csrf",
		CookiePath:     "/",
		CookieHTTPOnly: true,
		CookieSecure:   s.Settings.Security.SecureCookies,
		CookieSameSite: http.SameSiteLaxMode,
		CookieMaxAge:   3600,
		TokenLength:    32,
		ContextKey:     CSRFContextKey,
		Skipper: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return strings.HasPrefix(path, "/static/") ||
				path == "/health" ||
				path == s.metricsPath()
		},
		ErrorHandler: func(err error, c echo.Context) error {
			GetLogger().Warn("CSRF token validation failed",
				logger.String("path", c.Request().URL.Path),
				logger.String("method", c.Request().Method),
				logger.String("ip", c.RealIP()),
				logger.Error(err))
			return echo.NewHTTPError(http.StatusForbidden, "Invalid CSRF token")
		},
	})
}

// AuthMiddleware requires a logged-in user on every path except the public ones.
// The user record is loaded once and stored in the context.
func (s *Server) AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if s.isPublicPath(c.Request().URL.Path) {
			// Public pages still show who is logged in
			if userID, ok := s.Sessions.CurrentUserID(c); ok {
				if user, err := s.DS.GetUserByID(c.Request().Context(), userID); err == nil {
					c.Set(userContextKey, user)
				}
			}
			return next(c)
		}

		if userID, ok := s.Sessions.CurrentUserID(c); ok {
			user, err := s.DS.GetUserByID(c.Request().Context(), userID)
			if err == nil {
				c.Set(userContextKey, user)
				return next(c)
			}
			if !errors.IsNotFound(err) {
				return err
			}
			// Account deleted since login
			_ = s.Sessions.Logout(c)
		}

		if isAJAX(c) {
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Authentication required"})
		}
		return c.Redirect(http.StatusFound, "/login?next="+url.QueryEscape(c.Request().URL.RequestURI()))
	}
}

// isPublicPath reports whether path is reachable without logging in.
func (s *Server) isPublicPath(path string) bool {
	switch path {
	case "/login", "/register", "/logout", "/health":
		return true
	}
	if mp := s.metricsPath(); mp != "" && path == mp {
		return true
	}
	return strings.HasPrefix(path, "/static/")
}

// metricsPath returns the route of the Prometheus endpoint, or "" when disabled.
func (s *Server) metricsPath() string {
	if s.Metrics == nil || !s.Settings.Observability.Metrics.Enabled {
		return ""
	}
	if p := s.Settings.Observability.Metrics.Path; p != "" {
		return p
	}
	return "/metrics"
}

// rateLimiter limits POST requests per client IP. Each call returns a limiter
// with its own store, so login attempts and chat requests are counted apart.
func (s *Server) rateLimiter() echo.MiddlewareFunc {
	cfg := s.Settings.Security.RateLimit
	if !cfg.Enabled || cfg.Rate <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}

	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      rate.Limit(cfg.Rate),
		Burst:     cfg.Burst,
		ExpiresIn: rateLimiterExpiry,
	})

	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Skipper: func(c echo.Context) bool {
			return c.Request().Method != http.MethodPost
		},
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			GetLogger().Warn("rate limit exceeded",
				logger.String("ip", identifier),
				logger.String("path", c.Request().URL.Path))
			if op := authOperation(c.Request().URL.Path); op != "" {
				s.recordAuth(op, authStatusRateLimited)
			}
			return echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests. Please try again later.")
		},
	})
}
