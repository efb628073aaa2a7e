package httpcontroller

import (
	"fmt"
	"io/fs"
	"net/http"

	"github.com/labstack/echo/v4"
)

// routeConfig defines a page served by a single handler.
type routeConfig struct {
	Method  string
	Path    string
	Handler func(s *Server) echo.HandlerFunc
}

// pageRoutes lists the routes that need no extra middleware.
var pageRoutes = []routeConfig{
	{http.MethodGet, "/login", func(s *Server) echo.HandlerFunc { return s.loginPage }},
	{http.MethodGet, "/register", func(s *Server) echo.HandlerFunc { return s.registerPage }},
	{http.MethodGet, "/logout", func(s *Server) echo.HandlerFunc { return s.handleLogout }},
	{http.MethodPost, "/logout", func(s *Server) echo.HandlerFunc { return s.handleLogout }},
	{http.MethodGet, "/dashboard", func(s *Server) echo.HandlerFunc { return s.dashboardPage }},
	{http.MethodGet, "/upload", func(s *Server) echo.HandlerFunc { return s.uploadPage }},
	{http.MethodPost, "/upload", func(s *Server) echo.HandlerFunc { return s.handleUpload }},
	{http.MethodGet, "/history", func(s *Server) echo.HandlerFunc { return s.historyPage }},
	{http.MethodGet, "/scan/:id", func(s *Server) echo.HandlerFunc { return s.scanDetailPage }},
	{http.MethodGet, "/profile", func(s *Server) echo.HandlerFunc { return s.profilePage }},
	{http.MethodPost, "/profile", func(s *Server) echo.HandlerFunc { return s.handleProfile }},
	{http.MethodGet, "/media/*", func(s *Server) echo.HandlerFunc { return s.serveMedia }},
	{http.MethodGet, "/health", func(s *Server) echo.HandlerFunc { return s.healthCheck }},
}

// initRoutes initializes the routes for the server.
func (s *Server) initRoutes() error {
	s.Echo.GET("/", func(c echo.Context) error {
		return c.Redirect(http.StatusFound, "/dashboard")
	})

	for _, route := range pageRoutes {
		s.Echo.Add(route.Method, route.Path, route.Handler(s))
	}

	// Credential and chat posts are rate limited per client IP
	s.Echo.POST("/login", s.handleLogin, s.rateLimiter())
	s.Echo.POST("/register", s.handleRegister, s.rateLimiter())
	s.Echo.Any("/chat", s.handleChat, s.rateLimiter())

	if path := s.metricsPath(); path != "" {
		s.Echo.GET(path, echo.WrapHandler(s.Metrics.Handler()))
	}

	assetsFS, err := fs.Sub(AssetsFs, "assets")
	if err != nil {
		return fmt.Errorf("failed to open embedded assets: %w", err)
	}
	s.Echo.StaticFS("/static", assetsFS)

	return nil
}

// serveMedia serves an uploaded file owned by the current user.
func (s *Server) serveMedia(c echo.Context) error {
	return s.Media.Serve(c, currentUser(c).ID, c.Param("*"))
}
