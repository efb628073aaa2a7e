package httpcontroller

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/oncoderma/oncoderma-go/internal/datastore"
	"github.com/oncoderma/oncoderma-go/internal/errors"
	"github.com/oncoderma/oncoderma-go/internal/logger"
	"github.com/oncoderma/oncoderma-go/internal/security"
)

// Messages shown on the authentication pages.
const (
	msgFillRequired     = "Please fill in all required fields."
	msgPasswordMismatch = "Passwords do not match."
	msgUsernameTaken    = "Username already exists."
	msgRegistered       = "Registration successful! You can now log in."
	msgInvalidLogin     = "Invalid username or password."
	msgLoggedOut        = "You have been logged out."
)

// Auth operation labels for metrics.
const (
	authStatusSuccess     = "success"
	authStatusFailure     = "failure"
	authStatusRateLimited = "rate_limited"
)

// loginPageData carries the redirect target through the login form.
type loginPageData struct {
	Username string
	Next     string
}

// registerPageData refills the username after a failed registration.
type registerPageData struct {
	Username string
}

// authOperation maps a rate-limited path to its auth metric label.
func authOperation(path string) string {
	switch path {
	case "/login":
		return "login"
	case "/register":
		return "signup"
	default:
		return ""
	}
}

func (s *Server) recordAuth(operation, status string) {
	if s.Metrics != nil {
		s.Metrics.HTTP.RecordAuthOperation(operation, status)
	}
}

// loginPage shows the login form. Logged-in users go straight to the dashboard.
func (s *Server) loginPage(c echo.Context) error {
	next := security.SafeNext(c.QueryParam("next"), "")
	if currentUser(c) != nil {
		return c.Redirect(http.StatusFound, security.SafeNext(next, "/dashboard"))
	}
	return s.render(c, http.StatusOK, s.newPage(c, "login", "Login", loginPageData{Next: next}))
}

// handleLogin authenticates the form credentials and starts a session.
func (s *Server) handleLogin(c echo.Context) error {
	var form loginForm
	if err := c.Bind(&form); err != nil {
		return s.loginFailed(c, form)
	}
	form.Username = strings.TrimSpace(form.Username)
	if form.Username == "" || form.Password == "" {
		return s.loginFailed(c, form)
	}

	ctx := c.Request().Context()
	user, err := s.DS.GetUserByUsername(ctx, form.Username)
	switch {
	case err != nil && !errors.IsNotFound(err):
		return err
	case err != nil:
		security.EqualizeTiming(form.Password)
		return s.loginFailed(c, form)
	case !security.CheckPassword(user.PasswordHash, form.Password):
		return s.loginFailed(c, form)
	}

	if err := s.Sessions.Login(c, user.ID, user.Username); err != nil {
		return errors.New(err).
			Component("http-controller").
			Category(errors.CategorySystem).
			Context("operation", "session_save").
			Build()
	}
	if err := s.DS.TouchLastLogin(ctx, user.ID); err != nil {
		GetLogger().Warn("failed to record last login", logger.Uint("user_id", user.ID), logger.Error(err))
	}

	s.recordAuth("login", authStatusSuccess)
	GetLogger().Info("user logged in",
		logger.Uint("user_id", user.ID),
		logger.String("ip", c.RealIP()))

	return c.Redirect(http.StatusFound, security.SafeNext(form.Next, "/dashboard"))
}

func (s *Server) loginFailed(c echo.Context, form loginForm) error {
	s.recordAuth("login", authStatusFailure)
	GetLogger().Info("login failed", logger.String("ip", c.RealIP()))

	page := s.newPage(c, "login", "Login", loginPageData{
		Username: form.Username,
		Next:     security.SafeNext(form.Next, ""),
	})
	page.Flashes = append(page.Flashes, security.Flash{Level: security.FlashError, Message: msgInvalidLogin})
	return s.render(c, http.StatusOK, page)
}

// handleLogout ends the session and returns to the login page.
func (s *Server) handleLogout(c echo.Context) error {
	if user := currentUser(c); user != nil {
		GetLogger().Info("user logged out", logger.Uint("user_id", user.ID))
	}
	if err := s.Sessions.Logout(c); err != nil {
		GetLogger().Warn("failed to clear session", logger.Error(err))
	}
	s.recordAuth("logout", authStatusSuccess)
	s.Sessions.AddFlash(c, security.FlashInfo, msgLoggedOut)
	return c.Redirect(http.StatusFound, "/login")
}

// registerPage shows the registration form.
func (s *Server) registerPage(c echo.Context) error {
	return s.render(c, http.StatusOK, s.newPage(c, "register", "Register", registerPageData{}))
}

// handleRegister creates an account and sends the user to the login page.
func (s *Server) handleRegister(c echo.Context) error {
	var form registerForm
	if err := c.Bind(&form); err != nil {
		return s.registerFailed(c, form, msgFillRequired, nil)
	}
	form.Username = strings.TrimSpace(form.Username)

	if form.Username == "" || form.Password == "" {
		return s.registerFailed(c, form, msgFillRequired, nil)
	}
	if form.Password != form.ConfirmPassword {
		return s.registerFailed(c, form, msgPasswordMismatch, nil)
	}
	if fieldErrors := s.validateForm(form); fieldErrors != nil {
		return s.registerFailed(c, form, msgFillRequired, fieldErrors)
	}

	ctx := c.Request().Context()
	exists, err := s.DS.UsernameExists(ctx, form.Username)
	if err != nil {
		return err
	}
	if exists {
		return s.registerFailed(c, form, msgUsernameTaken, nil)
	}

	hash, err := security.HashPassword(form.Password)
	if err != nil {
		if errors.IsCategory(err, errors.CategoryValidation) {
			return s.registerFailed(c, form, err.Error(), map[string]string{"password": err.Error()})
		}
		return err
	}

	user := &datastore.User{Username: form.Username, PasswordHash: hash}
	if err := s.DS.CreateUser(ctx, user); err != nil {
		if errors.Is(err, datastore.ErrUsernameTaken) {
			return s.registerFailed(c, form, msgUsernameTaken, nil)
		}
		return err
	}

	s.recordAuth("signup", authStatusSuccess)
	GetLogger().Info("user registered", logger.Uint("user_id", user.ID))

	s.Sessions.AddFlash(c, security.FlashSuccess, msgRegistered)
	return c.Redirect(http.StatusFound, "/login")
}

func (s *Server) registerFailed(c echo.Context, form registerForm, message string, fieldErrors map[string]string) error {
	s.recordAuth("signup", authStatusFailure)

	page := s.newPage(c, "register", "Register", registerPageData{Username: form.Username})
	page.Flashes = append(page.Flashes, security.Flash{Level: security.FlashError, Message: message})
	page.Errors = fieldErrors
	return s.render(c, http.StatusOK, page)
}
