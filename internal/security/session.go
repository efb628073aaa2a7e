package security

import (
	"encoding/gob"
	"net/http"
	"time"

	"github.com/gorilla/sessions"
	"github.com/labstack/echo/v4"

	"github.com/oncoderma/oncoderma-go/internal/conf"
	"github.com/oncoderma/oncoderma-go/internal/logger"
)

// Flash levels, used as CSS classes by the templates.
const (
	FlashSuccess = "success"
	FlashError   = "error"
	FlashInfo    = "info"
)

// Flash is a one-time message shown on the next rendered page.
type Flash struct {
	Level   string
	Message string
}

func init() {
	gob.Register(Flash{})
}

// SessionManager stores the logged-in user id in a signed cookie and
// flash messages in a second cookie that outlives logout.
type SessionManager struct {
	store *sessions.CookieStore
}

// NewSessionManager creates a cookie store keyed by the session secret.
func NewSessionManager(settings *conf.SecuritySettings) *SessionManager {
	key := settings.SessionKey()
	if len(key) < MinSessionSecretLength {
		GetLogger().Warn("session secret is shorter than recommended",
			logger.Int("length", len(key)),
			logger.Int("recommended", MinSessionSecretLength))
	}

	maxAge := settings.SessionMaxAge
	if maxAge <= 0 {
		maxAge = DefaultSessionMaxAgeSeconds
	}

	store := sessions.NewCookieStore(key)
	store.Options = buildSessionOptions(settings.SecureCookies, maxAge)
	store.MaxAge(maxAge)
	return &SessionManager{store: store}
}

// buildSessionOptions creates session options with standard security settings.
func buildSessionOptions(secure bool, maxAge int) *sessions.Options {
	return &sessions.Options{
		Path:     "/",
		MaxAge:   maxAge,
		Secure:   secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// Login replaces any existing session values with the given user.
func (m *SessionManager) Login(c echo.Context, userID uint, username string) error {
	sess, err := m.store.Get(c.Request(), SessionName)
	if err != nil {
		// A cookie signed with an old secret; start a new session.
		sess, err = m.store.New(c.Request(), SessionName)
		if sess == nil {
			return err
		}
	}
	sess.Values = map[any]any{
		sessionKeyUserID:   userID,
		sessionKeyUsername: username,
		sessionKeyLoginAt:  time.Now().Unix(),
	}
	return sess.Save(c.Request(), c.Response())
}

// Logout deletes the session cookie.
func (m *SessionManager) Logout(c echo.Context) error {
	sess, _ := m.store.Get(c.Request(), SessionName)
	if sess == nil {
		return nil
	}
	sess.Values = map[any]any{}
	sess.Options.MaxAge = -1
	return sess.Save(c.Request(), c.Response())
}

// CurrentUserID returns the logged-in user id.
func (m *SessionManager) CurrentUserID(c echo.Context) (uint, bool) {
	sess, err := m.store.Get(c.Request(), SessionName)
	if err != nil || sess == nil {
		return 0, false
	}
	id, ok := sess.Values[sessionKeyUserID].(uint)
	return id, ok && id != 0
}

// AddFlash queues a message for the next page.
func (m *SessionManager) AddFlash(c echo.Context, level, message string) {
	sess, _ := m.store.Get(c.Request(), FlashName)
	if sess == nil {
		return
	}
	sess.Options = buildSessionOptions(m.store.Options.Secure, 0)
	sess.AddFlash(Flash{Level: level, Message: message})
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		GetLogger().Warn("failed to save flash message", logger.Error(err))
	}
}

// Flashes returns and clears the queued messages.
func (m *SessionManager) Flashes(c echo.Context) []Flash {
	sess, _ := m.store.Get(c.Request(), FlashName)
	if sess == nil {
		return nil
	}
	raw := sess.Flashes()
	if len(raw) == 0 {
		return nil
	}
	sess.Options = buildSessionOptions(m.store.Options.Secure, 0)
	if err := sess.Save(c.Request(), c.Response()); err != nil {
		GetLogger().Warn("failed to clear flash messages", logger.Error(err))
	}

	flashes := make([]Flash, 0, len(raw))
	for _, v := range raw {
		if f, ok := v.(Flash); ok {
			flashes = append(flashes, f)
		}
	}
	return flashes
}
