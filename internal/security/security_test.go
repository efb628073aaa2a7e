package security

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/oncoderma/oncoderma-go/internal/conf"
	"github.com/oncoderma/oncoderma-go/internal/errors"
)

func init() {
	hashCost = bcrypt.MinCost
}

func TestHashAndCheckPassword(t *testing.T) {
	t.Parallel()

	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)
	assert.True(t, CheckPassword(hash, "correct horse"))
	assert.False(t, CheckPassword(hash, "wrong horse"))
	assert.False(t, CheckPassword("", "correct horse"))
	assert.False(t, CheckPassword(hash, ""))

	_, err = HashPassword("")
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	_, err = HashPassword(strings.Repeat("x", MaxPasswordBytes+1))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestSafeNext(t *testing.T) {
	t.Parallel()

	tests := []struct {
		next string
		want string
	}{
		{"", "/dashboard"},
		{"/history?filter=high", "/history?filter=high"},
		{"/scan/3/", "/scan/3/"},
		{"//evil.example", "/dashboard"},
		{"https://evil.example/", "/dashboard"},
		{`/\evil.example`, "/dashboard"},
		{"history", "/dashboard"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SafeNext(tt.next, "/dashboard"), "next=%q", tt.next)
	}
}

func newManager() *SessionManager {
	return NewSessionManager(&conf.SecuritySettings{
		SessionSecret: strings.Repeat("k", 32),
		SessionMaxAge: 3600,
	})
}

// roundTrip runs fn against a request carrying cookies and returns the response cookies.
func roundTrip(t *testing.T, e *echo.Echo, cookies []*http.Cookie, fn func(c echo.Context)) []*http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	fn(e.NewContext(req, rec))
	return rec.Result().Cookies()
}

func TestSessionLoginLogout(t *testing.T) {
	t.Parallel()

	e := echo.New()
	m := newManager()

	cookies := roundTrip(t, e, nil, func(c echo.Context) {
		_, ok := m.CurrentUserID(c)
		assert.False(t, ok)
		require.NoError(t, m.Login(c, 7, "alice"))
	})
	require.NotEmpty(t, cookies)
	assert.True(t, cookies[0].HttpOnly)

	roundTrip(t, e, cookies, func(c echo.Context) {
		id, ok := m.CurrentUserID(c)
		assert.True(t, ok)
		assert.Equal(t, uint(7), id)
	})

	cleared := roundTrip(t, e, cookies, func(c echo.Context) {
		require.NoError(t, m.Logout(c))
	})
	require.NotEmpty(t, cleared)
	assert.Negative(t, cleared[0].MaxAge)

	roundTrip(t, e, cleared, func(c echo.Context) {
		_, ok := m.CurrentUserID(c)
		assert.False(t, ok)
	})
}

func TestSessionRejectsForeignKey(t *testing.T) {
	t.Parallel()

	e := echo.New()
	cookies := roundTrip(t, e, nil, func(c echo.Context) {
		require.NoError(t, newManager().Login(c, 7, "alice"))
	})

	other := NewSessionManager(&conf.SecuritySettings{SessionSecret: strings.Repeat("z", 32)})
	roundTrip(t, e, cookies, func(c echo.Context) {
		_, ok := other.CurrentUserID(c)
		assert.False(t, ok)
		assert.NoError(t, other.Login(c, 8, "bob"), "stale cookie starts a new session")
	})
}

func TestFlashes(t *testing.T) {
	t.Parallel()

	e := echo.New()
	m := newManager()

	cookies := roundTrip(t, e, nil, func(c echo.Context) {
		m.AddFlash(c, FlashSuccess, "Registration successful! You can now log in.")
	})

	consumed := roundTrip(t, e, cookies, func(c echo.Context) {
		flashes := m.Flashes(c)
		require.Len(t, flashes, 1)
		assert.Equal(t, FlashSuccess, flashes[0].Level)
		assert.Equal(t, "Registration successful! You can now log in.", flashes[0].Message)
	})

	roundTrip(t, e, consumed, func(c echo.Context) {
		assert.Empty(t, m.Flashes(c))
	})
}
