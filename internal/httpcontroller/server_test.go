package httpcontroller

import (
	"bytes"
	"context"
	"image/color"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/oncoderma/oncoderma-go/internal/buildinfo"
	"github.com/oncoderma/oncoderma-go/internal/classifier"
	"github.com/oncoderma/oncoderma-go/internal/conf"
	"github.com/oncoderma/oncoderma-go/internal/datastore"
	"github.com/oncoderma/oncoderma-go/internal/errors"
	"github.com/oncoderma/oncoderma-go/internal/media"
	"github.com/oncoderma/oncoderma-go/internal/observability"
	"github.com/oncoderma/oncoderma-go/internal/preprocess"
	"github.com/oncoderma/oncoderma-go/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// The stats cache janitor lives for the whole process
		goleak.IgnoreTopFunction("github.com/patrickmn/go-cache.(*janitor).Run"),
	)
}

// The dots keep SessionKey from treating it as base64.
const testSessionSecret = "test.session.secret.with.more.than.32.bytes"

const testInputSize = 8

// melanomaOutput puts the arg-max on "Melanoma (mel)".
var melanomaOutput = []float32{0.05, 0.8, 0.05, 0.04, 0.03, 0.02, 0.01}

type fakePredictor struct {
	output []float32
}

func (f *fakePredictor) Predict([]float32) ([]float32, error) {
	return append([]float32(nil), f.output...), nil
}
func (f *fakePredictor) InputLen() int  { return testInputSize * testInputSize * preprocess.Channels }
func (f *fakePredictor) OutputLen() int { return len(f.output) }
func (f *fakePredictor) Close()         {}

type fakeChat struct {
	reply string
	err   error

	mu    sync.Mutex
	calls []chatCall
}

type chatCall struct {
	userID, scanID uint
	message        string
}

func (f *fakeChat) Respond(_ context.Context, userID, scanID uint, message string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, chatCall{userID: userID, scanID: scanID, message: message})
	return f.reply, f.err
}

type fakeNotifier struct {
	mu    sync.Mutex
	saved []datastore.Prediction
}

func (f *fakeNotifier) PredictionSaved(p datastore.Prediction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, p)
}

// testEnv is a server wired to a mock datastore, a fake model and a temp media root.
type testEnv struct {
	server   *Server
	ds       *testutil.MockDataStore
	notifier *fakeNotifier
	mediaDir string
	user     *datastore.User
}

type envOption func(*conf.Settings, *Dependencies)

func withoutModel() envOption {
	return func(_ *conf.Settings, d *Dependencies) {
		d.Classifier = classifier.New(nil, nil, preprocess.Options{Size: testInputSize})
	}
}

func withChat(ch ChatResponder) envOption {
	return func(_ *conf.Settings, d *Dependencies) { d.Chat = ch }
}

func withSettings(fn func(*conf.Settings)) envOption {
	return func(s *conf.Settings, _ *Dependencies) { fn(s) }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	settings := &conf.Settings{}
	settings.Security.SessionSecret = testSessionSecret
	settings.WebServer.UploadLimit = "10M"
	settings.Observability.Metrics.Enabled = true
	settings.Observability.Metrics.Path = "/metrics"

	mediaDir := t.TempDir()
	store, err := media.New(mediaDir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	metrics, err := observability.NewMetrics()
	require.NoError(t, err)

	ds := &testutil.MockDataStore{}
	notifier := &fakeNotifier{}
	deps := Dependencies{
		Settings:   settings,
		DS:         ds,
		Classifier: classifier.New(&fakePredictor{output: melanomaOutput}, nil, preprocess.Options{Size: testInputSize}),
		Media:      store,
		Notifier:   notifier,
		Metrics:    metrics,
		Build:      buildinfo.NewContext("1.2.3", "2026-01-01"),
	}
	for _, opt := range opts {
		opt(settings, &deps)
	}

	s, err := New(deps)
	require.NoError(t, err)

	return &testEnv{
		server:   s,
		ds:       ds,
		notifier: notifier,
		mediaDir: mediaDir,
		user:     &datastore.User{ID: 7, Username: "drhouse"},
	}
}

// sessionCookies logs e.user in and returns the resulting cookies.
func (e *testEnv) sessionCookies(t *testing.T) []*http.Cookie {
	t.Helper()
	rec := httptest.NewRecorder()
	c := e.server.Echo.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	require.NoError(t, e.server.Sessions.Login(c, e.user.ID, e.user.Username))
	e.ds.On("GetUserByID", mock.Anything, e.user.ID).Return(e.user, nil).Maybe()
	return rec.Result().Cookies()
}

func (e *testEnv) serve(req *http.Request, cookies []*http.Cookie) *httptest.ResponseRecorder {
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.server.Echo.ServeHTTP(rec, req)
	return rec
}

func ajax(req *http.Request) *http.Request {
	req.Header.Set(echo.HeaderXRequestedWith, "XMLHttpRequest")
	return req
}

func newGet(target string) *http.Request {
	return httptest.NewRequest(http.MethodGet, target, nil)
}

func formRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	return req
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

// multipartRequest builds a POST with text fields and an optional file.
func multipartRequest(t *testing.T, target string, fields map[string]string, fileField, fileName string, file []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileField != "" {
		part, err := w.CreateFormFile(fileField, fileName)
		require.NoError(t, err)
		_, err = io.Copy(part, bytes.NewReader(file))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	return req
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	return testutil.PNGBytes(t, 32, 24, color.RGBA{R: 180, G: 120, B: 90, A: 255})
}

// mediaFiles lists the regular files below the media root.
func mediaFiles(t *testing.T, dir string) []string {
	t.Helper()
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	require.NoError(t, err)
	return files
}

func notFoundErr() error {
	return errors.New(datastore.ErrNotFound).
		Component("datastore").
		Category(errors.CategoryNotFound).
		Build()
}

func TestNewRequiresCoreDependencies(t *testing.T) {
	_, err := New(Dependencies{})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestRootRedirectsToDashboard(t *testing.T) {
	env := newTestEnv(t)
	rec := env.serve(httptest.NewRequest(http.MethodGet, "/", nil), env.sessionCookies(t))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get(echo.HeaderLocation))
}

func TestProtectedPagesRequireLogin(t *testing.T) {
	env := newTestEnv(t)

	t.Run("browser is redirected with next", func(t *testing.T) {
		rec := env.serve(httptest.NewRequest(http.MethodGet, "/history?q=ann", nil), nil)
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/login?next=%2Fhistory%3Fq%3Dann", rec.Header().Get(echo.HeaderLocation))
	})

	t.Run("ajax caller gets 401", func(t *testing.T) {
		rec := env.serve(ajax(httptest.NewRequest(http.MethodPost, "/upload", nil)), nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"error":"Authentication required"}`, rec.Body.String())
	})

	t.Run("deleted account is logged out", func(t *testing.T) {
		env := newTestEnv(t)
		rec := httptest.NewRecorder()
		c := env.server.Echo.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
		require.NoError(t, env.server.Sessions.Login(c, 99, "gone"))
		env.ds.On("GetUserByID", mock.Anything, uint(99)).Return(nil, notFoundErr())

		resp := env.serve(httptest.NewRequest(http.MethodGet, "/dashboard", nil), rec.Result().Cookies())
		assert.Equal(t, http.StatusFound, resp.Code)
		assert.True(t, strings.HasPrefix(resp.Header().Get(echo.HeaderLocation), "/login"))
	})
}

func TestPublicPagesAreReachable(t *testing.T) {
	env := newTestEnv(t)
	for _, path := range []string{"/login", "/register", "/static/css/style.css", "/static/js/app.js"} {
		t.Run(path, func(t *testing.T) {
			rec := env.serve(httptest.NewRequest(http.MethodGet, path, nil), nil)
			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestTrailingSlashRoutes(t *testing.T) {
	env := newTestEnv(t)
	rec := env.serve(httptest.NewRequest(http.MethodGet, "/login/", nil), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Sign in")
}

func TestUnknownRouteRendersErrorPage(t *testing.T) {
	env := newTestEnv(t)
	rec := env.serve(httptest.NewRequest(http.MethodGet, "/does-not-exist", nil), env.sessionCookies(t))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "<h1>404</h1>")
}

func TestRequestIDHeader(t *testing.T) {
	env := newTestEnv(t)

	rec := env.serve(httptest.NewRequest(http.MethodGet, "/login", nil), nil)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	req := httptest.NewRequest(http.MethodGet, "/login", nil)
	req.Header.Set(echo.HeaderXRequestID, "abc-123")
	rec = env.serve(req, nil)
	assert.Equal(t, "abc-123", rec.Header().Get(echo.HeaderXRequestID))
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.serve(httptest.NewRequest(http.MethodGet, "/login", nil), nil)

	rec := env.serve(httptest.NewRequest(http.MethodGet, "/metrics", nil), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestMetricsDisabled(t *testing.T) {
	env := newTestEnv(t, withSettings(func(s *conf.Settings) {
		s.Observability.Metrics.Enabled = false
	}))
	rec := env.serve(httptest.NewRequest(http.MethodGet, "/metrics", nil), env.sessionCookies(t))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCSRFProtection(t *testing.T) {
	env := newTestEnv(t, withSettings(func(s *conf.Settings) {
		s.Security.CSRF = true
	}))

	rec := env.serve(formRequest(http.MethodPost, "/login", "username=a&password=b"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// The health check stays reachable for probes
	env.ds.On("Ping", mock.Anything).Return(nil)
	rec = env.serve(httptest.NewRequest(http.MethodGet, "/health", nil), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, withSettings(func(s *conf.Settings) {
		s.Security.RateLimit.Enabled = true
		s.Security.RateLimit.Rate = 0.001
		s.Security.RateLimit.Burst = 1
	}))
	cookies := env.sessionCookies(t)

	// No chat service: the first request reaches the handler
	rec := env.serve(jsonRequest(http.MethodPost, "/chat", `{"message":"hi","scan_id":1}`), cookies)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = env.serve(jsonRequest(http.MethodPost, "/chat", `{"message":"hi","scan_id":1}`), cookies)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Too many requests")

	// Login has its own budget
	env.ds.On("GetUserByUsername", mock.Anything, "nobody").Return(nil, notFoundErr())
	rec = env.serve(formRequest(http.MethodPost, "/login", "username=nobody&password=x"), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"echo error", echo.NewHTTPError(http.StatusTeapot, "short and stout"), http.StatusTeapot, "short and stout"},
		{"body too large", echo.ErrStatusRequestEntityTooLarge, http.StatusRequestEntityTooLarge, msgRequestTooBig},
		{"validation", errors.NewValidationError("bad input"), http.StatusBadRequest, "bad input"},
		{"invalid image", errors.NewInvalidImageError(errors.NewStd("eof")), http.StatusBadRequest, msgInvalidImage},
		{"not found", notFoundErr(), http.StatusNotFound, msgNotFound},
		{"foreign record", errors.New(datastore.ErrNotFound).Category(errors.CategoryAuthorization).Build(), http.StatusNotFound, msgNotFound},
		{"conflict", errors.New(datastore.ErrUsernameTaken).Category(errors.CategoryConflict).Build(), http.StatusConflict, msgConflict},
		{"configuration", errors.NewConfigurationError("model output width 3 does not match 7 labels"), http.StatusServiceUnavailable, msgUnavailable},
		{"timeout", errors.New(context.DeadlineExceeded).Category(errors.CategoryTimeout).Build(), http.StatusGatewayTimeout, msgTimeout},
		{"plain error", errors.NewStd("boom"), http.StatusInternalServerError, msgInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, message := statusForError(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.message, message)
		})
	}
}
