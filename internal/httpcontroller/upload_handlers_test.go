package httpcontroller

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/oncoderma/oncoderma-go/internal/classifier"
	"github.com/oncoderma/oncoderma-go/internal/conf"
	"github.com/oncoderma/oncoderma-go/internal/datastore"
	"github.com/oncoderma/oncoderma-go/internal/errors"
	"github.com/oncoderma/oncoderma-go/internal/media"
	"github.com/oncoderma/oncoderma-go/internal/preprocess"
	"github.com/oncoderma/oncoderma-go/internal/security"
)

var validUploadFields = map[string]string{
	"patient_name": "Ann Example",
	"scan_type":    "dermoscopy",
}

func TestUploadAJAXSuccess(t *testing.T) {
	env := newTestEnv(t)
	cookies := env.sessionCookies(t)

	var stored *datastore.Prediction
	env.ds.On("CreatePrediction", mock.Anything, mock.AnythingOfType("*datastore.Prediction")).
		Run(func(args mock.Arguments) {
			stored = args.Get(1).(*datastore.Prediction)
			stored.ID = 42
		}).
		Return(nil)

	req := ajax(multipartRequest(t, "/upload", validUploadFields, imageField, "lesion.png", testPNG(t)))
	rec := env.serve(req, cookies)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Melanoma (mel)", resp.Diagnosis)
	assert.Equal(t, classifier.RiskFor("mel"), resp.RiskLevel)
	assert.InDelta(t, 80.0, resp.Confidence, 0.001)

	require.NotNil(t, stored)
	assert.Equal(t, env.user.ID, stored.UserID)
	assert.Equal(t, "Ann Example", stored.PatientName)
	assert.Equal(t, "dermoscopy", stored.ScanType)
	assert.Equal(t, "Melanoma (mel)", stored.Result)
	assert.False(t, stored.Timestamp.IsZero())

	owner, ok := media.OwnerOf(stored.ImageFile)
	assert.True(t, ok)
	assert.Equal(t, env.user.ID, owner)
	assert.Len(t, mediaFiles(t, env.mediaDir), 1)

	require.Len(t, env.notifier.saved, 1)
	assert.Equal(t, uint(42), env.notifier.saved[0].ID)
}

func TestUploadBrowserSuccessRedirects(t *testing.T) {
	env := newTestEnv(t)
	env.ds.On("CreatePrediction", mock.Anything, mock.Anything).Return(nil)

	req := multipartRequest(t, "/upload", validUploadFields, imageField, "lesion.png", testPNG(t))
	rec := env.serve(req, env.sessionCookies(t))

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get(echo.HeaderLocation))
	assert.True(t, hasCookie(rec.Result(), security.FlashName))
}

func TestUploadRejections(t *testing.T) {
	tests := []struct {
		name    string
		fields  map[string]string
		file    []byte
		noFile  bool
		wantMsg string
	}{
		{"missing patient name", map[string]string{"scan_type": "dermoscopy"}, nil, false, msgFormInvalid},
		{"patient name too long", map[string]string{"patient_name": strings.Repeat("a", 101), "scan_type": "x"}, nil, false, msgFormInvalid},
		{"missing file", validUploadFields, nil, true, msgFormInvalid},
		{"not an image", validUploadFields, []byte("definitely not a picture"), false, msgInvalidImage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			file := tt.file
			if file == nil {
				file = testPNG(t)
			}
			fileField := imageField
			if tt.noFile {
				fileField = ""
			}

			req := ajax(multipartRequest(t, "/upload", tt.fields, fileField, "lesion.png", file))
			rec := env.serve(req, env.sessionCookies(t))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.JSONEq(t, `{"error":"`+tt.wantMsg+`"}`, rec.Body.String())
			env.ds.AssertNotCalled(t, "CreatePrediction", mock.Anything, mock.Anything)
			assert.Empty(t, mediaFiles(t, env.mediaDir))
		})
	}
}

func TestUploadFormErrorsRerenderPage(t *testing.T) {
	env := newTestEnv(t)

	req := multipartRequest(t, "/upload", map[string]string{"patient_name": "Ann"}, imageField, "lesion.png", testPNG(t))
	rec := env.serve(req, env.sessionCookies(t))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, msgFormInvalid)
	assert.Contains(t, body, `value="Ann"`)
}

func TestUploadModelUnavailable(t *testing.T) {
	env := newTestEnv(t, withoutModel())
	cookies := env.sessionCookies(t)

	req := ajax(multipartRequest(t, "/upload", validUploadFields, imageField, "lesion.png", testPNG(t)))
	rec := env.serve(req, cookies)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"Model not loaded properly."}`, rec.Body.String())

	req = multipartRequest(t, "/upload", validUploadFields, imageField, "lesion.png", testPNG(t))
	rec = env.serve(req, cookies)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get(echo.HeaderLocation))

	env.ds.AssertNotCalled(t, "CreatePrediction", mock.Anything, mock.Anything)
	assert.Empty(t, mediaFiles(t, env.mediaDir))
}

func TestUploadLabelWidthMismatchIsUnavailable(t *testing.T) {
	env := newTestEnv(t, func(_ *conf.Settings, d *Dependencies) {
		d.Classifier = classifier.New(&fakePredictor{output: []float32{0.2, 0.5, 0.3}}, nil, preprocess.Options{Size: testInputSize})
	})

	req := ajax(multipartRequest(t, "/upload", validUploadFields, imageField, "lesion.png", testPNG(t)))
	rec := env.serve(req, env.sessionCookies(t))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"error":"Service temporarily unavailable"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "width")
	env.ds.AssertNotCalled(t, "CreatePrediction", mock.Anything, mock.Anything)
	assert.Empty(t, mediaFiles(t, env.mediaDir))
}

func TestUploadDatabaseFailureRemovesImage(t *testing.T) {
	env := newTestEnv(t)
	env.ds.On("CreatePrediction", mock.Anything, mock.Anything).Return(errors.NewStd("disk full"))

	req := ajax(multipartRequest(t, "/upload", validUploadFields, imageField, "lesion.png", testPNG(t)))
	rec := env.serve(req, env.sessionCookies(t))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Internal server error"}`, rec.Body.String())
	assert.Empty(t, mediaFiles(t, env.mediaDir))
	assert.Empty(t, env.notifier.saved)
}

func TestUploadInvalidatesDashboardStats(t *testing.T) {
	env := newTestEnv(t)
	cookies := env.sessionCookies(t)

	env.ds.On("DashboardStats", mock.Anything, env.user.ID).Return(&datastore.DashboardStats{}, nil)
	env.ds.On("CreatePrediction", mock.Anything, mock.Anything).Return(nil)

	rec := env.serve(newGet("/dashboard"), cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.serve(newGet("/dashboard"), cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	env.ds.AssertNumberOfCalls(t, "DashboardStats", 1)

	req := ajax(multipartRequest(t, "/upload", validUploadFields, imageField, "lesion.png", testPNG(t)))
	require.Equal(t, http.StatusOK, env.serve(req, cookies).Code)

	rec = env.serve(newGet("/dashboard"), cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	env.ds.AssertNumberOfCalls(t, "DashboardStats", 2)
}
