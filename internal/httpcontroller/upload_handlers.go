package httpcontroller

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/oncoderma/oncoderma-go/internal/classifier"
	"github.com/oncoderma/oncoderma-go/internal/datastore"
	"github.com/oncoderma/oncoderma-go/internal/errors"
	"github.com/oncoderma/oncoderma-go/internal/logger"
	"github.com/oncoderma/oncoderma-go/internal/security"
)

const (
	imageField = "image_file"

	msgFormInvalid = "Form invalid"
)

// uploadResponse is returned to AJAX uploads.
type uploadResponse struct {
	Diagnosis  string  `json:"diagnosis"`
	Confidence float64 `json:"confidence"`
	RiskLevel  string  `json:"risk_level"`
}

// uploadPageData refills the upload form.
type uploadPageData struct {
	Form       uploadForm
	ModelReady bool
}

// uploadPage shows the upload form.
func (s *Server) uploadPage(c echo.Context) error {
	data := uploadPageData{ModelReady: s.Classifier.Ready()}
	return s.render(c, http.StatusOK, s.newPage(c, "upload", "Upload Scan", data))
}

// handleUpload validates the form, classifies the image, stores it and
// records the prediction. Nothing is persisted unless every step succeeds.
func (s *Server) handleUpload(c echo.Context) error {
	user := currentUser(c)

	var form uploadForm
	bindErr := c.Bind(&form)
	trimFields(&form)

	fieldErrors := s.validateForm(form)
	if bindErr != nil {
		fieldErrors = mergeErrors(fieldErrors, map[string]string{"form": "Invalid form submission."})
	}
	data, fileErr := readUpload(c)
	if fileErr != "" {
		fieldErrors = mergeErrors(fieldErrors, map[string]string{imageField: fileErr})
	}
	if fieldErrors != nil {
		return s.uploadFailed(c, form, http.StatusBadRequest, msgFormInvalid, fieldErrors)
	}

	if !s.Classifier.Ready() {
		return s.modelUnavailable(c)
	}

	ctx := c.Request().Context()
	batch, err := s.Classifier.Preprocess(data)
	if err != nil {
		if errors.IsCategory(err, errors.CategoryInvalidImage) {
			GetLogger().Info("upload rejected, image could not be decoded",
				logger.Uint("user_id", user.ID),
				logger.Error(err))
			return s.uploadFailed(c, form, http.StatusBadRequest, msgInvalidImage,
				map[string]string{imageField: msgInvalidImage})
		}
		return err
	}

	result, err := s.Classifier.Classify(ctx, batch)
	if err != nil {
		if errors.Is(err, classifier.ErrModelUnavailable) {
			return s.modelUnavailable(c)
		}
		return err
	}

	imagePath, err := s.Media.SaveUpload(user.ID, data, batch.Format)
	if err != nil {
		return err
	}

	prediction := &datastore.Prediction{
		UserID:      user.ID,
		PatientName: form.PatientName,
		ScanType:    form.ScanType,
		Result:      result.Label,
		Confidence:  result.Confidence,
		RiskLevel:   result.RiskLevel,
		Timestamp:   time.Now(),
		ImageFile:   imagePath,
	}
	if err := s.DS.CreatePrediction(ctx, prediction); err != nil {
		if rmErr := s.Media.Remove(imagePath); rmErr != nil {
			GetLogger().Warn("failed to remove orphaned upload",
				logger.String("path", imagePath),
				logger.Error(rmErr))
		}
		return err
	}

	s.invalidateStats(user.ID)
	if s.Notifier != nil {
		s.Notifier.PredictionSaved(*prediction)
	}

	GetLogger().Info("scan analyzed",
		logger.Uint("user_id", user.ID),
		logger.Uint("prediction_id", prediction.ID),
		logger.String("result", result.Label),
		logger.Float64("confidence", result.Confidence),
		logger.String("format", batch.Format))

	if isAJAX(c) {
		return c.JSON(http.StatusOK, uploadResponse{
			Diagnosis:  result.Label,
			Confidence: result.DisplayConfidence(),
			RiskLevel:  result.RiskLevel,
		})
	}

	s.Sessions.AddFlash(c, security.FlashSuccess,
		fmt.Sprintf("Scan analyzed: %s (%.2f%%)", result.Label, result.Confidence))
	return c.Redirect(http.StatusFound, "/dashboard")
}

// readUpload returns the uploaded image bytes, or a field error message.
func readUpload(c echo.Context) ([]byte, string) {
	header, err := c.FormFile(imageField)
	if err != nil {
		return nil, "This field is required."
	}
	f, err := header.Open()
	if err != nil {
		return nil, "The submitted file could not be read."
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "The submitted file could not be read."
	}
	if len(data) == 0 {
		return nil, "The submitted file is empty."
	}
	return data, ""
}

// uploadFailed answers AJAX callers with JSON and re-renders the form otherwise.
func (s *Server) uploadFailed(c echo.Context, form uploadForm, status int, message string, fieldErrors map[string]string) error {
	if isAJAX(c) {
		return c.JSON(status, map[string]string{"error": message})
	}
	page := s.newPage(c, "upload", "Upload Scan", uploadPageData{Form: form, ModelReady: s.Classifier.Ready()})
	page.Flashes = append(page.Flashes, security.Flash{Level: security.FlashError, Message: message})
	page.Errors = fieldErrors
	return s.render(c, status, page)
}

// modelUnavailable reports a classifier whose model failed to load.
func (s *Server) modelUnavailable(c echo.Context) error {
	message := classifier.ErrModelUnavailable.Error()
	if isAJAX(c) {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": message})
	}
	s.Sessions.AddFlash(c, security.FlashError, message)
	return c.Redirect(http.StatusFound, "/dashboard")
}

func mergeErrors(dst, src map[string]string) map[string]string {
	if dst == nil {
		dst = make(map[string]string, len(src))
	}
	for k, v := range src {
		if _, exists := dst[k]; !exists {
			dst[k] = v
		}
	}
	return dst
}
