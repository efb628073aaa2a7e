package httpcontroller

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/oncoderma/oncoderma-go/internal/errors"
	"github.com/oncoderma/oncoderma-go/internal/logger"
)

// Messages shown for errors that carry no user-presentable text.
const (
	msgInvalidImage   = "Invalid image file"
	msgNotFound       = "Not found"
	msgConflict       = "The request conflicts with existing data"
	msgUnavailable    = "Service temporarily unavailable"
	msgInternal       = "Internal server error"
	msgTimeout        = "The request timed out"
	msgRequestTooBig  = "Request too large"
	msgInvalidRequest = "Invalid request"
)

// errorPageData is passed to the error template.
type errorPageData struct {
	Status  int
	Message string
}

// HTTPErrorHandler converts handler errors into a response. AJAX and JSON
// callers receive {"error": message}; browsers get the error page. Server
// faults are logged with the request id and reported to telemetry.
func (s *Server) HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, message := statusForError(err)

	if status >= http.StatusInternalServerError {
		requestID, _ := c.Get(requestIDContextKey).(string)
		reportServerError(err, c)
		GetLogger().Error("request handler failed",
			logger.String("request_id", requestID),
			logger.String("path", c.Request().URL.Path),
			logger.Int("status", status),
			logger.Error(err))
	}

	var respErr error
	switch {
	case c.Request().Method == http.MethodHead:
		respErr = c.NoContent(status)
	case wantsJSON(c):
		respErr = c.JSON(status, map[string]string{"error": message})
	default:
		page := s.newPage(c, "error", http.StatusText(status), errorPageData{Status: status, Message: message})
		if respErr = s.render(c, status, page); respErr != nil && !c.Response().Committed {
			respErr = c.String(status, message)
		}
	}
	if respErr != nil {
		GetLogger().Warn("failed to write error response", logger.Error(respErr))
	}
}

// statusForError maps an error to an HTTP status and a message safe to show.
func statusForError(err error) (int, string) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		msg, ok := he.Message.(string)
		if !ok || msg == "" {
			msg = http.StatusText(he.Code)
		}
		if he.Code == http.StatusRequestEntityTooLarge {
			msg = msgRequestTooBig
		}
		return he.Code, msg
	}

	var ee *errors.EnhancedError
	if !errors.As(err, &ee) {
		return http.StatusInternalServerError, msgInternal
	}

	switch ee.Category {
	case errors.CategoryValidation:
		if msg := ee.GetMessage(); msg != "" {
			return http.StatusBadRequest, msg
		}
		return http.StatusBadRequest, msgInvalidRequest
	case errors.CategoryInvalidImage:
		return http.StatusBadRequest, msgInvalidImage
	case errors.CategoryNotFound, errors.CategoryAuthorization:
		// Foreign records are reported exactly like missing ones
		return http.StatusNotFound, msgNotFound
	case errors.CategoryConflict:
		return http.StatusConflict, msgConflict
	case errors.CategoryModelInit, errors.CategoryModelLoad, errors.CategoryLabelLoad,
		errors.CategoryConfiguration, errors.CategoryDatabase, errors.CategoryNetwork:
		return http.StatusServiceUnavailable, msgUnavailable
	case errors.CategoryTimeout:
		return http.StatusGatewayTimeout, msgTimeout
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

// reportServerError forwards 5xx errors that have not been reported yet.
// Categorized errors are reported when they are built; anything else is
// wrapped so it reaches the tracker with the request path.
func reportServerError(err error, c echo.Context) {
	var ee *errors.EnhancedError
	if errors.As(err, &ee) {
		return
	}
	var he *echo.HTTPError
	if errors.As(err, &he) && he.Internal == nil {
		return
	}
	_ = errors.New(fmt.Errorf("unhandled request error: %w", err)).
		Component("http-controller").
		Category(errors.CategorySystem).
		Context("route", c.Path()).
		Context("method", c.Request().Method).
		Build()
}

// wantsJSON reports whether the caller expects a JSON error body.
func wantsJSON(c echo.Context) bool {
	if isAJAX(c) {
		return true
	}
	if strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMEApplicationJSON) {
		return true
	}
	return strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEApplicationJSON)
}
