package httpcontroller

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/oncoderma/oncoderma-go/internal/chat"
	"github.com/oncoderma/oncoderma-go/internal/errors"
	"github.com/oncoderma/oncoderma-go/internal/logger"
)

// Chat error messages returned to the page script.
const (
	msgChatMissingFields = "Missing message or scan_id"
	msgChatScanNotFound  = "Scan not found"
	msgChatNotConfigured = "Gemini API key not configured"
	msgChatFailed        = "Failed to process request"
	msgChatInvalidMethod = "Invalid method"
)

// chatResponse is the successful reply of POST /chat.
type chatResponse struct {
	Response string `json:"response"`
}

// handleChat answers a question about one of the user's scans through the
// chat service. Every outcome is a JSON object.
func (s *Server) handleChat(c echo.Context) error {
	if c.Request().Method != http.MethodPost {
		return chatError(c, http.StatusMethodNotAllowed, msgChatInvalidMethod)
	}

	var req chatRequest
	if err := c.Echo().JSONSerializer.Deserialize(c, &req); err != nil {
		return chatError(c, http.StatusBadRequest, msgChatMissingFields)
	}
	message := strings.TrimSpace(req.Message)
	if message == "" || req.ScanID.missing() {
		return chatError(c, http.StatusBadRequest, msgChatMissingFields)
	}

	if s.Chat == nil {
		return chatError(c, http.StatusInternalServerError, msgChatNotConfigured)
	}

	if req.ScanID.tooLarge {
		return chatError(c, http.StatusNotFound, msgChatScanNotFound)
	}

	user := currentUser(c)
	reply, err := s.Chat.Respond(c.Request().Context(), user.ID, req.ScanID.value, message)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, chatResponse{Response: reply})
	case errors.IsNotFound(err):
		return chatError(c, http.StatusNotFound, msgChatScanNotFound)
	case errors.Is(err, chat.ErrNotConfigured):
		return chatError(c, http.StatusInternalServerError, msgChatNotConfigured)
	default:
		GetLogger().Error("chat request failed",
			logger.Uint("user_id", user.ID),
			logger.Uint("scan_id", req.ScanID.value),
			logger.String("category", string(errors.CategoryOf(err))),
			logger.Error(err))
		return chatError(c, http.StatusInternalServerError, msgChatFailed)
	}
}

func chatError(c echo.Context, status int, message string) error {
	return c.JSON(status, map[string]string{"error": message})
}

// chatEnabled reports whether the chat panel should be offered.
func (s *Server) chatEnabled() bool {
	if s.Chat == nil {
		return false
	}
	if e, ok := s.Chat.(interface{ Enabled() bool }); ok {
		return e.Enabled()
	}
	return true
}
