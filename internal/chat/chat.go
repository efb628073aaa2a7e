// Package chat answers questions about a saved prediction using the Gemini API.
package chat

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/api/generativelanguage/v1beta"
	"google.golang.org/api/option"

	"github.com/oncoderma/oncoderma-go/internal/conf"
	"github.com/oncoderma/oncoderma-go/internal/datastore"
	"github.com/oncoderma/oncoderma-go/internal/errors"
	"github.com/oncoderma/oncoderma-go/internal/httpclient"
	"github.com/oncoderma/oncoderma-go/internal/logger"
)

// apiKeyHeader authenticates requests to the generative language API.
const apiKeyHeader = "x-goog-api-key"

// serviceName identifies the external dependency in errors and metrics.
const serviceName = "gemini"

// ErrNotConfigured is returned when no API key is set.
var ErrNotConfigured = errors.NewStd("Gemini API key not configured")

// ErrEmptyResponse is returned when the API answers without any text.
var ErrEmptyResponse = errors.NewStd("empty response from model")

// PredictionLookup is the part of the datastore the chat service needs.
type PredictionLookup interface {
	GetPredictionForUser(ctx context.Context, userID, id uint) (*datastore.Prediction, error)
}

// MetricsRecorder receives the outcome of each API call.
type MetricsRecorder interface {
	RecordChatRequest(status string, duration time.Duration)
}

// Service forwards questions about a user's prediction to Gemini.
type Service struct {
	store    PredictionLookup
	settings conf.ChatSettings
	client   *httpclient.Client
	api      *generativelanguage.Service
	metrics  MetricsRecorder
}

// Option configures a Service.
type Option func(*httpclient.Config)

// WithHTTPConfig adjusts the HTTP client configuration, e.g. to install a mock transport.
func WithHTTPConfig(fn func(*httpclient.Config)) Option {
	return Option(fn)
}

// NewService creates a chat service. A missing API key is not an error here;
// Respond reports it per request so the rest of the application keeps working.
func NewService(store PredictionLookup, settings *conf.ChatSettings, opts ...Option) (*Service, error) {
	s := &Service{store: store, settings: *settings}
	if s.settings.Model == "" {
		s.settings.Model = "gemini-2.5-flash"
	}
	if s.settings.APIKey == "" {
		GetLogger().Warn("GEMINI_API_KEY is not set, chat is disabled")
		return s, nil
	}

	cfg := httpclient.DefaultConfig()
	cfg.DefaultTimeout = s.settings.Timeout
	if s.settings.UserAgent != "" {
		cfg.UserAgent = s.settings.UserAgent
	}
	cfg.Headers = map[string]string{apiKeyHeader: s.settings.APIKey}
	for _, opt := range opts {
		opt(&cfg)
	}
	s.client = httpclient.New(&cfg)
	s.client.OnResponse(logUpstream)

	clientOpts := []option.ClientOption{option.WithHTTPClient(s.client.StandardClient())}
	if s.settings.Endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(s.settings.Endpoint))
	}

	api, err := generativelanguage.NewService(context.Background(), clientOpts...)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to create generative language client: %w", err)).
			Category(errors.CategoryConfiguration).
			Build()
	}
	s.api = api
	return s, nil
}

// logUpstream records failed round trips to the API. Successful calls are
// logged by Respond once the answer is parsed.
func logUpstream(req *http.Request, resp *http.Response, err error) {
	switch {
	case err != nil:
		GetLogger().Debug("gemini round trip failed",
			logger.String("host", req.URL.Host),
			logger.Error(err))
	case resp.StatusCode >= http.StatusBadRequest:
		GetLogger().Debug("gemini returned error status",
			logger.String("host", req.URL.Host),
			logger.Int("status", resp.StatusCode))
	}
}

// SetMetrics attaches a metrics recorder.
func (s *Service) SetMetrics(m MetricsRecorder) {
	s.metrics = m
}

// Enabled reports whether an API key is configured.
func (s *Service) Enabled() bool {
	return s.api != nil
}

// Respond answers message in the context of prediction scanID owned by userID.
//
// Errors:
//   - not-found or authorization category when the scan is missing or foreign
//   - ErrNotConfigured when no API key is set
//   - external-service category for any API failure
func (s *Service) Respond(ctx context.Context, userID, scanID uint, message string) (string, error) {
	prediction, err := s.store.GetPredictionForUser(ctx, userID, scanID)
	if err != nil {
		return "", err
	}

	if !s.Enabled() {
		return "", errors.New(ErrNotConfigured).
			Component("chat").
			Category(errors.CategoryConfiguration).
			Build()
	}

	prompt := BuildPrompt(prediction, message)
	request := &generativelanguage.GenerateContentRequest{
		Contents: []*generativelanguage.Content{{
			Role:  "user",
			Parts: []*generativelanguage.Part{{Text: prompt}},
		}},
	}

	start := time.Now()
	resp, err := s.api.Models.GenerateContent("models/"+s.settings.Model, request).Context(ctx).Do()
	elapsed := time.Since(start)
	if err != nil {
		s.record("error", elapsed)
		GetLogger().Warn("chat request failed",
			logger.String("model", s.settings.Model),
			logger.Duration("duration", elapsed),
			logger.Error(err))
		return "", errors.NewExternalServiceError(serviceName, err)
	}

	text := responseText(resp)
	if text == "" {
		s.record("empty", elapsed)
		return "", errors.NewExternalServiceError(serviceName, ErrEmptyResponse)
	}

	s.record("success", elapsed)
	GetLogger().Debug("chat response received",
		logger.Uint("scan_id", scanID),
		logger.Int("response_chars", len(text)),
		logger.Duration("duration", elapsed))

	return text, nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *generativelanguage.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate == nil || candidate.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

func (s *Service) record(status string, d time.Duration) {
	if s.metrics != nil {
		s.metrics.RecordChatRequest(status, d)
	}
}

// Close releases idle connections.
func (s *Service) Close() {
	if s.client != nil {
		s.client.Close()
	}
}
