// Package telemetry forwards server-side errors to Sentry with privacy filtering.
package telemetry

import (
	"fmt"
	"runtime"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/oncoderma/oncoderma-go/internal/buildinfo"
	"github.com/oncoderma/oncoderma-go/internal/conf"
	"github.com/oncoderma/oncoderma-go/internal/errors"
	"github.com/oncoderma/oncoderma-go/internal/logger"
)

// FlushTimeout bounds how long shutdown waits for queued events.
const FlushTimeout = 2 * time.Second

// Reporter sends enhanced errors to a Sentry hub. It implements errors.TelemetryReporter.
type Reporter struct {
	hub     *sentry.Hub
	enabled bool
}

var _ errors.TelemetryReporter = (*Reporter)(nil)

// Init initializes the Sentry SDK when enabled in settings and installs the
// reporter for the errors package. A disabled reporter is returned otherwise.
func Init(settings *conf.Settings, build *buildinfo.Context) (*Reporter, error) {
	if !settings.Sentry.Enabled {
		GetLogger().Info("error reporting is disabled")
		return &Reporter{}, nil
	}

	err := sentry.Init(clientOptions(settings, build, nil))
	if err != nil {
		return nil, fmt.Errorf("sentry initialization failed: %w", err)
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("os", runtime.GOOS)
		scope.SetTag("arch", runtime.GOARCH)
		scope.SetTag("database", databaseKind(settings))
	})

	r := &Reporter{hub: sentry.CurrentHub(), enabled: true}
	errors.SetTelemetryReporter(r)

	GetLogger().Info("error reporting enabled",
		logger.String("environment", settings.Sentry.Environment),
		logger.String("release", build.Release()),
		logger.Float64("sample_rate", settings.Sentry.SampleRate))
	return r, nil
}

// NewReporter wraps an existing hub. Used with a mock transport in tests.
func NewReporter(hub *sentry.Hub) *Reporter {
	return &Reporter{hub: hub, enabled: hub != nil}
}

func clientOptions(settings *conf.Settings, build *buildinfo.Context, transport sentry.Transport) sentry.ClientOptions {
	return sentry.ClientOptions{
		Dsn:              settings.Sentry.DSN,
		SampleRate:       settings.Sentry.SampleRate,
		AttachStacktrace: true,
		Environment:      settings.Sentry.Environment,
		Release:          build.Release(),
		ServerName:       "",
		Transport:        transport,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event)
		},
	}
}

// IsEnabled implements errors.TelemetryReporter.
func (r *Reporter) IsEnabled() bool {
	return r != nil && r.enabled
}

// ReportError implements errors.TelemetryReporter.
func (r *Reporter) ReportError(ee *errors.EnhancedError) {
	if !r.IsEnabled() || ee == nil {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.GetComponent())
		scope.SetTag("category", ee.GetCategory())
		scope.SetLevel(sentry.LevelError)
		if ctx := ee.GetContext(); len(ctx) > 0 {
			scope.SetContext("error", ctx)
		}
		r.hub.CaptureException(ee)
	})
}

// Flush waits for queued events to be sent.
func (r *Reporter) Flush() {
	if r.IsEnabled() {
		r.hub.Flush(FlushTimeout)
	}
}

// applyPrivacyFilters strips user, host and request data and redacts
// credentials from messages. Patient names never appear in error messages,
// but request bodies could carry them so requests are dropped entirely.
func applyPrivacyFilters(event *sentry.Event) *sentry.Event {
	event.User = sentry.User{}
	event.ServerName = ""
	event.Request = nil

	if event.Contexts != nil {
		delete(event.Contexts, "device")
	}

	event.Message = logger.RedactSensitiveData(event.Message)
	for i := range event.Exception {
		event.Exception[i].Value = logger.RedactSensitiveData(event.Exception[i].Value)
	}

	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	return event
}

func databaseKind(settings *conf.Settings) string {
	if settings.Output.MySQL.Enabled {
		return "mysql"
	}
	return "sqlite"
}
