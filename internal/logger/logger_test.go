package logger_test

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oncoderma/oncoderma-go/internal/logger"
)

func TestLogLevels(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		level     logger.LogLevel
		logFunc   func(l logger.Logger)
		wantEntry bool
	}{
		{"debug suppressed at info", logger.LogLevelInfo, func(l logger.Logger) { l.Debug("msg") }, false},
		{"info logged at info", logger.LogLevelInfo, func(l logger.Logger) { l.Info("msg") }, true},
		{"warn logged at info", logger.LogLevelInfo, func(l logger.Logger) { l.Warn("msg") }, true},
		{"trace suppressed at debug", logger.LogLevelDebug, func(l logger.Logger) { l.Trace("msg") }, false},
		{"trace logged at trace", logger.LogLevelTrace, func(l logger.Logger) { l.Trace("msg") }, true},
		{"error logged at error", logger.LogLevelError, func(l logger.Logger) { l.Error("msg") }, true},
		{"explicit level respects threshold", logger.LogLevelWarn, func(l logger.Logger) { l.Log(logger.LogLevelInfo, "msg") }, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			buf := &bytes.Buffer{}
			tc.logFunc(logger.NewSlogLogger(buf, tc.level, time.UTC))
			assert.Equal(t, tc.wantEntry, strings.Contains(buf.String(), "msg=msg"), buf.String())
		})
	}
}

func TestTraceLevelName(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	logger.NewSlogLogger(buf, logger.LogLevelTrace, time.UTC).Trace("tensor dump")
	assert.Contains(t, buf.String(), "level=TRACE")
}

func TestFieldsAndModules(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	base := logger.NewSlogLogger(buf, logger.LogLevelDebug, time.UTC)

	log := base.Module("datastore").Module("sqlite").With(logger.String("db", "test.db"))
	log.Info("opened",
		logger.Int("tables", 3),
		logger.Bool("wal", true),
		logger.Float64("ratio", 0.123456),
		logger.Duration("elapsed", 1500*time.Millisecond),
		logger.Error(errors.New("boom")))

	out := buf.String()
	assert.Contains(t, out, "module=datastore.sqlite")
	assert.Contains(t, out, "db=test.db")
	assert.Contains(t, out, "tables=3")
	assert.Contains(t, out, "wal=true")
	assert.Contains(t, out, "ratio=0.123")
	assert.Contains(t, out, "elapsed=1.5s")
	assert.Contains(t, out, "error=boom")
}

func TestWithDoesNotMutateParent(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	parent := logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC)
	_ = parent.With(logger.String("child", "yes"))

	parent.Info("from parent")
	assert.NotContains(t, buf.String(), "child=yes")
}

func TestWithContextAddsTraceID(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC)

	ctx := logger.WithTraceID(t.Context(), "req-123")
	log.WithContext(ctx).Info("handled")
	assert.Contains(t, buf.String(), "trace_id=req-123")

	assert.Equal(t, "req-123", logger.TraceIDFromContext(ctx))
	assert.Empty(t, logger.TraceIDFromContext(t.Context()))
}

func TestSensitiveFieldsAreRedacted(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	log := logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC)
	log.Info("login", logger.String("username", "alice"), logger.String("password", "hunter22"))

	out := buf.String()
	assert.Contains(t, out, "username=alice")
	assert.NotContains(t, out, "hunter22")
	assert.Contains(t, out, "password=[REDACTED]")
}

func TestCentralLoggerFileOutput(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "logs", "app.log")
	cl, err := logger.NewCentralLogger(&logger.LoggingConfig{
		DefaultLevel: "debug",
		Timezone:     "UTC",
		Console:      &logger.ConsoleOutput{Enabled: false},
		FileOutput:   &logger.FileOutput{Enabled: true, Path: path, Level: "debug"},
		ModuleLevels: map[string]string{"chat": "error"},
	})
	require.NoError(t, err)

	cl.Module("classifier").Debug("model loaded", logger.String("path", "model.tflite"))
	cl.Module("chat").Info("suppressed by module level")
	require.NoError(t, cl.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `"msg":"model loaded"`)
	assert.Contains(t, out, `"module":"classifier"`)
	assert.NotContains(t, out, "suppressed by module level")
}

func TestCentralLoggerRotate(t *testing.T) {
	t.Parallel()

	t.Run("file output", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		path := filepath.Join(dir, "app.log")
		cl, err := logger.NewCentralLogger(&logger.LoggingConfig{
			Console:    &logger.ConsoleOutput{Enabled: false},
			FileOutput: &logger.FileOutput{Enabled: true, Path: path, Level: "info"},
		})
		require.NoError(t, err)

		cl.Module("main").Info("before rotation")
		require.NoError(t, cl.Rotate())
		cl.Module("main").Info("after rotation")
		require.NoError(t, cl.Close())

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 2, "rotation keeps the old file as a backup")

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "after rotation")
		assert.NotContains(t, string(data), "before rotation")
	})

	t.Run("console only", func(t *testing.T) {
		t.Parallel()
		cl, err := logger.NewCentralLogger(&logger.LoggingConfig{
			Console: &logger.ConsoleOutput{Enabled: true, Level: "info"},
		})
		require.NoError(t, err)
		assert.NoError(t, cl.Rotate())
	})
}

func TestNewCentralLoggerErrors(t *testing.T) {
	t.Parallel()

	_, err := logger.NewCentralLogger(nil)
	require.Error(t, err)

	_, err = logger.NewCentralLogger(&logger.LoggingConfig{Timezone: "Not/AZone"})
	require.Error(t, err)
}
