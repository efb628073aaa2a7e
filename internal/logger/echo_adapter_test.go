package logger_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	echolog "github.com/labstack/gommon/log"
	"github.com/stretchr/testify/assert"

	"github.com/oncoderma/oncoderma-go/internal/logger"
)

var _ echo.Logger = (*logger.EchoLoggerAdapter)(nil)

func TestEchoLoggerAdapter(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	adapter := logger.NewEchoLoggerAdapter(logger.NewSlogLogger(buf, logger.LogLevelInfo, time.UTC).Module("echo"))

	adapter.Debugf("hidden %d", 1)
	adapter.Infof("listening on %s", ":8000")
	adapter.Error("broken pipe")
	adapter.Warnj(echolog.JSON{"k": "v"})

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `msg="listening on :8000"`)
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, `msg="broken pipe"`)
	assert.Contains(t, out, "module=echo")
	assert.Equal(t, echolog.INFO, adapter.Level())

	assert.PanicsWithValue(t, "echo: fatal thing", func() { adapter.Fatal("fatal thing") })
	assert.Contains(t, buf.String(), `msg="fatal thing"`)
}
