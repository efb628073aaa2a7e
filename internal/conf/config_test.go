package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validSettings returns settings that pass validation.
func validSettings() *Settings {
	s := &Settings{}
	s.WebServer.Port = "8000"
	s.WebServer.UploadLimit = "10M"
	s.WebServer.MediaRoot = "media"
	s.Classifier.InputSize = 28
	s.Output.SQLite.Enabled = true
	s.Output.SQLite.Path = "oncoderma.db"
	s.Security.SessionMaxAge = 3600
	s.Sentry.SampleRate = 1
	return s
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	t.Setenv("GEMINI_API_KEY", "")

	path := writeConfig(t, "main:\n  name: test-instance\n")

	settings, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test-instance", settings.Main.Name)
	assert.Equal(t, "8000", settings.WebServer.Port)
	assert.Equal(t, 28, settings.Classifier.InputSize)
	assert.False(t, settings.Classifier.Normalize)
	assert.Equal(t, "gemini-2.5-flash", settings.Chat.Model)
	assert.Equal(t, 60*time.Second, settings.Chat.Timeout)
	assert.True(t, settings.Output.SQLite.Enabled)
	assert.Equal(t, "info", settings.Logging.DefaultLevel)
	assert.Equal(t, 1209600, settings.Security.SessionMaxAge)
	assert.NotEmpty(t, settings.Security.SessionSecret, "missing secret should be generated")
	assert.GreaterOrEqual(t, len(settings.Security.SessionKey()), 32)
	assert.Same(t, settings, GetSettings())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("ONCODERMA_WEBSERVER_PORT", "9090")
	t.Setenv("ONCODERMA_SESSION_SECRET", "fixed-secret")

	path := writeConfig(t, "classifier:\n  inputsize: 64\n  normalize: true\n")

	settings, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test-key", settings.Chat.APIKey)
	assert.Equal(t, "9090", settings.WebServer.Port)
	assert.Equal(t, "fixed-secret", settings.Security.SessionSecret)
	assert.Equal(t, 64, settings.Classifier.InputSize)
	assert.True(t, settings.Classifier.Normalize)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	path := writeConfig(t, "output:\n  mysql:\n    enabled: true\n")

	_, err := Load(path)
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Contains(t, ve.Errors, "only one of SQLite or MySQL can be enabled")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestEmbeddedDefaultConfigIsValid(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	require.NoError(t, createDefaultConfig(dir))
	assert.FileExists(t, filepath.Join(dir, "config.yaml"))

	settings, err := Load(filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "models/skin_cancer_model.tflite", settings.Classifier.ModelPath)
	assert.Equal(t, 10*time.Second, settings.Notification.Timeout)
}

func TestSaveYAMLConfigRoundTrip(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	settings := validSettings()
	settings.Main.Name = "saved"
	settings.Security.SessionSecret = "persisted"

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, SaveYAMLConfig(path, settings))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "saved", loaded.Main.Name)
	assert.Equal(t, "persisted", loaded.Security.SessionSecret)
}

func TestValidateSettings(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		mutate  func(s *Settings)
		wantErr string
	}{
		{"valid", func(s *Settings) {}, ""},
		{"bad port", func(s *Settings) { s.WebServer.Port = "http" }, "invalid web server port"},
		{"port out of range", func(s *Settings) { s.WebServer.Port = "70000" }, "invalid web server port"},
		{"bad upload limit", func(s *Settings) { s.WebServer.UploadLimit = "lots" }, "invalid upload limit"},
		{"zero input size", func(s *Settings) { s.Classifier.InputSize = 0 }, "input size must be positive"},
		{"no database", func(s *Settings) { s.Output.SQLite.Enabled = false }, "a database output must be enabled"},
		{"mysql missing fields", func(s *Settings) {
			s.Output.SQLite.Enabled = false
			s.Output.MySQL.Enabled = true
		}, "MySQL requires username, host and database"},
		{"sentry without dsn", func(s *Settings) { s.Sentry.Enabled = true }, "no DSN"},
		{"notification without urls", func(s *Settings) { s.Notification.Enabled = true }, "no service URLs"},
		{"mqtt without topic", func(s *Settings) {
			s.Research.MQTT.Enabled = true
			s.Research.MQTT.Broker = "tcp://localhost:1883"
		}, "no topic"},
		{"rate limit zero burst", func(s *Settings) {
			s.Security.RateLimit.Enabled = true
			s.Security.RateLimit.Rate = 1
		}, "rate limit rate and burst"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := validSettings()
			tc.mutate(s)
			err := ValidateSettings(s)
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestParseByteSize(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"10M", 10 << 20, false},
		{"512k", 512 << 10, false},
		{"1G", 1 << 30, false},
		{"2048", 2048, false},
		{"", 0, true},
		{"-1M", 0, true},
		{"ten", 0, true},
	}

	for _, tc := range testCases {
		got, err := ParseByteSize(tc.in)
		if tc.wantErr {
			assert.Error(t, err, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestValidateEnvHelpers(t *testing.T) {
	t.Parallel()

	assert.NoError(t, validateEnvPath("/var/lib/oncoderma/model.tflite"))
	assert.Error(t, validateEnvPath("../../etc/passwd"))
	assert.NoError(t, validateEnvBool("true"))
	assert.Error(t, validateEnvBool("maybe"))
}
