package conf

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/viper"

	"github.com/oncoderma/oncoderma-go/internal/logger"
)

// envBinding maps a config key to an environment variable with optional validation.
type envBinding struct {
	ConfigKey string
	EnvVar    string
	Validate  func(string) error
}

// getEnvBindings returns the explicit environment bindings.
// Keys not listed here are still reachable through the ONCODERMA_ prefix,
// e.g. ONCODERMA_WEBSERVER_PORT.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"chat.apikey", "GEMINI_API_KEY", nil},
		{"security.sessionsecret", "ONCODERMA_SESSION_SECRET", nil},
		{"classifier.modelpath", "ONCODERMA_MODEL_PATH", validateEnvPath},
		{"classifier.labelpath", "ONCODERMA_LABEL_PATH", validateEnvPath},
		{"webserver.mediaroot", "ONCODERMA_MEDIA_ROOT", validateEnvPath},
		{"output.sqlite.path", "ONCODERMA_DB_PATH", validateEnvPath},
		{"debug", "ONCODERMA_DEBUG", validateEnvBool},
		{"sentry.dsn", "SENTRY_DSN", nil},
	}
}

// bindEnvVars binds the explicit environment variables to viper keys.
// Invalid values are skipped and reported together.
func bindEnvVars() error {
	var warnings []string

	for _, binding := range getEnvBindings() {
		if err := viper.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		if binding.Validate == nil {
			continue
		}
		if value := viper.GetString(binding.ConfigKey); value != "" && isEnvSet(binding.EnvVar) {
			if err := binding.Validate(value); err != nil {
				warnings = append(warnings, fmt.Sprintf("invalid %s: %v", binding.EnvVar, err))
				viper.Set(binding.ConfigKey, nil)
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues: %s", strings.Join(warnings, "; "))
	}
	return nil
}

// configureEnvironmentVariables enables ONCODERMA_ prefixed overrides and the explicit bindings.
func configureEnvironmentVariables() error {
	viper.SetEnvPrefix("ONCODERMA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := bindEnvVars(); err != nil {
		GetLogger().Warn("some environment variables were ignored", logger.Error(err))
		return err
	}
	return nil
}

func isEnvSet(name string) bool {
	_, ok := lookupEnv(name)
	return ok
}

func validateEnvPath(value string) error {
	if strings.ContainsRune(value, 0) {
		return fmt.Errorf("path contains null byte")
	}
	if strings.Contains(filepath.ToSlash(filepath.Clean(value)), "../") {
		return fmt.Errorf("path must not traverse parent directories: %s", value)
	}
	return nil
}

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be a boolean, got %q", value)
	}
	return nil
}
