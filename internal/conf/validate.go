// validate.go contains validation logic for configuration settings
package conf

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	ve.Errors = append(ve.Errors, validateWebServerSettings(&settings.WebServer)...)
	ve.Errors = append(ve.Errors, validateClassifierSettings(&settings.Classifier)...)
	ve.Errors = append(ve.Errors, validateOutputSettings(&settings.Output)...)
	ve.Errors = append(ve.Errors, validateSecuritySettings(&settings.Security)...)

	if settings.Sentry.Enabled && settings.Sentry.DSN == "" {
		ve.Errors = append(ve.Errors, "sentry is enabled but no DSN is set")
	}
	if settings.Sentry.SampleRate < 0 || settings.Sentry.SampleRate > 1 {
		ve.Errors = append(ve.Errors, "sentry sample rate must be between 0 and 1")
	}

	if settings.Notification.Enabled && len(settings.Notification.URLs) == 0 {
		ve.Errors = append(ve.Errors, "notifications are enabled but no service URLs are configured")
	}

	if mq := settings.Research.MQTT; mq.Enabled {
		if mq.Broker == "" {
			ve.Errors = append(ve.Errors, "research MQTT is enabled but no broker is set")
		} else if _, err := url.Parse(mq.Broker); err != nil {
			ve.Errors = append(ve.Errors, fmt.Sprintf("invalid MQTT broker URL: %v", err))
		}
		if strings.TrimSpace(mq.Topic) == "" {
			ve.Errors = append(ve.Errors, "research MQTT is enabled but no topic is set")
		}
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateWebServerSettings(s *WebServerSettings) []string {
	var errs []string
	port, err := strconv.Atoi(s.Port)
	if err != nil || port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("invalid web server port: %q", s.Port))
	}
	if _, err := ParseByteSize(s.UploadLimit); err != nil {
		errs = append(errs, fmt.Sprintf("invalid upload limit: %v", err))
	}
	if s.MediaRoot == "" {
		errs = append(errs, "media root must not be empty")
	}
	return errs
}

func validateClassifierSettings(s *ClassifierSettings) []string {
	var errs []string
	if s.InputSize <= 0 {
		errs = append(errs, "classifier input size must be positive")
	}
	if s.Threads < 0 {
		errs = append(errs, "classifier threads must not be negative")
	}
	return errs
}

func validateOutputSettings(s *OutputSettings) []string {
	var errs []string
	switch {
	case s.SQLite.Enabled && s.MySQL.Enabled:
		errs = append(errs, "only one of SQLite or MySQL can be enabled")
	case !s.SQLite.Enabled && !s.MySQL.Enabled:
		errs = append(errs, "a database output must be enabled")
	}

	if s.SQLite.Enabled && s.SQLite.Path == "" {
		errs = append(errs, "SQLite path must not be empty")
	}
	if s.MySQL.Enabled {
		if s.MySQL.Username == "" || s.MySQL.Host == "" || s.MySQL.Database == "" {
			errs = append(errs, "MySQL requires username, host and database")
		}
	}
	return errs
}

func validateSecuritySettings(s *SecuritySettings) []string {
	var errs []string
	if s.SessionMaxAge <= 0 {
		errs = append(errs, "session max age must be positive")
	}
	if s.RateLimit.Enabled && (s.RateLimit.Rate <= 0 || s.RateLimit.Burst <= 0) {
		errs = append(errs, "rate limit rate and burst must be positive")
	}
	return errs
}
