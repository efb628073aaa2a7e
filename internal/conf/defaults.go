// defaults.go default values for viper
package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/oncoderma/oncoderma-go/internal/logger"
)

// setDefaultConfig sets the default configuration values.
func setDefaultConfig() {
	viper.SetDefault("debug", false)
	viper.SetDefault("main.name", "oncoderma")

	// Web server
	viper.SetDefault("webserver.listen", "")
	viper.SetDefault("webserver.port", "8000")
	viper.SetDefault("webserver.uploadlimit", "10M")
	viper.SetDefault("webserver.mediaroot", "media")
	viper.SetDefault("webserver.readtimeout", 30*time.Second)
	viper.SetDefault("webserver.writetimeout", 90*time.Second)

	// Sessions and request protection
	viper.SetDefault("security.sessionsecret", "")
	viper.SetDefault("security.sessionmaxage", 1209600) // two weeks
	viper.SetDefault("security.securecookies", false)
	viper.SetDefault("security.csrf", true)
	viper.SetDefault("security.ratelimit.enabled", true)
	viper.SetDefault("security.ratelimit.rate", 1.0)
	viper.SetDefault("security.ratelimit.burst", 10)

	// Classifier
	viper.SetDefault("classifier.modelpath", "models/skin_cancer_model.tflite")
	viper.SetDefault("classifier.labelpath", "")
	viper.SetDefault("classifier.inputsize", 28)
	viper.SetDefault("classifier.normalize", false)
	viper.SetDefault("classifier.threads", 0)

	// Chat assistant
	viper.SetDefault("chat.apikey", "")
	viper.SetDefault("chat.model", "gemini-2.5-flash")
	viper.SetDefault("chat.endpoint", "")
	viper.SetDefault("chat.timeout", 60*time.Second)
	viper.SetDefault("chat.useragent", "oncoderma")

	// Database
	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "oncoderma.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.username", "")
	viper.SetDefault("output.mysql.password", "")
	viper.SetDefault("output.mysql.database", "oncoderma")
	viper.SetDefault("output.mysql.host", "localhost")
	viper.SetDefault("output.mysql.port", "3306")

	// Logging
	viper.SetDefault("logging.default_level", logger.DefaultLogLevel)
	viper.SetDefault("logging.timezone", "Local")
	viper.SetDefault("logging.console.enabled", true)
	viper.SetDefault("logging.console.level", logger.DefaultLogLevel)
	viper.SetDefault("logging.console.json", false)
	viper.SetDefault("logging.file_output.enabled", false)
	viper.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	viper.SetDefault("logging.file_output.max_size", logger.DefaultMaxSize)
	viper.SetDefault("logging.file_output.max_age", logger.DefaultMaxAge)
	viper.SetDefault("logging.file_output.max_rotated_files", logger.DefaultMaxRotatedFiles)
	viper.SetDefault("logging.file_output.compress", false)

	// Observability
	viper.SetDefault("observability.metrics.enabled", false)
	viper.SetDefault("observability.metrics.path", "/metrics")

	// Sentry
	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")
	viper.SetDefault("sentry.environment", "production")
	viper.SetDefault("sentry.samplerate", 1.0)

	// Notifications
	viper.SetDefault("notification.enabled", false)
	viper.SetDefault("notification.urls", []string{})
	viper.SetDefault("notification.timeout", 10*time.Second)

	// Research feed
	viper.SetDefault("research.mqtt.enabled", false)
	viper.SetDefault("research.mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("research.mqtt.topic", "oncoderma/research")
	viper.SetDefault("research.mqtt.username", "")
	viper.SetDefault("research.mqtt.password", "")
	viper.SetDefault("research.mqtt.retain", false)
}
