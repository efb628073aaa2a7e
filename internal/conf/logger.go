package conf

import "github.com/oncoderma/oncoderma-go/internal/logger"

// GetLogger returns the module logger for configuration.
func GetLogger() logger.Logger {
	return logger.Global().Module("config")
}
