package media

import (
	"sync"

	"github.com/oncoderma/oncoderma-go/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the media module logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("media")
	})
	return serviceLogger
}
