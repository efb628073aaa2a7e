package httpcontroller

import (
	"sync"

	"github.com/oncoderma/oncoderma-go/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the web server logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("http")
	})
	return serviceLogger
}
