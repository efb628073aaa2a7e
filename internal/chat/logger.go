package chat

import (
	"sync"

	"github.com/oncoderma/oncoderma-go/internal/logger"
)

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the chat package logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("chat")
	})
	return serviceLogger
}
