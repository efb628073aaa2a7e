package datastore

import (
	"sync"
	"time"

	gormlogger "gorm.io/gorm/logger"

	"github.com/oncoderma/oncoderma-go/internal/logger"
)

// DefaultSlowQueryThreshold is the duration above which queries are logged at WARN.
const DefaultSlowQueryThreshold = 200 * time.Millisecond

var (
	serviceLogger logger.Logger
	initOnce      sync.Once
)

// GetLogger returns the datastore package logger.
func GetLogger() logger.Logger {
	initOnce.Do(func() {
		serviceLogger = logger.Global().Module("datastore")
	})
	return serviceLogger
}

// createGormLogger routes gorm output through the structured logger.
func createGormLogger() gormlogger.Interface {
	return logger.NewGormLoggerAdapter(GetLogger().Module("gorm"), DefaultSlowQueryThreshold)
}
