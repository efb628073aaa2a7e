package logger

import (
	"fmt"
	"io"

	echolog "github.com/labstack/gommon/log"
)

// EchoLoggerAdapter routes Echo's internal logging through a Logger.
//
//	e := echo.New()
//	e.Logger = logger.NewEchoLoggerAdapter(appLogger.Module("echo"))
//
// Output, prefix, header and level setters are no-ops: the central logger
// configuration owns all of them.
type EchoLoggerAdapter struct {
	logger Logger
}

// NewEchoLoggerAdapter creates a new Echo logger adapter.
func NewEchoLoggerAdapter(logger Logger) *EchoLoggerAdapter {
	if logger == nil {
		logger = NewSlogLogger(nil, LogLevelInfo, nil)
	}
	return &EchoLoggerAdapter{logger: logger}
}

func (a *EchoLoggerAdapter) Output() io.Writer      { return io.Discard }
func (a *EchoLoggerAdapter) SetOutput(_ io.Writer)  {}
func (a *EchoLoggerAdapter) Prefix() string         { return "" }
func (a *EchoLoggerAdapter) SetPrefix(_ string)     {}
func (a *EchoLoggerAdapter) Level() echolog.Lvl     { return echolog.INFO }
func (a *EchoLoggerAdapter) SetLevel(_ echolog.Lvl) {}
func (a *EchoLoggerAdapter) SetHeader(_ string)     {}

func (a *EchoLoggerAdapter) Print(i ...any) { a.logger.Info(fmt.Sprint(i...)) }
func (a *EchoLoggerAdapter) Printf(format string, args ...any) {
	a.logger.Info(fmt.Sprintf(format, args...))
}
func (a *EchoLoggerAdapter) Printj(j echolog.JSON) { a.logger.Info("echo", Any("data", j)) }

func (a *EchoLoggerAdapter) Debug(i ...any) { a.logger.Debug(fmt.Sprint(i...)) }
func (a *EchoLoggerAdapter) Debugf(format string, args ...any) {
	a.logger.Debug(fmt.Sprintf(format, args...))
}
func (a *EchoLoggerAdapter) Debugj(j echolog.JSON) { a.logger.Debug("echo", Any("data", j)) }

func (a *EchoLoggerAdapter) Info(i ...any) { a.logger.Info(fmt.Sprint(i...)) }
func (a *EchoLoggerAdapter) Infof(format string, args ...any) {
	a.logger.Info(fmt.Sprintf(format, args...))
}
func (a *EchoLoggerAdapter) Infoj(j echolog.JSON) { a.logger.Info("echo", Any("data", j)) }

func (a *EchoLoggerAdapter) Warn(i ...any) { a.logger.Warn(fmt.Sprint(i...)) }
func (a *EchoLoggerAdapter) Warnf(format string, args ...any) {
	a.logger.Warn(fmt.Sprintf(format, args...))
}
func (a *EchoLoggerAdapter) Warnj(j echolog.JSON) { a.logger.Warn("echo", Any("data", j)) }

func (a *EchoLoggerAdapter) Error(i ...any) { a.logger.Error(fmt.Sprint(i...)) }
func (a *EchoLoggerAdapter) Errorf(format string, args ...any) {
	a.logger.Error(fmt.Sprintf(format, args...))
}
func (a *EchoLoggerAdapter) Errorj(j echolog.JSON) { a.logger.Error("echo", Any("data", j)) }

// Fatal and Panic variants log at ERROR and then panic. They never exit.
func (a *EchoLoggerAdapter) Fatal(i ...any) { a.panic(fmt.Sprint(i...)) }

func (a *EchoLoggerAdapter) Fatalf(format string, args ...any) { a.panic(fmt.Sprintf(format, args...)) }
func (a *EchoLoggerAdapter) Fatalj(j echolog.JSON)             { a.panic(fmt.Sprintf("%v", j)) }
func (a *EchoLoggerAdapter) Panic(i ...any)                    { a.panic(fmt.Sprint(i...)) }
func (a *EchoLoggerAdapter) Panicf(format string, args ...any) { a.panic(fmt.Sprintf(format, args...)) }
func (a *EchoLoggerAdapter) Panicj(j echolog.JSON)             { a.panic(fmt.Sprintf("%v", j)) }

func (a *EchoLoggerAdapter) panic(msg string) {
	a.logger.Error(msg)
	panic("echo: " + msg)
}
