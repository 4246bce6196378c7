package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"
)

// AsynqLogger adapts a slog logger to asynq.Logger.
type AsynqLogger struct {
	logger *slog.Logger
}

func NewAsynqLogger(logger *slog.Logger) *AsynqLogger {
	return &AsynqLogger{logger: Or(logger).With(FieldComponent, "asynq")}
}

func (l *AsynqLogger) Debug(args ...interface{}) { l.log(slog.LevelDebug, args...) }
func (l *AsynqLogger) Info(args ...interface{})  { l.log(slog.LevelInfo, args...) }
func (l *AsynqLogger) Warn(args ...interface{})  { l.log(slog.LevelWarn, args...) }
func (l *AsynqLogger) Error(args ...interface{}) { l.log(slog.LevelError, args...) }

// Fatal logs at error level and exits, as asynq expects.
func (l *AsynqLogger) Fatal(args ...interface{}) {
	l.log(slog.LevelError, args...)
	os.Exit(1)
}

func (l *AsynqLogger) log(level slog.Level, args ...interface{}) {
	l.logger.Log(context.Background(), level, fmt.Sprint(args...))
}

// AsynqLevel maps a config string onto the asynq log level.
func AsynqLevel(level string) asynq.LogLevel {
	switch ParseLevel(level) {
	case slog.LevelDebug:
		return asynq.DebugLevel
	case slog.LevelWarn:
		return asynq.WarnLevel
	case slog.LevelError:
		return asynq.ErrorLevel
	default:
		return asynq.InfoLevel
	}
}
