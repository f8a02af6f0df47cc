package logger

import (
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// global holds the process logger. zap loggers are immutable, so swapping
// the pointer is enough; no lock is needed around use.
var global atomic.Pointer[zap.Logger]

func init() {
	global.Store(zap.NewNop())
}

// Init replaces the process logger with a production JSON logger at the
// supplied level. Unknown level strings fall back to info rather than
// failing start-up.
func Init(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return err
	}

	global.Store(logger)
	return nil
}

// Logger returns the current process logger.
func Logger() *zap.Logger {
	return global.Load()
}

// Replace swaps the process logger and returns a function that restores the
// previous one. Tests use it to install an observer core.
func Replace(l *zap.Logger) func() {
	previous := global.Swap(l)
	return func() {
		global.Store(previous)
	}
}

// Sync flushes any buffered entries to the sink.
func Sync() error {
	return Logger().Sync()
}

// WithModule tags a child logger with its originating module.
func WithModule(module string) *zap.Logger {
	return Logger().With(zap.String("module", module))
}

// Info logs an informational message using the process logger.
func Info(msg string, fields ...zap.Field) {
	Logger().Info(msg, fields...)
}

// Error logs an error message using the process logger.
func Error(msg string, fields ...zap.Field) {
	Logger().Error(msg, fields...)
}

// Warn logs a warning message using the process logger.
func Warn(msg string, fields ...zap.Field) {
	Logger().Warn(msg, fields...)
}

// Debug logs a debug message using the process logger.
func Debug(msg string, fields ...zap.Field) {
	Logger().Debug(msg, fields...)
}
