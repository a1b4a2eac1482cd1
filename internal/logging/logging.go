// Package logging provides structured logging for the wsechod server.
//
// It wraps a zap logger with convenience functions for the logging patterns
// used by the server: connection lifecycle events, message traffic and
// general operational logs. All functions are safe for concurrent use.
//
// Initialize at startup:
//
//	if err := logging.Initialize("info"); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger = zap.NewNop()

// LogLevelEnvVar controls verbosity when no explicit level is configured.
// When unset, logging is silent. Valid values: debug, info, warn, error.
const LogLevelEnvVar = "WSECHOD_LOG_LEVEL"

// Initialize creates the process logger at the given level. An empty level
// falls back to the environment variable, then to silent mode.
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}
	if level == "" {
		logger = zap.NewNop()
		return nil
	}

	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	built, err := config.Build()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	logger = built
	return nil
}

// Logger returns the process logger for injection into library components.
func Logger() *zap.Logger {
	return logger
}

// Sync flushes buffered log entries. Call before exit.
func Sync() {
	_ = logger.Sync()
}

// Debug logs a debug message with structured fields.
func Debug(msg string, fields ...zap.Field) {
	logger.Debug(msg, fields...)
}

// Info logs an info message with structured fields.
func Info(msg string, fields ...zap.Field) {
	logger.Info(msg, fields...)
}

// Warn logs a warning with structured fields.
func Warn(msg string, fields ...zap.Field) {
	logger.Warn(msg, fields...)
}

// Error logs an error with structured fields.
func Error(msg string, fields ...zap.Field) {
	logger.Error(msg, fields...)
}

// LogConnection logs a connection lifecycle event.
func LogConnection(remoteAddr, event string) {
	logger.Info("connection event",
		zap.String("remote_addr", remoteAddr),
		zap.String("event", event),
	)
}

// LogMessage logs WebSocket message traffic.
func LogMessage(remoteAddr, direction string, msgType int, size int) {
	logger.Debug("websocket message",
		zap.String("remote_addr", remoteAddr),
		zap.String("direction", direction),
		zap.Int("type", msgType),
		zap.Int("size", size),
	)
}
