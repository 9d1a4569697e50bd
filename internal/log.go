package internal

import (
	"errors"
	"io"
	"os"
	"strings"
	"sync"
)

var (
	globalLogger *SecureLogger
	loggerMutex  sync.RWMutex
)

// InitLogger initializes the global logger with the given configuration
func InitLogger(config *Config) error {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()

	level := parseLogLevel(config.LogLevel)

	var output io.Writer = os.Stderr
	if config.LogFile != "" {
		file, err := os.OpenFile(config.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return err
		}
		output = file
	}

	globalLogger = NewSecureLogger(output, level, config.EnableDebug, config.QuietMode)
	return nil
}

// GetLogger returns the global logger instance
func GetLogger() *SecureLogger {
	loggerMutex.RLock()
	defer loggerMutex.RUnlock()

	if globalLogger == nil {
		globalLogger = NewDefaultLogger(false, false)
	}
	return globalLogger
}

func parseLogLevel(level string) LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return LogLevelDebug
	case "info":
		return LogLevelInfo
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// Convenience functions for global logging

// LogError logs an error message using the global logger
func LogError(format string, args ...interface{}) {
	GetLogger().Error(format, args...)
}

// LogWarn logs a warning message using the global logger
func LogWarn(format string, args ...interface{}) {
	GetLogger().Warn(format, args...)
}

// LogInfo logs an info message using the global logger
func LogInfo(format string, args ...interface{}) {
	GetLogger().Info(format, args...)
}

// LogDebug logs a debug message using the global logger
func LogDebug(format string, args ...interface{}) {
	GetLogger().Debug(format, args...)
}

// LogResolutionError logs a ResolutionError with its full detail.
// Transient and no-result faults are expected fallback triggers and log
// at warn; everything else is an error.
func LogResolutionError(err error) {
	var resErr *ResolutionError
	if !errors.As(err, &resErr) {
		GetLogger().Error("%v", err)
		return
	}
	if resErr.Kind == ErrTransientNetwork || resErr.Kind == ErrNoResult {
		GetLogger().Warn("%s", resErr.DetailedError())
		return
	}
	GetLogger().Error("%s", resErr.DetailedError())
}
