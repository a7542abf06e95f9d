// Package log provides centralized logging functionality using zap logger.
package log

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.SugaredLogger
var baseLogger *zap.Logger

// New builds a zap logger: human-readable with debug output when debug is
// set, JSON at info level otherwise.
func New(debug bool) (*zap.Logger, error) {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	return cfg.Build()
}

// Init initializes the package-level logger
func Init(debug bool) error {
	zapLogger, err := New(debug)
	if err != nil {
		return fmt.Errorf("can't initialize zap logger: %v", err)
	}

	baseLogger = zapLogger
	log = zapLogger.Sugar()
	return nil
}

// GetZapLogger returns the base zap logger for cases where it's needed (like GORM)
func GetZapLogger() *zap.Logger {
	if baseLogger == nil {
		// Fallback logger if not initialized
		baseLogger, _ = zap.NewProduction()
		log = baseLogger.Sugar()
	}
	return baseLogger
}

// GetSugaredLogger returns the sugared logger instance
func GetSugaredLogger() *zap.SugaredLogger {
	if log == nil {
		GetZapLogger()
	}
	return log
}

// Named returns a child of the package logger tagged with component.
func Named(component string) *zap.SugaredLogger {
	return GetSugaredLogger().Named(component)
}

// Sync flushes any buffered log entries
func Sync() {
	if log != nil {
		log.Sync()
	}
}

// Package-level convenience functions. They log with the caller of these
// helpers as the source location.
func caller() *zap.SugaredLogger {
	return GetSugaredLogger().WithOptions(zap.AddCallerSkip(1))
}

func Debugw(msg string, keysAndValues ...interface{}) {
	caller().Debugw(msg, keysAndValues...)
}

func Info(args ...interface{}) {
	caller().Info(args...)
}

func Infof(template string, args ...interface{}) {
	caller().Infof(template, args...)
}

func Infow(msg string, keysAndValues ...interface{}) {
	caller().Infow(msg, keysAndValues...)
}

func Warnf(template string, args ...interface{}) {
	caller().Warnf(template, args...)
}

func Warnw(msg string, keysAndValues ...interface{}) {
	caller().Warnw(msg, keysAndValues...)
}

func Errorf(template string, args ...interface{}) {
	caller().Errorf(template, args...)
}

func Errorw(msg string, keysAndValues ...interface{}) {
	caller().Errorw(msg, keysAndValues...)
}

func Fatalf(template string, args ...interface{}) {
	caller().Fatalf(template, args...)
	os.Exit(1)
}
