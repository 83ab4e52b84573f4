// Package logger provides a singleton structured logger for the gateway.
package logger

import (
	"os"
	"sync/atomic"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger atomic.Pointer[zap.SugaredLogger]

func init() {
	// A usable default so packages can log before Initialize runs.
	logger.Store(newLogger(false).Sugar())
}

func get() *zap.SugaredLogger {
	return logger.Load()
}

// Get returns the singleton logger.
func Get() *zap.SugaredLogger {
	return get()
}

// Set replaces the singleton logger.
func Set(l *zap.SugaredLogger) {
	logger.Store(l)
}

// Initialize configures the singleton logger. Debug mode (the `debug` viper
// flag) switches to a human-readable console encoder at debug level;
// otherwise logs are JSON at info level.
func Initialize() {
	logger.Store(newLogger(viper.GetBool("debug")).Sugar())
}

func newLogger(debug bool) *zap.Logger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "timestamp"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	var enc zapcore.Encoder
	level := zapcore.InfoLevel
	if debug {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
		level = zapcore.DebugLevel
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level)
	return zap.New(core)
}

// Debug logs a message at debug level.
func Debug(msg string) {
	get().Debug(msg)
}

// Debugf logs a formatted message at debug level.
func Debugf(msg string, args ...any) {
	get().Debugf(msg, args...)
}

// Debugw logs a message at debug level with key-value pairs.
func Debugw(msg string, keysAndValues ...any) {
	get().Debugw(msg, keysAndValues...)
}

// Info logs a message at info level.
func Info(msg string) {
	get().Info(msg)
}

// Infof logs a formatted message at info level.
func Infof(msg string, args ...any) {
	get().Infof(msg, args...)
}

// Infow logs a message at info level with key-value pairs.
func Infow(msg string, keysAndValues ...any) {
	get().Infow(msg, keysAndValues...)
}

// Warn logs a message at warn level.
func Warn(msg string) {
	get().Warn(msg)
}

// Warnf logs a formatted message at warn level.
func Warnf(msg string, args ...any) {
	get().Warnf(msg, args...)
}

// Warnw logs a message at warn level with key-value pairs.
func Warnw(msg string, keysAndValues ...any) {
	get().Warnw(msg, keysAndValues...)
}

// Error logs a message at error level.
func Error(msg string) {
	get().Error(msg)
}

// Errorf logs a formatted message at error level.
func Errorf(msg string, args ...any) {
	get().Errorf(msg, args...)
}

// Errorw logs a message at error level with key-value pairs.
func Errorw(msg string, keysAndValues ...any) {
	get().Errorw(msg, keysAndValues...)
}

// Panic logs a message at panic level, then panics.
func Panic(msg string) {
	get().Panic(msg)
}

// Panicf logs a formatted message at panic level, then panics.
func Panicf(msg string, args ...any) {
	get().Panicf(msg, args...)
}

// Panicw logs a message at panic level with key-value pairs, then panics.
func Panicw(msg string, keysAndValues ...any) {
	get().Panicw(msg, keysAndValues...)
}

// Fatal logs a message at fatal level, then exits.
func Fatal(msg string) {
	get().Fatal(msg)
}

// Fatalf logs a formatted message at fatal level, then exits.
func Fatalf(msg string, args ...any) {
	get().Fatalf(msg, args...)
}

// Fatalw logs a message at fatal level with key-value pairs, then exits.
func Fatalw(msg string, keysAndValues ...any) {
	get().Fatalw(msg, keysAndValues...)
}
