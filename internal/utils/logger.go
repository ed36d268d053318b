// internal/utils/logger.go
package utils

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a thin leveled facade over zap used across the server.
type Logger struct {
	z *zap.Logger
}

var (
	globalLogger *Logger
	loggerMu     sync.RWMutex
)

// facadeSkip makes caller fields point past the Logger methods.
var facadeSkip = zap.AddCallerSkip(1)

// GetLogger returns the process logger, creating a production logger on first use.
func GetLogger() *Logger {
	loggerMu.RLock()
	l := globalLogger
	loggerMu.RUnlock()
	if l != nil {
		return l
	}

	loggerMu.Lock()
	defer loggerMu.Unlock()
	if globalLogger == nil {
		z, err := zap.NewProduction(facadeSkip)
		if err != nil {
			z = zap.NewNop()
		}
		globalLogger = &Logger{z: z}
	}
	return globalLogger
}

// InitLogger replaces the process logger. debug lowers the level to debug.
func InitLogger(debug bool) (*Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	z, err := cfg.Build(facadeSkip)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	l := &Logger{z: z}
	SetLogger(l)
	return l, nil
}

// NewLogger wraps an existing zap logger. Tests pass zaptest or observer loggers.
func NewLogger(z *zap.Logger) *Logger {
	return &Logger{z: z}
}

// SetLogger installs l as the process logger.
func SetLogger(l *Logger) {
	loggerMu.Lock()
	globalLogger = l
	loggerMu.Unlock()
}

// Zap exposes the underlying zap logger.
func (l *Logger) Zap() *zap.Logger {
	return l.z
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.z.Sync()
}

func toFields(fields map[string]interface{}) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		if err, ok := v.(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, v))
	}
	return out
}

func (l *Logger) Debug(message string, fields map[string]interface{}) {
	l.z.Debug(message, toFields(fields)...)
}

func (l *Logger) Info(message string, fields map[string]interface{}) {
	l.z.Info(message, toFields(fields)...)
}

func (l *Logger) Warn(message string, fields map[string]interface{}) {
	l.z.Warn(message, toFields(fields)...)
}

func (l *Logger) Error(message string, fields map[string]interface{}) {
	l.z.Error(message, toFields(fields)...)
}

// Fatal logs and exits the process.
func (l *Logger) Fatal(message string, fields map[string]interface{}) {
	l.z.Fatal(message, toFields(fields)...)
}

func (l *Logger) Debugf(format string, args ...interface{}) {
	l.z.Debug(fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(format string, args ...interface{}) {
	l.z.Info(fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(format string, args ...interface{}) {
	l.z.Warn(fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(format string, args ...interface{}) {
	l.z.Error(fmt.Sprintf(format, args...))
}

func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.z.Fatal(fmt.Sprintf(format, args...))
}
