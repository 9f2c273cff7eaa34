// Package logging provides structured logging built on zap, implementing
// core.ILogger so the rest of the pipeline never imports zap directly.
package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tradeguard/internal/core"
)

// Logger implements core.ILogger using a zap.Logger underneath.
type Logger struct {
	zl *zap.Logger
}

// New creates a Logger at the given level, writing to stdout.
func New(levelStr string) *Logger {
	level, err := ParseLevel(levelStr)
	if err != nil {
		level = InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zapCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stdout),
		level.zapLevel(),
	)

	zl := zap.New(zapCore, zap.AddCaller(), zap.AddCallerSkip(1))
	return &Logger{zl: zl}
}

// Level mirrors zapcore.Level under a name this package controls, so callers
// never need to import zap to configure a Logger.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

func (l Level) zapLevel() zapcore.Level {
	switch l {
	case DebugLevel:
		return zap.DebugLevel
	case WarnLevel:
		return zap.WarnLevel
	case ErrorLevel:
		return zap.ErrorLevel
	case FatalLevel:
		return zap.FatalLevel
	default:
		return zap.InfoLevel
	}
}

// ParseLevel parses a log level string.
func ParseLevel(level string) (Level, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DebugLevel, nil
	case "INFO":
		return InfoLevel, nil
	case "WARN":
		return WarnLevel, nil
	case "ERROR":
		return ErrorLevel, nil
	case "FATAL":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("invalid log level: %s", level)
	}
}

func toZapFields(fields []interface{}) []zap.Field {
	zapFields := make([]zap.Field, 0, len(fields)/2)
	for i := 0; i < len(fields); i += 2 {
		if i+1 >= len(fields) {
			break
		}
		key, ok := fields[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", fields[i])
		}
		zapFields = append(zapFields, zap.Any(key, fields[i+1]))
	}
	return zapFields
}

func (l *Logger) Debug(msg string, fields ...interface{}) { l.zl.Debug(msg, toZapFields(fields)...) }
func (l *Logger) Info(msg string, fields ...interface{})  { l.zl.Info(msg, toZapFields(fields)...) }
func (l *Logger) Warn(msg string, fields ...interface{})  { l.zl.Warn(msg, toZapFields(fields)...) }
func (l *Logger) Error(msg string, fields ...interface{}) { l.zl.Error(msg, toZapFields(fields)...) }
func (l *Logger) Fatal(msg string, fields ...interface{}) { l.zl.Fatal(msg, toZapFields(fields)...) }

func (l *Logger) WithField(key string, value interface{}) core.ILogger {
	return &Logger{zl: l.zl.With(zap.Any(key, value))}
}

func (l *Logger) WithFields(fields map[string]interface{}) core.ILogger {
	zapFields := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zapFields = append(zapFields, zap.Any(k, v))
	}
	return &Logger{zl: l.zl.With(zapFields...)}
}

// Sync flushes any buffered log entries; call on shutdown.
func (l *Logger) Sync() error {
	return l.zl.Sync()
}

var _ core.ILogger = (*Logger)(nil)
