// Package logging provides the structured logger used throughout the
// client and server: a zap-backed implementation of LoggerInterface with
// a mutable runtime level.
package logging

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel is the severity threshold for a Logger.
type LogLevel int

const (
	// LevelTrace is the most verbose logging level.
	LevelTrace LogLevel = iota
	// LevelDebug logs per-request/response tracing.
	LevelDebug
	// LevelInfo is for general information.
	LevelInfo
	// LevelWarn is for warnings.
	LevelWarn
	// LevelError is for errors.
	LevelError
	// LevelNone disables all logging.
	LevelNone
)

// LoggerInterface defines the logger contract shared by the client, server,
// and cmd entry points.
type LoggerInterface interface {
	Trace(ctx context.Context, format string, args ...interface{})
	Debug(ctx context.Context, format string, args ...interface{})
	Info(ctx context.Context, format string, args ...interface{})
	Warn(ctx context.Context, format string, args ...interface{})
	Error(ctx context.Context, format string, args ...interface{})
	// WithFields returns a new logger with the given fields merged in.
	WithFields(fields map[string]interface{}) LoggerInterface
	GetLevel() LogLevel
	SetLevel(level LogLevel)
}

// LoggerInterfaceHexdump is an optional extra a LoggerInterface implementation
// can satisfy for verbose protocol-frame debugging.
type LoggerInterfaceHexdump interface {
	Hexdump(context.Context, []byte)
}

// Logger implements LoggerInterface and LoggerInterfaceHexdump on top of a
// zap.Logger. The level is mutable at runtime through an AtomicLevel, so
// SetLevel takes effect on a logger already handed out to a client or server.
type Logger struct {
	mu     sync.Mutex
	atom   zap.AtomicLevel
	base   *zap.Logger
	fields map[string]interface{}
}

// Option is a function that configures a Logger
type Option func(*loggerConfig)

type loggerConfig struct {
	level  LogLevel
	writer zapcore.WriteSyncer
	fields map[string]interface{}
}

// WithLevel sets the log level
func WithLevel(level LogLevel) Option {
	return func(c *loggerConfig) {
		c.level = level
	}
}

// WithWriter sets the destination for log output
func WithWriter(w zapcore.WriteSyncer) Option {
	return func(c *loggerConfig) {
		c.writer = w
	}
}

// WithFields adds fields to the logger
func WithFields(fields map[string]interface{}) Option {
	return func(c *loggerConfig) {
		if c.fields == nil {
			c.fields = make(map[string]interface{})
		}
		for k, v := range fields {
			c.fields[k] = v
		}
	}
}

func zapLevel(l LogLevel) zapcore.Level {
	switch {
	case l <= LevelTrace:
		return zapcore.DebugLevel // zap has no trace level; trace collapses to debug
	case l <= LevelDebug:
		return zapcore.DebugLevel
	case l <= LevelInfo:
		return zapcore.InfoLevel
	case l <= LevelWarn:
		return zapcore.WarnLevel
	case l <= LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.FatalLevel + 1 // above Fatal: effectively disables logging
	}
}

// NewLogger creates a new logger with the given options. The default writes
// to stdout at info level, in console encoding.
func NewLogger(options ...Option) *Logger {
	cfg := loggerConfig{
		level:  LevelInfo,
		writer: zapcore.AddSync(os.Stdout),
		fields: make(map[string]interface{}),
	}
	for _, option := range options {
		option(&cfg)
	}

	atom := zap.NewAtomicLevelAt(zapLevel(cfg.level))

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderCfg), cfg.writer, atom)

	return &Logger{
		atom:   atom,
		base:   zap.New(core),
		fields: cfg.fields,
	}
}

func (l *Logger) sugar() *zap.SugaredLogger {
	l.mu.Lock()
	fields := make([]interface{}, 0, len(l.fields)*2)
	for k, v := range l.fields {
		fields = append(fields, k, v)
	}
	l.mu.Unlock()
	if len(fields) == 0 {
		return l.base.Sugar()
	}
	return l.base.Sugar().With(fields...)
}

// Trace logs a trace message. zap has no trace level, so this logs at debug.
func (l *Logger) Trace(ctx context.Context, format string, args ...interface{}) {
	l.sugar().Debugf(format, args...)
}

// Debug logs a debug message
func (l *Logger) Debug(ctx context.Context, format string, args ...interface{}) {
	l.sugar().Debugf(format, args...)
}

// Info logs an info message
func (l *Logger) Info(ctx context.Context, format string, args ...interface{}) {
	l.sugar().Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(ctx context.Context, format string, args ...interface{}) {
	l.sugar().Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(ctx context.Context, format string, args ...interface{}) {
	l.sugar().Errorf(format, args...)
}

// WithFields returns a new logger sharing the same underlying zap core, with
// the given fields merged into the existing ones.
func (l *Logger) WithFields(fields map[string]interface{}) LoggerInterface {
	l.mu.Lock()
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	l.mu.Unlock()
	for k, v := range fields {
		merged[k] = v
	}
	return &Logger{
		atom:   l.atom,
		base:   l.base,
		fields: merged,
	}
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	switch l.atom.Level() {
	case zapcore.DebugLevel:
		return LevelDebug
	case zapcore.InfoLevel:
		return LevelInfo
	case zapcore.WarnLevel:
		return LevelWarn
	case zapcore.ErrorLevel:
		return LevelError
	default:
		return LevelNone
	}
}

// SetLevel sets the log level. Since the atomic level is shared across
// copies returned by WithFields, this affects every derived logger too.
func (l *Logger) SetLevel(level LogLevel) {
	l.atom.SetLevel(zapLevel(level))
}

// Hexdump logs a hexdump of the given data at trace (debug) level.
// Format: offset   00 01 02 03 04 05 06 07 | 08 09 0a 0b 0c 0d 0e 0f
func (l *Logger) Hexdump(ctx context.Context, data []byte) {
	if !l.atom.Enabled(zapcore.DebugLevel) {
		return
	}

	var dump string
	dump += "offset   00 01 02 03 04 05 06 07 | 08 09 0a 0b 0c 0d 0e 0f\n"
	for i := 0; i < len(data); i += 16 {
		dump += fmt.Sprintf("%08x", i)
		for j := 0; j < 16; j++ {
			if j == 8 {
				dump += " |"
			}
			dump += " "
			if i+j < len(data) {
				dump += fmt.Sprintf("%02x", data[i+j])
			} else {
				dump += "  "
			}
		}
		dump += "\n"
	}

	l.sugar().Debug("HEXDUMP\n" + dump)
}

// Sync flushes any buffered log entries. Callers should invoke this during
// shutdown; zap's stdout/stderr core usually returns a harmless error on
// Sync that is safe to ignore.
func (l *Logger) Sync() error {
	return l.base.Sync()
}
