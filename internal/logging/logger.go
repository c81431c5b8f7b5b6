package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Level represents log levels
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the log level
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel converts a config value such as "debug" or "WARN" to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Logger provides structured logging on top of zerolog with the printf-style
// call sites used across the code base.
type Logger struct {
	zl     zerolog.Logger
	level  Level
	output io.Writer
	prefix string
}

// NewLogger creates a new logger instance
func NewLogger(level Level, output io.Writer, prefix string) *Logger {
	console := zerolog.ConsoleWriter{
		Out:        output,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	ctx := zerolog.New(console).Level(level.zerolog()).With().Timestamp()
	if prefix != "" {
		ctx = ctx.Str("component", prefix)
	}
	return &Logger{
		zl:     ctx.Logger(),
		level:  level,
		output: output,
		prefix: prefix,
	}
}

// NewDefaultLogger creates a logger with the process-wide level and output
func NewDefaultLogger(prefix string) *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return NewLogger(globalLevel, globalOutput, prefix)
}

// Debug logs a debug message
func (l *Logger) Debug(format string, args ...any) {
	l.zl.Debug().Msgf(format, args...)
}

// Info logs an info message
func (l *Logger) Info(format string, args ...any) {
	l.zl.Info().Msgf(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(format string, args ...any) {
	l.zl.Warn().Msgf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(format string, args ...any) {
	l.zl.Error().Msgf(format, args...)
}

// With returns a logger that attaches a structured field to every line.
func (l *Logger) With(key string, value any) *Logger {
	return &Logger{
		zl:     l.zl.With().Interface(key, value).Logger(),
		level:  l.level,
		output: l.output,
		prefix: l.prefix,
	}
}

// WithPrefix creates a new logger with an additional prefix
func (l *Logger) WithPrefix(prefix string) *Logger {
	newPrefix := l.prefix
	if newPrefix != "" {
		newPrefix += "."
	}
	newPrefix += prefix
	return NewLogger(l.level, l.output, newPrefix)
}

// switchWriter lets SetOutput redirect loggers that were already created
type switchWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

func (s *switchWriter) set(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}

var (
	mu           sync.RWMutex
	globalLevel  = LevelInfo
	globalOutput = &switchWriter{w: os.Stderr}

	defaultLogger = NewLogger(LevelInfo, globalOutput, "")
)

// SetLevel sets the global log level
func SetLevel(level Level) {
	mu.Lock()
	defer mu.Unlock()
	globalLevel = level
	zerolog.SetGlobalLevel(level.zerolog())
	defaultLogger = NewLogger(globalLevel, globalOutput, "")
}

// SetOutput redirects every logger created by NewDefaultLogger, including
// the ones that already exist.
func SetOutput(output io.Writer) {
	globalOutput.set(output)
}

func current() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// Debug logs a debug message using the global logger
func Debug(format string, args ...any) {
	current().Debug(format, args...)
}

// Info logs an info message using the global logger
func Info(format string, args ...any) {
	current().Info(format, args...)
}

// Warn logs a warning message using the global logger
func Warn(format string, args ...any) {
	current().Warn(format, args...)
}

// Error logs an error message using the global logger
func Error(format string, args ...any) {
	current().Error(format, args...)
}

// Fatal logs an error message and exits
func Fatal(format string, args ...any) {
	current().Error(format, args...)
	os.Exit(1)
}
