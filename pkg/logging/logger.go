package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Level represents logging level
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a config string ("debug", "info", ...) to a Level
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "", "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	case "fatal":
		return FatalLevel, nil
	default:
		return InfoLevel, fmt.Errorf("unknown log level: %s", s)
	}
}

// Format selects the line encoding
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Field represents a log field
type Field struct {
	Key   string
	Value interface{}
}

// String creates a string field
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

// Int creates an int field
func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

// Int64 creates an int64 field
func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

// Float64 creates a float64 field
func Float64(key string, value float64) Field {
	return Field{Key: key, Value: value}
}

// Bool creates a bool field
func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Err creates an error field
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Duration creates a duration field
func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

// Any creates a field with any value
func Any(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

// core is shared between a logger and the children created by With
type core struct {
	mu         sync.Mutex
	level      Level
	output     io.Writer
	format     Format
	timeFormat string
	addCaller  bool
}

// Logger provides structured logging
type Logger struct {
	core   *core
	fields []Field
}

// Config configures the logger
type Config struct {
	Level      Level
	Output     io.Writer
	Format     Format
	TimeFormat string
	AddCaller  bool
}

// NewLogger creates a new logger
func NewLogger(config Config) *Logger {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.TimeFormat == "" {
		config.TimeFormat = time.RFC3339
	}
	if config.Format == "" {
		config.Format = FormatText
	}
	return &Logger{
		core: &core{
			level:      config.Level,
			output:     config.Output,
			format:     config.Format,
			timeFormat: config.TimeFormat,
			addCaller:  config.AddCaller,
		},
	}
}

// NewDefaultLogger creates a logger with default settings
func NewDefaultLogger() *Logger {
	return NewLogger(Config{
		Level:      InfoLevel,
		Output:     os.Stdout,
		Format:     FormatText,
		TimeFormat: time.RFC3339,
	})
}

// NewNopLogger discards everything
func NewNopLogger() *Logger {
	return NewLogger(Config{Level: FatalLevel + 1, Output: io.Discard})
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level Level) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.level = level
}

// With returns a child logger that adds fields to every entry
func (l *Logger) With(fields ...Field) *Logger {
	bound := make([]Field, 0, len(l.fields)+len(fields))
	bound = append(bound, l.fields...)
	bound = append(bound, fields...)
	return &Logger{core: l.core, fields: bound}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, fields ...Field) {
	l.log(DebugLevel, msg, fields...)
}

// Info logs an info message
func (l *Logger) Info(msg string, fields ...Field) {
	l.log(InfoLevel, msg, fields...)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, fields ...Field) {
	l.log(WarnLevel, msg, fields...)
}

// Error logs an error message
func (l *Logger) Error(msg string, fields ...Field) {
	l.log(ErrorLevel, msg, fields...)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(msg string, fields ...Field) {
	l.log(FatalLevel, msg, fields...)
	os.Exit(1)
}

// DebugContext logs a debug message with context
func (l *Logger) DebugContext(ctx context.Context, msg string, fields ...Field) {
	l.logContext(ctx, DebugLevel, msg, fields...)
}

// InfoContext logs an info message with context
func (l *Logger) InfoContext(ctx context.Context, msg string, fields ...Field) {
	l.logContext(ctx, InfoLevel, msg, fields...)
}

// WarnContext logs a warning message with context
func (l *Logger) WarnContext(ctx context.Context, msg string, fields ...Field) {
	l.logContext(ctx, WarnLevel, msg, fields...)
}

// ErrorContext logs an error message with context
func (l *Logger) ErrorContext(ctx context.Context, msg string, fields ...Field) {
	l.logContext(ctx, ErrorLevel, msg, fields...)
}

func (l *Logger) log(level Level, msg string, fields ...Field) {
	l.logContext(context.Background(), level, msg, fields...)
}

func (l *Logger) logContext(ctx context.Context, level Level, msg string, fields ...Field) {
	c := l.core
	c.mu.Lock()
	defer c.mu.Unlock()

	if level < c.level {
		return
	}

	all := make([]Field, 0, len(l.fields)+len(fields)+3)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		all = append(all,
			String("trace_id", span.SpanContext().TraceID().String()),
			String("span_id", span.SpanContext().SpanID().String()),
		)
	}

	if c.addCaller {
		// logContext <- log <- Info <- caller
		if _, file, line, ok := runtime.Caller(3); ok {
			parts := strings.Split(file, "/")
			all = append(all, String("caller", fmt.Sprintf("%s:%d", parts[len(parts)-1], line)))
		}
	}

	all = append(all, l.fields...)
	all = append(all, fields...)

	var line []byte
	if c.format == FormatJSON {
		line = encodeJSON(time.Now().Format(c.timeFormat), level, msg, all)
	} else {
		line = encodeText(time.Now().Format(c.timeFormat), level, msg, all)
	}

	c.output.Write(line)
}

func encodeText(ts string, level Level, msg string, fields []Field) []byte {
	var b strings.Builder

	b.WriteString(ts)
	b.WriteString(" ")
	b.WriteString(level.String())
	b.WriteString(" ")
	b.WriteString(msg)

	for _, field := range fields {
		b.WriteString(" ")
		b.WriteString(field.Key)
		b.WriteString("=")
		b.WriteString(fmt.Sprintf("%v", field.Value))
	}

	b.WriteString("\n")
	return []byte(b.String())
}

func encodeJSON(ts string, level Level, msg string, fields []Field) []byte {
	entry := make(map[string]interface{}, len(fields)+3)
	for _, field := range fields {
		entry[field.Key] = field.Value
	}
	entry["time"] = ts
	entry["level"] = level.String()
	entry["msg"] = msg

	data, err := json.Marshal(entry)
	if err != nil {
		return encodeText(ts, level, msg, append(fields, Err(err)))
	}
	return append(data, '\n')
}

// Global logger instance
var (
	globalMu     sync.RWMutex
	globalLogger = NewDefaultLogger()
)

// SetGlobalLogger sets the global logger
func SetGlobalLogger(logger *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// L returns the global logger
func L() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// Info logs an info message using the global logger
func Info(msg string, fields ...Field) {
	L().Info(msg, fields...)
}

// Error logs an error message using the global logger
func Error(msg string, fields ...Field) {
	L().Error(msg, fields...)
}

// Fatal logs a fatal message using the global logger and exits
func Fatal(msg string, fields ...Field) {
	L().Fatal(msg, fields...)
}
