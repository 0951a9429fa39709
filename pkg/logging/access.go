package logging

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// AccessLog represents an HTTP access log entry
type AccessLog struct {
	ClientIP     string
	Method       string
	Path         string
	Query        string
	StatusCode   int
	BytesWritten int64
	Duration     time.Duration
	UserAgent    string
	TraceID      string
}

// AccessLogger logs HTTP access
type AccessLogger struct {
	logger *Logger
}

// NewAccessLogger creates a new access logger
func NewAccessLogger(logger *Logger) *AccessLogger {
	return &AccessLogger{
		logger: logger.With(String("component", "access")),
	}
}

// Log logs an access entry
func (al *AccessLogger) Log(entry AccessLog) {
	fields := []Field{
		String("client_ip", entry.ClientIP),
		String("method", entry.Method),
		String("path", entry.Path),
		Int("status", entry.StatusCode),
		Int64("bytes", entry.BytesWritten),
		Duration("duration", entry.Duration),
		String("user_agent", entry.UserAgent),
	}

	if entry.Query != "" {
		fields = append(fields, String("query", entry.Query))
	}

	if entry.TraceID != "" {
		fields = append(fields, String("trace_id", entry.TraceID))
	}

	al.logger.Info("access", fields...)
}

// AccessLogMiddleware creates middleware for access logging
func AccessLogMiddleware(logger *Logger) func(http.Handler) http.Handler {
	accessLogger := NewAccessLogger(logger)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			lrw := &loggingResponseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
			}

			next.ServeHTTP(lrw, r)

			clientIP := r.RemoteAddr
			if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
				clientIP = forwarded
			}

			entry := AccessLog{
				ClientIP:     clientIP,
				Method:       r.Method,
				Path:         r.URL.Path,
				Query:        r.URL.RawQuery,
				StatusCode:   lrw.statusCode,
				BytesWritten: lrw.bytesWritten,
				Duration:     time.Since(start),
				UserAgent:    r.UserAgent(),
			}
			if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
				entry.TraceID = sc.TraceID().String()
			}

			accessLogger.Log(entry)
		})
	}
}

// loggingResponseWriter wraps http.ResponseWriter to capture status and bytes
type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	n, err := lrw.ResponseWriter.Write(b)
	lrw.bytesWritten += int64(n)
	return n, err
}

// Flush implements http.Flusher if the underlying ResponseWriter does
func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
