// Package logging holds the process-wide zap logger and the HTTP middleware
// that tags every connector request with an ID.
package logging

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

type ctxKey int

const (
	loggerKey ctxKey = iota
	requestIDKey
)

var (
	logger = zap.NewNop()
	level  = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

// Config selects the level, encoding and sink of the global logger.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	OutputPath string // stdout, stderr, or file path
}

// Init builds the global logger from cfg. An unparsable level falls back
// to info.
func Init(cfg Config) error {
	lvl, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	level.SetLevel(lvl)

	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = level
	if cfg.OutputPath != "" {
		zc.OutputPaths = []string{cfg.OutputPath}
	}

	l, err := zc.Build(zap.AddCallerSkip(1), zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return err
	}
	logger = l
	return nil
}

// InitNop discards all output.
func InitNop() {
	logger = zap.NewNop()
}

// Sync flushes buffered entries.
func Sync() error {
	return logger.Sync()
}

// LevelHandler serves the current level as JSON on GET and changes it on
// PUT with a body like {"level":"debug"}.
func LevelHandler() http.Handler {
	return level
}

// WithContext returns the request-scoped logger stored by Middleware, or the
// global one.
func WithContext(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(loggerKey).(*zap.Logger); ok {
		return l
	}
	return logger
}

// RequestID returns the ID Middleware attached to ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func Info(msg string, fields ...zap.Field)  { logger.Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { logger.Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { logger.Error(msg, fields...) }
func Fatal(msg string, fields ...zap.Field) { logger.Fatal(msg, fields...) }

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += int64(n)
	return n, err
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// Middleware reuses the client's X-Request-ID or mints one, echoes it back,
// and logs one line per completed request with the elFinder command.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)

		l := WithContext(r.Context()).With(zap.String("request_id", id))
		ctx := context.WithValue(r.Context(), loggerKey, l)
		ctx = context.WithValue(ctx, requestIDKey, id)

		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r.WithContext(ctx))

		l.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("cmd", r.URL.Query().Get("cmd")),
			zap.Int("status", sr.status),
			zap.Int64("bytes", sr.bytes),
			zap.Duration("duration", time.Since(start)),
		)
	})
}
