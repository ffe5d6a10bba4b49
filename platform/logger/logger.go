// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"log/slog"
	"os"
	"strings"
)

// Logger wraps slog.Logger for structured logging.
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment. Development gets a human
// readable text handler at debug level, everything else JSON at info.
func New(env string) *Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	var handler slog.Handler
	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// WithCaller returns a logger annotated with the caller's KAM identity and role.
func (l *Logger) WithCaller(kam, role string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("kam", kam), slog.String("role", role)),
	}
}

// HTTPRequest logs an HTTP request with timing.
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// DatabaseError logs a database failure.
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// HealSkip logs a record the auto-heal pass could not correct. The pass
// continues; a corrupt record must never abort the sweep.
func (l *Logger) HealSkip(rid string, err error) {
	l.Warn("heal_skip",
		slog.String("rid", rid),
		slog.String("error", err.Error()),
	)
}

// FollowUpTransition logs a follow-up state change on a record.
func (l *Logger) FollowUpTransition(rid, status string, callNumber int) {
	l.Info("follow_up_transition",
		slog.String("rid", rid),
		slog.String("status", status),
		slog.Int("call_number", callNumber),
	)
}

// RateLimitExceeded logs a rejected request.
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}
