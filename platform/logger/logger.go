// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// TenantIDKey is the context key for tenant ID
	TenantIDKey contextKey = "tenant_id"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a logger with request_id and tenant_id extracted
// from the context when present.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("request_id", requestID))}
	}

	if tenantID, ok := ctx.Value(TenantIDKey).(string); ok && tenantID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("tenant_id", tenantID))}
	}

	return newLogger
}

// WithTenantID returns a logger with tenant ID attached.
func (l *Logger) WithTenantID(tenantID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("tenant_id", tenantID)),
	}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// RoutingDecision logs the outcome of a single assign() decision.
func (l *Logger) RoutingDecision(tenantID, leadID string, ruleID, assignedAgentID *string, usedFallback bool, reasonCodes []string) {
	attrs := []any{
		slog.String("tenant_id", tenantID),
		slog.String("lead_id", leadID),
		slog.Bool("used_fallback", usedFallback),
		slog.Any("reason_codes", reasonCodes),
	}
	if ruleID != nil {
		attrs = append(attrs, slog.String("rule_id", *ruleID))
	}
	if assignedAgentID != nil {
		attrs = append(attrs, slog.String("assigned_agent_id", *assignedAgentID))
	}
	l.Info("routing_decision", attrs...)
}

// SlaSweep logs the result of one SLA sweep batch.
func (l *Logger) SlaSweep(processed, breached, pondPlacements int) {
	l.Info("sla_sweep",
		slog.Int("processed", processed),
		slog.Int("breached", breached),
		slog.Int("pond_placements", pondPlacements),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}
