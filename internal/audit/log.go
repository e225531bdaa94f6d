// Package audit writes append-only structured events for money-touching
// actions: nonce issuance, settlements, subscription changes.
package audit

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"fanlock.app/internal/auth"
	"fanlock.app/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// requestIDFromContext extracts the audit request id from context if present.
func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with request and wallet context.
func LogEvent(ctx context.Context, event string, fields map[string]string) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	zfields := []zap.Field{
		zap.String("type", "audit"),
		zap.String("event", event),
	}
	if rid := requestIDFromContext(ctx); rid != "" {
		zfields = append(zfields, zap.String("request_id", rid))
	}
	if wallet, ok := auth.WalletFromContext(ctx); ok {
		zfields = append(zfields, zap.String("wallet", wallet))
	}
	for k, v := range fields {
		zfields = append(zfields, zap.String(k, v))
	}
	obs.Logger().Info("audit", zfields...)
	return nil
}
