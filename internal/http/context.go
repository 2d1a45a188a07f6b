package http

import (
	"context"

	"quillcast/app/internal/account"
)

type contextKey string

const (
	requestIDContextKey contextKey = "quillcast/request-id"
	accountContextKey   contextKey = "quillcast/account"
)

// RequestIDFromContext extracts the request identifier from the context when available.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if value, ok := ctx.Value(requestIDContextKey).(string); ok {
		return value
	}
	return ""
}

// AccountFromContext extracts the authenticated account from the context.
func AccountFromContext(ctx context.Context) *account.Account {
	if ctx == nil {
		return nil
	}
	if value, ok := ctx.Value(accountContextKey).(*account.Account); ok {
		return value
	}
	return nil
}
