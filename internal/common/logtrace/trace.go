package logtrace

import (
	"context"
)

// requestIdContextKey is the typed context key holding request IDs. The key
// lives here so the request-logging middleware that stores the id and the
// response plumbing that renders it agree on it.
type requestIdContextKey string

const requestIdKey = requestIdContextKey("requestId")

// WithRequestId stores the request ID in the context.
func WithRequestId(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIdKey, id)
}

// RequestIdFromContext extracts the request ID from the context. Returns an
// empty string if the context is nil or carries no request ID.
func RequestIdFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	r, ok := ctx.Value(requestIdKey).(string)
	if !ok {
		return ""
	}
	return r
}
