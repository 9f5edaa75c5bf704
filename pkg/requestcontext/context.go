// Package requestcontext provides context accessors for request-scoped values
// that services read but never own.
//
// Usage in services (read values):
//
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithRequestID(ctx, "req-1")
package requestcontext

import (
	"context"
	"time"
)

type (
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// RequestID returns the correlation ID for the current request, or "".
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}

// WithRequestID stores a correlation ID on the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// Now returns the pinned request time when one was set, otherwise the wall clock.
// Pinning the time makes a screening decision byte-for-byte reproducible.
func Now(ctx context.Context) time.Time {
	if t, ok := RequestTime(ctx); ok {
		return t
	}
	return time.Now().UTC()
}

// RequestTime returns the pinned request time, if any.
func RequestTime(ctx context.Context) (time.Time, bool) {
	t, ok := ctx.Value(requestTimeKey{}).(time.Time)
	if !ok || t.IsZero() {
		return time.Time{}, false
	}
	return t, true
}

// WithTime pins the request time.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}
