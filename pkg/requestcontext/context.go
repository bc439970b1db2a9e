// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets these values; services read them. Keeping the package free
// of net/http lets services and workers consume request identity without
// pulling in transport code.
//
// Usage in services:
//
//	ownerID := requestcontext.OwnerID(ctx)
//	requestID := requestcontext.RequestID(ctx)
//
// Usage in tests:
//
//	ctx = requestcontext.WithOwnerID(ctx, "owner-a")
package requestcontext

import "context"

type (
	ownerIDKey   struct{}
	requestIDKey struct{}
	selfCallKey  struct{}
)

// Exported context keys for tests that need raw context.WithValue.
var (
	ContextKeyOwnerID   = ownerIDKey{}
	ContextKeyRequestID = requestIDKey{}
)

// OwnerID retrieves the authenticated owner identity from the context.
// Returns the empty string if not set.
func OwnerID(ctx context.Context) string {
	if ownerID, ok := ctx.Value(ContextKeyOwnerID).(string); ok {
		return ownerID
	}
	return ""
}

// WithOwnerID injects an owner identity into the context.
func WithOwnerID(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, ContextKeyOwnerID, ownerID)
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// WithSelfCall marks the context as originating from the engine's own
// executor dispatch. Governance mutations refuse to run without this marker,
// so they can only happen as a side effect of quorum-triggered execution.
// The key type is unexported: callers outside this package cannot forge it.
func WithSelfCall(ctx context.Context) context.Context {
	return context.WithValue(ctx, selfCallKey{}, true)
}

// IsSelfCall reports whether the context carries the executor dispatch marker.
func IsSelfCall(ctx context.Context) bool {
	ok, _ := ctx.Value(selfCallKey{}).(bool)
	return ok
}
