// Package requestcontext provides HTTP-independent accessors for request-scoped
// values. Middleware sets them; services and handlers read them.
//
//	requestID := requestcontext.RequestID(ctx)
//	key := requestcontext.AuthUserKey(ctx)
//	now := requestcontext.Now(ctx)
//
// Tests inject values directly:
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
package requestcontext

import (
	"context"
	"time"
)

type (
	requestIDKey   struct{}
	requestTimeKey struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	authUserKey    struct{}
	telegramIDKey  struct{}
)

// Exported context keys for tests that need context.WithValue.
var (
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
	ContextKeyClientIP    = clientIPKey{}
	ContextKeyUserAgent   = userAgentKey{}
	ContextKeyAuthUserKey = authUserKey{}
	ContextKeyTelegramID  = telegramIDKey{}
)

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

// Now retrieves the request-scoped time. Falls back to time.Now() outside of
// HTTP requests (workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a fixed request time.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(ContextKeyUserAgent).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent into a context.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyClientIP, clientIP)
	ctx = context.WithValue(ctx, ContextKeyUserAgent, userAgent)
	return ctx
}

// AuthUserKey returns the user key carried by a verified bearer token, or ""
// when the request was not authenticated.
func AuthUserKey(ctx context.Context) string {
	if key, ok := ctx.Value(ContextKeyAuthUserKey).(string); ok {
		return key
	}
	return ""
}

// TelegramID returns the Telegram account id carried by a verified bearer token.
func TelegramID(ctx context.Context) string {
	if id, ok := ctx.Value(ContextKeyTelegramID).(string); ok {
		return id
	}
	return ""
}

// WithAuth injects the claims of a verified bearer token.
func WithAuth(ctx context.Context, userKey, telegramID string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyAuthUserKey, userKey)
	ctx = context.WithValue(ctx, ContextKeyTelegramID, telegramID)
	return ctx
}
