package testutil

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"cityrater/pkg/requestcontext"
)

// WithAuth attaches verified token claims to the request, as the auth
// middleware would for a valid bearer token.
func WithAuth(req *http.Request, userKey, telegramID string) *http.Request {
	return req.WithContext(requestcontext.WithAuth(req.Context(), userKey, telegramID))
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), key, value))
}

// DiscardLogger returns a logger that drops everything.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
