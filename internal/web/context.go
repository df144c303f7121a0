package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/objimport/internal/core"
)

// WithRequestMetadata adds the client IP and User-Agent to ctx for the
// import history.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithClientIP(ctx, clientIP(r))
	ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
	return ctx
}
