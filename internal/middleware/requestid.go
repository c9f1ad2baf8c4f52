// Package middleware holds the HTTP middleware chain for the nodewatch
// API: request-id propagation and access logging.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// HeaderRequestID is the header carrying the request id in both
// directions. The dashboard echoes it back when reporting upload errors.
const HeaderRequestID = "X-Request-ID"

// maxRequestIDLen caps ids accepted from upstream. Anything longer is
// treated as garbage and replaced, so a hostile client cannot inflate
// every log line of its request.
const maxRequestIDLen = 128

type contextKey string

const requestIDKey = contextKey("request-id")

// RequestID propagates the upstream request id or generates a UUID when
// the header is absent or oversized. The id is echoed on the response and
// stored in the request context for the logging layer.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" || len(requestID) > maxRequestIDLen {
			requestID = uuid.New().String()
		}

		w.Header().Set(HeaderRequestID, requestID)

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithRequestID returns a context carrying the given request id. For
// code that logs outside the HTTP chain.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID extracts the request ID from the context.
// Returns empty string if not found.
func GetRequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(requestIDKey).(string); ok {
		return reqID
	}
	return ""
}
