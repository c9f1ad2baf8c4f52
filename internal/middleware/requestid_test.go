package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID_GeneratesWhenMissing(t *testing.T) {
	var captured string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.NotEmpty(t, captured)
	_, err := uuid.Parse(captured)
	assert.NoError(t, err, "generated id should be a UUID")
	assert.Equal(t, captured, rec.Header().Get("X-Request-ID"))
}

func TestRequestID_PropagatesHeader(t *testing.T) {
	var captured string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "upstream-id-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "upstream-id-42", captured)
	assert.Equal(t, "upstream-id-42", rec.Header().Get("X-Request-ID"))
}

func TestRequestID_ReplacesOversizedHeader(t *testing.T) {
	var captured string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, strings.Repeat("x", 300))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	_, err := uuid.Parse(captured)
	assert.NoError(t, err, "oversized upstream id should be replaced with a UUID")
	assert.Equal(t, captured, rec.Header().Get(HeaderRequestID))
}

func TestGetRequestID_EmptyContext(t *testing.T) {
	assert.Equal(t, "", GetRequestID(httptest.NewRequest(http.MethodGet, "/", nil).Context()))
}

func TestWithRequestID(t *testing.T) {
	ctx := WithRequestID(httptest.NewRequest(http.MethodGet, "/", nil).Context(), "job-7")
	assert.Equal(t, "job-7", GetRequestID(ctx))
}
