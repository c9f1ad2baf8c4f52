// Package handlers implements the HTTP API consumed by the dashboard UI.
package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nodewatch-systems/nodewatch/internal/httputil"
	"github.com/nodewatch-systems/nodewatch/internal/ingest"
	"github.com/nodewatch-systems/nodewatch/internal/ingeststats"
	"github.com/nodewatch-systems/nodewatch/internal/logging"
	"github.com/nodewatch-systems/nodewatch/internal/repository"
	"github.com/nodewatch-systems/nodewatch/internal/stats"
)

// Handler serves the dashboard API.
type Handler struct {
	ingest      *ingest.Service
	repo        repository.Store
	stats       *stats.Service
	ingestStats *ingeststats.Client
	maxUpload   int64
	logger      *logging.Logger
}

// New wires the API handler. ingestStats may be nil when Redis is not
// configured; the corresponding endpoint then reports unavailable.
func New(svc *ingest.Service, repo repository.Store, st *stats.Service, istats *ingeststats.Client, maxUpload int64, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		ingest:      svc,
		repo:        repo,
		stats:       st,
		ingestStats: istats,
		maxUpload:   maxUpload,
		logger:      logger,
	}
}

// Health reports liveness plus database connectivity.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.repo.Ping(r.Context()); err != nil {
		httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"error":  "database unreachable",
		})
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "nodewatch"})
}

// queryInt parses a positive integer query parameter with a default.
func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// queryPathInt parses an integer path segment, returning 0 on failure.
func queryPathInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.PathValue(key))
	if err != nil {
		return 0
	}
	return n
}

func queryDuration(r *http.Request, key string, def time.Duration) time.Duration {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
