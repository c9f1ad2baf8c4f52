package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nodewatch-systems/nodewatch/internal/handlers"
	"github.com/nodewatch-systems/nodewatch/internal/middleware"
)

// NewRouter wires HTTP routes for the nodewatch service.
func NewRouter(h *handlers.Handler) http.Handler {
	mux := http.NewServeMux()

	// Ingestion
	mux.HandleFunc("POST /api/v1/upload", h.Upload)

	// Events and aggregate views
	mux.HandleFunc("GET /api/v1/events", h.ListEvents)
	mux.HandleFunc("GET /api/v1/events/recent", h.RecentEvents)
	mux.HandleFunc("GET /api/v1/stats/by-type", h.StatsByCategory)
	mux.HandleFunc("GET /api/v1/stats/by-day", h.StatsByDay)
	mux.HandleFunc("GET /api/v1/stats/timeline", h.Timeline)
	mux.HandleFunc("GET /api/v1/stats/ingest", h.IngestStats)

	// Nodes and audit trail
	mux.HandleFunc("GET /api/v1/nodes", h.ListNodes)
	mux.HandleFunc("GET /api/v1/nodes/{id}", h.GetNode)
	mux.HandleFunc("GET /api/v1/uploads", h.ListUploads)
	mux.HandleFunc("GET /api/v1/uploads/{id}", h.GetUpload)

	// Operational endpoints
	mux.HandleFunc("GET /healthz", h.Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	return middleware.RequestID(middleware.AccessLog(mux))
}
