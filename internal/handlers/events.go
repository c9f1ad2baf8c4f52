package handlers

import (
	"net/http"
	"time"

	"github.com/nodewatch-systems/nodewatch/internal/httputil"
	"github.com/nodewatch-systems/nodewatch/internal/repository"
)

// ListEvents returns a page of canonical events, newest first.
// Query parameters: type (stored event_type), node, limit, offset.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	filter := repository.EventFilter{
		EventType: r.URL.Query().Get("type"),
		NodeID:    r.URL.Query().Get("node"),
		Limit:     queryInt(r, "limit", 50),
		Offset:    queryInt(r, "offset", 0),
	}

	events, total, err := h.repo.ListEvents(r.Context(), filter)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list events failed", "error", err.Error())
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// RecentEvents returns the newest events for the dashboard feed.
func (h *Handler) RecentEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.repo.RecentEvents(r.Context(), queryInt(r, "limit", 10))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "recent events failed", "error", err.Error())
		httputil.WriteError(w, http.StatusInternalServerError, "failed to fetch recent events")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

// StatsByCategory returns totals folded into the canonical taxonomy.
func (h *Handler) StatsByCategory(w http.ResponseWriter, r *http.Request) {
	counts, err := h.stats.CountsByCategory(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "stats by category failed", "error", err.Error())
		httputil.WriteError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"counts": counts})
}

// StatsByDay returns daily totals over the trailing window (default 7d).
func (h *Handler) StatsByDay(w http.ResponseWriter, r *http.Request) {
	counts, err := h.stats.CountsByDay(r.Context(), queryInt(r, "days", 7))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "stats by day failed", "error", err.Error())
		httputil.WriteError(w, http.StatusInternalServerError, "failed to compute stats")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"days": counts})
}

// Timeline returns hourly per-category buckets (default 24h window).
func (h *Handler) Timeline(w http.ResponseWriter, r *http.Request) {
	buckets, err := h.stats.Timeline(r.Context(), queryDuration(r, "window", 24*time.Hour))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "timeline failed", "error", err.Error())
		httputil.WriteError(w, http.StatusInternalServerError, "failed to compute timeline")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"timeline": buckets})
}
