package handlers

import (
	"errors"
	"net/http"

	"github.com/nodewatch-systems/nodewatch/internal/httputil"
	"github.com/nodewatch-systems/nodewatch/internal/repository"
)

// ListNodes returns all known edge nodes, most recently seen first.
func (h *Handler) ListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.repo.ListNodes(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list nodes failed", "error", err.Error())
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list nodes")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"nodes": nodes})
}

// GetNode returns one node by id.
func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	node, err := h.repo.GetNode(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "node not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get node failed", "error", err.Error())
		httputil.WriteError(w, http.StatusInternalServerError, "failed to fetch node")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, node)
}

// ListUploads returns the ingestion audit trail, newest first.
func (h *Handler) ListUploads(w http.ResponseWriter, r *http.Request) {
	uploads, err := h.repo.ListUploads(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list uploads failed", "error", err.Error())
		httputil.WriteError(w, http.StatusInternalServerError, "failed to list uploads")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"uploads": uploads})
}

// GetUpload returns one upload audit record.
func (h *Handler) GetUpload(w http.ResponseWriter, r *http.Request) {
	id := int64(queryPathInt(r, "id"))
	if id <= 0 {
		httputil.WriteError(w, http.StatusBadRequest, "invalid upload id")
		return
	}
	upload, err := h.repo.GetUpload(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			httputil.WriteError(w, http.StatusNotFound, "upload not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get upload failed", "error", err.Error())
		httputil.WriteError(w, http.StatusInternalServerError, "failed to fetch upload")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, upload)
}

// IngestStats serves the Redis-backed ingestion snapshot.
func (h *Handler) IngestStats(w http.ResponseWriter, r *http.Request) {
	if h.ingestStats == nil {
		httputil.WriteError(w, http.StatusNotImplemented, "ingest stats backend not configured")
		return
	}
	stats, err := h.ingestStats.GetStats(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "ingest stats failed", "error", err.Error())
		httputil.WriteError(w, http.StatusInternalServerError, "failed to fetch ingest stats")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, stats)
}
