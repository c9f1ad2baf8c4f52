package handlers

import (
	"bufio"
	"errors"
	"net/http"

	"github.com/nodewatch-systems/nodewatch/internal/decoder"
	"github.com/nodewatch-systems/nodewatch/internal/httputil"
	"github.com/nodewatch-systems/nodewatch/internal/ingest"
	"github.com/nodewatch-systems/nodewatch/internal/metrics"
)

// multipartOverhead leaves room for the multipart framing around the
// capped file payload.
const multipartOverhead = 64 * 1024

// Upload ingests one telemetry file posted as multipart form data under
// the field name "file". The UI caps file size client-side; the cap is
// enforced again here.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)

	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.WriteError(w, http.StatusRequestEntityTooLarge, "file exceeds upload size limit")
			return
		}
		httputil.WriteError(w, http.StatusBadRequest, "invalid multipart request")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	metrics.UploadBytesTotal.Add(float64(header.Size))

	// Content negotiation: declared part content type first, gzip magic
	// bytes second. File extensions are deliberately not trusted.
	buf := bufio.NewReader(file)
	prefix, _ := buf.Peek(2)
	enc := decoder.Sniff(header.Header.Get("Content-Type"), prefix)

	result, err := h.ingest.ProcessUpload(r.Context(), header.Filename, buf, enc)
	if err != nil {
		h.writeUploadError(w, r, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"message":          "Upload successful",
		"recordsProcessed": result.RecordsProcessed,
		"uploadId":         result.UploadID,
		"rejectedRecords":  result.Report.Rejected,
	})
}

// writeUploadError maps pipeline failures onto the API error contract:
// recoverable validation problems are 400s, everything else a 500. The
// body carries the captured message only, never internals beyond it.
func (h *Handler) writeUploadError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, decoder.ErrFormat), errors.Is(err, decoder.ErrEmptyBatch):
		httputil.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ingest.ErrUploadRecord):
		h.logger.ErrorContext(r.Context(), "upload record creation failed", "error", err.Error())
		httputil.WriteError(w, http.StatusInternalServerError, "failed to record upload")
	default:
		h.logger.ErrorContext(r.Context(), "upload processing failed", "error", err.Error())
		httputil.WriteError(w, http.StatusInternalServerError, err.Error())
	}
}
