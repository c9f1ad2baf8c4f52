package handlers_test

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodewatch-systems/nodewatch/internal/event"
	"github.com/nodewatch-systems/nodewatch/internal/handlers"
	"github.com/nodewatch-systems/nodewatch/internal/ingest"
	"github.com/nodewatch-systems/nodewatch/internal/normalizer"
	"github.com/nodewatch-systems/nodewatch/internal/repository"
	"github.com/nodewatch-systems/nodewatch/internal/server"
	"github.com/nodewatch-systems/nodewatch/internal/stats"
)

// mockRepo implements repository.Store in memory.
type mockRepo struct {
	uploads      map[int64]*event.Upload
	nextUploadID int64
	events       []event.Canonical
	nodes        map[string]event.Node

	pingErr   error
	createErr error
	commitErr error
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		uploads: make(map[int64]*event.Upload),
		nodes:   make(map[string]event.Node),
	}
}

func (m *mockRepo) CreateUpload(ctx context.Context, filename string, metadata map[string]any) (*event.Upload, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.nextUploadID++
	up := &event.Upload{
		ID: m.nextUploadID, Filename: filename, UploadTime: time.Now(),
		Status: event.UploadProcessing, Metadata: metadata,
	}
	m.uploads[up.ID] = up
	return up, nil
}

func (m *mockRepo) FailUpload(ctx context.Context, id int64, errMsg string) error {
	up, ok := m.uploads[id]
	if !ok {
		return repository.ErrNotFound
	}
	if up.Status != event.UploadProcessing {
		return repository.ErrUploadTerminal
	}
	up.Status = event.UploadFailed
	up.Error = errMsg
	return nil
}

func (m *mockRepo) CommitBatch(ctx context.Context, uploadID int64, nodes []event.Node, events []event.Canonical) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	up, ok := m.uploads[uploadID]
	if !ok || up.Status != event.UploadProcessing {
		return repository.ErrUploadTerminal
	}
	for _, n := range nodes {
		if existing, ok := m.nodes[n.ID]; ok {
			existing.Status = n.Status
			existing.LastSeen = n.LastSeen
			m.nodes[n.ID] = existing
			continue
		}
		m.nodes[n.ID] = n
	}
	m.events = append(m.events, events...)
	up.Status = event.UploadCompleted
	up.RecordsProcessed = len(events)
	return nil
}

func (m *mockRepo) GetUpload(ctx context.Context, id int64) (*event.Upload, error) {
	up, ok := m.uploads[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return up, nil
}

func (m *mockRepo) ListUploads(ctx context.Context, limit int) ([]event.Upload, error) {
	var out []event.Upload
	for _, up := range m.uploads {
		out = append(out, *up)
	}
	return out, nil
}

func (m *mockRepo) ListEvents(ctx context.Context, f repository.EventFilter) ([]event.Canonical, int64, error) {
	var out []event.Canonical
	for _, ev := range m.events {
		if f.EventType != "" && ev.EventType != f.EventType {
			continue
		}
		if f.NodeID != "" && ev.NodeID != f.NodeID {
			continue
		}
		out = append(out, ev)
	}
	total := int64(len(out))
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, total, nil
}

func (m *mockRepo) RecentEvents(ctx context.Context, limit int) ([]event.Canonical, error) {
	evs, _, err := m.ListEvents(ctx, repository.EventFilter{Limit: limit})
	return evs, err
}

func (m *mockRepo) CountEventsByType(ctx context.Context) ([]repository.TypeCount, error) {
	counts := make(map[string]int64)
	for _, ev := range m.events {
		counts[ev.EventType]++
	}
	var out []repository.TypeCount
	for et, c := range counts {
		out = append(out, repository.TypeCount{EventType: et, Count: c})
	}
	return out, nil
}

func (m *mockRepo) CountEventsByDay(ctx context.Context, days int) ([]repository.DayCount, error) {
	return nil, nil
}

func (m *mockRepo) EventTimeline(ctx context.Context, since time.Time) ([]repository.TimelineRow, error) {
	return nil, nil
}

func (m *mockRepo) ListNodes(ctx context.Context) ([]event.Node, error) {
	var out []event.Node
	for _, n := range m.nodes {
		out = append(out, n)
	}
	return out, nil
}

func (m *mockRepo) GetNode(ctx context.Context, id string) (*event.Node, error) {
	n, ok := m.nodes[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &n, nil
}

func (m *mockRepo) Ping(ctx context.Context) error { return m.pingErr }
func (m *mockRepo) Close()                         {}

func newTestServer(t *testing.T, repo *mockRepo, mode normalizer.Mode) http.Handler {
	t.Helper()
	svc := ingest.NewService(repo, normalizer.New(mode), nil, nil, nil)
	h := handlers.New(svc, repo, stats.NewService(repo), nil, 10<<20, nil)
	return server.NewRouter(h)
}

func multipartBody(t *testing.T, filename, contentType string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(map[string][]string)
	hdr["Content-Disposition"] = []string{`form-data; name="file"; filename="` + filename + `"`}
	if contentType != "" {
		hdr["Content-Type"] = []string{contentType}
	}
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(payload)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func gzipLines(t *testing.T, lines ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	for _, l := range lines {
		_, err := gz.Write([]byte(l + "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func doJSON(t *testing.T, h http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var body map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func TestUpload_GzipNDJSON(t *testing.T) {
	repo := newMockRepo()
	srv := newTestServer(t, repo, normalizer.ModeLenient)

	payload := gzipLines(t,
		`{"event":"file_access","pid":1,"node_id":"edge-1"}`,
		`{not json`,
		`{"event":"ransomware","pid":2,"node_id":"edge-1"}`,
		`{"event":"setuid","pid":3,"node_id":"edge-2"}`,
	)
	body, ct := multipartBody(t, "dump.ndjson.gz", "application/gzip", payload)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", body)
	req.Header.Set("Content-Type", ct)
	rec, resp := doJSON(t, srv, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Upload successful", resp["message"])
	assert.Equal(t, float64(3), resp["recordsProcessed"])
	assert.Equal(t, float64(1), resp["uploadId"])

	up := repo.uploads[1]
	require.NotNil(t, up)
	assert.Equal(t, event.UploadCompleted, up.Status)
	assert.Equal(t, 3, up.RecordsProcessed)
}

func TestUpload_SniffsGzipWithoutContentType(t *testing.T) {
	repo := newMockRepo()
	srv := newTestServer(t, repo, normalizer.ModeLenient)

	payload := gzipLines(t, `{"event":"file_access","pid":1}`)
	body, ct := multipartBody(t, "dump.bin", "", payload)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", body)
	req.Header.Set("Content-Type", ct)
	rec, _ := doJSON(t, srv, req)

	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestUpload_WholeDocumentJSON(t *testing.T) {
	repo := newMockRepo()
	srv := newTestServer(t, repo, normalizer.ModeLenient)

	doc := `{"events":[{"event":"useradd","pid":5,"node_id":"edge-3"},{"event":"insmod_event","pid":6}]}`
	body, ct := multipartBody(t, "batch.json", "application/json", []byte(doc))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", body)
	req.Header.Set("Content-Type", ct)
	rec, resp := doJSON(t, srv, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(2), resp["recordsProcessed"])
}

func TestUpload_Errors(t *testing.T) {
	t.Run("empty events array is a 400 and a failed upload", func(t *testing.T) {
		repo := newMockRepo()
		srv := newTestServer(t, repo, normalizer.ModeLenient)

		body, ct := multipartBody(t, "empty.json", "application/json", []byte(`{"events":[]}`))
		req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", body)
		req.Header.Set("Content-Type", ct)
		rec, resp := doJSON(t, srv, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, resp["error"], "no valid events")

		up := repo.uploads[1]
		require.NotNil(t, up)
		assert.Equal(t, event.UploadFailed, up.Status)
		assert.NotEmpty(t, up.Error)
	})

	t.Run("missing events array is a 400", func(t *testing.T) {
		repo := newMockRepo()
		srv := newTestServer(t, repo, normalizer.ModeLenient)

		body, ct := multipartBody(t, "bad.json", "application/json", []byte(`{"records":[]}`))
		req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", body)
		req.Header.Set("Content-Type", ct)
		rec, _ := doJSON(t, srv, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing file field is a 400", func(t *testing.T) {
		repo := newMockRepo()
		srv := newTestServer(t, repo, normalizer.ModeLenient)

		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("note", "hello"))
		require.NoError(t, mw.Close())

		req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", &buf)
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rec, resp := doJSON(t, srv, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "no file uploaded", resp["error"])
	})

	t.Run("commit failure is a 500 with the captured message", func(t *testing.T) {
		repo := newMockRepo()
		repo.commitErr = errors.New("constraint violation")
		srv := newTestServer(t, repo, normalizer.ModeLenient)

		body, ct := multipartBody(t, "x.json", "application/json", []byte(`{"events":[{"event":"a"}]}`))
		req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", body)
		req.Header.Set("Content-Type", ct)
		rec, resp := doJSON(t, srv, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, resp["error"], "constraint violation")
		assert.Equal(t, event.UploadFailed, repo.uploads[1].Status)
	})

	t.Run("upload record creation failure is a 500 without status update", func(t *testing.T) {
		repo := newMockRepo()
		repo.createErr = errors.New("db down")
		srv := newTestServer(t, repo, normalizer.ModeLenient)

		body, ct := multipartBody(t, "x.json", "application/json", []byte(`{"events":[{"event":"a"}]}`))
		req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", body)
		req.Header.Set("Content-Type", ct)
		rec, _ := doJSON(t, srv, req)

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Empty(t, repo.uploads)
	})
}

func TestReadEndpoints(t *testing.T) {
	repo := newMockRepo()
	srv := newTestServer(t, repo, normalizer.ModeLenient)

	// Seed through the real pipeline.
	payload := gzipLines(t,
		`{"event":"file_access","pid":1,"node_id":"edge-1","node_name":"cam-lobby"}`,
		`{"event":"file_open","pid":2,"node_id":"edge-1"}`,
		`{"event":"ransomware","pid":3,"node_id":"edge-2"}`,
	)
	body, ct := multipartBody(t, "seed.gz", "application/gzip", payload)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/upload", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	t.Run("list events", func(t *testing.T) {
		rec, resp := doJSON(t, srv, httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(3), resp["total"])
	})

	t.Run("filter events by type", func(t *testing.T) {
		rec, resp := doJSON(t, srv, httptest.NewRequest(http.MethodGet, "/api/v1/events?type=ransomware", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(1), resp["total"])
	})

	t.Run("stats by category folds aliases", func(t *testing.T) {
		rec, resp := doJSON(t, srv, httptest.NewRequest(http.MethodGet, "/api/v1/stats/by-type", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		counts, ok := resp["counts"].([]any)
		require.True(t, ok)
		byCat := make(map[string]float64)
		for _, c := range counts {
			m := c.(map[string]any)
			byCat[m["category"].(string)] = m["count"].(float64)
		}
		assert.Equal(t, float64(2), byCat["file_access"], "file_access + file_open")
		assert.Equal(t, float64(1), byCat["ransomware"])
	})

	t.Run("nodes reflect the batch", func(t *testing.T) {
		rec, resp := doJSON(t, srv, httptest.NewRequest(http.MethodGet, "/api/v1/nodes", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		nodes := resp["nodes"].([]any)
		assert.Len(t, nodes, 2)
	})

	t.Run("get node by id", func(t *testing.T) {
		rec, resp := doJSON(t, srv, httptest.NewRequest(http.MethodGet, "/api/v1/nodes/edge-1", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "cam-lobby", resp["name"])
	})

	t.Run("unknown node is a 404", func(t *testing.T) {
		rec, _ := doJSON(t, srv, httptest.NewRequest(http.MethodGet, "/api/v1/nodes/edge-999", nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("uploads audit trail", func(t *testing.T) {
		rec, resp := doJSON(t, srv, httptest.NewRequest(http.MethodGet, "/api/v1/uploads", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		uploads := resp["uploads"].([]any)
		require.Len(t, uploads, 1)
		up := uploads[0].(map[string]any)
		assert.Equal(t, "completed", up["status"])
	})

	t.Run("get upload by id", func(t *testing.T) {
		rec, resp := doJSON(t, srv, httptest.NewRequest(http.MethodGet, "/api/v1/uploads/1", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, float64(3), resp["records_processed"])
	})

	t.Run("ingest stats without redis is a 501", func(t *testing.T) {
		rec, _ := doJSON(t, srv, httptest.NewRequest(http.MethodGet, "/api/v1/stats/ingest", nil))
		assert.Equal(t, http.StatusNotImplemented, rec.Code)
	})
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		repo := newMockRepo()
		srv := newTestServer(t, repo, normalizer.ModeLenient)
		rec, resp := doJSON(t, srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ok", resp["status"])
	})

	t.Run("database unreachable", func(t *testing.T) {
		repo := newMockRepo()
		repo.pingErr = errors.New("dial refused")
		srv := newTestServer(t, repo, normalizer.ModeLenient)
		rec, resp := doJSON(t, srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, "degraded", resp["status"])
	})
}

func TestRouter_RequestID(t *testing.T) {
	repo := newMockRepo()
	srv := newTestServer(t, repo, normalizer.ModeLenient)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouter_MethodGuard(t *testing.T) {
	repo := newMockRepo()
	srv := newTestServer(t, repo, normalizer.ModeLenient)

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/upload", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
