package client

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/upload", r.URL.Path)

		require.NoError(t, r.ParseMultipartForm(1<<20))
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()

		assert.Equal(t, "batch.json", header.Filename)
		assert.Equal(t, "application/json", header.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message":"Upload successful","recordsProcessed":3,"uploadId":7,"rejectedRecords":0}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "batch.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"events":[{"event":"a"}]}`), 0o600))

	result, err := New(srv.URL).Upload(path)
	require.NoError(t, err)
	assert.Equal(t, 3, result.RecordsProcessed)
	assert.Equal(t, int64(7), result.UploadID)
}

func TestUpload_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid file format"}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`not json`), 0o600))

	_, err := New(srv.URL).Upload(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid file format")
	assert.Contains(t, err.Error(), "400")
}

func TestUpload_MissingFile(t *testing.T) {
	_, err := New("http://localhost:1").Upload("/nonexistent/file.json")
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/healthz", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","service":"nodewatch"}`))
	}))
	defer srv.Close()

	status, err := New(srv.URL).Health()
	require.NoError(t, err)
	assert.Equal(t, "ok", status["status"])
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "application/gzip", contentTypeFor("events.ndjson.gz"))
	assert.Equal(t, "application/json", contentTypeFor("events.json"))
	assert.Equal(t, "application/octet-stream", contentTypeFor("events.bin"))
}
