package ingest

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nodewatch-systems/nodewatch/internal/decoder"
	"github.com/nodewatch-systems/nodewatch/internal/event"
	"github.com/nodewatch-systems/nodewatch/internal/normalizer"
)

// mockStore records coordinator interactions in memory.
type mockStore struct {
	createErr error
	commitErr error
	failErr   error

	created       []string
	nextUploadID  int64
	failedID      int64
	failedMessage string
	failCalls     int

	committedUploadID int64
	committedNodes    []event.Node
	committedEvents   []event.Canonical
	commitCalls       int
}

func (m *mockStore) CreateUpload(ctx context.Context, filename string, metadata map[string]any) (*event.Upload, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.nextUploadID++
	m.created = append(m.created, filename)
	return &event.Upload{ID: m.nextUploadID, Filename: filename, Status: event.UploadProcessing}, nil
}

func (m *mockStore) FailUpload(ctx context.Context, id int64, errMsg string) error {
	m.failCalls++
	m.failedID = id
	m.failedMessage = errMsg
	return m.failErr
}

func (m *mockStore) CommitBatch(ctx context.Context, uploadID int64, nodes []event.Node, events []event.Canonical) error {
	m.commitCalls++
	if m.commitErr != nil {
		return m.commitErr
	}
	m.committedUploadID = uploadID
	m.committedNodes = nodes
	m.committedEvents = events
	return nil
}

func gzipNDJSON(t *testing.T, lines ...string) *bytes.Reader {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	for _, l := range lines {
		_, err := gz.Write([]byte(l + "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, gz.Close())
	return bytes.NewReader(buf.Bytes())
}

func newService(st *mockStore, mode normalizer.Mode) *Service {
	return NewService(st, normalizer.New(mode), nil, nil, nil)
}

func TestProcessUpload_GzipNDJSON(t *testing.T) {
	t.Run("three valid lines and one malformed yields three records", func(t *testing.T) {
		st := &mockStore{}
		svc := newService(st, normalizer.ModeLenient)

		r := gzipNDJSON(t,
			`{"event":"file_access","pid":1,"node_id":"edge-1"}`,
			`{not json`,
			`{"event":"ransomware","pid":2,"node_id":"edge-1"}`,
			`{"event":"setuid","pid":3,"node_id":"edge-2"}`,
		)

		res, err := svc.ProcessUpload(context.Background(), "dump.ndjson.gz", r, decoder.EncodingNDJSONGzip)
		require.NoError(t, err)

		assert.Equal(t, 3, res.RecordsProcessed)
		assert.Equal(t, st.committedUploadID, res.UploadID)
		assert.Len(t, st.committedEvents, 3)
		assert.Len(t, st.committedNodes, 2)
		assert.Zero(t, st.failCalls, "no failure path on a successful upload")
	})

	t.Run("raw data survives the pipeline verbatim", func(t *testing.T) {
		st := &mockStore{}
		svc := newService(st, normalizer.ModeLenient)

		r := gzipNDJSON(t, `{"event":"module_load","binary":"evil.ko","pid":9,"node_id":"edge-1"}`)
		_, err := svc.ProcessUpload(context.Background(), "one.gz", r, decoder.EncodingNDJSONGzip)
		require.NoError(t, err)

		require.Len(t, st.committedEvents, 1)
		raw := st.committedEvents[0].RawData
		assert.Equal(t, "evil.ko", raw["binary"])
		assert.Equal(t, "module_load", raw["event"])
	})
}

func TestProcessUpload_JSONDocument(t *testing.T) {
	st := &mockStore{}
	svc := newService(st, normalizer.ModeLenient)

	body := `{"events":[{"event":"useradd","pid":7,"node_id":"edge-4"},{"event":"file_access","pid":8}]}`
	res, err := svc.ProcessUpload(context.Background(), "batch.json", strings.NewReader(body), decoder.EncodingJSON)
	require.NoError(t, err)

	assert.Equal(t, 2, res.RecordsProcessed)
	assert.Len(t, st.committedEvents, 2)
	require.Len(t, st.committedNodes, 1)
	assert.Equal(t, "edge-4", st.committedNodes[0].ID)
}

func TestProcessUpload_FailurePaths(t *testing.T) {
	t.Run("empty events array fails the upload record", func(t *testing.T) {
		st := &mockStore{}
		svc := newService(st, normalizer.ModeLenient)

		_, err := svc.ProcessUpload(context.Background(), "empty.json",
			strings.NewReader(`{"events":[]}`), decoder.EncodingJSON)

		require.ErrorIs(t, err, decoder.ErrEmptyBatch)
		assert.Equal(t, 1, st.failCalls)
		assert.Equal(t, int64(1), st.failedID)
		assert.Contains(t, st.failedMessage, "no valid events")
		assert.Zero(t, st.commitCalls)
	})

	t.Run("bad format after recording marks the upload failed", func(t *testing.T) {
		st := &mockStore{}
		svc := newService(st, normalizer.ModeLenient)

		_, err := svc.ProcessUpload(context.Background(), "bad.json",
			strings.NewReader(`{"nope":true}`), decoder.EncodingJSON)

		require.ErrorIs(t, err, decoder.ErrFormat)
		assert.Equal(t, 1, st.failCalls)
	})

	t.Run("commit failure rolls into the failure path with the db message", func(t *testing.T) {
		st := &mockStore{commitErr: errors.New("connection reset by peer")}
		svc := newService(st, normalizer.ModeLenient)

		_, err := svc.ProcessUpload(context.Background(), "dump.gz",
			gzipNDJSON(t, `{"event":"x","pid":1}`), decoder.EncodingNDJSONGzip)

		require.Error(t, err)
		assert.Equal(t, 1, st.failCalls)
		assert.Equal(t, "connection reset by peer", st.failedMessage)
	})

	t.Run("upload record creation failure is surfaced directly", func(t *testing.T) {
		st := &mockStore{createErr: errors.New("file_uploads does not exist")}
		svc := newService(st, normalizer.ModeLenient)

		_, err := svc.ProcessUpload(context.Background(), "x.json",
			strings.NewReader(`{"events":[{"event":"a"}]}`), decoder.EncodingJSON)

		require.ErrorIs(t, err, ErrUploadRecord)
		assert.Zero(t, st.failCalls, "no status update without an upload record")
		assert.Zero(t, st.commitCalls)
	})

	t.Run("unknown encoding is rejected before any write", func(t *testing.T) {
		st := &mockStore{}
		svc := newService(st, normalizer.ModeLenient)

		_, err := svc.ProcessUpload(context.Background(), "x.bin",
			strings.NewReader("data"), decoder.Encoding("xml"))

		require.ErrorIs(t, err, decoder.ErrFormat)
		assert.Empty(t, st.created)
	})

	t.Run("strict mode rejecting every record fails as an empty batch", func(t *testing.T) {
		st := &mockStore{}
		svc := newService(st, normalizer.ModeStrict)

		_, err := svc.ProcessUpload(context.Background(), "sparse.gz",
			gzipNDJSON(t, `{"event":"a"}`, `{"event":"b"}`), decoder.EncodingNDJSONGzip)

		require.ErrorIs(t, err, decoder.ErrEmptyBatch)
		assert.Equal(t, 1, st.failCalls)
		assert.Zero(t, st.commitCalls)
	})
}

func TestProcessUpload_StrictDropsOnlyOffenders(t *testing.T) {
	st := &mockStore{}
	svc := newService(st, normalizer.ModeStrict)

	r := gzipNDJSON(t,
		`{"event":"file_access","pid":1,"process":"cat","process_path":"/bin/cat","node_id":"edge-1"}`,
		`{"event":"missing_everything"}`,
		`{"event":"setuid","pid":2,"process":"su","process_path":"/bin/su","node_id":"edge-1"}`,
	)

	res, err := svc.ProcessUpload(context.Background(), "mixed.gz", r, decoder.EncodingNDJSONGzip)
	require.NoError(t, err)

	assert.Equal(t, 2, res.RecordsProcessed)
	assert.Equal(t, 2, res.Report.Accepted)
	assert.Equal(t, 1, res.Report.Rejected)
	assert.Len(t, st.committedEvents, 2)
}
