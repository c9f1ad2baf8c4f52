package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nodewatch-systems/nodewatch/internal/event"
)

// PostgresRepository implements Store on a pgx connection pool.
type PostgresRepository struct {
	pool      *pgxpool.Pool
	batchSize int
}

// defaultBatchSize bounds event rows per insert statement.
const defaultBatchSize = 100

// queryTimeout bounds single-statement operations.
const queryTimeout = 5 * time.Second

// commitTimeout bounds the whole batch-commit transaction.
const commitTimeout = 30 * time.Second

// NewPostgresRepository connects a pool and verifies it with a ping.
// batchSize <= 0 selects the default of 100 rows per insert.
func NewPostgresRepository(ctx context.Context, connString string, batchSize int) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &PostgresRepository{pool: pool, batchSize: batchSize}, nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() { r.pool.Close() }

// Ping verifies connectivity for health checks.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	return r.pool.Ping(ctx)
}

// CreateUpload inserts the audit record in the processing state. This
// happens before any parsing so a crash mid-parse is still observable.
func (r *PostgresRepository) CreateUpload(ctx context.Context, filename string, metadata map[string]any) (*event.Upload, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	meta, err := marshalJSONB(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal upload metadata: %w", err)
	}

	q := `INSERT INTO file_uploads (filename, status, upload_time, metadata)
	      VALUES ($1, $2, now(), $3)
	      RETURNING id, upload_time`

	up := event.Upload{
		Filename: filename,
		Status:   event.UploadProcessing,
		Metadata: metadata,
	}
	if err := r.pool.QueryRow(ctx, q, filename, event.UploadProcessing, meta).Scan(&up.ID, &up.UploadTime); err != nil {
		return nil, fmt.Errorf("create upload record: %w", err)
	}
	return &up, nil
}

// FailUpload marks an upload failed with the captured error message. It
// runs on the pool, not inside any batch transaction, so it succeeds even
// after that transaction rolled back.
func (r *PostgresRepository) FailUpload(ctx context.Context, id int64, errMsg string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	q := `UPDATE file_uploads SET status = $2, error = $3 WHERE id = $1 AND status = $4`
	tag, err := r.pool.Exec(ctx, q, id, event.UploadFailed, errMsg, event.UploadProcessing)
	if err != nil {
		return fmt.Errorf("fail upload %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUploadTerminal
	}
	return nil
}

// GetUpload fetches one audit record.
func (r *PostgresRepository) GetUpload(ctx context.Context, id int64) (*event.Upload, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	q := `SELECT id, filename, upload_time, status, error, records_processed, metadata
	      FROM file_uploads WHERE id = $1`
	up, err := scanUpload(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get upload %d: %w", id, err)
	}
	return up, nil
}

// ListUploads returns the most recent upload records.
func (r *PostgresRepository) ListUploads(ctx context.Context, limit int) ([]event.Upload, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	q := `SELECT id, filename, upload_time, status, error, records_processed, metadata
	      FROM file_uploads ORDER BY upload_time DESC, id DESC LIMIT $1`
	rows, err := r.pool.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list uploads: %w", err)
	}
	defer rows.Close()

	var out []event.Upload
	for rows.Next() {
		up, err := scanUpload(rows)
		if err != nil {
			return nil, fmt.Errorf("scan upload: %w", err)
		}
		out = append(out, *up)
	}
	return out, rows.Err()
}

// CommitBatch runs the single ingestion transaction: node upserts, batched
// event inserts, and the completed-status update. Concurrent upserts to
// the same node id are serialized by row-level locking; no application
// locking here.
func (r *PostgresRepository) CommitBatch(ctx context.Context, uploadID int64, nodes []event.Node, events []event.Canonical) error {
	ctx, cancel := context.WithTimeout(ctx, commitTimeout)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := upsertNodes(ctx, tx, nodes); err != nil {
		return err
	}

	for start := 0; start < len(events); start += r.batchSize {
		end := start + r.batchSize
		if end > len(events) {
			end = len(events)
		}
		if err := insertEvents(ctx, tx, events[start:end]); err != nil {
			return err
		}
	}

	q := `UPDATE file_uploads SET status = $2, records_processed = $3 WHERE id = $1 AND status = $4`
	tag, err := tx.Exec(ctx, q, uploadID, event.UploadCompleted, len(events), event.UploadProcessing)
	if err != nil {
		return fmt.Errorf("complete upload %d: %w", uploadID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUploadTerminal
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// upsertNodes merges descriptors into the nodes table. A conflicting id
// only refreshes status and last_seen; name, ip and metrics keep the
// values recorded when the node was first sighted.
func upsertNodes(ctx context.Context, tx pgx.Tx, nodes []event.Node) error {
	if len(nodes) == 0 {
		return nil
	}

	q := `INSERT INTO nodes (id, name, ip, status, last_seen, metrics)
	      VALUES ($1, $2, $3, $4, $5, $6)
	      ON CONFLICT (id) DO UPDATE
	      SET status = EXCLUDED.status, last_seen = EXCLUDED.last_seen`

	batch := &pgx.Batch{}
	for _, n := range nodes {
		m, err := marshalJSONB(n.Metrics)
		if err != nil {
			return fmt.Errorf("marshal node metrics: %w", err)
		}
		batch.Queue(q, n.ID, n.Name, n.IP, n.Status, n.LastSeen, m)
	}

	br := tx.SendBatch(ctx, batch)
	defer br.Close()
	for range nodes {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert node: %w", err)
		}
	}
	return br.Close()
}

func insertEvents(ctx context.Context, tx pgx.Tx, events []event.Canonical) error {
	q := `INSERT INTO events (event_type, timestamp, pid, process, process_path, node_id, raw_data)
	      VALUES ($1, $2, $3, $4, $5, $6, $7)`

	batch := &pgx.Batch{}
	for _, ev := range events {
		raw, err := marshalJSONB(ev.RawData)
		if err != nil {
			return fmt.Errorf("marshal raw_data: %w", err)
		}
		batch.Queue(q, ev.EventType, ev.Timestamp, ev.PID, ev.Process, ev.ProcessPath, ev.NodeID, raw)
	}

	br := tx.SendBatch(ctx, batch)
	defer br.Close()
	for range events {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}
	return br.Close()
}

// ListEvents returns a page of events plus the total count for the filter.
func (r *PostgresRepository) ListEvents(ctx context.Context, f EventFilter) ([]event.Canonical, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	where := " WHERE 1=1"
	args := []any{}
	if f.EventType != "" {
		args = append(args, f.EventType)
		where += fmt.Sprintf(" AND event_type = $%d", len(args))
	}
	if f.NodeID != "" {
		args = append(args, f.NodeID)
		where += fmt.Sprintf(" AND node_id = $%d", len(args))
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT count(*) FROM events"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	q := fmt.Sprintf(`SELECT id, event_type, timestamp, pid, process, process_path, node_id, raw_data
	      FROM events%s ORDER BY timestamp DESC, id DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	out, err := scanEvents(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// RecentEvents returns the newest events for the dashboard feed.
func (r *PostgresRepository) RecentEvents(ctx context.Context, limit int) ([]event.Canonical, error) {
	evs, _, err := r.ListEvents(ctx, EventFilter{Limit: limit})
	return evs, err
}

// CountEventsByType groups stored event_type strings; alias resolution to
// canonical categories happens in the stats service.
func (r *PostgresRepository) CountEventsByType(ctx context.Context) ([]TypeCount, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	q := `SELECT event_type, count(*) FROM events GROUP BY event_type ORDER BY count(*) DESC`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("count events by type: %w", err)
	}
	defer rows.Close()

	var out []TypeCount
	for rows.Next() {
		var tc TypeCount
		if err := rows.Scan(&tc.EventType, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan type count: %w", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// CountEventsByDay returns daily totals over the trailing window.
func (r *PostgresRepository) CountEventsByDay(ctx context.Context, days int) ([]DayCount, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if days <= 0 {
		days = 7
	}
	q := `SELECT date_trunc('day', timestamp) AS day, count(*)
	      FROM events
	      WHERE timestamp >= now() - make_interval(days => $1)
	      GROUP BY day ORDER BY day`
	rows, err := r.pool.Query(ctx, q, days)
	if err != nil {
		return nil, fmt.Errorf("count events by day: %w", err)
	}
	defer rows.Close()

	var out []DayCount
	for rows.Next() {
		var dc DayCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, fmt.Errorf("scan day count: %w", err)
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}

// EventTimeline returns hourly (bucket, event_type) counts since the
// given instant.
func (r *PostgresRepository) EventTimeline(ctx context.Context, since time.Time) ([]TimelineRow, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	q := `SELECT date_trunc('hour', timestamp) AS bucket, event_type, count(*)
	      FROM events
	      WHERE timestamp >= $1
	      GROUP BY bucket, event_type ORDER BY bucket`
	rows, err := r.pool.Query(ctx, q, since)
	if err != nil {
		return nil, fmt.Errorf("event timeline: %w", err)
	}
	defer rows.Close()

	var out []TimelineRow
	for rows.Next() {
		var tr TimelineRow
		if err := rows.Scan(&tr.Bucket, &tr.EventType, &tr.Count); err != nil {
			return nil, fmt.Errorf("scan timeline row: %w", err)
		}
		out = append(out, tr)
	}
	return out, rows.Err()
}

// ListNodes returns all known nodes ordered by recency.
func (r *PostgresRepository) ListNodes(ctx context.Context) ([]event.Node, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	q := `SELECT id, name, ip, status, last_seen, metrics FROM nodes ORDER BY last_seen DESC`
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var out []event.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

// GetNode fetches one node by id.
func (r *PostgresRepository) GetNode(ctx context.Context, id string) (*event.Node, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	q := `SELECT id, name, ip, status, last_seen, metrics FROM nodes WHERE id = $1`
	n, err := scanNode(r.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get node %s: %w", id, err)
	}
	return n, nil
}

// row is satisfied by both pgx.Row and pgx.Rows.
type row interface {
	Scan(dest ...any) error
}

func scanUpload(r row) (*event.Upload, error) {
	var up event.Upload
	var errMsg *string
	var meta []byte
	if err := r.Scan(&up.ID, &up.Filename, &up.UploadTime, &up.Status, &errMsg, &up.RecordsProcessed, &meta); err != nil {
		return nil, err
	}
	if errMsg != nil {
		up.Error = *errMsg
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &up.Metadata); err != nil {
			return nil, fmt.Errorf("decode upload metadata: %w", err)
		}
	}
	return &up, nil
}

func scanNode(r row) (*event.Node, error) {
	var n event.Node
	var metrics []byte
	if err := r.Scan(&n.ID, &n.Name, &n.IP, &n.Status, &n.LastSeen, &metrics); err != nil {
		return nil, err
	}
	if len(metrics) > 0 {
		if err := json.Unmarshal(metrics, &n.Metrics); err != nil {
			return nil, fmt.Errorf("decode node metrics: %w", err)
		}
	}
	return &n, nil
}

func scanEvents(rows pgx.Rows) ([]event.Canonical, error) {
	var out []event.Canonical
	for rows.Next() {
		var ev event.Canonical
		var raw []byte
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.Timestamp, &ev.PID, &ev.Process, &ev.ProcessPath, &ev.NodeID, &raw); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &ev.RawData); err != nil {
				return nil, fmt.Errorf("decode raw_data: %w", err)
			}
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// marshalJSONB renders a value for a jsonb column, mapping nil maps to {}.
func marshalJSONB(v any) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	if m, ok := v.(map[string]any); ok && m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}
