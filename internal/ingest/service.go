// Package ingest orchestrates one upload end to end: audit record,
// decode, normalize, transactional commit, terminal status.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/nodewatch-systems/nodewatch/internal/decoder"
	"github.com/nodewatch-systems/nodewatch/internal/event"
	"github.com/nodewatch-systems/nodewatch/internal/ingeststats"
	"github.com/nodewatch-systems/nodewatch/internal/logging"
	"github.com/nodewatch-systems/nodewatch/internal/messaging"
	"github.com/nodewatch-systems/nodewatch/internal/metrics"
	"github.com/nodewatch-systems/nodewatch/internal/normalizer"
)

// ErrUploadRecord means the initial audit record could not be created.
// Nothing was processed; the error is surfaced directly.
var ErrUploadRecord = errors.New("could not create upload record")

// store is the slice of the repository the coordinator writes through.
type store interface {
	CreateUpload(ctx context.Context, filename string, metadata map[string]any) (*event.Upload, error)
	FailUpload(ctx context.Context, id int64, errMsg string) error
	CommitBatch(ctx context.Context, uploadID int64, nodes []event.Node, events []event.Canonical) error
}

// Result reports one completed upload back to the caller.
type Result struct {
	UploadID         int64                  `json:"uploadId"`
	RecordsProcessed int                    `json:"recordsProcessed"`
	Report           normalizer.BatchReport `json:"report"`
}

// Service is the ingestion coordinator. It is the only component that
// performs persistent writes; everything upstream of the repository is a
// pure transformation.
type Service struct {
	store      store
	normalizer *normalizer.Normalizer
	stats      *ingeststats.Client
	publisher  *messaging.Publisher
	logger     *logging.Logger
}

// NewService wires the coordinator. stats and publisher may be nil; both
// are optional side channels, never load-bearing.
func NewService(st store, n *normalizer.Normalizer, stats *ingeststats.Client, pub *messaging.Publisher, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: st, normalizer: n, stats: stats, publisher: pub, logger: logger}
}

// ProcessUpload runs the state machine for one upload:
//
//	received → recording → decoding → normalizing → committing → completed|failed
//
// The audit record is written before any parsing so a crash mid-parse is
// observable. Per-record problems never fail the batch; decode failure,
// an empty batch, or a commit failure always do, and the failure message
// is captured on the upload record outside the rolled-back transaction.
func (s *Service) ProcessUpload(ctx context.Context, filename string, r io.Reader, enc decoder.Encoding) (*Result, error) {
	dec, err := decoder.For(enc)
	if err != nil {
		return nil, err
	}

	upload, err := s.store.CreateUpload(ctx, filename, map[string]any{"encoding": string(enc)})
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %v", ErrUploadRecord, err)
	}

	log := s.logger.With("upload_id", upload.ID, "filename", filename)

	records, err := dec.Decode(ctx, r)
	if err != nil {
		return nil, s.fail(ctx, log, upload.ID, err)
	}

	now := time.Now()
	events, nodes, report := s.normalizer.NormalizeBatch(records, now)
	if report.Rejected > 0 {
		log.WarnContext(ctx, "records rejected during normalization",
			"rejected", report.Rejected, "accepted", report.Accepted)
	}
	if len(events) == 0 {
		// Strict mode can reject every decoded record; the upload then
		// carries no usable data, same as an empty file.
		return nil, s.fail(ctx, log, upload.ID, decoder.ErrEmptyBatch)
	}

	start := time.Now()
	if err := s.store.CommitBatch(ctx, upload.ID, nodes, events); err != nil {
		return nil, s.fail(ctx, log, upload.ID, err)
	}
	metrics.CommitDuration.Observe(time.Since(start).Seconds())
	metrics.EventsInsertedTotal.Add(float64(len(events)))
	metrics.NodesUpsertedTotal.Add(float64(len(nodes)))
	metrics.UploadsTotal.WithLabelValues("completed").Inc()

	log.InfoContext(ctx, "upload committed",
		"records_processed", len(events),
		"nodes_seen", len(nodes),
		"rejected", report.Rejected,
	)

	s.afterCommit(ctx, log, upload, events, nodes)

	return &Result{
		UploadID:         upload.ID,
		RecordsProcessed: len(events),
		Report:           report,
	}, nil
}

// fail marks the upload failed with the captured message and passes the
// original error through. The status update runs on the pool so it
// survives the rolled-back batch transaction; if it fails too, that is
// logged but the original error still wins.
func (s *Service) fail(ctx context.Context, log *logging.Logger, uploadID int64, cause error) error {
	metrics.UploadsTotal.WithLabelValues("failed").Inc()
	log.ErrorContext(ctx, "upload failed", "error", cause.Error())

	// The upload may have failed because ctx is done; the status write
	// must still land.
	updateCtx := context.WithoutCancel(ctx)
	if err := s.store.FailUpload(updateCtx, uploadID, cause.Error()); err != nil {
		log.ErrorContext(ctx, "could not record upload failure", "error", err.Error())
	}
	return cause
}

// afterCommit fans out the optional side channels. Failures here are
// logged, never surfaced: the batch is already durable.
func (s *Service) afterCommit(ctx context.Context, log *logging.Logger, upload *event.Upload, events []event.Canonical, nodes []event.Node) {
	nodeIDs := make([]string, len(nodes))
	for i, n := range nodes {
		nodeIDs[i] = n.ID
	}

	if err := s.stats.RecordUpload(ctx, upload.Filename, int64(len(events)), nodeIDs); err != nil {
		log.WarnContext(ctx, "failed to record ingest stats", "error", err.Error())
	}

	msg := &messaging.UploadCompleted{
		UploadID:         upload.ID,
		Filename:         upload.Filename,
		RecordsProcessed: len(events),
		NodesSeen:        len(nodes),
		CompletedAt:      time.Now(),
	}
	if err := s.publisher.PublishUploadCompleted(ctx, msg); err != nil {
		log.WarnContext(ctx, "failed to publish upload notification", "error", err.Error())
	}
}
