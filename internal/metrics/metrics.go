// Package metrics exposes Prometheus instrumentation for the ingestion
// pipeline. All collectors are registered via promauto at init time.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Upload outcomes
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodewatch_uploads_total",
			Help: "Total number of upload attempts by terminal status",
		},
		[]string{"status"},
	)

	UploadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nodewatch_upload_bytes_total",
			Help: "Total bytes of uploaded telemetry accepted for decoding",
		},
	)

	// Decoder metrics
	RecordsDecodedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodewatch_records_decoded_total",
			Help: "Total raw records produced by the file decoder",
		},
		[]string{"encoding"},
	)

	DecodeLinesSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nodewatch_decode_lines_skipped_total",
			Help: "Malformed NDJSON lines skipped during decoding",
		},
	)

	// Normalizer metrics
	RecordsNormalizedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodewatch_records_normalized_total",
			Help: "Records normalized, labeled by resolved canonical category",
		},
		[]string{"category"},
	)

	RecordsRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodewatch_records_rejected_total",
			Help: "Records rejected under strict validation, by reason",
		},
		[]string{"reason"},
	)

	// Commit metrics
	CommitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nodewatch_commit_duration_seconds",
			Help:    "Duration of the batch commit transaction in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	EventsInsertedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nodewatch_events_inserted_total",
			Help: "Canonical events durably inserted",
		},
	)

	NodesUpsertedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nodewatch_nodes_upserted_total",
			Help: "Node descriptors upserted during ingestion batches",
		},
	)
)
