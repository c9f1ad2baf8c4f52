// Package repository provides Postgres persistence for events, nodes and
// upload audit records.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/nodewatch-systems/nodewatch/internal/event"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrUploadTerminal is returned when a status transition targets an
	// upload record already in a terminal state.
	ErrUploadTerminal = errors.New("upload already in terminal state")
)

// EventFilter narrows event listings.
type EventFilter struct {
	EventType string // exact stored event_type match, empty for all
	NodeID    string
	Limit     int
	Offset    int
}

// TypeCount is one event_type's row count.
type TypeCount struct {
	EventType string `json:"event_type"`
	Count     int64  `json:"count"`
}

// DayCount is one day's event total.
type DayCount struct {
	Day   time.Time `json:"day"`
	Count int64     `json:"count"`
}

// TimelineRow is one (bucket, event_type) cell of the timeline matrix.
// The aggregation service folds event types into canonical categories.
type TimelineRow struct {
	Bucket    time.Time `json:"bucket"`
	EventType string    `json:"event_type"`
	Count     int64     `json:"count"`
}

// Store is the persistence contract the ingestion coordinator and the
// read-side handlers depend on.
type Store interface {
	// Uploads
	CreateUpload(ctx context.Context, filename string, metadata map[string]any) (*event.Upload, error)
	FailUpload(ctx context.Context, id int64, errMsg string) error
	GetUpload(ctx context.Context, id int64) (*event.Upload, error)
	ListUploads(ctx context.Context, limit int) ([]event.Upload, error)

	// CommitBatch atomically upserts the deduplicated node descriptors,
	// inserts the canonical events in fixed-size batches, and marks the
	// upload completed with the inserted count. Nothing is visible if any
	// step fails.
	CommitBatch(ctx context.Context, uploadID int64, nodes []event.Node, events []event.Canonical) error

	// Reads
	ListEvents(ctx context.Context, f EventFilter) ([]event.Canonical, int64, error)
	RecentEvents(ctx context.Context, limit int) ([]event.Canonical, error)
	CountEventsByType(ctx context.Context) ([]TypeCount, error)
	CountEventsByDay(ctx context.Context, days int) ([]DayCount, error)
	EventTimeline(ctx context.Context, since time.Time) ([]TimelineRow, error)
	ListNodes(ctx context.Context) ([]event.Node, error)
	GetNode(ctx context.Context, id string) (*event.Node, error)

	Ping(ctx context.Context) error
	Close()
}
