// Package event defines the canonical security event model shared by the
// ingestion pipeline, the persistence layer, and the aggregation views.
package event

import "time"

// RawRecord is one ingested telemetry record before normalization.
// It has no guaranteed shape beyond being a JSON object and is kept
// verbatim on the canonical event for forensic replay.
type RawRecord map[string]any

// Sentinel values filled in for fields the reporting sensor omitted.
// The historical firmware used debugging artifacts ("insmod", "node-1")
// here; these replace them with clearly-labeled defaults.
const (
	UnknownProcess = "unknown"
	UnknownPath    = "unknown"
	UnknownNodeID  = "unknown-node"
	UnknownIP      = "0.0.0.0"
)

// Canonical is the normalized event record persisted to the events table.
// Every structured field is non-null after normalization; RawData is the
// original record, never mutated.
type Canonical struct {
	ID          int64     `json:"id,omitempty"`
	EventType   string    `json:"event_type"`
	Timestamp   time.Time `json:"timestamp"`
	PID         int       `json:"pid"`
	Process     string    `json:"process"`
	ProcessPath string    `json:"process_path"`
	NodeID      string    `json:"node_id"`
	RawData     RawRecord `json:"raw_data"`
}

// NodeStatus is the reported health of an edge node.
type NodeStatus string

const (
	NodeOnline  NodeStatus = "online"
	NodeWarning NodeStatus = "warning"
	NodeOffline NodeStatus = "offline"
)

// NodeMetrics holds per-node counters. The ingestion path only
// zero-initializes them on first sighting; aggregation recomputes them.
type NodeMetrics struct {
	CPU    float64 `json:"cpu"`
	Memory float64 `json:"memory"`
	Events int64   `json:"events"`
}

// Node describes a reporting edge device. Repeated sightings update
// Status and LastSeen only; Name, IP and Metrics keep their first
// recorded values (upsert-merge, not overwrite).
type Node struct {
	ID       string      `json:"id"`
	Name     string      `json:"name"`
	IP       string      `json:"ip"`
	Status   NodeStatus  `json:"status"`
	LastSeen time.Time   `json:"last_seen"`
	Metrics  NodeMetrics `json:"metrics"`
}

// UploadStatus tracks the lifecycle of one ingestion attempt.
type UploadStatus string

const (
	UploadProcessing UploadStatus = "processing"
	UploadCompleted  UploadStatus = "completed"
	UploadFailed     UploadStatus = "failed"
)

// Upload is the audit record for one user-initiated ingestion attempt.
// It is created in the processing state before any parsing happens and
// transitions to a terminal state exactly once.
type Upload struct {
	ID               int64          `json:"id"`
	Filename         string         `json:"filename"`
	UploadTime       time.Time      `json:"upload_time"`
	Status           UploadStatus   `json:"status"`
	Error            string         `json:"error,omitempty"`
	RecordsProcessed int            `json:"records_processed"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}
