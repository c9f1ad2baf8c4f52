// Package normalizer maps raw telemetry records onto the canonical event
// model. Normalization is a pure per-record transformation; it never
// errors on missing optional data, and under strict validation it rejects
// individual records without touching their neighbors.
package normalizer

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/nodewatch-systems/nodewatch/internal/event"
	"github.com/nodewatch-systems/nodewatch/internal/metrics"
)

// Mode selects the record validation policy.
type Mode string

const (
	// ModeLenient accepts every record and fills missing fields with
	// sentinel defaults. This is the default policy: the sensors in the
	// field disagree about which fields they emit, and dropping their
	// records would blind the dashboard.
	ModeLenient Mode = "lenient"
	// ModeStrict drops records missing any required field. Only the
	// offending record is excluded; the batch continues.
	ModeStrict Mode = "strict"
)

// ParseMode converts a config string to a Mode, defaulting to lenient.
func ParseMode(s string) Mode {
	if s == string(ModeStrict) {
		return ModeStrict
	}
	return ModeLenient
}

// strictRequired is the required-field set enforced under ModeStrict.
var strictRequired = []string{"event", "pid", "process", "process_path", "node_id"}

// Normalizer converts raw records to canonical events.
type Normalizer struct {
	mode Mode
}

// New creates a Normalizer with the given validation mode.
func New(mode Mode) *Normalizer {
	return &Normalizer{mode: mode}
}

// Mode reports the active validation policy.
func (n *Normalizer) Mode() Mode { return n.mode }

// Normalize produces exactly one Result for one raw record. now is the
// ingestion wall-clock instant, used both as the timestamp fallback and
// as the node last-seen time so every record in a batch agrees on it.
func (n *Normalizer) Normalize(rec event.RawRecord, now time.Time) Result {
	if n.mode == ModeStrict {
		if missing := missingFields(rec); len(missing) > 0 {
			for _, f := range missing {
				metrics.RecordsRejectedTotal.WithLabelValues("missing_" + f).Inc()
			}
			return rejected(ReasonMissingFields, missing)
		}
	}

	ev := event.Canonical{
		EventType:   stringField(rec, "event"),
		Timestamp:   deriveTimestamp(rec, now),
		PID:         intField(rec, "pid"),
		Process:     firstString(rec, event.UnknownProcess, "process", "comm"),
		ProcessPath: firstString(rec, event.UnknownPath, "process_path", "path"),
		NodeID:      firstString(rec, event.UnknownNodeID, "node_id"),
		RawData:     rec,
	}

	metrics.RecordsNormalizedTotal.WithLabelValues(string(event.ResolveCategory(ev.EventType))).Inc()

	res := Result{Event: &ev}
	if id := stringField(rec, "node_id"); id != "" {
		res.Node = &event.Node{
			ID:       id,
			Name:     firstString(rec, "Node-"+id, "node_name"),
			IP:       firstString(rec, event.UnknownIP, "node_ip"),
			Status:   event.NodeOnline,
			LastSeen: now,
		}
	}
	return res
}

// NormalizeBatch maps every raw record and collects a per-batch report.
// Records have no ordering dependency between each other, but output
// order matches input order for deterministic persistence.
func (n *Normalizer) NormalizeBatch(records []event.RawRecord, now time.Time) ([]event.Canonical, []event.Node, BatchReport) {
	events := make([]event.Canonical, 0, len(records))
	var nodes []*event.Node
	report := BatchReport{}

	for _, rec := range records {
		res := n.Normalize(rec, now)
		if res.Event == nil {
			report.Rejected++
			report.Reasons = append(report.Reasons, res.Rejection)
			continue
		}
		report.Accepted++
		events = append(events, *res.Event)
		if res.Node != nil {
			nodes = append(nodes, res.Node)
		}
	}
	return events, dedupeNodes(nodes), report
}

// dedupeNodes collapses in-batch duplicates by id. Identity fields keep
// the first sighting, status and last-seen take the latest, mirroring how
// the persistence upsert treats repeated sightings across batches.
func dedupeNodes(nodes []*event.Node) []event.Node {
	byID := make(map[string]int, len(nodes))
	var out []event.Node
	for _, nd := range nodes {
		if i, ok := byID[nd.ID]; ok {
			out[i].Status = nd.Status
			out[i].LastSeen = nd.LastSeen
			continue
		}
		byID[nd.ID] = len(out)
		out = append(out, *nd)
	}
	return out
}

// tsSecondsCutoff splits Unix seconds from Unix milliseconds: numeric
// timestamps below it are seconds, at or above it already milliseconds.
const tsSecondsCutoff = 10_000_000_000

// timestampLayouts are tried in order for non-numeric timestamp strings.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func deriveTimestamp(rec event.RawRecord, now time.Time) time.Time {
	v, ok := rec["timestamp"]
	if !ok || v == nil {
		return now
	}

	if f, ok := numericValue(v); ok {
		if f < tsSecondsCutoff {
			return time.UnixMilli(int64(f * 1000))
		}
		return time.UnixMilli(int64(f))
	}

	if s, ok := v.(string); ok {
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
	}
	return now
}

// numericValue coerces JSON numbers and numeric strings.
func numericValue(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	}
	return 0, false
}

func stringField(rec event.RawRecord, key string) string {
	if s, ok := rec[key].(string); ok {
		return s
	}
	return ""
}

// firstString returns the first present non-empty string among keys,
// else the fallback.
func firstString(rec event.RawRecord, fallback string, keys ...string) string {
	for _, k := range keys {
		if s := stringField(rec, k); s != "" {
			return s
		}
	}
	return fallback
}

// intField coerces a pid-like value; absent or non-numeric becomes 0.
func intField(rec event.RawRecord, key string) int {
	if f, ok := numericValue(rec[key]); ok {
		return int(f)
	}
	return 0
}

// missingFields returns strict-mode required fields absent from rec.
// A field counts as present when the key exists with a non-nil,
// non-empty-string value. Numeric zero is present: a pid of 0 is a
// value, not an omission.
func missingFields(rec event.RawRecord) []string {
	var missing []string
	for _, f := range strictRequired {
		v, ok := rec[f]
		if !ok || v == nil {
			missing = append(missing, f)
			continue
		}
		if s, isStr := v.(string); isStr && s == "" {
			missing = append(missing, f)
		}
	}
	return missing
}
