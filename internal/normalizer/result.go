package normalizer

import (
	"fmt"
	"strings"

	"github.com/nodewatch-systems/nodewatch/internal/event"
)

// RejectReason classifies why a record was excluded under strict mode.
type RejectReason string

const (
	// ReasonMissingFields means the record lacked strict-mode required fields.
	ReasonMissingFields RejectReason = "missing_fields"
)

// Rejection describes one excluded record.
type Rejection struct {
	Reason RejectReason `json:"reason"`
	Fields []string     `json:"fields,omitempty"`
}

func (r Rejection) String() string {
	if len(r.Fields) == 0 {
		return string(r.Reason)
	}
	return fmt.Sprintf("%s: %s", r.Reason, strings.Join(r.Fields, ", "))
}

// Result carries either a normalized event (plus the node descriptor the
// record revealed, if any) or a typed rejection. Exactly one of Event and
// Rejection is meaningful.
type Result struct {
	Event     *event.Canonical
	Node      *event.Node
	Rejection Rejection
}

func rejected(reason RejectReason, fields []string) Result {
	return Result{Rejection: Rejection{Reason: reason, Fields: fields}}
}

// BatchReport summarizes one batch's normalization outcome.
type BatchReport struct {
	Accepted int         `json:"accepted"`
	Rejected int         `json:"rejected"`
	Reasons  []Rejection `json:"reasons,omitempty"`
}
