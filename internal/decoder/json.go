package decoder

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/nodewatch-systems/nodewatch/internal/event"
	"github.com/nodewatch-systems/nodewatch/internal/metrics"
)

// JSONDecoder parses a whole-document JSON payload. The document must be
// an object with a top-level "events" array; each element is one record.
type JSONDecoder struct{}

// Encoding implements Decoder.
func (d *JSONDecoder) Encoding() Encoding { return EncodingJSON }

// Decode implements Decoder.
func (d *JSONDecoder) Decode(ctx context.Context, r io.Reader) ([]event.RawRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var doc struct {
		Events []event.RawRecord `json:"events"`
	}

	dec := json.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if doc.Events == nil {
		return nil, fmt.Errorf("%w: missing events array", ErrFormat)
	}
	if len(doc.Events) == 0 {
		return nil, ErrEmptyBatch
	}

	metrics.RecordsDecodedTotal.WithLabelValues(string(EncodingJSON)).Add(float64(len(doc.Events)))
	return doc.Events, nil
}
