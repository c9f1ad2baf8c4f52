package decoder

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/nodewatch-systems/nodewatch/internal/event"
	"github.com/nodewatch-systems/nodewatch/internal/metrics"
)

// maxLineBytes bounds a single NDJSON line. Sensor records are small;
// anything past this is damage, not data.
const maxLineBytes = 1 << 20

// NDJSONGzipDecoder streams a gzip-compressed newline-delimited JSON
// payload. Each non-empty line, after stripping embedded NUL bytes, is
// parsed independently; lines that fail to parse are logged and skipped.
// The final line is parsed even without a trailing newline.
type NDJSONGzipDecoder struct{}

// Encoding implements Decoder.
func (d *NDJSONGzipDecoder) Encoding() Encoding { return EncodingNDJSONGzip }

// Decode implements Decoder.
func (d *NDJSONGzipDecoder) Decode(ctx context.Context, r io.Reader) ([]event.RawRecord, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	defer gz.Close()

	var records []event.RawRecord

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		// Cancellation stops consuming further input; records already
		// produced stay produced.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lineNo++

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		// Truncated sensor dumps carry embedded NULs inside otherwise
		// valid lines.
		line = bytes.ReplaceAll(line, []byte{0x00}, nil)

		var rec event.RawRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			slog.Warn("skipping malformed telemetry line",
				slog.Int("line", lineNo),
				slog.String("error", err.Error()),
			)
			metrics.DecodeLinesSkippedTotal.Inc()
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		// The stream died mid-decompression; whatever parsed so far is
		// not trustworthy as a complete batch.
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	if len(records) == 0 {
		return nil, ErrEmptyBatch
	}

	metrics.RecordsDecodedTotal.WithLabelValues(string(EncodingNDJSONGzip)).Add(float64(len(records)))
	return records, nil
}
