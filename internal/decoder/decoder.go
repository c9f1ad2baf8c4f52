// Package decoder turns uploaded telemetry blobs into raw event records.
//
// Two encodings are supported: a whole-document JSON object with a
// top-level "events" array, and gzip-compressed newline-delimited JSON
// (the current telemetry dump format produced by edge sensors).
package decoder

import (
	"context"
	"errors"
	"io"

	"github.com/nodewatch-systems/nodewatch/internal/event"
)

// Encoding identifies the upload payload format.
type Encoding string

const (
	// EncodingJSON is a single JSON document with an "events" array.
	EncodingJSON Encoding = "json"
	// EncodingNDJSONGzip is gzip-compressed newline-delimited JSON.
	EncodingNDJSONGzip Encoding = "ndjson-gzip"
)

var (
	// ErrFormat means the payload's top-level shape matches neither
	// supported encoding (missing events array, undecodable gzip stream).
	ErrFormat = errors.New("invalid file format")

	// ErrEmptyBatch means decoding produced zero usable records.
	ErrEmptyBatch = errors.New("no valid events found in the file")
)

// Decoder produces the finite sequence of raw records contained in one
// uploaded payload. Implementations are tolerant of per-record damage but
// fail on whole-payload shape problems.
type Decoder interface {
	// Decode reads r to completion and returns the surviving records in
	// input order. It returns ErrFormat for an unusable payload and
	// ErrEmptyBatch when nothing survives.
	Decode(ctx context.Context, r io.Reader) ([]event.RawRecord, error)

	// Encoding reports which payload format this decoder handles.
	Encoding() Encoding
}

// For selects the decoder for the given encoding.
func For(enc Encoding) (Decoder, error) {
	switch enc {
	case EncodingJSON:
		return &JSONDecoder{}, nil
	case EncodingNDJSONGzip:
		return &NDJSONGzipDecoder{}, nil
	default:
		return nil, ErrFormat
	}
}

// gzipMagic is the two-byte gzip member header.
var gzipMagic = []byte{0x1f, 0x8b}

// Sniff picks an encoding from the declared content type, falling back to
// magic-byte detection on the payload prefix. Explicit content negotiation
// wins; extension guessing is deliberately not done.
func Sniff(contentType string, prefix []byte) Encoding {
	switch contentType {
	case "application/gzip", "application/x-gzip", "application/x-ndjson+gzip":
		return EncodingNDJSONGzip
	case "application/json":
		return EncodingJSON
	}
	if len(prefix) >= 2 && prefix[0] == gzipMagic[0] && prefix[1] == gzipMagic[1] {
		return EncodingNDJSONGzip
	}
	return EncodingJSON
}
