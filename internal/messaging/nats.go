// Package messaging publishes ingestion lifecycle notifications over NATS.
// The broker is optional; a nil Publisher is a no-op so the server runs
// unchanged without one.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectUploadCompleted announces a durably committed ingestion batch.
const SubjectUploadCompleted = "nodewatch.uploads.completed"

// Config holds NATS connection settings.
type Config struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:           nats.DefaultURL,
		Name:          "nodewatch",
		MaxReconnects: -1,
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// UploadCompleted is the message body published after a successful commit.
type UploadCompleted struct {
	UploadID         int64     `json:"upload_id"`
	Filename         string    `json:"filename"`
	RecordsProcessed int       `json:"records_processed"`
	NodesSeen        int       `json:"nodes_seen"`
	CompletedAt      time.Time `json:"completed_at"`
}

// Publisher wraps a NATS connection.
type Publisher struct {
	conn *nats.Conn
}

// NewPublisher connects to NATS with the given configuration.
func NewPublisher(cfg Config) (*Publisher, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &Publisher{conn: conn}, nil
}

// PublishUploadCompleted publishes an upload-completed notification.
// Safe to call on a nil Publisher.
func (p *Publisher) PublishUploadCompleted(ctx context.Context, msg *UploadCompleted) error {
	if p == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := p.conn.Publish(SubjectUploadCompleted, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", SubjectUploadCompleted, err)
	}
	return nil
}

// Close drains and closes the connection. Safe on nil.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	p.conn.Close()
}
