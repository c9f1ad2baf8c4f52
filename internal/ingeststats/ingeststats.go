// Package ingeststats provides Redis-backed ingestion counters.
//
// Designed for multiple server instances writing concurrently; the
// dashboard reads the same keys from any instance.
//
// Redis key structure:
//
//	nw:ingest:stats              - Hash with totals and last-upload info
//	nw:ingest:hourly:{YYYYMMDDHH} - Event count for a specific hour (expires 48h)
//	nw:ingest:daily:{YYYYMMDD}   - Event count for a specific day (expires 7d)
//	nw:ingest:nodes:{YYYYMMDD}   - Set of node ids seen that day (expires 7d)
package ingeststats

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	statsKey     = "nw:ingest:stats"
	hourlyPrefix = "nw:ingest:hourly:"
	dailyPrefix  = "nw:ingest:daily:"
	nodesPrefix  = "nw:ingest:nodes:"
)

// Stats is the current ingestion snapshot served to the dashboard.
type Stats struct {
	TotalEvents      int64      `json:"total_events"`
	TotalUploads     int64      `json:"total_uploads"`
	EventsLastHour   int64      `json:"events_last_hour"`
	EventsToday      int64      `json:"events_today"`
	UniqueNodesToday int64      `json:"unique_nodes_today"`
	LastUploadAt     *time.Time `json:"last_upload_at,omitempty"`
	LastUploadFile   string     `json:"last_upload_file,omitempty"`
	RetrievedAt      time.Time  `json:"retrieved_at"`
}

// Client records and retrieves ingestion statistics. A nil Client is a
// no-op recorder, so the pipeline runs unchanged without Redis.
type Client struct {
	redis *redis.Client
}

// NewClient connects to Redis and verifies the connection.
func NewClient(redisURL string) (*Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	return &Client{redis: client}, nil
}

// NewClientFromRedis wraps an existing Redis connection.
func NewClientFromRedis(client *redis.Client) *Client {
	return &Client{redis: client}
}

// RecordUpload records one committed upload. Called once per successful
// batch commit; Redis pipelining keeps it one round-trip.
func (c *Client) RecordUpload(ctx context.Context, filename string, eventCount int64, nodeIDs []string) error {
	if c == nil {
		return nil
	}

	now := time.Now()
	hourKey := hourlyPrefix + now.Format("2006010215")
	dayKey := dailyPrefix + now.Format("20060102")
	nodesKey := nodesPrefix + now.Format("20060102")

	pipe := c.redis.Pipeline()

	pipe.HSet(ctx, statsKey, map[string]interface{}{
		"last_upload_at":   strconv.FormatInt(now.Unix(), 10),
		"last_upload_file": filename,
	})
	pipe.HIncrBy(ctx, statsKey, "total_events", eventCount)
	pipe.HIncrBy(ctx, statsKey, "total_uploads", 1)

	pipe.IncrBy(ctx, hourKey, eventCount)
	pipe.Expire(ctx, hourKey, 48*time.Hour)

	pipe.IncrBy(ctx, dayKey, eventCount)
	pipe.Expire(ctx, dayKey, 7*24*time.Hour)

	if len(nodeIDs) > 0 {
		members := make([]interface{}, len(nodeIDs))
		for i, id := range nodeIDs {
			members[i] = id
		}
		pipe.SAdd(ctx, nodesKey, members...)
		pipe.Expire(ctx, nodesKey, 7*24*time.Hour)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record upload stats: %w", err)
	}
	return nil
}

// GetStats retrieves the current snapshot.
func (c *Client) GetStats(ctx context.Context) (*Stats, error) {
	if c == nil {
		return nil, fmt.Errorf("ingest stats not configured")
	}

	now := time.Now()
	stats := &Stats{RetrievedAt: now}

	fields, err := c.redis.HGetAll(ctx, statsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read stats hash: %w", err)
	}
	if v, ok := fields["total_events"]; ok {
		stats.TotalEvents, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := fields["total_uploads"]; ok {
		stats.TotalUploads, _ = strconv.ParseInt(v, 10, 64)
	}
	if v, ok := fields["last_upload_at"]; ok {
		if unix, err := strconv.ParseInt(v, 10, 64); err == nil {
			t := time.Unix(unix, 0)
			stats.LastUploadAt = &t
		}
	}
	stats.LastUploadFile = fields["last_upload_file"]

	hour, err := c.redis.Get(ctx, hourlyPrefix+now.Format("2006010215")).Result()
	if err == nil {
		stats.EventsLastHour, _ = strconv.ParseInt(hour, 10, 64)
	} else if err != redis.Nil {
		return nil, fmt.Errorf("failed to read hourly counter: %w", err)
	}

	day, err := c.redis.Get(ctx, dailyPrefix+now.Format("20060102")).Result()
	if err == nil {
		stats.EventsToday, _ = strconv.ParseInt(day, 10, 64)
	} else if err != redis.Nil {
		return nil, fmt.Errorf("failed to read daily counter: %w", err)
	}

	nodes, err := c.redis.SCard(ctx, nodesPrefix+now.Format("20060102")).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to read node set: %w", err)
	}
	stats.UniqueNodesToday = nodes

	return stats, nil
}

// Close releases the Redis connection. Safe on nil.
func (c *Client) Close() error {
	if c == nil || c.redis == nil {
		return nil
	}
	return c.redis.Close()
}
