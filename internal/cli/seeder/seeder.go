// Package seeder generates realistic raw telemetry files for testing and
// development. The records deliberately mimic what sensors in the field
// actually send: mixed legacy event names, second and millisecond
// timestamps, and the occasional missing field.
package seeder

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

// eventNames is the pool of raw event type strings the generator draws
// from. It mixes canonical category names with the legacy aliases real
// sensor firmware still emits.
var eventNames = []string{
	"file_access", "file_open", "file_read", "file_write",
	"module_load", "insmod_event", "kernel_module",
	"ransomware", "ransomware_detected", "encryption_burst",
	"privilege_escalation", "setuid_event", "sudo_exec",
	"user_management", "usermod_event", "useradd", "userdel",
}

var processNames = []string{
	"sshd", "cron", "systemd", "nginx", "busybox", "dropbear",
	"telnetd", "watchdog", "updater", "sensord",
}

// Config controls generation.
type Config struct {
	Count      int           // number of records
	Nodes      int           // number of distinct nodes to spread records over
	TimeSpread time.Duration // records are timestamped within [now-TimeSpread, now]
	Seed       int64         // 0 means non-deterministic
}

// DefaultConfig returns generation defaults suitable for a demo dataset.
func DefaultConfig() Config {
	return Config{
		Count:      500,
		Nodes:      8,
		TimeSpread: 24 * time.Hour,
	}
}

// Generator produces raw telemetry records.
type Generator struct {
	cfg   Config
	rng   *rand.Rand
	faker *gofakeit.Faker
	nodes []nodeIdentity
}

type nodeIdentity struct {
	ID   string
	Name string
	IP   string
}

// New creates a Generator. A non-zero cfg.Seed makes output reproducible.
func New(cfg Config) *Generator {
	if cfg.Count <= 0 {
		cfg.Count = DefaultConfig().Count
	}
	if cfg.Nodes <= 0 {
		cfg.Nodes = DefaultConfig().Nodes
	}
	if cfg.TimeSpread <= 0 {
		cfg.TimeSpread = DefaultConfig().TimeSpread
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	faker := gofakeit.New(seed)

	g := &Generator{cfg: cfg, rng: rng, faker: faker}
	for i := 0; i < cfg.Nodes; i++ {
		g.nodes = append(g.nodes, nodeIdentity{
			ID:   fmt.Sprintf("edge-%03d", i+1),
			Name: strings.ToLower(faker.Word()) + "-" + faker.FarmAnimal(),
			IP:   faker.IPv4Address(),
		})
	}
	return g
}

// Record produces one raw telemetry record.
func (g *Generator) Record(now time.Time) map[string]any {
	node := g.nodes[g.rng.Intn(len(g.nodes))]
	proc := processNames[g.rng.Intn(len(processNames))]
	at := now.Add(-time.Duration(g.rng.Int63n(int64(g.cfg.TimeSpread))))

	rec := map[string]any{
		"event":        eventNames[g.rng.Intn(len(eventNames))],
		"pid":          g.rng.Intn(32768) + 1,
		"process":      proc,
		"process_path": "/usr/sbin/" + proc,
		"node_id":      node.ID,
		"node_name":    node.Name,
		"node_ip":      node.IP,
	}

	// Sensors disagree about timestamp units. Emit both forms so the
	// ingest heuristics stay honest.
	if g.rng.Intn(2) == 0 {
		rec["timestamp"] = at.Unix()
	} else {
		rec["timestamp"] = at.UnixMilli()
	}

	// A slice of real-world records arrives incomplete.
	if g.rng.Intn(20) == 0 {
		delete(rec, "process_path")
	}
	if g.rng.Intn(25) == 0 {
		delete(rec, "pid")
	}

	return rec
}

// Records produces cfg.Count raw records.
func (g *Generator) Records(now time.Time) []map[string]any {
	out := make([]map[string]any, 0, g.cfg.Count)
	for i := 0; i < g.cfg.Count; i++ {
		out = append(out, g.Record(now))
	}
	return out
}

// WriteJSON writes records as a whole-document JSON file with an events
// array, the secondary upload encoding.
func WriteJSON(path string, records []map[string]any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{"events": records}); err != nil {
		return fmt.Errorf("encode events: %w", err)
	}
	return f.Close()
}

// WriteNDJSONGzip writes records as gzip-compressed NDJSON, the primary
// upload encoding: one JSON object per line.
func WriteNDJSONGzip(path string, records []map[string]any) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	enc := json.NewEncoder(gz)
	for _, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("close gzip stream: %w", err)
	}
	return f.Close()
}
