package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Store layout under the project root. The external store process keeps a
// status document next to its database; the probe reads that document
// instead of opening the database itself.
const (
	storeDir   = ".openhands/.memory"
	dbFile     = "agent.sqlite"
	statusFile = "status.json"
)

// statusDoc mirrors the document the store maintains alongside its
// database.
type statusDoc struct {
	SchemaVersion string `json:"schema_version"`
	EventsCount   int64  `json:"events_count"`
	FilesIndexed  int64  `json:"files_indexed"`
	LastEventTS   string `json:"last_event_ts"`
}

// Probe summarizes the project-memory store of one project root by
// inspecting its on-disk layout.
type Probe struct {
	root string
}

// NewProbe returns a probe for the store under root. An empty root yields
// disconnected summaries.
func NewProbe(root string) *Probe {
	return &Probe{root: root}
}

// Summary inspects the store directory. A missing database reports
// Connected=false with a detail; a present database with a damaged or
// missing status document still reports Connected=true with zeroed
// counters, since the store itself may simply not have flushed yet.
func (p *Probe) Summary(ctx context.Context) (Summary, error) {
	if p.root == "" {
		return Disconnected("no project root configured"), nil
	}
	if err := ctx.Err(); err != nil {
		return Disconnected("probe cancelled"), err
	}

	dbPath := filepath.Join(p.root, storeDir, dbFile)
	if _, err := os.Stat(dbPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Disconnected("no memory store at " + dbPath), nil
		}
		return Disconnected(fmt.Sprintf("memory store unreadable: %v", err)), nil
	}

	summary := Summary{
		Connected: true,
		Backend:   "sqlite",
		DBPath:    dbPath,
	}

	data, err := os.ReadFile(filepath.Join(p.root, storeDir, statusFile))
	if err != nil {
		summary.Detail = "status document not available"
		return summary, nil
	}
	var doc statusDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		summary.Detail = "status document malformed"
		return summary, nil
	}

	summary.SchemaVersion = doc.SchemaVersion
	summary.EventsCount = doc.EventsCount
	summary.FilesIndexed = doc.FilesIndexed
	if doc.LastEventTS != "" {
		if ts, err := time.Parse(time.RFC3339, doc.LastEventTS); err == nil {
			summary.LastEventTS = ts
		}
	}
	return summary, nil
}

// ForConfig picks the right store for a resolved runtime: a probe under
// the project root in local mode, a disconnected store otherwise.
func ForConfig(environment, projectRoot string) Store {
	if environment != "local" {
		return NopStore("memory store is only available in local runtime")
	}
	if projectRoot == "" {
		return NopStore("no project root configured")
	}
	return NewProbe(projectRoot)
}
