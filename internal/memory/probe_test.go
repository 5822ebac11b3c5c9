package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestProbeWithoutStore(t *testing.T) {
	probe := NewProbe(t.TempDir())
	summary, err := probe.Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary returned error: %v", err)
	}
	if summary.Connected {
		t.Fatal("expected disconnected summary without a database")
	}
	if summary.Detail == "" {
		t.Fatal("expected a detail explaining the absence")
	}
}

func TestProbeReadsStatusDocument(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, ".openhands", ".memory")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "agent.sqlite"), []byte("db"), 0o600); err != nil {
		t.Fatalf("write db: %v", err)
	}
	status := `{"schema_version":"1.0","events_count":42,"files_indexed":7,"last_event_ts":"2026-08-30T12:00:00Z"}`
	if err := os.WriteFile(filepath.Join(dir, "status.json"), []byte(status), 0o600); err != nil {
		t.Fatalf("write status: %v", err)
	}

	summary, err := NewProbe(root).Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary returned error: %v", err)
	}
	if !summary.Connected {
		t.Fatal("expected connected summary")
	}
	if summary.SchemaVersion != "1.0" || summary.EventsCount != 42 || summary.FilesIndexed != 7 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.LastEventTS.IsZero() {
		t.Fatal("expected last event timestamp parsed")
	}
}

func TestProbeWithMissingStatusDocument(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, ".openhands", ".memory")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "agent.sqlite"), []byte("db"), 0o600); err != nil {
		t.Fatalf("write db: %v", err)
	}

	summary, err := NewProbe(root).Summary(context.Background())
	if err != nil {
		t.Fatalf("Summary returned error: %v", err)
	}
	if !summary.Connected {
		t.Fatal("expected connected summary when the database exists")
	}
	if summary.Detail == "" {
		t.Fatal("expected a detail about the missing status document")
	}
}

func TestForConfig(t *testing.T) {
	store := ForConfig("docker", "")
	summary, _ := store.Summary(context.Background())
	if summary.Connected {
		t.Fatal("expected disconnected store outside local runtime")
	}

	store = ForConfig("local", "")
	summary, _ = store.Summary(context.Background())
	if summary.Connected {
		t.Fatal("expected disconnected store without a project root")
	}

	if _, ok := ForConfig("local", t.TempDir()).(*Probe); !ok {
		t.Fatal("expected a probe for a local runtime with a project root")
	}
}
