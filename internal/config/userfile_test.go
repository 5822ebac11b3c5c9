package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPersistPreservesUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	seed := "[llm]\nmodel = \"old\"\n\n[experimental]\nfuture_flag = true\n"
	if err := os.WriteFile(path, []byte(seed), 0o600); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	if err := PersistValues(path, map[string]any{"llm.model": "new"}); err != nil {
		t.Fatalf("PersistValues returned error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	text := string(data)
	if !strings.Contains(text, "future_flag") {
		t.Fatalf("expected unknown keys preserved, got:\n%s", text)
	}
	if !strings.Contains(text, `model = "new"`) {
		t.Fatalf("expected updated value, got:\n%s", text)
	}
	if strings.Contains(text, `"old"`) {
		t.Fatalf("expected rewrite in place, got:\n%s", text)
	}
}

func TestRemoveValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte("[llm]\nmodel = \"x\"\ntimeout = 10\n"), 0o600); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	if err := RemoveValues(path, []string{"llm.model"}); err != nil {
		t.Fatalf("RemoveValues returned error: %v", err)
	}

	layer, issues := userLayer(path, os.ReadFile, 0)
	if len(issues) != 0 {
		t.Fatalf("expected clean reload, got %v", issues)
	}
	if _, ok := layer.Value("llm.model"); ok {
		t.Fatal("expected llm.model removed")
	}
	if v, ok := layer.Value("llm.timeout"); !ok || v.(int64) != 10 {
		t.Fatalf("expected llm.timeout kept, got %v", v)
	}
}

func TestTemplateCoversEveryKey(t *testing.T) {
	template := DefaultTemplate()
	for _, key := range KnownKeys() {
		_, entry := splitKey(key)
		if !strings.Contains(template, "# "+entry+" = ") {
			t.Fatalf("expected template to mention %s", key)
		}
	}
}

func TestEnsureUserConfigIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	created, err := EnsureUserConfig(path)
	if err != nil {
		t.Fatalf("EnsureUserConfig returned error: %v", err)
	}
	if !created {
		t.Fatal("expected first call to create the file")
	}

	if err := os.WriteFile(path, []byte("[llm]\nmodel = \"mine\"\n"), 0o600); err != nil {
		t.Fatalf("overwrite file: %v", err)
	}
	created, err = EnsureUserConfig(path)
	if err != nil {
		t.Fatalf("EnsureUserConfig returned error: %v", err)
	}
	if created {
		t.Fatal("expected second call to leave the file alone")
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "mine") {
		t.Fatal("expected user edits preserved")
	}
}

func TestUnreadableFileDegradesToEmptyLayer(t *testing.T) {
	layer, issues := userLayer("/test/config.toml", func(string) ([]byte, error) {
		return nil, os.ErrPermission
	}, 0)
	if layer.Len() != 0 {
		t.Fatalf("expected empty layer, got %d entries", layer.Len())
	}
	if len(issues) != 1 {
		t.Fatalf("expected one unavailable issue, got %v", issues)
	}
	var unavailable *SourceUnavailableError
	if !errors.As(issues[0].Err, &unavailable) {
		t.Fatalf("expected SourceUnavailableError, got %v", issues[0].Err)
	}
}
