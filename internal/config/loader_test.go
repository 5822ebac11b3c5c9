package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

type envMap map[string]string

func (e envMap) Lookup(key string) (string, bool) {
	val, ok := e[key]
	if !ok || val == "" {
		return "", false
	}
	return val, true
}

func (e envMap) Environ() []string {
	entries := make([]string, 0, len(e))
	for key, val := range e {
		entries = append(entries, key+"="+val)
	}
	return entries
}

func loadLayers(t *testing.T, opts ...Option) LoadResult {
	t.Helper()
	result, err := Load(opts...)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	return result
}

func missingFile(string) ([]byte, error) { return nil, os.ErrNotExist }

func TestLoadDefaults(t *testing.T) {
	env := envMap{}
	result := loadLayers(t,
		WithEnv(env.Lookup),
		WithEnviron(env.Environ),
		WithFileReader(missingFile),
		WithHomeDir(func() (string, error) { return t.TempDir(), nil }),
		WithoutTemplate(),
	)
	cfg := Resolve(result.Layers)

	if got := cfg.String("runtime.environment"); got != "docker" {
		t.Fatalf("expected default runtime 'docker', got %q", got)
	}
	if got := cfg.Int("llm.timeout"); got != 60 {
		t.Fatalf("expected default llm.timeout 60, got %d", got)
	}
	for _, key := range KnownKeys() {
		if _, ok := cfg.Get(key); !ok {
			t.Fatalf("expected a value for %s, got none", key)
		}
		if got := cfg.Source(key); got != SourceDefault {
			t.Fatalf("expected default source for %s, got %s", key, got)
		}
	}
	if len(result.Issues) != 0 {
		t.Fatalf("expected no load issues, got %v", result.Issues)
	}
}

func TestLoadFromFile(t *testing.T) {
	fileData := []byte(`
[runtime]
environment = "local"

[runtime.local]
project_root = "/tmp/proj"

[llm]
model = "gpt-4o"
temperature = 0.7
`)
	env := envMap{}
	result := loadLayers(t,
		WithConfigPath("/test/config.toml"),
		WithEnv(env.Lookup),
		WithEnviron(env.Environ),
		WithFileReader(func(string) ([]byte, error) { return fileData, nil }),
		WithoutTemplate(),
	)
	cfg := Resolve(result.Layers)

	if got := cfg.String("runtime.environment"); got != "local" {
		t.Fatalf("expected runtime 'local' from file, got %q", got)
	}
	if got := cfg.String("llm.model"); got != "gpt-4o" {
		t.Fatalf("expected llm.model from file, got %q", got)
	}
	if got := cfg.Float("llm.temperature"); got != 0.7 {
		t.Fatalf("expected llm.temperature 0.7, got %v", got)
	}
	if got := cfg.Source("llm.model"); got != SourceUser {
		t.Fatalf("expected user source for llm.model, got %s", got)
	}
	if got := cfg.Source("llm.top_p"); got != SourceDefault {
		t.Fatalf("expected default source for untouched key, got %s", got)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	fileData := []byte("[llm]\nmodel = \"from-file\"\n")
	env := envMap{"OPENHANDS_LLM_MODEL": "from-env"}
	result := loadLayers(t,
		WithConfigPath("/test/config.toml"),
		WithEnv(env.Lookup),
		WithEnviron(env.Environ),
		WithFileReader(func(string) ([]byte, error) { return fileData, nil }),
		WithoutTemplate(),
	)
	cfg := Resolve(result.Layers)

	if got := cfg.String("llm.model"); got != "from-env" {
		t.Fatalf("expected env value to win over file, got %q", got)
	}
	if got := cfg.Source("llm.model"); got != SourceEnv {
		t.Fatalf("expected environment source, got %s", got)
	}
}

func TestOverridesTakePriority(t *testing.T) {
	env := envMap{"OPENHANDS_LLM_MODEL": "from-env"}
	result := loadLayers(t,
		WithConfigPath("/test/config.toml"),
		WithEnv(env.Lookup),
		WithEnviron(env.Environ),
		WithFileReader(missingFile),
		WithOverrides(map[string]any{"llm.model": "from-cli"}),
		WithoutTemplate(),
	)
	cfg := Resolve(result.Layers)

	if got := cfg.String("llm.model"); got != "from-cli" {
		t.Fatalf("expected cli override to win, got %q", got)
	}
	if got := cfg.Source("llm.model"); got != SourceCLI {
		t.Fatalf("expected cli source, got %s", got)
	}
}

func TestEnvTypedParsing(t *testing.T) {
	env := envMap{
		"OPENHANDS_SANDBOX_TIMEOUT":            "240",
		"OPENHANDS_AGENT_ENABLE_BROWSING":      "false",
		"OPENHANDS_LLM_TEMPERATURE":            "1.5",
		"OPENHANDS_SECURITY_CONFIRMATION_MODE": "1",
	}
	result := loadLayers(t,
		WithConfigPath("/test/config.toml"),
		WithEnv(env.Lookup),
		WithEnviron(env.Environ),
		WithFileReader(missingFile),
		WithoutTemplate(),
	)
	cfg := Resolve(result.Layers)

	if got := cfg.Int("sandbox.timeout"); got != 240 {
		t.Fatalf("expected sandbox.timeout 240, got %d", got)
	}
	if cfg.Bool("agent.enable_browsing") {
		t.Fatal("expected agent.enable_browsing false")
	}
	if got := cfg.Float("llm.temperature"); got != 1.5 {
		t.Fatalf("expected llm.temperature 1.5, got %v", got)
	}
	if !cfg.Bool("security.confirmation_mode") {
		t.Fatal("expected security.confirmation_mode true for value \"1\"")
	}
}

func TestMalformedEnvValueIsIsolated(t *testing.T) {
	env := envMap{
		"OPENHANDS_SANDBOX_TIMEOUT": "not-a-number",
		"OPENHANDS_LLM_MODEL":       "still-loads",
	}
	result := loadLayers(t,
		WithConfigPath("/test/config.toml"),
		WithEnv(env.Lookup),
		WithEnviron(env.Environ),
		WithFileReader(missingFile),
		WithoutTemplate(),
	)

	if len(result.Issues) != 1 {
		t.Fatalf("expected exactly one issue, got %d", len(result.Issues))
	}
	if result.Issues[0].Key != "sandbox.timeout" {
		t.Fatalf("expected issue on sandbox.timeout, got %q", result.Issues[0].Key)
	}

	cfg := Resolve(result.Layers)
	if got := cfg.String("llm.model"); got != "still-loads" {
		t.Fatalf("expected the rest of the env layer to load, got %q", got)
	}
	if got := cfg.Int("sandbox.timeout"); got != 120 {
		t.Fatalf("expected malformed value to fall back to default, got %d", got)
	}
}

func TestUnknownEnvVarRejected(t *testing.T) {
	env := envMap{"OPENHANDS_NO_SUCH_SETTING": "x"}
	result := loadLayers(t,
		WithConfigPath("/test/config.toml"),
		WithEnv(env.Lookup),
		WithEnviron(env.Environ),
		WithFileReader(missingFile),
		WithoutTemplate(),
	)
	if len(result.Issues) != 1 {
		t.Fatalf("expected one issue for unknown variable, got %d", len(result.Issues))
	}
	if !IsUnknownKey(result.Issues[0].Err) {
		t.Fatalf("expected an unknown-key issue, got %v", result.Issues[0].Err)
	}
}

func TestUnknownFileKeyRejected(t *testing.T) {
	fileData := []byte("[llm]\nmodel = \"ok\"\nfuture_setting = 3\n")
	env := envMap{}
	result := loadLayers(t,
		WithConfigPath("/test/config.toml"),
		WithEnv(env.Lookup),
		WithEnviron(env.Environ),
		WithFileReader(func(string) ([]byte, error) { return fileData, nil }),
		WithoutTemplate(),
	)
	if len(result.Issues) != 1 {
		t.Fatalf("expected one issue, got %v", result.Issues)
	}
	if result.Issues[0].Key != "llm.future_setting" {
		t.Fatalf("expected issue on llm.future_setting, got %q", result.Issues[0].Key)
	}
	cfg := Resolve(result.Layers)
	if got := cfg.String("llm.model"); got != "ok" {
		t.Fatalf("expected known keys to load, got %q", got)
	}
}

func TestConfigPathFromEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "alt.toml")
	if err := os.WriteFile(path, []byte("[llm]\nmodel = \"alt\"\n"), 0o600); err != nil {
		t.Fatalf("write alt config: %v", err)
	}

	env := envMap{"OPENHANDS_CONFIG": path}
	result := loadLayers(t,
		WithEnv(env.Lookup),
		WithEnviron(env.Environ),
	)
	if result.UserConfigPath != path {
		t.Fatalf("expected config path %q, got %q", path, result.UserConfigPath)
	}
	cfg := Resolve(result.Layers)
	if got := cfg.String("llm.model"); got != "alt" {
		t.Fatalf("expected model from alternate file, got %q", got)
	}
}

func TestFirstRunCreatesTemplate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")
	env := envMap{}

	result := loadLayers(t,
		WithConfigPath(path),
		WithEnv(env.Lookup),
		WithEnviron(env.Environ),
	)
	if !result.CreatedConfig {
		t.Fatal("expected first load to create the config file")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected template file to exist: %v", err)
	}
	if !strings.Contains(string(data), "[runtime]") {
		t.Fatalf("expected template to contain a runtime section, got:\n%s", data)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat template: %v", err)
	}
	first := info.ModTime()

	// The template is an empty diff against the defaults.
	cfg := Resolve(result.Layers)
	if result.Layers.User.Len() != 0 {
		t.Fatalf("expected template to define no overrides, got %d", result.Layers.User.Len())
	}
	if got := cfg.Source("runtime.environment"); got != SourceDefault {
		t.Fatalf("expected defaults after first run, got source %s", got)
	}

	second := loadLayers(t,
		WithConfigPath(path),
		WithEnv(env.Lookup),
		WithEnviron(env.Environ),
	)
	if second.CreatedConfig {
		t.Fatal("expected second load to leave the existing file alone")
	}
	info, err = os.Stat(path)
	if err != nil {
		t.Fatalf("stat template after second load: %v", err)
	}
	if !info.ModTime().Equal(first) {
		t.Fatal("expected second load not to rewrite the file")
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	fileData := []byte("[llm]\nmodel = \"pinned\"\n")
	env := envMap{"OPENHANDS_SANDBOX_TIMEOUT": "90"}
	opts := []Option{
		WithConfigPath("/test/config.toml"),
		WithEnv(env.Lookup),
		WithEnviron(env.Environ),
		WithFileReader(func(string) ([]byte, error) { return fileData, nil }),
		WithoutTemplate(),
	}

	first := Resolve(loadLayers(t, opts...).Layers)
	second := Resolve(loadLayers(t, opts...).Layers)
	if !first.Equal(second) {
		t.Fatal("expected identical inputs to resolve identically")
	}
}
