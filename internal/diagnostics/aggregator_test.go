package diagnostics

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opencfg/internal/config"
	"opencfg/internal/memory"
	"opencfg/internal/version"
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

func newTestEngine(t *testing.T, env envMap) *config.Engine {
	t.Helper()
	engine, err := config.NewEngine(
		config.WithConfigPath(filepath.Join(t.TempDir(), "config.toml")),
		config.WithEnv(env.Lookup),
		config.WithEnviron(env.Environ),
	)
	require.NoError(t, err)
	return engine
}

func staticVersions(context.Context) version.Info {
	return version.Info{Version: "test", GitSHA: "deadbeef", GoVersion: "go1.24"}
}

type failingStore struct{}

func (failingStore) Summary(context.Context) (memory.Summary, error) {
	return memory.Summary{}, errors.New("store exploded")
}

func TestReportSections(t *testing.T) {
	engine := newTestEngine(t, envMap{})
	aggregator := NewAggregator(engine,
		WithVersions(staticVersions),
		WithTTL(0),
	)

	report := aggregator.Report(context.Background())
	require.NotNil(t, report)

	assert.Equal(t, "docker", report.Runtime.Environment)
	assert.False(t, report.Runtime.RestartPending)
	assert.Equal(t, engine.UserConfigPath(), report.Paths.UserConfig)
	assert.True(t, report.Paths.UserConfigExists)
	assert.False(t, report.Memory.Connected)
	assert.Empty(t, report.Validation.Errors)
	assert.Equal(t, "deadbeef", report.Versions.GitSHA)
	assert.True(t, report.Healthy())
}

func TestReportListsEnvOverrideNamesOnly(t *testing.T) {
	engine := newTestEngine(t, envMap{
		"OPENHANDS_LLM_API_KEY": "sekret-value",
		"OPENHANDS_LLM_MODEL":   "gpt-4o",
	})
	aggregator := NewAggregator(engine, WithVersions(staticVersions), WithTTL(0))

	report := aggregator.Report(context.Background())
	assert.Equal(t, []string{"llm.api_key", "llm.model"}, report.EnvOverrides)

	encoded, err := json.Marshal(report)
	require.NoError(t, err)
	assert.NotContains(t, string(encoded), "sekret-value",
		"sensitive values must never appear in the report")
}

func TestReportShowsRestartPending(t *testing.T) {
	engine := newTestEngine(t, envMap{})
	_, err := engine.Apply(config.ChangeRequest{Values: map[string]any{
		"sandbox.platform": "linux/arm64",
	}})
	require.NoError(t, err)

	aggregator := NewAggregator(engine, WithVersions(staticVersions), WithTTL(0))
	report := aggregator.Report(context.Background())

	assert.True(t, report.Runtime.RestartPending)
	assert.Equal(t, []string{"sandbox.platform"}, report.Runtime.PendingKeys)
	assert.NotEmpty(t, report.Runtime.RestartHint)
}

func TestReportDegradesOnStoreFailure(t *testing.T) {
	engine := newTestEngine(t, envMap{})
	aggregator := NewAggregator(engine,
		WithVersions(staticVersions),
		WithStoreFactory(func(string, string) memory.Store { return failingStore{} }),
		WithTTL(0),
	)

	report := aggregator.Report(context.Background())
	require.NotNil(t, report, "a collaborator failure must not abort the report")
	assert.False(t, report.Memory.Connected)
	assert.Contains(t, report.Memory.Detail, "unreachable")
}

func TestReportNeverBlocksOnInvalidConfig(t *testing.T) {
	engine := newTestEngine(t, envMap{"OPENHANDS_LOGGING_LEVEL": "loud"})
	aggregator := NewAggregator(engine, WithVersions(staticVersions), WithTTL(0))

	report := aggregator.Report(context.Background())
	require.NotNil(t, report)
	assert.False(t, report.Healthy())
	assert.NotEmpty(t, report.Validation.Errors)
}

func TestReportCaching(t *testing.T) {
	engine := newTestEngine(t, envMap{})
	aggregator := NewAggregator(engine,
		WithVersions(staticVersions),
		WithTTL(time.Hour),
	)

	first := aggregator.Report(context.Background())
	second := aggregator.Report(context.Background())
	assert.Same(t, first, second, "reports inside the TTL are served from cache")

	uncached := NewAggregator(engine, WithVersions(staticVersions), WithTTL(0))
	a := uncached.Report(context.Background())
	b := uncached.Report(context.Background())
	assert.NotSame(t, a, b)
}
