package diagnostics

import (
	"context"
	"os"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"opencfg/internal/config"
	"opencfg/internal/logging"
	"opencfg/internal/memory"
	"opencfg/internal/version"
)

const (
	defaultTTL  = 3 * time.Second
	cacheKey    = "report"
	memoryLimit = 2 * time.Second
)

// StoreFactory picks the project-memory store for a resolved runtime.
type StoreFactory func(environment, projectRoot string) memory.Store

// Aggregator builds diagnostics reports from the engine and its
// collaborators. Reports are cached for a short TTL so a polling UI does
// not re-resolve the sources on every request.
type Aggregator struct {
	engine   *config.Engine
	stores   StoreFactory
	versions func(ctx context.Context) version.Info
	cache    *expirable.LRU[string, *Report]
	logger   logging.Logger
	clock    func() time.Time
}

// AggregatorOption customises an Aggregator.
type AggregatorOption func(*Aggregator)

// WithTTL sets the report cache lifetime. Zero disables caching.
func WithTTL(ttl time.Duration) AggregatorOption {
	return func(a *Aggregator) {
		if ttl > 0 {
			a.cache = expirable.NewLRU[string, *Report](1, nil, ttl)
		} else {
			a.cache = nil
		}
	}
}

// WithStoreFactory substitutes project-memory store selection.
func WithStoreFactory(factory StoreFactory) AggregatorOption {
	return func(a *Aggregator) { a.stores = factory }
}

// WithVersions substitutes version collection.
func WithVersions(collect func(ctx context.Context) version.Info) AggregatorOption {
	return func(a *Aggregator) { a.versions = collect }
}

// WithLogger attaches a logger to the aggregator.
func WithLogger(logger logging.Logger) AggregatorOption {
	return func(a *Aggregator) { a.logger = logging.OrNop(logger) }
}

// WithClock substitutes the time source.
func WithClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) { a.clock = now }
}

// NewAggregator builds an Aggregator over the given engine.
func NewAggregator(engine *config.Engine, opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		engine:   engine,
		stores:   memory.ForConfig,
		versions: version.Collect,
		cache:    expirable.NewLRU[string, *Report](1, nil, defaultTTL),
		logger:   logging.Nop(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Report assembles the diagnostics document. It re-resolves the sources to
// catch external edits since the last load, publishes nothing, and never
// fails: a collaborator problem degrades its section instead.
func (a *Aggregator) Report(ctx context.Context) *Report {
	if a.cache != nil {
		if cached, ok := a.cache.Get(cacheKey); ok {
			return cached
		}
	}

	cfg, validation, err := a.engine.Resolve()
	if err != nil {
		// Fall back to the published state; the report must still render.
		a.logger.Warn("diagnostics re-resolution failed: %v", err)
		cfg = a.engine.Current()
		validation = a.engine.Validation()
	}

	environment := cfg.String("runtime.environment")
	projectRoot := cfg.String("runtime.local.project_root")

	report := &Report{
		GeneratedAt: a.clock(),
		Runtime: RuntimeSection{
			Environment:    environment,
			SandboxMode:    cfg.String("security.sandbox_mode"),
			RestartPending: a.engine.RestartPending(),
			PendingKeys:    a.engine.PendingKeys(),
		},
		Paths: PathsSection{
			UserConfig:  a.engine.UserConfigPath(),
			ProjectRoot: projectRoot,
		},
		Validation:   validation,
		EnvOverrides: cfg.EnvOverridden(),
	}
	if report.Runtime.RestartPending {
		report.Runtime.RestartHint = restartHint(environment)
	}
	if _, err := os.Stat(report.Paths.UserConfig); err == nil {
		report.Paths.UserConfigExists = true
	}

	report.Memory = a.memorySummary(ctx, environment, projectRoot)
	report.Versions = a.versions(ctx)

	if a.cache != nil {
		a.cache.Add(cacheKey, report)
	}
	return report
}

func (a *Aggregator) memorySummary(ctx context.Context, environment, projectRoot string) memory.Summary {
	ctx, cancel := context.WithTimeout(ctx, memoryLimit)
	defer cancel()

	store := a.stores(environment, projectRoot)
	summary, err := store.Summary(ctx)
	if err != nil {
		a.logger.Warn("memory store summary failed: %v", err)
		return memory.Disconnected("memory store unreachable: " + err.Error())
	}
	return summary
}
