package config

import (
	"os"
	"time"

	"opencfg/internal/logging"
)

type loadOptions struct {
	configPath  string
	env         EnvLookup
	environ     func() []string
	readFile    func(string) ([]byte, error)
	homeDir     func() (string, error)
	overrides   map[string]any
	readTimeout time.Duration
	logger      logging.Logger
	skipEnsure  bool

	// engine-only settings, ignored by Load
	instr Instrumentation
	clock func() time.Time
}

// Option customises a load pass. Tests substitute the environment, the
// filesystem, and the home directory through these.
type Option func(*loadOptions)

// WithConfigPath points the user layer at an explicit file instead of the
// resolved default path.
func WithConfigPath(path string) Option {
	return func(o *loadOptions) { o.configPath = path }
}

// WithEnv substitutes the environment variable lookup.
func WithEnv(lookup EnvLookup) Option {
	return func(o *loadOptions) { o.env = lookup }
}

// WithEnviron substitutes the full-environment listing the scanner walks.
func WithEnviron(environ func() []string) Option {
	return func(o *loadOptions) { o.environ = environ }
}

// WithFileReader substitutes the file reader used for the user layer.
func WithFileReader(readFile func(string) ([]byte, error)) Option {
	return func(o *loadOptions) { o.readFile = readFile }
}

// WithHomeDir substitutes home directory resolution.
func WithHomeDir(homeDir func() (string, error)) Option {
	return func(o *loadOptions) { o.homeDir = homeDir }
}

// WithOverrides supplies an already-typed partial mapping as the CLI
// layer, the highest-precedence source.
func WithOverrides(values map[string]any) Option {
	return func(o *loadOptions) { o.overrides = values }
}

// WithReadTimeout bounds the user-file read. Zero disables the bound.
func WithReadTimeout(timeout time.Duration) Option {
	return func(o *loadOptions) { o.readTimeout = timeout }
}

// WithLogger attaches a logger to the load pass.
func WithLogger(logger logging.Logger) Option {
	return func(o *loadOptions) { o.logger = logger }
}

// WithoutTemplate skips first-run template creation. Read-only passes
// (diagnostics re-resolution, validate --file) use this so they stay free
// of side effects.
func WithoutTemplate() Option {
	return func(o *loadOptions) { o.skipEnsure = true }
}

// LoadResult carries the four loaded layers plus everything a caller
// needs to reason about where they came from.
type LoadResult struct {
	Layers         Layers
	Issues         []Issue
	UserConfigPath string
	CreatedConfig  bool
}

// Load reads all four configuration sources and returns their layers.
// Recoverable problems (missing optional file, malformed entries, unknown
// keys) are accumulated as issues; the returned error is reserved for
// conditions that leave no usable layer set, such as an unresolvable user
// config path.
func Load(opts ...Option) (LoadResult, error) {
	options := loadOptions{
		env:         os.LookupEnv,
		environ:     os.Environ,
		readFile:    os.ReadFile,
		homeDir:     os.UserHomeDir,
		readTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(&options)
	}
	logger := logging.OrNop(options.logger)

	var result LoadResult
	result.Layers.Default = defaultLayer()

	path := options.configPath
	if path == "" {
		resolved, err := UserConfigPath(options.env, options.homeDir)
		if err != nil {
			return result, err
		}
		path = resolved
	}
	result.UserConfigPath = path

	if !options.skipEnsure {
		created, err := EnsureUserConfig(path)
		if err != nil {
			result.Issues = append(result.Issues, Issue{
				Source: SourceUser,
				Err:    &SourceUnavailableError{Source: SourceUser, Path: path, Err: err},
			})
		} else if created {
			logger.Info("created user config template at %s", path)
			result.CreatedConfig = true
		}
	}

	user, userIssues := userLayer(path, options.readFile, options.readTimeout)
	result.Layers.User = user
	result.Issues = append(result.Issues, userIssues...)

	env, envIssues := envLayer(options.environ())
	result.Layers.Env = env
	result.Issues = append(result.Issues, envIssues...)

	if len(options.overrides) > 0 {
		cli, err := LayerFromMap(SourceCLI, options.overrides)
		if err != nil {
			return result, err
		}
		result.Layers.CLI = cli
	} else {
		result.Layers.CLI = NewLayer(SourceCLI)
	}

	for _, issue := range result.Issues {
		logger.Warn("config load issue: %s", issue.Message())
	}
	return result, nil
}

// LoadResolved is the common read path: load all sources, resolve, and
// validate, folding load issues into the validation result.
func LoadResolved(opts ...Option) (*EffectiveConfig, ValidationResult, LoadResult, error) {
	result, err := Load(opts...)
	if err != nil {
		return nil, ValidationResult{}, result, err
	}
	cfg := Resolve(result.Layers)
	validation := Validate(cfg)
	foldIssues(result.Issues, &validation)
	return cfg, validation, result, nil
}
