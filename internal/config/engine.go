package config

import (
	"sync"
	"sync/atomic"
	"time"

	"opencfg/internal/logging"
)

// EventKind discriminates engine notifications.
type EventKind string

const (
	// EventHotChange announces live-applied keys; Keys enumerates
	// exactly the changed hot keys.
	EventHotChange EventKind = "hot_change"
	// EventRestartPending announces cold keys recorded as pending; the
	// running process keeps their previous values until a restart.
	EventRestartPending EventKind = "restart_pending"
)

// Event is one change notification delivered to subscribers.
type Event struct {
	Kind EventKind `json:"kind"`
	Keys []string  `json:"keys"`
	Time time.Time `json:"time"`
}

// Instrumentation receives engine measurements. The HTTP server wires a
// Prometheus implementation; everything else runs with the no-op.
type Instrumentation interface {
	ApplyOutcome(outcome string)
	RestartPending(pending bool)
	ResolveDuration(d time.Duration)
}

type nopInstrumentation struct{}

func (nopInstrumentation) ApplyOutcome(string)           {}
func (nopInstrumentation) RestartPending(bool)           {}
func (nopInstrumentation) ResolveDuration(time.Duration) {}

// WithInstrumentation attaches an Instrumentation to the engine.
func WithInstrumentation(instr Instrumentation) Option {
	return func(o *loadOptions) { o.instr = instr }
}

// WithClock substitutes the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(o *loadOptions) { o.clock = now }
}

// ChangeRequest is a partial update submitted by a caller. Persist merges
// the values into the user configuration file; otherwise they live as an
// in-memory override at CLI precedence.
type ChangeRequest struct {
	Values  map[string]any `json:"values"`
	Persist bool           `json:"persist"`
}

// ApplyResult reports the outcome of one change request. AppliedKeys are
// the keys whose resolved value actually changed, including cold keys
// recorded as pending.
type ApplyResult struct {
	AppliedKeys     []string         `json:"applied_keys"`
	RequiresRestart bool             `json:"requires_restart"`
	Validation      ValidationResult `json:"validation"`
}

// Engine owns the process-wide effective configuration. Reads take an
// immutable snapshot reference and never observe partial application;
// change requests are serialized through one apply path. The engine never
// restarts the process itself: cold changes are recorded as pending and
// announced, nothing more.
type Engine struct {
	mu        sync.Mutex // serializes apply, reload, and layer mutation
	current   atomic.Pointer[EffectiveConfig]
	layers    Layers
	issues    []Issue
	overrides map[string]any
	userPath  string
	loadOpts  []Option

	pendingSnapshot *EffectiveConfig // full snapshot including cold values, guarded by mu
	pendingKeys     []string         // guarded by mu
	restartPending  atomic.Bool
	validation      ValidationResult // validation of the published state, guarded by mu

	subMu       sync.Mutex
	subscribers map[uint64]chan Event
	nextSubID   uint64

	logger logging.Logger
	instr  Instrumentation
	clock  func() time.Time
}

// NewEngine loads all sources, resolves, and publishes the initial
// snapshot. A snapshot with validation errors is still published: a
// process must be able to start, report its problems through diagnostics,
// and accept a fixing change request.
func NewEngine(opts ...Option) (*Engine, error) {
	options := loadOptions{clock: time.Now, instr: nopInstrumentation{}}
	for _, opt := range opts {
		opt(&options)
	}

	e := &Engine{
		loadOpts:    opts,
		overrides:   make(map[string]any),
		subscribers: make(map[uint64]chan Event),
		logger:      logging.OrNop(options.logger),
		instr:       options.instr,
		clock:       options.clock,
	}
	if e.clock == nil {
		e.clock = time.Now
	}
	if e.instr == nil {
		e.instr = nopInstrumentation{}
	}
	for k, v := range options.overrides {
		e.overrides[k] = v
	}

	result, err := Load(opts...)
	if err != nil {
		return nil, err
	}
	e.layers = result.Layers
	e.issues = result.Issues
	e.userPath = result.UserConfigPath

	start := e.clock()
	cfg := Resolve(e.layers)
	e.instr.ResolveDuration(e.clock().Sub(start))

	validation := Validate(cfg)
	foldIssues(e.issues, &validation)
	e.validation = validation
	e.current.Store(cfg)

	if !validation.OK() {
		e.logger.Warn("configuration loaded with %d validation errors", len(validation.Errors))
	}
	return e, nil
}

// Current returns the published snapshot. Callers may hold the reference
// as long as they like; it never mutates.
func (e *Engine) Current() *EffectiveConfig {
	return e.current.Load()
}

// Validation returns the validation result of the published state.
func (e *Engine) Validation() ValidationResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.validation
}

// Issues returns the load issues recorded with the published state.
func (e *Engine) Issues() []Issue {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Issue, len(e.issues))
	copy(out, e.issues)
	return out
}

// UserConfigPath returns the resolved path of the user configuration file.
func (e *Engine) UserConfigPath() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.userPath
}

// RestartPending reports whether a cold change is waiting for a restart.
func (e *Engine) RestartPending() bool {
	return e.restartPending.Load()
}

// PendingKeys returns the cold keys recorded as pending, sorted.
func (e *Engine) PendingKeys() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.pendingKeys))
	copy(out, e.pendingKeys)
	return out
}

// PendingSnapshot returns the snapshot recorded with a pending cold
// change, carrying the values the process picks up on its next restart.
// Nil when no restart is pending.
func (e *Engine) PendingSnapshot() *EffectiveConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pendingSnapshot
}

// Apply validates and applies a change request. The request is atomic: on
// any validation or persistence error the published snapshot and the user
// file are untouched, AppliedKeys is empty, and a validation failure
// returns a *ValidationError carrying the full accumulated list. A request
// whose values leave every resolved value unchanged is a successful no-op.
func (e *Engine) Apply(req ChangeRequest) (ApplyResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	candidate := e.layers
	var mergedOverrides map[string]any
	var commit func() error
	if req.Persist {
		user, err := cloneLayerWith(e.layers.User, req.Values)
		if err != nil {
			e.instr.ApplyOutcome("rejected")
			return ApplyResult{}, err
		}
		candidate.User = user
		commit = func() error {
			if perr := PersistValues(e.userPath, req.Values); perr != nil {
				e.logger.Error("persist config values: %v", perr)
				return perr
			}
			return nil
		}
	} else {
		mergedOverrides = make(map[string]any, len(e.overrides)+len(req.Values))
		for k, v := range e.overrides {
			mergedOverrides[k] = v
		}
		for k, v := range req.Values {
			mergedOverrides[k] = v
		}
		cli, err := LayerFromMap(SourceCLI, mergedOverrides)
		if err != nil {
			e.instr.ApplyOutcome("rejected")
			return ApplyResult{}, err
		}
		candidate.CLI = cli
	}

	result, err := e.applyLocked(candidate, commit)
	if err != nil {
		return result, err
	}

	if req.Persist {
		e.layers.User = candidate.User
	} else {
		e.overrides = mergedOverrides
		e.layers.CLI = candidate.CLI
	}
	return result, nil
}

// Reload re-reads the file and environment sources and runs the apply
// protocol against the result. The watcher calls this on debounced file
// changes; external edits then publish hot diffs or restart-pending state
// exactly like an explicit change request.
func (e *Engine) Reload() (ApplyResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	opts := append([]Option{}, e.loadOpts...)
	opts = append(opts, WithOverrides(e.overrides))
	loaded, err := Load(opts...)
	if err != nil {
		return ApplyResult{}, err
	}
	e.issues = loaded.Issues

	result, err := e.applyLocked(loaded.Layers, nil)
	if err != nil {
		return result, err
	}
	e.layers = loaded.Layers
	return result, nil
}

// applyLocked runs steps 2-4 of the apply protocol against candidate
// layers. The commit hook, when set, runs after validation passes and
// before anything is published, so a failed commit leaves no partial
// state. Callers hold e.mu.
func (e *Engine) applyLocked(candidate Layers, commit func() error) (ApplyResult, error) {
	start := e.clock()
	next := Resolve(candidate)
	e.instr.ResolveDuration(e.clock().Sub(start))

	validation := Validate(next)
	foldIssues(e.issues, &validation)
	if !validation.OK() {
		e.instr.ApplyOutcome("rejected")
		return ApplyResult{Validation: validation}, &ValidationError{Result: validation}
	}

	if commit != nil {
		if err := commit(); err != nil {
			e.instr.ApplyOutcome("failed")
			return ApplyResult{Validation: validation}, err
		}
	}

	previous := e.current.Load()
	changed := previous.Diff(next)
	if len(changed) == 0 {
		e.validation = validation
		e.clearPendingLocked()
		e.instr.ApplyOutcome("noop")
		return ApplyResult{Validation: validation}, nil
	}

	hot, cold := partitionByClass(changed)
	if len(cold) == 0 {
		e.current.Store(next)
		e.validation = validation
		e.clearPendingLocked()
		e.notify(Event{Kind: EventHotChange, Keys: hot, Time: e.clock()})
		e.instr.ApplyOutcome("applied")
		e.logger.Info("applied hot configuration change: %v", hot)
		return ApplyResult{AppliedKeys: changed, Validation: validation}, nil
	}

	// Cold keys stay at their previous values in the published snapshot
	// until a restart; the full candidate is recorded as pending. The
	// pending set is the cold part of the published-vs-candidate diff, so
	// reverting a pending key drops it out again.
	published := previous.withKeysFrom(next, hot)
	e.current.Store(published)
	e.validation = validation
	e.pendingSnapshot = next
	e.pendingKeys = cold
	e.restartPending.Store(true)
	e.instr.RestartPending(true)
	e.instr.ApplyOutcome("applied")

	if len(hot) > 0 {
		e.notify(Event{Kind: EventHotChange, Keys: hot, Time: e.clock()})
	}
	e.notify(Event{Kind: EventRestartPending, Keys: cold, Time: e.clock()})
	e.logger.Warn("configuration change requires restart: %v", cold)
	return ApplyResult{AppliedKeys: changed, RequiresRestart: true, Validation: validation}, nil
}

// clearPendingLocked drops restart-pending bookkeeping once the candidate
// no longer differs from the published snapshot on any cold key.
func (e *Engine) clearPendingLocked() {
	if e.pendingSnapshot == nil && len(e.pendingKeys) == 0 {
		return
	}
	e.pendingSnapshot = nil
	e.pendingKeys = nil
	e.restartPending.Store(false)
	e.instr.RestartPending(false)
	e.logger.Info("pending restart cleared; no cold changes remain")
}

// DryRun resolves and validates a candidate change without publishing or
// persisting anything. Unknown keys and uncoercible values error; rule
// violations come back inside the result.
func (e *Engine) DryRun(values map[string]any) (ValidationResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	candidate := e.layers
	cli, err := cloneLayerWith(e.layers.CLI, values)
	if err != nil {
		return ValidationResult{}, err
	}
	candidate.CLI = cli

	validation := Validate(Resolve(candidate))
	foldIssues(e.issues, &validation)
	return validation, nil
}

// Resolve performs a fresh read-only pass over the sources with the
// engine's options and current overrides, without publishing anything.
// Diagnostics uses this to catch external file edits since the last load.
func (e *Engine) Resolve() (*EffectiveConfig, ValidationResult, error) {
	e.mu.Lock()
	opts := append([]Option{}, e.loadOpts...)
	opts = append(opts, WithOverrides(e.overrides), WithoutTemplate())
	e.mu.Unlock()

	cfg, validation, _, err := LoadResolved(opts...)
	return cfg, validation, err
}

// Subscribe registers a notification channel. The returned function
// unregisters it. Delivery is best effort: a subscriber that is not
// draining its channel misses events instead of blocking the apply path.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	id := e.nextSubID
	e.nextSubID++
	ch := make(chan Event, 8)
	e.subscribers[id] = ch
	return ch, func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		if existing, ok := e.subscribers[id]; ok {
			delete(e.subscribers, id)
			close(existing)
		}
	}
}

func (e *Engine) notify(event Event) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

func partitionByClass(keys []string) (hot, cold []string) {
	for _, key := range keys {
		if keySpecs[key].Class == Cold {
			cold = append(cold, key)
		} else {
			hot = append(hot, key)
		}
	}
	return hot, cold
}

// withKeysFrom clones c and takes the value and winning source of the
// given keys from other.
func (c *EffectiveConfig) withKeysFrom(other *EffectiveConfig, keys []string) *EffectiveConfig {
	out := &EffectiveConfig{
		values:  make(map[string]any, len(c.values)),
		sources: make(map[string]Source, len(c.sources)),
	}
	for key, v := range c.values {
		out.values[key] = v
		out.sources[key] = c.sources[key]
	}
	for _, key := range keys {
		out.values[key] = other.values[key]
		out.sources[key] = other.sources[key]
	}
	return out
}

// cloneLayerWith copies a layer and sets the given values on the copy.
func cloneLayerWith(layer *Layer, values map[string]any) (*Layer, error) {
	out := NewLayer(layer.Source())
	for key, v := range layer.values {
		out.values[key] = v
	}
	for _, key := range sortedKeys(values) {
		if err := out.Set(key, values[key]); err != nil {
			return nil, err
		}
	}
	return out, nil
}
