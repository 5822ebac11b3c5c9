package config

import (
	"github.com/spf13/cast"
)

// EffectiveConfig is one fully merged snapshot: exactly one value per
// known key, each annotated with the layer it resolved from. Snapshots
// are immutable once built; every resolution pass yields a fresh one.
type EffectiveConfig struct {
	values  map[string]any
	sources map[string]Source
}

// Resolve merges the given layers by precedence into a new snapshot. For
// every key in the classification table the highest-precedence layer that
// defines a value wins; a key present in no layer takes its default, so
// the output is always total over the key universe. Resolution is a pure
// function of the layer contents.
func Resolve(layers Layers) *EffectiveConfig {
	cfg := &EffectiveConfig{
		values:  make(map[string]any, len(keySpecs)),
		sources: make(map[string]Source, len(keySpecs)),
	}
	ordered := layers.ordered()
	for key, spec := range keySpecs {
		cfg.values[key] = spec.Default
		cfg.sources[key] = SourceDefault
		for _, layer := range ordered {
			if v, ok := layer.Value(key); ok {
				cfg.values[key] = v
				cfg.sources[key] = layer.Source()
			}
		}
	}
	return cfg
}

// Get returns the resolved value for key. Unknown keys report false.
func (c *EffectiveConfig) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Source returns the layer the value for key resolved from.
func (c *EffectiveConfig) Source(key string) Source {
	return c.sources[key]
}

// Keys returns the sorted key universe of the snapshot.
func (c *EffectiveConfig) Keys() []string {
	return KnownKeys()
}

// String returns the value for key as a string. Missing or mistyped keys
// yield the zero value; the classification table guarantees neither for
// known keys.
func (c *EffectiveConfig) String(key string) string {
	return cast.ToString(c.values[key])
}

// Bool returns the value for key as a bool.
func (c *EffectiveConfig) Bool(key string) bool {
	return cast.ToBool(c.values[key])
}

// Int returns the value for key as an int64.
func (c *EffectiveConfig) Int(key string) int64 {
	return cast.ToInt64(c.values[key])
}

// Float returns the value for key as a float64.
func (c *EffectiveConfig) Float(key string) float64 {
	return cast.ToFloat64(c.values[key])
}

// Equal reports whether two snapshots carry identical values and winning
// sources for every key.
func (c *EffectiveConfig) Equal(other *EffectiveConfig) bool {
	if other == nil {
		return false
	}
	for key := range keySpecs {
		if c.values[key] != other.values[key] || c.sources[key] != other.sources[key] {
			return false
		}
	}
	return true
}

// Diff returns the sorted keys whose resolved value differs between c and
// other. Winning-source changes that leave the value identical do not
// count; the apply protocol cares about effective values only.
func (c *EffectiveConfig) Diff(other *EffectiveConfig) []string {
	var changed []string
	for _, key := range knownKeys {
		if c.values[key] != other.values[key] {
			changed = append(changed, key)
		}
	}
	return changed
}

// Values returns a copy of the resolved mapping, for encoding and display.
func (c *EffectiveConfig) Values() map[string]any {
	out := make(map[string]any, len(c.values))
	for key, v := range c.values {
		out[key] = v
	}
	return out
}

// Sources returns a copy of the per-key winning-source mapping.
func (c *EffectiveConfig) Sources() map[string]Source {
	out := make(map[string]Source, len(c.sources))
	for key, source := range c.sources {
		out[key] = source
	}
	return out
}

// EnvOverridden returns the sorted keys whose value resolved from the
// environment layer. Diagnostics lists these names; values of sensitive
// keys are never echoed.
func (c *EffectiveConfig) EnvOverridden() []string {
	var keys []string
	for _, key := range knownKeys {
		if c.sources[key] == SourceEnv {
			keys = append(keys, key)
		}
	}
	return keys
}
