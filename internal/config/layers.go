package config

import (
	"sort"
)

// Source names one configuration layer, in precedence order from lowest
// (default) to highest (cli).
type Source string

const (
	SourceDefault Source = "default"
	SourceUser    Source = "user"
	SourceEnv     Source = "environment"
	SourceCLI     Source = "cli"
)

// precedence lists the layers from lowest to highest. Resolution scans
// this order and the last layer defining a key wins.
var precedence = []Source{SourceDefault, SourceUser, SourceEnv, SourceCLI}

// Layer is one named mapping from key to typed value. Loaders populate a
// layer through Set and treat it as read-only afterwards; a resolution
// pass never mutates its input layers.
type Layer struct {
	source Source
	values map[string]any
}

// NewLayer returns an empty layer for the given source.
func NewLayer(source Source) *Layer {
	return &Layer{source: source, values: make(map[string]any)}
}

// Source returns the layer's source name.
func (l *Layer) Source() Source { return l.source }

// Set coerces raw to the declared type of key and stores it. Unknown keys
// and type mismatches are rejected without touching the rest of the layer.
func (l *Layer) Set(key string, raw any) error {
	v, err := Coerce(key, raw)
	if err != nil {
		return err
	}
	l.values[key] = v
	return nil
}

// Value returns the value stored for key, if any.
func (l *Layer) Value(key string) (any, bool) {
	v, ok := l.values[key]
	return v, ok
}

// Keys returns the sorted keys defined by this layer.
func (l *Layer) Keys() []string {
	keys := make([]string, 0, len(l.values))
	for key := range l.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of keys the layer defines.
func (l *Layer) Len() int { return len(l.values) }

// LayerFromMap builds a layer from an already-typed partial mapping, the
// shape change requests and programmatic overrides arrive in. The first
// unknown key or uncoercible value rejects the whole mapping.
func LayerFromMap(source Source, values map[string]any) (*Layer, error) {
	layer := NewLayer(source)
	for _, key := range sortedKeys(values) {
		if err := layer.Set(key, values[key]); err != nil {
			return nil, err
		}
	}
	return layer, nil
}

// defaultLayer synthesizes the fallback floor from the classification
// table. It covers every known key by construction.
func defaultLayer() *Layer {
	layer := NewLayer(SourceDefault)
	for key := range keySpecs {
		layer.values[key] = keySpecs[key].Default
	}
	return layer
}

// Layers bundles the four sources of one resolution pass.
type Layers struct {
	Default *Layer
	User    *Layer
	Env     *Layer
	CLI     *Layer
}

// ordered returns the non-nil layers in precedence order.
func (ls Layers) ordered() []*Layer {
	out := make([]*Layer, 0, 4)
	for _, layer := range []*Layer{ls.Default, ls.User, ls.Env, ls.CLI} {
		if layer != nil {
			out = append(out, layer)
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
