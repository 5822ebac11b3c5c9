package config

import (
	"fmt"
	"sort"
	"strings"
)

// EnvLookup mirrors os.LookupEnv so tests can substitute a fixed mapping.
type EnvLookup func(string) (string, bool)

// envLayer scans environ for prefixed variables and builds the environment
// layer. Values are coerced by the declared type of their key; a value
// that fails to parse yields a per-key issue while the rest of the layer
// still loads. Prefixed names that map to no known key are rejected as
// issues too, never silently accepted.
func envLayer(environ []string) (*Layer, []Issue) {
	layer := NewLayer(SourceEnv)
	var issues []Issue

	names := make([]string, 0, len(environ))
	for _, entry := range environ {
		name, _, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		if name == UserConfigPathEnv {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	lookup := environLookup(environ)
	for _, name := range names {
		raw, _ := lookup(name)
		key, ok := KeyForEnvVar(name)
		if !ok {
			issues = append(issues, Issue{
				Source: SourceEnv,
				Err:    fmt.Errorf("%s does not map to any configuration key: %w", name, &UnknownKeyError{Key: name}),
			})
			continue
		}
		if err := layer.Set(key, raw); err != nil {
			issues = append(issues, Issue{
				Source: SourceEnv,
				Key:    key,
				Err:    &SourceMalformedError{Source: SourceEnv, Key: key, Raw: raw, Err: err},
			})
		}
	}
	return layer, issues
}

func environLookup(environ []string) EnvLookup {
	return func(name string) (string, bool) {
		prefix := name + "="
		// Last assignment wins, matching os.LookupEnv semantics on
		// duplicate entries.
		for i := len(environ) - 1; i >= 0; i-- {
			if strings.HasPrefix(environ[i], prefix) {
				return environ[i][len(prefix):], true
			}
		}
		return "", false
	}
}
