package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

const overrideFlagName = "override"

// RegisterOverrideFlag adds the repeatable --override key=value flag that
// feeds the CLI layer.
func RegisterOverrideFlag(fs *pflag.FlagSet) {
	fs.StringArrayP(overrideFlagName, "o", nil,
		"override a configuration key for this invocation (key=value, repeatable)")
}

// OverridesFromFlags parses the --override values of a flag set into a
// typed partial mapping suitable for WithOverrides. The first unknown key
// or uncoercible value rejects the whole set.
func OverridesFromFlags(fs *pflag.FlagSet) (map[string]any, error) {
	pairs, err := fs.GetStringArray(overrideFlagName)
	if err != nil {
		return nil, err
	}
	if len(pairs) == 0 {
		return nil, nil
	}
	overrides := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid override %q: expected key=value", pair)
		}
		key = strings.TrimSpace(key)
		v, err := Coerce(key, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid override %q: %w", pair, err)
		}
		overrides[key] = v
	}
	return overrides, nil
}
