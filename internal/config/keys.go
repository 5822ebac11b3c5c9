package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cast"
)

// Class says whether a key can take effect in a running process or only
// after a full restart.
type Class string

const (
	// Hot keys are live-reloadable.
	Hot Class = "hot"
	// Cold keys require a restart to take effect.
	Cold Class = "cold"
)

// Type is the declared value type of a key. Every raw value from any
// source is coerced to this type before it enters a layer.
type Type string

const (
	TypeString Type = "string"
	TypeBool   Type = "bool"
	TypeInt    Type = "int"
	TypeFloat  Type = "float"
)

// KeySpec describes one configuration key: its type, restart class,
// default value, and optional per-key validation rule.
type KeySpec struct {
	Type      Type
	Class     Class
	Default   any
	Sensitive bool
	// Check validates a coerced value. It returns a human-readable
	// problem description, or "" when the value is acceptable.
	Check func(v any) string
}

// EnvPrefix is the fixed prefix of configuration environment variables.
const EnvPrefix = "OPENHANDS_"

// UserConfigPathEnv points the user layer at an alternate file. It is not
// itself a configuration key and is skipped by the environment scanner.
const UserConfigPathEnv = "OPENHANDS_CONFIG"

func enum(values ...string) func(any) string {
	return func(v any) string {
		s, _ := v.(string)
		for _, candidate := range values {
			if s == candidate {
				return ""
			}
		}
		return fmt.Sprintf("must be one of %s", strings.Join(values, ", "))
	}
}

func positiveInt(v any) string {
	n, _ := v.(int64)
	if n <= 0 {
		return "must be a positive integer"
	}
	return ""
}

func floatRange(low, high float64) func(any) string {
	return func(v any) string {
		f, _ := v.(float64)
		if f < low || f > high {
			return fmt.Sprintf("must be between %g and %g", low, high)
		}
		return ""
	}
}

func portRange(v any) string {
	n, _ := v.(int64)
	if n < 1 || n > 65535 {
		return "must be a valid TCP port (1-65535)"
	}
	return ""
}

// keySpecs is the classification table: the complete universe of keys the
// system ever reads or writes. It has no runtime mutation path so restart
// semantics stay auditable from this one table.
var keySpecs = map[string]KeySpec{
	"runtime.environment": {
		Type: TypeString, Class: Cold, Default: "docker",
		Check: enum("docker", "local", "remote"),
	},
	"runtime.local.project_root":           {Type: TypeString, Class: Cold, Default: ""},
	"runtime.local.mount_host_prefix":      {Type: TypeString, Class: Hot, Default: ""},
	"runtime.local.mount_container_prefix": {Type: TypeString, Class: Hot, Default: ""},

	"sandbox.base_container_image":    {Type: TypeString, Class: Cold, Default: "nikolaik/python-nodejs:python3.12-nodejs22"},
	"sandbox.runtime_container_image": {Type: TypeString, Class: Cold, Default: ""},
	"sandbox.platform":                {Type: TypeString, Class: Cold, Default: ""},
	"sandbox.timeout":                 {Type: TypeInt, Class: Hot, Default: int64(120), Check: positiveInt},

	"security.sandbox_mode": {
		Type: TypeString, Class: Cold, Default: "strict",
		Check: enum("strict", "permissive", "disabled"),
	},
	"security.confirmation_mode": {Type: TypeBool, Class: Hot, Default: false},
	"security.jwt_secret":        {Type: TypeString, Class: Hot, Default: "", Sensitive: true},

	"llm.model":             {Type: TypeString, Class: Hot, Default: "claude-sonnet-4-20250514"},
	"llm.api_key":           {Type: TypeString, Class: Hot, Default: "", Sensitive: true},
	"llm.api_base":          {Type: TypeString, Class: Cold, Default: ""},
	"llm.base_url":          {Type: TypeString, Class: Cold, Default: ""},
	"llm.temperature":       {Type: TypeFloat, Class: Hot, Default: 0.0, Check: floatRange(0, 2)},
	"llm.top_p":             {Type: TypeFloat, Class: Hot, Default: 1.0, Check: floatRange(0, 1)},
	"llm.timeout":           {Type: TypeInt, Class: Hot, Default: int64(60), Check: positiveInt},
	"llm.max_output_tokens": {Type: TypeInt, Class: Hot, Default: int64(4096), Check: positiveInt},

	"agent.enable_browsing": {Type: TypeBool, Class: Hot, Default: true},
	"agent.enable_editor":   {Type: TypeBool, Class: Hot, Default: true},
	"agent.enable_cmd":      {Type: TypeBool, Class: Hot, Default: true},
	"agent.memory_enabled":  {Type: TypeBool, Class: Hot, Default: false},

	"logging.level": {
		Type: TypeString, Class: Hot, Default: "info",
		Check: enum("debug", "info", "warn", "error"),
	},
	"logging.format": {
		Type: TypeString, Class: Hot, Default: "text",
		Check: enum("text", "json"),
	},

	"server.host": {Type: TypeString, Class: Cold, Default: "127.0.0.1"},
	"server.port": {Type: TypeInt, Class: Cold, Default: int64(3000), Check: portRange},
}

// knownKeys is the sorted key universe, computed once.
var knownKeys = func() []string {
	keys := make([]string, 0, len(keySpecs))
	for key := range keySpecs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}()

// envToKey maps the generated environment variable name of every key back
// to its dotted path. Generated from the table so type coercion and the
// name mapping share one source of truth.
var envToKey = func() map[string]string {
	m := make(map[string]string, len(keySpecs))
	for key := range keySpecs {
		m[EnvVarFor(key)] = key
	}
	return m
}()

// KnownKeys returns the sorted universe of configuration keys.
func KnownKeys() []string {
	out := make([]string, len(knownKeys))
	copy(out, knownKeys)
	return out
}

// Spec returns the KeySpec for key, or false when the key is unknown.
func Spec(key string) (KeySpec, bool) {
	spec, ok := keySpecs[key]
	return spec, ok
}

// EnvVarFor returns the environment variable name that maps to key, e.g.
// "runtime.environment" -> "OPENHANDS_RUNTIME_ENVIRONMENT".
func EnvVarFor(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// KeyForEnvVar resolves an environment variable name to its dotted key.
func KeyForEnvVar(name string) (string, bool) {
	key, ok := envToKey[name]
	return key, ok
}

// Coerce converts a raw value to the declared type of key. It rejects
// unknown keys and values that cannot represent the declared type.
func Coerce(key string, raw any) (any, error) {
	spec, ok := keySpecs[key]
	if !ok {
		return nil, &UnknownKeyError{Key: key}
	}
	switch spec.Type {
	case TypeString:
		return cast.ToStringE(raw)
	case TypeBool:
		return cast.ToBoolE(raw)
	case TypeInt:
		return cast.ToInt64E(raw)
	case TypeFloat:
		return cast.ToFloat64E(raw)
	default:
		return nil, fmt.Errorf("key %s has unsupported type %q", key, spec.Type)
	}
}
