package config

import (
	"testing"
)

func TestDefaultsMatchDeclaredTypes(t *testing.T) {
	for _, key := range KnownKeys() {
		spec, _ := Spec(key)
		coerced, err := Coerce(key, spec.Default)
		if err != nil {
			t.Fatalf("default for %s does not coerce to %s: %v", key, spec.Type, err)
		}
		if coerced != spec.Default {
			t.Fatalf("default for %s changes under coercion: %v -> %v", key, spec.Default, coerced)
		}
	}
}

func TestEnvVarMappingRoundTrip(t *testing.T) {
	for _, key := range KnownKeys() {
		name := EnvVarFor(key)
		back, ok := KeyForEnvVar(name)
		if !ok || back != key {
			t.Fatalf("env mapping for %s does not round-trip: %s -> %s", key, name, back)
		}
	}
	if _, ok := KeyForEnvVar("OPENHANDS_BOGUS"); ok {
		t.Fatal("expected unknown variable not to map")
	}
}

func TestColdKeySet(t *testing.T) {
	cold := map[string]bool{
		"runtime.environment":             true,
		"runtime.local.project_root":      true,
		"sandbox.base_container_image":    true,
		"sandbox.runtime_container_image": true,
		"sandbox.platform":                true,
		"security.sandbox_mode":           true,
		"llm.api_base":                    true,
		"llm.base_url":                    true,
		"server.host":                     true,
		"server.port":                     true,
	}
	for _, key := range KnownKeys() {
		spec, _ := Spec(key)
		if (spec.Class == Cold) != cold[key] {
			t.Fatalf("unexpected classification for %s: %s", key, spec.Class)
		}
	}
}

func TestSensitiveKeys(t *testing.T) {
	for _, key := range []string{"llm.api_key", "security.jwt_secret"} {
		spec, ok := Spec(key)
		if !ok || !spec.Sensitive {
			t.Fatalf("expected %s to be marked sensitive", key)
		}
	}
}

func TestCoerceRejectsUnknownKey(t *testing.T) {
	if _, err := Coerce("nope.nothing", "x"); !IsUnknownKey(err) {
		t.Fatalf("expected unknown-key error, got %v", err)
	}
}
