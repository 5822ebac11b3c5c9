package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Problem is one validation finding attached to a key.
type Problem struct {
	Key     string `json:"key"`
	Message string `json:"message"`
}

// ValidationResult accumulates every blocking error and advisory warning
// found in one pass over a snapshot. Empty Errors is the precondition for
// a configuration being usable.
type ValidationResult struct {
	Errors   []Problem `json:"errors"`
	Warnings []Problem `json:"warnings"`
}

// OK reports whether the result carries no blocking errors.
func (r ValidationResult) OK() bool { return len(r.Errors) == 0 }

func (r *ValidationResult) addError(key, format string, args ...any) {
	r.Errors = append(r.Errors, Problem{Key: key, Message: fmt.Sprintf(format, args...)})
}

func (r *ValidationResult) addWarning(key, format string, args ...any) {
	r.Warnings = append(r.Warnings, Problem{Key: key, Message: fmt.Sprintf(format, args...)})
}

// Validate runs every per-key rule plus the cross-key rules against a
// resolved snapshot. All rules run and their findings accumulate; nothing
// fails fast, so callers always see the complete list at once. Path
// accessibility probes are the only checks that leave the snapshot.
func Validate(cfg *EffectiveConfig) ValidationResult {
	var result ValidationResult

	for _, key := range knownKeys {
		spec := keySpecs[key]
		if spec.Check == nil {
			continue
		}
		v, _ := cfg.Get(key)
		if msg := spec.Check(v); msg != "" {
			result.addError(key, "%s", msg)
		}
	}

	validateLocalRuntime(cfg, &result)
	validateMountPrefixes(cfg, &result)
	validateSandboxImages(cfg, &result)

	return result
}

// validateLocalRuntime enforces the local-mode precondition: without an
// existing, readable, writable project root the local runtime cannot
// start, so its absence is an error rather than a warning.
func validateLocalRuntime(cfg *EffectiveConfig, result *ValidationResult) {
	if cfg.String("runtime.environment") != "local" {
		return
	}
	root := cfg.String("runtime.local.project_root")
	if root == "" {
		result.addError("runtime.local.project_root", "required when runtime.environment is local")
		return
	}
	if !filepath.IsAbs(root) {
		result.addWarning("runtime.local.project_root", "%s is not an absolute path", root)
	}
	info, err := os.Stat(root)
	if err != nil {
		result.addError("runtime.local.project_root", "%s does not exist", root)
		return
	}
	if !info.IsDir() {
		result.addError("runtime.local.project_root", "%s is not a directory", root)
		return
	}
	if err := checkAccess(root); err != nil {
		result.addError("runtime.local.project_root", "%s is not accessible: %v", root, err)
	}
}

// checkAccess probes read and write access to a directory by listing it
// and creating a throwaway entry.
func checkAccess(dir string) error {
	if _, err := os.ReadDir(dir); err != nil {
		return fmt.Errorf("not readable")
	}
	probe, err := os.CreateTemp(dir, ".openhands-access-*")
	if err != nil {
		return fmt.Errorf("not writable")
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return nil
}

// validateMountPrefixes checks that path-mapping prefixes are configured
// as a pair; one without the other silently maps nothing.
func validateMountPrefixes(cfg *EffectiveConfig, result *ValidationResult) {
	host := cfg.String("runtime.local.mount_host_prefix")
	container := cfg.String("runtime.local.mount_container_prefix")
	if (host == "") != (container == "") {
		result.addError("runtime.local.mount_host_prefix",
			"mount_host_prefix and mount_container_prefix must be set together")
	}
}

func validateSandboxImages(cfg *EffectiveConfig, result *ValidationResult) {
	if cfg.String("runtime.environment") != "docker" {
		return
	}
	if cfg.String("sandbox.base_container_image") == "" && cfg.String("sandbox.runtime_container_image") == "" {
		result.addWarning("sandbox.base_container_image",
			"no container image configured; the bundled default image will be pulled")
	}
}

// foldIssues converts loader issues into validation findings so malformed
// source values surface alongside rule violations. Unavailable optional
// sources and unknown entries are advisory: an unknown file key may belong
// to a newer version and is preserved on rewrite, and a stray prefixed
// environment variable must not block unrelated change requests. Malformed
// values block.
func foldIssues(issues []Issue, result *ValidationResult) {
	for _, issue := range issues {
		key := issue.Key
		if key == "" {
			key = string(issue.Source)
		}
		var unavailable *SourceUnavailableError
		if errors.As(issue.Err, &unavailable) {
			result.addWarning(key, "%s", issue.Message())
			continue
		}
		if IsUnknownKey(issue.Err) {
			result.addWarning(key, "%s", issue.Message())
			continue
		}
		result.addError(key, "%s", issue.Message())
	}
}
