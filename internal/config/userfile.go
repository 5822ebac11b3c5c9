package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultUserConfigDir is the directory under the home directory that
// holds the user configuration file.
const DefaultUserConfigDir = ".openhands"

// DefaultUserConfigFile is the file name of the user configuration.
const DefaultUserConfigFile = "config.toml"

// UserConfigPath resolves the user configuration file path: the
// OPENHANDS_CONFIG variable when set, otherwise ~/.openhands/config.toml.
func UserConfigPath(env EnvLookup, homeDir func() (string, error)) (string, error) {
	if env != nil {
		if path, ok := env(UserConfigPathEnv); ok && path != "" {
			return path, nil
		}
	}
	home, err := homeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, DefaultUserConfigDir, DefaultUserConfigFile), nil
}

// EnsureUserConfig writes a template configuration file at path when none
// exists, creating parent directories as needed. Repeated calls with an
// existing file perform no write. It reports whether the file was created.
func EnsureUserConfig(path string) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("stat config file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return false, fmt.Errorf("ensure config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(renderTemplate()), 0o600); err != nil {
		return false, fmt.Errorf("write config template: %w", err)
	}
	return true, nil
}

// DefaultTemplate returns the TOML document written on first run.
func DefaultTemplate() string {
	return renderTemplate()
}

// renderTemplate renders the default value of every known key as a
// commented-out TOML document grouped by section. Commenting the entries
// out keeps a freshly created file an empty diff against the defaults.
func renderTemplate() string {
	var b strings.Builder
	b.WriteString("# OpenHands configuration.\n")
	b.WriteString("# Uncomment a setting to override its default value.\n")

	var lastSection string
	for _, key := range knownKeys {
		section, entry := splitKey(key)
		if section != lastSection {
			fmt.Fprintf(&b, "\n[%s]\n", section)
			lastSection = section
		}
		fmt.Fprintf(&b, "# %s = %s\n", entry, renderTOMLValue(keySpecs[key].Default))
	}
	return b.String()
}

// splitKey separates a dotted key into its TOML section and entry name,
// e.g. "runtime.local.project_root" -> ("runtime.local", "project_root").
func splitKey(key string) (section, entry string) {
	idx := strings.LastIndex(key, ".")
	return key[:idx], key[idx+1:]
}

func renderTOMLValue(v any) string {
	switch t := v.(type) {
	case string:
		return strconv.Quote(t)
	case bool:
		return strconv.FormatBool(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		s := strconv.FormatFloat(t, 'g', -1, 64)
		if !strings.ContainsAny(s, ".eE") {
			s += ".0"
		}
		return s
	default:
		return fmt.Sprintf("%v", v)
	}
}

// userLayer parses the TOML document at path into the user layer. A
// missing file is not a failure; an unreadable or slow file degrades to an
// empty layer with a SourceUnavailable issue; malformed or unknown
// entries become per-key issues while the rest of the file still loads.
func userLayer(path string, readFile func(string) ([]byte, error), timeout time.Duration) (*Layer, []Issue) {
	layer := NewLayer(SourceUser)

	data, err := readFileTimeout(path, readFile, timeout)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return layer, nil
		}
		return layer, []Issue{{
			Source: SourceUser,
			Err:    &SourceUnavailableError{Source: SourceUser, Path: path, Err: err},
		}}
	}

	var tree map[string]any
	if err := toml.Unmarshal(data, &tree); err != nil {
		return layer, []Issue{{
			Source: SourceUser,
			Err:    &SourceMalformedError{Source: SourceUser, Key: path, Err: err},
		}}
	}

	var issues []Issue
	flat := flattenTree("", tree)
	for _, key := range sortedKeys(flat) {
		if _, ok := keySpecs[key]; !ok {
			issues = append(issues, Issue{
				Source: SourceUser,
				Key:    key,
				Err:    &UnknownKeyError{Key: key},
			})
			continue
		}
		if err := layer.Set(key, flat[key]); err != nil {
			issues = append(issues, Issue{
				Source: SourceUser,
				Key:    key,
				Err:    &SourceMalformedError{Source: SourceUser, Key: key, Raw: fmt.Sprintf("%v", flat[key]), Err: err},
			})
		}
	}
	return layer, issues
}

// readFileTimeout bounds a file read. A read that hangs past the deadline
// surfaces as a resource fault instead of blocking the load.
func readFileTimeout(path string, readFile func(string) ([]byte, error), timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		return readFile(path)
	}
	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := readFile(path)
		done <- result{data, err}
	}()
	select {
	case r := <-done:
		return r.data, r.err
	case <-time.After(timeout):
		return nil, fmt.Errorf("read %s: timed out after %s", path, timeout)
	}
}

// flattenTree converts nested TOML tables to dotted keys. Leaf values stay
// untyped; Layer.Set coerces them.
func flattenTree(prefix string, tree map[string]any) map[string]any {
	flat := make(map[string]any)
	for name, v := range tree {
		key := name
		if prefix != "" {
			key = prefix + "." + name
		}
		if sub, ok := v.(map[string]any); ok {
			for k, sv := range flattenTree(key, sub) {
				flat[k] = sv
			}
			continue
		}
		flat[key] = v
	}
	return flat
}

// PersistValues merges values into the TOML document at path and rewrites
// it in place. Entries already present that the classification table does
// not know are preserved untouched for forward compatibility.
func PersistValues(path string, values map[string]any) error {
	tree, err := readTree(path)
	if err != nil {
		return err
	}
	for key, v := range values {
		setTree(tree, key, v)
	}
	return writeTree(path, tree)
}

// RemoveValues deletes the given keys from the TOML document at path and
// rewrites it, so the defaults (or lower layers) resolve for them again.
func RemoveValues(path string, keys []string) error {
	tree, err := readTree(path)
	if err != nil {
		return err
	}
	for _, key := range keys {
		deleteTree(tree, key)
	}
	return writeTree(path, tree)
}

func readTree(path string) (map[string]any, error) {
	tree := make(map[string]any)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return tree, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if err := toml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return tree, nil
}

func writeTree(path string, tree map[string]any) error {
	var buf bytes.Buffer
	buf.WriteString("# OpenHands configuration.\n\n")
	if err := toml.NewEncoder(&buf).Encode(tree); err != nil {
		return fmt.Errorf("encode config file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure config directory: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func setTree(tree map[string]any, key string, v any) {
	parts := strings.Split(key, ".")
	node := tree
	for _, part := range parts[:len(parts)-1] {
		sub, ok := node[part].(map[string]any)
		if !ok {
			sub = make(map[string]any)
			node[part] = sub
		}
		node = sub
	}
	node[parts[len(parts)-1]] = v
}

func deleteTree(tree map[string]any, key string) {
	parts := strings.Split(key, ".")
	node := tree
	for _, part := range parts[:len(parts)-1] {
		sub, ok := node[part].(map[string]any)
		if !ok {
			return
		}
		node = sub
	}
	delete(node, parts[len(parts)-1])
}
