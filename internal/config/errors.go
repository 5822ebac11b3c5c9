package config

import (
	"errors"
	"fmt"
)

// SourceUnavailableError reports a configuration source that could not be
// read at all (missing required file, unreadable path, timed-out read).
// For optional sources the loader proceeds with an empty layer and records
// the error as an issue instead of failing.
type SourceUnavailableError struct {
	Source Source
	Path   string
	Err    error
}

func (e *SourceUnavailableError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s source unavailable: %s: %v", e.Source, e.Path, e.Err)
	}
	return fmt.Sprintf("%s source unavailable: %v", e.Source, e.Err)
}

func (e *SourceUnavailableError) Unwrap() error { return e.Err }

// SourceMalformedError reports a value that was present in a source but
// could not be parsed or coerced to the declared type of its key. Malformed
// values are accumulated per key; they never abort loading of the rest of
// the layer.
type SourceMalformedError struct {
	Source Source
	Key    string
	Raw    string
	Err    error
}

func (e *SourceMalformedError) Error() string {
	return fmt.Sprintf("%s value for %s is malformed: %v", e.Source, e.Key, e.Err)
}

func (e *SourceMalformedError) Unwrap() error { return e.Err }

// UnknownKeyError reports an attempt to read or write a key that is absent
// from the classification table. The offending write is rejected; the rest
// of the snapshot is unaffected.
type UnknownKeyError struct {
	Key string
}

func (e *UnknownKeyError) Error() string {
	return fmt.Sprintf("unknown configuration key %q", e.Key)
}

// ValidationError aggregates the blocking problems of a ValidationResult.
// Apply returns it when a change request is rejected.
type ValidationError struct {
	Result ValidationResult
}

func (e *ValidationError) Error() string {
	n := len(e.Result.Errors)
	if n == 1 {
		return fmt.Sprintf("validation failed: %s: %s", e.Result.Errors[0].Key, e.Result.Errors[0].Message)
	}
	return fmt.Sprintf("validation failed with %d errors", n)
}

// IsUnknownKey reports whether err wraps an UnknownKeyError.
func IsUnknownKey(err error) bool {
	var unknown *UnknownKeyError
	return errors.As(err, &unknown)
}

// Issue records one non-fatal problem encountered while loading sources.
// Issues surface through validation and diagnostics rather than aborting
// the load.
type Issue struct {
	Source Source `json:"source"`
	Key    string `json:"key,omitempty"`
	Err    error  `json:"-"`
}

// Message renders the issue for reports and API payloads.
func (i Issue) Message() string {
	if i.Err == nil {
		return ""
	}
	return i.Err.Error()
}
