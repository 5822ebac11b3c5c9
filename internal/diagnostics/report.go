// Package diagnostics aggregates configuration state, validation results,
// and collaborator summaries into one read-only report.
package diagnostics

import (
	"time"

	"opencfg/internal/config"
	"opencfg/internal/memory"
	"opencfg/internal/version"
)

// Report is the full diagnostics document. Every section is filled on a
// best-effort basis; a failing collaborator degrades its own section and
// never suppresses the rest.
type Report struct {
	GeneratedAt  time.Time               `json:"generated_at"`
	Runtime      RuntimeSection          `json:"runtime"`
	Paths        PathsSection            `json:"paths"`
	Memory       memory.Summary          `json:"memory"`
	Validation   config.ValidationResult `json:"validation"`
	EnvOverrides []string                `json:"env_overrides"`
	Versions     version.Info            `json:"versions"`
}

// RuntimeSection describes the selected runtime and any pending restart.
type RuntimeSection struct {
	Environment    string   `json:"environment"`
	SandboxMode    string   `json:"sandbox_mode"`
	RestartPending bool     `json:"restart_pending"`
	PendingKeys    []string `json:"pending_keys,omitempty"`
	RestartHint    string   `json:"restart_hint,omitempty"`
}

// PathsSection lists the filesystem locations the engine resolved.
type PathsSection struct {
	UserConfig       string `json:"user_config"`
	UserConfigExists bool   `json:"user_config_exists"`
	ProjectRoot      string `json:"project_root,omitempty"`
}

// Healthy reports whether the validation section carries no errors.
func (r *Report) Healthy() bool {
	return len(r.Validation.Errors) == 0
}

// restartHint tells the operator how to restart for the selected runtime.
func restartHint(environment string) string {
	switch environment {
	case "docker":
		return "run: docker compose restart openhands"
	case "local":
		return "stop the process and start it again"
	case "remote":
		return "restart the remote runtime from its control plane"
	default:
		return ""
	}
}
