// Package version reports build and source metadata for diagnostics.
package version

import (
	"context"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// Set at build time via -ldflags.
var (
	Version   = "dev"
	BuildDate = "unknown"
)

const gitTimeout = 5 * time.Second

// Info is the version section of a diagnostics report.
type Info struct {
	Version   string `json:"version"`
	BuildDate string `json:"build_date"`
	GitSHA    string `json:"git_sha"`
	GitBranch string `json:"git_branch"`
	GoVersion string `json:"go_version"`
}

// Collect gathers version metadata. Git lookups run with a bounded
// timeout and degrade to "unknown"; Collect never fails.
func Collect(ctx context.Context) Info {
	return Info{
		Version:   Version,
		BuildDate: BuildDate,
		GitSHA:    gitOutput(ctx, "rev-parse", "--short=8", "HEAD"),
		GitBranch: gitOutput(ctx, "rev-parse", "--abbrev-ref", "HEAD"),
		GoVersion: runtime.Version(),
	}
}

func gitOutput(ctx context.Context, args ...string) string {
	ctx, cancel := context.WithTimeout(ctx, gitTimeout)
	defer cancel()
	out, err := exec.CommandContext(ctx, "git", args...).Output()
	if err != nil {
		return "unknown"
	}
	s := strings.TrimSpace(string(out))
	if s == "" {
		return "unknown"
	}
	return s
}
