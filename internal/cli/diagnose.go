package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"opencfg/internal/diagnostics"
)

func newDiagnoseCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Report configuration health and runtime diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine(cmd)
			if err != nil {
				return err
			}
			aggregator := diagnostics.NewAggregator(engine)
			report := aggregator.Report(cmd.Context())

			if asJSON {
				data, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(data))
			} else {
				verbose, _ := cmd.Flags().GetBool("verbose")
				printReport(cmd, report, verbose)
			}

			if !report.Healthy() {
				return &exitError{code: 2}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the report as JSON")
	return cmd
}

func printReport(cmd *cobra.Command, report *diagnostics.Report, verbose bool) {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, bold("Runtime"))
	fmt.Fprintf(out, "  environment:  %s\n", report.Runtime.Environment)
	fmt.Fprintf(out, "  sandbox mode: %s\n", report.Runtime.SandboxMode)
	if report.Runtime.RestartPending {
		fmt.Fprintf(out, "  %s %v\n", yellow("restart pending for:"), report.Runtime.PendingKeys)
		fmt.Fprintf(out, "  %s\n", gray(report.Runtime.RestartHint))
	}

	fmt.Fprintln(out, bold("Paths"))
	exists := red("missing")
	if report.Paths.UserConfigExists {
		exists = green("present")
	}
	fmt.Fprintf(out, "  user config: %s (%s)\n", report.Paths.UserConfig, exists)
	if report.Paths.ProjectRoot != "" {
		fmt.Fprintf(out, "  project root: %s\n", report.Paths.ProjectRoot)
	}

	fmt.Fprintln(out, bold("Project memory"))
	if report.Memory.Connected {
		fmt.Fprintf(out, "  %s %s at %s\n", green("connected:"), report.Memory.Backend, report.Memory.DBPath)
		if verbose {
			fmt.Fprintf(out, "  schema:  %s\n", report.Memory.SchemaVersion)
			fmt.Fprintf(out, "  events:  %d\n", report.Memory.EventsCount)
			fmt.Fprintf(out, "  files:   %d\n", report.Memory.FilesIndexed)
			if !report.Memory.LastEventTS.IsZero() {
				fmt.Fprintf(out, "  last event: %s\n", report.Memory.LastEventTS.Format(time.RFC3339))
			}
		}
	} else {
		fmt.Fprintf(out, "  %s %s\n", gray("not connected:"), report.Memory.Detail)
	}

	fmt.Fprintln(out, bold("Validation"))
	if len(report.Validation.Errors) == 0 && len(report.Validation.Warnings) == 0 {
		fmt.Fprintf(out, "  %s\n", green("no problems found"))
	}
	for _, problem := range report.Validation.Errors {
		fmt.Fprintf(out, "  %s %s: %s\n", red("error"), problem.Key, problem.Message)
	}
	for _, problem := range report.Validation.Warnings {
		fmt.Fprintf(out, "  %s %s: %s\n", yellow("warning"), problem.Key, problem.Message)
	}

	if len(report.EnvOverrides) > 0 {
		fmt.Fprintln(out, bold("Environment overrides"))
		for _, key := range report.EnvOverrides {
			fmt.Fprintf(out, "  %s\n", cyan(key))
		}
	}

	if verbose {
		fmt.Fprintln(out, bold("Versions"))
		fmt.Fprintf(out, "  version:   %s (%s)\n", report.Versions.Version, report.Versions.BuildDate)
		fmt.Fprintf(out, "  git:       %s @ %s\n", report.Versions.GitSHA, report.Versions.GitBranch)
		fmt.Fprintf(out, "  go:        %s\n", report.Versions.GoVersion)
	}
}
