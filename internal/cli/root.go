// Package cli implements the opencfg command tree.
package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"opencfg/internal/config"
	"opencfg/internal/logging"
	"opencfg/internal/version"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	gray   = color.New(color.FgHiBlack).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// exitError carries an explicit process exit code through RunE.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// NewRootCommand builds the opencfg command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "opencfg",
		Short:         "Configuration engine for the OpenHands agent platform",
		Long:          "Resolves the effective runtime configuration from defaults, the user config file,\nenvironment variables, and explicit overrides; applies changes and reports diagnostics.",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().String("config", "", "path to the user config file (default ~/.openhands/config.toml)")
	root.PersistentFlags().BoolP("verbose", "v", false, "verbose output")
	config.RegisterOverrideFlag(root.PersistentFlags())

	root.AddCommand(newConfigCommand())
	root.AddCommand(newDiagnoseCommand())
	root.AddCommand(newServeCommand())
	return root
}

// Execute runs the command tree and maps errors to exit codes.
func Execute() {
	root := NewRootCommand()
	if err := root.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			if exit.err != nil {
				fmt.Fprintln(os.Stderr, red(exit.err.Error()))
			}
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, red(err.Error()))
		os.Exit(1)
	}
}

// engineOptions assembles the engine load options from the persistent
// flags of any command in the tree.
func engineOptions(cmd *cobra.Command) ([]config.Option, error) {
	var opts []config.Option

	if path, err := cmd.Flags().GetString("config"); err == nil && path != "" {
		opts = append(opts, config.WithConfigPath(path))
	}

	overrides, err := config.OverridesFromFlags(cmd.Flags())
	if err != nil {
		return nil, err
	}
	if len(overrides) > 0 {
		opts = append(opts, config.WithOverrides(overrides))
	}

	if verbose, err := cmd.Flags().GetBool("verbose"); err == nil && verbose {
		opts = append(opts, config.WithLogger(logging.New(cmd.ErrOrStderr(), logging.LevelDebug, logging.FormatText)))
	}
	return opts, nil
}

// newEngine builds a configuration engine from the command's flags.
func newEngine(cmd *cobra.Command) (*config.Engine, error) {
	opts, err := engineOptions(cmd)
	if err != nil {
		return nil, err
	}
	return config.NewEngine(opts...)
}
