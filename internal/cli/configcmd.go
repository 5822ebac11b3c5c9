package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"opencfg/internal/config"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and modify the effective configuration",
	}
	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigGetCommand())
	cmd.AddCommand(newConfigSetCommand())
	cmd.AddCommand(newConfigUnsetCommand())
	cmd.AddCommand(newConfigResetCommand())
	cmd.AddCommand(newConfigValidateCommand())
	return cmd
}

func newConfigShowCommand() *cobra.Command {
	var showSources bool
	var format string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine(cmd)
			if err != nil {
				return err
			}
			cfg := engine.Current()

			switch format {
			case "", "table":
				printTable(cmd, cfg, showSources)
				return nil
			case "json":
				return encodeValues(cmd, cfg, func(v any) ([]byte, error) {
					return json.MarshalIndent(v, "", "  ")
				})
			case "yaml":
				return encodeValues(cmd, cfg, yaml.Marshal)
			case "toml":
				return encodeValues(cmd, cfg, func(v any) ([]byte, error) {
					var buf bytes.Buffer
					err := toml.NewEncoder(&buf).Encode(v)
					return buf.Bytes(), err
				})
			default:
				return fmt.Errorf("unknown format %q (expected table, json, yaml, or toml)", format)
			}
		},
	}
	cmd.Flags().BoolVar(&showSources, "sources", false, "show the winning source of every key")
	cmd.Flags().StringVar(&format, "format", "table", "output format: table, json, yaml, or toml")
	return cmd
}

func printTable(cmd *cobra.Command, cfg *config.EffectiveConfig, showSources bool) {
	out := cmd.OutOrStdout()
	for _, key := range cfg.Keys() {
		v, _ := cfg.Get(key)
		line := fmt.Sprintf("%s = %v", bold(key), v)
		if showSources {
			line += " " + gray(fmt.Sprintf("(%s)", cfg.Source(key)))
		}
		fmt.Fprintln(out, line)
	}
}

// encodeValues renders the resolved values as a nested document in the
// requested encoding.
func encodeValues(cmd *cobra.Command, cfg *config.EffectiveConfig, marshal func(any) ([]byte, error)) error {
	tree := make(map[string]any)
	for key, v := range cfg.Values() {
		setNested(tree, key, v)
	}
	data, err := marshal(tree)
	if err != nil {
		return fmt.Errorf("encode configuration: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), strings.TrimRight(string(data), "\n"))
	return nil
}

func setNested(tree map[string]any, key string, v any) {
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

func newConfigGetCommand() *cobra.Command {
	var showSource bool

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Print the resolved value of one key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if _, ok := config.Spec(key); !ok {
				return fmt.Errorf("unknown configuration key %q", key)
			}
			engine, err := newEngine(cmd)
			if err != nil {
				return err
			}
			cfg := engine.Current()
			v, _ := cfg.Get(key)
			if showSource {
				fmt.Fprintf(cmd.OutOrStdout(), "%v %s\n", v, gray(fmt.Sprintf("(%s)", cfg.Source(key))))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%v\n", v)
			return nil
		},
	}
	cmd.Flags().BoolVar(&showSource, "source", false, "also print the winning source")
	return cmd
}

func newConfigSetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Persist a value to the user config file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, raw := args[0], args[1]
			v, err := config.Coerce(key, raw)
			if err != nil {
				return err
			}

			engine, err := newEngine(cmd)
			if err != nil {
				return err
			}
			result, err := engine.Apply(config.ChangeRequest{
				Values:  map[string]any{key: v},
				Persist: true,
			})
			if err != nil {
				var validationErr *config.ValidationError
				if errors.As(err, &validationErr) {
					printValidation(cmd, result.Validation)
					return &exitError{code: 1, err: fmt.Errorf("change rejected: %s", err)}
				}
				return err
			}

			out := cmd.OutOrStdout()
			if len(result.AppliedKeys) == 0 {
				fmt.Fprintf(out, "%s already resolves to %v; nothing to apply\n", key, v)
				fmt.Fprintln(out, gray("the value was still written to the user config file"))
				return nil
			}
			fmt.Fprintf(out, "%s %s = %v\n", green("set"), key, v)
			if result.RequiresRestart {
				fmt.Fprintln(out, yellow("this setting takes effect after a restart"))
				fmt.Fprintln(out, gray(restartGuidance(engine.Current().String("runtime.environment"))))
			}
			return nil
		},
	}
	return cmd
}

func newConfigUnsetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "unset <key>",
		Short: "Remove a key from the user config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if _, ok := config.Spec(key); !ok {
				return fmt.Errorf("unknown configuration key %q", key)
			}
			engine, err := newEngine(cmd)
			if err != nil {
				return err
			}
			path := engine.UserConfigPath()
			if err := config.RemoveValues(path, []string{key}); err != nil {
				return err
			}
			result, err := engine.Reload()
			if err != nil {
				var validationErr *config.ValidationError
				if !errors.As(err, &validationErr) {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s from %s\n", green("removed"), key, path)
			if result.RequiresRestart {
				fmt.Fprintln(cmd.OutOrStdout(), yellow("this change takes effect after a restart"))
			}
			return nil
		},
	}
	return cmd
}

func newConfigResetCommand() *cobra.Command {
	var confirm bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Replace the user config file with the default template",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := newEngine(cmd)
			if err != nil {
				return err
			}
			path := engine.UserConfigPath()
			current, err := os.ReadFile(path)
			if err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("read config file: %w", err)
			}
			template := config.DefaultTemplate()

			if string(current) == template {
				fmt.Fprintln(cmd.OutOrStdout(), "config file already matches the defaults")
				return nil
			}

			dmp := diffmatchpatch.New()
			diffs := dmp.DiffMain(string(current), template, false)
			fmt.Fprintln(cmd.OutOrStdout(), dmp.DiffPrettyText(diffs))

			if !confirm {
				fmt.Fprintln(cmd.OutOrStdout(), yellow("re-run with --confirm to apply the reset shown above"))
				return nil
			}

			if len(current) > 0 {
				backup := path + ".bak"
				if err := os.WriteFile(backup, current, 0o600); err != nil {
					return fmt.Errorf("write backup: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", gray("backed up previous file to"), backup)
			}
			if err := os.WriteFile(path, []byte(template), 0o600); err != nil {
				return fmt.Errorf("write config file: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", green("reset"), path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirm, "confirm", false, "apply the reset instead of only showing the diff")
	return cmd
}

func newConfigValidateCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := engineOptions(cmd)
			if err != nil {
				return err
			}
			if file != "" {
				opts = append(opts, config.WithConfigPath(file))
			}
			opts = append(opts, config.WithoutTemplate())

			_, validation, _, err := config.LoadResolved(opts...)
			if err != nil {
				return err
			}
			printValidation(cmd, validation)
			if !validation.OK() {
				return &exitError{code: 1}
			}
			fmt.Fprintln(cmd.OutOrStdout(), green("configuration is valid"))
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "validate an alternate config file instead of the active one")
	return cmd
}

func printValidation(cmd *cobra.Command, result config.ValidationResult) {
	out := cmd.OutOrStdout()
	for _, problem := range result.Errors {
		fmt.Fprintf(out, "%s %s: %s\n", red("error"), bold(problem.Key), problem.Message)
	}
	for _, problem := range result.Warnings {
		fmt.Fprintf(out, "%s %s: %s\n", yellow("warning"), bold(problem.Key), problem.Message)
	}
}

func restartGuidance(environment string) string {
	switch environment {
	case "docker":
		return "restart with: docker compose restart openhands"
	case "local":
		return "stop the process and start it again to pick up the change"
	default:
		return "restart the runtime to pick up the change"
	}
}
