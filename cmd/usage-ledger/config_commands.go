package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/0xmhha/usage-ledger/pkg/config"
)

func newConfigCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management (show, path, init)",
	}

	cmd.AddCommand(newConfigShowCmd(opts), newConfigPathCmd(opts), newConfigInitCmd())
	return cmd
}

// newConfigShowCmd displays the effective configuration. --format json
// prints JSON; anything else prints YAML.
func newConfigShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.format == "json" {
				data, err := json.MarshalIndent(cfg, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal config: %w", err)
				}
				_, err = fmt.Fprintln(out, string(data))
				return err
			}

			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}

			fmt.Fprintln(out, "# Current Configuration")
			fmt.Fprintln(out, "# Source:", configSource(opts))
			fmt.Fprintln(out)
			_, err = out.Write(data)
			return err
		},
	}
}

func newConfigPathCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Show configuration file search paths",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "Configuration file search paths (in order of precedence):")
			fmt.Fprintln(out)

			for i, p := range config.SearchPaths() {
				exists := "not found"
				if _, err := os.Stat(p); err == nil {
					exists = "found"
				}
				fmt.Fprintf(out, "  %d. %s [%s]\n", i+1, p, exists)
			}

			fmt.Fprintln(out)
			_, err := fmt.Fprintln(out, "Active configuration:", configSource(opts))
			return err
		},
	}
}

func newConfigInitCmd() *cobra.Command {
	var (
		force  bool
		output string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a configuration file with default values",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := output
			if path == "" {
				path = config.DefaultConfigPath()
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("configuration file already exists at %s (use --force to overwrite)", path)
			}

			if err := config.Save(config.Default(), path); err != nil {
				return err
			}

			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to: %s\n", path)
			return err
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	cmd.Flags().StringVar(&output, "output", "", "output path (default: ~/.config/usage-ledger/config.yaml)")
	return cmd
}

// configSource returns the path of the active configuration file.
func configSource(opts *globalOptions) string {
	if opts.configPath != "" {
		return opts.configPath
	}
	if p := config.FindConfigFile(); p != "" {
		return p
	}
	return "defaults (no config file found)"
}
