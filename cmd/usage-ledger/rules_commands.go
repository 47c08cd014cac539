package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/0xmhha/usage-ledger/pkg/categorizer"
	"github.com/0xmhha/usage-ledger/pkg/config"
	"github.com/0xmhha/usage-ledger/pkg/logger"
	"github.com/0xmhha/usage-ledger/pkg/rules"
	"github.com/0xmhha/usage-ledger/pkg/watcher"
)

// categorizerTarget lets a bare categorizer receive rule reloads.
type categorizerTarget struct {
	categorizer.Categorizer
}

func (c categorizerTarget) SwapRules(table *rules.Table) error { return c.Swap(table) }
func (c categorizerTarget) RulesVersion() string              { return c.Version() }

func newRulesCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Inspect, check and watch the category rule table",
	}

	cmd.AddCommand(newRulesShowCmd(opts), newRulesCheckCmd(opts), newRulesWatchCmd(opts))
	return cmd
}

func newRulesShowCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the active rule table as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			table, err := cfg.RulesTable()
			if err != nil {
				return err
			}

			data, err := yaml.Marshal(table)
			if err != nil {
				return fmt.Errorf("failed to marshal rule table: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# Source: %s\n", rulesSource(cfg))
			_, err = out.Write(data)
			return err
		},
	}
}

func newRulesCheckCmd(opts *globalOptions) *cobra.Command {
	var packages []string

	cmd := &cobra.Command{
		Use:   "check [file]",
		Short: "Validate a rule file against the category table",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.Rules.Path = args[0]
			}

			table, err := cfg.RulesTable()
			if err != nil {
				return err
			}

			cat, err := categorizer.New(categorizer.Config{
				Table:      table,
				Categories: cfg.Categories,
			}, logger.Noop())
			if err != nil {
				return fmt.Errorf("rule table rejected: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ok: rules %s (%d rules, default %s) from %s\n",
				table.Version, len(table.Rules), table.DefaultCategory, rulesSource(cfg))

			for _, pkg := range packages {
				printResolution(out, pkg, cat.Resolve(pkg))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&packages, "package", "p", nil, "classify these package names with the checked table")
	return cmd
}

func printResolution(out io.Writer, pkg string, r categorizer.Resolution) {
	rule := r.RuleName
	if rule == "" {
		rule = "(default)"
	}

	switch {
	case r.Excluded:
		fmt.Fprintf(out, "  %s: excluded by %s\n", pkg, rule)
	case r.Miss:
		fmt.Fprintf(out, "  %s: %s is not a category, counted as id %d (%s)\n", pkg, r.Category, r.CategoryID, rule)
	default:
		fmt.Fprintf(out, "  %s: %s (id %d, %s)\n", pkg, r.Category, r.CategoryID, rule)
	}
}

func newRulesWatchCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the rule file and report every reload until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if cfg.Rules.Path == "" {
				return fmt.Errorf("no rule file configured (set rules.path or %s)", config.EnvRules)
			}

			log := logger.New(cfg.LoggerConfig())
			table, err := cfg.RulesTable()
			if err != nil {
				return err
			}
			cat, err := categorizer.New(categorizer.Config{Table: table, Categories: cfg.Categories}, log)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			r, err := watcher.NewReloader(watcher.ReloaderConfig{
				Path:     cfg.Rules.Path,
				Target:   categorizerTarget{cat},
				Debounce: cfg.Rules.WatchDebounce,
				OnReload: func(version string, err error) {
					if err != nil {
						fmt.Fprintf(out, "rejected: %v\n", err)
						return
					}
					fmt.Fprintf(out, "reloaded: rules %s\n", version)
				},
			}, log)
			if err != nil {
				return err
			}
			defer func() {
				_ = r.Close()
			}()

			fmt.Fprintf(out, "watching %s (rules %s)\n", cfg.Rules.Path, cat.Version())
			return r.Run(cmd.Context())
		},
	}
}

// rulesSource describes where the active rule table comes from.
func rulesSource(cfg *config.Config) string {
	if cfg.Rules.Path == "" {
		return "built-in table"
	}
	return cfg.Rules.Path
}
