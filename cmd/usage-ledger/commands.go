package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/0xmhha/usage-ledger/pkg/display"
	"github.com/0xmhha/usage-ledger/pkg/pipeline"
	"github.com/0xmhha/usage-ledger/pkg/watcher"
)

// errInconsistent is returned by validate --strict when a category does not
// reconcile.
var errInconsistent = errors.New("inconsistent categories found")

func newIngestCmd(opts *globalOptions) *cobra.Command {
	var (
		noAggregate bool
		follow      bool
	)

	cmd := &cobra.Command{
		Use:   "ingest [files...]",
		Short: "Ingest JSONL session exports and aggregate the affected dates",
		Long: `Ingest reads new lines of the given export files, or of every *.jsonl file
in the configured inboxes when no file is given. Read positions are kept, so
running it again only picks up appended lines.

With --follow the inboxes are watched and changed files are ingested as they
are written. A configured rule file is hot-reloaded while following.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			defer func() {
				_ = s.Close()
			}()

			out := cmd.OutOrStdout()
			f, err := opts.formatter(s.cfg, out)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if err := ingestAndReport(ctx, s.engine, args, !noAggregate, f, out); err != nil {
				return err
			}

			if !follow {
				return nil
			}
			return followInboxes(ctx, s, !noAggregate, f, out)
		},
	}

	cmd.Flags().BoolVar(&noAggregate, "no-aggregate", false, "store sessions without rebuilding aggregates")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep watching the inboxes for new exports")

	return cmd
}

// ingestAndReport ingests paths, prints the result and aggregates every
// date that received rows.
func ingestAndReport(ctx context.Context, eng pipeline.Engine, paths []string, aggregate bool, f display.Formatter, out io.Writer) error {
	res, err := eng.IngestFiles(ctx, paths)
	if err != nil {
		return err
	}
	if err := f.FormatIngest(out, res); err != nil {
		return err
	}

	if !aggregate {
		return nil
	}
	for _, date := range res.Dates {
		run, err := eng.RunAggregation(ctx, date)
		if err != nil {
			return fmt.Errorf("aggregate %s: %w", date, err)
		}
		if err := f.FormatRun(out, run); err != nil {
			return err
		}
	}
	return nil
}

// followInboxes ingests inbox files as they change until ctx is cancelled.
func followInboxes(ctx context.Context, s *session, aggregate bool, f display.Formatter, out io.Writer) error {
	w, err := watcher.New(watcher.Config{
		DebounceInterval: s.cfg.Rules.WatchDebounce,
		Recursive:        true,
		Filter: func(path string) bool {
			return strings.EqualFold(filepath.Ext(path), ".jsonl")
		},
	}, s.log.Named("inbox-watcher"))
	if err != nil {
		return err
	}
	defer func() {
		_ = w.Close()
	}()

	if err := w.Start(ctx, s.cfg.Ingest.Inboxes); err != nil {
		return fmt.Errorf("failed to watch inboxes: %w", err)
	}

	if s.cfg.Rules.Path != "" {
		r, err := watcher.NewReloader(watcher.ReloaderConfig{
			Path:     s.cfg.Rules.Path,
			Target:   s.engine,
			Debounce: s.cfg.Rules.WatchDebounce,
		}, s.log)
		if err != nil {
			return err
		}
		defer func() {
			_ = r.Close()
		}()
		go func() {
			if err := r.Run(ctx); err != nil {
				s.log.Error("rule reloader stopped", "error", err)
			}
		}()
	}

	s.log.Info("following inboxes", "inboxes", s.cfg.Ingest.Inboxes)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.Events():
			if !ok {
				return nil
			}
			if event.Op == watcher.OpRemove || event.Op == watcher.OpRename || event.Op == watcher.OpChmod {
				continue
			}
			if err := ingestAndReport(ctx, s.engine, []string{event.Path}, aggregate, f, out); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.log.Error("ingestion failed", "path", event.Path, "error", err)
			}

		case err, ok := <-w.Errors():
			if !ok {
				return nil
			}
			if errors.Is(err, watcher.ErrCircuitBreakerOpen) {
				return err
			}
			s.log.Warn("inbox watcher error", "error", err)
		}
	}
}

func newAggregateCmd(opts *globalOptions) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "aggregate",
		Short: "Rebuild the hourly, daily, weekly and monthly aggregates of a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			defer func() {
				_ = s.Close()
			}()

			run, err := s.engine.RunAggregation(cmd.Context(), resolveDate(date, s.loc))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			f, err := opts.formatter(s.cfg, out)
			if err != nil {
				return err
			}
			return f.FormatRun(out, run)
		},
	}

	cmd.Flags().StringVarP(&date, "date", "d", "", "date to aggregate (YYYY-MM-DD, default today)")
	return cmd
}

func newValidateCmd(opts *globalOptions) *cobra.Command {
	var (
		date   string
		strict bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Compare stored totals with totals recomputed from raw sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			defer func() {
				_ = s.Close()
			}()

			reports, err := s.engine.RunValidation(cmd.Context(), resolveDate(date, s.loc))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			f, err := opts.formatter(s.cfg, out)
			if err != nil {
				return err
			}
			if err := f.FormatValidation(out, reports); err != nil {
				return err
			}

			if strict {
				for _, r := range reports {
					if !r.IsConsistent {
						return errInconsistent
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&date, "date", "d", "", "date to validate (YYYY-MM-DD, default today)")
	cmd.Flags().BoolVar(&strict, "strict", false, "exit with an error when any category is inconsistent")
	return cmd
}

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Rewrite legacy category ids in every stored table",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			defer func() {
				_ = s.Close()
			}()

			out := cmd.OutOrStdout()
			if check {
				needs, err := s.engine.NeedsMigration(cmd.Context())
				if err != nil {
					return err
				}
				answer := "no"
				if needs {
					answer = "yes"
				}
				_, err = fmt.Fprintf(out, "Migration needed: %s\n", answer)
				return err
			}

			result, err := s.engine.RunMigration(cmd.Context())
			f, fmtErr := opts.formatter(s.cfg, out)
			if fmtErr != nil {
				return fmtErr
			}
			if result != nil {
				if printErr := f.FormatMigration(out, result); printErr != nil {
					return printErr
				}
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "only report whether a migration is needed")
	return cmd
}

func newRepairCmd(opts *globalOptions) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "repair",
		Short: "Delete duplicate sessions and fix suspicious ones, then re-aggregate",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			defer func() {
				_ = s.Close()
			}()

			result, err := s.engine.Repair(cmd.Context(), resolveDate(date, s.loc))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			f, err := opts.formatter(s.cfg, out)
			if err != nil {
				return err
			}
			return f.FormatRepair(out, result)
		},
	}

	cmd.Flags().StringVarP(&date, "date", "d", "", "date to repair (YYYY-MM-DD, default today)")
	return cmd
}

func newSummaryCmd(opts *globalOptions) *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Print a diagnostics summary of a date",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open()
			if err != nil {
				return err
			}
			defer func() {
				_ = s.Close()
			}()

			summary, err := s.engine.Summary(cmd.Context(), resolveDate(date, s.loc))
			if err != nil {
				return err
			}

			_, err = fmt.Fprint(cmd.OutOrStdout(), summary)
			return err
		},
	}

	cmd.Flags().StringVarP(&date, "date", "d", "", "date to summarize (YYYY-MM-DD, default today)")
	return cmd
}
