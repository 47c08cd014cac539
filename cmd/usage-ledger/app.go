package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/0xmhha/usage-ledger/pkg/config"
	"github.com/0xmhha/usage-ledger/pkg/display"
	"github.com/0xmhha/usage-ledger/pkg/logger"
	"github.com/0xmhha/usage-ledger/pkg/pipeline"
	"github.com/0xmhha/usage-ledger/pkg/store"
	"github.com/0xmhha/usage-ledger/pkg/usage"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
	format     string
	compact    bool
}

// session is an opened engine with everything it needs to be released.
type session struct {
	cfg    *config.Config
	loc    *time.Location
	log    logger.Logger
	store  store.Store
	engine pipeline.Engine
}

func (s *session) Close() error {
	engineErr := s.engine.Close()
	if err := s.store.Close(); err != nil {
		return err
	}
	return engineErr
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "usage-ledger",
		Short: "Categorized app-usage ledger with rollups, validation and repair",
		Long: `usage-ledger ingests app-usage session exports (JSONL), classifies each
package with a versioned rule table, and keeps hourly, daily, weekly and
monthly totals per category.

Configuration is read from --config, $USAGE_LEDGER_CONFIG, ./usage-ledger.yaml
or ~/.config/usage-ledger/config.yaml, in that order.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	flags.StringVarP(&opts.format, "format", "o", "", "output format (table, json, simple)")
	flags.BoolVar(&opts.compact, "compact", false, "compact output")

	root.AddCommand(
		newIngestCmd(opts),
		newAggregateCmd(opts),
		newValidateCmd(opts),
		newMigrateCmd(opts),
		newRepairCmd(opts),
		newSummaryCmd(opts),
		newRulesCmd(opts),
		newConfigCmd(opts),
	)

	return root
}

// loadConfig loads the configuration and applies flag overrides.
func (o *globalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.NewLoader(o.configPath).Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// open loads the configuration, opens the store and builds the engine.
func (o *globalOptions) open() (*session, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, err
	}

	log := logger.New(cfg.LoggerConfig())

	pcfg, err := cfg.PipelineConfig()
	if err != nil {
		return nil, err
	}

	st, err := store.Open(cfg.StoreConfig(), log.Named("store"))
	if err != nil {
		return nil, err
	}

	eng, err := pipeline.New(pcfg, st, log)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &session{
		cfg:    cfg,
		loc:    pcfg.Location,
		log:    log,
		store:  st,
		engine: eng,
	}, nil
}

// formatter builds the output formatter for w. The --format flag wins over
// the configured default; without either, terminals get tables.
func (o *globalOptions) formatter(cfg *config.Config, w io.Writer) (display.Formatter, error) {
	name := o.format
	if name == "" && cfg != nil {
		name = cfg.Display.DefaultFormat
	}

	f, isFile := w.(*os.File)
	tty := isFile && display.IsTerminal(f)

	format, err := display.ParseFormat(name, tty)
	if err != nil {
		return nil, err
	}

	width := 0
	if isFile {
		width = display.TerminalWidth(f)
	}

	compact := o.compact
	if cfg != nil && cfg.Display.Compact {
		compact = true
	}

	return display.New(display.Config{
		Format:  format,
		Compact: compact,
		Width:   width,
	}), nil
}

// resolveDate returns date, or today in loc when date is empty.
func resolveDate(date string, loc *time.Location) string {
	if date != "" {
		return date
	}
	return time.Now().In(loc).Format(usage.DateLayout)
}
