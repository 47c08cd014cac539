package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/0xmhha/usage-ledger/pkg/logger"
	"github.com/0xmhha/usage-ledger/pkg/rules"
)

// Reloader watches a rule table file and installs every valid revision
// into its target. An invalid revision is reported and the installed table
// stays in place.
type Reloader struct {
	config  ReloaderConfig
	path    string
	watcher Watcher
	logger  logger.Logger
}

// NewReloader creates a reloader for cfg.Path. The file's directory is
// watched so editors that replace the file by rename are followed.
func NewReloader(cfg ReloaderConfig, log logger.Logger) (*Reloader, error) {
	if cfg.Target == nil {
		return nil, ErrNoTarget
	}
	if cfg.Path == "" {
		return nil, ErrInvalidPath
	}
	if cfg.Debounce == 0 {
		cfg.Debounce = 500 * time.Millisecond
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 100 * time.Millisecond
	}

	path, err := filepath.Abs(expandHome(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPath, err)
	}
	base := filepath.Base(path)

	log = log.Named("rules-reloader")
	w, err := New(Config{
		DebounceInterval: cfg.Debounce,
		Filter: func(p string) bool {
			return filepath.Base(p) == base
		},
	}, log)
	if err != nil {
		return nil, err
	}

	return &Reloader{
		config:  cfg,
		path:    path,
		watcher: w,
		logger:  log.With("path", path),
	}, nil
}

// Run watches the rule file until ctx is cancelled. It returns nil on
// cancellation and an error when watching cannot start or the circuit
// breaker opens.
func (r *Reloader) Run(ctx context.Context) error {
	if err := r.watcher.Start(ctx, []string{filepath.Dir(r.path)}); err != nil {
		return fmt.Errorf("failed to watch rule file: %w", err)
	}
	defer func() {
		_ = r.watcher.Stop()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-r.watcher.Events():
			if !ok {
				return nil
			}
			if event.Op == OpChmod {
				continue
			}
			if event.Op == OpRemove || event.Op == OpRename {
				if _, err := os.Stat(r.path); os.IsNotExist(err) {
					r.logger.Warn("rule file removed, keeping installed table",
						"version", r.config.Target.RulesVersion())
					continue
				}
			}
			// Failures are reported through OnReload and the log.
			_ = r.Reload(ctx)

		case err, ok := <-r.watcher.Errors():
			if !ok {
				return nil
			}
			if errors.Is(err, ErrCircuitBreakerOpen) {
				return err
			}
			r.logger.Warn("watcher error", "error", err)
		}
	}
}

// Reload loads the rule file now and installs it.
func (r *Reloader) Reload(ctx context.Context) error {
	previous := r.config.Target.RulesVersion()

	table, err := r.load(ctx)
	if err == nil {
		err = r.config.Target.SwapRules(table)
	}
	if err != nil {
		r.logger.Error("rule reload rejected",
			"version", previous,
			"error", err)
		r.notify("", err)
		return err
	}

	r.logger.Info("rule table reloaded",
		"previous_version", previous,
		"version", table.Version,
		"rules", len(table.Rules))
	r.notify(table.Version, nil)
	return nil
}

// Close stops watching and releases resources.
func (r *Reloader) Close() error {
	return r.watcher.Close()
}

// load reads the rule file, retrying with doubling delays while it is
// unreadable or invalid.
func (r *Reloader) load(ctx context.Context) (*rules.Table, error) {
	delay := r.config.RetryDelay

	for attempt := 0; ; attempt++ {
		table, err := rules.Load(r.path)
		if err == nil {
			return table, nil
		}
		if errors.Is(err, rules.ErrRuleFileNotFound) || attempt >= r.config.MaxRetries {
			return nil, err
		}

		r.logger.Debug("rule load failed, retrying",
			"attempt", attempt+1,
			"delay", delay,
			"error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func (r *Reloader) notify(version string, err error) {
	if r.config.OnReload != nil {
		r.config.OnReload(version, err)
	}
}
