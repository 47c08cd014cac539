package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/0xmhha/usage-ledger/pkg/logger"
	"github.com/0xmhha/usage-ledger/pkg/pipeline"
	"github.com/0xmhha/usage-ledger/pkg/rules"
	"github.com/0xmhha/usage-ledger/pkg/store"
)

// Location resolves Pipeline.TimeZone. Empty and "Local" mean time.Local.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Pipeline.TimeZone)
	if tz == "" || strings.EqualFold(tz, "local") {
		return time.Local, nil
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTimeZone, tz, err)
	}
	return loc, nil
}

// RulesTable loads the rule file, or returns the built-in table when no
// file is configured.
func (c *Config) RulesTable() (*rules.Table, error) {
	if c.Rules.Path == "" {
		return rules.Default(), nil
	}
	return rules.Load(c.Rules.Path)
}

// LoggerConfig returns the logger settings.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:  c.Logging.Level,
		Output: c.Logging.Output,
		Format: c.Logging.Format,
	}
}

// StoreConfig returns the database settings.
func (c *Config) StoreConfig() store.Config {
	return store.Config{
		Path:    c.Storage.DBPath,
		Timeout: c.Storage.LockTimeout,
	}
}

// PipelineConfig assembles the engine configuration, loading the time zone
// and the rule table.
func (c *Config) PipelineConfig() (pipeline.Config, error) {
	loc, err := c.Location()
	if err != nil {
		return pipeline.Config{}, err
	}

	table, err := c.RulesTable()
	if err != nil {
		return pipeline.Config{}, fmt.Errorf("failed to load rule table: %w", err)
	}

	return pipeline.Config{
		Location:     loc,
		Rules:        table,
		Categories:   c.Categories,
		Residency:    c.Residency,
		Anomaly:      c.Anomaly,
		Migration:    c.Migration,
		ToleranceSec: tolerance(c.Pipeline.ToleranceSec),
		Inboxes:      c.Ingest.Inboxes,
		MaxFileSize:  c.Ingest.MaxFileSize,
		MaxRetries:   c.Ingest.MaxRetries,
		RetryDelay:   c.Ingest.RetryDelay,
	}, nil
}

// tolerance copies an optional tolerance so the pipeline never aliases the
// loaded config.
func tolerance(sec *int) *int {
	if sec == nil {
		return nil
	}
	return intPtr(*sec)
}
