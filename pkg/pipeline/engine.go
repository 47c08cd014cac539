package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/0xmhha/usage-ledger/pkg/aggregator"
	"github.com/0xmhha/usage-ledger/pkg/anomaly"
	"github.com/0xmhha/usage-ledger/pkg/categorizer"
	"github.com/0xmhha/usage-ledger/pkg/discovery"
	"github.com/0xmhha/usage-ledger/pkg/ingest"
	"github.com/0xmhha/usage-ledger/pkg/logger"
	"github.com/0xmhha/usage-ledger/pkg/migration"
	"github.com/0xmhha/usage-ledger/pkg/parser"
	"github.com/0xmhha/usage-ledger/pkg/residency"
	"github.com/0xmhha/usage-ledger/pkg/rules"
	"github.com/0xmhha/usage-ledger/pkg/store"
	"github.com/0xmhha/usage-ledger/pkg/usage"
	"github.com/0xmhha/usage-ledger/pkg/validator"
)

// engine implements the Engine interface.
type engine struct {
	store       store.Store
	categorizer categorizer.Categorizer
	detector    anomaly.Detector
	aggregator  aggregator.Aggregator
	validator   validator.Validator
	migration   migration.Engine
	reader      ingest.Reader
	converter   *ingest.Converter
	discoverer  discovery.Discoverer
	loc         *time.Location
	logger      logger.Logger

	// mu is held shared by ingestion and aggregation and exclusively by
	// migration and repair.
	mu sync.RWMutex

	datesMu sync.Mutex
	dates   map[string]*sync.Mutex
}

// New builds an engine over st.
func New(cfg Config, st store.Store, log logger.Logger) (Engine, error) {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = categorizer.DefaultCategories()
	}
	if cfg.Residency.High == nil && cfg.Residency.Medium == nil {
		cfg.Residency = residencyDefaults(cfg.Residency)
	}
	if cfg.Anomaly.Overrides == nil {
		cfg.Anomaly.Overrides = anomaly.DefaultOverrides()
	}
	cfg.Anomaly.Location = cfg.Location
	if cfg.Migration.Location == nil {
		cfg.Migration.Location = cfg.Location
	}

	cat, err := categorizer.New(categorizer.Config{Table: cfg.Rules, Categories: cfg.Categories}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create categorizer: %w", err)
	}

	det := anomaly.New(cfg.Anomaly, residency.New(cfg.Residency), log)
	agg := aggregator.New(aggregator.Config{Location: cfg.Location}, st, cat, det, log)
	val := validator.New(validator.Config{Location: cfg.Location, ToleranceSec: cfg.ToleranceSec}, st, cat, det, log)

	mig, err := migration.New(cfg.Migration, st, cat, agg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration engine: %w", err)
	}

	rd, err := ingest.NewReader(ingest.ReaderConfig{
		PositionStore: store.NewRepository(st),
		Parser:        parser.NewWithConfig(parser.Config{MaxFileSize: cfg.MaxFileSize}, log),
		MaxRetries:    cfg.MaxRetries,
		RetryDelay:    cfg.RetryDelay,
		MaxFileSize:   cfg.MaxFileSize,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create reader: %w", err)
	}

	return &engine{
		store:       st,
		categorizer: cat,
		detector:    det,
		aggregator:  agg,
		validator:   val,
		migration:   mig,
		reader:      rd,
		converter:   ingest.NewConverter(cat, cfg.Location, log),
		discoverer:  discovery.New(cfg.Inboxes, log.Named("discovery")),
		loc:         cfg.Location,
		logger:      log.Named("pipeline"),
		dates:       make(map[string]*sync.Mutex),
	}, nil
}

// Ingest implements Engine.Ingest.
func (e *engine) Ingest(ctx context.Context, tuples []parser.SessionTuple) (*IngestResult, error) {
	result := &IngestResult{}
	if err := e.ingest(ctx, tuples, result, nil); err != nil {
		return nil, err
	}
	return result, nil
}

// IngestFiles implements Engine.IngestFiles.
func (e *engine) IngestFiles(ctx context.Context, paths []string) (*IngestResult, error) {
	if len(paths) == 0 {
		files, err := e.discoverer.Discover()
		if err != nil {
			return nil, fmt.Errorf("failed to discover exports: %w", err)
		}
		for _, f := range files {
			paths = append(paths, f.Path)
		}
	}

	result := &IngestResult{}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		batch, err := e.reader.Read(ctx, path)
		if err != nil {
			e.logger.Warn("failed to read export", "path", path, "error", err)
			result.Errors = append(result.Errors, fmt.Errorf("%s: %w", path, err))
			continue
		}

		result.Files++
		result.Lines += batch.Lines
		result.Skipped += batch.Skipped
		for _, lineErr := range batch.Errors {
			e.logger.Debug("skipped line", "path", path, "error", lineErr)
		}

		commit := func(repo *store.Repository) error {
			return e.reader.CommitTo(repo, path, batch.Offset)
		}
		if err := e.ingest(ctx, batch.Tuples, result, commit); err != nil {
			return result, fmt.Errorf("%s: %w", path, err)
		}
	}

	e.logger.Info("ingestion complete",
		"files", result.Files,
		"lines", result.Lines,
		"skipped", result.Skipped,
		"sessions", result.Sessions,
		"timers", result.Timers,
		"dates", len(result.Dates))

	return result, nil
}

// ingest converts and stores tuples in one transaction, folding counters
// into result. A non-nil commit runs last inside the same transaction.
func (e *engine) ingest(ctx context.Context, tuples []parser.SessionTuple, result *IngestResult, commit func(repo *store.Repository) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	converted := e.converter.Convert(tuples)
	dates := converted.Dates()

	e.mu.RLock()
	defer e.mu.RUnlock()
	unlock := e.lockDates(dates)
	defer unlock()

	err := e.store.Update(func(tx store.KV) error {
		repo := store.NewRepository(tx)
		for _, s := range converted.Sessions {
			if _, err := repo.InsertRawSession(s); err != nil {
				return err
			}
		}
		for _, t := range converted.Timers {
			if _, err := repo.InsertTimerSession(t); err != nil {
				return err
			}
		}
		if commit != nil {
			return commit(repo)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store sessions: %w", err)
	}

	result.Sessions += len(converted.Sessions)
	result.Timers += len(converted.Timers)
	result.Excluded += converted.Excluded
	result.Rejected += converted.Rejected
	result.Misses += converted.Misses
	result.Dates = mergeDates(result.Dates, dates)

	return nil
}

// RunAggregation implements Engine.RunAggregation.
func (e *engine) RunAggregation(ctx context.Context, date string) (*aggregator.RunResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	unlock := e.lockDates([]string{date})
	defer unlock()

	return e.aggregator.Run(ctx, date)
}

// RunValidation implements Engine.RunValidation.
func (e *engine) RunValidation(ctx context.Context, date string) ([]usage.ValidationReport, error) {
	return e.validator.Validate(ctx, date)
}

// RunMigration implements Engine.RunMigration.
func (e *engine) RunMigration(ctx context.Context) (*usage.MigrationResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.migration.ExecuteFullMigration(ctx)
}

// NeedsMigration implements Engine.NeedsMigration.
func (e *engine) NeedsMigration(ctx context.Context) (bool, error) {
	return e.migration.NeedsMigration(ctx)
}

// Repair implements Engine.Repair.
func (e *engine) Repair(ctx context.Context, date string) (*usage.RepairResult, error) {
	if _, err := usage.ParseDate(date, e.loc); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	sessions, err := e.countedSessions(date)
	if err != nil {
		return nil, err
	}
	dupes, err := e.migration.RepairDuplicates(ctx, e.detector.DetectDuplicates(sessions))
	if err != nil {
		return dupes, err
	}

	sessions, err = e.countedSessions(date)
	if err != nil {
		return dupes, err
	}
	flagged, err := e.migration.RepairSuspicious(ctx, e.detector.DetectSuspicious(sessions))
	if err != nil {
		return flagged, err
	}

	result := &usage.RepairResult{
		RunID:             dupes.RunID,
		Actions:           append(dupes.Actions, flagged.Actions...),
		DatesReaggregated: mergeDates(dupes.DatesReaggregated, flagged.DatesReaggregated),
	}

	e.logger.Info("repair complete",
		"date", date,
		"run_id", result.RunID,
		"actions", len(result.Actions))

	return result, nil
}

// countedSessions returns the raw sessions of date that the current rule
// table does not exclude.
func (e *engine) countedSessions(date string) ([]usage.RawUsageSession, error) {
	raw, err := store.NewRepository(e.store).RawSessions(date)
	if err != nil {
		return nil, fmt.Errorf("failed to load raw sessions: %w", err)
	}

	counted := raw[:0]
	for _, s := range raw {
		if !e.categorizer.IsExcluded(s.PackageName) {
			counted = append(counted, s)
		}
	}
	return counted, nil
}

// SwapRules implements Engine.SwapRules.
func (e *engine) SwapRules(table *rules.Table) error {
	return e.categorizer.Swap(table)
}

// RulesVersion implements Engine.RulesVersion.
func (e *engine) RulesVersion() string {
	return e.categorizer.Version()
}

// Close implements Engine.Close.
func (e *engine) Close() error {
	return e.reader.Close()
}

// lockDates locks the mutex of every date in sorted order and returns the
// matching unlock function.
func (e *engine) lockDates(dates []string) func() {
	sorted := append([]string(nil), dates...)
	sort.Strings(sorted)

	locks := make([]*sync.Mutex, 0, len(sorted))
	for i, d := range sorted {
		if i > 0 && d == sorted[i-1] {
			continue
		}
		m := e.dateLock(d)
		m.Lock()
		locks = append(locks, m)
	}

	return func() {
		for i := len(locks) - 1; i >= 0; i-- {
			locks[i].Unlock()
		}
	}
}

func (e *engine) dateLock(date string) *sync.Mutex {
	e.datesMu.Lock()
	defer e.datesMu.Unlock()

	m, ok := e.dates[date]
	if !ok {
		m = &sync.Mutex{}
		e.dates[date] = m
	}
	return m
}

// residencyDefaults fills the built-in package sets into c, keeping every
// other field that was set.
func residencyDefaults(c residency.Config) residency.Config {
	out := residency.DefaultConfig()
	if c.SelfPackage != "" {
		out.SelfPackage = c.SelfPackage
	}
	if c.SelfMinValidSec != 0 {
		out.SelfMinValidSec = c.SelfMinValidSec
	}
	out.HighLimits = c.HighLimits
	out.MediumLimits = c.MediumLimits
	out.LowLimits = c.LowLimits
	return out
}

// mergeDates returns the sorted union of a and b.
func mergeDates(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, d := range append(append([]string(nil), a...), b...) {
		if seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
