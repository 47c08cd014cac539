package migration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/0xmhha/usage-ledger/pkg/aggregator"
	"github.com/0xmhha/usage-ledger/pkg/categorizer"
	"github.com/0xmhha/usage-ledger/pkg/logger"
	"github.com/0xmhha/usage-ledger/pkg/store"
	"github.com/0xmhha/usage-ledger/pkg/usage"
)

// engine implements the Engine interface.
type engine struct {
	store       store.Store
	categorizer categorizer.Categorizer
	aggregator  aggregator.Aggregator
	legacy      map[string]int
	shrink      float64
	progress    int
	loc         *time.Location
	running     atomic.Bool
	logger      logger.Logger
}

// New creates a migration engine.
func New(cfg Config, st store.Store, cat categorizer.Categorizer, agg aggregator.Aggregator, log logger.Logger) (Engine, error) {
	if cfg.ShrinkRatio == 0 {
		cfg.ShrinkRatio = DefaultShrinkRatio
	}
	if cfg.ShrinkRatio < 0 || cfg.ShrinkRatio > 1 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidShrinkRatio, cfg.ShrinkRatio)
	}

	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	legacy := make(map[string]int, len(cfg.LegacyIDs))
	for name, id := range cfg.LegacyIDs {
		legacy[name] = id
	}

	return &engine{
		store:       st,
		categorizer: cat,
		aggregator:  agg,
		legacy:      legacy,
		shrink:      cfg.ShrinkRatio,
		progress:    cfg.ProgressEvery,
		loc:         cfg.Location,
		logger:      log.Named("migration"),
	}, nil
}

// BuildCategoryMapping implements Engine.BuildCategoryMapping.
func (e *engine) BuildCategoryMapping() map[int]int {
	names := make([]string, 0, len(e.legacy))
	for name := range e.legacy {
		names = append(names, name)
	}
	sort.Strings(names)

	mapping := make(map[int]int)
	for _, name := range names {
		legacyID := e.legacy[name]

		liveID, ok := e.categorizer.CategoryID(name)
		if !ok {
			e.logger.Warn("legacy id for unknown category ignored", "category", name, "legacy_id", legacyID)
			continue
		}
		if legacyID == liveID {
			continue
		}
		// A legacy id still in use would remap live rows and chain on re-runs.
		if live, ok := e.categorizer.Category(legacyID); ok {
			e.logger.Warn("legacy id collides with live category, dropped",
				"category", name, "legacy_id", legacyID, "live_category", live.Name)
			continue
		}
		if prev, ok := mapping[legacyID]; ok {
			e.logger.Warn("legacy id claimed twice, dropped",
				"legacy_id", legacyID, "live_id", prev, "category", name)
			delete(mapping, legacyID)
			continue
		}

		mapping[legacyID] = liveID
	}

	return mapping
}

// NeedsMigration implements Engine.NeedsMigration.
func (e *engine) NeedsMigration(ctx context.Context) (bool, error) {
	mapping := e.BuildCategoryMapping()
	if len(mapping) == 0 {
		return false, nil
	}

	for _, table := range store.CategoryTables {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		found := false
		err := e.store.Scan(table, nil, func(k, v []byte) error {
			row, err := store.Decode[categoryRow](v)
			if err != nil {
				return &RowError{Table: table, Key: string(k), Err: err}
			}
			if _, ok := mapping[row.CategoryID]; ok {
				found = true
				return errStopScan
			}
			return nil
		})
		if err != nil && !errors.Is(err, errStopScan) {
			return false, err
		}
		if found {
			return true, nil
		}
	}

	return false, nil
}

// ExecuteFullMigration implements Engine.ExecuteFullMigration.
func (e *engine) ExecuteFullMigration(ctx context.Context) (*usage.MigrationResult, error) {
	result := &usage.MigrationResult{
		RunID:     uuid.New().String(),
		State:     usage.MigrationNotStarted,
		PerTable:  make(map[string]int, len(store.CategoryTables)),
		StartedAt: time.Now(),
	}
	log := e.logger.With("run_id", result.RunID)

	if !e.running.CompareAndSwap(false, true) {
		return e.fail(log, result, ErrAlreadyRunning)
	}
	defer e.running.Store(false)

	mapping := e.BuildCategoryMapping()
	e.setState(log, result, usage.MigrationScanning)

	if len(mapping) == 0 {
		log.Info("no category mapping configured")
		return e.complete(log, result), nil
	}
	log.Info("category mapping built", "mapping", fmt.Sprint(mapping))

	e.setState(log, result, usage.MigrationMigrating)

	for _, table := range store.CategoryTables {
		if err := ctx.Err(); err != nil {
			return e.fail(log, result, err)
		}

		n, err := e.migrateTable(ctx, log, table, mapping)
		result.PerTable[string(table)] = n
		result.TotalMigrated += n
		if err != nil {
			return e.fail(log, result, err)
		}

		log.Info("table migrated", "table", table, "rows", n)
	}

	return e.complete(log, result), nil
}

// migrateTable rewrites the rows of table carrying a mapping key, one
// transaction per row. It returns the number of committed rows.
func (e *engine) migrateTable(ctx context.Context, log logger.Logger, table store.Table, mapping map[int]int) (int, error) {
	keys, err := e.pendingKeys(table, mapping)
	if err != nil {
		return 0, err
	}

	migrated := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return migrated, err
		}

		err := e.store.Update(func(tx store.KV) error {
			return e.migrateRow(log, tx, table, key, mapping)
		})
		if err != nil {
			var rowErr *RowError
			if !errors.As(err, &rowErr) {
				err = &RowError{Table: table, Key: string(key), Err: err}
			}
			return migrated, err
		}

		migrated++
		if e.progress > 0 && migrated%e.progress == 0 {
			log.Debug("migration progress", "table", table, "rows", migrated, "pending", len(keys)-migrated)
		}
	}

	return migrated, nil
}

// pendingKeys returns the keys of table whose row carries a mapping key.
func (e *engine) pendingKeys(table store.Table, mapping map[int]int) ([][]byte, error) {
	var keys [][]byte
	err := e.store.Scan(table, nil, func(k, v []byte) error {
		row, err := store.Decode[categoryRow](v)
		if err != nil {
			return &RowError{Table: table, Key: string(k), Err: err}
		}
		if _, ok := mapping[row.CategoryID]; ok {
			keys = append(keys, append([]byte(nil), k...))
		}
		return nil
	})
	return keys, err
}

// migrateRow rewrites one row inside tx.
func (e *engine) migrateRow(log logger.Logger, tx store.KV, table store.Table, key []byte, mapping map[int]int) error {
	value, err := tx.Get(table, key)
	if err != nil {
		return err
	}

	switch table {
	case store.TableRawSessions:
		s, err := store.Decode[usage.RawUsageSession](value)
		if err != nil {
			return err
		}
		to, ok := mapping[s.CategoryID]
		if !ok {
			return nil
		}
		s = s.WithCategory(to)
		return rekey(tx, table, key, s.Key(), s)

	case store.TableTimerSessions:
		t, err := store.Decode[usage.TimerSession](value)
		if err != nil {
			return err
		}
		to, ok := mapping[t.CategoryID]
		if !ok {
			return nil
		}
		t = t.WithCategory(to)
		return rekey(tx, table, key, t.Key(), t)

	case store.TableHourly:
		b, err := store.Decode[usage.HourlyUsageBucket](value)
		if err != nil {
			return err
		}
		to, ok := mapping[b.CategoryID]
		if !ok {
			return nil
		}

		moved := b.WithCategory(to)
		existing, found, err := lookup[usage.HourlyUsageBucket](tx, table, moved.Key())
		if err != nil {
			return err
		}
		if found {
			merged, clamped := existing.Merge(moved)
			if clamped {
				log.Warn("hour cap applied on merge",
					"date", b.Date,
					"category_id", to,
					"hour", b.Hour,
					"requested_sec", existing.DurationSec+moved.DurationSec,
					"stored_sec", merged.DurationSec)
			}
			moved = merged
		}
		return rekey(tx, table, key, moved.Key(), moved)

	case store.TableDaily:
		d, err := store.Decode[usage.DailySummary](value)
		if err != nil {
			return err
		}
		to, ok := mapping[d.CategoryID]
		if !ok {
			return nil
		}

		moved := d.WithCategory(to)
		existing, found, err := lookup[usage.DailySummary](tx, table, moved.Key())
		if err != nil {
			return err
		}
		if found {
			recomputed, ok, err := aggregator.DailyFromChildren(store.NewRepository(tx), d.Date, to)
			if err != nil {
				return err
			}
			if ok {
				moved = recomputed
			} else {
				moved.TotalSec += existing.TotalSec
			}
		}
		return rekey(tx, table, key, moved.Key(), moved)

	case store.TableWeekly, store.TableMonthly:
		p, err := store.Decode[usage.PeriodSummary](value)
		if err != nil {
			return err
		}
		to, ok := mapping[p.CategoryID]
		if !ok {
			return nil
		}

		moved := p.WithCategory(to)
		existing, found, err := lookup[usage.PeriodSummary](tx, table, moved.Key())
		if err != nil {
			return err
		}
		if found {
			recomputed, ok, err := aggregator.PeriodFromChildren(store.NewRepository(tx), p.Period, p.PeriodStart, to)
			if err != nil {
				return err
			}
			if ok {
				moved = recomputed
			} else {
				moved.TotalSec += existing.TotalSec
			}
		}
		return rekey(tx, table, key, moved.Key(), moved)

	default:
		return fmt.Errorf("%w: %s", store.ErrUnknownTable, table)
	}
}

func (e *engine) setState(log logger.Logger, result *usage.MigrationResult, state usage.MigrationState) {
	log.Debug("migration state", "from", result.State, "to", state)
	result.State = state
}

func (e *engine) complete(log logger.Logger, result *usage.MigrationResult) *usage.MigrationResult {
	e.setState(log, result, usage.MigrationCompleted)
	result.Success = true
	result.FinishedAt = time.Now()

	log.Info("migration completed",
		"total_migrated", result.TotalMigrated,
		"duration", result.FinishedAt.Sub(result.StartedAt))
	return result
}

func (e *engine) fail(log logger.Logger, result *usage.MigrationResult, err error) (*usage.MigrationResult, error) {
	e.setState(log, result, usage.MigrationFailed)
	result.Success = false
	result.ErrorMessage = err.Error()
	result.FinishedAt = time.Now()

	log.Error("migration failed",
		"error", err,
		"total_migrated", result.TotalMigrated)
	return result, err
}

// categoryRow is the projection every category-bearing row shares.
type categoryRow struct {
	CategoryID int `json:"category_id"`
}

var errStopScan = errors.New("stop scan")

func rekey(tx store.KV, table store.Table, oldKey, newKey []byte, row interface{}) error {
	data, err := store.Encode(row)
	if err != nil {
		return err
	}
	return tx.Rekey(table, oldKey, newKey, data)
}

func lookup[T any](tx store.KV, table store.Table, key []byte) (T, bool, error) {
	var zero T
	value, err := tx.Get(table, key)
	if errors.Is(err, store.ErrNotFound) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}

	row, err := store.Decode[T](value)
	if err != nil {
		return zero, false, err
	}
	return row, true, nil
}
