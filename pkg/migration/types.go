// Package migration corrects stale category ids in stored rows and repairs
// sessions flagged by the anomaly detector.
//
// Category ids embedded in composite keys are rewritten with
// store.KV.Rekey, one row per transaction, in a fixed table order. A run
// that stops half way leaves only fully migrated or untouched rows; the next
// run skips rows that no longer carry a legacy id:
//
//	eng := migration.New(cfg.Migration, st, cat, agg, log)
//	if ok, _ := eng.NeedsMigration(ctx); ok {
//	    result, err := eng.ExecuteFullMigration(ctx)
//	    ...
//	}
package migration

import (
	"context"
	"time"

	"github.com/0xmhha/usage-ledger/pkg/usage"
)

// DefaultShrinkRatio is applied to sessions over a package-specific limit.
const DefaultShrinkRatio = 0.5

// Engine migrates and repairs stored usage data.
type Engine interface {
	// BuildCategoryMapping returns legacy id -> live id for every category
	// whose configured legacy id differs from its live id.
	BuildCategoryMapping() map[int]int

	// NeedsMigration reports whether any row of a category-bearing table
	// carries a mapping key.
	NeedsMigration(ctx context.Context) (bool, error)

	// ExecuteFullMigration rewrites every row carrying a mapping key. The
	// result is always returned; on failure it is in the Failed state and
	// the error is also returned.
	ExecuteFullMigration(ctx context.Context) (*usage.MigrationResult, error)

	// RepairDuplicates deletes the session with the larger id of each pair
	// and re-aggregates the affected dates.
	RepairDuplicates(ctx context.Context, pairs []usage.DuplicatePair) (*usage.RepairResult, error)

	// RepairSuspicious deletes, truncates or shrinks flagged sessions and
	// re-aggregates the affected dates. A shrunk session never stays
	// above its package limit, so a second run finds nothing to do.
	RepairSuspicious(ctx context.Context, flags []usage.SuspiciousSession) (*usage.RepairResult, error)
}

// Config contains migration and repair configuration.
type Config struct {
	// LegacyIDs are the category ids older releases assigned, by name.
	LegacyIDs map[string]int `yaml:"legacy_ids"`

	// ShrinkRatio scales sessions over a package-specific limit.
	// Default: DefaultShrinkRatio.
	ShrinkRatio float64 `yaml:"shrink_ratio"`

	// ProgressEvery logs progress every N migrated rows of a table.
	// Zero disables progress logs.
	ProgressEvery int `yaml:"progress_every"`

	// Location is the time zone used to date repaired sessions.
	// Default: time.Local.
	Location *time.Location `yaml:"-"`
}

// DefaultLegacyIDs returns the ids assigned before the category table was
// renumbered.
func DefaultLegacyIDs() map[string]int {
	return map[string]int{
		"learning": 5,
		"fitness":  6,
	}
}
