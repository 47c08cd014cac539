// Package aggregator maintains the hourly, daily, weekly and monthly usage
// rollups.
//
// Hourly buckets are written with the hour cap applied; every parent is a
// pure sum of its children and is deleted when it has none. Run rebuilds a
// whole date from raw and timer sessions and is idempotent:
//
//	agg := aggregator.New(aggregator.Config{Location: loc}, st, cat, det, log)
//	result, err := agg.Run(ctx, "2024-05-01")
package aggregator

import (
	"context"
	"time"
)

// Aggregator computes and stores usage rollups.
type Aggregator interface {
	// UpsertHourly replaces one hourly bucket, clamping durationSec to the
	// hour cap. Clamping is logged as a warning.
	UpsertHourly(date string, categoryID, hour int, offline bool, durationSec int) error

	// RecomputeDaily rebuilds the daily summary of (date, categoryID) from
	// its hourly buckets.
	RecomputeDaily(date string, categoryID int) error

	// RecomputeWeekly rebuilds the weekly summary starting at weekStart
	// (a Monday).
	RecomputeWeekly(weekStart string, categoryID int) error

	// RecomputeMonthly rebuilds the monthly summary starting at monthStart
	// (day 1).
	RecomputeMonthly(monthStart string, categoryID int) error

	// RecomputeParents rebuilds daily, weekly and monthly rows of date for
	// every category in categoryIDs.
	RecomputeParents(date string, categoryIDs []int) error

	// Run rebuilds every aggregate of date from raw and timer sessions.
	// A session crossing midnight is adjusted as a whole and contributes
	// the part of its adjusted duration that falls on date.
	Run(ctx context.Context, date string) (*RunResult, error)
}

// Config contains aggregator configuration.
type Config struct {
	// Location is the time zone of dates and hours.
	// Default: time.Local.
	Location *time.Location
}

// RunResult summarizes one Run.
type RunResult struct {
	Date string

	// Sessions is the number of raw sessions with time on the date.
	Sessions int

	// Kept is the number of sessions left after exclusion and the
	// minimum-duration filter.
	Kept int

	// Timers is the number of timer sessions folded in.
	Timers int

	// Buckets is the number of hourly buckets written.
	Buckets int

	// Removed is the number of stale hourly buckets deleted.
	Removed int

	// Clamped is the number of buckets cut to the hour cap.
	Clamped int

	// Categories are the category ids whose parents were recomputed.
	Categories []int
}
