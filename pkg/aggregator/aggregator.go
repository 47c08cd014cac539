package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/0xmhha/usage-ledger/pkg/anomaly"
	"github.com/0xmhha/usage-ledger/pkg/categorizer"
	"github.com/0xmhha/usage-ledger/pkg/logger"
	"github.com/0xmhha/usage-ledger/pkg/store"
	"github.com/0xmhha/usage-ledger/pkg/usage"
)

// aggregator implements the Aggregator interface.
type aggregator struct {
	store       store.Store
	categorizer categorizer.Categorizer
	detector    anomaly.Detector
	loc         *time.Location
	logger      logger.Logger
}

// New creates an aggregator over st.
func New(cfg Config, st store.Store, cat categorizer.Categorizer, det anomaly.Detector, log logger.Logger) Aggregator {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &aggregator{
		store:       st,
		categorizer: cat,
		detector:    det,
		loc:         cfg.Location,
		logger:      log.Named("aggregator"),
	}
}

// UpsertHourly implements Aggregator.UpsertHourly.
func (a *aggregator) UpsertHourly(date string, categoryID, hour int, offline bool, durationSec int) error {
	if hour < 0 || hour > 23 {
		return fmt.Errorf("%w: %d", usage.ErrInvalidHour, hour)
	}
	if _, err := usage.ParseDate(date, a.loc); err != nil {
		return err
	}

	bucket, clamped := usage.NewHourlyUsageBucket(date, categoryID, hour, offline, durationSec)
	if clamped {
		a.warnClamped(bucket, durationSec)
	}

	return store.NewRepository(a.store).PutHourly(bucket)
}

// RecomputeDaily implements Aggregator.RecomputeDaily.
func (a *aggregator) RecomputeDaily(date string, categoryID int) error {
	return a.store.Update(func(tx store.KV) error {
		return a.recomputeDaily(store.NewRepository(tx), date, categoryID)
	})
}

// RecomputeWeekly implements Aggregator.RecomputeWeekly.
func (a *aggregator) RecomputeWeekly(weekStart string, categoryID int) error {
	return a.store.Update(func(tx store.KV) error {
		return a.recomputePeriod(store.NewRepository(tx), usage.PeriodWeek, weekStart, categoryID)
	})
}

// RecomputeMonthly implements Aggregator.RecomputeMonthly.
func (a *aggregator) RecomputeMonthly(monthStart string, categoryID int) error {
	return a.store.Update(func(tx store.KV) error {
		return a.recomputePeriod(store.NewRepository(tx), usage.PeriodMonth, monthStart, categoryID)
	})
}

// RecomputeParents implements Aggregator.RecomputeParents.
func (a *aggregator) RecomputeParents(date string, categoryIDs []int) error {
	weekStart, err := usage.PeriodStart(usage.PeriodWeek, date)
	if err != nil {
		return err
	}
	monthStart, err := usage.PeriodStart(usage.PeriodMonth, date)
	if err != nil {
		return err
	}

	for _, id := range categoryIDs {
		if err := a.RecomputeDaily(date, id); err != nil {
			return fmt.Errorf("daily %s/%d: %w", date, id, err)
		}
		if err := a.RecomputeWeekly(weekStart, id); err != nil {
			return fmt.Errorf("weekly %s/%d: %w", weekStart, id, err)
		}
		if err := a.RecomputeMonthly(monthStart, id); err != nil {
			return fmt.Errorf("monthly %s/%d: %w", monthStart, id, err)
		}
	}

	return nil
}

// Run implements Aggregator.Run.
func (a *aggregator) Run(ctx context.Context, date string) (*RunResult, error) {
	dayStart, dayEnd, err := usage.DayBounds(date, a.loc)
	if err != nil {
		return nil, err
	}

	repo := store.NewRepository(a.store)

	sessions, err := repo.RawSessionsOverlapping(date)
	if err != nil {
		return nil, fmt.Errorf("failed to load raw sessions: %w", err)
	}
	timers, err := repo.TimerSessions(date)
	if err != nil {
		return nil, fmt.Errorf("failed to load timer sessions: %w", err)
	}

	prepared := a.detector.Prepare(sessions, a.categorizer.IsExcluded)

	totals := make(map[string]*usage.HourlyUsageBucket)
	add := func(categoryID int, offline bool, shares []HourShare) {
		for _, s := range shares {
			key := string(usage.HourlyKey(date, categoryID, s.Hour, offline))
			b, ok := totals[key]
			if !ok {
				b = &usage.HourlyUsageBucket{Date: date, CategoryID: categoryID, Hour: s.Hour, IsOffline: offline}
				totals[key] = b
			}
			b.DurationSec += s.Sec
		}
	}

	for _, p := range prepared {
		s := p.Session
		share := usage.ShareOn(date, s.StartTimeMillis, s.EndTimeMillis, p.AdjustedSec, a.loc)
		add(s.CategoryID, s.Offline, SplitHours(s.StartTimeMillis, s.EndTimeMillis, share, dayStart, dayEnd, a.loc))
	}
	for _, t := range timers {
		add(t.CategoryID, true, SplitHours(t.StartTimeMillis, t.EndTimeMillis, t.DurationSec, dayStart, dayEnd, a.loc))
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result := &RunResult{
		Date:     date,
		Sessions: len(sessions),
		Kept:     len(prepared),
		Timers:   len(timers),
	}

	touched := make(map[int]bool)
	err = a.store.Update(func(tx store.KV) error {
		txRepo := store.NewRepository(tx)

		existing, err := txRepo.HourlyBuckets(date)
		if err != nil {
			return err
		}
		for _, b := range existing {
			touched[b.CategoryID] = true
			if _, keep := totals[string(b.Key())]; keep {
				continue
			}
			if err := txRepo.DeleteHourly(b); err != nil {
				return err
			}
			result.Removed++
		}

		for _, b := range totals {
			bucket, clamped := usage.NewHourlyUsageBucket(b.Date, b.CategoryID, b.Hour, b.IsOffline, b.DurationSec)
			if clamped {
				result.Clamped++
				a.warnClamped(bucket, b.DurationSec)
			}
			if err := txRepo.PutHourly(bucket); err != nil {
				return err
			}
			touched[b.CategoryID] = true
			result.Buckets++
		}

		// Parents of categories that lost every session on this date.
		daily, err := txRepo.DailySummaries(date)
		if err != nil {
			return err
		}
		for _, d := range daily {
			touched[d.CategoryID] = true
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to write hourly buckets: %w", err)
	}

	for id := range touched {
		result.Categories = append(result.Categories, id)
	}
	sort.Ints(result.Categories)

	if err := a.RecomputeParents(date, result.Categories); err != nil {
		return nil, err
	}

	a.logger.Info("aggregation complete",
		"date", date,
		"sessions", result.Sessions,
		"kept", result.Kept,
		"timers", result.Timers,
		"buckets", result.Buckets,
		"removed", result.Removed,
		"clamped", result.Clamped)

	return result, nil
}

func (a *aggregator) recomputeDaily(repo *store.Repository, date string, categoryID int) error {
	daily, ok, err := DailyFromChildren(repo, date, categoryID)
	if errors.Is(err, usage.ErrNegativeTotal) {
		a.logger.Warn("rejected daily recompute", "date", date, "category_id", categoryID, "error", err)
		return nil
	}
	if err != nil {
		return err
	}

	if !ok {
		return repo.DeleteDaily(date, categoryID)
	}
	return repo.PutDaily(daily)
}

func (a *aggregator) recomputePeriod(repo *store.Repository, period usage.Period, start string, categoryID int) error {
	summary, ok, err := PeriodFromChildren(repo, period, start, categoryID)
	if errors.Is(err, usage.ErrNegativeTotal) {
		a.logger.Warn("rejected period recompute",
			"period", period, "period_start", start, "category_id", categoryID, "error", err)
		return nil
	}
	if err != nil {
		return err
	}

	if !ok {
		return repo.DeletePeriod(period, start, categoryID)
	}
	return repo.PutPeriod(summary)
}

func (a *aggregator) warnClamped(b usage.HourlyUsageBucket, requested int) {
	a.logger.Warn("hour cap applied",
		"date", b.Date,
		"category_id", b.CategoryID,
		"hour", b.Hour,
		"offline", b.IsOffline,
		"requested_sec", requested,
		"stored_sec", b.DurationSec)
}

// DailyFromChildren sums the hourly buckets of (date, categoryID). ok is
// false when there are no buckets.
func DailyFromChildren(repo *store.Repository, date string, categoryID int) (usage.DailySummary, bool, error) {
	buckets, err := repo.HourlyBucketsFor(date, categoryID)
	if err != nil {
		return usage.DailySummary{}, false, err
	}
	if len(buckets) == 0 {
		return usage.DailySummary{}, false, nil
	}

	daily, err := usage.NewDailySummary(date, categoryID, buckets)
	if err != nil {
		return usage.DailySummary{}, false, err
	}
	return daily, true, nil
}

// PeriodFromChildren sums the daily rows of a period. Days without a daily
// row fall back to their hourly buckets. ok is false when no day of the
// period has data.
func PeriodFromChildren(repo *store.Repository, period usage.Period, start string, categoryID int) (usage.PeriodSummary, bool, error) {
	dates, err := usage.PeriodDates(period, start)
	if err != nil {
		return usage.PeriodSummary{}, false, err
	}

	var days []usage.DailySummary
	for _, d := range dates {
		daily, ok, err := repo.Daily(d, categoryID)
		if err != nil {
			return usage.PeriodSummary{}, false, err
		}
		if !ok {
			daily, ok, err = DailyFromChildren(repo, d, categoryID)
			if err != nil {
				return usage.PeriodSummary{}, false, err
			}
		}
		if ok {
			days = append(days, daily)
		}
	}

	if len(days) == 0 {
		return usage.PeriodSummary{}, false, nil
	}

	summary, err := usage.NewPeriodSummary(period, start, categoryID, days)
	if err != nil {
		return usage.PeriodSummary{}, false, err
	}
	return summary, true, nil
}
