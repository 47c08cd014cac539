package validator

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/0xmhha/usage-ledger/pkg/anomaly"
	"github.com/0xmhha/usage-ledger/pkg/categorizer"
	"github.com/0xmhha/usage-ledger/pkg/logger"
	"github.com/0xmhha/usage-ledger/pkg/store"
	"github.com/0xmhha/usage-ledger/pkg/usage"
)

// unknownCategory names ids that are not in the live category table.
const unknownCategory = "unknown"

// validator implements the Validator interface.
type validator struct {
	kv          store.KV
	categorizer categorizer.Categorizer
	detector    anomaly.Detector
	loc         *time.Location
	tolerance   int
	logger      logger.Logger
}

// New creates a validator reading through kv.
func New(cfg Config, kv store.KV, cat categorizer.Categorizer, det anomaly.Detector, log logger.Logger) Validator {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	tolerance := DefaultToleranceSec
	if cfg.ToleranceSec != nil {
		tolerance = *cfg.ToleranceSec
	}

	return &validator{
		kv:          kv,
		categorizer: cat,
		detector:    det,
		loc:         cfg.Location,
		tolerance:   tolerance,
		logger:      log.Named("validator"),
	}
}

// Validate implements Validator.Validate.
func (v *validator) Validate(ctx context.Context, date string) ([]usage.ValidationReport, error) {
	if _, err := usage.ParseDate(date, v.loc); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	repo := store.NewRepository(v.kv)

	raw, err := repo.RawSessionsOverlapping(date)
	if err != nil {
		return nil, fmt.Errorf("failed to load raw sessions: %w", err)
	}
	timers, err := repo.TimerSessions(date)
	if err != nil {
		return nil, fmt.Errorf("failed to load timer sessions: %w", err)
	}
	daily, err := repo.DailySummaries(date)
	if err != nil {
		return nil, fmt.Errorf("failed to load daily summaries: %w", err)
	}

	pie := make(map[int]int, len(daily))
	for _, d := range daily {
		pie[d.CategoryID] = d.TotalSec
	}

	detail := make(map[int]int)
	for _, p := range v.detector.Prepare(raw, v.categorizer.IsExcluded) {
		s := p.Session
		detail[s.CategoryID] += usage.ShareOn(date, s.StartTimeMillis, s.EndTimeMillis, p.AdjustedSec, v.loc)
	}
	for _, t := range timers {
		detail[t.CategoryID] += t.DurationSec
	}

	// Findings only cover sessions that can reach a summary. A session
	// crossing midnight is reported on the date it started.
	counted := make([]usage.RawUsageSession, 0, len(raw))
	for _, s := range raw {
		if s.Date == date && !v.categorizer.IsExcluded(s.PackageName) {
			counted = append(counted, s)
		}
	}

	duplicates := make(map[int][]usage.DuplicatePair)
	for _, pair := range v.detector.DetectDuplicates(counted) {
		duplicates[pair.First.CategoryID] = append(duplicates[pair.First.CategoryID], pair)
	}
	suspicious := make(map[int][]usage.SuspiciousSession)
	for _, flagged := range v.detector.DetectSuspicious(counted) {
		suspicious[flagged.Session.CategoryID] = append(suspicious[flagged.Session.CategoryID], flagged)
	}

	extra := make(map[int]bool)
	for _, s := range raw {
		extra[s.CategoryID] = true
	}
	for _, t := range timers {
		extra[t.CategoryID] = true
	}
	for id := range pie {
		extra[id] = true
	}

	reports := make([]usage.ValidationReport, 0, len(extra))
	build := func(id int, name string) {
		diff := pie[id] - detail[id]
		reports = append(reports, usage.ValidationReport{
			Date:                  date,
			CategoryID:            id,
			CategoryName:          name,
			PieChartTotal:         pie[id],
			DetailTotal:           detail[id],
			DuplicateSessions:     duplicates[id],
			SuspiciousSessions:    suspicious[id],
			IsConsistent:          abs(diff) <= v.tolerance,
			TimeDifferenceSeconds: diff,
		})
	}

	for _, c := range v.categorizer.Categories() {
		build(c.ID, c.Name)
		delete(extra, c.ID)
	}

	unknown := make([]int, 0, len(extra))
	for id := range extra {
		unknown = append(unknown, id)
	}
	sort.Ints(unknown)
	for _, id := range unknown {
		build(id, unknownCategory)
	}

	inconsistent := 0
	for _, r := range reports {
		if r.IsConsistent {
			continue
		}
		inconsistent++
		v.logger.Warn("consistency mismatch",
			"date", date,
			"category_id", r.CategoryID,
			"pie_chart_total", r.PieChartTotal,
			"detail_total", r.DetailTotal,
			"difference", r.TimeDifferenceSeconds)
	}

	v.logger.Info("validation complete",
		"date", date,
		"categories", len(reports),
		"inconsistent", inconsistent,
		"sessions", len(raw))

	return reports, nil
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
