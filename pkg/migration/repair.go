package migration

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/0xmhha/usage-ledger/pkg/logger"
	"github.com/0xmhha/usage-ledger/pkg/store"
	"github.com/0xmhha/usage-ledger/pkg/usage"
)

// RepairDuplicates implements Engine.RepairDuplicates.
func (e *engine) RepairDuplicates(ctx context.Context, pairs []usage.DuplicatePair) (*usage.RepairResult, error) {
	result := &usage.RepairResult{RunID: uuid.New().String()}
	log := e.logger.With("run_id", result.RunID)
	dates := make(map[string]bool)
	deleted := make(map[string]bool)

	for _, pair := range pairs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		victim := pair.Second
		if pair.First.ID > pair.Second.ID {
			victim = pair.First
		}
		if deleted[string(victim.Key())] {
			continue
		}

		reason := fmt.Sprintf("duplicate of %s session overlapping by %ds", pair.Package, pair.OverlapSeconds)
		action, spanned, ok, err := e.deleteSession(victim, reason)
		if err != nil {
			return result, err
		}
		deleted[string(victim.Key())] = true
		if !ok {
			continue
		}

		e.record(log, result, action)
		for _, d := range spanned {
			dates[d] = true
		}
	}

	if err := e.reaggregate(ctx, result, dates); err != nil {
		return result, err
	}

	log.Info("duplicate repair complete", "pairs", len(pairs), "actions", len(result.Actions))
	return result, nil
}

// RepairSuspicious implements Engine.RepairSuspicious.
func (e *engine) RepairSuspicious(ctx context.Context, flags []usage.SuspiciousSession) (*usage.RepairResult, error) {
	result := &usage.RepairResult{RunID: uuid.New().String()}
	log := e.logger.With("run_id", result.RunID)
	dates := make(map[string]bool)

	for _, flagged := range flags {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		var (
			action  usage.RepairAction
			spanned []string
			ok      bool
			err     error
		)
		switch {
		case flagged.HasReason(usage.ReasonExtremeDuration):
			action, spanned, ok, err = e.deleteSession(flagged.Session, flagged.ReasonText())
		case flagged.HasReason(usage.ReasonNightLong):
			limit := reasonLimit(flagged, usage.ReasonNightLong)
			action, spanned, ok, err = e.resizeSession(flagged.Session, usage.RepairTruncate, limit, flagged.ReasonText())
		case flagged.HasReason(usage.ReasonPackageOverride):
			// Capped at the limit so the repaired session is not flagged
			// and shrunk again.
			limit := reasonLimit(flagged, usage.ReasonPackageOverride)
			target := min(limit, int(math.Round(float64(flagged.Session.DurationSec)*e.shrink)))
			action, spanned, ok, err = e.resizeSession(flagged.Session, usage.RepairShrink, target, flagged.ReasonText())
		default:
			continue
		}
		if err != nil {
			return result, err
		}
		if !ok {
			continue
		}

		e.record(log, result, action)
		for _, d := range spanned {
			dates[d] = true
		}
	}

	if err := e.reaggregate(ctx, result, dates); err != nil {
		return result, err
	}

	log.Info("suspicious repair complete", "flags", len(flags), "actions", len(result.Actions))
	return result, nil
}

// deleteSession removes s if it is still stored. It returns the dates the
// stored session covered. ok is false when there was nothing to delete.
func (e *engine) deleteSession(s usage.RawUsageSession, reason string) (usage.RepairAction, []string, bool, error) {
	var (
		action  usage.RepairAction
		spanned []string
	)
	found := false

	err := e.store.Update(func(tx store.KV) error {
		repo := store.NewRepository(tx)
		current, ok, err := repo.RawSession(s.Date, s.ID)
		if err != nil || !ok {
			return err
		}
		found = true
		spanned = current.SpannedDates()

		action = usage.RepairAction{
			SessionID: current.ID,
			Package:   current.PackageName,
			Date:      current.Date,
			Kind:      usage.RepairDelete,
			BeforeSec: current.DurationSec,
			AfterSec:  0,
			Reason:    reason,
		}
		return repo.DeleteRawSession(current.Date, current.ID)
	})
	if err != nil {
		return usage.RepairAction{}, nil, false, fmt.Errorf("failed to delete session %d: %w", s.ID, err)
	}

	return action, spanned, found, nil
}

// resizeSession moves the end of s so it lasts targetSec and returns the
// dates the session covered before the change. Sessions already at or below
// the target are left alone.
func (e *engine) resizeSession(s usage.RawUsageSession, kind usage.RepairKind, targetSec int, reason string) (usage.RepairAction, []string, bool, error) {
	var (
		action  usage.RepairAction
		spanned []string
	)
	changed := false

	err := e.store.Update(func(tx store.KV) error {
		repo := store.NewRepository(tx)
		current, ok, err := repo.RawSession(s.Date, s.ID)
		if err != nil || !ok {
			return err
		}
		if targetSec < 1 || current.DurationSec <= targetSec {
			return nil
		}

		resized, err := current.WithEnd(current.StartTimeMillis+int64(targetSec)*1000, e.loc)
		if err != nil {
			return err
		}

		action = usage.RepairAction{
			SessionID: current.ID,
			Package:   current.PackageName,
			Date:      current.Date,
			Kind:      kind,
			BeforeSec: current.DurationSec,
			AfterSec:  resized.DurationSec,
			Reason:    reason,
		}
		changed = true
		spanned = current.SpannedDates()
		return repo.PutRawSession(resized)
	})
	if err != nil {
		return usage.RepairAction{}, nil, false, fmt.Errorf("failed to %s session %d: %w", kind, s.ID, err)
	}

	return action, spanned, changed, nil
}

func (e *engine) record(log logger.Logger, result *usage.RepairResult, action usage.RepairAction) {
	result.Actions = append(result.Actions, action)
	log.Info("repair action",
		"kind", action.Kind,
		"session_id", action.SessionID,
		"package", action.Package,
		"date", action.Date,
		"before_sec", action.BeforeSec,
		"after_sec", action.AfterSec,
		"reason", action.Reason)
}

func (e *engine) reaggregate(ctx context.Context, result *usage.RepairResult, dates map[string]bool) error {
	sorted := make([]string, 0, len(dates))
	for d := range dates {
		sorted = append(sorted, d)
	}
	sort.Strings(sorted)

	for _, d := range sorted {
		if _, err := e.aggregator.Run(ctx, d); err != nil {
			return fmt.Errorf("failed to re-aggregate %s: %w", d, err)
		}
		result.DatesReaggregated = append(result.DatesReaggregated, d)
	}
	return nil
}

// reasonLimit returns the limit attached to the first reason of kind.
func reasonLimit(s usage.SuspiciousSession, kind usage.ReasonKind) int {
	for _, r := range s.Reasons {
		if r.Kind == kind {
			return r.LimitSec
		}
	}
	return 0
}
