package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/0xmhha/usage-ledger/pkg/store"
	"github.com/0xmhha/usage-ledger/pkg/usage"
)

// Summary implements Engine.Summary.
func (e *engine) Summary(ctx context.Context, date string) (string, error) {
	reports, err := e.validator.Validate(ctx, date)
	if err != nil {
		return "", err
	}

	repo := store.NewRepository(e.store)
	raw, err := repo.RawSessions(date)
	if err != nil {
		return "", fmt.Errorf("failed to load raw sessions: %w", err)
	}
	timers, err := repo.TimerSessions(date)
	if err != nil {
		return "", fmt.Errorf("failed to load timer sessions: %w", err)
	}

	excluded := 0
	for _, s := range raw {
		if e.categorizer.IsExcluded(s.PackageName) {
			excluded++
		}
	}

	needs, err := e.migration.NeedsMigration(ctx)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Usage summary for %s (rules %s)\n", date, e.categorizer.Version())
	fmt.Fprintf(&b, "Raw sessions: %d (%d excluded)\n", len(raw), excluded)
	fmt.Fprintf(&b, "Timer sessions: %d\n", len(timers))

	inconsistent, duplicates := 0, 0
	var suspicious []usage.SuspiciousSession

	b.WriteString("Categories:\n")
	for _, r := range reports {
		status := "ok"
		if !r.IsConsistent {
			status = fmt.Sprintf("MISMATCH %+ds", r.TimeDifferenceSeconds)
			inconsistent++
		}
		fmt.Fprintf(&b, "  %-14s stored=%-7s detail=%-7s %s\n",
			r.CategoryName, usage.FormatSeconds(r.PieChartTotal), usage.FormatSeconds(r.DetailTotal), status)

		duplicates += len(r.DuplicateSessions)
		suspicious = append(suspicious, r.SuspiciousSessions...)
	}

	fmt.Fprintf(&b, "Inconsistent categories: %d\n", inconsistent)
	fmt.Fprintf(&b, "Duplicate pairs: %d\n", duplicates)
	fmt.Fprintf(&b, "Suspicious sessions: %d\n", len(suspicious))
	for _, s := range suspicious {
		fmt.Fprintf(&b, "  #%d %s %s: %s\n",
			s.Session.ID, s.Session.PackageName, usage.FormatSeconds(s.Session.DurationSec), s.ReasonText())
	}

	migration := "no"
	if needs {
		migration = "yes"
	}
	fmt.Fprintf(&b, "Migration needed: %s\n", migration)

	return b.String(), nil
}
