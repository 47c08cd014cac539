package validator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/usage-ledger/pkg/aggregator"
	"github.com/0xmhha/usage-ledger/pkg/anomaly"
	"github.com/0xmhha/usage-ledger/pkg/categorizer"
	"github.com/0xmhha/usage-ledger/pkg/logger"
	"github.com/0xmhha/usage-ledger/pkg/residency"
	"github.com/0xmhha/usage-ledger/pkg/store"
	"github.com/0xmhha/usage-ledger/pkg/usage"
)

const testDate = "2024-05-01"

type fixture struct {
	st   store.Store
	repo *store.Repository
	agg  aggregator.Aggregator
	v    Validator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "ledger.db")}, logger.Noop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cat := mustCategorizer(t)
	det := mustDetector()

	return &fixture{
		st:   st,
		repo: store.NewRepository(st),
		agg:  aggregator.New(aggregator.Config{Location: time.UTC}, st, cat, det, logger.Noop()),
		v:    New(Config{Location: time.UTC}, st, cat, det, logger.Noop()),
	}
}

func mustCategorizer(t *testing.T) categorizer.Categorizer {
	t.Helper()
	cat, err := categorizer.New(categorizer.Config{Categories: categorizer.DefaultCategories()}, logger.Noop())
	require.NoError(t, err)
	return cat
}

func mustDetector() anomaly.Detector {
	detCfg := anomaly.DefaultConfig()
	detCfg.Location = time.UTC
	return anomaly.New(detCfg, residency.New(residency.DefaultConfig()), logger.Noop())
}

func at(hour, minute int) time.Time {
	return time.Date(2024, 5, 1, hour, minute, 0, 0, time.UTC)
}

func (f *fixture) add(t *testing.T, pkg string, categoryID int, start, end time.Time) usage.RawUsageSession {
	t.Helper()
	s, err := usage.NewRawUsageSession(pkg, categoryID, start.UnixMilli(), end.UnixMilli(), time.UTC)
	require.NoError(t, err)
	saved, err := f.repo.InsertRawSession(s)
	require.NoError(t, err)
	return saved
}

func reportFor(t *testing.T, reports []usage.ValidationReport, categoryID int) usage.ValidationReport {
	t.Helper()
	for _, r := range reports {
		if r.CategoryID == categoryID {
			return r
		}
	}
	t.Fatalf("no report for category %d", categoryID)
	return usage.ValidationReport{}
}

func TestValidate_ConsistentAfterAggregation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.add(t, "com.duolingo", 2, at(9, 0), at(9, 10))
	f.add(t, "com.tencent.mm", 1, at(12, 0), at(13, 30))
	f.add(t, "com.miui.home", 1, at(14, 0), at(16, 0))

	timer, err := usage.NewTimerSession(3, at(18, 0).UnixMilli(), at(18, 30).UnixMilli(), time.UTC)
	require.NoError(t, err)
	_, err = f.repo.InsertTimerSession(timer)
	require.NoError(t, err)

	_, err = f.agg.Run(ctx, testDate)
	require.NoError(t, err)

	reports, err := f.v.Validate(ctx, testDate)
	require.NoError(t, err)
	require.Len(t, reports, 3)

	for _, r := range reports {
		assert.True(t, r.IsConsistent, "category %d", r.CategoryID)
		assert.Zero(t, r.TimeDifferenceSeconds)
	}

	entertainment := reportFor(t, reports, 1)
	assert.Equal(t, "entertainment", entertainment.CategoryName)
	assert.Equal(t, 900, entertainment.DetailTotal, "launcher session must not count")
	assert.Equal(t, 1800, reportFor(t, reports, 3).PieChartTotal)
}

func TestValidate_Tolerance(t *testing.T) {
	tests := []struct {
		name       string
		stored     int
		consistent bool
		diff       int
	}{
		{"exact", 600, true, 0},
		{"within tolerance", 605, true, 5},
		{"at tolerance", 590, true, -10},
		{"beyond tolerance", 700, false, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.add(t, "com.duolingo", 2, at(9, 0), at(9, 10))
			require.NoError(t, f.repo.PutDaily(usage.DailySummary{Date: testDate, CategoryID: 2, TotalSec: tt.stored}))

			reports, err := f.v.Validate(context.Background(), testDate)
			require.NoError(t, err)

			r := reportFor(t, reports, 2)
			assert.Equal(t, tt.consistent, r.IsConsistent)
			assert.Equal(t, tt.diff, r.TimeDifferenceSeconds)
			assert.Equal(t, 600, r.DetailTotal)
		})
	}
}

func TestValidate_ZeroTolerance(t *testing.T) {
	f := newFixture(t)
	zero := 0
	v := New(Config{Location: time.UTC, ToleranceSec: &zero}, f.st, mustCategorizer(t), mustDetector(), logger.Noop())

	f.add(t, "com.duolingo", 2, at(9, 0), at(9, 10))
	require.NoError(t, f.repo.PutDaily(usage.DailySummary{Date: testDate, CategoryID: 2, TotalSec: 601}))

	reports, err := v.Validate(context.Background(), testDate)
	require.NoError(t, err)

	r := reportFor(t, reports, 2)
	assert.False(t, r.IsConsistent)
	assert.Equal(t, 1, r.TimeDifferenceSeconds)
}

func TestValidate_SessionCrossingMidnight(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	next := "2024-05-02"

	s := f.add(t, "com.tencent.mm", 1, at(23, 15), at(23, 15).Add(5400*time.Second))

	for _, date := range []string{testDate, next} {
		_, err := f.agg.Run(ctx, date)
		require.NoError(t, err)
	}

	first, err := f.v.Validate(ctx, testDate)
	require.NoError(t, err)
	second, err := f.v.Validate(ctx, next)
	require.NoError(t, err)

	day1, day2 := reportFor(t, first, 1), reportFor(t, second, 1)
	assert.True(t, day1.IsConsistent)
	assert.True(t, day2.IsConsistent)
	assert.Equal(t, 900, day1.DetailTotal+day2.DetailTotal)
	assert.Equal(t, 900, day1.PieChartTotal+day2.PieChartTotal)

	// The whole 90 minutes exceed the chat limit; the finding is kept on
	// the start date only.
	require.Len(t, day1.SuspiciousSessions, 1)
	assert.Equal(t, s.ID, day1.SuspiciousSessions[0].Session.ID)
	assert.True(t, day1.SuspiciousSessions[0].HasReason(usage.ReasonPackageOverride))
	assert.Empty(t, day2.SuspiciousSessions)
}

func TestValidate_NightSessionCrossingMidnightFlagged(t *testing.T) {
	f := newFixture(t)
	f.add(t, "com.tencent.mm", 1, at(23, 0), at(23, 0).Add(3*time.Hour))

	reports, err := f.v.Validate(context.Background(), testDate)
	require.NoError(t, err)

	r := reportFor(t, reports, 1)
	require.Len(t, r.SuspiciousSessions, 1)
	flagged := r.SuspiciousSessions[0]
	assert.True(t, flagged.HasReason(usage.ReasonExtremeDuration))
	assert.True(t, flagged.HasReason(usage.ReasonNightLong))
}

func TestValidate_AttachesDuplicates(t *testing.T) {
	f := newFixture(t)
	base := at(12, 0)

	first := f.add(t, "com.example.app", 1, base, base.Add(600*time.Second))
	second := f.add(t, "com.example.app", 1, base.Add(500*time.Second), base.Add(900*time.Second))

	reports, err := f.v.Validate(context.Background(), testDate)
	require.NoError(t, err)

	r := reportFor(t, reports, 1)
	require.Len(t, r.DuplicateSessions, 1)
	assert.Equal(t, 100, r.DuplicateSessions[0].OverlapSeconds)
	assert.Equal(t, first.ID, r.DuplicateSessions[0].First.ID)
	assert.Equal(t, second.ID, r.DuplicateSessions[0].Second.ID)

	assert.False(t, r.IsConsistent, "nothing aggregated yet")
	assert.Equal(t, 1000, r.DetailTotal)
	assert.Empty(t, reportFor(t, reports, 2).DuplicateSessions)
}

func TestValidate_AttachesSuspicious(t *testing.T) {
	f := newFixture(t)
	f.add(t, "com.tencent.mm", 1, at(1, 0), at(2, 30))

	reports, err := f.v.Validate(context.Background(), testDate)
	require.NoError(t, err)

	r := reportFor(t, reports, 1)
	require.Len(t, r.SuspiciousSessions, 1)

	flagged := r.SuspiciousSessions[0]
	assert.True(t, flagged.HasReason(usage.ReasonNightLong))
	assert.True(t, flagged.HasReason(usage.ReasonPackageOverride))
	assert.False(t, flagged.HasReason(usage.ReasonExtremeDuration))
}

func TestValidate_UnknownCategoryReported(t *testing.T) {
	f := newFixture(t)
	f.add(t, "com.legacy.app", 9, at(10, 0), at(10, 5))

	reports, err := f.v.Validate(context.Background(), testDate)
	require.NoError(t, err)
	require.Len(t, reports, 4)

	last := reports[3]
	assert.Equal(t, 9, last.CategoryID)
	assert.Equal(t, "unknown", last.CategoryName)
	assert.Equal(t, 300, last.DetailTotal)
}

func TestValidate_ReadOnly(t *testing.T) {
	f := newFixture(t)
	f.add(t, "com.duolingo", 2, at(9, 0), at(9, 10))

	_, err := f.v.Validate(context.Background(), testDate)
	require.NoError(t, err)

	daily, err := f.repo.DailySummaries(testDate)
	require.NoError(t, err)
	assert.Empty(t, daily)

	buckets, err := f.repo.HourlyBuckets(testDate)
	require.NoError(t, err)
	assert.Empty(t, buckets)
}

func TestValidate_Errors(t *testing.T) {
	f := newFixture(t)

	_, err := f.v.Validate(context.Background(), "01/05/2024")
	assert.ErrorIs(t, err, usage.ErrInvalidDate)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.v.Validate(ctx, testDate)
	assert.ErrorIs(t, err, context.Canceled)
}
