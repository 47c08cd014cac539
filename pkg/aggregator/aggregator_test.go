package aggregator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/usage-ledger/pkg/anomaly"
	"github.com/0xmhha/usage-ledger/pkg/categorizer"
	"github.com/0xmhha/usage-ledger/pkg/logger"
	"github.com/0xmhha/usage-ledger/pkg/residency"
	"github.com/0xmhha/usage-ledger/pkg/store"
	"github.com/0xmhha/usage-ledger/pkg/usage"
)

const testDate = "2024-05-01"

type harness struct {
	agg  Aggregator
	repo *store.Repository
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	st, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "ledger.db")}, logger.Noop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cat, err := categorizer.New(categorizer.Config{Categories: categorizer.DefaultCategories()}, logger.Noop())
	require.NoError(t, err)

	detCfg := anomaly.DefaultConfig()
	detCfg.Location = time.UTC
	det := anomaly.New(detCfg, residency.New(residency.DefaultConfig()), logger.Noop())

	return &harness{
		agg:  New(Config{Location: time.UTC}, st, cat, det, logger.Noop()),
		repo: store.NewRepository(st),
	}
}

func at(hour, minute int) time.Time {
	return time.Date(2024, 5, 1, hour, minute, 0, 0, time.UTC)
}

func (h *harness) addSession(t *testing.T, pkg string, categoryID int, start time.Time, d time.Duration) usage.RawUsageSession {
	t.Helper()
	s, err := usage.NewRawUsageSession(pkg, categoryID, start.UnixMilli(), start.Add(d).UnixMilli(), time.UTC)
	require.NoError(t, err)
	saved, err := h.repo.InsertRawSession(s)
	require.NoError(t, err)
	return saved
}

func (h *harness) addTimer(t *testing.T, categoryID int, start time.Time, d time.Duration) {
	t.Helper()
	timer, err := usage.NewTimerSession(categoryID, start.UnixMilli(), start.Add(d).UnixMilli(), time.UTC)
	require.NoError(t, err)
	_, err = h.repo.InsertTimerSession(timer)
	require.NoError(t, err)
}

func (h *harness) dailyTotal(t *testing.T, date string, categoryID int) (int, bool) {
	t.Helper()
	d, ok, err := h.repo.Daily(date, categoryID)
	require.NoError(t, err)
	return d.TotalSec, ok
}

func TestSplitHours(t *testing.T) {
	dayStart, dayEnd, err := usage.DayBounds(testDate, time.UTC)
	require.NoError(t, err)

	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		total int
		want  []HourShare
	}{
		{
			name:  "exact proportional",
			start: at(13, 30), end: at(15, 15), total: 6300,
			want: []HourShare{{Hour: 13, Sec: 1800}, {Hour: 14, Sec: 3600}, {Hour: 15, Sec: 900}},
		},
		{
			name:  "largest remainder",
			start: at(10, 20), end: at(12, 40), total: 100,
			want: []HourShare{{Hour: 10, Sec: 29}, {Hour: 11, Sec: 43}, {Hour: 12, Sec: 28}},
		},
		{
			name:  "adjusted below real time",
			start: at(12, 0), end: at(13, 30), total: 900,
			want: []HourShare{{Hour: 12, Sec: 600}, {Hour: 13, Sec: 300}},
		},
		{
			name:  "single hour",
			start: at(9, 5), end: at(9, 6), total: 60,
			want: []HourShare{{Hour: 9, Sec: 60}},
		},
		{
			name:  "zero total",
			start: at(9, 5), end: at(9, 6), total: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitHours(tt.start.UnixMilli(), tt.end.UnixMilli(), tt.total, dayStart, dayEnd, time.UTC)
			assert.Equal(t, tt.want, got)

			sum := 0
			for _, s := range got {
				sum += s.Sec
			}
			assert.Equal(t, tt.total, sum)
		})
	}
}

func TestSplitHours_ClipsToDay(t *testing.T) {
	dayStart, dayEnd, err := usage.DayBounds(testDate, time.UTC)
	require.NoError(t, err)

	start := at(23, 30)
	got := SplitHours(start.UnixMilli(), start.Add(time.Hour).UnixMilli(), 120, dayStart, dayEnd, time.UTC)
	assert.Equal(t, []HourShare{{Hour: 23, Sec: 120}}, got)
}

func TestUpsertHourly_HourCap(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.agg.UpsertHourly(testDate, 3, 14, false, 4200))

	buckets, err := h.repo.HourlyBucketsFor(testDate, 3)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, 3600, buckets[0].DurationSec)

	assert.ErrorIs(t, h.agg.UpsertHourly(testDate, 3, 24, false, 10), usage.ErrInvalidHour)
	assert.ErrorIs(t, h.agg.UpsertHourly("bad", 3, 1, false, 10), usage.ErrInvalidDate)
}

func TestRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.addSession(t, "com.duolingo", 2, at(9, 0), 10*time.Minute)
	h.addSession(t, "com.tencent.mm", 1, at(12, 0), 90*time.Minute)
	h.addSession(t, "com.miui.home", 1, at(10, 0), 10*time.Minute)
	h.addSession(t, "com.tencent.mm", 1, at(16, 0), 5*time.Second)
	h.addTimer(t, 3, at(18, 0), 30*time.Minute)

	result, err := h.agg.Run(ctx, testDate)
	require.NoError(t, err)

	assert.Equal(t, 4, result.Sessions)
	assert.Equal(t, 2, result.Kept)
	assert.Equal(t, 1, result.Timers)
	assert.Equal(t, []int{1, 2, 3}, result.Categories)

	total, ok := h.dailyTotal(t, testDate, 1)
	require.True(t, ok)
	assert.Equal(t, 900, total, "HIGH-level 90 min session adjusts to 900s")

	total, ok = h.dailyTotal(t, testDate, 2)
	require.True(t, ok)
	assert.Equal(t, 600, total)

	total, ok = h.dailyTotal(t, testDate, 3)
	require.True(t, ok)
	assert.Equal(t, 1800, total)

	timerBuckets, err := h.repo.HourlyBucketsFor(testDate, 3)
	require.NoError(t, err)
	require.Len(t, timerBuckets, 1)
	assert.True(t, timerBuckets[0].IsOffline)

	week, ok, err := h.repo.Period(usage.PeriodWeek, "2024-04-29", 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 900, week.TotalSec)

	month, ok, err := h.repo.Period(usage.PeriodMonth, "2024-05-01", 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 600, month.TotalSec)
}

func TestRun_SessionCrossingMidnight(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// 90 minutes of WeChat from 23:15: adjusted as one 5400s session.
	s := h.addSession(t, "com.tencent.mm", 1, at(23, 15), 90*time.Minute)
	require.Equal(t, []string{testDate, "2024-05-02"}, s.SpannedDates())

	first, err := h.agg.Run(ctx, testDate)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Kept)
	second, err := h.agg.Run(ctx, "2024-05-02")
	require.NoError(t, err)
	assert.Equal(t, 1, second.Kept)

	day1, ok := h.dailyTotal(t, testDate, 1)
	require.True(t, ok)
	day2, ok := h.dailyTotal(t, "2024-05-02", 1)
	require.True(t, ok)
	assert.Equal(t, 450, day1)
	assert.Equal(t, 450, day2)
	assert.Equal(t, 900, day1+day2)

	buckets, err := h.repo.HourlyBucketsFor("2024-05-02", 1)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, 0, buckets[0].Hour)

	week, ok, err := h.repo.Period(usage.PeriodWeek, "2024-04-29", 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 900, week.TotalSec)
}

func TestSplitHours_ShareOfCrossingSession(t *testing.T) {
	dayStart, dayEnd, err := usage.DayBounds("2024-05-02", time.UTC)
	require.NoError(t, err)

	start, end := at(23, 0), at(23, 0).Add(3*time.Hour)
	share := usage.ShareOn("2024-05-02", start.UnixMilli(), end.UnixMilli(), 900, time.UTC)
	assert.Equal(t, 600, share)

	got := SplitHours(start.UnixMilli(), end.UnixMilli(), share, dayStart, dayEnd, time.UTC)
	assert.Equal(t, []HourShare{{Hour: 0, Sec: 300}, {Hour: 1, Sec: 300}}, got)
}

func TestRun_Idempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.addSession(t, "com.duolingo", 2, at(9, 50), 30*time.Minute)
	h.addSession(t, "com.whatsapp", 1, at(20, 0), 45*time.Minute)

	_, err := h.agg.Run(ctx, testDate)
	require.NoError(t, err)
	first, err := h.repo.HourlyBuckets(testDate)
	require.NoError(t, err)

	second, err := h.agg.Run(ctx, testDate)
	require.NoError(t, err)
	again, err := h.repo.HourlyBuckets(testDate)
	require.NoError(t, err)

	assert.Equal(t, first, again)
	assert.Zero(t, second.Removed)
}

func TestRun_RemovesStaleAggregates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	s := h.addSession(t, "com.duolingo", 2, at(9, 0), 10*time.Minute)
	h.addSession(t, "com.netflix.mediaclient", 1, at(9, 0), 10*time.Minute)

	_, err := h.agg.Run(ctx, testDate)
	require.NoError(t, err)

	require.NoError(t, h.repo.DeleteRawSession(s.Date, s.ID))

	result, err := h.agg.Run(ctx, testDate)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Removed)

	_, ok := h.dailyTotal(t, testDate, 2)
	assert.False(t, ok)

	_, ok, err = h.repo.Period(usage.PeriodWeek, "2024-04-29", 2)
	require.NoError(t, err)
	assert.False(t, ok)

	total, ok := h.dailyTotal(t, testDate, 1)
	assert.True(t, ok)
	assert.Equal(t, 600, total)
}

func TestRun_HourCapAndSumInvariant(t *testing.T) {
	h := newHarness(t)

	h.addSession(t, "com.duolingo", 2, at(10, 0), 50*time.Minute)
	h.addSession(t, "com.youdao.dict", 2, at(10, 5), 50*time.Minute)

	result, err := h.agg.Run(context.Background(), testDate)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Clamped)

	buckets, err := h.repo.HourlyBucketsFor(testDate, 2)
	require.NoError(t, err)

	sum := 0
	for _, b := range buckets {
		assert.LessOrEqual(t, b.DurationSec, usage.HourCapSec)
		sum += b.DurationSec
	}

	total, ok := h.dailyTotal(t, testDate, 2)
	require.True(t, ok)
	assert.Equal(t, sum, total)
}

func TestRecomputeWeekly_FallsBackToHourly(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.repo.PutDaily(usage.DailySummary{Date: "2024-04-29", CategoryID: 1, TotalSec: 100}))
	require.NoError(t, h.agg.UpsertHourly("2024-04-30", 1, 8, false, 50))

	require.NoError(t, h.agg.RecomputeWeekly("2024-04-29", 1))

	week, ok, err := h.repo.Period(usage.PeriodWeek, "2024-04-29", 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 150, week.TotalSec)

	assert.ErrorIs(t, h.agg.RecomputeWeekly("2024-04-30", 1), usage.ErrInvalidDate)
}

func TestRecomputeDaily_DeletesEmptyParent(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.repo.PutDaily(usage.DailySummary{Date: testDate, CategoryID: 2, TotalSec: 999}))
	require.NoError(t, h.agg.RecomputeDaily(testDate, 2))

	_, ok := h.dailyTotal(t, testDate, 2)
	assert.False(t, ok)
}

func TestRun_Errors(t *testing.T) {
	h := newHarness(t)

	_, err := h.agg.Run(context.Background(), "2024-13-01")
	assert.ErrorIs(t, err, usage.ErrInvalidDate)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = h.agg.Run(ctx, testDate)
	assert.ErrorIs(t, err, context.Canceled)
}
