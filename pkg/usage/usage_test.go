package usage

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRawUsageSession(t *testing.T) {
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC).UnixMilli()

	tests := []struct {
		name    string
		pkg     string
		end     int64
		wantSec int
		wantErr error
	}{
		{name: "whole seconds", pkg: "com.example.app", end: start + 90_000, wantSec: 90},
		{name: "rounds half up", pkg: "com.example.app", end: start + 1_500, wantSec: 2},
		{name: "rounds down", pkg: "com.example.app", end: start + 1_499, wantSec: 1},
		{name: "sub-second", pkg: "com.example.app", end: start + 200, wantSec: 0},
		{name: "end equals start", pkg: "com.example.app", end: start, wantErr: ErrInvalidTimeRange},
		{name: "end before start", pkg: "com.example.app", end: start - 1, wantErr: ErrInvalidTimeRange},
		{name: "empty package", pkg: "  ", end: start + 1000, wantErr: ErrEmptyPackage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := NewRawUsageSession(tt.pkg, 1, start, tt.end, time.UTC)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantSec, s.DurationSec)
			assert.Equal(t, "2024-05-01", s.Date)
		})
	}
}

func TestNewRawUsageSession_DateFollowsLocation(t *testing.T) {
	shanghai := time.FixedZone("UTC+8", 8*3600)
	start := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC).UnixMilli()

	s, err := NewRawUsageSession("com.example.app", 1, start, start+60_000, shanghai)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-02", s.Date)
}

func TestRawUsageSession_WithEnd(t *testing.T) {
	s, err := NewRawUsageSession("com.example.app", 1, 0, 600_000, time.UTC)
	require.NoError(t, err)

	shorter, err := s.WithEnd(300_000, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 300, shorter.DurationSec)
	assert.Equal(t, 600, s.DurationSec, "original must not change")

	_, err = s.WithEnd(0, time.UTC)
	assert.ErrorIs(t, err, ErrInvalidTimeRange)
}

func TestNewRawUsageSession_CrossesMidnight(t *testing.T) {
	start := time.Date(2024, 5, 1, 23, 15, 0, 0, time.UTC).UnixMilli()

	s, err := NewRawUsageSession("com.tencent.mm", 1, start, start+5400_000, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, "2024-05-01", s.Date)
	assert.Equal(t, "2024-05-02", s.EndDate)
	assert.Equal(t, 5400, s.DurationSec)
	assert.Equal(t, []string{"2024-05-01", "2024-05-02"}, s.SpannedDates())

	// Ending exactly at midnight stays on the start date.
	midnight := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC).UnixMilli()
	exact, err := NewRawUsageSession("com.tencent.mm", 1, start, midnight, time.UTC)
	require.NoError(t, err)
	assert.Empty(t, exact.EndDate)
	assert.Equal(t, []string{"2024-05-01"}, exact.SpannedDates())

	trimmed, err := s.WithEnd(midnight-60_000, time.UTC)
	require.NoError(t, err)
	assert.Empty(t, trimmed.EndDate)
}

func TestSplitDays(t *testing.T) {
	start := time.Date(2024, 5, 1, 23, 15, 0, 0, time.UTC).UnixMilli()
	end := start + 5400_000 // 00:45 next day

	shares := SplitDays(start, end, 900, time.UTC)
	assert.Equal(t, []DayShare{
		{Date: "2024-05-01", Sec: 450},
		{Date: "2024-05-02", Sec: 450},
	}, shares)

	assert.Equal(t, 450, ShareOn("2024-05-02", start, end, 900, time.UTC))
	assert.Zero(t, ShareOn("2024-05-03", start, end, 900, time.UTC))

	long := SplitDays(start, start+int64(48*time.Hour/time.Millisecond), 1000, time.UTC)
	require.Len(t, long, 3)
	total := 0
	for _, d := range long {
		total += d.Sec
	}
	assert.Equal(t, 1000, total)
	assert.Equal(t, "2024-05-03", long[2].Date)

	assert.Nil(t, SplitDays(start, end, 0, time.UTC))
}

func TestApportion(t *testing.T) {
	assert.Equal(t, []int{1, 1, 1}, Apportion(3, []int64{1, 1, 1}))
	assert.Equal(t, []int{2, 1}, Apportion(3, []int64{1, 1}), "ties go to the earlier entry")
	assert.Equal(t, []int{0, 5}, Apportion(5, []int64{0, 7}))
	assert.Equal(t, []int{4, 0}, Apportion(4, []int64{0, 0}))
	assert.Equal(t, []int{0, 0}, Apportion(0, []int64{1, 1}))
}

func TestNewHourlyUsageBucket_HourCap(t *testing.T) {
	tests := []struct {
		name        string
		in          int
		want        int
		wantClamped bool
	}{
		{name: "over cap", in: 4200, want: 3600, wantClamped: true},
		{name: "at cap", in: 3600, want: 3600},
		{name: "under cap", in: 1200, want: 1200},
		{name: "negative", in: -5, want: 0, wantClamped: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, clamped := NewHourlyUsageBucket("2024-05-01", 3, 14, false, tt.in)
			assert.Equal(t, tt.want, b.DurationSec)
			assert.Equal(t, tt.wantClamped, clamped)
		})
	}
}

func TestHourlyUsageBucket_MergeKeepsCap(t *testing.T) {
	a, _ := NewHourlyUsageBucket("2024-05-01", 3, 14, false, 2000)
	b, _ := NewHourlyUsageBucket("2024-05-01", 3, 14, false, 2500)

	merged, clamped := a.Merge(b)
	assert.True(t, clamped)
	assert.Equal(t, HourCapSec, merged.DurationSec)
}

func TestNewDailySummary(t *testing.T) {
	buckets := []HourlyUsageBucket{
		{Date: "2024-05-01", CategoryID: 2, Hour: 8, DurationSec: 600},
		{Date: "2024-05-01", CategoryID: 2, Hour: 9, DurationSec: 3600},
		{Date: "2024-05-01", CategoryID: 2, Hour: 9, IsOffline: true, DurationSec: 120},
	}

	d, err := NewDailySummary("2024-05-01", 2, buckets)
	require.NoError(t, err)
	assert.Equal(t, 4320, d.TotalSec)

	empty, err := NewDailySummary("2024-05-01", 2, nil)
	require.NoError(t, err)
	assert.Zero(t, empty.TotalSec)
}

func TestNewDailySummary_RejectsForeignChildren(t *testing.T) {
	_, err := NewDailySummary("2024-05-01", 2, []HourlyUsageBucket{
		{Date: "2024-05-01", CategoryID: 3, Hour: 8, DurationSec: 10},
	})
	assert.ErrorIs(t, err, ErrForeignChild)

	_, err = NewDailySummary("2024-05-01", 2, []HourlyUsageBucket{
		{Date: "2024-05-02", CategoryID: 2, Hour: 8, DurationSec: 10},
	})
	assert.ErrorIs(t, err, ErrForeignChild)
}

func TestNewDailySummary_RejectsNegative(t *testing.T) {
	_, err := NewDailySummary("2024-05-01", 2, []HourlyUsageBucket{
		{Date: "2024-05-01", CategoryID: 2, Hour: 8, DurationSec: -1},
	})
	assert.True(t, errors.Is(err, ErrNegativeTotal))
}

func TestNewPeriodSummary(t *testing.T) {
	// 2024-04-29 is a Monday.
	days := []DailySummary{
		{Date: "2024-04-29", CategoryID: 1, TotalSec: 100},
		{Date: "2024-05-05", CategoryID: 1, TotalSec: 50},
	}

	week, err := NewPeriodSummary(PeriodWeek, "2024-04-29", 1, days)
	require.NoError(t, err)
	assert.Equal(t, 150, week.TotalSec)

	_, err = NewPeriodSummary(PeriodWeek, "2024-04-29", 1, []DailySummary{
		{Date: "2024-05-06", CategoryID: 1, TotalSec: 1},
	})
	assert.ErrorIs(t, err, ErrForeignChild)

	_, err = NewPeriodSummary(PeriodWeek, "2024-04-30", 1, nil)
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestPeriodStartAndDates(t *testing.T) {
	start, err := PeriodStart(PeriodWeek, "2024-05-01")
	require.NoError(t, err)
	assert.Equal(t, "2024-04-29", start)

	start, err = PeriodStart(PeriodWeek, "2024-05-05") // Sunday
	require.NoError(t, err)
	assert.Equal(t, "2024-04-29", start)

	start, err = PeriodStart(PeriodMonth, "2024-02-29")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-01", start)

	dates, err := PeriodDates(PeriodMonth, "2024-02-01")
	require.NoError(t, err)
	assert.Len(t, dates, 29)
	assert.Equal(t, "2024-02-29", dates[len(dates)-1])

	dates, err = PeriodDates(PeriodWeek, "2024-04-29")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"2024-04-29", "2024-04-30", "2024-05-01", "2024-05-02",
		"2024-05-03", "2024-05-04", "2024-05-05",
	}, dates)
}

func TestKeysSortByDate(t *testing.T) {
	assert.Equal(t, "2024-05-01/00000000000000000042", string(RawSessionKey("2024-05-01", 42)))
	assert.Equal(t, "2024-05-01/000003/07/1", string(HourlyKey("2024-05-01", 3, 7, true)))
	assert.Equal(t, "2024-05-01/000003", string(DailyKey("2024-05-01", 3)))
	assert.Less(t, string(RawSessionKey("2024-05-01", 99)), string(RawSessionKey("2024-05-02", 1)))
}

func TestDayBounds(t *testing.T) {
	start, end, err := DayBounds("2024-05-01", time.UTC)
	require.NoError(t, err)
	assert.Equal(t, int64(24*3600*1000), end-start)

	_, _, err = DayBounds("05/01/2024", time.UTC)
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestSuspiciousSession_ReasonText(t *testing.T) {
	s := SuspiciousSession{Reasons: []Reason{
		{Kind: ReasonNightLong, Message: "night-time long session"},
		{Kind: ReasonExtremeDuration, Message: "extreme duration"},
	}}

	assert.Equal(t, "night-time long session; extreme duration", s.ReasonText())
	assert.True(t, s.HasReason(ReasonExtremeDuration))
	assert.False(t, s.HasReason(ReasonPackageOverride))
}

func TestFormatSeconds(t *testing.T) {
	tests := []struct {
		sec  int
		want string
	}{
		{0, "0s"},
		{45, "45s"},
		{125, "2m05s"},
		{3723, "1h02m03s"},
		{-100, "-1m40s"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatSeconds(tt.sec))
	}
}
