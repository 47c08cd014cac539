package usage

import (
	"fmt"
	"strings"
	"time"
)

// NewRawUsageSession builds a raw session from an ingested tuple. Date is the
// local date of start in loc. A session crossing midnight stays whole and
// records the date it ends on.
func NewRawUsageSession(pkg string, categoryID int, startMillis, endMillis int64, loc *time.Location) (RawUsageSession, error) {
	if strings.TrimSpace(pkg) == "" {
		return RawUsageSession{}, ErrEmptyPackage
	}
	if endMillis <= startMillis {
		return RawUsageSession{}, fmt.Errorf("%w: start=%d end=%d", ErrInvalidTimeRange, startMillis, endMillis)
	}

	return RawUsageSession{
		PackageName:     pkg,
		CategoryID:      categoryID,
		StartTimeMillis: startMillis,
		EndTimeMillis:   endMillis,
		DurationSec:     DurationSec(startMillis, endMillis),
		Date:            DateOf(startMillis, loc),
		EndDate:         endDate(startMillis, endMillis, loc),
	}, nil
}

// NewTimerSession builds a timer session with the same invariants as a raw
// session.
func NewTimerSession(categoryID int, startMillis, endMillis int64, loc *time.Location) (TimerSession, error) {
	if endMillis <= startMillis {
		return TimerSession{}, fmt.Errorf("%w: start=%d end=%d", ErrInvalidTimeRange, startMillis, endMillis)
	}

	return TimerSession{
		CategoryID:      categoryID,
		StartTimeMillis: startMillis,
		EndTimeMillis:   endMillis,
		DurationSec:     DurationSec(startMillis, endMillis),
		Date:            DateOf(startMillis, loc),
	}, nil
}

// WithEnd returns a copy of s ending at endMillis with DurationSec and
// EndDate recomputed in loc.
func (s RawUsageSession) WithEnd(endMillis int64, loc *time.Location) (RawUsageSession, error) {
	if endMillis <= s.StartTimeMillis {
		return RawUsageSession{}, fmt.Errorf("%w: start=%d end=%d", ErrInvalidTimeRange, s.StartTimeMillis, endMillis)
	}
	s.EndTimeMillis = endMillis
	s.DurationSec = DurationSec(s.StartTimeMillis, endMillis)
	s.EndDate = endDate(s.StartTimeMillis, endMillis, loc)
	return s, nil
}

// WithCategory returns a copy of s assigned to categoryID.
func (s RawUsageSession) WithCategory(categoryID int) RawUsageSession {
	s.CategoryID = categoryID
	return s
}

// WithCategory returns a copy of t assigned to categoryID.
func (t TimerSession) WithCategory(categoryID int) TimerSession {
	t.CategoryID = categoryID
	return t
}

// NewHourlyUsageBucket builds a bucket, clamping durationSec into
// [0, HourCapSec]. The second result reports whether clamping happened.
func NewHourlyUsageBucket(date string, categoryID, hour int, offline bool, durationSec int) (HourlyUsageBucket, bool) {
	clamped := false
	switch {
	case durationSec > HourCapSec:
		durationSec = HourCapSec
		clamped = true
	case durationSec < 0:
		durationSec = 0
		clamped = true
	}

	return HourlyUsageBucket{
		Date:        date,
		CategoryID:  categoryID,
		Hour:        hour,
		IsOffline:   offline,
		DurationSec: durationSec,
	}, clamped
}

// WithCategory returns a copy of b under categoryID.
func (b HourlyUsageBucket) WithCategory(categoryID int) HourlyUsageBucket {
	b.CategoryID = categoryID
	return b
}

// Merge adds other's duration to b, re-applying the hour cap.
func (b HourlyUsageBucket) Merge(other HourlyUsageBucket) (HourlyUsageBucket, bool) {
	return NewHourlyUsageBucket(b.Date, b.CategoryID, b.Hour, b.IsOffline, b.DurationSec+other.DurationSec)
}

// NewDailySummary sums the buckets of (date, categoryID). Buckets for another
// date or category are rejected.
func NewDailySummary(date string, categoryID int, buckets []HourlyUsageBucket) (DailySummary, error) {
	total := 0
	for _, b := range buckets {
		if b.Date != date || b.CategoryID != categoryID {
			return DailySummary{}, fmt.Errorf("%w: bucket %s/%d for daily %s/%d",
				ErrForeignChild, b.Date, b.CategoryID, date, categoryID)
		}
		if b.DurationSec < 0 {
			return DailySummary{}, fmt.Errorf("%w: hour %d has %d", ErrNegativeTotal, b.Hour, b.DurationSec)
		}
		total += b.DurationSec
	}

	return DailySummary{Date: date, CategoryID: categoryID, TotalSec: total}, nil
}

// WithCategory returns a copy of d under categoryID.
func (d DailySummary) WithCategory(categoryID int) DailySummary {
	d.CategoryID = categoryID
	return d
}

// NewPeriodSummary sums daily rows that fall inside the period starting at
// start. start must be a Monday for weeks and day 1 for months.
func NewPeriodSummary(period Period, start string, categoryID int, days []DailySummary) (PeriodSummary, error) {
	dates, err := PeriodDates(period, start)
	if err != nil {
		return PeriodSummary{}, err
	}

	inPeriod := make(map[string]bool, len(dates))
	for _, d := range dates {
		inPeriod[d] = true
	}

	total := 0
	for _, d := range days {
		if !inPeriod[d.Date] || d.CategoryID != categoryID {
			return PeriodSummary{}, fmt.Errorf("%w: daily %s/%d for %s %s/%d",
				ErrForeignChild, d.Date, d.CategoryID, period, start, categoryID)
		}
		if d.TotalSec < 0 {
			return PeriodSummary{}, fmt.Errorf("%w: daily %s has %d", ErrNegativeTotal, d.Date, d.TotalSec)
		}
		total += d.TotalSec
	}

	return PeriodSummary{Period: period, PeriodStart: start, CategoryID: categoryID, TotalSec: total}, nil
}

// WithCategory returns a copy of p under categoryID.
func (p PeriodSummary) WithCategory(categoryID int) PeriodSummary {
	p.CategoryID = categoryID
	return p
}

// DurationSec rounds a millisecond interval to whole seconds, half up.
func DurationSec(startMillis, endMillis int64) int {
	diff := endMillis - startMillis
	if diff <= 0 {
		return 0
	}
	return int((diff + 500) / 1000)
}
