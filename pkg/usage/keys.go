package usage

import (
	"fmt"
	"time"
)

// Composite keys are fixed-width so that lexical order equals logical order
// and every row of a date shares the "YYYY-MM-DD/" prefix.

// RawSessionKey returns the storage key of a raw session.
func RawSessionKey(date string, id int64) []byte {
	return []byte(fmt.Sprintf("%s/%020d", date, id))
}

// Key returns the storage key of s.
func (s RawUsageSession) Key() []byte { return RawSessionKey(s.Date, s.ID) }

// Key returns the storage key of t.
func (t TimerSession) Key() []byte { return RawSessionKey(t.Date, t.ID) }

// HourlyKey returns the composite key (date, category, hour, offline).
func HourlyKey(date string, categoryID, hour int, offline bool) []byte {
	flag := 0
	if offline {
		flag = 1
	}
	return []byte(fmt.Sprintf("%s/%06d/%02d/%d", date, categoryID, hour, flag))
}

// Key returns the composite key of b.
func (b HourlyUsageBucket) Key() []byte {
	return HourlyKey(b.Date, b.CategoryID, b.Hour, b.IsOffline)
}

// DailyKey returns the composite key (date, category).
func DailyKey(date string, categoryID int) []byte {
	return []byte(fmt.Sprintf("%s/%06d", date, categoryID))
}

// Key returns the composite key of d.
func (d DailySummary) Key() []byte { return DailyKey(d.Date, d.CategoryID) }

// PeriodKey returns the composite key (period start, category).
func PeriodKey(start string, categoryID int) []byte {
	return DailyKey(start, categoryID)
}

// Key returns the composite key of p.
func (p PeriodSummary) Key() []byte { return PeriodKey(p.PeriodStart, p.CategoryID) }

// DatePrefix returns the key prefix shared by all rows of date.
func DatePrefix(date string) []byte {
	return []byte(date + "/")
}

// DateOf returns the YYYY-MM-DD date of a millisecond timestamp in loc.
func DateOf(millis int64, loc *time.Location) string {
	return time.UnixMilli(millis).In(location(loc)).Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD date as local midnight in loc.
func ParseDate(date string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, date, location(loc))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	return t, nil
}

// DayBounds returns [start, end) of date in loc as Unix milliseconds.
func DayBounds(date string, loc *time.Location) (int64, int64, error) {
	day, err := ParseDate(date, loc)
	if err != nil {
		return 0, 0, err
	}
	next := time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, day.Location())
	return day.UnixMilli(), next.UnixMilli(), nil
}

// PeriodStart returns the start date of the period containing date.
func PeriodStart(period Period, date string) (string, error) {
	day, err := ParseDate(date, time.UTC)
	if err != nil {
		return "", err
	}

	switch period {
	case PeriodWeek:
		offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
		return day.AddDate(0, 0, -offset).Format(DateLayout), nil
	case PeriodMonth:
		return time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC).Format(DateLayout), nil
	default:
		return "", fmt.Errorf("unknown period %q", period)
	}
}

// PeriodDates lists every date of the period starting at start.
func PeriodDates(period Period, start string) ([]string, error) {
	first, err := ParseDate(start, time.UTC)
	if err != nil {
		return nil, err
	}

	canonical, err := PeriodStart(period, start)
	if err != nil {
		return nil, err
	}
	if canonical != start {
		return nil, fmt.Errorf("%w: %s is not a %s start", ErrInvalidDate, start, period)
	}

	var end time.Time
	if period == PeriodWeek {
		end = first.AddDate(0, 0, 7)
	} else {
		end = first.AddDate(0, 1, 0)
	}

	dates := make([]string, 0, 31)
	for d := first; d.Before(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(DateLayout))
	}
	return dates, nil
}

func location(loc *time.Location) *time.Location {
	if loc == nil {
		return time.Local
	}
	return loc
}
