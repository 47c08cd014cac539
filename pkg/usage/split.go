package usage

import (
	"sort"
	"time"
)

// DayShare is the part of a session's seconds credited to one local date.
type DayShare struct {
	Date string
	Sec  int
}

// Apportion splits total over weights proportionally. Parts sum to exactly
// total; leftover seconds go to the largest remainders, earlier index first
// on ties. Zero or negative weights get nothing unless all are zero, in
// which case the first entry takes everything.
func Apportion(total int, weights []int64) []int {
	parts := make([]int, len(weights))
	if total <= 0 || len(weights) == 0 {
		return parts
	}

	var sum int64
	for _, w := range weights {
		if w > 0 {
			sum += w
		}
	}
	if sum == 0 {
		parts[0] = total
		return parts
	}

	remainders := make([]int64, len(weights))
	assigned := 0
	for i, w := range weights {
		if w <= 0 {
			remainders[i] = -1
			continue
		}
		product := int64(total) * w
		parts[i] = int(product / sum)
		remainders[i] = product % sum
		assigned += parts[i]
	}

	order := make([]int, len(weights))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return remainders[order[a]] > remainders[order[b]]
	})
	for i := 0; assigned < total; i++ {
		parts[order[i%len(order)]]++
		assigned++
	}
	return parts
}

// SplitDays apportions totalSec over the local dates that [start, end)
// covers in loc, proportionally to time spent on each date. Shares sum to
// exactly totalSec. Dates that receive no seconds are omitted.
func SplitDays(start, end int64, totalSec int, loc *time.Location) []DayShare {
	if totalSec <= 0 {
		return nil
	}
	loc = location(loc)
	if end <= start {
		return []DayShare{{Date: DateOf(start, loc), Sec: totalSec}}
	}

	var (
		dates   []string
		weights []int64
	)
	for cur := start; cur < end; {
		t := time.UnixMilli(cur).In(loc)
		next := time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc).UnixMilli()
		if next > end {
			next = end
		}
		dates = append(dates, t.Format(DateLayout))
		weights = append(weights, next-cur)
		cur = next
	}

	parts := Apportion(totalSec, weights)
	out := make([]DayShare, 0, len(parts))
	for i, sec := range parts {
		if sec > 0 {
			out = append(out, DayShare{Date: dates[i], Sec: sec})
		}
	}
	return out
}

// ShareOn returns the seconds of totalSec that SplitDays credits to date.
func ShareOn(date string, start, end int64, totalSec int, loc *time.Location) int {
	for _, d := range SplitDays(start, end, totalSec, loc) {
		if d.Date == date {
			return d.Sec
		}
	}
	return 0
}

// SpannedDates lists the local dates from Date through EndDate.
func (s RawUsageSession) SpannedDates() []string {
	if s.EndDate == "" || s.EndDate <= s.Date {
		return []string{s.Date}
	}

	first, err := ParseDate(s.Date, time.UTC)
	if err != nil {
		return []string{s.Date}
	}
	var dates []string
	for d := first; ; d = d.AddDate(0, 0, 1) {
		date := d.Format(DateLayout)
		if date > s.EndDate {
			break
		}
		dates = append(dates, date)
	}
	return dates
}

// endDate returns the local date of the last millisecond of [start, end),
// or "" when it is the start date.
func endDate(startMillis, endMillis int64, loc *time.Location) string {
	last := DateOf(endMillis-1, loc)
	if last == DateOf(startMillis, loc) {
		return ""
	}
	return last
}
