package aggregator

import (
	"time"

	"github.com/0xmhha/usage-ledger/pkg/usage"
)

// HourShare is the part of a session's seconds that falls into one hour.
type HourShare struct {
	Hour int
	Sec  int
}

// SplitHours distributes totalSec over the local hours that [start, end)
// covers inside [dayStart, dayEnd), proportionally to time spent in each
// hour. Shares sum to exactly totalSec (largest remainder, earlier hour
// first on ties). A range entirely outside the day goes to the hour of
// start.
func SplitHours(start, end int64, totalSec int, dayStart, dayEnd int64, loc *time.Location) []HourShare {
	if totalSec <= 0 {
		return nil
	}

	if start < dayStart {
		start = dayStart
	}
	if end > dayEnd {
		end = dayEnd
	}
	if end <= start {
		return []HourShare{{Hour: time.UnixMilli(start).In(loc).Hour(), Sec: totalSec}}
	}

	type weight struct {
		hour int
		ms   int64
	}

	var weights []weight
	for cur := start; cur < end; {
		t := time.UnixMilli(cur).In(loc)
		next := time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, loc).UnixMilli()
		if next <= cur {
			next = cur + int64(time.Hour/time.Millisecond)
		}
		if next > end {
			next = end
		}

		// Repeated wall-clock hours on DST fall-back collapse into one.
		if n := len(weights); n > 0 && weights[n-1].hour == t.Hour() {
			weights[n-1].ms += next - cur
		} else {
			weights = append(weights, weight{hour: t.Hour(), ms: next - cur})
		}
		cur = next
	}

	ms := make([]int64, len(weights))
	for i, w := range weights {
		ms[i] = w.ms
	}

	var out []HourShare
	for i, sec := range usage.Apportion(totalSec, ms) {
		if sec > 0 {
			out = append(out, HourShare{Hour: weights[i].hour, Sec: sec})
		}
	}
	return out
}

