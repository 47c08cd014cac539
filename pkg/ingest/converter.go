package ingest

import (
	"sort"
	"time"

	"github.com/0xmhha/usage-ledger/pkg/categorizer"
	"github.com/0xmhha/usage-ledger/pkg/logger"
	"github.com/0xmhha/usage-ledger/pkg/parser"
	"github.com/0xmhha/usage-ledger/pkg/usage"
)

// Converter turns parsed tuples into raw and timer sessions.
type Converter struct {
	categorizer categorizer.Categorizer
	loc         *time.Location
	logger      logger.Logger
}

// NewConverter creates a converter classifying with cat and dating rows in
// loc. A nil loc means time.Local.
func NewConverter(cat categorizer.Categorizer, loc *time.Location, log logger.Logger) *Converter {
	if loc == nil {
		loc = time.Local
	}
	return &Converter{
		categorizer: cat,
		loc:         loc,
		logger:      log.Named("ingest"),
	}
}

// Convert classifies tuples and drops excluded ones. App sessions stay whole
// so adjustment and anomaly checks see their full length; timers are split
// at local midnight. Sessions and timers have no ids yet.
func (c *Converter) Convert(tuples []parser.SessionTuple) Result {
	var res Result

	for _, t := range tuples {
		if t.IsTimer() {
			c.convertTimer(t, &res)
			continue
		}

		resolved := c.categorizer.Resolve(t.Package)
		if resolved.Miss {
			res.Misses++
		}
		if resolved.Excluded {
			res.Excluded++
			continue
		}

		s, err := usage.NewRawUsageSession(t.Package, resolved.CategoryID, t.Start, t.End, c.loc)
		if err != nil {
			res.Rejected++
			c.logger.Warn("rejected session", "package", t.Package, "error", err)
			continue
		}
		s.Offline = resolved.Offline
		res.Sessions = append(res.Sessions, s)
	}

	if res.Excluded > 0 || res.Rejected > 0 {
		c.logger.Debug("tuples dropped",
			"excluded", res.Excluded,
			"rejected", res.Rejected)
	}

	return res
}

func (c *Converter) convertTimer(t parser.SessionTuple, res *Result) {
	categoryID, ok := c.categorizer.CategoryID(t.Category)
	if !ok {
		categoryID = c.categorizer.DefaultCategoryID()
		res.Misses++
		c.logger.Warn("classification miss, using default category",
			"timer_category", t.Category,
			"category_id", categoryID)
	}

	for _, seg := range SplitAtMidnight(t.Start, t.End, c.loc) {
		timer, err := usage.NewTimerSession(categoryID, seg.Start, seg.End, c.loc)
		if err != nil {
			res.Rejected++
			c.logger.Warn("rejected timer session", "category", t.Category, "error", err)
			continue
		}
		res.Timers = append(res.Timers, timer)
	}
}

// Segment is a [Start, End) millisecond range within one local day.
type Segment struct {
	Start int64
	End   int64
}

// SplitAtMidnight splits [start, end) at every local midnight in loc.
func SplitAtMidnight(start, end int64, loc *time.Location) []Segment {
	if end <= start {
		return nil
	}
	if loc == nil {
		loc = time.Local
	}

	var segs []Segment
	for start < end {
		t := time.UnixMilli(start).In(loc)
		midnight := time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc).UnixMilli()
		if end <= midnight {
			segs = append(segs, Segment{Start: start, End: end})
			break
		}
		segs = append(segs, Segment{Start: start, End: midnight})
		start = midnight
	}
	return segs
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
