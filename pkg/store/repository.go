package store

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/0xmhha/usage-ledger/pkg/usage"
)

// Repository gives typed access to the tables through a KV. Bind it to a
// Store for autocommit access or to the KV of Store.Update for
// transactional access.
type Repository struct {
	kv KV
}

// NewRepository creates a repository over kv.
func NewRepository(kv KV) *Repository {
	return &Repository{kv: kv}
}

// PeriodTable returns the table holding summaries of period.
func PeriodTable(period usage.Period) Table {
	if period == usage.PeriodMonth {
		return TableMonthly
	}
	return TableWeekly
}

// InsertRawSession assigns s a fresh id and stores it with its span index.
func (r *Repository) InsertRawSession(s usage.RawUsageSession) (usage.RawUsageSession, error) {
	id, err := r.kv.NextID(TableRawSessions)
	if err != nil {
		return usage.RawUsageSession{}, err
	}
	s.ID = id

	if err := r.put(TableRawSessions, s.Key(), s); err != nil {
		return usage.RawUsageSession{}, err
	}
	if err := r.putSpans(s); err != nil {
		return usage.RawUsageSession{}, err
	}
	return s, nil
}

// PutRawSession stores s under its current key, replacing the span index of
// the row it overwrites.
func (r *Repository) PutRawSession(s usage.RawUsageSession) error {
	old, ok, err := r.RawSession(s.Date, s.ID)
	if err != nil {
		return err
	}
	if ok {
		if err := r.deleteSpans(old); err != nil {
			return err
		}
	}

	if err := r.put(TableRawSessions, s.Key(), s); err != nil {
		return err
	}
	return r.putSpans(s)
}

// DeleteRawSession removes one raw session and its span index.
func (r *Repository) DeleteRawSession(date string, id int64) error {
	old, ok, err := r.RawSession(date, id)
	if err != nil {
		return err
	}
	if ok {
		if err := r.deleteSpans(old); err != nil {
			return err
		}
	}
	return r.kv.Delete(TableRawSessions, usage.RawSessionKey(date, id))
}

// RawSession returns one raw session.
func (r *Repository) RawSession(date string, id int64) (usage.RawUsageSession, bool, error) {
	var s usage.RawUsageSession
	ok, err := r.get(TableRawSessions, usage.RawSessionKey(date, id), &s)
	return s, ok, err
}

// RawSessions returns every raw session of date in id order.
func (r *Repository) RawSessions(date string) ([]usage.RawUsageSession, error) {
	var out []usage.RawUsageSession
	err := scanJSON(r.kv, TableRawSessions, usage.DatePrefix(date), func(s usage.RawUsageSession) {
		out = append(out, s)
	})
	return out, err
}

// RawSessionsOverlapping returns every raw session with time on date: the
// sessions started on earlier dates that run into it, oldest first, followed
// by RawSessions(date).
func (r *Repository) RawSessionsOverlapping(date string) ([]usage.RawUsageSession, error) {
	var origins [][]byte
	err := r.kv.Scan(TableSessionSpans, usage.DatePrefix(date), func(_, v []byte) error {
		origins = append(origins, append([]byte(nil), v...))
		return nil
	})
	if err != nil {
		return nil, err
	}

	var out []usage.RawUsageSession
	for _, key := range origins {
		var s usage.RawUsageSession
		ok, err := r.get(TableRawSessions, key, &s)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, s)
		}
	}

	own, err := r.RawSessions(date)
	if err != nil {
		return nil, err
	}
	return append(out, own...), nil
}

func spanKey(date string, s usage.RawUsageSession) []byte {
	return append(usage.DatePrefix(date), s.Key()...)
}

func (r *Repository) putSpans(s usage.RawUsageSession) error {
	for _, date := range s.SpannedDates()[1:] {
		if err := r.kv.Put(TableSessionSpans, spanKey(date, s), s.Key()); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) deleteSpans(s usage.RawUsageSession) error {
	for _, date := range s.SpannedDates()[1:] {
		if err := r.kv.Delete(TableSessionSpans, spanKey(date, s)); err != nil {
			return err
		}
	}
	return nil
}

// InsertTimerSession assigns t a fresh id and stores it.
func (r *Repository) InsertTimerSession(t usage.TimerSession) (usage.TimerSession, error) {
	id, err := r.kv.NextID(TableTimerSessions)
	if err != nil {
		return usage.TimerSession{}, err
	}
	t.ID = id

	if err := r.put(TableTimerSessions, t.Key(), t); err != nil {
		return usage.TimerSession{}, err
	}
	return t, nil
}

// TimerSessions returns every timer session of date.
func (r *Repository) TimerSessions(date string) ([]usage.TimerSession, error) {
	var out []usage.TimerSession
	err := scanJSON(r.kv, TableTimerSessions, usage.DatePrefix(date), func(t usage.TimerSession) {
		out = append(out, t)
	})
	return out, err
}

// PutHourly stores b, replacing any bucket with the same key.
func (r *Repository) PutHourly(b usage.HourlyUsageBucket) error {
	return r.put(TableHourly, b.Key(), b)
}

// DeleteHourly removes one bucket.
func (r *Repository) DeleteHourly(b usage.HourlyUsageBucket) error {
	return r.kv.Delete(TableHourly, b.Key())
}

// HourlyBuckets returns every bucket of date.
func (r *Repository) HourlyBuckets(date string) ([]usage.HourlyUsageBucket, error) {
	var out []usage.HourlyUsageBucket
	err := scanJSON(r.kv, TableHourly, usage.DatePrefix(date), func(b usage.HourlyUsageBucket) {
		out = append(out, b)
	})
	return out, err
}

// HourlyBucketsFor returns the buckets of (date, categoryID).
func (r *Repository) HourlyBucketsFor(date string, categoryID int) ([]usage.HourlyUsageBucket, error) {
	prefix := append(usage.DailyKey(date, categoryID), '/')

	var out []usage.HourlyUsageBucket
	err := scanJSON(r.kv, TableHourly, prefix, func(b usage.HourlyUsageBucket) {
		out = append(out, b)
	})
	return out, err
}

// PutDaily stores d.
func (r *Repository) PutDaily(d usage.DailySummary) error {
	return r.put(TableDaily, d.Key(), d)
}

// DeleteDaily removes the daily summary of (date, categoryID).
func (r *Repository) DeleteDaily(date string, categoryID int) error {
	return r.kv.Delete(TableDaily, usage.DailyKey(date, categoryID))
}

// Daily returns the daily summary of (date, categoryID).
func (r *Repository) Daily(date string, categoryID int) (usage.DailySummary, bool, error) {
	var d usage.DailySummary
	ok, err := r.get(TableDaily, usage.DailyKey(date, categoryID), &d)
	return d, ok, err
}

// DailySummaries returns every daily summary of date.
func (r *Repository) DailySummaries(date string) ([]usage.DailySummary, error) {
	var out []usage.DailySummary
	err := scanJSON(r.kv, TableDaily, usage.DatePrefix(date), func(d usage.DailySummary) {
		out = append(out, d)
	})
	return out, err
}

// PutPeriod stores p in its period table.
func (r *Repository) PutPeriod(p usage.PeriodSummary) error {
	return r.put(PeriodTable(p.Period), p.Key(), p)
}

// DeletePeriod removes the summary of (period, start, categoryID).
func (r *Repository) DeletePeriod(period usage.Period, start string, categoryID int) error {
	return r.kv.Delete(PeriodTable(period), usage.PeriodKey(start, categoryID))
}

// Period returns the summary of (period, start, categoryID).
func (r *Repository) Period(period usage.Period, start string, categoryID int) (usage.PeriodSummary, bool, error) {
	var p usage.PeriodSummary
	ok, err := r.get(PeriodTable(period), usage.PeriodKey(start, categoryID), &p)
	return p, ok, err
}

// Position returns the stored read offset of path, 0 when unknown.
func (r *Repository) Position(path string) (int64, error) {
	var offset int64
	if _, err := r.get(TablePositions, []byte(path), &offset); err != nil {
		return 0, err
	}
	return offset, nil
}

// SetPosition stores the read offset of path.
func (r *Repository) SetPosition(path string, offset int64) error {
	return r.put(TablePositions, []byte(path), offset)
}

// ResetPosition forgets the read offset of path.
func (r *Repository) ResetPosition(path string) error {
	return r.kv.Delete(TablePositions, []byte(path))
}

func (r *Repository) put(table Table, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s row: %w", table, err)
	}
	return r.kv.Put(table, key, data)
}

func (r *Repository) get(table Table, key []byte, v interface{}) (bool, error) {
	data, err := r.kv.Get(table, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s/%s: %w", table, key, err)
	}
	return true, nil
}

// Decode unmarshals a raw table value.
func Decode[T any](value []byte) (T, error) {
	var v T
	if err := json.Unmarshal(value, &v); err != nil {
		return v, fmt.Errorf("failed to unmarshal row: %w", err)
	}
	return v, nil
}

// Encode marshals a row for storage.
func Encode(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal row: %w", err)
	}
	return data, nil
}

func scanJSON[T any](kv KV, table Table, prefix []byte, fn func(T)) error {
	return kv.Scan(table, prefix, func(k, v []byte) error {
		row, err := Decode[T](v)
		if err != nil {
			return fmt.Errorf("%s/%s: %w", table, k, err)
		}
		fn(row)
		return nil
	})
}
