package migration

import (
	"context"
	"errors"
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

var errInjected = errors.New("injected write failure")

// faultyStore fails the failAt-th call to Update.
type faultyStore struct {
	store.Store
	calls  int
	failAt int
}

func (f *faultyStore) Update(fn func(tx store.KV) error) error {
	f.calls++
	if f.failAt > 0 && f.calls == f.failAt {
		return errInjected
	}
	return f.Store.Update(fn)
}

type fixture struct {
	st   store.Store
	repo *store.Repository
	cat  categorizer.Categorizer
	det  anomaly.Detector
	agg  aggregator.Aggregator
	eng  Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := store.Open(store.Config{Path: filepath.Join(t.TempDir(), "ledger.db")}, logger.Noop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	cat, err := categorizer.New(categorizer.Config{Categories: categorizer.DefaultCategories()}, logger.Noop())
	require.NoError(t, err)

	detCfg := anomaly.DefaultConfig()
	detCfg.Location = time.UTC
	det := anomaly.New(detCfg, residency.New(residency.DefaultConfig()), logger.Noop())
	agg := aggregator.New(aggregator.Config{Location: time.UTC}, st, cat, det, logger.Noop())

	f := &fixture{st: st, repo: store.NewRepository(st), cat: cat, det: det, agg: agg}
	f.eng = f.newEngine(t, st, Config{LegacyIDs: DefaultLegacyIDs(), Location: time.UTC})
	return f
}

func (f *fixture) newEngine(t *testing.T, st store.Store, cfg Config) Engine {
	t.Helper()
	eng, err := New(cfg, st, f.cat, f.agg, logger.Noop())
	require.NoError(t, err)
	return eng
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

// snapshot copies every category-bearing table.
func (f *fixture) snapshot(t *testing.T) map[store.Table]map[string]string {
	t.Helper()
	out := make(map[store.Table]map[string]string)
	for _, table := range store.CategoryTables {
		rows := make(map[string]string)
		require.NoError(t, f.st.Scan(table, nil, func(k, v []byte) error {
			rows[string(k)] = string(v)
			return nil
		}))
		out[table] = rows
	}
	return out
}

// seedScenarioD stores a fitness session under the legacy id 6 next to one
// under the live id 3, both aggregated.
func (f *fixture) seedScenarioD(t *testing.T) usage.RawUsageSession {
	t.Helper()
	legacy := f.add(t, "com.gotokeep.keep", 6, at(9, 0), at(9, 20))
	f.add(t, "com.gotokeep.keep", 3, at(9, 30), at(9, 50))

	_, err := f.agg.Run(context.Background(), testDate)
	require.NoError(t, err)

	daily, ok, err := f.repo.Daily(testDate, 6)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1200, daily.TotalSec)

	return legacy
}

func TestBuildCategoryMapping(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		legacy map[string]int
		want   map[int]int
	}{
		{"defaults", DefaultLegacyIDs(), map[int]int{5: 2, 6: 3}},
		{"unchanged id skipped", map[string]int{"fitness": 3}, map[int]int{}},
		{"unknown category ignored", map[string]int{"music": 7}, map[int]int{}},
		{"live id dropped", map[string]int{"learning": 3, "fitness": 6}, map[int]int{6: 3}},
		{"claimed twice dropped", map[string]int{"learning": 8, "fitness": 8}, map[int]int{}},
		{"none", nil, map[int]int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := f.newEngine(t, f.st, Config{LegacyIDs: tt.legacy})
			assert.Equal(t, tt.want, eng.BuildCategoryMapping())
		})
	}
}

func TestExecuteFullMigration_ScenarioD(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	legacy := f.seedScenarioD(t)

	needs, err := f.eng.NeedsMigration(ctx)
	require.NoError(t, err)
	assert.True(t, needs)

	result, err := f.eng.ExecuteFullMigration(ctx)
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, usage.MigrationCompleted, result.State)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, map[string]int{
		"raw_sessions":   1,
		"hourly":         1,
		"daily":          1,
		"weekly":         1,
		"monthly":        1,
		"timer_sessions": 0,
	}, result.PerTable)
	assert.Equal(t, 5, result.TotalMigrated)

	moved, ok, err := f.repo.RawSession(testDate, legacy.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, moved.CategoryID)

	_, ok, err = f.repo.Daily(testDate, 6)
	require.NoError(t, err)
	assert.False(t, ok, "daily row under the legacy id must be gone")

	daily, ok, err := f.repo.Daily(testDate, 3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2400, daily.TotalSec)

	buckets, err := f.repo.HourlyBucketsFor(testDate, 3)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, 2400, buckets[0].DurationSec)

	week, ok, err := f.repo.Period(usage.PeriodWeek, "2024-04-29", 3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2400, week.TotalSec)

	_, ok, err = f.repo.Period(usage.PeriodMonth, "2024-05-01", 6)
	require.NoError(t, err)
	assert.False(t, ok)

	needs, err = f.eng.NeedsMigration(ctx)
	require.NoError(t, err)
	assert.False(t, needs)
}

func TestExecuteFullMigration_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedScenarioD(t)

	_, err := f.eng.ExecuteFullMigration(ctx)
	require.NoError(t, err)
	before := f.snapshot(t)

	second, err := f.eng.ExecuteFullMigration(ctx)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Zero(t, second.TotalMigrated)
	assert.NotEqual(t, "", second.RunID)

	assert.Equal(t, before, f.snapshot(t))
}

func TestExecuteFullMigration_AggregatesMatchRecompute(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedScenarioD(t)

	_, err := f.eng.ExecuteFullMigration(ctx)
	require.NoError(t, err)
	migrated := f.snapshot(t)

	_, err = f.agg.Run(ctx, testDate)
	require.NoError(t, err)

	assert.Equal(t, migrated[store.TableHourly], f.snapshot(t)[store.TableHourly])
	assert.Equal(t, migrated[store.TableDaily], f.snapshot(t)[store.TableDaily])
}

func TestExecuteFullMigration_TimersAndHourCap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	timer, err := usage.NewTimerSession(5, at(7, 0).UnixMilli(), at(7, 30).UnixMilli(), time.UTC)
	require.NoError(t, err)
	timer, err = f.repo.InsertTimerSession(timer)
	require.NoError(t, err)

	require.NoError(t, f.agg.UpsertHourly(testDate, 3, 10, false, 3000))
	require.NoError(t, f.agg.UpsertHourly(testDate, 6, 10, false, 1000))

	result, err := f.eng.ExecuteFullMigration(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.PerTable["timer_sessions"])
	assert.Equal(t, 1, result.PerTable["hourly"])

	timers, err := f.repo.TimerSessions(testDate)
	require.NoError(t, err)
	require.Len(t, timers, 1)
	assert.Equal(t, timer.ID, timers[0].ID)
	assert.Equal(t, 2, timers[0].CategoryID)

	buckets, err := f.repo.HourlyBucketsFor(testDate, 3)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, usage.HourCapSec, buckets[0].DurationSec)
}

func TestExecuteFullMigration_FailureIsResumable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedScenarioD(t)

	faulty := &faultyStore{Store: f.st, failAt: 2}
	result, err := f.newEngine(t, faulty, Config{LegacyIDs: DefaultLegacyIDs()}).ExecuteFullMigration(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, errInjected)

	var rowErr *RowError
	require.ErrorAs(t, err, &rowErr)
	assert.Equal(t, store.TableHourly, rowErr.Table)

	assert.False(t, result.Success)
	assert.Equal(t, usage.MigrationFailed, result.State)
	assert.Contains(t, result.ErrorMessage, "injected write failure")
	assert.Equal(t, 1, result.PerTable["raw_sessions"])
	assert.Equal(t, 0, result.PerTable["hourly"])
	_, reached := result.PerTable["daily"]
	assert.False(t, reached, "remaining tables are aborted")

	needs, err := f.eng.NeedsMigration(ctx)
	require.NoError(t, err)
	assert.True(t, needs)

	resumed, err := f.eng.ExecuteFullMigration(ctx)
	require.NoError(t, err)
	assert.True(t, resumed.Success)
	assert.Equal(t, 0, resumed.PerTable["raw_sessions"])
	assert.Equal(t, 4, resumed.TotalMigrated)

	daily, ok, err := f.repo.Daily(testDate, 3)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2400, daily.TotalSec)
}

func TestExecuteFullMigration_Cancelled(t *testing.T) {
	f := newFixture(t)
	f.seedScenarioD(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := f.eng.ExecuteFullMigration(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, usage.MigrationFailed, result.State)
	assert.Zero(t, result.TotalMigrated)
}

func TestExecuteFullMigration_NoMapping(t *testing.T) {
	f := newFixture(t)
	f.seedScenarioD(t)

	eng := f.newEngine(t, f.st, Config{})
	result, err := eng.ExecuteFullMigration(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Zero(t, result.TotalMigrated)

	needs, err := eng.NeedsMigration(context.Background())
	require.NoError(t, err)
	assert.False(t, needs)
}

func TestNew_InvalidShrinkRatio(t *testing.T) {
	f := newFixture(t)

	_, err := New(Config{ShrinkRatio: 1.5}, f.st, f.cat, f.agg, logger.Noop())
	assert.ErrorIs(t, err, ErrInvalidShrinkRatio)

	_, err = New(Config{ShrinkRatio: -0.1}, f.st, f.cat, f.agg, logger.Noop())
	assert.ErrorIs(t, err, ErrInvalidShrinkRatio)
}
