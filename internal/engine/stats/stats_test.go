// Internal package tests so the clock can be pinned to fixed days.
package stats

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	community = snowflake.ID(1001)
	author    = snowflake.ID(2002)
)

func newTestTracker(t *testing.T, now time.Time) *Tracker {
	t.Helper()
	tracker := NewTracker(filepath.Join(t.TempDir(), "stats.json"), zap.NewNop())
	tracker.clock = func() time.Time { return now }
	return tracker
}

func TestRecordBumpsTodayAndAggregates(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	tracker := newTestTracker(t, now)

	tracker.Record(community, author, "spam", "Spam")
	tracker.Record(community, author, "spam", "Spam")
	tracker.Close()

	record, ok := tracker.Lookup(community, author, "spam")
	require.True(t, ok)
	assert.Equal(t, "Spam", record.Label)
	assert.Equal(t, 2, record.DailyCounts["2025-06-15"])
	assert.Equal(t, "2025-06-15", record.LastUpdated)

	// Every rolling window includes today.
	for _, window := range Windows {
		assert.Equal(t, 2, record.Aggregates[window.Label], window.Label)
	}
}

func TestAggregatesRespectWindowBoundaries(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	tracker := newTestTracker(t, start)

	tracker.Record(community, author, "spam", "")

	// Ten days later the first violation is outside 24h and 7d but inside 30d.
	later := start.AddDate(0, 0, 10)
	tracker.clock = func() time.Time { return later }
	tracker.Record(community, author, "spam", "")
	tracker.Close()

	record, ok := tracker.Lookup(community, author, "spam")
	require.True(t, ok)
	assert.Equal(t, 1, record.Aggregates["24h"])
	assert.Equal(t, 1, record.Aggregates["7d"])
	assert.Equal(t, 2, record.Aggregates["30d"])
	assert.Equal(t, 2, record.Aggregates["360d"])
}

func TestRetentionPrunesOldBuckets(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	tracker := newTestTracker(t, start)

	tracker.Record(community, author, "spam", "")

	// Recording past the retention horizon drops the original bucket.
	later := start.AddDate(0, 0, MaxRetentionDays+5)
	tracker.clock = func() time.Time { return later }
	tracker.Record(community, author, "spam", "")
	tracker.Close()

	record, ok := tracker.Lookup(community, author, "spam")
	require.True(t, ok)
	assert.NotContains(t, record.DailyCounts, "2024-01-01")
	assert.Len(t, record.DailyCounts, 1)
}

func TestLookupReturnsCopy(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	tracker := newTestTracker(t, now)
	tracker.Record(community, author, "spam", "")
	tracker.Close()

	record, ok := tracker.Lookup(community, author, "spam")
	require.True(t, ok)
	record.DailyCounts["2025-06-15"] = 999

	fresh, ok := tracker.Lookup(community, author, "spam")
	require.True(t, ok)
	assert.Equal(t, 1, fresh.DailyCounts["2025-06-15"])
}

func TestRemoveRule(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	tracker := newTestTracker(t, now)
	tracker.Record(community, author, "spam", "")
	tracker.Record(community, author, "flood", "")

	tracker.RemoveRule(community, "spam")
	tracker.Close()

	_, ok := tracker.Lookup(community, author, "spam")
	assert.False(t, ok)
	_, ok = tracker.Lookup(community, author, "flood")
	assert.True(t, ok)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	path := filepath.Join(t.TempDir(), "stats.json")

	tracker := NewTracker(path, zap.NewNop())
	tracker.clock = func() time.Time { return now }
	tracker.Record(community, author, "spam", "Spam")
	tracker.Close()
	require.NoError(t, tracker.Save())

	reloaded := NewTracker(path, zap.NewNop())
	reloaded.Load()

	record, ok := reloaded.Lookup(community, author, "spam")
	require.True(t, ok)
	assert.Equal(t, "Spam", record.Label)
	assert.Equal(t, 1, record.DailyCounts["2025-06-15"])
}

func TestLoadMissingFileStartsEmpty(t *testing.T) {
	t.Parallel()

	tracker := NewTracker(filepath.Join(t.TempDir(), "absent.json"), zap.NewNop())
	tracker.Load()

	_, ok := tracker.Lookup(community, author, "spam")
	assert.False(t, ok)
}
