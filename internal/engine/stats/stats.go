// Package stats accumulates durable violation counters per (community,
// author, rule). Counts are bucketed by UTC day; rolling-window aggregates
// are recomputed from the buckets on every update, never mutated on their
// own.
package stats

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/sentrabot/sentra/internal/storage"
)

// dateLayout formats the UTC day keys of the daily buckets.
const dateLayout = "2006-01-02"

// MaxRetentionDays bounds how long daily buckets are kept.
const MaxRetentionDays = 360

// Window is one rolling aggregate definition.
type Window struct {
	Label string
	Days  int
}

// Windows are the rolling aggregates maintained for every record.
var Windows = []Window{
	{"24h", 1},
	{"7d", 7},
	{"30d", 30},
	{"90d", 90},
	{"120d", 120},
	{"180d", 180},
	{"360d", 360},
}

// Record holds one rule's violation history for one author.
type Record struct {
	Label       string         `json:"label"`
	DailyCounts map[string]int `json:"daily_counts"`
	Aggregates  map[string]int `json:"aggregates"`
	LastUpdated string         `json:"last_updated"`
}

// Tracker owns all violation records and serializes mutation through its
// lock. The in-memory state is authoritative; snapshot writes happen off the
// event path and failures are logged, never raised.
type Tracker struct {
	mu     sync.Mutex
	data   map[string]map[string]map[string]*Record
	path   string
	logger *zap.Logger
	saves  conc.WaitGroup
	clock  func() time.Time
}

// NewTracker creates a tracker persisting to path.
func NewTracker(path string, logger *zap.Logger) *Tracker {
	return &Tracker{
		data:   make(map[string]map[string]map[string]*Record),
		path:   path,
		logger: logger.Named("stats"),
		clock:  time.Now,
	}
}

// Record bumps today's bucket for the key, prunes stale buckets, recomputes
// every rolling aggregate and schedules an asynchronous snapshot save.
func (t *Tracker) Record(community, author snowflake.ID, ruleKey, label string) {
	today := t.clock().UTC()
	todayKey := today.Format(dateLayout)

	t.mu.Lock()
	communityBucket := t.data[community.String()]
	if communityBucket == nil {
		communityBucket = make(map[string]map[string]*Record)
		t.data[community.String()] = communityBucket
	}
	authorBucket := communityBucket[author.String()]
	if authorBucket == nil {
		authorBucket = make(map[string]*Record)
		communityBucket[author.String()] = authorBucket
	}
	record := authorBucket[ruleKey]
	if record == nil {
		record = &Record{DailyCounts: make(map[string]int)}
		authorBucket[ruleKey] = record
	}

	if label != "" {
		record.Label = label
	} else if record.Label == "" {
		record.Label = ruleKey
	}

	record.DailyCounts[todayKey]++
	pruneDailyCounts(record.DailyCounts, today)
	record.Aggregates = calculateAggregates(record.DailyCounts, today)
	record.LastUpdated = todayKey
	t.mu.Unlock()

	t.saveAsync()
}

// Lookup returns a copy of the record for the key, if present.
func (t *Tracker) Lookup(community, author snowflake.ID, ruleKey string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	record, ok := t.data[community.String()][author.String()][ruleKey]
	if !ok {
		return Record{}, false
	}

	copied := Record{
		Label:       record.Label,
		DailyCounts: make(map[string]int, len(record.DailyCounts)),
		Aggregates:  make(map[string]int, len(record.Aggregates)),
		LastUpdated: record.LastUpdated,
	}
	for k, v := range record.DailyCounts {
		copied.DailyCounts[k] = v
	}
	for k, v := range record.Aggregates {
		copied.Aggregates[k] = v
	}
	return copied, true
}

// RemoveRule drops a rule's records across the whole community, pruning
// emptied author and community nodes, then schedules a save.
func (t *Tracker) RemoveRule(community snowflake.ID, ruleKey string) {
	t.mu.Lock()
	communityBucket := t.data[community.String()]
	for authorKey, authorBucket := range communityBucket {
		delete(authorBucket, ruleKey)
		if len(authorBucket) == 0 {
			delete(communityBucket, authorKey)
		}
	}
	if len(communityBucket) == 0 {
		delete(t.data, community.String())
	}
	t.mu.Unlock()

	t.saveAsync()
}

// Save writes the snapshot atomically. Exposed for shutdown flushes; the
// event path uses the asynchronous variant.
func (t *Tracker) Save() error {
	t.mu.Lock()
	snapshot := make(map[string]map[string]map[string]*Record, len(t.data))
	for communityKey, communityBucket := range t.data {
		snapshot[communityKey] = make(map[string]map[string]*Record, len(communityBucket))
		for authorKey, authorBucket := range communityBucket {
			rules := make(map[string]*Record, len(authorBucket))
			for ruleKey, record := range authorBucket {
				copied := *record
				copied.DailyCounts = make(map[string]int, len(record.DailyCounts))
				for k, v := range record.DailyCounts {
					copied.DailyCounts[k] = v
				}
				copied.Aggregates = make(map[string]int, len(record.Aggregates))
				for k, v := range record.Aggregates {
					copied.Aggregates[k] = v
				}
				rules[ruleKey] = &copied
			}
			snapshot[communityKey][authorKey] = rules
		}
	}
	t.mu.Unlock()

	return storage.SaveSnapshot(t.path, snapshot)
}

// Load replaces the in-memory state from disk. Missing or corrupt files
// yield an empty statistics set rather than a startup failure.
func (t *Tracker) Load() {
	var snapshot map[string]map[string]map[string]*Record
	if err := storage.LoadSnapshot(t.path, &snapshot); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			t.logger.Warn("Starting with empty violation statistics", zap.Error(err))
		}
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.data = make(map[string]map[string]map[string]*Record, len(snapshot))
	for communityKey, communityBucket := range snapshot {
		t.data[communityKey] = communityBucket
		for _, authorBucket := range communityBucket {
			for _, record := range authorBucket {
				if record.DailyCounts == nil {
					record.DailyCounts = make(map[string]int)
				}
			}
		}
	}
}

// Close waits for in-flight snapshot saves to finish.
func (t *Tracker) Close() {
	t.saves.Wait()
}

func (t *Tracker) saveAsync() {
	t.saves.Go(func() {
		if err := t.Save(); err != nil {
			t.logger.Error("Failed to save violation statistics", zap.Error(err))
		}
	})
}

// pruneDailyCounts removes buckets older than the retention horizon and any
// keys that no longer parse as dates.
func pruneDailyCounts(counts map[string]int, today time.Time) {
	cutoff := today.AddDate(0, 0, -(MaxRetentionDays - 1))
	for key := range counts {
		date, err := time.Parse(dateLayout, key)
		if err != nil || date.Before(truncateDay(cutoff)) {
			delete(counts, key)
		}
	}
}

// calculateAggregates recomputes every rolling window as a pure function of
// the daily buckets.
func calculateAggregates(counts map[string]int, today time.Time) map[string]int {
	aggregates := make(map[string]int, len(Windows))
	for _, window := range Windows {
		cutoff := truncateDay(today.AddDate(0, 0, -(window.Days - 1)))
		total := 0
		for key, value := range counts {
			date, err := time.Parse(dateLayout, key)
			if err != nil {
				continue
			}
			if !date.Before(cutoff) {
				total += value
			}
		}
		aggregates[window.Label] = total
	}
	return aggregates
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
