// Package history keeps the per-author sliding window of recent content the
// repetition detector counts over. The tracker is the sole writer of its
// entries; callers never mutate what it returns.
package history

import (
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/sentrabot/sentra/internal/utils"
)

// Entry is the retained subset of a content event.
type Entry struct {
	Timestamp time.Time
	Content   string
	ChannelID snowflake.ID
	IsReply   bool

	tokens []string
}

// Tokens returns the entry's lower-cased word tokens, computed once.
func (e *Entry) Tokens() []string {
	if e.tokens == nil {
		e.tokens = utils.Tokenize(e.Content)
	}
	return e.tokens
}

type key struct {
	community snowflake.ID
	author    snowflake.ID
}

// Tracker stores per-(community, author) entry windows.
type Tracker struct {
	mu      sync.Mutex
	entries map[key][]*Entry
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{entries: make(map[key][]*Entry)}
}

// Record appends an entry for the author, first pruning everything older than
// maxWindow relative to the new entry's timestamp. A zero maxWindow means no
// repetition rule is active for the community and the history is cleared.
func (t *Tracker) Record(community, author snowflake.ID, entry *Entry, maxWindow time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{community: community, author: author}
	if maxWindow <= 0 {
		delete(t.entries, k)
		return
	}

	cutoff := entry.Timestamp.Add(-maxWindow)
	kept := t.entries[k][:0]
	for _, e := range t.entries[k] {
		if !e.Timestamp.Before(cutoff) {
			kept = append(kept, e)
		}
	}
	t.entries[k] = append(kept, entry)
}

// Window returns the author's entries within window of now, oldest first.
func (t *Tracker) Window(community, author snowflake.ID, window time.Duration, now time.Time) []*Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := now.Add(-window)
	var result []*Entry
	for _, e := range t.entries[key{community: community, author: author}] {
		if !e.Timestamp.Before(cutoff) {
			result = append(result, e)
		}
	}
	return result
}

// ResetCommunity drops every author history in the community, so a removed or
// redefined rule restarts counting fresh.
func (t *Tracker) ResetCommunity(community snowflake.ID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for k := range t.entries {
		if k.community == community {
			delete(t.entries, k)
		}
	}
}
