// Package ratelimit implements a generic sliding-window request counter.
// The same limiter shape throttles administrative rule commands and
// user-facing verification requests, each with its own (max, window) pair
// and independent state.
package ratelimit

import (
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Limiter counts recent requests per actor inside a sliding window.
// A companion warn cooldown suppresses repeated "slow down" messages
// independently of the allow/deny decision.
type Limiter struct {
	mu           sync.Mutex
	max          int
	window       time.Duration
	warnCooldown time.Duration
	requests     map[snowflake.ID][]time.Time
	lastWarned   map[snowflake.ID]time.Time
	clock        func() time.Time
}

// New creates a limiter allowing max requests per window, with warnCooldown
// between warning messages per actor.
func New(max int, window, warnCooldown time.Duration) *Limiter {
	return &Limiter{
		max:          max,
		window:       window,
		warnCooldown: warnCooldown,
		requests:     make(map[snowflake.ID][]time.Time),
		lastWarned:   make(map[snowflake.ID]time.Time),
		clock:        time.Now,
	}
}

// Allow prunes the actor's stale requests, then admits and records the
// request only when the remaining count is below the maximum.
func (l *Limiter) Allow(actor snowflake.ID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	cutoff := now.Add(-l.window)

	kept := l.requests[actor][:0]
	for _, at := range l.requests[actor] {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}

	if len(kept) >= l.max {
		l.requests[actor] = kept
		return false
	}

	l.requests[actor] = append(kept, now)
	return true
}

// ShouldWarn reports whether a rate-limit warning may be shown to the actor
// now, and if so starts the warn cooldown. Independent of Allow.
func (l *Limiter) ShouldWarn(actor snowflake.ID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()
	if last, ok := l.lastWarned[actor]; ok && now.Sub(last) < l.warnCooldown {
		return false
	}
	l.lastWarned[actor] = now
	return true
}
