// Package engine implements the moderation rule engine: content-filter and
// repetition rule evaluation over incoming content events, trigger handling
// with cooldowns, violation accounting, and rule administration. All mutable
// state is owned by the Engine struct; there are no ambient globals.
package engine

import (
	"context"
	"hash/maphash"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"

	"github.com/sentrabot/sentra/internal/engine/detector"
	"github.com/sentrabot/sentra/internal/engine/event"
	"github.com/sentrabot/sentra/internal/engine/extract"
	"github.com/sentrabot/sentra/internal/engine/history"
	"github.com/sentrabot/sentra/internal/engine/pattern"
	"github.com/sentrabot/sentra/internal/engine/rules"
	"github.com/sentrabot/sentra/internal/engine/stats"
	"github.com/sentrabot/sentra/internal/engine/trigger"
)

// lockStripes sizes the per-key mutex pool. Evaluation for one (community,
// author) key is serialized; different keys proceed in parallel.
const lockStripes = 64

// Config carries the engine's tunables.
type Config struct {
	// MatchDeadline bounds a single pattern match.
	MatchDeadline time.Duration
	// RulesPath is the rule configuration snapshot file.
	RulesPath string
	// StatsPath is the violation statistics snapshot file.
	StatsPath string
}

// Engine owns the rule store, author histories, cooldown log and violation
// statistics, and evaluates every inbound content event against them.
type Engine struct {
	store       *rules.Store
	history     *history.Tracker
	stats       *stats.Tracker
	coordinator *trigger.Coordinator
	filter      *detector.ContentFilter
	repetition  *detector.Repetition
	actions     trigger.Actions
	logger      *zap.Logger

	locks [lockStripes]sync.Mutex
	seed  maphash.Seed
}

// New constructs the engine and all components it owns. Call Load before
// handling events to restore persisted state.
func New(cfg Config, actions trigger.Actions, logger *zap.Logger) *Engine {
	matcher := pattern.NewSafeMatcher(cfg.MatchDeadline)
	statsTracker := stats.NewTracker(cfg.StatsPath, logger)

	return &Engine{
		store:       rules.NewStore(cfg.RulesPath, logger),
		history:     history.NewTracker(),
		stats:       statsTracker,
		coordinator: trigger.NewCoordinator(statsTracker, actions, logger),
		filter:      detector.NewContentFilter(matcher, logger),
		repetition:  detector.NewRepetition(matcher, logger),
		actions:     actions,
		logger:      logger.Named("engine"),
		seed:        maphash.MakeSeed(),
	}
}

// Load restores the rule and statistics snapshots. Missing or corrupt files
// yield empty state, never a startup failure.
func (e *Engine) Load() {
	e.store.Load()
	e.stats.Load()
}

// Close flushes pending statistics saves.
func (e *Engine) Close() {
	if err := e.stats.Save(); err != nil {
		e.logger.Error("Failed to save statistics on shutdown", zap.Error(err))
	}
	e.stats.Close()
}

// Stats exposes the violation statistics tracker.
func (e *Engine) Stats() *stats.Tracker { return e.stats }

// HandleEvent evaluates one content event against the community's rules.
// Evaluation never propagates errors to the gateway loop; a misbehaving rule
// must not prevent other rules or other events from being processed.
func (e *Engine) HandleEvent(ctx context.Context, c *event.Content) {
	e.evaluate(ctx, c, true)
}

// ScanFilters runs only the content-filter pass. Message edits and messages
// from bots or webhooks go through here: their content is still scanned, but
// it is never recorded into author history and never counted by repetition
// rules.
func (e *Engine) ScanFilters(ctx context.Context, c *event.Content) {
	e.evaluate(ctx, c, false)
}

func (e *Engine) evaluate(ctx context.Context, c *event.Content, withRepetition bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Recovered from panic during event evaluation",
				zap.Any("panic", r),
				zap.Uint64("community", uint64(c.CommunityID)),
				zap.Uint64("message", uint64(c.MessageID)))
		}
	}()

	lock := e.lockFor(c.CommunityID, c.AuthorID)
	lock.Lock()
	defer lock.Unlock()

	e.runContentFilters(ctx, c)
	if withRepetition {
		e.runRepetitionRules(ctx, c)
	}
}

func (e *Engine) runContentFilters(ctx context.Context, c *event.Content) {
	candidates := e.store.Filters(c.CommunityID)
	if len(candidates) == 0 {
		return
	}

	fragments := extract.Blocks(c)
	if len(fragments) == 0 {
		return
	}

	rule := e.filter.Evaluate(c, candidates, fragments)
	if rule == nil {
		return
	}

	if err := e.actions.DeleteMessage(ctx, c.ChannelID, c.MessageID); err != nil {
		e.logger.Warn("Failed to delete filtered message",
			zap.String("rule", rule.Name),
			zap.Uint64("message", uint64(c.MessageID)),
			zap.Error(err))
		return
	}

	e.logger.Info("Deleted message matching content filter",
		zap.String("rule", rule.Name),
		zap.Uint64("community", uint64(c.CommunityID)),
		zap.Uint64("author", uint64(c.AuthorID)))
}

func (e *Engine) runRepetitionRules(ctx context.Context, c *event.Content) {
	if c.Body == "" {
		return
	}

	candidates := e.store.Repetitions(c.CommunityID)
	maxWindow := e.store.MaxTimeWindow(c.CommunityID)

	e.history.Record(c.CommunityID, c.AuthorID, &history.Entry{
		Timestamp: c.Timestamp,
		Content:   c.Body,
		ChannelID: c.ChannelID,
		IsReply:   c.IsReply,
	}, maxWindow)

	if len(candidates) == 0 {
		return
	}

	for _, rule := range e.repetition.Evaluate(c, candidates, e.history) {
		e.coordinator.OnTrigger(ctx, c, rule)
	}
}

func (e *Engine) lockFor(community, author snowflake.ID) *sync.Mutex {
	var h maphash.Hash
	h.SetSeed(e.seed)
	var buf [16]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(uint64(community) >> (8 * i))
		buf[8+i] = byte(uint64(author) >> (8 * i))
	}
	_, _ = h.Write(buf[:])
	return &e.locks[h.Sum64()%lockStripes]
}
