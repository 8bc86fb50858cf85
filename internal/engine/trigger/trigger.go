// Package trigger applies a fired rule's side effects: cooldown suppression,
// violation accounting, and the configured warn/delete/notify actions. Every
// step is independently fallible; a failed action never aborts its siblings.
package trigger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"

	"github.com/sentrabot/sentra/internal/engine/event"
	"github.com/sentrabot/sentra/internal/engine/rules"
	"github.com/sentrabot/sentra/internal/engine/stats"
	"github.com/sentrabot/sentra/internal/utils"
)

// previewLimit caps the content preview included in notifications.
const previewLimit = 1500

// Actions is the platform side-effect surface the coordinator drives.
// Implementations live in the bot layer; failures are reported as errors and
// logged here, never escalated.
type Actions interface {
	DeleteMessage(ctx context.Context, channelID, messageID snowflake.ID) error
	SendDirectMessage(ctx context.Context, userID snowflake.ID, content string) error
	Notify(ctx context.Context, channelID snowflake.ID, content string) error
}

type cooldownKey struct {
	community snowflake.ID
	author    snowflake.ID
	rule      string
}

// Coordinator suppresses re-triggers inside a rule's cooldown window, records
// violations, and dispatches actions. Cooldown state is volatile: a restart
// permits one immediate re-trigger per key, trading strictness for
// availability.
type Coordinator struct {
	mu       sync.Mutex
	lastSeen map[cooldownKey]time.Time
	stats    *stats.Tracker
	actions  Actions
	logger   *zap.Logger
	clock    func() time.Time
}

// NewCoordinator creates a coordinator dispatching through actions.
func NewCoordinator(statsTracker *stats.Tracker, actions Actions, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		lastSeen: make(map[cooldownKey]time.Time),
		stats:    statsTracker,
		actions:  actions,
		logger:   logger.Named("trigger"),
		clock:    time.Now,
	}
}

// ResetRule forgets cooldown state for one rule across a community, used when
// the rule is removed or redefined.
func (c *Coordinator) ResetRule(community snowflake.ID, ruleKey string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.lastSeen {
		if key.community == community && key.rule == ruleKey {
			delete(c.lastSeen, key)
		}
	}
}

// OnTrigger runs the full trigger sequence for one fired rule. The cooldown
// timestamp is recorded before any side effect, guaranteeing at most one
// trigger per cooldown window even under concurrent events for the author.
func (c *Coordinator) OnTrigger(ctx context.Context, ev *event.Content, rule *rules.RepetitionRule) {
	key := cooldownKey{community: ev.CommunityID, author: ev.AuthorID, rule: rule.Name}
	now := c.clock()

	c.mu.Lock()
	if last, ok := c.lastSeen[key]; ok && now.Sub(last) < time.Duration(rule.TriggerCooldown)*time.Second {
		c.mu.Unlock()
		return
	}
	c.lastSeen[key] = now
	c.mu.Unlock()

	c.stats.Record(ev.CommunityID, ev.AuthorID, rule.Name, rule.Label)

	shouldDM := rule.DMMessage != "" && rule.ModAction.Warns()
	shouldDelete := rule.ModAction.Deletes()

	dmSent := false
	var dmErr error
	if shouldDM {
		if dmErr = c.actions.SendDirectMessage(ctx, ev.AuthorID, rule.DMMessage); dmErr != nil {
			c.logger.Warn("Failed to warn author via DM",
				zap.Uint64("author", uint64(ev.AuthorID)),
				zap.String("rule", rule.Name),
				zap.Error(dmErr))
		} else {
			dmSent = true
		}
	}

	deleted := false
	var deleteErr error
	if shouldDelete {
		if deleteErr = c.actions.DeleteMessage(ctx, ev.ChannelID, ev.MessageID); deleteErr != nil {
			c.logger.Warn("Failed to delete triggering message",
				zap.Uint64("message", uint64(ev.MessageID)),
				zap.String("rule", rule.Name),
				zap.Error(deleteErr))
		} else {
			deleted = true
		}
	}

	if rule.NotifyChannelID != 0 {
		summary := buildSummary(ev, rule, shouldDM, dmSent, dmErr, shouldDelete, deleted, deleteErr)
		if err := c.actions.Notify(ctx, rule.NotifyChannelID, summary); err != nil {
			c.logger.Warn("Failed to notify moderation channel",
				zap.Uint64("channel", uint64(rule.NotifyChannelID)),
				zap.String("rule", rule.Name),
				zap.Error(err))
		}
	}
}

func buildSummary(ev *event.Content, rule *rules.RepetitionRule, shouldDM, dmSent bool, dmErr error, shouldDelete, deleted bool, deleteErr error) string {
	var actionSummary string
	switch rule.ModAction {
	case rules.ModActionDelete:
		actionSummary = "Delete message"
	case rules.ModActionWarnAndDelete:
		actionSummary = "Warn via DM & delete message"
	default:
		actionSummary = "Warn via DM"
	}

	var outcomes []string
	if shouldDM {
		if dmSent {
			outcomes = append(outcomes, "DM sent")
		} else {
			outcomes = append(outcomes, fmt.Sprintf("DM failed (%v)", dmErr))
		}
	}
	if shouldDelete {
		if deleted {
			outcomes = append(outcomes, "Message deleted")
		} else {
			outcomes = append(outcomes, fmt.Sprintf("Delete failed (%v)", deleteErr))
		}
	}
	outcomeText := "N/A"
	if len(outcomes) > 0 {
		outcomeText = strings.Join(outcomes, ", ")
	}

	var threshold string
	if rule.PatternMode() {
		threshold = fmt.Sprintf("Pattern `%s`", rule.RepeatPattern)
	} else {
		threshold = fmt.Sprintf("Similarity >= %d%%", int(rule.SimilarityThreshold*100))
	}

	preview := utils.TruncateText(ev.Body, previewLimit)
	if preview == "" {
		preview = "(no content)"
	}

	return fmt.Sprintf(
		"Rule `%s` triggered by <@%d> in <#%d>.\n"+
			"Window: %d seconds | %s | Count >= %d\n"+
			"Action: %s | Outcome: %s\n"+
			"Recent message:\n```%s```",
		rule.Label, ev.AuthorID, ev.ChannelID,
		rule.TimeWindow, threshold, rule.MessageCount,
		actionSummary, outcomeText, preview,
	)
}
