// Package detector evaluates content events against configured rules.
// The content filter scans extracted text fragments with untrusted patterns;
// the repetition detector counts qualifying messages over the author's
// sliding history in either exact-pattern or fuzzy-similarity mode.
package detector

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/sentrabot/sentra/internal/engine/event"
	"github.com/sentrabot/sentra/internal/engine/history"
	"github.com/sentrabot/sentra/internal/engine/pattern"
	"github.com/sentrabot/sentra/internal/engine/rules"
)

// ContentFilter evaluates content-filter rules against extracted fragments.
type ContentFilter struct {
	matcher *pattern.SafeMatcher
	logger  *zap.Logger
}

// NewContentFilter creates a content-filter evaluator.
func NewContentFilter(matcher *pattern.SafeMatcher, logger *zap.Logger) *ContentFilter {
	return &ContentFilter{matcher: matcher, logger: logger.Named("filter")}
}

// Evaluate returns the first rule the event violates, or nil. A rule applies
// only in its monitored channels; a thread counts as monitored when its
// parent channel is. A match on any fragment counts; exempt users and roles
// are honored after the match. Match timeouts count as no-match and are
// logged as suspected catastrophic patterns.
func (f *ContentFilter) Evaluate(c *event.Content, candidates []*rules.ContentFilterRule, fragments []string) *rules.ContentFilterRule {
	for _, rule := range candidates {
		if len(rule.Channels) == 0 || !c.InChannel(rule.Channels) {
			continue
		}

		matched := false
		for _, fragment := range fragments {
			ok, err := f.matcher.Match(rule.Compiled(), fragment)
			if err != nil {
				if errors.Is(err, pattern.ErrMatchTimeout) {
					f.logger.Warn("Pattern match timed out, possible catastrophic backtracking",
						zap.String("rule", rule.Name),
						zap.Uint64("community", uint64(c.CommunityID)))
				}
				continue
			}
			if ok {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}

		if rule.ExemptUsers.Contains(c.AuthorID) {
			continue
		}
		if c.HasAnyRole(rule.ExemptRoles) {
			continue
		}

		return rule
	}
	return nil
}

// Repetition evaluates repetition rules over author history.
type Repetition struct {
	matcher *pattern.SafeMatcher
	logger  *zap.Logger
}

// NewRepetition creates a repetition detector.
func NewRepetition(matcher *pattern.SafeMatcher, logger *zap.Logger) *Repetition {
	return &Repetition{matcher: matcher, logger: logger.Named("repetition")}
}

// Evaluate returns every rule the event triggers. The just-recorded entry for
// the event is expected to already be in the tracker; it participates in the
// count like any other window entry.
func (r *Repetition) Evaluate(c *event.Content, candidates []*rules.RepetitionRule, tracker *history.Tracker) []*rules.RepetitionRule {
	var fired []*rules.RepetitionRule

	for _, rule := range candidates {
		if !r.eligible(c, rule) {
			continue
		}

		window := time.Duration(rule.TimeWindow) * time.Second
		entries := tracker.Window(c.CommunityID, c.AuthorID, window, c.Timestamp)
		entries = filterScope(entries, rule)

		if len(entries) < rule.MessageCount {
			continue
		}

		var count int
		if rule.PatternMode() {
			count = r.countPatternMatches(c, rule, entries)
		} else {
			count = r.countSimilar(c, rule, entries)
		}

		if count >= rule.MessageCount {
			fired = append(fired, rule)
		}
	}

	return fired
}

// eligible applies the per-rule gates in short-circuit order. Any failed gate
// skips the rule for this event without side effects.
func (r *Repetition) eligible(c *event.Content, rule *rules.RepetitionRule) bool {
	if rule.ExcludedChannels.Contains(c.ChannelID) {
		return false
	}
	if len(rule.Channels) > 0 && !rule.Channels.Contains(c.ChannelID) {
		return false
	}
	if len(rule.ExemptedRoles) > 0 && c.HasAnyRole(rule.ExemptedRoles) {
		return false
	}
	if len(rule.TargetedRoles) > 0 && !c.HasAnyRole(rule.TargetedRoles) {
		return false
	}
	if rule.NonReplyOnly && c.IsReply {
		return false
	}
	if rule.MinLength > 0 && len(c.Body) <= rule.MinLength {
		return false
	}
	if rule.TimeWindow <= 0 {
		return false
	}
	if rule.MessageCount <= 1 {
		return false
	}
	if rule.PatternMode() == (rule.SimilarityThreshold > 0) {
		return false
	}
	return true
}

// filterScope restricts window entries to the rule's channels and, for
// nonreply-only rules, to non-replies. Entries recorded before a channel
// scope existed carry no channel and are kept, not discarded.
func filterScope(entries []*history.Entry, rule *rules.RepetitionRule) []*history.Entry {
	kept := entries[:0]
	for _, entry := range entries {
		if len(rule.Channels) > 0 && entry.ChannelID != 0 && !rule.Channels.Contains(entry.ChannelID) {
			continue
		}
		if rule.NonReplyOnly && entry.IsReply {
			continue
		}
		kept = append(kept, entry)
	}
	return kept
}

func (r *Repetition) countPatternMatches(c *event.Content, rule *rules.RepetitionRule, entries []*history.Entry) int {
	count := 0
	for _, entry := range entries {
		ok, err := r.matcher.Match(rule.Compiled(), entry.Content)
		if err != nil {
			if errors.Is(err, pattern.ErrMatchTimeout) {
				r.logger.Warn("Repeat pattern match timed out",
					zap.String("rule", rule.Name),
					zap.Uint64("community", uint64(c.CommunityID)))
			}
			continue
		}
		if ok {
			count++
		}
	}
	return count
}

func (r *Repetition) countSimilar(c *event.Content, rule *rules.RepetitionRule, entries []*history.Entry) int {
	count := 0
	currentTokens := c.Tokens()
	for _, entry := range entries {
		ratio := CharacterSimilarity(c.Body, entry.Content)
		if tokenRatio := TokenJaccard(currentTokens, entry.Tokens()); tokenRatio > ratio {
			ratio = tokenRatio
		}
		if ratio >= rule.SimilarityThreshold {
			count++
		}
	}
	return count
}
