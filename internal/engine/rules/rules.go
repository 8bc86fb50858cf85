// Package rules holds the per-community moderation rule model and the store
// that owns it. Rules come in two modes: content filters, which delete any
// message whose extracted text matches an untrusted pattern, and repetition
// rules, which count qualifying messages from one author inside a trailing
// time window.
package rules

import (
	"errors"
	"fmt"

	"github.com/disgoorg/snowflake/v2"

	"github.com/sentrabot/sentra/internal/engine/pattern"
)

var (
	// ErrRuleNotFound indicates a lookup or removal of an unknown rule name.
	ErrRuleNotFound = errors.New("rule not found")
	// ErrInvalidRule indicates a repetition rule with malformed thresholds,
	// windows or actions. The store is left unchanged.
	ErrInvalidRule = errors.New("invalid rule configuration")
)

// ModAction selects the side effects a repetition rule applies on trigger.
type ModAction string

const (
	// ModActionNone sends the configured DM only.
	ModActionNone ModAction = ""
	// ModActionWarn sends the configured DM.
	ModActionWarn ModAction = "warn"
	// ModActionDelete deletes the triggering message.
	ModActionDelete ModAction = "delete"
	// ModActionWarnAndDelete does both.
	ModActionWarnAndDelete ModAction = "warnanddelete"
)

// Valid reports whether the action is one of the recognized values.
func (a ModAction) Valid() bool {
	switch a {
	case ModActionNone, ModActionWarn, ModActionDelete, ModActionWarnAndDelete:
		return true
	default:
		return false
	}
}

// Warns reports whether the action includes a direct-message warning.
func (a ModAction) Warns() bool {
	return a == ModActionNone || a == ModActionWarn || a == ModActionWarnAndDelete
}

// Deletes reports whether the action includes message deletion.
func (a ModAction) Deletes() bool {
	return a == ModActionDelete || a == ModActionWarnAndDelete
}

// ContentFilterRule deletes any message whose extracted fragments match its
// pattern in a monitored channel, unless the author is exempted.
type ContentFilterRule struct {
	Name        string `json:"-"`
	RawPattern  string `json:"pattern"`
	Channels    IDSet  `json:"channels"`
	ExemptUsers IDSet  `json:"exempt_users"`
	ExemptRoles IDSet  `json:"exempt_roles"`

	compiled *pattern.Compiled
}

// Compiled returns the ready-to-match pattern.
func (r *ContentFilterRule) Compiled() *pattern.Compiled { return r.compiled }

// Compile eagerly compiles RawPattern. Invalid patterns are rejected here and
// never reach match time.
func (r *ContentFilterRule) Compile() error {
	compiled, err := pattern.Compile(r.RawPattern)
	if err != nil {
		return err
	}
	r.compiled = compiled
	return nil
}

// RepetitionRule fires when an author posts message_count qualifying messages
// inside time_window seconds. Exactly one of SimilarityThreshold (> 0) or
// RepeatPattern selects the counting mode.
type RepetitionRule struct {
	Name                string       `json:"-"`
	Label               string       `json:"label"`
	MinLength           int          `json:"min_length"`
	SimilarityThreshold float64      `json:"similarity_threshold"`
	TimeWindow          int          `json:"time_window"`
	MessageCount        int          `json:"message_count"`
	DMMessage           string       `json:"dm_message"`
	NotifyChannelID     snowflake.ID `json:"notify_channel_id,omitempty"`
	Channels            IDSet        `json:"channels"`
	ExcludedChannels    IDSet        `json:"excluded_channels"`
	TargetedRoles       IDSet        `json:"targeted_roles"`
	ExemptedRoles       IDSet        `json:"exempted_roles"`
	NonReplyOnly        bool         `json:"nonreply_only"`
	ModAction           ModAction    `json:"mod_action"`
	RepeatPattern       string       `json:"repeat_pattern,omitempty"`
	TriggerCooldown     int          `json:"trigger_cooldown"`

	compiled *pattern.Compiled
}

// PatternMode reports whether the rule counts by repeat pattern rather than
// similarity.
func (r *RepetitionRule) PatternMode() bool { return r.RepeatPattern != "" }

// Compiled returns the compiled repeat pattern, nil in similarity mode.
func (r *RepetitionRule) Compiled() *pattern.Compiled { return r.compiled }

// Validate checks thresholds, windows and actions, and compiles the repeat
// pattern when present. Called before the rule enters the store.
func (r *RepetitionRule) Validate() error {
	if r.MinLength < 0 {
		return fmt.Errorf("%w: min_length must be >= 0", ErrInvalidRule)
	}
	if r.TimeWindow <= 0 {
		return fmt.Errorf("%w: time_window must be positive", ErrInvalidRule)
	}
	if r.MessageCount <= 1 {
		return fmt.Errorf("%w: message_count must be greater than 1", ErrInvalidRule)
	}
	if r.TriggerCooldown < 0 {
		return fmt.Errorf("%w: trigger_cooldown must be >= 0", ErrInvalidRule)
	}
	if !r.ModAction.Valid() {
		return fmt.Errorf("%w: unknown mod_action %q", ErrInvalidRule, r.ModAction)
	}

	hasSimilarity := r.SimilarityThreshold > 0
	hasPattern := r.RepeatPattern != ""
	if hasSimilarity == hasPattern {
		return fmt.Errorf("%w: exactly one of similarity_threshold and repeat_pattern must be set", ErrInvalidRule)
	}
	if hasSimilarity && r.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: similarity_threshold must be within (0, 1]", ErrInvalidRule)
	}

	if r.ModAction.Warns() && r.DMMessage == "" {
		return fmt.Errorf("%w: dm_message is required when the action warns", ErrInvalidRule)
	}

	if hasPattern {
		compiled, err := pattern.CompileIgnoreCase(r.RepeatPattern)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidRule, err)
		}
		r.compiled = compiled
	}

	return nil
}
