package engine

import (
	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"

	"github.com/sentrabot/sentra/internal/engine/rules"
)

// DefineFilterRule creates or updates a content-filter rule from a raw
// pattern specification. The pattern compiles eagerly; an invalid pattern
// leaves the store unchanged. Redefining an existing rule preserves its
// channel scope and exemptions.
func (e *Engine) DefineFilterRule(community snowflake.ID, name, spec string) error {
	rule := &rules.ContentFilterRule{Name: name, RawPattern: spec}
	if existing, ok := e.store.GetFilter(community, name); ok {
		rule.Channels = existing.Channels.Clone()
		rule.ExemptUsers = existing.ExemptUsers.Clone()
		rule.ExemptRoles = existing.ExemptRoles.Clone()
	}

	if err := e.store.PutFilter(community, rule); err != nil {
		return err
	}

	e.persistRules()
	return nil
}

// UpdateFilterScope replaces the monitored channel set for a filter rule.
func (e *Engine) UpdateFilterScope(community snowflake.ID, name string, channels []snowflake.ID) error {
	rule, ok := e.store.GetFilter(community, name)
	if !ok {
		return rules.ErrRuleNotFound
	}

	rule.Channels = rules.NewIDSet(channels...)
	e.persistRules()
	return nil
}

// SetFilterExemptions replaces the exempt user and role sets for a filter
// rule.
func (e *Engine) SetFilterExemptions(community snowflake.ID, name string, users, roles []snowflake.ID) error {
	rule, ok := e.store.GetFilter(community, name)
	if !ok {
		return rules.ErrRuleNotFound
	}

	rule.ExemptUsers = rules.NewIDSet(users...)
	rule.ExemptRoles = rules.NewIDSet(roles...)
	e.persistRules()
	return nil
}

// RemoveFilterRule deletes a content-filter rule.
func (e *Engine) RemoveFilterRule(community snowflake.ID, name string) error {
	if !e.store.RemoveFilter(community, name) {
		return rules.ErrRuleNotFound
	}

	e.persistRules()
	return nil
}

// ListFilterRules returns the community's content-filter rules.
func (e *Engine) ListFilterRules(community snowflake.ID) []*rules.ContentFilterRule {
	return e.store.Filters(community)
}

// DefineRepetitionRule validates and stores a repetition rule. Redefinition
// resets the community's author histories and the rule's cooldown log so
// counting restarts fresh under the new thresholds.
func (e *Engine) DefineRepetitionRule(community snowflake.ID, rule *rules.RepetitionRule) error {
	_, existed := e.store.GetRepetition(community, rule.Name)

	if err := e.store.PutRepetition(community, rule); err != nil {
		return err
	}

	if existed {
		e.history.ResetCommunity(community)
		e.coordinator.ResetRule(community, rules.NormalizeName(rule.Name))
	}

	e.persistRules()
	return nil
}

// RemoveRepetitionRule deletes a repetition rule along with its violation
// statistics, cooldown entries and the community's cached author histories.
func (e *Engine) RemoveRepetitionRule(community snowflake.ID, name string) error {
	name = rules.NormalizeName(name)
	if !e.store.RemoveRepetition(community, name) {
		return rules.ErrRuleNotFound
	}

	e.history.ResetCommunity(community)
	e.coordinator.ResetRule(community, name)
	e.stats.RemoveRule(community, name)

	e.persistRules()
	return nil
}

// ListRepetitionRules returns the community's repetition rules.
func (e *Engine) ListRepetitionRules(community snowflake.ID) []*rules.RepetitionRule {
	return e.store.Repetitions(community)
}

// persistRules saves the rule snapshot. Persistence failures are logged; the
// in-memory store stays authoritative until the next successful save.
func (e *Engine) persistRules() {
	if err := e.store.Save(); err != nil {
		e.logger.Error("Failed to save rule snapshot", zap.Error(err))
	}
}
