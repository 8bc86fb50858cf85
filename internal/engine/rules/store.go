package rules

import (
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"

	"github.com/sentrabot/sentra/internal/storage"
)

// Store owns all rule objects, keyed by community and case-normalized rule
// name. It is safe for concurrent use and persists to a single JSON snapshot.
type Store struct {
	mu         sync.RWMutex
	filters    map[snowflake.ID]map[string]*ContentFilterRule
	repetition map[snowflake.ID]map[string]*RepetitionRule
	path       string
	logger     *zap.Logger
}

// NewStore creates an empty store persisting to path.
func NewStore(path string, logger *zap.Logger) *Store {
	return &Store{
		filters:    make(map[snowflake.ID]map[string]*ContentFilterRule),
		repetition: make(map[snowflake.ID]map[string]*RepetitionRule),
		path:       path,
		logger:     logger.Named("rules"),
	}
}

// NormalizeName case-normalizes a rule name for storage and lookup.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Filters returns the content-filter rules configured for a community.
func (s *Store) Filters(community snowflake.ID) []*ContentFilterRule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rules := make([]*ContentFilterRule, 0, len(s.filters[community]))
	for _, rule := range s.filters[community] {
		rules = append(rules, rule)
	}
	return rules
}

// Repetitions returns the repetition rules configured for a community.
func (s *Store) Repetitions(community snowflake.ID) []*RepetitionRule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rules := make([]*RepetitionRule, 0, len(s.repetition[community]))
	for _, rule := range s.repetition[community] {
		rules = append(rules, rule)
	}
	return rules
}

// GetFilter looks up a content-filter rule by name.
func (s *Store) GetFilter(community snowflake.ID, name string) (*ContentFilterRule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.filters[community][NormalizeName(name)]
	return rule, ok
}

// PutFilter adds or replaces a content-filter rule. The rule must compile
// before the store is touched, so a failed put leaves the store unchanged.
func (s *Store) PutFilter(community snowflake.ID, rule *ContentFilterRule) error {
	if err := rule.Compile(); err != nil {
		return err
	}
	rule.Name = NormalizeName(rule.Name)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.filters[community] == nil {
		s.filters[community] = make(map[string]*ContentFilterRule)
	}
	s.filters[community][rule.Name] = rule
	return nil
}

// RemoveFilter deletes a content-filter rule. Removing an unknown name
// reports false without error. An emptied community entry is dropped
// entirely; no empty maps are retained.
func (s *Store) RemoveFilter(community snowflake.ID, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rules, ok := s.filters[community]
	if !ok {
		return false
	}
	name = NormalizeName(name)
	if _, ok := rules[name]; !ok {
		return false
	}
	delete(rules, name)
	if len(rules) == 0 {
		delete(s.filters, community)
	}
	return true
}

// GetRepetition looks up a repetition rule by name.
func (s *Store) GetRepetition(community snowflake.ID, name string) (*RepetitionRule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rule, ok := s.repetition[community][NormalizeName(name)]
	return rule, ok
}

// PutRepetition adds or replaces a repetition rule after validation.
// A rule that fails validation leaves the store unchanged.
func (s *Store) PutRepetition(community snowflake.ID, rule *RepetitionRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	rule.Name = NormalizeName(rule.Name)
	if rule.Label == "" {
		rule.Label = rule.Name
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.repetition[community] == nil {
		s.repetition[community] = make(map[string]*RepetitionRule)
	}
	s.repetition[community][rule.Name] = rule
	return nil
}

// RemoveRepetition deletes a repetition rule, reporting whether it existed.
func (s *Store) RemoveRepetition(community snowflake.ID, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rules, ok := s.repetition[community]
	if !ok {
		return false
	}
	name = NormalizeName(name)
	if _, ok := rules[name]; !ok {
		return false
	}
	delete(rules, name)
	if len(rules) == 0 {
		delete(s.repetition, community)
	}
	return true
}

// MaxTimeWindow returns the largest repetition window configured for a
// community, as a duration. Zero means no repetition rules are active and
// author history can be discarded.
func (s *Store) MaxTimeWindow(community snowflake.ID) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	maxSeconds := 0
	for _, rule := range s.repetition[community] {
		if rule.TimeWindow > maxSeconds {
			maxSeconds = rule.TimeWindow
		}
	}
	return time.Duration(maxSeconds) * time.Second
}

// communitySnapshot is the persisted form of one community's rules.
type communitySnapshot struct {
	Filters    map[string]*ContentFilterRule `json:"filters"`
	Repetition map[string]*RepetitionRule    `json:"repetition"`
}

// Save writes the rule snapshot atomically.
func (s *Store) Save() error {
	s.mu.RLock()
	snapshot := make(map[string]communitySnapshot)
	for community, rules := range s.filters {
		entry := snapshot[community.String()]
		entry.Filters = rules
		snapshot[community.String()] = entry
	}
	for community, rules := range s.repetition {
		entry := snapshot[community.String()]
		entry.Repetition = rules
		snapshot[community.String()] = entry
	}
	s.mu.RUnlock()

	return storage.SaveSnapshot(s.path, snapshot)
}

// Load replaces the store contents from the snapshot on disk. A missing or
// corrupt file yields an empty store rather than a startup failure. Rules
// whose patterns no longer compile are skipped with a logged warning.
func (s *Store) Load() {
	var snapshot map[string]communitySnapshot
	if err := storage.LoadSnapshot(s.path, &snapshot); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Starting with empty rule store", zap.String("path", s.path), zap.Error(err))
		}
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.filters = make(map[snowflake.ID]map[string]*ContentFilterRule)
	s.repetition = make(map[snowflake.ID]map[string]*RepetitionRule)

	for communityStr, entry := range snapshot {
		community, err := snowflake.Parse(communityStr)
		if err != nil {
			s.logger.Warn("Skipping invalid community key", zap.String("key", communityStr))
			continue
		}

		for name, rule := range entry.Filters {
			rule.Name = NormalizeName(name)
			if err := rule.Compile(); err != nil {
				s.logger.Warn("Skipping uncompilable filter rule",
					zap.Uint64("community", uint64(community)),
					zap.String("rule", name),
					zap.Error(err))
				continue
			}
			if s.filters[community] == nil {
				s.filters[community] = make(map[string]*ContentFilterRule)
			}
			s.filters[community][rule.Name] = rule
		}

		for name, rule := range entry.Repetition {
			rule.Name = NormalizeName(name)
			if err := rule.Validate(); err != nil {
				s.logger.Warn("Skipping invalid repetition rule",
					zap.Uint64("community", uint64(community)),
					zap.String("rule", name),
					zap.Error(err))
				continue
			}
			if s.repetition[community] == nil {
				s.repetition[community] = make(map[string]*RepetitionRule)
			}
			s.repetition[community][rule.Name] = rule
		}
	}

	s.logger.Info("Loaded rule store",
		zap.Int("filter_communities", len(s.filters)),
		zap.Int("repetition_communities", len(s.repetition)))
}
