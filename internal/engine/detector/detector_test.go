package detector_test

import (
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sentrabot/sentra/internal/engine/detector"
	"github.com/sentrabot/sentra/internal/engine/event"
	"github.com/sentrabot/sentra/internal/engine/history"
	"github.com/sentrabot/sentra/internal/engine/pattern"
	"github.com/sentrabot/sentra/internal/engine/rules"
)

const (
	community = snowflake.ID(1001)
	author    = snowflake.ID(2002)
	channel   = snowflake.ID(3003)
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newMatcher() *pattern.SafeMatcher {
	return pattern.NewSafeMatcher(time.Second)
}

func filterRule(t *testing.T, name, raw string, channels ...snowflake.ID) *rules.ContentFilterRule {
	t.Helper()
	rule := &rules.ContentFilterRule{
		Name:       name,
		RawPattern: raw,
		Channels:   rules.NewIDSet(channels...),
	}
	require.NoError(t, rule.Compile())
	return rule
}

func TestContentFilterRequiresChannelScope(t *testing.T) {
	t.Parallel()

	f := detector.NewContentFilter(newMatcher(), zap.NewNop())
	c := &event.Content{CommunityID: community, ChannelID: channel, AuthorID: author}

	// No channels configured: the rule is dormant everywhere.
	unscoped := filterRule(t, "links", "discord")
	assert.Nil(t, f.Evaluate(c, []*rules.ContentFilterRule{unscoped}, []string{"discord invite"}))

	// Scoped to another channel: still dormant here.
	elsewhere := filterRule(t, "links", "discord", snowflake.ID(9999))
	assert.Nil(t, f.Evaluate(c, []*rules.ContentFilterRule{elsewhere}, []string{"discord invite"}))

	scoped := filterRule(t, "links", "discord", channel)
	assert.Equal(t, scoped, f.Evaluate(c, []*rules.ContentFilterRule{scoped}, []string{"discord invite"}))
}

func TestContentFilterCoversThreadsUnderScopedChannel(t *testing.T) {
	t.Parallel()

	f := detector.NewContentFilter(newMatcher(), zap.NewNop())
	rule := filterRule(t, "links", "discord", channel)

	// Posted inside a thread whose parent channel is monitored.
	inThread := &event.Content{
		CommunityID:     community,
		ChannelID:       snowflake.ID(7777),
		ParentChannelID: channel,
		AuthorID:        author,
	}
	assert.Equal(t, rule, f.Evaluate(inThread, []*rules.ContentFilterRule{rule}, []string{"discord invite"}))

	// A thread under an unmonitored parent stays out of scope.
	otherParent := &event.Content{
		CommunityID:     community,
		ChannelID:       snowflake.ID(7777),
		ParentChannelID: snowflake.ID(9999),
		AuthorID:        author,
	}
	assert.Nil(t, f.Evaluate(otherParent, []*rules.ContentFilterRule{rule}, []string{"discord invite"}))
}

func TestContentFilterMatchesAnyFragment(t *testing.T) {
	t.Parallel()

	f := detector.NewContentFilter(newMatcher(), zap.NewNop())
	c := &event.Content{CommunityID: community, ChannelID: channel, AuthorID: author}
	rule := filterRule(t, "links", "/discord\\.gg/i", channel)

	fragments := []string{"clean body", "embed text", "https://DISCORD.GG/abc"}
	assert.Equal(t, rule, f.Evaluate(c, []*rules.ContentFilterRule{rule}, fragments))

	assert.Nil(t, f.Evaluate(c, []*rules.ContentFilterRule{rule}, []string{"clean body"}))
}

func TestContentFilterExemptions(t *testing.T) {
	t.Parallel()

	f := detector.NewContentFilter(newMatcher(), zap.NewNop())
	fragments := []string{"discord invite"}

	byUser := filterRule(t, "links", "discord", channel)
	byUser.ExemptUsers = rules.NewIDSet(author)
	c := &event.Content{CommunityID: community, ChannelID: channel, AuthorID: author}
	assert.Nil(t, f.Evaluate(c, []*rules.ContentFilterRule{byUser}, fragments))

	modRole := snowflake.ID(7007)
	byRole := filterRule(t, "links", "discord", channel)
	byRole.ExemptRoles = rules.NewIDSet(modRole)
	withRole := &event.Content{
		CommunityID: community,
		ChannelID:   channel,
		AuthorID:    author,
		AuthorRoles: []snowflake.ID{modRole},
	}
	assert.Nil(t, f.Evaluate(withRole, []*rules.ContentFilterRule{byRole}, fragments))
	assert.Equal(t, byRole, f.Evaluate(c, []*rules.ContentFilterRule{byRole}, fragments))
}

func similarityRule(t *testing.T, threshold float64, count int) *rules.RepetitionRule {
	t.Helper()
	rule := &rules.RepetitionRule{
		Name:                "spam",
		SimilarityThreshold: threshold,
		TimeWindow:          60,
		MessageCount:        count,
		DMMessage:           "stop",
		ModAction:           rules.ModActionWarn,
	}
	require.NoError(t, rule.Validate())
	return rule
}

func patternRule(t *testing.T, repeat string, count int) *rules.RepetitionRule {
	t.Helper()
	rule := &rules.RepetitionRule{
		Name:          "nitro",
		RepeatPattern: repeat,
		TimeWindow:    60,
		MessageCount:  count,
		ModAction:     rules.ModActionDelete,
	}
	require.NoError(t, rule.Validate())
	return rule
}

// seedHistory records the bodies as consecutive messages one second apart and
// returns the content event for the last one, mirroring how the engine
// records before evaluating.
func seedHistory(tracker *history.Tracker, bodies ...string) *event.Content {
	var last *event.Content
	for i, body := range bodies {
		ts := baseTime.Add(time.Duration(i) * time.Second)
		tracker.Record(community, author, &history.Entry{
			Timestamp: ts,
			Content:   body,
			ChannelID: channel,
		}, time.Hour)
		last = &event.Content{
			CommunityID: community,
			ChannelID:   channel,
			AuthorID:    author,
			Timestamp:   ts,
			Body:        body,
		}
	}
	return last
}

func TestRepetitionFiresOnThirdSimilarMessage(t *testing.T) {
	t.Parallel()

	r := detector.NewRepetition(newMatcher(), zap.NewNop())
	rule := similarityRule(t, 0.8, 3)

	tracker := history.NewTracker()
	c := seedHistory(tracker, "buy cheap gold now", "buy cheap gold now!", "buy cheap gold now!!")

	fired := r.Evaluate(c, []*rules.RepetitionRule{rule}, tracker)
	require.Len(t, fired, 1)
	assert.Equal(t, rule, fired[0])
}

func TestRepetitionBelowCountDoesNotFire(t *testing.T) {
	t.Parallel()

	r := detector.NewRepetition(newMatcher(), zap.NewNop())
	rule := similarityRule(t, 0.8, 3)

	tracker := history.NewTracker()
	c := seedHistory(tracker, "buy cheap gold now", "buy cheap gold now!")

	assert.Empty(t, r.Evaluate(c, []*rules.RepetitionRule{rule}, tracker))
}

func TestRepetitionDissimilarMessagesDoNotCount(t *testing.T) {
	t.Parallel()

	r := detector.NewRepetition(newMatcher(), zap.NewNop())
	rule := similarityRule(t, 0.8, 3)

	tracker := history.NewTracker()
	c := seedHistory(tracker, "completely different words", "another unrelated thing", "buy cheap gold now")

	assert.Empty(t, r.Evaluate(c, []*rules.RepetitionRule{rule}, tracker))
}

func TestRepetitionTokenOrderInsensitive(t *testing.T) {
	t.Parallel()

	r := detector.NewRepetition(newMatcher(), zap.NewNop())
	rule := similarityRule(t, 0.8, 3)

	// Reordered tokens defeat character similarity but not the token metric.
	tracker := history.NewTracker()
	c := seedHistory(tracker, "buy cheap gold now", "now gold cheap buy", "cheap now buy gold")

	require.Len(t, r.Evaluate(c, []*rules.RepetitionRule{rule}, tracker), 1)
}

func TestRepetitionPatternMode(t *testing.T) {
	t.Parallel()

	r := detector.NewRepetition(newMatcher(), zap.NewNop())
	rule := patternRule(t, "free nitro", 3)

	tracker := history.NewTracker()
	c := seedHistory(tracker, "FREE NITRO click here", "get your free nitro", "Free Nitro giveaway")

	require.Len(t, r.Evaluate(c, []*rules.RepetitionRule{rule}, tracker), 1)

	// Non-matching messages in the window do not count.
	tracker2 := history.NewTracker()
	c2 := seedHistory(tracker2, "FREE NITRO click here", "hello everyone", "free nitro again")
	assert.Empty(t, r.Evaluate(c2, []*rules.RepetitionRule{rule}, tracker2))
}

func TestRepetitionEligibilityGates(t *testing.T) {
	t.Parallel()

	r := detector.NewRepetition(newMatcher(), zap.NewNop())
	tracker := history.NewTracker()
	c := seedHistory(tracker, "buy cheap gold now", "buy cheap gold now", "buy cheap gold now")

	tests := []struct {
		name   string
		modify func(*rules.RepetitionRule)
		event  func(*event.Content) *event.Content
	}{
		{
			name:   "excluded channel",
			modify: func(r *rules.RepetitionRule) { r.ExcludedChannels = rules.NewIDSet(channel) },
		},
		{
			name:   "outside channel scope",
			modify: func(r *rules.RepetitionRule) { r.Channels = rules.NewIDSet(snowflake.ID(9999)) },
		},
		{
			name:   "author has exempted role",
			modify: func(r *rules.RepetitionRule) { r.ExemptedRoles = rules.NewIDSet(snowflake.ID(7007)) },
			event: func(c *event.Content) *event.Content {
				c.AuthorRoles = []snowflake.ID{snowflake.ID(7007)}
				return c
			},
		},
		{
			name:   "author lacks targeted role",
			modify: func(r *rules.RepetitionRule) { r.TargetedRoles = rules.NewIDSet(snowflake.ID(8008)) },
		},
		{
			name:   "reply under nonreply-only",
			modify: func(r *rules.RepetitionRule) { r.NonReplyOnly = true },
			event: func(c *event.Content) *event.Content {
				c.IsReply = true
				return c
			},
		},
		{
			name:   "body at or below min length",
			modify: func(r *rules.RepetitionRule) { r.MinLength = len("buy cheap gold now") },
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rule := similarityRule(t, 0.8, 3)
			tt.modify(rule)

			ev := *c
			target := &ev
			if tt.event != nil {
				target = tt.event(&ev)
			}

			assert.Empty(t, r.Evaluate(target, []*rules.RepetitionRule{rule}, tracker))
		})
	}
}

func TestRepetitionKeepsPreScopeEntries(t *testing.T) {
	t.Parallel()

	r := detector.NewRepetition(newMatcher(), zap.NewNop())
	rule := similarityRule(t, 0.8, 3)
	rule.Channels = rules.NewIDSet(channel)

	tracker := history.NewTracker()
	// Two entries recorded before any channel scope existed.
	for i, body := range []string{"buy cheap gold now", "buy cheap gold now"} {
		tracker.Record(community, author, &history.Entry{
			Timestamp: baseTime.Add(time.Duration(i) * time.Second),
			Content:   body,
		}, time.Hour)
	}
	c := seedHistory(tracker, "buy cheap gold now")

	// Pre-scope entries carry no channel and still count.
	assert.Len(t, r.Evaluate(c, []*rules.RepetitionRule{rule}, tracker), 1)
}

func TestCharacterSimilarity(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, detector.CharacterSimilarity("", ""), 1e-9)
	assert.InDelta(t, 0.0, detector.CharacterSimilarity("abc", ""), 1e-9)
	assert.InDelta(t, 1.0, detector.CharacterSimilarity("Hello", "hello"), 1e-9)

	// One substitution in ten characters.
	sim := detector.CharacterSimilarity("aaaaaaaaaa", "aaaaaaaaab")
	assert.InDelta(t, 0.9, sim, 1e-9)
}

func TestTokenJaccard(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0, detector.TokenJaccard(nil, []string{"a"}), 1e-9)
	assert.InDelta(t, 1, detector.TokenJaccard([]string{"a", "b"}, []string{"b", "a"}), 1e-9)

	// Multiset semantics: {a,a,b} vs {a,b} intersects 2 over union 3.
	sim := detector.TokenJaccard([]string{"a", "a", "b"}, []string{"a", "b"})
	assert.InDelta(t, 2.0/3.0, sim, 1e-9)
}
