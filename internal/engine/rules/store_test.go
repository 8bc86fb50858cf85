package rules_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sentrabot/sentra/internal/engine/rules"
)

const community = snowflake.ID(1001)

func newTestStore(t *testing.T) *rules.Store {
	t.Helper()
	return rules.NewStore(filepath.Join(t.TempDir(), "rules.json"), zap.NewNop())
}

func TestPutFilterRejectsInvalidPattern(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	err := store.PutFilter(community, &rules.ContentFilterRule{Name: "bad", RawPattern: "(unclosed"})
	require.Error(t, err)

	// A failed put leaves the store untouched.
	assert.Empty(t, store.Filters(community))
}

func TestFilterNameNormalization(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	require.NoError(t, store.PutFilter(community, &rules.ContentFilterRule{Name: "  LinkBlock  ", RawPattern: "discord"}))

	rule, ok := store.GetFilter(community, "LINKBLOCK")
	require.True(t, ok)
	assert.Equal(t, "linkblock", rule.Name)
}

func TestRemoveFilter(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	require.NoError(t, store.PutFilter(community, &rules.ContentFilterRule{Name: "links", RawPattern: "discord"}))

	assert.True(t, store.RemoveFilter(community, "links"))
	assert.False(t, store.RemoveFilter(community, "links"))
	assert.False(t, store.RemoveFilter(snowflake.ID(9999), "links"))
	assert.Empty(t, store.Filters(community))
}

func TestPutRepetitionValidates(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	err := store.PutRepetition(community, &rules.RepetitionRule{
		Name:                "broken",
		SimilarityThreshold: 0.8,
		TimeWindow:          0,
		MessageCount:        3,
	})
	require.ErrorIs(t, err, rules.ErrInvalidRule)
	assert.Empty(t, store.Repetitions(community))
}

func TestPutRepetitionDefaultsLabel(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	require.NoError(t, store.PutRepetition(community, validSimilarityRule()))

	rule, ok := store.GetRepetition(community, "spam")
	require.True(t, ok)
	assert.Equal(t, "spam", rule.Label)
}

func TestMaxTimeWindow(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	assert.Equal(t, time.Duration(0), store.MaxTimeWindow(community))

	short := validSimilarityRule()
	short.Name = "short"
	short.TimeWindow = 60
	require.NoError(t, store.PutRepetition(community, short))

	long := validSimilarityRule()
	long.Name = "long"
	long.TimeWindow = 3600
	require.NoError(t, store.PutRepetition(community, long))

	assert.Equal(t, time.Hour, store.MaxTimeWindow(community))
}

func TestStoreSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "rules.json")
	store := rules.NewStore(path, zap.NewNop())

	filter := &rules.ContentFilterRule{
		Name:        "links",
		RawPattern:  "/discord\\.gg/i",
		Channels:    rules.NewIDSet(snowflake.ID(42)),
		ExemptUsers: rules.NewIDSet(snowflake.ID(7)),
	}
	require.NoError(t, store.PutFilter(community, filter))

	repetition := validSimilarityRule()
	repetition.Channels = rules.NewIDSet(snowflake.ID(42), snowflake.ID(43))
	require.NoError(t, store.PutRepetition(community, repetition))

	require.NoError(t, store.Save())

	reloaded := rules.NewStore(path, zap.NewNop())
	reloaded.Load()

	gotFilter, ok := reloaded.GetFilter(community, "links")
	require.True(t, ok)
	assert.Equal(t, "/discord\\.gg/i", gotFilter.RawPattern)
	assert.True(t, gotFilter.Channels.Contains(snowflake.ID(42)))
	assert.True(t, gotFilter.ExemptUsers.Contains(snowflake.ID(7)))
	// Patterns recompile on load and are usable immediately.
	assert.NotNil(t, gotFilter.Compiled())

	gotRepetition, ok := reloaded.GetRepetition(community, "spam")
	require.True(t, ok)
	assert.InEpsilon(t, 0.8, gotRepetition.SimilarityThreshold, 1e-9)
	assert.Equal(t, 3, gotRepetition.MessageCount)
	assert.True(t, gotRepetition.Channels.Contains(snowflake.ID(43)))
}

func TestStoreLoadMissingFile(t *testing.T) {
	t.Parallel()

	store := newTestStore(t)
	store.Load()
	assert.Empty(t, store.Filters(community))
	assert.Empty(t, store.Repetitions(community))
}

func TestIDSetJSONOrdering(t *testing.T) {
	t.Parallel()

	set := rules.NewIDSet(snowflake.ID(30), snowflake.ID(10), snowflake.ID(20))
	data, err := set.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `["10","20","30"]`, string(data))

	var decoded rules.IDSet
	require.NoError(t, decoded.UnmarshalJSON(data))
	assert.Equal(t, set, decoded)
}
