package pattern

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// A deadline configured above the default must reach regexp2's own wall, or
// long matches get cut at the compile-time default regardless of config.
func TestMatchAlignsPatternTimeoutWithDeadline(t *testing.T) {
	t.Parallel()

	c, err := Compile("hello")
	require.NoError(t, err)
	require.Equal(t, DefaultDeadline, c.re.MatchTimeout)

	m := NewSafeMatcher(5 * time.Second)

	matched, err := m.Match(c, "hello world")
	require.NoError(t, err)
	require.True(t, matched)
	require.Equal(t, 5*time.Second, c.re.MatchTimeout)
}
