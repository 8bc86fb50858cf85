package utils_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sentrabot/sentra/internal/utils"
)

func TestNormalizeText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "empty", input: "", want: ""},
		{name: "lowercases", input: "Hello WORLD", want: "hello world"},
		{name: "strips diacritics", input: "héllo wörld", want: "hello world"},
		{name: "compatibility forms", input: "ﬁne", want: "fine"},
		{name: "mixed dressing", input: "BÜY NÖW", want: "buy now"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, utils.NormalizeText(tt.input))
		})
	}
}

func TestTokenize(t *testing.T) {
	t.Parallel()

	assert.Nil(t, utils.Tokenize(""))
	assert.Equal(t, []string{"buy", "now", "cheap"}, utils.Tokenize("Buy NOW, cheap!!!"))
	assert.Equal(t, []string{"snake_case", "123"}, utils.Tokenize("snake_case 123"))
}

func TestTruncateText(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", utils.TruncateText("short", 10))
	assert.Equal(t, "abc", utils.TruncateText("abcdef", 3))

	// Never splits a multi-byte rune.
	truncated := utils.TruncateText("aé", 2)
	assert.Equal(t, "a", truncated)
}
