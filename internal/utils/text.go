// Package utils contains small text helpers shared across the engine.
package utils

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// wordToken matches word characters the same way the token similarity metric
// expects them: letters, digits and underscore.
var wordToken = regexp.MustCompile(`\w+`)

// newNormalizer builds the transform chain used before tokenization:
// 1. NFKC converts compatibility characters to their canonical forms
// 2. NFD separates characters and their diacritical marks
// 3. Remove diacritical marks (Mn category)
// 4. Convert to lowercase
// 5. NFC recombines characters into their canonical forms.
func newNormalizer() transform.Transformer {
	return transform.Chain(
		norm.NFKC,
		norm.NFD,
		runes.Remove(runes.In(unicode.Mn)),
		cases.Lower(language.Und),
		norm.NFC,
	)
}

// NormalizeText lowercases text and strips diacritical marks so that trivial
// character dressing does not defeat token comparison. Falls back to plain
// lowercasing if normalization fails. The chain is built per call because its
// transformers carry buffers and callers run concurrently.
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}

	result, _, err := transform.String(newNormalizer(), s)
	if err != nil || result == "" {
		return strings.ToLower(s)
	}
	return result
}

// Tokenize returns the lower-cased word tokens of text, normalized first.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	return wordToken.FindAllString(NormalizeText(text), -1)
}

// TruncateText shortens s to at most limit bytes without splitting a rune,
// trimming trailing space.
func TruncateText(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimSpace(s[:cut])
}
