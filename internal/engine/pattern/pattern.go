// Package pattern compiles untrusted, user-supplied rule patterns and executes
// them under a hard wall-clock deadline so a catastrophic pattern can never
// stall message processing.
package pattern

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dlclark/regexp2"
)

var (
	// ErrInvalidPattern indicates a pattern that failed to compile.
	ErrInvalidPattern = errors.New("invalid pattern")
	// ErrMatchTimeout indicates a match aborted at the deadline.
	// Callers treat it as no-match; it never reaches the event loop.
	ErrMatchTimeout = errors.New("pattern match timed out")
)

const (
	// DefaultDeadline bounds a single match attempt.
	DefaultDeadline = time.Second
	// MaxTextLength caps scanned text; longer input is truncated, not rejected,
	// so oversized messages stay scannable.
	MaxTextLength = 10000
)

var (
	trailingFlags = regexp.MustCompile(`\s--flags\s+([A-Za-z]+)\s*$`)
	flagLetters   = regexp.MustCompile(`^[A-Za-z]+$`)
)

// Compiled pairs a ready-to-match pattern with the raw text it was built from.
type Compiled struct {
	re  *regexp2.Regexp
	raw string

	deadlineOnce sync.Once
}

// Raw returns the original specification text, including any flag syntax.
func (c *Compiled) Raw() string { return c.raw }

// ParseSpec splits a rule specification into pattern text and flag letters.
// Two flag forms are accepted: a trailing "--flags imsx" suffix and the
// "/pattern/flags" form (with \/ unescaped inside the body). Letters from both
// forms are merged, lower-cased and deduplicated preserving first occurrence.
func ParseSpec(raw string) (string, string) {
	text := strings.TrimSpace(raw)
	var parts []string

	if m := trailingFlags.FindStringSubmatchIndex(text); m != nil {
		parts = append(parts, text[m[2]:m[3]])
		text = strings.TrimSpace(text[:m[0]])
	}

	if len(text) >= 2 && text[0] == '/' && strings.Contains(text[1:], "/") {
		lastSlash := strings.LastIndexByte(text, '/')
		body := text[1:lastSlash]
		trailing := strings.TrimSpace(text[lastSlash+1:])
		if trailing != "" && flagLetters.MatchString(trailing) {
			parts = append(parts, trailing)
			text = strings.ReplaceAll(body, `\/`, "/")
		}
	}

	seen := make(map[rune]struct{})
	var letters strings.Builder
	for _, part := range parts {
		for _, ch := range strings.ToLower(part) {
			if _, ok := seen[ch]; ok {
				continue
			}
			seen[ch] = struct{}{}
			letters.WriteRune(ch)
		}
	}

	return text, letters.String()
}

// Compile parses a full rule specification and compiles it.
// Unknown flag letters are ignored rather than rejected.
func Compile(raw string) (*Compiled, error) {
	text, letters := ParseSpec(raw)
	return compile(raw, text, letters)
}

// CompileIgnoreCase compiles a bare pattern with case-insensitive matching,
// used by repetition rules whose repeat pattern carries no flag syntax.
func CompileIgnoreCase(text string) (*Compiled, error) {
	return compile(text, text, "i")
}

func compile(raw, text, letters string) (*Compiled, error) {
	opts := regexp2.None
	for _, ch := range letters {
		switch ch {
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 's':
			opts |= regexp2.Singleline
		case 'x':
			opts |= regexp2.IgnorePatternWhitespace
		}
	}

	re, err := regexp2.Compile(text, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}
	re.MatchTimeout = DefaultDeadline

	return &Compiled{re: re, raw: raw}, nil
}

// SafeMatcher executes compiled patterns with a bounded wall-clock deadline.
type SafeMatcher struct {
	deadline time.Duration
}

// NewSafeMatcher creates a matcher with the given deadline.
// A non-positive deadline falls back to DefaultDeadline.
func NewSafeMatcher(deadline time.Duration) *SafeMatcher {
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	return &SafeMatcher{deadline: deadline}
}

// Match reports whether text matches the pattern. Text longer than
// MaxTextLength is truncated first. The call returns within the deadline
// regardless of pattern behavior; on timeout it returns (false,
// ErrMatchTimeout) and the worker goroutine is abandoned to die on the
// engine-level match timeout.
func (m *SafeMatcher) Match(c *Compiled, text string) (bool, error) {
	if text == "" {
		return false, nil
	}
	if len(text) > MaxTextLength {
		text = text[:MaxTextLength]
	}

	// regexp2 carries its own wall clock; align it with the matcher's
	// deadline so a configured deadline above the default is not capped.
	c.deadlineOnce.Do(func() {
		c.re.MatchTimeout = m.deadline
	})

	type outcome struct {
		matched bool
		err     error
	}

	done := make(chan outcome, 1)
	go func() {
		matched, err := c.re.MatchString(text)
		done <- outcome{matched: matched, err: err}
	}()

	timer := time.NewTimer(m.deadline)
	defer timer.Stop()

	select {
	case out := <-done:
		if out.err != nil {
			return false, ErrMatchTimeout
		}
		return out.matched, nil
	case <-timer.C:
		return false, ErrMatchTimeout
	}
}
