// Package rx wraps regexp2 with match timeouts and the whole-text
// matching used by configured patterns.
package rx

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/tinytelemetry/sigex/internal/metrics"
)

// DefaultTimeout bounds a single match.
const DefaultTimeout = 500 * time.Millisecond

// ErrTimeout is returned when a match exceeds its timeout.
var ErrTimeout = errors.New("regex evaluation timeout")

// Regexp is a compiled pattern. It is safe for concurrent use.
type Regexp struct {
	source string
	full   *regexp2.Regexp
	find   *regexp2.Regexp
	groups int
}

// Compile compiles pattern with DefaultTimeout.
func Compile(pattern string) (*Regexp, error) {
	return CompileTimeout(pattern, DefaultTimeout)
}

// CompileTimeout compiles pattern for whole-text matching and searching.
func CompileTimeout(pattern string, timeout time.Duration) (*Regexp, error) {
	find, err := regexp2.Compile(pattern, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", pattern, err)
	}
	full, err := regexp2.Compile(`\A(?:`+pattern+`)\z`, regexp2.None)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", pattern, err)
	}
	find.MatchTimeout = timeout
	full.MatchTimeout = timeout
	return &Regexp{
		source: pattern,
		full:   full,
		find:   find,
		groups: len(find.GetGroupNumbers()) - 1,
	}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(pattern string) *Regexp {
	re, err := Compile(pattern)
	if err != nil {
		panic(err)
	}
	return re
}

func (r *Regexp) String() string { return r.source }

// NumGroups reports the number of capture groups.
func (r *Regexp) NumGroups() int { return r.groups }

// FullMatch reports whether the pattern matches all of text.
func (r *Regexp) FullMatch(text string) (bool, error) {
	ok, err := r.full.MatchString(text)
	if err != nil {
		return false, r.wrap(err)
	}
	return ok, nil
}

// Groups matches all of text and returns the capture groups indexed from 1;
// index 0 holds the whole match. Groups that did not participate are "".
func (r *Regexp) Groups(text string) ([]string, bool, error) {
	m, err := r.full.FindStringMatch(text)
	if err != nil {
		return nil, false, r.wrap(err)
	}
	if m == nil {
		return nil, false, nil
	}
	out := make([]string, r.groups+1)
	out[0] = m.String()
	for i := 1; i <= r.groups; i++ {
		if g := m.GroupByNumber(i); g != nil && len(g.Captures) > 0 {
			out[i] = g.String()
		}
	}
	return out, true, nil
}

// Split slices text around each match. Trailing empty strings are removed
// and a leading empty string is dropped when the first match is empty.
func (r *Regexp) Split(text string) ([]string, error) {
	runes := []rune(text)
	var parts []string
	start := 0
	m, err := r.find.FindStringMatch(text)
	for m != nil && err == nil {
		if !(m.Length == 0 && m.Index == 0) {
			parts = append(parts, string(runes[start:m.Index]))
		}
		start = m.Index + m.Length
		m, err = r.find.FindNextMatch(m)
	}
	if err != nil {
		return nil, r.wrap(err)
	}
	parts = append(parts, string(runes[start:]))
	for len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts, nil
}

func (r *Regexp) wrap(err error) error {
	if strings.Contains(strings.ToLower(err.Error()), "timeout") {
		metrics.RegexTimeouts.Inc()
		return fmt.Errorf("%w: %s", ErrTimeout, r.source)
	}
	return fmt.Errorf("regex %q: %w", r.source, err)
}
