// Package timestamp parses date/time text described by letter patterns
// such as "yyyy-MM-dd HH:mm:ss,SSS".
package timestamp

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vjeantet/jodaTime"
)

// Letters jodaTime translates into a Go layout. Anything else outside
// quotes would be matched as literal text, which hides typos.
const patternLetters = "GCYxwyeEDMdaKhHkmsSzZ"

// reference is formatted and parsed back when a pattern is compiled.
var reference = time.Date(2006, time.January, 2, 15, 4, 5, 123e6, time.UTC)

// Scanner parses text according to one pattern. It is immutable and safe
// for concurrent use.
type Scanner struct {
	pattern string
	zoned   bool
	dated   bool
	loc     *time.Location
}

// NewScanner checks pattern and returns a scanner for it. Text without a
// zone field is interpreted in UTC.
func NewScanner(pattern string) (*Scanner, error) {
	if strings.TrimSpace(pattern) == "" {
		return nil, fmt.Errorf("timestamp: empty pattern")
	}
	s := &Scanner{pattern: pattern, loc: time.UTC}
	quoted := false
	for _, c := range pattern {
		switch {
		case c == '\'':
			quoted = !quoted
		case quoted:
		case (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z'):
			if !strings.ContainsRune(patternLetters, c) {
				return nil, fmt.Errorf("timestamp: illegal pattern character '%c'", c)
			}
			s.zoned = s.zoned || c == 'z' || c == 'Z'
			s.dated = s.dated || c == 'y' || c == 'Y' || c == 'x'
		}
	}
	if quoted {
		return nil, fmt.Errorf("timestamp: unterminated quote in pattern %q", pattern)
	}
	if _, err := jodaTime.Parse(pattern, jodaTime.Format(pattern, reference)); err != nil {
		return nil, fmt.Errorf("timestamp: pattern %q cannot be parsed back: %w", pattern, err)
	}
	return s, nil
}

// In returns a copy of the scanner that interprets zone-less text in loc.
func (s *Scanner) In(loc *time.Location) *Scanner {
	out := *s
	out.loc = loc
	return &out
}

// Pattern returns the source pattern.
func (s *Scanner) Pattern() string { return s.pattern }

// Parse scans text from its beginning. Trailing text after the last
// pattern field is ignored. Fields missing from the pattern default to
// 1970-01-01 00:00:00.
func (s *Scanner) Parse(text string) (time.Time, error) {
	t, err := jodaTime.Parse(s.pattern, text)
	var pe *time.ParseError
	if errors.As(err, &pe) && pe.ValueElem != "" && strings.HasPrefix(pe.Message, ": extra text") {
		t, err = jodaTime.Parse(s.pattern, strings.TrimSuffix(text, pe.ValueElem))
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("timestamp: %q does not match pattern %q: %w", text, s.pattern, err)
	}
	if !s.dated && t.Year() == 0 {
		t = t.AddDate(1970, 0, 0)
	}
	if !s.zoned {
		t = time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), s.loc)
	}
	return t, nil
}
