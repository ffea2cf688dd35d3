// Package tokenizer splits delimited text lines into fields.
package tokenizer

import (
	"errors"
	"strings"
)

var (
	ErrNoSeparator    = errors.New("no separator selected")
	ErrEmptySeparator = errors.New("empty other separator")
)

// Quote selects the quote character honoured while splitting.
type Quote int

const (
	QuoteNone Quote = iota
	QuoteDouble
	QuoteSingle
)

// ParseQuote maps "none", "double" / "\"" and "single" / "'" to a Quote.
func ParseQuote(s string) (Quote, bool) {
	switch strings.ToLower(s) {
	case "", "none":
		return QuoteNone, true
	case "double", `"`:
		return QuoteDouble, true
	case "single", "'":
		return QuoteSingle, true
	}
	return QuoteNone, false
}

// Delimiters lists the active field separators. Other enables a custom
// separator; only its first character is used.
type Delimiters struct {
	Tab       bool
	Space     bool
	Comma     bool
	Semicolon bool
	Other     bool
	OtherText string
}

// Splitter splits lines on up to five delimiter characters, honouring an
// optional quote character. A Splitter is not safe for concurrent use.
type Splitter struct {
	del   []rune
	quote rune
	one   string
	two   string
}

// New builds a Splitter. At least one delimiter must be enabled.
func New(d Delimiters, q Quote) (*Splitter, error) {
	s := &Splitter{}
	if d.Other {
		if d.OtherText == "" {
			return nil, ErrEmptySeparator
		}
		s.del = append(s.del, []rune(d.OtherText)[0])
	}
	if d.Comma {
		s.del = append(s.del, ',')
	}
	if d.Semicolon {
		s.del = append(s.del, ';')
	}
	if d.Space {
		s.del = append(s.del, ' ')
	}
	if d.Tab {
		s.del = append(s.del, '\t')
	}
	if len(s.del) == 0 {
		return nil, ErrNoSeparator
	}
	switch q {
	case QuoteDouble:
		s.quote = '"'
	case QuoteSingle:
		s.quote = '\''
	}
	if s.quote != 0 {
		s.one = string(s.quote)
		s.two = s.one + s.one
	}
	return s, nil
}

func (s *Splitter) isDelimiter(c rune) bool {
	for _, d := range s.del {
		if c == d {
			return true
		}
	}
	return false
}

// Split writes the fields of line into fields[1:] and returns the number
// written. fields[0] is left unused and every slot is reset first. At most
// len(fields)-1 fields are produced; anything beyond is dropped. A line
// with k unquoted delimiters yields k+1 fields, so a trailing delimiter
// produces a trailing empty field.
func (s *Splitter) Split(line string, fields []string) int {
	for n := range fields {
		fields[n] = ""
	}
	if line == "" {
		return 0
	}
	runes := []rune(line)
	columns, quotes, started, pos := 0, 0, 0, 0
	for ; pos < len(runes) && columns+1 < len(fields); pos++ {
		c := runes[pos]
		if s.quote != 0 && c == s.quote {
			quotes++
		}
		if quotes%2 == 0 && s.isDelimiter(c) {
			columns++
			fields[columns] = s.fragment(runes[started:pos], quotes)
			quotes = 0
			started = pos + 1
		}
	}
	if columns+1 < len(fields) {
		switch {
		case pos > started:
			columns++
			fields[columns] = s.fragment(runes[started:pos], quotes)
		case started == len(runes) && columns > 0:
			columns++
		}
	}
	return columns
}

func (s *Splitter) fragment(r []rune, quotes int) string {
	f := string(r)
	if quotes == 0 || s.quote == 0 {
		return f
	}
	f = strings.TrimSpace(f)
	q := string(s.quote)
	if len(f) >= 2*len(q) && strings.HasPrefix(f, q) && strings.HasSuffix(f, q) {
		f = f[len(q) : len(f)-len(q)]
	}
	return strings.ReplaceAll(f, s.two, s.one)
}
