// Package log4j converts log4j 1.2 pattern layouts into pattern options.
package log4j

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/tinytelemetry/sigex/internal/model"
	"github.com/tinytelemetry/sigex/internal/option"
	"github.com/tinytelemetry/sigex/internal/tag"
)

// Capture groups used for the different conversion characters.
const (
	groupDefault = `(.*?)`
	groupGreedy  = `(.*)`
	groupNoSpace = `(\s*?\S*?\s*?)`
	groupInteger = `([0-9\-\+]*?)`
)

// MaxMembers bounds the number of capture groups a layout may produce.
const MaxMembers = 64

// ErrUnknownConversion is returned for a conversion character the
// converter does not know.
var ErrUnknownConversion = errors.New("unknown log4j conversion")

// Conversion date presets.
const (
	FormatAbsolute = "HH:mm:ss,SSS"
	FormatISO8601  = option.DefaultDateFormat
	FormatDate     = "dd MMM yyyy HH:mm:ss,SSS"
)

// DateFormat maps a %d detail onto a date pattern. The ABSOLUTE, ISO8601
// and DATE presets are expanded; an empty detail means ISO8601.
func DateFormat(detail string) string {
	switch detail {
	case "ABSOLUTE":
		return FormatAbsolute
	case "", "ISO8601":
		return FormatISO8601
	case "DATE":
		return FormatDate
	}
	return detail
}

type member struct {
	group string
	name  string
	typ   model.MemberType
}

var conversions = map[string]member{
	"c":              {groupNoSpace, model.MemberLogger, model.MemberEnum},
	"logger":         {groupNoSpace, model.MemberLogger, model.MemberEnum},
	"C":              {groupNoSpace, model.MemberClass, model.MemberEnum},
	"class":          {groupNoSpace, model.MemberClass, model.MemberEnum},
	"F":              {groupDefault, model.MemberFile, model.MemberEnum},
	"file":           {groupDefault, model.MemberFile, model.MemberEnum},
	"l":              {groupDefault, "Location", model.MemberText},
	"location":       {groupDefault, "Location", model.MemberText},
	"L":              {groupInteger, model.MemberLine, model.MemberInteger},
	"line":           {groupInteger, model.MemberLine, model.MemberInteger},
	"m":              {groupGreedy, model.MemberMessage, model.MemberText},
	"msg":            {groupGreedy, model.MemberMessage, model.MemberText},
	"message":        {groupGreedy, model.MemberMessage, model.MemberText},
	"M":              {groupNoSpace, model.MemberMethod, model.MemberEnum},
	"method":         {groupNoSpace, model.MemberMethod, model.MemberEnum},
	"p":              {groupNoSpace, model.MemberLevel, model.MemberEnum},
	"level":          {groupNoSpace, model.MemberLevel, model.MemberEnum},
	"sn":             {groupInteger, "Sequence", model.MemberInteger},
	"sequenceNumber": {groupInteger, "Sequence", model.MemberInteger},
	"t":              {groupDefault, model.MemberThread, model.MemberEnum},
	"tn":             {groupDefault, model.MemberThread, model.MemberEnum},
	"thread":         {groupDefault, model.MemberThread, model.MemberEnum},
	"threadName":     {groupDefault, model.MemberThread, model.MemberEnum},
	"T":              {groupDefault, "ThreadId", model.MemberEnum},
	"tid":            {groupDefault, "ThreadId", model.MemberEnum},
	"threadId":       {groupDefault, "ThreadId", model.MemberEnum},
	"tp":             {groupDefault, "ThreadPrio", model.MemberEnum},
	"threadPriority": {groupDefault, "ThreadPrio", model.MemberEnum},
	"x":              {groupDefault, model.MemberNDC, model.MemberEnum},
	"r":              {groupInteger, model.MemberTimestamp, model.MemberNone},
	"relative":       {groupInteger, model.MemberTimestamp, model.MemberNone},
}

var metaReplacer = strings.NewReplacer(
	`\`, `\\`, `]`, `\]`, `[`, `\[`, `^`, `\^`, `$`, `\$`, `.`, `\.`,
	`|`, `\|`, `?`, `\?`, `+`, `\+`, `*`, `\*`, `(`, `\(`, `)`, `\)`,
	`-`, `\-`, `{`, `\{`, `}`, `\}`, `#`, `\#`,
)

// Escape quotes the regular expression meta characters of literal layout
// text.
func Escape(s string) string { return metaReplacer.Replace(s) }

// DateRegex turns a date pattern into a capture group. Each run of pattern
// letters becomes one non-space token.
func DateRegex(format string) string {
	var b strings.Builder
	b.WriteByte('(')
	var prev rune
	for _, r := range format {
		switch {
		case strings.ContainsRune("GyYMwWDdFEuaHkKhmsSzZX", r):
			if r != prev {
				b.WriteString(`\S+`)
			}
		case r == '+':
			b.WriteString(`[+]`)
		default:
			b.WriteString(Escape(string(r)))
		}
		prev = r
	}
	b.WriteByte(')')
	return b.String()
}

type converter struct {
	opt     option.Option
	regex   strings.Builder
	next    int
	layout  string
	dateSet bool
}

func (c *converter) add(group, name string, typ model.MemberType) (int, error) {
	if c.next > MaxMembers {
		return 0, fmt.Errorf("log4j layout %q: more than %d conversions", c.layout, MaxMembers)
	}
	c.regex.WriteString(group)
	c.opt.Members = append(c.opt.Members, option.Member{Source: c.next, Name: name, Type: typ.String()})
	c.next++
	return c.next - 1, nil
}

// Convert builds a pattern option from a log4j 1.2 layout such as
// "%r [%t] %p %c %x - %m%n". Format modifiers are skipped. The option
// starts a new record per match and falls back to a record counter when
// the layout carries neither %d nor %r.
func Convert(layout string) (option.Option, error) {
	c := &converter{layout: layout, next: 1}
	c.opt.Description = "Generated from " + layout
	c.opt.Action = option.ActionStart.String()

	rs := []rune(layout)
	end := len(rs)
	start := 0
	for {
		pos := indexRune(rs, '%', start)
		if pos < 0 {
			break
		}
		c.regex.WriteString(Escape(string(rs[start:pos])))
		pos++
		if pos < end && rs[pos] == '%' {
			c.regex.WriteString("%")
			start = pos + 1
			continue
		}

		for pos < end && !unicode.IsLetter(rs[pos]) && !unicode.IsSpace(rs[pos]) {
			pos++
		}
		keyStart := pos
		for pos < end && unicode.IsLetter(rs[pos]) {
			pos++
		}
		key := string(rs[keyStart:pos])

		var detail string
		if pos < end && rs[pos] == '{' {
			depth, open := 0, pos+1
			for pos < end {
				r := rs[pos]
				pos++
				if r == '{' {
					depth++
				} else if r == '}' {
					depth--
				}
				if depth == 0 {
					detail = string(rs[open : pos-1])
					break
				}
			}
		}
		start = pos

		if err := c.convert(key, detail); err != nil {
			return option.Option{}, err
		}
	}
	c.regex.WriteString(Escape(string(rs[start:])))
	c.opt.Pattern = c.regex.String()

	if c.opt.Domain.Mode == "" {
		c.opt.Domain.Mode = "record-inc"
	}
	return c.opt, nil
}

func (c *converter) convert(key, detail string) error {
	switch key {
	case "n":
		return nil
	case "d", "date":
		format := DateFormat(detail)
		src, err := c.add(DateRegex(format), model.MemberTimestamp, model.MemberText)
		if err != nil {
			return err
		}
		c.opt.Domain = option.Domain{Mode: "date", Source: src, DateFormat: format}
		return nil
	case "X":
		_, err := c.add(groupDefault, detail, model.MemberText)
		return err
	}

	m, ok := conversions[key]
	if !ok {
		return fmt.Errorf("%w %%%s in %q", ErrUnknownConversion, key, c.layout)
	}
	src, err := c.add(m.group, m.name, m.typ)
	if err != nil {
		return err
	}
	switch m.name {
	case model.MemberLogger:
		c.opt.NameMode = "source"
		c.opt.NameSource = src
	case model.MemberLevel:
		c.opt.TagSource = src
		c.opt.Tags = tag.Patterns{Fatal: "FATAL", Error: "ERROR", Warning: "WARN"}
	case model.MemberTimestamp:
		c.opt.Domain = option.Domain{Mode: "integer", Source: src, Unit: "ms"}
	}
	return nil
}

func indexRune(rs []rune, r rune, from int) int {
	for i := from; i < len(rs); i++ {
		if rs[i] == r {
			return i
		}
	}
	return -1
}

// Expand replaces an option carrying a log4j layout by the generated
// pattern option. Action, domain, naming prefix and separator, and the
// record position flag configured next to the layout take precedence.
func Expand(o option.Option) (option.Option, error) {
	if strings.TrimSpace(o.Log4j) == "" {
		return o, nil
	}
	gen, err := Convert(o.Log4j)
	if err != nil {
		return option.Option{}, err
	}
	if o.Description != "" {
		gen.Description = o.Description
	}
	if o.Action != "" {
		gen.Action = o.Action
	}
	if o.Domain.Mode != "" {
		gen.Domain = o.Domain
	}
	if o.Domain2.Mode != "" {
		gen.Domain2 = o.Domain2
	}
	if o.NameMode != "" {
		gen.NameMode, gen.Name, gen.NameSource = o.NameMode, o.Name, o.NameSource
	}
	gen.NamePrefix = o.NamePrefix
	gen.NameSeparator = o.NameSeparator
	gen.AddRecPos = o.AddRecPos
	if !o.Tags.IsZero() {
		gen.Tags = o.Tags
	}
	return gen, nil
}
