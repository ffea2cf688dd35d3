package option

import (
	"errors"
	"fmt"
	"time"

	"github.com/tinytelemetry/sigex/internal/domain"
	"github.com/tinytelemetry/sigex/internal/model"
	"github.com/tinytelemetry/sigex/internal/rx"
	"github.com/tinytelemetry/sigex/internal/tag"
)

// ErrInvalid marks an option that cannot be compiled.
var ErrInvalid = errors.New("invalid option")

// Kind is the structural unit family an option matches.
type Kind int

const (
	KindColumns Kind = iota
	KindPattern
	KindPath
	KindElement
)

// Settings carries the run-wide inputs of compilation.
type Settings struct {
	Base   domain.Base
	Layout *Layout
	// Clock overrides the reception-time clock.
	Clock func() time.Time
	// AddRecPos enables the RecPos member for every option.
	AddRecPos bool
}

// Binding copies a source index into a layout slot.
type Binding struct {
	Source int
	Slot   int
}

// Compiled is an Option prepared for one run. It is read-only after
// Compile returns.
type Compiled struct {
	Index  int
	Kind   Kind
	Option Option
	Action Action

	Rule  PathRule
	Regex *rx.Regexp
	Keys  []string

	Domain        *domain.Resolver
	DomainSource  int
	Domain2       *domain.Resolver
	Domain2Source int

	NameMode    NameMode
	Name        string
	NameSource  int
	Name2Mode   NameMode
	Name2Source int
	Separator   *rx.Regexp
	Prefix      string

	TagSource int
	Tags      *tag.Classifier

	Bindings  []Binding
	AddRecPos bool
}

func invalid(index int, err error) error {
	return fmt.Errorf("%w %d: %w", ErrInvalid, index+1, err)
}

// Compile prepares o as the index-th option of a run.
func Compile(index int, kind Kind, o Option, s Settings) (*Compiled, error) {
	c := &Compiled{
		Index:         index,
		Kind:          kind,
		Option:        o,
		DomainSource:  o.Domain.Source,
		Domain2Source: o.Domain2.Source,
		Name:          o.Name,
		NameSource:    o.NameSource,
		Name2Source:   o.Name2Source,
		Prefix:        o.NamePrefix,
		TagSource:     o.TagSource,
		AddRecPos:     o.AddRecPos || s.AddRecPos,
	}

	var err error
	if c.Action, err = ParseAction(o.Action); err != nil {
		return nil, invalid(index, err)
	}

	switch kind {
	case KindPattern:
		p := o.Pattern
		if p == "" {
			p = ".*"
		}
		if c.Regex, err = rx.Compile(p); err != nil {
			return nil, invalid(index, fmt.Errorf("invalid pattern: %w", err))
		}
	case KindPath:
		c.Rule = ParsePath(o.Path)
		c.Keys = splitList(o.Values)
	case KindElement:
		c.Rule = ParsePath(o.Path)
		c.Keys = splitList(o.Attributes)
	}

	if err := c.compileDomains(o, s); err != nil {
		return nil, invalid(index, err)
	}

	if c.NameMode, err = ParseNameMode(o.NameMode); err != nil {
		return nil, invalid(index, err)
	}
	if c.Name2Mode, err = ParseNameMode(o.Name2Mode); err != nil {
		return nil, invalid(index, err)
	}
	if c.NameMode.Hierarchical() {
		sep := o.NameSeparator
		if sep == "" {
			sep = DefaultNameSeparator
		}
		if c.Separator, err = rx.Compile(sep); err != nil {
			return nil, invalid(index, fmt.Errorf("invalid name separator: %w", err))
		}
	}

	if c.Tags, err = tag.Compile(o.Tags); err != nil {
		return nil, invalid(index, err)
	}

	if s.Layout != nil {
		for _, m := range o.Members {
			slot, ok := s.Layout.Slot(m.Name)
			if !ok {
				return nil, invalid(index, fmt.Errorf("member %q missing from layout", m.Name))
			}
			c.Bindings = append(c.Bindings, Binding{Source: m.Source, Slot: slot})
		}
	}
	return c, nil
}

func (c *Compiled) compileDomains(o Option, s Settings) error {
	mode, err := domain.ParseMode(o.Domain.Mode)
	if err != nil {
		return err
	}
	format := o.Domain.DateFormat
	if format == "" {
		format = DefaultDateFormat
	}
	if c.Domain, err = domain.NewResolver(s.Base, mode, o.Domain.Unit, format); err != nil {
		return err
	}
	mode2, err := domain.ParseMode(o.Domain2.Mode)
	if err != nil {
		return err
	}
	if c.Domain2, err = domain.NewSecondary(s.Base, mode2, o.Domain2.Unit); err != nil {
		return err
	}
	if s.Clock != nil {
		c.Domain = c.Domain.WithClock(s.Clock)
	}
	return nil
}

// CompileAll compiles opts in declaration order.
func CompileAll(kind Kind, opts []Option, s Settings) ([]*Compiled, error) {
	out := make([]*Compiled, 0, len(opts))
	for i, o := range opts {
		c, err := Compile(i, kind, o, s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Matches reports whether a path or element unit named name below
// currentPath is handled by c.
func (c *Compiled) Matches(currentPath, name string) bool {
	return c.Rule.Matches(currentPath, name)
}

// Match full-matches line against a pattern option and returns its groups.
func (c *Compiled) Match(line string) (Fields, bool, error) {
	if c.Regex == nil {
		return nil, false, nil
	}
	g, ok, err := c.Regex.Groups(line)
	if err != nil || !ok {
		return nil, false, err
	}
	return Fields(g), true, nil
}

// KeyedUnit presents an object's values through c's source keys.
func (c *Compiled) KeyedUnit(values map[string]string) Unit {
	return Keyed{Keys: c.Keys, Values: values}
}

// ElementUnit presents an element's text and attributes through c's
// source keys.
func (c *Compiled) ElementUnit(text string, hasText bool, attrs map[string]string) Unit {
	return Element{HasText: hasText, Text: text, Keys: c.Keys, Attrs: attrs}
}

// Classify tags text with c's severity patterns.
func (c *Compiled) Classify(text string) (model.Tag, error) {
	return c.Tags.Classify(text)
}

// Select returns the first option in declaration order accepted by pred.
func Select(opts []*Compiled, pred func(*Compiled) bool) (*Compiled, bool) {
	for _, c := range opts {
		if pred(c) {
			return c, true
		}
	}
	return nil, false
}

// SelectPath returns the first option whose path rule accepts name below
// currentPath.
func SelectPath(opts []*Compiled, currentPath, name string) (*Compiled, bool) {
	return Select(opts, func(c *Compiled) bool { return c.Matches(currentPath, name) })
}

// SelectLine returns the first pattern option that matches all of line,
// together with its capture groups.
func SelectLine(opts []*Compiled, line string) (*Compiled, Fields, bool, error) {
	for _, c := range opts {
		g, ok, err := c.Match(line)
		if err != nil {
			return nil, nil, false, err
		}
		if ok {
			return c, g, true, nil
		}
	}
	return nil, nil, false, nil
}
