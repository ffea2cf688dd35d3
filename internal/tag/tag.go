// Package tag classifies text into severity ranks.
package tag

import (
	"fmt"

	"github.com/tinytelemetry/sigex/internal/model"
	"github.com/tinytelemetry/sigex/internal/rx"
)

// Patterns holds one optional regular expression per severity. Empty
// patterns are skipped.
type Patterns struct {
	Fatal   string `yaml:"fatal,omitempty" mapstructure:"fatal" json:"fatal,omitempty"`
	Error   string `yaml:"error,omitempty" mapstructure:"error" json:"error,omitempty"`
	Warning string `yaml:"warning,omitempty" mapstructure:"warning" json:"warning,omitempty"`
	Success string `yaml:"success,omitempty" mapstructure:"success" json:"success,omitempty"`
	Info    string `yaml:"info,omitempty" mapstructure:"info" json:"info,omitempty"`
	Debug   string `yaml:"debug,omitempty" mapstructure:"debug" json:"debug,omitempty"`
	Trace   string `yaml:"trace,omitempty" mapstructure:"trace" json:"trace,omitempty"`
}

// IsZero reports whether no pattern is set.
func (p Patterns) IsZero() bool { return p == Patterns{} }

func (p Patterns) ordered() [7]struct {
	tag     model.Tag
	label   string
	pattern string
} {
	return [7]struct {
		tag     model.Tag
		label   string
		pattern string
	}{
		{model.TagFatal, "fatal", p.Fatal},
		{model.TagError, "error", p.Error},
		{model.TagWarning, "warning", p.Warning},
		{model.TagSuccess, "success", p.Success},
		{model.TagInfo, "info", p.Info},
		{model.TagDebug, "debug", p.Debug},
		{model.TagTrace, "trace", p.Trace},
	}
}

type rule struct {
	tag model.Tag
	re  *rx.Regexp
}

// Classifier tests text against the compiled patterns in fixed precedence
// order: fatal, error, warning, success, info, debug, trace.
type Classifier struct {
	rules []rule
}

// Compile compiles the non-empty patterns.
func Compile(p Patterns) (*Classifier, error) {
	c := &Classifier{}
	for _, o := range p.ordered() {
		if o.pattern == "" {
			continue
		}
		re, err := rx.Compile(o.pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid %s pattern.", o.label)
		}
		c.rules = append(c.rules, rule{tag: o.tag, re: re})
	}
	return c, nil
}

// Empty reports whether the classifier has no patterns.
func (c *Classifier) Empty() bool { return c == nil || len(c.rules) == 0 }

// Classify returns the rank of the first pattern that matches all of text,
// or model.TagNone.
func (c *Classifier) Classify(text string) (model.Tag, error) {
	if c == nil {
		return model.TagNone, nil
	}
	for _, r := range c.rules {
		ok, err := r.re.FullMatch(text)
		if err != nil {
			return model.TagNone, err
		}
		if ok {
			return r.tag, nil
		}
	}
	return model.TagNone, nil
}

// Merge keeps the more severe of two tags; an untagged side never wins.
func Merge(current, next model.Tag) model.Tag {
	if next > model.TagNone && (current == model.TagNone || next < current) {
		return next
	}
	return current
}
