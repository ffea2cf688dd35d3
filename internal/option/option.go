// Package option holds the matching rules that map structural units of an
// input (lines, objects, elements) onto log records.
package option

import (
	"fmt"
	"strings"

	"github.com/tinytelemetry/sigex/internal/tag"
)

// DefaultDateFormat is used by date domains without an explicit format.
const DefaultDateFormat = "yyyy-MM-dd HH:mm:ss,SSS"

// DefaultNameSeparator splits hierarchical names on dots.
const DefaultNameSeparator = `\.`

// Action drives the assembly state machine for units matched by an option.
type Action int

const (
	ActionIgnore Action = iota
	ActionStart
	ActionAdd
	ActionTerminate
)

func (a Action) String() string {
	switch a {
	case ActionIgnore:
		return "ignore"
	case ActionStart:
		return "start"
	case ActionAdd:
		return "add"
	case ActionTerminate:
		return "terminate"
	}
	return "unknown"
}

// ParseAction maps a keyword to an Action. Empty means ActionAdd.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ignore":
		return ActionIgnore, nil
	case "start", "new":
		return ActionStart, nil
	case "", "add":
		return ActionAdd, nil
	case "terminate", "end":
		return ActionTerminate, nil
	}
	return ActionAdd, fmt.Errorf("unknown action %q", s)
}

// NameMode selects how the primary name of a record is derived.
type NameMode int

const (
	NameUndefined NameMode = iota
	NameSource
	NameSourceHierarchy
	NameExplicit
	NameExplicitHierarchy
)

// ParseNameMode maps a keyword to a NameMode.
func ParseNameMode(s string) (NameMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "undefined", "none":
		return NameUndefined, nil
	case "source":
		return NameSource, nil
	case "source-hierarchy", "hierarchy":
		return NameSourceHierarchy, nil
	case "explicit":
		return NameExplicit, nil
	case "explicit-hierarchy":
		return NameExplicitHierarchy, nil
	}
	return NameUndefined, fmt.Errorf("unknown name mode %q", s)
}

// Explicit reports whether the name is a configured literal.
func (m NameMode) Explicit() bool { return m == NameExplicit || m == NameExplicitHierarchy }

// Hierarchical reports whether names are split into scopes.
func (m NameMode) Hierarchical() bool {
	return m == NameSourceHierarchy || m == NameExplicitHierarchy
}

// Domain configures one domain value source.
type Domain struct {
	Mode       string `yaml:"mode,omitempty" mapstructure:"mode" json:"mode,omitempty" validate:"omitempty,oneof=undefined none float integer int date record-inc record signal-inc signal reception reception-time"`
	Source     int    `yaml:"source,omitempty" mapstructure:"source" json:"source,omitempty" validate:"min=0,max=64"`
	Unit       string `yaml:"unit,omitempty" mapstructure:"unit" json:"unit,omitempty"`
	DateFormat string `yaml:"date-format,omitempty" mapstructure:"date-format" json:"date-format,omitempty"`
}

// Member maps a source index onto a named record member.
type Member struct {
	Source int    `yaml:"source" mapstructure:"source" json:"source" validate:"min=1,max=64"`
	Name   string `yaml:"name" mapstructure:"name" json:"name" validate:"required"`
	Type   string `yaml:"type,omitempty" mapstructure:"type" json:"type,omitempty" validate:"omitempty,oneof=none integer int float text string enum enumeration"`
}

// Option is one configured matching rule. Which match key applies depends
// on the input format: Pattern for regex lines, Path plus Values for JSON
// and YAML objects, Path plus Attributes for XML elements. CSV readers
// build their single option from column settings.
type Option struct {
	Description string `yaml:"description,omitempty" mapstructure:"description" json:"description,omitempty"`

	Pattern    string `yaml:"pattern,omitempty" mapstructure:"pattern" json:"pattern,omitempty"`
	Path       string `yaml:"path,omitempty" mapstructure:"path" json:"path,omitempty"`
	Values     string `yaml:"values,omitempty" mapstructure:"values" json:"values,omitempty"`
	Attributes string `yaml:"attributes,omitempty" mapstructure:"attributes" json:"attributes,omitempty"`
	Log4j      string `yaml:"log4j,omitempty" mapstructure:"log4j" json:"log4j,omitempty"`

	Action string `yaml:"action,omitempty" mapstructure:"action" json:"action,omitempty" validate:"omitempty,oneof=ignore start new add terminate end"`

	Domain  Domain `yaml:"domain,omitempty" mapstructure:"domain" json:"domain,omitempty"`
	Domain2 Domain `yaml:"domain2,omitempty" mapstructure:"domain2" json:"domain2,omitempty"`

	NameMode      string `yaml:"name-mode,omitempty" mapstructure:"name-mode" json:"name-mode,omitempty" validate:"omitempty,oneof=undefined none source source-hierarchy hierarchy explicit explicit-hierarchy"`
	Name          string `yaml:"name,omitempty" mapstructure:"name" json:"name,omitempty"`
	NameSource    int    `yaml:"name-source,omitempty" mapstructure:"name-source" json:"name-source,omitempty" validate:"min=0,max=64"`
	Name2Mode     string `yaml:"name2-mode,omitempty" mapstructure:"name2-mode" json:"name2-mode,omitempty" validate:"omitempty,oneof=undefined none source"`
	Name2Source   int    `yaml:"name2-source,omitempty" mapstructure:"name2-source" json:"name2-source,omitempty" validate:"min=0,max=64"`
	NameSeparator string `yaml:"name-separator,omitempty" mapstructure:"name-separator" json:"name-separator,omitempty" validate:"omitempty,regexp2"`
	NamePrefix    string `yaml:"name-prefix,omitempty" mapstructure:"name-prefix" json:"name-prefix,omitempty"`

	TagSource int          `yaml:"tag-source,omitempty" mapstructure:"tag-source" json:"tag-source,omitempty" validate:"min=0,max=64"`
	Tags      tag.Patterns `yaml:"tags,omitempty" mapstructure:"tags" json:"tags,omitempty"`

	Members   []Member `yaml:"members,omitempty" mapstructure:"members" json:"members,omitempty" validate:"dive"`
	AddRecPos bool     `yaml:"add-rec-pos,omitempty" mapstructure:"add-rec-pos" json:"add-rec-pos,omitempty"`
}

// splitList splits a comma-separated key list, trimming each key.
func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
