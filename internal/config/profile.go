// Package config loads reader profiles: named, validated descriptions of
// one input format and the options that map it onto log records.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tinytelemetry/sigex/internal/option"
	"github.com/tinytelemetry/sigex/internal/reader/csv"
)

// Input formats.
const (
	FormatCSV     = "csv"
	FormatPattern = "pattern"
	FormatJSON    = "json"
	FormatYAML    = "yaml"
	FormatXML     = "xml"
)

var (
	// ErrInvalidProfile wraps every load and validation failure.
	ErrInvalidProfile = errors.New("invalid profile")
	// ErrUnknownProfile is returned by Lookup for a missing name.
	ErrUnknownProfile = errors.New("unknown profile")
)

//go:embed builtin.yml
var builtinProfiles []byte

// CSV holds the delimited-text settings of a profile. Unset fields keep
// the CSV reader defaults.
type CSV struct {
	Mode       string         `yaml:"mode,omitempty" json:"mode,omitempty" validate:"omitempty,oneof=separate struct log"`
	FirstRow   int            `yaml:"first-row,omitempty" json:"first-row,omitempty" validate:"min=0"`
	Columns    int            `yaml:"columns,omitempty" json:"columns,omitempty" validate:"min=0,max=25"`
	Labels     *bool          `yaml:"labels,omitempty" json:"labels,omitempty"`
	Delimiters []string       `yaml:"delimiters,omitempty" json:"delimiters,omitempty" validate:"dive,oneof=tab space comma semicolon other"`
	Separator  string         `yaml:"separator,omitempty" json:"separator,omitempty"`
	Quote      string         `yaml:"quote,omitempty" json:"quote,omitempty" validate:"omitempty,oneof=none double single"`
	Fields     []csv.Column   `yaml:"fields,omitempty" json:"fields,omitempty" validate:"max=25"`
	Option     *option.Option `yaml:"option,omitempty" json:"option,omitempty"`
}

// Profile describes one input format.
type Profile struct {
	Name           string          `yaml:"name" json:"name" validate:"required"`
	Description    string          `yaml:"description,omitempty" json:"description,omitempty"`
	Format         string          `yaml:"format" json:"format" validate:"required,oneof=csv pattern json yaml xml"`
	Charset        string          `yaml:"charset,omitempty" json:"charset,omitempty" validate:"omitempty,charset"`
	DomainBase     string          `yaml:"domain-base,omitempty" json:"domain-base,omitempty" validate:"omitempty,domainbase"`
	RelativeDomain bool            `yaml:"relative-domain,omitempty" json:"relative-domain,omitempty"`
	AddRecPos      bool            `yaml:"add-rec-pos,omitempty" json:"add-rec-pos,omitempty"`
	WriteLines     bool            `yaml:"write-lines,omitempty" json:"write-lines,omitempty"`
	SkipLines      int             `yaml:"skip-lines,omitempty" json:"skip-lines,omitempty" validate:"min=0"`
	StopAfterLines int             `yaml:"stop-after-lines,omitempty" json:"stop-after-lines,omitempty" validate:"min=0"`
	XMLFragment    bool            `yaml:"xml-fragment,omitempty" json:"xml-fragment,omitempty"`
	CSV            *CSV            `yaml:"csv,omitempty" json:"csv,omitempty"`
	Options        []option.Option `yaml:"options,omitempty" json:"options,omitempty" validate:"required_unless=Format csv,dive"`
}

// File is a profile document.
type File struct {
	Profiles []Profile `yaml:"profiles" json:"profiles" validate:"dive"`
}

// Parse decodes, schema-checks and validates a profile document.
func Parse(data []byte) (*File, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}
	if err := checkSchema(doc); err != nil {
		return nil, err
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidProfile, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Load reads and parses a profile file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Builtin returns the profiles shipped with the binary.
func Builtin() *File {
	f, err := Parse(builtinProfiles)
	if err != nil {
		panic(fmt.Sprintf("config: builtin profiles: %v", err))
	}
	return f
}

// Validate checks every profile and rejects duplicate names.
func (f *File) Validate() error {
	seen := make(map[string]bool, len(f.Profiles))
	for i := range f.Profiles {
		p := &f.Profiles[i]
		if err := validate.Struct(p); err != nil {
			return fmt.Errorf("%w %q: %s", ErrInvalidProfile, p.Name, describe(err))
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: duplicate name %q", ErrInvalidProfile, p.Name)
		}
		seen[p.Name] = true
	}
	return nil
}

// Merge returns f with the profiles of other added. Profiles of other
// replace same-named profiles of f.
func (f *File) Merge(other *File) *File {
	out := &File{}
	index := map[string]int{}
	for _, src := range []*File{f, other} {
		if src == nil {
			continue
		}
		for _, p := range src.Profiles {
			if i, ok := index[p.Name]; ok {
				out.Profiles[i] = p
				continue
			}
			index[p.Name] = len(out.Profiles)
			out.Profiles = append(out.Profiles, p)
		}
	}
	return out
}

// Lookup returns the named profile.
func (f *File) Lookup(name string) (*Profile, error) {
	for i := range f.Profiles {
		if f.Profiles[i].Name == name {
			return &f.Profiles[i], nil
		}
	}
	return nil, fmt.Errorf("%w %q (known: %s)", ErrUnknownProfile, name, strings.Join(f.Names(), ", "))
}

// Names lists the profile names in sorted order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Profiles))
	for _, p := range f.Profiles {
		names = append(names, p.Name)
	}
	sort.Strings(names)
	return names
}
