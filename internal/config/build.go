package config

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/tinytelemetry/sigex/internal/domain"
	"github.com/tinytelemetry/sigex/internal/log4j"
	"github.com/tinytelemetry/sigex/internal/option"
	"github.com/tinytelemetry/sigex/internal/reader"
	"github.com/tinytelemetry/sigex/internal/reader/csv"
	"github.com/tinytelemetry/sigex/internal/reader/jsonlog"
	"github.com/tinytelemetry/sigex/internal/reader/pattern"
	"github.com/tinytelemetry/sigex/internal/reader/xmllog"
	"github.com/tinytelemetry/sigex/internal/reader/yamllog"
	"github.com/tinytelemetry/sigex/internal/tokenizer"
)

// Base returns the profile's domain base. CSV profiles default to
// microseconds and all others to milliseconds.
func (p *Profile) Base() (domain.Base, error) {
	if p.DomainBase != "" {
		return domain.ParseBase(p.DomainBase)
	}
	if p.Format == FormatCSV {
		return domain.Microseconds, nil
	}
	return domain.Milliseconds, nil
}

// Settings returns the profile-wide reader settings.
func (p *Profile) Settings(logger *zap.Logger) (reader.Settings, error) {
	base, err := p.Base()
	if err != nil {
		return reader.Settings{}, err
	}
	return reader.Settings{
		Format:     p.Format,
		Base:       base,
		Relative:   p.RelativeDomain,
		AddRecPos:  p.AddRecPos,
		WriteLines: p.WriteLines,
		Logger:     logger,
	}, nil
}

// ExpandedOptions returns the options with log4j layouts converted.
func (p *Profile) ExpandedOptions() ([]option.Option, error) {
	out := make([]option.Option, 0, len(p.Options))
	for i, o := range p.Options {
		e, err := log4j.Expand(o)
		if err != nil {
			return nil, fmt.Errorf("option %d: %w", i+1, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// NewReader builds the format driver for p. Every configuration error
// surfaces here, before input is consumed.
func (p *Profile) NewReader(logger *zap.Logger) (reader.Reader, error) {
	s, err := p.Settings(logger)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidProfile, p.Name, err)
	}
	r, err := p.newReader(s)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %w", ErrInvalidProfile, p.Name, err)
	}
	return r, nil
}

func (p *Profile) newReader(s reader.Settings) (reader.Reader, error) {
	if p.Format == FormatCSV {
		return csv.New(p.csvConfig(s))
	}
	opts, err := p.ExpandedOptions()
	if err != nil {
		return nil, err
	}
	switch p.Format {
	case FormatPattern:
		return pattern.New(pattern.Config{
			Settings:       s,
			Options:        opts,
			SkipLines:      p.SkipLines,
			StopAfterLines: p.StopAfterLines,
		})
	case FormatJSON:
		return jsonlog.New(jsonlog.Config{Settings: s, Options: opts})
	case FormatYAML:
		return yamllog.New(yamllog.Config{Settings: s, Options: opts})
	case FormatXML:
		return xmllog.New(xmllog.Config{Settings: s, Options: opts, Fragment: p.XMLFragment})
	}
	return nil, fmt.Errorf("unsupported format %q", p.Format)
}

func (p *Profile) csvConfig(s reader.Settings) csv.Config {
	conf := csv.DefaultConfig()
	conf.Settings = s
	c := p.CSV
	if c == nil {
		return conf
	}
	if c.Mode != "" {
		conf.Mode = c.Mode
	}
	if c.FirstRow > 0 {
		conf.FirstRow = c.FirstRow
	}
	if len(c.Fields) > 0 {
		conf.Columns = c.Fields
		conf.NumColumns = len(c.Fields)
	}
	if c.Columns > 0 {
		conf.NumColumns = c.Columns
	}
	if c.Labels != nil {
		conf.HasLabels = *c.Labels
	}
	if len(c.Delimiters) > 0 {
		var d tokenizer.Delimiters
		for _, name := range c.Delimiters {
			switch name {
			case "tab":
				d.Tab = true
			case "space":
				d.Space = true
			case "comma":
				d.Comma = true
			case "semicolon":
				d.Semicolon = true
			case "other":
				d.Other, d.OtherText = true, c.Separator
			}
		}
		conf.Delimiters = d
	}
	if c.Quote != "" {
		conf.Quote = c.Quote
	}
	if c.Option != nil {
		conf.Option = *c.Option
	}
	return conf
}
