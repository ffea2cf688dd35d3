package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tinytelemetry/sigex/internal/domain"
	"github.com/tinytelemetry/sigex/internal/model"
	"github.com/tinytelemetry/sigex/internal/option"
	"github.com/tinytelemetry/sigex/internal/reader"
	"github.com/tinytelemetry/sigex/internal/sink"
)

func TestBuiltinProfilesBuildReaders(t *testing.T) {
	f := Builtin()
	assert.Equal(t, []string{"csv", "json-lines", "log4j", "log4j-iso"}, f.Names())
	for _, p := range f.Profiles {
		_, err := p.NewReader(zaptest.NewLogger(t))
		assert.NoError(t, err, p.Name)
	}
}

func TestLog4jProfileEndToEnd(t *testing.T) {
	p, err := Builtin().Lookup("log4j")
	require.NoError(t, err)
	r, err := p.NewReader(zaptest.NewLogger(t))
	require.NoError(t, err)

	input := "0 [main] INFO com.acme.App  - started\n" +
		"15 [main] ERROR com.acme.Db  - lost\n" +
		"  at Db.connect\n"
	mem := sink.NewMemory()
	stats, err := r.Read(context.Background(), model.Record{ID: "r1"}, strings.NewReader(input), mem)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Samples)

	d := mem.Last()
	require.Len(t, d.Samples, 2)
	assert.Equal(t, int64(0), d.Samples[0].Position)
	assert.Equal(t, int64(15), d.Samples[1].Position)
	assert.Equal(t, model.TagError, d.Samples[1].Tag)

	last := d.Samples[1].Values
	assert.Equal(t, "lost  at Db.connect", last[len(last)-1])

	_, ok := d.SignalNamed("com.acme.Db")
	assert.True(t, ok)
}

func TestParseCSVProfile(t *testing.T) {
	doc := `
profiles:
  - name: metrics
    format: csv
    domain-base: ms
    csv:
      mode: struct
      labels: false
      delimiters: [comma]
      fields:
        - {type: none}
        - {name: Load, type: float}
`
	f, err := Parse([]byte(doc))
	require.NoError(t, err)
	p, err := f.Lookup("metrics")
	require.NoError(t, err)

	base, err := p.Base()
	require.NoError(t, err)
	assert.Equal(t, domain.Milliseconds, base)

	conf := p.csvConfig(mustSettings(t, p))
	assert.Equal(t, "struct", conf.Mode)
	assert.False(t, conf.HasLabels)
	assert.True(t, conf.Delimiters.Comma)
	assert.False(t, conf.Delimiters.Semicolon)
	assert.Equal(t, 2, conf.NumColumns)

	r, err := p.NewReader(nil)
	require.NoError(t, err)
	mem := sink.NewMemory()
	_, err = r.Read(context.Background(), model.Record{ID: "m"}, strings.NewReader("1,0.5\n2,0.75\n"), mem)
	require.NoError(t, err)
	require.Len(t, mem.Last().Samples, 2)
	assert.Equal(t, int64(2), mem.Last().Samples[1].Position)
}

func mustSettings(t *testing.T, p *Profile) reader.Settings {
	t.Helper()
	s, err := p.Settings(nil)
	require.NoError(t, err)
	return s
}

func TestParseRejectsInvalidProfiles(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown key", "profiles:\n  - name: a\n    format: csv\n    colour: red\n", "colour"},
		{"unknown format", "profiles:\n  - name: a\n    format: ini\n", "format"},
		{"missing options", "profiles:\n  - name: a\n    format: pattern\n", "required_unless"},
		{"bad base", "profiles:\n  - name: a\n    format: csv\n    domain-base: parsecs\n", "domainbase"},
		{"bad charset", "profiles:\n  - name: a\n    format: csv\n    charset: klingon-8\n", "charset"},
		{"bad separator", "profiles:\n  - name: a\n    format: pattern\n    options:\n      - pattern: x\n        name-separator: \"(\"\n", "regexp2"},
		{"bad action", "profiles:\n  - name: a\n    format: pattern\n    options:\n      - action: jump\n", "oneof"},
		{"other without separator", "profiles:\n  - name: a\n    format: csv\n    csv:\n      delimiters: [other]\n", "Separator"},
		{"duplicate", "profiles:\n  - name: a\n    format: csv\n  - name: a\n    format: csv\n", "duplicate"},
		{"not yaml", "profiles: [", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.ErrorIs(t, err, ErrInvalidProfile)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadAndMerge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yml")
	doc := "profiles:\n  - name: csv\n    format: csv\n    description: mine\n  - name: extra\n    format: csv\n"
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	user, err := Load(path)
	require.NoError(t, err)
	merged := Builtin().Merge(user)

	p, err := merged.Lookup("csv")
	require.NoError(t, err)
	assert.Equal(t, "mine", p.Description)
	assert.Contains(t, merged.Names(), "extra")
	assert.Contains(t, merged.Names(), "log4j")

	_, err = merged.Lookup("nope")
	require.ErrorIs(t, err, ErrUnknownProfile)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
}

func TestExpandedOptionsReportsBadLayout(t *testing.T) {
	p := Profile{Name: "x", Format: FormatPattern, Options: []option.Option{{Log4j: "%q"}}}
	_, err := p.NewReader(nil)
	require.ErrorIs(t, err, ErrInvalidProfile)
	assert.Contains(t, err.Error(), "option 1")
}
