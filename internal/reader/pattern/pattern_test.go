package pattern

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/sigex/internal/domain"
	"github.com/tinytelemetry/sigex/internal/model"
	"github.com/tinytelemetry/sigex/internal/option"
	"github.com/tinytelemetry/sigex/internal/reader"
	"github.com/tinytelemetry/sigex/internal/sink"
	"github.com/tinytelemetry/sigex/internal/tag"
)

func multiline() []option.Option {
	return []option.Option{
		{
			Pattern:    `(\d+) (\w+) (\S+) (.*)`,
			Action:     "start",
			Domain:     option.Domain{Mode: "integer", Source: 1},
			TagSource:  2,
			Tags:       tag.Patterns{Error: "ERROR", Info: "INFO"},
			NameMode:   "source-hierarchy",
			NameSource: 3,
			Members: []option.Member{
				{Source: 2, Name: "Level"},
				{Source: 4, Name: "Message"},
			},
		},
		{
			Pattern: `\s+(.*)`,
			Action:  "add",
			Members: []option.Member{{Source: 1, Name: "Message"}},
		},
	}
}

func read(t *testing.T, conf Config, input string) (*sink.RecordData, reader.Stats, error) {
	t.Helper()
	if conf.Base.IsZero() {
		conf.Base = domain.Milliseconds
	}
	r, err := New(conf)
	require.NoError(t, err)
	mem := sink.NewMemory()
	stats, err := r.Read(context.Background(), model.Record{ID: "run-1", Name: "app.log"}, strings.NewReader(input), mem)
	return mem.Last(), stats, err
}

func TestReadMultilineMessages(t *testing.T) {
	input := "100 INFO app.Server started\n" +
		"\n" +
		"250 ERROR app.db.Pool failed\n" +
		"  at connect\n" +
		"  at open\n" +
		"300 INFO app.Server stopped\n"

	d, stats, err := read(t, Config{Options: multiline()}, input)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.Units)
	assert.Equal(t, int64(3), stats.Samples)
	assert.Equal(t, 2, stats.Signals)

	require.Len(t, d.Samples, 3)
	failed := d.Samples[1]
	assert.Equal(t, int64(250), failed.Position)
	assert.Equal(t, model.TagError, failed.Tag)
	assert.Equal(t, []any{"ERROR", "failedat connectat open"}, failed.Values)

	server, ok := d.SignalNamed("Server")
	require.True(t, ok)
	assert.Len(t, d.SamplesOf(server.ID), 2)
	pool, ok := d.SignalNamed("Pool")
	require.True(t, ok)
	assert.NotEqual(t, server.ScopeID, pool.ScopeID)

	assert.Equal(t, int64(100), *d.Start)
	assert.Equal(t, int64(301), *d.End)
}

func TestReadNoMatchIsFatal(t *testing.T) {
	input := "100 INFO app.Server started\n" +
		"garbage\n"

	d, _, err := read(t, Config{Options: multiline()}, input)
	require.Error(t, err)
	assert.True(t, errors.Is(err, reader.ErrNoMatch))

	var pe *reader.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, pe.Line)
	assert.Equal(t, "garbage", pe.Snippet)
	assert.NotNil(t, d.End, "record is closed on error")
}

func TestReadSkipAndStop(t *testing.T) {
	input := "header line\n" +
		"1 INFO a one\n" +
		"2 INFO a two\n" +
		"3 INFO a three\n"

	d, _, err := read(t, Config{Options: multiline(), SkipLines: 1, StopAfterLines: 3}, input)
	require.NoError(t, err)
	require.Len(t, d.Samples, 2)
	assert.Equal(t, int64(1), d.Samples[0].Position)
	assert.Equal(t, int64(2), d.Samples[1].Position)
}

func TestReadWritesLinkedRawLines(t *testing.T) {
	input := "10 INFO a first\n" +
		"  more\n" +
		"20 INFO a second\n"

	conf := Config{Options: multiline()}
	conf.WriteLines = true
	conf.AddRecPos = true
	d, _, err := read(t, conf, input)
	require.NoError(t, err)

	require.Len(t, d.Lines, 3)
	assert.Equal(t, "  more", d.Lines[1].Text)
	require.Len(t, d.Links, 3)
	assert.Equal(t, model.LineLink{RecordID: "run-1", Line: 2, SignalID: d.Samples[0].SignalID, Position: 10}, d.Links[1])

	recPos := d.Samples[1].Values[len(d.Samples[1].Values)-1]
	assert.Equal(t, int64(3), recPos)
}

func TestReadRecordIncWithoutTimestamps(t *testing.T) {
	opts := []option.Option{{
		Pattern: `(.*)`,
		Action:  "start",
		Domain:  option.Domain{Mode: "record-inc"},
		Members: []option.Member{{Source: 1, Name: "Message"}},
	}}
	d, _, err := read(t, Config{Options: opts}, "a\nb\nc\n")
	require.NoError(t, err)

	var got []int64
	for _, s := range d.Samples {
		got = append(got, s.Position)
	}
	assert.Equal(t, []int64{0, 1, 2}, got)
}

func TestReadCanceledContextClosesRecord(t *testing.T) {
	r, err := New(Config{Options: multiline(), Settings: reader.Settings{Base: domain.Milliseconds}})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mem := sink.NewMemory()
	_, err = r.Read(ctx, model.Record{ID: "c"}, strings.NewReader("1 INFO a x\n"), mem)
	require.NoError(t, err)
	assert.Empty(t, mem.Last().Samples)
	assert.NotNil(t, mem.Last().End)
}

func TestNewRejectsInvalidOption(t *testing.T) {
	_, err := New(Config{Options: []option.Option{{Pattern: "(unclosed"}}})
	require.ErrorIs(t, err, option.ErrInvalid)
}
