package yamllog

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/sigex/internal/domain"
	"github.com/tinytelemetry/sigex/internal/model"
	"github.com/tinytelemetry/sigex/internal/option"
	"github.com/tinytelemetry/sigex/internal/reader"
	"github.com/tinytelemetry/sigex/internal/sink"
)

const stream = `service: api
entries:
  - at: 10
    logger: http.Server
    text: listening
    labels: [edge, public]
  - at: 25
    logger: http.Client
    text: dial failed
---
service: worker
entries:
  - at: 40
    logger: job.Queue
    text: drained
`

func entryOptions() []option.Option {
	return []option.Option{
		{
			Path:       "entries/",
			Action:     "terminate",
			Values:     "at,logger,text,labels",
			Domain:     option.Domain{Mode: "integer", Source: 1},
			NameMode:   "source-hierarchy",
			NameSource: 2,
			Members: []option.Member{
				{Source: 3, Name: "Message"},
				{Source: 4, Name: "Labels"},
			},
		},
		{Path: "", Action: "ignore"},
	}
}

func read(t *testing.T, opts []option.Option, input string) (*sink.RecordData, error) {
	t.Helper()
	r, err := New(Config{Settings: reader.Settings{Base: domain.Milliseconds}, Options: opts})
	require.NoError(t, err)
	mem := sink.NewMemory()
	_, err = r.Read(context.Background(), model.Record{ID: "yaml-1"}, strings.NewReader(input), mem)
	return mem.Last(), err
}

func TestReadMultiDocumentStream(t *testing.T) {
	d, err := read(t, entryOptions(), stream)
	require.NoError(t, err)

	require.Len(t, d.Samples, 3)
	assert.Equal(t, int64(10), d.Samples[0].Position)
	assert.Equal(t, []any{"listening", "edge,public"}, d.Samples[0].Values)
	assert.Equal(t, int64(40), d.Samples[2].Position)

	server, ok := d.SignalNamed("Server")
	require.True(t, ok)
	client, ok := d.SignalNamed("Client")
	require.True(t, ok)
	assert.Equal(t, server.ScopeID, client.ScopeID, "both live below the http scope")
	_, ok = d.SignalNamed("Queue")
	assert.True(t, ok)
}

func TestReadUnmatchedMappingReportsLine(t *testing.T) {
	input := "entries:\n  - at: 1\n    nested:\n      x: 1\n"
	_, err := read(t, entryOptions(), input)
	require.ErrorIs(t, err, reader.ErrNoMatch)

	var pe *reader.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 4, pe.Line)
	assert.Equal(t, "/entries", pe.Path)
}

func TestReadMergeKeysAndAliases(t *testing.T) {
	input := "defaults: &d\n  logger: base\n" +
		"entries:\n  - <<: *d\n    at: 5\n    text: merged\n"
	opts := entryOptions()
	opts = append(opts, option.Option{Path: "defaults", Action: "ignore"})
	d, err := read(t, opts, input)
	require.NoError(t, err)

	require.Len(t, d.Samples, 1)
	_, ok := d.SignalNamed("base")
	assert.True(t, ok)
}

func TestReadSyntaxError(t *testing.T) {
	_, err := read(t, entryOptions(), "entries: [1, 2\n")
	require.Error(t, err)
	var pe *reader.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Positive(t, pe.Line)
}

func TestReadListItemsAreUnnamed(t *testing.T) {
	opts := entryOptions()
	opts[0].Path = "entries"
	d, err := read(t, opts, "entries:\n  - at: 1\n    text: a\n")
	require.NoError(t, err)
	assert.Empty(t, d.Samples, "items fall through to the unnamed rule")
}

func TestReadInvalidMergeValue(t *testing.T) {
	_, err := read(t, entryOptions(), "entries:\n  - at: 1\n    <<: 5\n")
	var pe *reader.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 3, pe.Line)
	assert.Equal(t, "/entries", pe.Path)
	assert.Contains(t, pe.Msg, "invalid merge value")
}

type cancelOnSample struct {
	*sink.Memory
	cancel context.CancelFunc
}

func (c cancelOnSample) WriteSample(s model.Sample) error {
	c.cancel()
	return c.Memory.WriteSample(s)
}

func TestReadStopsOnCancel(t *testing.T) {
	r, err := New(Config{Settings: reader.Settings{Base: domain.Milliseconds}, Options: entryOptions()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mem := sink.NewMemory()
	_, err = r.Read(ctx, model.Record{ID: "yaml-c"}, strings.NewReader(stream), cancelOnSample{mem, cancel})
	require.NoError(t, err)

	d := mem.Last()
	require.Len(t, d.Samples, 1)
	assert.Equal(t, int64(10), d.Samples[0].Position)
	assert.NotNil(t, d.End)
}
