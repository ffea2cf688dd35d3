package jsonlog

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
	"github.com/tinytelemetry/sigex/internal/tag"
)

const events = `{"app":"svc","events":[
  {"ts":"100","level":"INFO","msg":"start","tags":["a","b"]},
  {"ts":200,"level":"ERROR","msg":"fail","detail":{"code":"42"}}
]}
{"app":"svc2","events":[]}
`

func eventOptions() []option.Option {
	return []option.Option{
		{
			Path:      "events/",
			Action:    "terminate",
			Values:    "ts,level,msg,tags",
			Domain:    option.Domain{Mode: "integer", Source: 1},
			TagSource: 2,
			Tags:      tag.Patterns{Error: "ERROR"},
			Members: []option.Member{
				{Source: 2, Name: "Level"},
				{Source: 3, Name: "Message"},
				{Source: 4, Name: "Tags"},
			},
		},
		{Path: "", Action: "ignore"},
		{
			Path:    "events/detail",
			Values:  "code",
			Members: []option.Member{{Source: 1, Name: "Code"}},
		},
	}
}

func read(t *testing.T, opts []option.Option, input string) (*sink.RecordData, reader.Stats, error) {
	t.Helper()
	r, err := New(Config{
		Settings: reader.Settings{Base: domain.Milliseconds, AddRecPos: true},
		Options:  opts,
	})
	require.NoError(t, err)
	mem := sink.NewMemory()
	stats, err := r.Read(context.Background(), model.Record{ID: "json-1"}, strings.NewReader(input), mem)
	return mem.Last(), stats, err
}

func TestReadEventsArray(t *testing.T) {
	d, stats, err := read(t, eventOptions(), events)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stats.Units)

	require.Len(t, d.Samples, 2)
	first, second := d.Samples[0], d.Samples[1]
	assert.Equal(t, int64(100), first.Position)
	assert.Equal(t, model.TagNone, first.Tag)
	assert.Equal(t, []any{"INFO", "start", "a,b", nil, int64(2)}, first.Values)

	assert.Equal(t, int64(200), second.Position)
	assert.Equal(t, model.TagError, second.Tag)
	assert.Equal(t, []any{"ERROR", "fail", nil, "42", int64(3)}, second.Values)
}

func TestReadUnmatchedObjectIsFatal(t *testing.T) {
	_, _, err := read(t, eventOptions()[:1], events)
	require.ErrorIs(t, err, reader.ErrNoMatch)
	assert.Contains(t, err.Error(), `no match for element ""`)

	var pe *reader.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 1, pe.Line)
}

func TestReadValueErrorCarriesPath(t *testing.T) {
	input := `{"events":[{"ts":"soon","level":"INFO"}]}`
	d, _, err := read(t, eventOptions(), input)
	require.ErrorIs(t, err, domain.ErrValue)

	var pe *reader.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "/events", pe.Path)
	assert.NotNil(t, d.End)
}

func TestReadSyntaxError(t *testing.T) {
	_, _, err := read(t, eventOptions(), "{\"events\":\n[{\"ts\": }]}")
	require.Error(t, err)
	var pe *reader.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 2, pe.Line)
}

func TestReadTopLevelArray(t *testing.T) {
	opts := []option.Option{{
		Path:    "",
		Action:  "terminate",
		Values:  "t,m",
		Domain:  option.Domain{Mode: "float", Source: 1},
		Members: []option.Member{{Source: 2, Name: "Message"}},
	}}
	d, _, err := read(t, opts, `[{"t":1.5,"m":"a"},{"t":2,"m":"b"}]`)
	require.NoError(t, err)
	require.Len(t, d.Samples, 2)
	assert.Equal(t, int64(1), d.Samples[0].Position)
	assert.Equal(t, "b", d.Samples[1].Values[0])
}

func TestReadArrayElementsAreUnnamed(t *testing.T) {
	input := `{"events":[{"ts":1},{"ts":2}]}`
	elements := option.Option{
		Path:    "events/",
		Action:  "terminate",
		Values:  "ts",
		Domain:  option.Domain{Mode: "integer", Source: 1},
		Members: []option.Member{{Source: 1, Name: "Stamp"}},
	}

	d, _, err := read(t, []option.Option{elements, {Path: "/", Action: "ignore"}}, input)
	require.NoError(t, err)
	require.Len(t, d.Samples, 2)
	assert.Equal(t, int64(2), d.Samples[1].Position)

	byKey := elements
	byKey.Path = "events"
	d, _, err = read(t, []option.Option{byKey, {Path: "/", Action: "ignore"}}, input)
	require.NoError(t, err)
	assert.Empty(t, d.Samples)
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
	r, err := New(Config{Settings: reader.Settings{Base: domain.Milliseconds}, Options: eventOptions()})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mem := sink.NewMemory()
	_, err = r.Read(ctx, model.Record{ID: "json-c"}, strings.NewReader(events), cancelOnSample{mem, cancel})
	require.NoError(t, err)

	d := mem.Last()
	require.Len(t, d.Samples, 1)
	assert.Equal(t, int64(100), d.Samples[0].Position)
	assert.NotNil(t, d.End)
}
