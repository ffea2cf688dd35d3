package writer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/sigex/internal/domain"
	"github.com/tinytelemetry/sigex/internal/model"
	"github.com/tinytelemetry/sigex/internal/option"
	"github.com/tinytelemetry/sigex/internal/sink"
)

func newRouter(t *testing.T, relative bool, opts ...option.Option) (*Router, *sink.Memory, []*option.Compiled) {
	t.Helper()
	mem := sink.NewMemory()
	run, err := NewRun(mem, model.Record{ID: "rec"}, RunConfig{Relative: relative})
	require.NoError(t, err)
	layout := option.BuildLayout(opts, false)
	compiled, err := option.CompileAll(option.KindPattern, opts, option.Settings{Base: domain.Milliseconds, Layout: layout})
	require.NoError(t, err)
	return NewRouter(run, layout), mem, compiled
}

func TestRouterReusesWriterForSameNames(t *testing.T) {
	r, mem, c := newRouter(t, false, option.Option{NameMode: "source", NameSource: 1})

	a, err := r.Writer("app", true, "", false, c[0])
	require.NoError(t, err)
	b, err := r.Writer("app", true, "", false, c[0])
	require.NoError(t, err)
	other, err := r.Writer("db", true, "", false, c[0])
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.NotSame(t, a, other)
	assert.Equal(t, 2, r.Len())
	assert.Len(t, mem.Last().Signals, 2)
}

func TestRouterNamesSignals(t *testing.T) {
	r, mem, c := newRouter(t, false,
		option.Option{NameMode: "source-hierarchy", NameSource: 1, NamePrefix: "p:"},
		option.Option{},
	)

	w, err := r.Writer("com.acme.Service", true, "worker", true, c[0])
	require.NoError(t, err)
	assert.Equal(t, "p:Service (worker)", w.Signal().Name)

	d := mem.Last()
	require.Len(t, d.Scopes, 2)
	assert.Equal(t, "com", d.Scopes[0].Name)
	assert.Equal(t, int64(0), d.Scopes[0].ParentID)
	assert.Equal(t, "acme", d.Scopes[1].Name)
	assert.Equal(t, d.Scopes[0].ID, d.Scopes[1].ParentID)
	assert.Equal(t, d.Scopes[1].ID, w.Signal().ScopeID)

	again, err := r.Writer("com.acme.Other", true, "", false, c[0])
	require.NoError(t, err)
	assert.Equal(t, d.Scopes[1].ID, again.Signal().ScopeID)
	assert.Len(t, mem.Last().Scopes, 2, "scopes are memoized")

	def, err := r.Writer("", false, "", false, c[1])
	require.NoError(t, err)
	assert.Equal(t, "Log", def.Signal().Name)
	assert.Equal(t, model.KindLog, def.Signal().Kind)
}

func TestEmitKeepsCurrentNonDecreasing(t *testing.T) {
	r, mem, c := newRouter(t, false, option.Option{
		Domain:  option.Domain{Mode: "float", Source: 1},
		Members: []option.Member{{Source: 2, Name: "Message"}},
	})

	for _, pos := range []int64{10, 30, 20} {
		_, err := r.Emit(&Entry{Position: pos, HasPosition: true, Resolver: c[0].Domain, Values: []any{"m"}})
		require.NoError(t, err)
	}
	w, _ := r.Writer("", false, "", false, nil)
	assert.Equal(t, int64(30), w.Current())
	assert.Equal(t, int64(30), r.Run().Current())
	require.NoError(t, r.Run().Close())

	d := mem.Last()
	require.Len(t, d.Samples, 3)
	assert.Equal(t, int64(20), d.Samples[2].Position, "out-of-order samples keep their position")
	assert.Equal(t, int64(10), *d.Start)
	assert.Equal(t, int64(31), *d.End)
}

func TestEmitDeferredIncrements(t *testing.T) {
	r, mem, c := newRouter(t, false, option.Option{Domain: option.Domain{Mode: "record-inc"}})

	for i := 0; i < 3; i++ {
		_, err := r.Emit(&Entry{Resolver: c[0].Domain})
		require.NoError(t, err)
	}
	var got []int64
	for _, s := range mem.Last().Samples {
		got = append(got, s.Position)
	}
	assert.Equal(t, []int64{0, 1, 2}, got)
}

func TestEmitWithoutDomainFails(t *testing.T) {
	r, _, c := newRouter(t, false, option.Option{Domain: option.Domain{Mode: "float", Source: 1}})

	_, err := r.Emit(&Entry{Resolver: c[0].Domain})
	require.ErrorIs(t, err, ErrNoDomain)
	assert.Equal(t, "no domain information (e.g. time-stamp)", err.Error())
}

func TestEmitRelativeAndSecondary(t *testing.T) {
	r, mem, _ := newRouter(t, true)

	_, err := r.Emit(&Entry{Position: 1000, HasPosition: true, Position2: 5, HasPosition2: true})
	require.NoError(t, err)
	_, err = r.Emit(&Entry{Position: 1500, HasPosition: true})
	require.NoError(t, err)

	d := mem.Last()
	assert.Equal(t, int64(0), d.Samples[0].Position)
	assert.Equal(t, int64(495), d.Samples[1].Position)
}

func TestEmitConvertsValuesAndLinksLines(t *testing.T) {
	opts := []option.Option{{
		AddRecPos: true,
		Members: []option.Member{
			{Source: 1, Name: "Line"},
			{Source: 2, Name: "Load", Type: "float"},
			{Source: 3, Name: "Message"},
		},
	}}
	mem := sink.NewMemory()
	run, err := NewRun(mem, model.Record{ID: "rec"})
	require.NoError(t, err)
	require.NoError(t, run.EnableLines())
	layout := option.BuildLayout(opts, false)
	r := NewRouter(run, layout)

	require.NoError(t, run.WriteLine(4, "raw"))
	_, err = r.Emit(&Entry{
		Position: 7, HasPosition: true, Tag: model.TagWarning,
		Values: []any{"1.024", "hi", "0,5", nil},
		LineNo: 4, Lines: []int{4, 5}, RecPos: true,
	})
	require.NoError(t, err)

	d := mem.Last()
	s := d.Samples[0]
	assert.Equal(t, []any{int64(1024), "hi", 0.5, int64(4)}, s.Values)
	assert.Equal(t, model.TagWarning, s.Tag)
	require.Len(t, d.Links, 2)
	assert.Equal(t, int64(7), d.Links[1].Position)
	assert.Equal(t, 5, d.Links[1].Line)
	require.Len(t, d.Lines, 1)
	lines, ok := d.SignalNamed(LinesSignalName)
	require.True(t, ok)
	assert.Equal(t, model.KindLines, lines.Kind)
}

func TestConvert(t *testing.T) {
	assert.Equal(t, int64(12), Convert(model.MemberInteger, " 12 "))
	assert.Nil(t, Convert(model.MemberInteger, "x"))
	assert.Equal(t, 1.5, Convert(model.MemberFloat, "1,5"))
	assert.Nil(t, Convert(model.MemberFloat, "nan?"))
	assert.Equal(t, "a", Convert(model.MemberEnum, "a"))
	assert.Nil(t, Convert(model.MemberText, nil))
}

func TestWriterNilSafe(t *testing.T) {
	var w *Writer
	assert.False(t, w.IsOpen())
	assert.Equal(t, int64(0), w.Current())
}
