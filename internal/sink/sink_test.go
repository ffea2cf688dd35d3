package sink

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/sigex/internal/model"
)

func writeRecord(t *testing.T, s model.RecordSink) {
	t.Helper()
	require.NoError(t, s.OpenRecord(model.Record{ID: "r1", Name: "app.log", Profile: "csv", Base: "us"}))
	require.NoError(t, s.AddScope(model.Scope{RecordID: "r1", ID: 1, Name: "com"}))
	require.NoError(t, s.AddSignal(model.Signal{
		RecordID: "r1", ID: 1, ScopeID: 1, Name: "Log", Kind: model.KindLog, Tagged: true,
		Members: []model.Member{{Name: "Message", Type: model.MemberText}, {Name: "Line", Type: model.MemberInteger}},
	}))
	require.NoError(t, s.Open("r1", 100))
	require.NoError(t, s.WriteLine(model.RawLine{RecordID: "r1", SignalID: 2, Line: 1, Text: "100;hello"}))
	require.NoError(t, s.WriteSample(model.Sample{RecordID: "r1", SignalID: 1, Position: 100, Tag: model.TagError, Values: []any{"hello", int64(7)}}))
	require.NoError(t, s.LinkLines([]model.LineLink{{RecordID: "r1", Line: 1, SignalID: 1, Position: 100}}))
	require.NoError(t, s.CloseRecord("r1", 101))
}

func TestMemoryCollectsRecord(t *testing.T) {
	m := NewMemory()
	writeRecord(t, m)

	d, ok := m.Record("r1")
	require.True(t, ok)
	assert.Equal(t, int64(100), *d.Start)
	assert.Equal(t, int64(101), *d.End)
	require.Len(t, d.Samples, 1)
	assert.Equal(t, []any{"hello", int64(7)}, d.SamplesOf(1)[0].Values)
	sig, ok := d.SignalNamed("Log")
	require.True(t, ok)
	assert.Equal(t, int64(1), sig.ScopeID)
	assert.Same(t, d, m.Last())
}

func TestMemoryRejectsUnknownRecord(t *testing.T) {
	m := NewMemory()
	err := m.WriteSample(model.Sample{RecordID: "missing"})
	require.Error(t, err)
	require.NoError(t, m.OpenRecord(model.Record{ID: "a"}))
	require.Error(t, m.OpenRecord(model.Record{ID: "a"}))
}

func TestMsgpackReplayRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewMsgpack(&buf)
	writeRecord(t, enc)

	m := NewMemory()
	require.NoError(t, Replay(&buf, m))

	d, ok := m.Record("r1")
	require.True(t, ok)
	assert.Equal(t, "app.log", d.Record.Name)
	require.Len(t, d.Signals, 1)
	assert.Equal(t, model.KindLog, d.Signals[0].Kind)
	require.Len(t, d.Samples, 1)
	assert.Equal(t, model.TagError, d.Samples[0].Tag)
	assert.Equal(t, "hello", d.Samples[0].Values[0])
	assert.EqualValues(t, 7, d.Samples[0].Values[1])
	require.Len(t, d.Links, 1)
	require.Len(t, d.Lines, 1)
	assert.Equal(t, int64(101), *d.End)
}

type failing struct{ Discard }

func (failing) WriteSample(model.Sample) error { return errors.New("disk full") }

func TestMultiCombinesErrors(t *testing.T) {
	m := NewMemory()
	multi := Multi{failing{}, m, failing{}}
	require.NoError(t, multi.OpenRecord(model.Record{ID: "r"}))

	err := multi.WriteSample(model.Sample{RecordID: "r", SignalID: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")

	d, _ := m.Record("r")
	assert.Len(t, d.Samples, 1, "healthy sinks still receive the write")
}
