package csv

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
	"github.com/tinytelemetry/sigex/internal/tokenizer"
	"github.com/tinytelemetry/sigex/internal/writer"
)

func threeColumns() Config {
	conf := DefaultConfig()
	conf.Base = domain.Milliseconds
	conf.NumColumns = 3
	conf.Columns = []Column{{Type: "none"}, {Type: "float"}, {Type: "integer"}}
	return conf
}

func read(t *testing.T, conf Config, input string) (*sink.RecordData, reader.Stats, error) {
	t.Helper()
	r, err := New(conf)
	require.NoError(t, err)
	mem := sink.NewMemory()
	stats, err := r.Read(context.Background(), model.Record{ID: "csv-1", Name: "data.csv"}, strings.NewReader(input), mem)
	return mem.Last(), stats, err
}

func TestSeparateModeEndToEnd(t *testing.T) {
	input := "time;voltage;count\n" +
		"0;1,5;10\n" +
		"\n" +
		"5;2.25;1.000\n" +
		"10;x;\n"

	d, stats, err := read(t, threeColumns(), input)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Units)
	assert.Equal(t, 2, stats.Signals)

	voltage, ok := d.SignalNamed("voltage")
	require.True(t, ok)
	assert.Equal(t, model.KindFloat, voltage.Kind)
	count, ok := d.SignalNamed("count")
	require.True(t, ok)
	assert.Equal(t, model.KindInteger, count.Kind)

	var positions []int64
	var volts []any
	for _, s := range d.SamplesOf(voltage.ID) {
		positions = append(positions, s.Position)
		volts = append(volts, s.Values[0])
	}
	assert.Equal(t, []int64{0, 5, 10}, positions)
	assert.Equal(t, []any{1.5, 2.25, 0.0}, volts)

	var counts []any
	for _, s := range d.SamplesOf(count.ID) {
		counts = append(counts, s.Values[0])
	}
	assert.Equal(t, []any{int64(10), int64(1000), int64(0)}, counts)

	assert.Equal(t, int64(0), *d.Start)
	assert.Equal(t, int64(11), *d.End)
}

func TestStructMode(t *testing.T) {
	conf := threeColumns()
	conf.Mode = "struct"
	conf.HasLabels = false
	conf.Columns[1].Name = "U"
	conf.Option.Name = "measure"

	d, _, err := read(t, conf, "1;3.5;7\n2;4;8\n")
	require.NoError(t, err)

	require.Len(t, d.Signals, 1)
	sig := d.Signals[0]
	assert.Equal(t, "measure", sig.Name)
	assert.Equal(t, model.KindStruct, sig.Kind)
	assert.Equal(t, []model.Member{{Name: "U", Type: model.MemberFloat}, {Name: "s3", Type: model.MemberInteger}}, sig.Members)

	require.Len(t, d.Samples, 2)
	assert.Equal(t, []any{4.0, int64(8)}, d.Samples[1].Values)
}

func TestLogMode(t *testing.T) {
	conf := DefaultConfig()
	conf.Base = domain.Milliseconds
	conf.Mode = "log"
	conf.HasLabels = false
	conf.NumColumns = 4
	conf.Columns = []Column{
		{Type: "none"},
		{Type: "enum", Name: "Logger"},
		{Type: "enum", Name: "Level"},
		{Type: "text", Name: "Message"},
	}
	conf.Option.Domain = option.Domain{Mode: "integer", Source: 1}
	conf.Option.NameMode = "source"
	conf.Option.NameSource = 2
	conf.Option.TagSource = 3

	input := "10;net;ERROR;down\n" +
		"20;disk;warning;slow\n" +
		"30;net;info;up\n"
	d, stats, err := read(t, conf, input)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Signals)

	net, ok := d.SignalNamed("net")
	require.True(t, ok)
	assert.Equal(t, model.KindLog, net.Kind)
	samples := d.SamplesOf(net.ID)
	require.Len(t, samples, 2)
	assert.Equal(t, model.TagError, samples[0].Tag)
	assert.Equal(t, model.TagNone, samples[1].Tag)
	assert.Equal(t, []any{"net", "ERROR", "down"}, samples[0].Values)

	disk, ok := d.SignalNamed("disk")
	require.True(t, ok)
	assert.Equal(t, model.TagWarning, d.SamplesOf(disk.ID)[0].Tag)
}

func TestStructuralErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		msg   string
		line  int
	}{
		{"missing header", "\n1;2;3\n", "no header found", 1},
		{"short header", "a;b\n", "invalid no of labels in header", 1},
		{"short row", "a;b;c\n1;2\n", "invalid no of values", 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _, err := read(t, threeColumns(), tt.input)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
			var pe *reader.ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.line, pe.Line)
			assert.NotNil(t, d.End)
		})
	}
}

func TestRowWithoutDomainFails(t *testing.T) {
	conf := threeColumns()
	conf.HasLabels = false
	_, _, err := read(t, conf, ";1;2\n")
	require.ErrorIs(t, err, writer.ErrNoDomain)
}

func TestFirstRowAndRecordInc(t *testing.T) {
	conf := threeColumns()
	conf.FirstRow = 3
	conf.Option.Domain = option.Domain{Mode: "record-inc"}

	d, _, err := read(t, conf, "# exported\n# by tool\nt;a;b\nx;1;2\ny;3;4\n")
	require.NoError(t, err)
	a, ok := d.SignalNamed("a")
	require.True(t, ok)
	var got []int64
	for _, s := range d.SamplesOf(a.ID) {
		got = append(got, s.Position)
	}
	assert.Equal(t, []int64{0, 1}, got)
}

func TestNewConfigErrors(t *testing.T) {
	conf := DefaultConfig()
	conf.NumColumns = 0
	_, err := New(conf)
	assert.EqualError(t, err, "no columns configured")

	conf = DefaultConfig()
	conf.Delimiters = tokenizer.Delimiters{}
	_, err = New(conf)
	assert.ErrorIs(t, err, tokenizer.ErrNoSeparator)

	conf = DefaultConfig()
	conf.Mode = "pivot"
	_, err = New(conf)
	assert.Error(t, err)

	conf = DefaultConfig()
	conf.Option.Domain.Unit = "parsec"
	_, err = New(conf)
	assert.ErrorIs(t, err, domain.ErrConfig)
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
	r, err := New(threeColumns())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mem := sink.NewMemory()
	input := "time;voltage;count\n0;1;10\n5;2;20\n10;3;30\n"
	stats, err := r.Read(ctx, model.Record{ID: "csv-c"}, strings.NewReader(input), cancelOnSample{mem, cancel})
	require.NoError(t, err)

	d := mem.Last()
	assert.Equal(t, int64(1), stats.Units, "the row in progress completes")
	assert.Len(t, d.Samples, 2)
	assert.NotNil(t, d.End)
}
