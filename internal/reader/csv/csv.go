// Package csv reads delimited text: one record row per line, written as
// one signal per column, one struct signal, or log signals.
package csv

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/tinytelemetry/sigex/internal/domain"
	"github.com/tinytelemetry/sigex/internal/model"
	"github.com/tinytelemetry/sigex/internal/option"
	"github.com/tinytelemetry/sigex/internal/reader"
	"github.com/tinytelemetry/sigex/internal/tag"
	"github.com/tinytelemetry/sigex/internal/tokenizer"
	"github.com/tinytelemetry/sigex/internal/writer"
)

// MaxColumns is the largest supported number of columns.
const MaxColumns = 25

// Mode selects how columns become signals.
type Mode int

const (
	// ModeSeparate writes one scalar signal per typed column.
	ModeSeparate Mode = iota
	// ModeStruct writes one struct signal with a member per typed column.
	ModeStruct
	// ModeLog writes log signals named, tagged and grouped per row.
	ModeLog
)

func (m Mode) String() string {
	switch m {
	case ModeSeparate:
		return "separate"
	case ModeStruct:
		return "struct"
	case ModeLog:
		return "log"
	}
	return "unknown"
}

// ParseMode maps a keyword to a Mode. Empty means ModeSeparate.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "separate":
		return ModeSeparate, nil
	case "struct":
		return ModeStruct, nil
	case "log":
		return ModeLog, nil
	}
	return ModeSeparate, fmt.Errorf("unknown csv mode %q", s)
}

var (
	errNoColumns  = errors.New("no columns configured")
	errNoHeader   = errors.New("no header found")
	errLabelCount = errors.New("invalid no of labels in header")
	errValueCount = fmt.Errorf("%w: invalid no of values", reader.ErrMalformedRow)
)

// Column configures one source column.
type Column struct {
	// Name overrides the header label. Log mode members need a name.
	Name string `yaml:"name,omitempty" mapstructure:"name" json:"name,omitempty"`
	// Type is none, integer, float, text or enum. None skips the column.
	Type string `yaml:"type,omitempty" mapstructure:"type" json:"type,omitempty"`
}

// Config configures a CSV reader.
type Config struct {
	reader.Settings
	Mode string
	// FirstRow is the 1-based line of the header or first data row.
	FirstRow   int
	NumColumns int
	HasLabels  bool
	Delimiters tokenizer.Delimiters
	Quote      string
	Columns    []Column
	// Option holds the domain, naming and tag settings. Its members are
	// derived from Columns.
	Option option.Option
}

// DefaultConfig returns the defaults: microsecond base, semicolon
// separator, labels on, five columns with a float domain in column 1
// and float values in columns 2 to 5.
func DefaultConfig() Config {
	return Config{
		Settings:   reader.Settings{Format: "csv", Base: domain.Microseconds},
		Mode:       ModeSeparate.String(),
		FirstRow:   1,
		NumColumns: 5,
		HasLabels:  true,
		Delimiters: tokenizer.Delimiters{Semicolon: true},
		Columns: []Column{
			{Type: "none"},
			{Type: "float"},
			{Type: "float"},
			{Type: "float"},
			{Type: "float"},
		},
		Option: option.Option{
			Domain:        option.Domain{Mode: "float", Source: 1, DateFormat: option.DefaultDateFormat},
			NameSource:    1,
			NameSeparator: option.DefaultNameSeparator,
			Tags: tag.Patterns{
				Error:   "error|ERROR|Error",
				Warning: "warning|WARNING|Warning",
			},
		},
	}
}

// Reader is the CSV driver.
type Reader struct {
	conf     Config
	mode     Mode
	splitter *tokenizer.Splitter
	types    []model.MemberType

	layout   *option.Layout
	compiled *option.Compiled
}

var _ reader.Reader = (*Reader)(nil)

// New validates conf. Every configuration error is reported here.
func New(conf Config) (*Reader, error) {
	if conf.Format == "" {
		conf.Format = "csv"
	}
	if conf.NumColumns <= 0 {
		return nil, errNoColumns
	}
	if conf.NumColumns > MaxColumns {
		conf.NumColumns = MaxColumns
	}
	if conf.FirstRow < 1 {
		conf.FirstRow = 1
	}
	r := &Reader{conf: conf}

	var err error
	if r.mode, err = ParseMode(conf.Mode); err != nil {
		return nil, err
	}
	quote, ok := tokenizer.ParseQuote(conf.Quote)
	if !ok {
		return nil, fmt.Errorf("unknown quote %q", conf.Quote)
	}
	if r.splitter, err = tokenizer.New(conf.Delimiters, quote); err != nil {
		return nil, err
	}

	r.types = make([]model.MemberType, conf.NumColumns+1)
	for n := 1; n <= conf.NumColumns; n++ {
		if n-1 < len(conf.Columns) {
			t, ok := model.ParseMemberType(conf.Columns[n-1].Type)
			if !ok {
				return nil, fmt.Errorf("column %d: unknown type %q", n, conf.Columns[n-1].Type)
			}
			r.types[n] = t
		}
	}

	o := conf.Option
	o.Members = nil
	if r.mode == ModeLog {
		for n := 1; n <= conf.NumColumns; n++ {
			name := r.explicitName(n)
			if name == "" || r.types[n] == model.MemberNone {
				continue
			}
			o.Members = append(o.Members, option.Member{Source: n, Name: name, Type: r.types[n].String()})
		}
		o.Action = option.ActionTerminate.String()
	} else {
		// Naming and tags only apply to log signals.
		o.NameMode, o.Name2Mode, o.TagSource = "", "", 0
	}
	opts := []option.Option{o}
	layout, compiled, err := reader.Compile(option.KindColumns, opts, conf.Settings)
	if err != nil {
		return nil, err
	}
	r.layout, r.compiled = layout, compiled[0]
	return r, nil
}

func (r *Reader) explicitName(n int) string {
	if n-1 < len(r.conf.Columns) {
		return strings.TrimSpace(r.conf.Columns[n-1].Name)
	}
	return ""
}

// memberName resolves the display name of column n: explicit name, then
// header label, then s<n>.
func (r *Reader) memberName(n int, labels []string) string {
	if name := r.explicitName(n); name != "" {
		return name
	}
	if r.conf.HasLabels && labels != nil {
		if l := strings.TrimSpace(labels[n]); l != "" {
			return l
		}
	}
	return "s" + strconv.Itoa(n)
}

// Read parses in into one record on sink.
func (r *Reader) Read(ctx context.Context, rec model.Record, in io.Reader, sink model.RecordSink) (reader.Stats, error) {
	var layout *option.Layout
	if r.mode == ModeLog {
		layout = r.layout
	}
	sess, err := reader.Open(r.conf.Settings, rec, sink, layout, []*option.Compiled{r.compiled})
	if err != nil {
		return reader.Stats{}, err
	}

	st := &state{r: r, sess: sess, fields: make([]string, r.conf.NumColumns+1)}
	headerLine := 0
	if r.conf.HasLabels {
		headerLine = r.conf.FirstRow
	}
	err = reader.Lines(ctx, in, func(n int, line string) (bool, error) {
		switch {
		case n < r.conf.FirstRow:
			return false, nil
		case n == headerLine:
			return false, reader.Errorf(st.header(line), n, line)
		case strings.TrimSpace(line) == "":
			return false, nil
		}
		return false, reader.Errorf(st.row(n, line), n, line)
	})
	if err == nil && !st.ready {
		// Header-only or empty input still declares its signals.
		err = st.setup(nil)
	}
	if r.mode != ModeLog {
		sess.SetSignals(st.signals)
	}
	return sess.Close(err)
}

type state struct {
	r      *Reader
	sess   *reader.Session
	fields []string
	ready  bool

	labels  []string
	columns []*writer.Writer
	strct   *writer.Writer
	slots   []int
	signals int
}

func (s *state) header(line string) error {
	if strings.TrimSpace(line) == "" {
		return errNoHeader
	}
	labels := make([]string, s.r.conf.NumColumns+1)
	if s.r.splitter.Split(line, labels) < s.r.conf.NumColumns {
		return errLabelCount
	}
	return s.setup(labels)
}

// setup declares the signals of the separate and struct modes.
func (s *state) setup(labels []string) error {
	s.ready = true
	run := s.sess.Run
	switch s.r.mode {
	case ModeSeparate:
		s.columns = make([]*writer.Writer, s.r.conf.NumColumns+1)
		for n := 1; n <= s.r.conf.NumColumns; n++ {
			kind, ok := scalarKind(s.r.types[n])
			if !ok {
				continue
			}
			w, err := run.NewSignal(0, s.r.memberName(n, labels), kind, nil, false)
			if err != nil {
				return err
			}
			s.columns[n] = w
			s.signals++
		}
	case ModeStruct:
		name := strings.TrimSpace(s.r.conf.Option.Name)
		if name == "" {
			name = "s"
		}
		var members []model.Member
		s.slots = make([]int, s.r.conf.NumColumns+1)
		for n := 1; n <= s.r.conf.NumColumns; n++ {
			s.slots[n] = -1
			if s.r.types[n] == model.MemberNone {
				continue
			}
			s.slots[n] = len(members)
			members = append(members, model.Member{Name: s.r.memberName(n, labels), Type: s.r.types[n]})
		}
		w, err := run.NewSignal(0, name, model.KindStruct, members, false)
		if err != nil {
			return err
		}
		s.strct = w
		s.signals = 1
	}
	return nil
}

func scalarKind(t model.MemberType) (model.SignalKind, bool) {
	switch t {
	case model.MemberInteger:
		return model.KindInteger, true
	case model.MemberFloat:
		return model.KindFloat, true
	case model.MemberText:
		return model.KindText, true
	case model.MemberEnum:
		return model.KindEnum, true
	}
	return 0, false
}

func (s *state) row(n int, line string) error {
	if !s.ready {
		if err := s.setup(nil); err != nil {
			return err
		}
	}
	s.sess.Unit()
	if err := s.sess.WriteLine(n, line); err != nil {
		return err
	}
	if err := s.sess.Line(n); err != nil {
		return err
	}
	if s.r.splitter.Split(line, s.fields) < s.r.conf.NumColumns {
		return errValueCount
	}
	fields := option.Fields(s.fields)
	if s.r.mode == ModeLog {
		_, err := s.sess.Assembler.Apply(s.r.compiled, fields)
		return err
	}
	return s.write(n, fields)
}

// write emits one row in the separate and struct modes.
func (s *state) write(n int, fields option.Fields) error {
	c, run := s.r.compiled, s.sess.Run

	pos, ok, err := resolve(c.Domain, fields, c.DomainSource)
	if err != nil {
		return err
	}
	if c.Domain.Mode().Deferred() {
		pos, ok = c.Domain.Deferred(run, run)
	}
	if !ok {
		return writer.ErrNoDomain
	}
	pos2, has2, err := resolve(c.Domain2, fields, c.Domain2Source)
	if err != nil {
		return err
	}
	pos = run.Normalize(pos, pos2, has2)
	if err := run.Advance(pos); err != nil {
		return err
	}

	if s.strct != nil {
		s.strct.Start(pos)
		for col := 1; col <= s.r.conf.NumColumns; col++ {
			if slot := s.slots[col]; slot >= 0 {
				s.strct.Set(slot, columnValue(s.r.types[col], s.fields[col]))
			}
		}
		if err := s.strct.Finish(); err != nil {
			return err
		}
		return run.LinkLines([]int{n}, s.strct, pos)
	}
	for col := 1; col <= s.r.conf.NumColumns; col++ {
		w := s.columns[col]
		if w == nil {
			continue
		}
		if err := w.Write(pos, model.TagNone, columnValue(s.r.types[col], s.fields[col])); err != nil {
			return err
		}
		if err := run.LinkLines([]int{n}, w, pos); err != nil {
			return err
		}
	}
	return nil
}

func resolve(r *domain.Resolver, fields option.Fields, source int) (int64, bool, error) {
	text, _ := fields.Field(source)
	return r.Resolve(strings.TrimSpace(text))
}

// columnValue converts a scalar column, falling back to zero when a
// numeric column does not parse.
func columnValue(t model.MemberType, text string) any {
	text = strings.TrimSpace(text)
	v := writer.Convert(t, text)
	if v != nil {
		return v
	}
	switch t {
	case model.MemberInteger:
		return int64(0)
	case model.MemberFloat:
		return 0.0
	}
	return text
}
