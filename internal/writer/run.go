// Package writer routes assembled log entries onto ordered output signals.
package writer

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/tinytelemetry/sigex/internal/model"
)

// LinesSignalName is the display name of the raw-line signal.
const LinesSignalName = "Lines"

type scopeKey struct {
	parent int64
	name   string
}

// Run is the run-wide output state of one ingestion: the record, its
// scopes and signals, the maximum position written so far, and the
// relative-domain baseline. A Run is used by a single goroutine.
type Run struct {
	sink   model.RecordSink
	rec    model.Record
	logger *zap.Logger

	opened    bool
	current   int64
	relative  bool
	hasOffset bool
	offset    int64

	scopes     map[scopeKey]int64
	nextScope  int64
	nextSignal int64

	lines   *Writer
	samples int64
	closed  bool
}

// RunConfig holds per-run options.
type RunConfig struct {
	// Relative subtracts the first resolved position from every position.
	Relative bool
	Logger   *zap.Logger
}

// NewRun opens rec on sink.
func NewRun(sink model.RecordSink, rec model.Record, conf ...RunConfig) (*Run, error) {
	r := &Run{
		sink:   sink,
		rec:    rec,
		logger: zap.NewNop(),
		scopes: map[scopeKey]int64{},
	}
	if len(conf) > 0 {
		r.relative = conf[0].Relative
		if conf[0].Logger != nil {
			r.logger = conf[0].Logger
		}
	}
	if err := sink.OpenRecord(rec); err != nil {
		return nil, fmt.Errorf("open record: %w", err)
	}
	return r, nil
}

// Record returns the record being written.
func (r *Run) Record() model.Record { return r.rec }

// IsOpen reports whether the first sample established the record start.
func (r *Run) IsOpen() bool { return r.opened }

// Current returns the maximum position written across all signals.
func (r *Run) Current() int64 { return r.current }

// Samples returns the number of samples written.
func (r *Run) Samples() int64 { return r.samples }

// Normalize adds the secondary component and applies the relative-domain
// baseline, which is captured from the first normalized position only.
func (r *Run) Normalize(pos, pos2 int64, has2 bool) int64 {
	if has2 {
		pos += pos2
	}
	if r.relative && !r.hasOffset {
		r.offset = pos
		r.hasOffset = true
	}
	if r.hasOffset {
		pos -= r.offset
	}
	return pos
}

// Advance opens the record at the first position and afterwards moves the
// run-wide current forward only.
func (r *Run) Advance(pos int64) error {
	if !r.opened {
		if err := r.sink.Open(r.rec.ID, pos); err != nil {
			return fmt.Errorf("open record domain: %w", err)
		}
		r.opened = true
		r.current = pos
		return nil
	}
	if pos > r.current {
		r.current = pos
	}
	return nil
}

// Scope returns the scope called name below parent, creating it once.
// Parent 0 is the record root.
func (r *Run) Scope(parent int64, name string) (int64, error) {
	key := scopeKey{parent: parent, name: name}
	if id, ok := r.scopes[key]; ok {
		return id, nil
	}
	r.nextScope++
	s := model.Scope{RecordID: r.rec.ID, ID: r.nextScope, ParentID: parent, Name: name}
	if err := r.sink.AddScope(s); err != nil {
		return 0, fmt.Errorf("add scope %q: %w", name, err)
	}
	r.scopes[key] = s.ID
	return s.ID, nil
}

// NewSignal adds a signal below scope and returns its writer.
func (r *Run) NewSignal(scope int64, name string, kind model.SignalKind, members []model.Member, tagged bool) (*Writer, error) {
	r.nextSignal++
	sig := model.Signal{
		RecordID: r.rec.ID,
		ID:       r.nextSignal,
		ScopeID:  scope,
		Name:     name,
		Kind:     kind,
		Tagged:   tagged,
		Members:  members,
	}
	if err := r.sink.AddSignal(sig); err != nil {
		return nil, fmt.Errorf("add signal %q: %w", name, err)
	}
	r.logger.Debug("signal added",
		zap.String("record", r.rec.ID),
		zap.Int64("signal", sig.ID),
		zap.String("name", name),
		zap.Stringer("kind", kind))
	return &Writer{run: r, signal: sig}, nil
}

// EnableLines adds the raw-line signal. WriteLine is a no-op until then.
func (r *Run) EnableLines() error {
	if r.lines != nil {
		return nil
	}
	w, err := r.NewSignal(0, LinesSignalName, model.KindLines, nil, false)
	if err != nil {
		return err
	}
	r.lines = w
	return nil
}

// LinesEnabled reports whether raw lines are recorded.
func (r *Run) LinesEnabled() bool { return r.lines != nil }

// WriteLine records one verbatim input unit at its line number.
func (r *Run) WriteLine(line int, text string) error {
	if r.lines == nil {
		return nil
	}
	r.lines.count++
	return r.sink.WriteLine(model.RawLine{
		RecordID: r.rec.ID,
		SignalID: r.lines.signal.ID,
		Line:     line,
		Text:     text,
	})
}

// LinkLines cross-references raw lines with the sample at pos on w.
func (r *Run) LinkLines(lines []int, w *Writer, pos int64) error {
	if r.lines == nil || len(lines) == 0 {
		return nil
	}
	links := make([]model.LineLink, 0, len(lines))
	for _, l := range lines {
		links = append(links, model.LineLink{
			RecordID: r.rec.ID,
			Line:     l,
			SignalID: w.signal.ID,
			Position: pos,
		})
	}
	return r.sink.LinkLines(links)
}

// Close closes the record one position past the run-wide current. It is
// safe to call more than once.
func (r *Run) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return r.sink.CloseRecord(r.rec.ID, r.current+1)
}
