package writer

import (
	"fmt"

	"github.com/tinytelemetry/sigex/internal/model"
)

// Writer writes the samples of one signal. Its current position never
// decreases once opened; an out-of-order sample is still written at its
// own position.
type Writer struct {
	run    *Run
	signal model.Signal

	open    bool
	current int64
	count   int64

	started bool
	sample  model.Sample
}

// Signal returns the signal written by w.
func (w *Writer) Signal() model.Signal { return w.signal }

// IsOpen reports whether w has established its starting position.
func (w *Writer) IsOpen() bool { return w != nil && w.open }

// Current returns the largest position written through w.
func (w *Writer) Current() int64 {
	if w == nil {
		return 0
	}
	return w.current
}

// Count returns the number of samples written.
func (w *Writer) Count() int64 { return w.count }

// Open establishes w's starting position. Later calls are no-ops.
func (w *Writer) Open(pos int64) {
	if w.open {
		return
	}
	w.open = true
	w.current = pos
}

// Start begins a sample at pos.
func (w *Writer) Start(pos int64) {
	size := len(w.signal.Members)
	if size == 0 {
		size = 1
	}
	w.sample = model.Sample{
		RecordID: w.run.rec.ID,
		SignalID: w.signal.ID,
		Position: pos,
		Values:   make([]any, size),
	}
	w.started = true
}

// Set stores the value of member slot i of the started sample.
func (w *Writer) Set(i int, v any) {
	if !w.started || i < 0 || i >= len(w.sample.Values) {
		return
	}
	w.sample.Values[i] = v
}

// Tag returns the tag of the started sample.
func (w *Writer) Tag() model.Tag { return w.sample.Tag }

// SetTag sets the tag of the started sample.
func (w *Writer) SetTag(t model.Tag) { w.sample.Tag = t }

// Finish writes the started sample.
func (w *Writer) Finish() error {
	if !w.started {
		return fmt.Errorf("signal %q: finish without start", w.signal.Name)
	}
	w.started = false
	if !w.open {
		w.Open(w.sample.Position)
	}
	if err := w.run.sink.WriteSample(w.sample); err != nil {
		return fmt.Errorf("write sample to %q: %w", w.signal.Name, err)
	}
	if w.sample.Position > w.current {
		w.current = w.sample.Position
	}
	w.count++
	w.run.samples++
	return nil
}

// Write writes a complete sample in one call.
func (w *Writer) Write(pos int64, t model.Tag, values ...any) error {
	w.Start(pos)
	for i, v := range values {
		w.Set(i, v)
	}
	w.SetTag(t)
	return w.Finish()
}
