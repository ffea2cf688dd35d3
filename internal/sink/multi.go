package sink

import (
	"go.uber.org/multierr"

	"github.com/tinytelemetry/sigex/internal/model"
)

// Multi fans every call out to several sinks. All sinks see every call;
// their errors are combined.
type Multi []model.RecordSink

func (m Multi) each(fn func(model.RecordSink) error) error {
	var err error
	for _, s := range m {
		err = multierr.Append(err, fn(s))
	}
	return err
}

func (m Multi) OpenRecord(r model.Record) error {
	return m.each(func(s model.RecordSink) error { return s.OpenRecord(r) })
}

func (m Multi) AddScope(sc model.Scope) error {
	return m.each(func(s model.RecordSink) error { return s.AddScope(sc) })
}

func (m Multi) AddSignal(sig model.Signal) error {
	return m.each(func(s model.RecordSink) error { return s.AddSignal(sig) })
}

func (m Multi) Open(recordID string, start int64) error {
	return m.each(func(s model.RecordSink) error { return s.Open(recordID, start) })
}

func (m Multi) WriteSample(smp model.Sample) error {
	return m.each(func(s model.RecordSink) error { return s.WriteSample(smp) })
}

func (m Multi) WriteLine(l model.RawLine) error {
	return m.each(func(s model.RecordSink) error { return s.WriteLine(l) })
}

func (m Multi) LinkLines(links []model.LineLink) error {
	return m.each(func(s model.RecordSink) error { return s.LinkLines(links) })
}

func (m Multi) CloseRecord(recordID string, end int64) error {
	return m.each(func(s model.RecordSink) error { return s.CloseRecord(recordID, end) })
}

// Discard drops every write.
type Discard struct{}

func (Discard) OpenRecord(model.Record) error    { return nil }
func (Discard) AddScope(model.Scope) error       { return nil }
func (Discard) AddSignal(model.Signal) error     { return nil }
func (Discard) Open(string, int64) error         { return nil }
func (Discard) WriteSample(model.Sample) error   { return nil }
func (Discard) WriteLine(model.RawLine) error    { return nil }
func (Discard) LinkLines([]model.LineLink) error { return nil }
func (Discard) CloseRecord(string, int64) error  { return nil }
