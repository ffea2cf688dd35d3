package duckdb

import (
	"sync"

	"go.uber.org/multierr"

	"github.com/tinytelemetry/sigex/internal/model"
)

// Sink writes runs into a Store. Record metadata is written immediately,
// samples go through the InsertBuffer and raw lines and line links are
// batched per record until the next flush. It is safe for concurrent runs.
type Sink struct {
	store *Store
	buf   *InsertBuffer

	mu    sync.Mutex
	lines map[string][]model.RawLine
	links map[string][]model.LineLink
}

// NewSink wraps store. Samples are written through buf.
func NewSink(store *Store, buf *InsertBuffer) *Sink {
	return &Sink{
		store: store,
		buf:   buf,
		lines: map[string][]model.RawLine{},
		links: map[string][]model.LineLink{},
	}
}

func (k *Sink) OpenRecord(rec model.Record) error { return k.store.InsertRun(rec) }
func (k *Sink) AddScope(sc model.Scope) error     { return k.store.InsertScope(sc) }
func (k *Sink) AddSignal(sig model.Signal) error  { return k.store.InsertSignal(sig) }

func (k *Sink) Open(recordID string, start int64) error {
	return k.store.SetRunStart(recordID, start)
}

func (k *Sink) WriteSample(s model.Sample) error {
	smp := s
	k.buf.Add(&smp)
	return nil
}

func (k *Sink) WriteLine(l model.RawLine) error {
	k.mu.Lock()
	k.lines[l.RecordID] = append(k.lines[l.RecordID], l)
	k.mu.Unlock()
	return nil
}

func (k *Sink) LinkLines(links []model.LineLink) error {
	if len(links) == 0 {
		return nil
	}
	k.mu.Lock()
	id := links[0].RecordID
	k.links[id] = append(k.links[id], links...)
	k.mu.Unlock()
	return nil
}

// Flush writes the batched lines and links of every record and waits for
// queued samples.
func (k *Sink) Flush() error {
	k.mu.Lock()
	lines, links := k.lines, k.links
	k.lines = map[string][]model.RawLine{}
	k.links = map[string][]model.LineLink{}
	k.mu.Unlock()

	k.buf.Sync()
	var err error
	for _, ls := range lines {
		err = multierr.Append(err, k.store.InsertLines(ls))
	}
	for _, ls := range links {
		err = multierr.Append(err, k.store.InsertLinks(ls))
	}
	return err
}

// CloseRecord flushes the record's pending data and stores its end.
func (k *Sink) CloseRecord(recordID string, end int64) error {
	k.mu.Lock()
	lines := k.lines[recordID]
	links := k.links[recordID]
	delete(k.lines, recordID)
	delete(k.links, recordID)
	k.mu.Unlock()

	k.buf.Sync()
	err := multierr.Combine(
		k.store.InsertLines(lines),
		k.store.InsertLinks(links),
	)
	return multierr.Append(err, k.store.SetRunEnd(recordID, end))
}
