// Package sink provides model.RecordSink implementations that do not need
// a database: an in-memory collector, a fan-out and a msgpack stream.
package sink

import (
	"fmt"
	"sync"

	"github.com/tinytelemetry/sigex/internal/model"
)

// RecordData is everything written for one record.
type RecordData struct {
	Record  model.Record
	Start   *int64
	End     *int64
	Scopes  []model.Scope
	Signals []model.Signal
	Samples []model.Sample
	Lines   []model.RawLine
	Links   []model.LineLink
}

// SamplesOf returns the samples of signal id in write order.
func (d *RecordData) SamplesOf(id int64) []model.Sample {
	var out []model.Sample
	for _, s := range d.Samples {
		if s.SignalID == id {
			out = append(out, s)
		}
	}
	return out
}

// SignalNamed returns the first signal called name.
func (d *RecordData) SignalNamed(name string) (model.Signal, bool) {
	for _, s := range d.Signals {
		if s.Name == name {
			return s, true
		}
	}
	return model.Signal{}, false
}

// Memory keeps every write in memory. It is safe for concurrent runs.
type Memory struct {
	mu      sync.Mutex
	order   []string
	records map[string]*RecordData
}

// NewMemory returns an empty collector.
func NewMemory() *Memory {
	return &Memory{records: map[string]*RecordData{}}
}

// Records returns the collected records in open order.
func (m *Memory) Records() []*RecordData {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*RecordData, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.records[id])
	}
	return out
}

// Record returns the record with id.
func (m *Memory) Record(id string) (*RecordData, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.records[id]
	return d, ok
}

// Last returns the most recently opened record.
func (m *Memory) Last() *RecordData {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.order) == 0 {
		return nil
	}
	return m.records[m.order[len(m.order)-1]]
}

func (m *Memory) with(recordID string, fn func(*RecordData)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.records[recordID]
	if !ok {
		return fmt.Errorf("record %q not open", recordID)
	}
	fn(d)
	return nil
}

func (m *Memory) OpenRecord(r model.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[r.ID]; ok {
		return fmt.Errorf("record %q already open", r.ID)
	}
	m.records[r.ID] = &RecordData{Record: r}
	m.order = append(m.order, r.ID)
	return nil
}

func (m *Memory) AddScope(s model.Scope) error {
	return m.with(s.RecordID, func(d *RecordData) { d.Scopes = append(d.Scopes, s) })
}

func (m *Memory) AddSignal(s model.Signal) error {
	return m.with(s.RecordID, func(d *RecordData) { d.Signals = append(d.Signals, s) })
}

func (m *Memory) Open(recordID string, start int64) error {
	return m.with(recordID, func(d *RecordData) { d.Start = &start })
}

func (m *Memory) WriteSample(s model.Sample) error {
	return m.with(s.RecordID, func(d *RecordData) { d.Samples = append(d.Samples, s) })
}

func (m *Memory) WriteLine(l model.RawLine) error {
	return m.with(l.RecordID, func(d *RecordData) { d.Lines = append(d.Lines, l) })
}

func (m *Memory) LinkLines(links []model.LineLink) error {
	if len(links) == 0 {
		return nil
	}
	return m.with(links[0].RecordID, func(d *RecordData) { d.Links = append(d.Links, links...) })
}

func (m *Memory) CloseRecord(recordID string, end int64) error {
	return m.with(recordID, func(d *RecordData) { d.End = &end })
}
