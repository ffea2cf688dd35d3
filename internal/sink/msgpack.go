package sink

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/tinytelemetry/sigex/internal/model"
)

// Event kinds of the msgpack stream.
const (
	EventRecord = "record"
	EventScope  = "scope"
	EventSignal = "signal"
	EventOpen   = "open"
	EventSample = "sample"
	EventLine   = "line"
	EventLinks  = "links"
	EventClose  = "close"
)

// Bound is the payload of open and close events.
type Bound struct {
	RecordID string `msgpack:"record_id"`
	Position int64  `msgpack:"position"`
}

// Msgpack writes every call as a [kind, payload] array to w. It is safe
// for concurrent runs; events of different records may interleave.
type Msgpack struct {
	mu  sync.Mutex
	buf *bufio.Writer
	enc *msgpack.Encoder
}

// NewMsgpack returns a stream sink writing to w. Call Flush when done.
func NewMsgpack(w io.Writer) *Msgpack {
	buf := bufio.NewWriter(w)
	return &Msgpack{buf: buf, enc: msgpack.NewEncoder(buf)}
}

func (m *Msgpack) emit(kind string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enc.EncodeArrayLen(2); err != nil {
		return fmt.Errorf("encode %s event: %w", kind, err)
	}
	if err := m.enc.EncodeString(kind); err != nil {
		return fmt.Errorf("encode %s event: %w", kind, err)
	}
	if err := m.enc.Encode(payload); err != nil {
		return fmt.Errorf("encode %s event: %w", kind, err)
	}
	return nil
}

// Flush writes buffered events to the underlying writer.
func (m *Msgpack) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.buf.Flush()
}

func (m *Msgpack) OpenRecord(r model.Record) error  { return m.emit(EventRecord, r) }
func (m *Msgpack) AddScope(s model.Scope) error     { return m.emit(EventScope, s) }
func (m *Msgpack) AddSignal(s model.Signal) error   { return m.emit(EventSignal, s) }
func (m *Msgpack) WriteSample(s model.Sample) error { return m.emit(EventSample, s) }
func (m *Msgpack) WriteLine(l model.RawLine) error  { return m.emit(EventLine, l) }

func (m *Msgpack) Open(recordID string, start int64) error {
	return m.emit(EventOpen, Bound{RecordID: recordID, Position: start})
}

func (m *Msgpack) LinkLines(links []model.LineLink) error {
	return m.emit(EventLinks, links)
}

// CloseRecord writes the close event and flushes the stream.
func (m *Msgpack) CloseRecord(recordID string, end int64) error {
	if err := m.emit(EventClose, Bound{RecordID: recordID, Position: end}); err != nil {
		return err
	}
	return m.Flush()
}

// Replay decodes a msgpack stream from r and repeats its calls on dst.
func Replay(r io.Reader, dst model.RecordSink) error {
	dec := msgpack.NewDecoder(bufio.NewReader(r))
	for {
		n, err := dec.DecodeArrayLen()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if n != 2 {
			return fmt.Errorf("invalid event array length: %d (expected 2)", n)
		}
		kind, err := dec.DecodeString()
		if err != nil {
			return fmt.Errorf("decode event kind: %w", err)
		}
		if err := replayEvent(dec, kind, dst); err != nil {
			return err
		}
	}
}

func replayEvent(dec *msgpack.Decoder, kind string, dst model.RecordSink) error {
	decode := func(v any) error {
		if err := dec.Decode(v); err != nil {
			return fmt.Errorf("decode %s payload: %w", kind, err)
		}
		return nil
	}
	switch kind {
	case EventRecord:
		var v model.Record
		if err := decode(&v); err != nil {
			return err
		}
		return dst.OpenRecord(v)
	case EventScope:
		var v model.Scope
		if err := decode(&v); err != nil {
			return err
		}
		return dst.AddScope(v)
	case EventSignal:
		var v model.Signal
		if err := decode(&v); err != nil {
			return err
		}
		return dst.AddSignal(v)
	case EventOpen:
		var v Bound
		if err := decode(&v); err != nil {
			return err
		}
		return dst.Open(v.RecordID, v.Position)
	case EventSample:
		var v model.Sample
		if err := decode(&v); err != nil {
			return err
		}
		return dst.WriteSample(v)
	case EventLine:
		var v model.RawLine
		if err := decode(&v); err != nil {
			return err
		}
		return dst.WriteLine(v)
	case EventLinks:
		var v []model.LineLink
		if err := decode(&v); err != nil {
			return err
		}
		return dst.LinkLines(v)
	case EventClose:
		var v Bound
		if err := decode(&v); err != nil {
			return err
		}
		return dst.CloseRecord(v.RecordID, v.Position)
	default:
		return fmt.Errorf("unknown event kind %q", kind)
	}
}
