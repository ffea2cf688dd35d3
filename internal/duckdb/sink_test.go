package duckdb

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/tinytelemetry/sigex/internal/engine"
	"github.com/tinytelemetry/sigex/internal/model"
)

func TestSinkStoresEngineRun(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store, InsertBufferConfig{FlushInterval: time.Hour})
	defer buf.Stop()

	eng, err := engine.New(engine.Config{Sink: NewSink(store, buf)})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}

	input := "0 [main] INFO com.acme.App  - started\n" +
		"15 [main] ERROR com.acme.Db  - lost\n" +
		"  at Db.connect\n"
	res, err := eng.RunReader(context.Background(), "log4j", "upload", "app.log", strings.NewReader(input))
	if err != nil {
		t.Fatalf("RunReader: %v", err)
	}

	runs, err := store.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != res.Record.ID {
		t.Fatalf("runs = %+v", runs)
	}
	if runs[0].SampleCount != 2 {
		t.Errorf("sample count = %d, want 2 (samples must be visible once the record closes)", runs[0].SampleCount)
	}
	if runs[0].End == nil || *runs[0].End != 15 {
		t.Errorf("end = %v, want 15", runs[0].End)
	}

	signals, err := store.ListSignals(res.Record.ID)
	if err != nil {
		t.Fatalf("ListSignals: %v", err)
	}
	var db *model.SignalInfo
	for i := range signals {
		if signals[i].Name == "com.acme.Db" {
			db = &signals[i]
		}
	}
	if db == nil {
		t.Fatalf("signal com.acme.Db missing from %+v", signals)
	}

	errs, err := store.Samples(db.ID, model.QueryOpts{RecordID: res.Record.ID, MaxTag: model.TagError})
	if err != nil {
		t.Fatalf("Samples: %v", err)
	}
	if len(errs) != 1 || errs[0].Position != 15 {
		t.Errorf("error samples = %+v", errs)
	}
}

func TestSinkBatchesLinesUntilClose(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store, InsertBufferConfig{FlushInterval: time.Hour})
	defer buf.Stop()
	sink := NewSink(store, buf)

	rec := model.Record{ID: "r1", Name: "x", Profile: "p", Source: "x", Base: "ms", StartedAt: time.Now()}
	if err := sink.OpenRecord(rec); err != nil {
		t.Fatalf("OpenRecord: %v", err)
	}
	if err := sink.WriteLine(model.RawLine{RecordID: "r1", SignalID: 1, Line: 1, Text: "a"}); err != nil {
		t.Fatalf("WriteLine: %v", err)
	}
	if err := sink.LinkLines([]model.LineLink{{RecordID: "r1", Line: 1, SignalID: 1, Position: 0}}); err != nil {
		t.Fatalf("LinkLines: %v", err)
	}
	if err := sink.LinkLines(nil); err != nil {
		t.Fatalf("LinkLines(nil): %v", err)
	}

	counts, err := store.TableRowCounts()
	if err != nil {
		t.Fatalf("TableRowCounts: %v", err)
	}
	if counts["raw_lines"] != 0 || counts["line_links"] != 0 {
		t.Errorf("lines written before close: %v", counts)
	}

	if err := sink.CloseRecord("r1", 0); err != nil {
		t.Fatalf("CloseRecord: %v", err)
	}
	counts, err = store.TableRowCounts()
	if err != nil {
		t.Fatalf("TableRowCounts: %v", err)
	}
	if counts["raw_lines"] != 1 || counts["line_links"] != 1 {
		t.Errorf("after close counts = %v", counts)
	}
}

func TestSinkFlush(t *testing.T) {
	store := newTestStore(t)
	buf := NewInsertBuffer(store, InsertBufferConfig{FlushInterval: time.Hour})
	defer buf.Stop()
	sink := NewSink(store, buf)

	if err := sink.WriteSample(model.Sample{RecordID: "r1", SignalID: 1, Position: 3, Values: []any{1.0}}); err != nil {
		t.Fatalf("WriteSample: %v", err)
	}
	if err := sink.WriteLine(model.RawLine{RecordID: "r1", SignalID: 1, Line: 4, Text: "b"}); err != nil {
		t.Fatalf("WriteLine: %v", err)
	}
	if err := sink.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	counts, err := store.TableRowCounts()
	if err != nil {
		t.Fatalf("TableRowCounts: %v", err)
	}
	if counts["samples"] != 1 || counts["raw_lines"] != 1 {
		t.Errorf("after flush counts = %v", counts)
	}
}
