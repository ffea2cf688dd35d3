package duckdb

import "github.com/tinytelemetry/sigex/internal/model"

var (
	_ model.RecordSink   = (*Sink)(nil)
	_ model.SampleWriter = (*Store)(nil)
	_ model.ReadAPI      = (*Store)(nil)
)
