package model

// RecordSink receives the typed output of ingestion runs. Calls for one
// record arrive from a single goroutine in run order, OpenRecord first and
// CloseRecord last; a sink shared by concurrent runs must be goroutine-safe.
type RecordSink interface {
	OpenRecord(rec Record) error
	AddScope(scope Scope) error
	AddSignal(sig Signal) error
	// Open is called once, when the first sample establishes the start
	// of the record's domain.
	Open(recordID string, start int64) error
	WriteSample(s Sample) error
	WriteLine(l RawLine) error
	LinkLines(links []LineLink) error
	CloseRecord(recordID string, end int64) error
}

// SampleWriter provides append-oriented writes for samples.
type SampleWriter interface {
	InsertSampleBatch(samples []*Sample) error
}

// QueryOpts holds optional filters applied to sample queries.
type QueryOpts struct {
	RecordID string // empty = all records
	From     *int64
	To       *int64
	MaxTag   Tag // 0 = no severity filter
	Limit    int
}

// RunSummary is the read-side view of one stored record.
type RunSummary struct {
	Record
	Start       *int64 `json:"start,omitempty"`
	End         *int64 `json:"end,omitempty"`
	SignalCount int64  `json:"signal_count"`
	SampleCount int64  `json:"sample_count"`
}

// SignalInfo is a signal plus its fully qualified scope path.
type SignalInfo struct {
	Signal
	Path        string `json:"path"`
	SampleCount int64  `json:"sample_count"`
}

// SampleQuerier provides read-only queries on stored runs.
type SampleQuerier interface {
	ListRuns(limit int) ([]RunSummary, error)
	ListSignals(recordID string) ([]SignalInfo, error)
	Samples(signalID int64, opts QueryOpts) ([]Sample, error)
}

// SchemaQuerier provides schema introspection and arbitrary read-only queries.
type SchemaQuerier interface {
	ExecuteQuery(query string) ([]map[string]interface{}, error)
	TableRowCounts() (map[string]int64, error)
}

// ReadAPI is the unified read contract for the HTTP surface.
type ReadAPI interface {
	SampleQuerier
	SchemaQuerier
}
