package model

import "time"

// Tag is a severity rank attached to a log sample. Zero means untagged;
// among nonzero ranks a smaller value is more severe.
type Tag int

const (
	TagNone Tag = iota
	TagFatal
	TagError
	TagWarning
	TagSuccess
	TagInfo
	TagDebug
	TagTrace
)

var tagNames = [...]string{"", "FATAL", "ERROR", "WARNING", "SUCCESS", "INFO", "DEBUG", "TRACE"}

func (t Tag) String() string {
	if t < 0 || int(t) >= len(tagNames) {
		return ""
	}
	return tagNames[t]
}

// MemberType is the value type of one struct member.
type MemberType int

const (
	MemberNone MemberType = iota
	MemberInteger
	MemberFloat
	MemberText
	MemberEnum
)

var memberTypeNames = [...]string{"none", "integer", "float", "text", "enum"}

func (m MemberType) String() string {
	if m < 0 || int(m) >= len(memberTypeNames) {
		return "none"
	}
	return memberTypeNames[m]
}

// ParseMemberType maps a configuration keyword to a MemberType.
// Unknown keywords yield MemberNone and false.
func ParseMemberType(s string) (MemberType, bool) {
	switch s {
	case "", "none":
		return MemberNone, true
	case "integer", "int":
		return MemberInteger, true
	case "float":
		return MemberFloat, true
	case "text", "string":
		return MemberText, true
	case "enum", "enumeration":
		return MemberEnum, true
	}
	return MemberNone, false
}

// SignalKind is the shape of an output signal.
type SignalKind int

const (
	KindLog SignalKind = iota
	KindStruct
	KindFloat
	KindInteger
	KindText
	KindEnum
	KindLines
)

var signalKindNames = [...]string{"log", "struct", "float", "integer", "text", "enum", "lines"}

func (k SignalKind) String() string {
	if k < 0 || int(k) >= len(signalKindNames) {
		return "unknown"
	}
	return signalKindNames[k]
}

// Member is one named, typed field of a struct or log signal.
type Member struct {
	Name string     `json:"name" msgpack:"name"`
	Type MemberType `json:"type" msgpack:"type"`
}

// Record is one ingestion run: the container every scope and signal
// produced from a single input belongs to.
type Record struct {
	ID        string    `json:"id" msgpack:"id"`
	Name      string    `json:"name" msgpack:"name"`
	Profile   string    `json:"profile" msgpack:"profile"`
	Source    string    `json:"source" msgpack:"source"`
	Base      string    `json:"base" msgpack:"base"`
	StartedAt time.Time `json:"started_at" msgpack:"started_at"`
}

// Scope is a hierarchical grouping container. ParentID 0 is the record root.
type Scope struct {
	RecordID string `json:"record_id" msgpack:"record_id"`
	ID       int64  `json:"id" msgpack:"id"`
	ParentID int64  `json:"parent_id" msgpack:"parent_id"`
	Name     string `json:"name" msgpack:"name"`
}

// Signal is one independently ordered output stream.
type Signal struct {
	RecordID string     `json:"record_id" msgpack:"record_id"`
	ID       int64      `json:"id" msgpack:"id"`
	ScopeID  int64      `json:"scope_id" msgpack:"scope_id"`
	Name     string     `json:"name" msgpack:"name"`
	Kind     SignalKind `json:"kind" msgpack:"kind"`
	Tagged   bool       `json:"tagged" msgpack:"tagged"`
	Members  []Member   `json:"members,omitempty" msgpack:"members,omitempty"`
}

// Sample is one write against a signal at a domain position. Values holds
// one entry per signal member (a single entry for scalar signals); nil
// entries are unset members.
type Sample struct {
	RecordID string `json:"record_id" msgpack:"record_id"`
	SignalID int64  `json:"signal_id" msgpack:"signal_id"`
	Position int64  `json:"position" msgpack:"position"`
	Tag      Tag    `json:"tag" msgpack:"tag"`
	Values   []any  `json:"values" msgpack:"values"`
}

// RawLine is one verbatim input unit written to the raw-line stream.
type RawLine struct {
	RecordID string `json:"record_id" msgpack:"record_id"`
	SignalID int64  `json:"signal_id" msgpack:"signal_id"`
	Line     int    `json:"line" msgpack:"line"`
	Text     string `json:"text" msgpack:"text"`
}

// LineLink cross-references a raw line with the sample it contributed to.
type LineLink struct {
	RecordID string `json:"record_id" msgpack:"record_id"`
	Line     int    `json:"line" msgpack:"line"`
	SignalID int64  `json:"signal_id" msgpack:"signal_id"`
	Position int64  `json:"position" msgpack:"position"`
}
