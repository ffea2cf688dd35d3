package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/tinytelemetry/sigex/internal/timestamp"
)

// Mode selects how a position is derived for a record.
type Mode int

const (
	ModeUndefined Mode = iota
	ModeFloat
	ModeInteger
	ModeDate
	ModeRecordInc
	ModeSignalInc
	ModeReception
)

var modeNames = map[Mode]string{
	ModeUndefined: "undefined",
	ModeFloat:     "float",
	ModeInteger:   "integer",
	ModeDate:      "date",
	ModeRecordInc: "record-inc",
	ModeSignalInc: "signal-inc",
	ModeReception: "reception",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return "undefined"
}

// ParseMode maps a configuration keyword to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "undefined", "none":
		return ModeUndefined, nil
	case "float":
		return ModeFloat, nil
	case "integer", "int":
		return ModeInteger, nil
	case "date":
		return ModeDate, nil
	case "record-inc", "record":
		return ModeRecordInc, nil
	case "signal-inc", "signal":
		return ModeSignalInc, nil
	case "reception", "reception-time":
		return ModeReception, nil
	}
	return ModeUndefined, fmt.Errorf("%w: unknown domain mode %q", ErrConfig, s)
}

// Deferred reports whether positions in mode are assigned at write time
// rather than resolved from text.
func (m Mode) Deferred() bool { return m == ModeRecordInc || m == ModeSignalInc }

// Counter exposes the position state of a run or a single writer.
type Counter interface {
	IsOpen() bool
	Current() int64
}

// Resolver turns text into positions on one base. It is immutable after
// construction.
type Resolver struct {
	base    Base
	mode    Mode
	unit    Base
	scanner *timestamp.Scanner
	now     func() time.Time
}

// NewResolver builds the primary resolver. unit is an optional explicit
// unit of the base's class; when empty, a trailing unit suffix is read
// from each value. dateFormat is used by ModeDate only.
func NewResolver(base Base, mode Mode, unit, dateFormat string) (*Resolver, error) {
	r := &Resolver{base: base, mode: mode, now: time.Now}
	switch mode {
	case ModeUndefined, ModeRecordInc, ModeSignalInc:
	case ModeFloat, ModeInteger:
		if err := r.setUnit(unit); err != nil {
			return nil, err
		}
	case ModeDate:
		s, err := timestamp.NewScanner(dateFormat)
		if err != nil {
			return nil, configError("invalid date format. Can not create scanner.")
		}
		if base.class != ClassTime && base.class != ClassDate {
			return nil, configError("invalid domain base for 'Date' mode. Use Time or Date.")
		}
		r.scanner = s
	case ModeReception:
		if base.class != ClassTime && base.class != ClassDate {
			return nil, configError("invalid domain base for 'Reception time' mode. Use Time or Date.")
		}
	default:
		return nil, configError(fmt.Sprintf("unsupported domain mode %d", mode))
	}
	return r, nil
}

// NewSecondary builds the additive second-component resolver, which
// supports ModeFloat and ModeInteger only.
func NewSecondary(base Base, mode Mode, unit string) (*Resolver, error) {
	switch mode {
	case ModeUndefined, ModeFloat, ModeInteger:
	default:
		return nil, configError(fmt.Sprintf("domain mode %s is not supported for the second domain value", mode))
	}
	return NewResolver(base, mode, unit, "")
}

func (r *Resolver) setUnit(unit string) error {
	unit = strings.TrimSpace(unit)
	if unit == "" {
		return nil
	}
	u, ok := ParseUnit(r.unitClass(), unit)
	if !ok {
		return configError("invalid domain unit:" + unit)
	}
	r.unit = u
	return nil
}

func (r *Resolver) unitClass() Class {
	if r.base.class == ClassDate {
		return ClassTime
	}
	return r.base.class
}

// WithClock returns a copy of r that reads reception time from now.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	out := *r
	out.now = now
	return &out
}

func (r *Resolver) Mode() Mode { return r.mode }
func (r *Resolver) Base() Base { return r.base }

// Resolve converts text into a position. ok is false when no position is
// produced: empty text, an undefined mode, or a deferred increment mode.
func (r *Resolver) Resolve(text string) (pos int64, ok bool, err error) {
	if r == nil {
		return 0, false, nil
	}
	switch r.mode {
	case ModeFloat:
		if text == "" {
			return 0, false, nil
		}
		return r.resolveFloat(text)
	case ModeInteger:
		if text == "" {
			return 0, false, nil
		}
		return r.resolveInteger(text)
	case ModeDate:
		if text == "" {
			return 0, false, nil
		}
		t, err := r.scanner.Parse(text)
		if err != nil {
			return 0, false, valueError("invalid date format", text)
		}
		return r.fromMillis(t.UnixMilli()), true, nil
	case ModeReception:
		return r.fromMillis(r.now().UnixMilli()), true, nil
	}
	return 0, false, nil
}

func (r *Resolver) fromMillis(ms int64) int64 {
	if r.base.class == ClassDate {
		return ms
	}
	return Milliseconds.ConvertTo(r.base, ms)
}

// splitUnit separates trailing letters from a numeric value.
func splitUnit(val string) (string, string) {
	runes := []rune(val)
	n := len(runes)
	for n > 0 && unicode.IsLetter(runes[n-1]) {
		n--
	}
	return string(runes[:n]), string(runes[n:])
}

func (r *Resolver) suffixUnit(suffix, text string) (Base, error) {
	u, ok := ParseUnit(r.unitClass(), suffix)
	if !ok {
		return Base{}, valueError("invalid domain unit:"+suffix, text)
	}
	return u, nil
}

func (r *Resolver) resolveFloat(text string) (int64, bool, error) {
	val := strings.TrimSpace(strings.ReplaceAll(strings.ReplaceAll(text, ",", "."), " ", ""))
	if !r.unit.IsZero() {
		d, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, false, valueError("invalid time format", text)
		}
		return int64(d * float64(r.unit.factor) / float64(r.base.factor)), true, nil
	}
	num, suffix := splitUnit(val)
	d, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false, valueError("invalid time format", text)
	}
	if suffix == "" {
		return int64(d), true, nil
	}
	u, err := r.suffixUnit(suffix, text)
	if err != nil {
		return 0, false, err
	}
	return int64(d * float64(u.factor) / float64(r.base.factor)), true, nil
}

var integerStrip = strings.NewReplacer(".", "", ",", "", ":", "", " ", "")

func (r *Resolver) resolveInteger(text string) (int64, bool, error) {
	val := strings.TrimSpace(integerStrip.Replace(text))
	if !r.unit.IsZero() {
		l, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0, false, valueError("invalid time format", text)
		}
		if r.base.class == ClassDate {
			return r.unit.ConvertTo(Milliseconds, l), true, nil
		}
		return r.unit.ConvertTo(r.base, l), true, nil
	}
	num, suffix := splitUnit(val)
	l, err := strconv.ParseInt(strings.TrimSpace(num), 10, 64)
	if err != nil {
		return 0, false, valueError("invalid time format", text)
	}
	if suffix == "" {
		return l, true, nil
	}
	u, err := r.suffixUnit(suffix, text)
	if err != nil {
		return 0, false, err
	}
	return u.ConvertTo(r.base, l), true, nil
}

// Deferred synthesizes the position of a deferred increment mode: the
// run counter for ModeRecordInc, the writer counter for ModeSignalInc.
// An unopened counter starts at zero; an open one continues at current+1.
func (r *Resolver) Deferred(run, writer Counter) (int64, bool) {
	if r == nil {
		return 0, false
	}
	var c Counter
	switch r.mode {
	case ModeRecordInc:
		c = run
	case ModeSignalInc:
		c = writer
	default:
		return 0, false
	}
	if c == nil || !c.IsOpen() {
		return 0, true
	}
	return c.Current() + 1, true
}
