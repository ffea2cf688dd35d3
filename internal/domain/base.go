// Package domain resolves raw text fragments into integer positions on an
// ordering axis such as time, frequency or a plain index.
package domain

import (
	"fmt"
	"math"
	"strings"
)

// Class is the family a Base belongs to. Units convert only within a class.
type Class int

const (
	ClassTime Class = iota + 1
	ClassFrequency
	ClassDate
	ClassIndex
)

func (c Class) String() string {
	switch c {
	case ClassTime:
		return "time"
	case ClassFrequency:
		return "frequency"
	case ClassDate:
		return "date"
	case ClassIndex:
		return "index"
	}
	return "unknown"
}

// Base is an immutable unit of measure. Factor is the size of one unit in
// the canonical base of its class: femtoseconds for time, millihertz for
// frequency, one for index. The date base carries the millisecond factor
// of the time class so that date positions are epoch milliseconds.
type Base struct {
	name   string
	class  Class
	factor int64
}

var (
	Femtoseconds  = Base{"fs", ClassTime, 1}
	Picoseconds   = Base{"ps", ClassTime, 1e3}
	Nanoseconds   = Base{"ns", ClassTime, 1e6}
	Microseconds  = Base{"us", ClassTime, 1e9}
	Milliseconds  = Base{"ms", ClassTime, 1e12}
	Seconds       = Base{"s", ClassTime, 1e15}
	Millihertz    = Base{"mHz", ClassFrequency, 1}
	Hertz         = Base{"Hz", ClassFrequency, 1e3}
	Kilohertz     = Base{"kHz", ClassFrequency, 1e6}
	Megahertz     = Base{"MHz", ClassFrequency, 1e9}
	Gigahertz     = Base{"GHz", ClassFrequency, 1e12}
	Terahertz     = Base{"THz", ClassFrequency, 1e15}
	Date          = Base{"date", ClassDate, 1e12}
	Index         = Base{"index", ClassIndex, 1}
	allBases      = []Base{Femtoseconds, Picoseconds, Nanoseconds, Microseconds, Milliseconds, Seconds, Millihertz, Hertz, Kilohertz, Megahertz, Gigahertz, Terahertz, Date, Index}
	unitsByClass  = map[Class][]Base{}
	defaultByName = map[string]Base{}
)

func init() {
	for _, b := range allBases {
		defaultByName[b.name] = b
		if b.class != ClassDate {
			unitsByClass[b.class] = append(unitsByClass[b.class], b)
		}
	}
	// Date text carries time-class unit suffixes.
	unitsByClass[ClassDate] = unitsByClass[ClassTime]
}

func (b Base) Name() string   { return b.name }
func (b Base) Class() Class   { return b.class }
func (b Base) IsZero() bool   { return b.factor == 0 }
func (b Base) String() string { return b.name }

// ParseBase resolves a base by name. "µs" is accepted for microseconds.
func ParseBase(name string) (Base, error) {
	name = strings.TrimSpace(name)
	if name == "µs" {
		name = "us"
	}
	if b, ok := defaultByName[name]; ok {
		return b, nil
	}
	return Base{}, fmt.Errorf("%w: unknown domain base %q", ErrConfig, name)
}

// ParseUnit resolves name as a unit of class. The lookup is exact first and
// case-insensitive second, so "S" is seconds only when no exact match exists.
func ParseUnit(class Class, name string) (Base, bool) {
	if name == "µs" {
		name = "us"
	}
	units := unitsByClass[class]
	for _, u := range units {
		if u.name == name {
			return u, true
		}
	}
	for _, u := range units {
		if strings.EqualFold(u.name, name) {
			return u, true
		}
	}
	return Base{}, false
}

// ToCommon converts v units of b to the canonical base of its class.
func (b Base) ToCommon(v int64) int64 { return v * b.factor }

// ConvertTo converts v units of b into units of other, truncating toward
// zero. Bases of different classes convert through their factors as well;
// callers keep classes compatible.
func (b Base) ConvertTo(other Base, v int64) int64 {
	if other.factor == 0 || b.factor == other.factor {
		return v
	}
	if b.factor > other.factor {
		ratio := b.factor / other.factor
		if v > math.MaxInt64/ratio || v < math.MinInt64/ratio {
			return int64(float64(v) * float64(ratio))
		}
		return v * ratio
	}
	return v / (other.factor / b.factor)
}

// Scale reports the ratio of one unit of b to one unit of other.
func (b Base) Scale(other Base) float64 {
	if other.factor == 0 {
		return 1
	}
	return float64(b.factor) / float64(other.factor)
}
