package writer

import (
	"errors"
	"strconv"
	"strings"

	"github.com/tinytelemetry/sigex/internal/domain"
	"github.com/tinytelemetry/sigex/internal/model"
	"github.com/tinytelemetry/sigex/internal/option"
)

// ErrNoDomain is returned when an entry carries no position and no
// deferred domain can supply one.
var ErrNoDomain = errors.New("no domain information (e.g. time-stamp)")

const (
	defaultWriterKey  = "log"
	defaultSignalName = "Log"
)

// Entry is one assembled log message ready to be written.
type Entry struct {
	Position     int64
	HasPosition  bool
	Position2    int64
	HasPosition2 bool
	// Resolver is the primary domain of the option that last supplied a
	// position; deferred modes are resolved through it.
	Resolver *domain.Resolver

	Name1    string
	HasName1 bool
	Name2    string
	HasName2 bool
	// Naming is the option that last supplied the primary name.
	Naming *option.Compiled

	Tag    model.Tag
	Values []any
	LineNo int
	Lines  []int
	RecPos bool
}

// Router owns the log signals of a run, keyed by their names.
type Router struct {
	run     *Run
	layout  *option.Layout
	members []model.Member
	writers map[string]*Writer
}

// NewRouter returns a router writing log signals with layout's members.
func NewRouter(run *Run, layout *option.Layout) *Router {
	return &Router{
		run:     run,
		layout:  layout,
		members: layout.Members(),
		writers: map[string]*Writer{},
	}
}

// Run returns the run the router writes to.
func (r *Router) Run() *Run { return r.run }

// Len returns the number of log signals created.
func (r *Router) Len() int { return len(r.writers) }

// Writer returns the log signal for a name pair, creating it on first use.
// A hierarchical naming splits name1 into nested scopes.
func (r *Router) Writer(name1 string, has1 bool, name2 string, has2 bool, naming *option.Compiled) (*Writer, error) {
	key := defaultWriterKey
	if has1 {
		key = name1
	}
	if has2 {
		key += name2
	}
	if w, ok := r.writers[key]; ok {
		return w, nil
	}

	mode := option.NameUndefined
	if naming != nil {
		mode = naming.NameMode
	}

	var scope int64
	display := defaultSignalName
	if has1 && mode != option.NameUndefined {
		display = name1
		if mode.Hierarchical() && naming.Separator != nil && name1 != "" {
			parts, err := naming.Separator.Split(name1)
			if err != nil {
				return nil, err
			}
			if len(parts) > 0 {
				for _, p := range parts[:len(parts)-1] {
					if scope, err = r.run.Scope(scope, p); err != nil {
						return nil, err
					}
				}
				display = parts[len(parts)-1]
			}
		}
	}
	if has2 {
		display += " (" + name2 + ")"
	}
	if naming != nil {
		display = naming.Prefix + display
	}

	w, err := r.run.NewSignal(scope, display, model.KindLog, r.members, true)
	if err != nil {
		return nil, err
	}
	r.writers[key] = w
	return w, nil
}

// Emit writes e as one sample on its log signal and returns the writer.
func (r *Router) Emit(e *Entry) (*Writer, error) {
	w, err := r.Writer(e.Name1, e.HasName1, e.Name2, e.HasName2, e.Naming)
	if err != nil {
		return nil, err
	}

	pos, ok := e.Position, e.HasPosition
	if !ok && e.Resolver != nil && e.Resolver.Mode().Deferred() {
		pos, ok = e.Resolver.Deferred(r.run, w)
	}
	if !ok {
		return nil, ErrNoDomain
	}
	pos = r.run.Normalize(pos, e.Position2, e.HasPosition2)
	if err := r.run.Advance(pos); err != nil {
		return nil, err
	}
	w.Open(pos)

	w.Start(pos)
	for i, m := range r.members {
		if i < len(e.Values) {
			w.Set(i, Convert(m.Type, e.Values[i]))
		}
	}
	if e.RecPos {
		if slot := r.layout.RecPos(); slot >= 0 {
			w.Set(slot, int64(e.LineNo))
		}
	}
	w.SetTag(e.Tag)
	if err := w.Finish(); err != nil {
		return nil, err
	}
	if err := r.run.LinkLines(e.Lines, w, pos); err != nil {
		return nil, err
	}
	return w, nil
}

var (
	integerClean = strings.NewReplacer(".", "", " ", "", "\u00a0", "")
	floatClean   = strings.NewReplacer(",", ".", " ", "", "\u00a0", "")
)

// Convert turns captured text into a member value of typ. Text that does
// not parse as a number yields nil.
func Convert(typ model.MemberType, v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch typ {
	case model.MemberInteger:
		n, err := strconv.ParseInt(integerClean.Replace(strings.TrimSpace(s)), 10, 64)
		if err != nil {
			return nil
		}
		return n
	case model.MemberFloat:
		f, err := strconv.ParseFloat(floatClean.Replace(strings.TrimSpace(s)), 64)
		if err != nil {
			return nil
		}
		return f
	default:
		return s
	}
}
