// Package assemble accumulates structural units into log messages and
// flushes them according to each option's action.
package assemble

import (
	"strings"

	"github.com/tinytelemetry/sigex/internal/domain"
	"github.com/tinytelemetry/sigex/internal/option"
	"github.com/tinytelemetry/sigex/internal/tag"
	"github.com/tinytelemetry/sigex/internal/writer"
)

// Flusher writes a completed message.
type Flusher interface {
	Emit(e *writer.Entry) (*writer.Writer, error)
}

// Message is the staging buffer of one log message under construction.
type Message struct {
	writer.Entry
	empty bool
}

func newMessage(slots int) *Message {
	m := &Message{}
	m.Values = make([]any, slots)
	m.reset()
	return m
}

func (m *Message) reset() {
	values := m.Values
	clear(values)
	m.Entry = writer.Entry{Values: values, LineNo: -1}
	m.empty = true
}

// IsEmpty reports whether nothing has been populated since the last flush.
func (m *Message) IsEmpty() bool { return m.empty }

// Assembler owns the single staging message of a run.
type Assembler struct {
	flusher Flusher
	msg     *Message
	line    int
}

// New returns an assembler flushing to f with one value slot per layout
// member.
func New(f Flusher, layout *option.Layout) *Assembler {
	return &Assembler{flusher: f, msg: newMessage(layout.Len())}
}

// Message returns the staging message.
func (a *Assembler) Message() *Message { return a.msg }

// SetLine sets the 1-based input line of the units that follow.
func (a *Assembler) SetLine(n int) { a.line = n }

// Begin starts a unit handled by c. A START action flushes a pending
// message first.
func (a *Assembler) Begin(c *option.Compiled) (*writer.Writer, error) {
	if c.Action == option.ActionStart && !a.msg.empty {
		return a.flush()
	}
	return nil, nil
}

// End finishes a unit handled by c. A TERMINATE action flushes the
// message when it holds data.
func (a *Assembler) End(c *option.Compiled) (*writer.Writer, error) {
	if c.Action == option.ActionTerminate && !a.msg.empty {
		return a.flush()
	}
	return nil, nil
}

// Apply handles a complete unit: Begin, Populate and End.
func (a *Assembler) Apply(c *option.Compiled, u option.Unit) (*writer.Writer, error) {
	if c.Action == option.ActionIgnore {
		return nil, nil
	}
	w, err := a.Begin(c)
	if err != nil {
		return w, err
	}
	if err := a.Populate(c, u); err != nil {
		return w, err
	}
	w2, err := a.End(c)
	if w2 != nil {
		w = w2
	}
	return w, err
}

// Finish flushes a trailing message at end of input.
func (a *Assembler) Finish() (*writer.Writer, error) {
	if a.msg.empty {
		return nil, nil
	}
	return a.flush()
}

func (a *Assembler) flush() (*writer.Writer, error) {
	w, err := a.flusher.Emit(&a.msg.Entry)
	a.msg.reset()
	return w, err
}

func field(u option.Unit, source int) (string, bool) {
	if source <= 0 || u == nil {
		return "", false
	}
	s, ok := u.Field(source)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

func resolve(r *domain.Resolver, u option.Unit, source int) (int64, bool, error) {
	text, _ := field(u, source)
	return r.Resolve(text)
}

// Populate copies the data of unit u into the staging message.
func (a *Assembler) Populate(c *option.Compiled, u option.Unit) error {
	if c.Action == option.ActionIgnore {
		return nil
	}
	m := a.msg
	changed := false

	if c.Domain != nil && c.Domain.Mode() != domain.ModeUndefined {
		pos, ok, err := resolve(c.Domain, u, c.DomainSource)
		if err != nil {
			return err
		}
		if ok {
			m.Position, m.HasPosition = pos, true
		}
		m.Resolver = c.Domain
		changed = true
	}
	if c.Domain2 != nil && c.Domain2.Mode() != domain.ModeUndefined {
		pos, ok, err := resolve(c.Domain2, u, c.Domain2Source)
		if err != nil {
			return err
		}
		if ok {
			m.Position2, m.HasPosition2 = pos, true
		}
		changed = true
	}

	if c.NameMode != option.NameUndefined {
		if c.NameMode.Explicit() {
			if c.Name != "" {
				m.Name1, m.HasName1 = c.Name, true
			}
		} else if s, ok := field(u, c.NameSource); ok {
			m.Name1, m.HasName1 = s, true
		}
		m.Naming = c
		changed = true
	}
	if c.Name2Mode != option.NameUndefined {
		if s, ok := field(u, c.Name2Source); ok {
			m.Name2, m.HasName2 = s, true
		}
		changed = true
	}

	for _, b := range c.Bindings {
		s, ok := field(u, b.Source)
		if !ok {
			continue
		}
		if prev, ok := m.Values[b.Slot].(string); ok {
			m.Values[b.Slot] = prev + s
		} else {
			m.Values[b.Slot] = s
		}
		changed = true
	}

	if s, ok := field(u, c.TagSource); ok && !c.Tags.Empty() {
		t, err := c.Classify(s)
		if err != nil {
			return err
		}
		m.Tag = tag.Merge(m.Tag, t)
		changed = true
	}

	if c.AddRecPos {
		m.RecPos = true
	}
	if a.line > 0 {
		if m.LineNo == -1 {
			m.LineNo = a.line
		}
		if n := len(m.Lines); n == 0 || m.Lines[n-1] != a.line {
			m.Lines = append(m.Lines, a.line)
		}
	}
	if changed {
		m.empty = false
	}
	return nil
}
