package option

import (
	"sort"

	"github.com/tinytelemetry/sigex/internal/model"
)

// Layout is the run-wide ordered member catalogue of the log signals. Every
// option binds its member sources onto slots of one shared layout, so a
// member named in several options is a single slot.
type Layout struct {
	members []model.Member
	index   map[string]int
	recPos  int
}

// BuildLayout collects the members of opts. Standard log members come
// first in canonical order and take their standard type; other members
// follow in first-seen order with their first configured type (text when
// unset). With recPos an integer RecPos member is appended.
func BuildLayout(opts []Option, recPos bool) *Layout {
	type entry struct {
		member model.Member
		order  int
		seen   int
	}
	seen := map[string]*entry{}
	var entries []*entry
	for _, o := range opts {
		recPos = recPos || o.AddRecPos
		for _, m := range o.Members {
			if m.Name == "" || seen[m.Name] != nil {
				continue
			}
			e := &entry{seen: len(entries)}
			if sm, order, ok := model.StandardMember(m.Name); ok {
				e.member, e.order = sm, order
			} else {
				typ, _ := model.ParseMemberType(m.Type)
				if typ == model.MemberNone {
					typ = model.MemberText
				}
				e.member = model.Member{Name: m.Name, Type: typ}
				e.order = len(model.StandardMembers())
			}
			seen[m.Name] = e
			entries = append(entries, e)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].order != entries[j].order {
			return entries[i].order < entries[j].order
		}
		return entries[i].seen < entries[j].seen
	})

	l := &Layout{index: map[string]int{}, recPos: -1}
	for _, e := range entries {
		l.add(e.member)
	}
	if recPos {
		if _, ok := l.index[model.MemberRecPos]; !ok {
			l.add(model.Member{Name: model.MemberRecPos, Type: model.MemberInteger})
		}
		l.recPos = l.index[model.MemberRecPos]
	}
	return l
}

func (l *Layout) add(m model.Member) int {
	l.index[m.Name] = len(l.members)
	l.members = append(l.members, m)
	return len(l.members) - 1
}

// Len returns the number of slots.
func (l *Layout) Len() int { return len(l.members) }

// Members returns a copy of the ordered members.
func (l *Layout) Members() []model.Member {
	out := make([]model.Member, len(l.members))
	copy(out, l.members)
	return out
}

// Slot returns the slot of the member called name.
func (l *Layout) Slot(name string) (int, bool) {
	i, ok := l.index[name]
	return i, ok
}

// RecPos returns the RecPos slot or -1.
func (l *Layout) RecPos() int { return l.recPos }
