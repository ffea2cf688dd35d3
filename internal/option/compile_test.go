package option

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/sigex/internal/domain"
	"github.com/tinytelemetry/sigex/internal/model"
	"github.com/tinytelemetry/sigex/internal/tag"
)

func settings(opts []Option) Settings {
	return Settings{Base: domain.Milliseconds, Layout: BuildLayout(opts, false)}
}

func TestBuildLayoutOrdersStandardMembersFirst(t *testing.T) {
	t.Parallel()

	opts := []Option{
		{Members: []Member{{Source: 1, Name: "Custom", Type: "float"}, {Source: 2, Name: "Message", Type: "enum"}}},
		{Members: []Member{{Source: 1, Name: "Timestamp"}, {Source: 3, Name: "Custom", Type: "integer"}, {Source: 4, Name: "Extra"}}},
	}
	l := BuildLayout(opts, true)

	assert.Equal(t, []model.Member{
		{Name: "Timestamp", Type: model.MemberText},
		{Name: "Message", Type: model.MemberText},
		{Name: "Custom", Type: model.MemberFloat},
		{Name: "Extra", Type: model.MemberText},
		{Name: "RecPos", Type: model.MemberInteger},
	}, l.Members())
	assert.Equal(t, 4, l.RecPos())

	slot, ok := l.Slot("Custom")
	require.True(t, ok)
	assert.Equal(t, 2, slot)
}

func TestCompileBindsMembersToSharedSlots(t *testing.T) {
	t.Parallel()

	opts := []Option{
		{Pattern: `(\S+) (.*)`, Action: "start", Members: []Member{{Source: 1, Name: "Level"}, {Source: 2, Name: "Message"}}},
		{Pattern: `\s+(.*)`, Action: "add", Members: []Member{{Source: 1, Name: "Message"}}},
	}
	compiled, err := CompileAll(KindPattern, opts, settings(opts))
	require.NoError(t, err)
	require.Len(t, compiled, 2)

	assert.Equal(t, ActionStart, compiled[0].Action)
	assert.Equal(t, []Binding{{Source: 1, Slot: 0}, {Source: 2, Slot: 1}}, compiled[0].Bindings)
	assert.Equal(t, []Binding{{Source: 1, Slot: 1}}, compiled[1].Bindings)

	c, groups, ok, err := SelectLine(compiled, "  continued")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Same(t, compiled[1], c)
	v, present := groups.Field(1)
	assert.True(t, present)
	assert.Equal(t, "continued", v)

	_, _, ok, err = SelectLine(compiled, "nospace")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCompileErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		kind Kind
		opt  Option
		is   error
	}{
		{"bad regex", KindPattern, Option{Pattern: "(open"}, ErrInvalid},
		{"bad action", KindPattern, Option{Action: "jump"}, ErrInvalid},
		{"bad date format", KindPath, Option{Domain: Domain{Mode: "date", DateFormat: "qq"}}, domain.ErrConfig},
		{"date secondary", KindPath, Option{Domain2: Domain{Mode: "date"}}, domain.ErrConfig},
		{"bad unit", KindPath, Option{Domain: Domain{Mode: "float", Unit: "parsec"}}, domain.ErrConfig},
		{"bad separator", KindPath, Option{NameMode: "source-hierarchy", NameSeparator: "[x"}, ErrInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(0, tt.kind, tt.opt, Settings{Base: domain.Milliseconds})
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.is)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}

	_, err := Compile(0, KindPath, Option{Tags: tagsWithBadError()}, Settings{Base: domain.Milliseconds})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid error pattern.")
}

func TestSelectPathFirstMatchWins(t *testing.T) {
	t.Parallel()

	opts := []Option{{Path: "skip", Action: "ignore"}, {Path: "*"}, {Path: "never"}}
	compiled, err := CompileAll(KindPath, opts, settings(opts))
	require.NoError(t, err)

	c, ok := SelectPath(compiled, "/a", "skip")
	require.True(t, ok)
	assert.Equal(t, 0, c.Index)

	c, ok = SelectPath(compiled, "/a", "never")
	require.True(t, ok)
	assert.Equal(t, 1, c.Index)
}

func TestUnits(t *testing.T) {
	t.Parallel()

	c, err := Compile(0, KindPath, Option{Values: "time, msg"}, Settings{Base: domain.Milliseconds})
	require.NoError(t, err)
	u := c.KeyedUnit(map[string]string{"time": "12", "msg": "hi"})
	v, ok := u.Field(2)
	assert.True(t, ok)
	assert.Equal(t, "hi", v)
	_, ok = u.Field(3)
	assert.False(t, ok)

	x, err := Compile(0, KindElement, Option{Attributes: "id"}, Settings{Base: domain.Milliseconds})
	require.NoError(t, err)
	e := x.ElementUnit("body", true, map[string]string{"id": "7"})
	v, ok = e.Field(1)
	assert.True(t, ok)
	assert.Equal(t, "body", v)
	v, ok = e.Field(2)
	assert.True(t, ok)
	assert.Equal(t, "7", v)
	_, ok = e.Field(3)
	assert.False(t, ok)

	f := Fields{"", "a"}
	_, ok = f.Field(0)
	assert.False(t, ok)
}

func tagsWithBadError() (p tag.Patterns) {
	p.Error = "(unclosed"
	return p
}
