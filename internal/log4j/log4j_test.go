package log4j

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinytelemetry/sigex/internal/domain"
	"github.com/tinytelemetry/sigex/internal/model"
	"github.com/tinytelemetry/sigex/internal/option"
)

func TestConvertRelativeLayout(t *testing.T) {
	opt, err := Convert("%r [%t] %p %c %x - %m%n")
	require.NoError(t, err)

	assert.Equal(t, `([0-9\-\+]*?) \[(.*?)\] (\s*?\S*?\s*?) (\s*?\S*?\s*?) (.*?) \- (.*)`, opt.Pattern)
	assert.Equal(t, "start", opt.Action)
	assert.Equal(t, option.Domain{Mode: "integer", Source: 1, Unit: "ms"}, opt.Domain)
	assert.Equal(t, 3, opt.TagSource)
	assert.Equal(t, "WARN", opt.Tags.Warning)
	assert.Equal(t, "source", opt.NameMode)
	assert.Equal(t, 4, opt.NameSource)

	names := make([]string, 0, len(opt.Members))
	for i, m := range opt.Members {
		assert.Equal(t, i+1, m.Source)
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"Timestamp", "Thread", "Level", "Logger", "NDC", "Message"}, names)

	c, err := option.Compile(0, option.KindPattern, opt, option.Settings{Base: domain.Milliseconds})
	require.NoError(t, err)
	fields, ok, err := c.Match("120 [main] INFO com.acme.App  - started")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "120", fields[1])
	assert.Equal(t, "main", fields[2])
	assert.Equal(t, "INFO", fields[3])
	assert.Equal(t, "com.acme.App", fields[4])
	assert.Equal(t, "started", fields[6])
}

func TestConvertDateLayout(t *testing.T) {
	opt, err := Convert("%d{ABSOLUTE} %-5p [%c{1}] %X{user}: %m")
	require.NoError(t, err)

	assert.Equal(t, option.Domain{Mode: "date", Source: 1, DateFormat: FormatAbsolute}, opt.Domain)
	require.Len(t, opt.Members, 5)
	assert.Equal(t, model.MemberTimestamp, opt.Members[0].Name)
	assert.Equal(t, "user", opt.Members[3].Name)
	assert.Equal(t, "text", opt.Members[3].Type)

	c, err := option.Compile(0, option.KindPattern, opt, option.Settings{Base: domain.Milliseconds})
	require.NoError(t, err)
	fields, ok, err := c.Match("10:15:30,250 WARN  [Db] alice: slow query")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "10:15:30,250", fields[1])
	assert.Equal(t, "alice", fields[4])
	assert.Equal(t, "slow query", fields[5])
}

func TestConvertDefaultsToRecordCounter(t *testing.T) {
	opt, err := Convert("%p 100%% %m")
	require.NoError(t, err)
	assert.Equal(t, "record-inc", opt.Domain.Mode)
	assert.Equal(t, `(\s*?\S*?\s*?) 100% (.*)`, opt.Pattern)
}

func TestConvertUnknownConversion(t *testing.T) {
	_, err := Convert("%q %m")
	require.ErrorIs(t, err, ErrUnknownConversion)
}

func TestDateFormatPresets(t *testing.T) {
	tests := map[string]string{
		"":           FormatISO8601,
		"ISO8601":    FormatISO8601,
		"ABSOLUTE":   FormatAbsolute,
		"DATE":       FormatDate,
		"yyyy.MM.dd": "yyyy.MM.dd",
	}
	for in, want := range tests {
		assert.Equal(t, want, DateFormat(in), in)
	}
	assert.Equal(t, `(\S+\.\S+\.\S+ \S+[+]\S+)`, DateRegex("yyyy.MM.dd HH+mm"))
}

func TestEscape(t *testing.T) {
	assert.Equal(t, `a\.b\(c\)\[d\] \- \{e\}\|\$\^\?\*\#\\`, Escape(`a.b(c)[d] - {e}|$^?*#\`))
}

func TestExpandKeepsConfiguredFields(t *testing.T) {
	plain := option.Option{Pattern: "x"}
	got, err := Expand(plain)
	require.NoError(t, err)
	assert.Equal(t, plain, got)

	got, err = Expand(option.Option{
		Log4j:      "%d %p %m",
		Action:     "terminate",
		NamePrefix: "app:",
		AddRecPos:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, "terminate", got.Action)
	assert.Equal(t, "app:", got.NamePrefix)
	assert.True(t, got.AddRecPos)
	assert.Equal(t, "date", got.Domain.Mode)
	assert.Equal(t, FormatISO8601, got.Domain.DateFormat)
	assert.Empty(t, got.Log4j)
}
