package tag

import (
	"testing"

	"github.com/tinytelemetry/sigex/internal/model"
)

func TestFromLabel(t *testing.T) {
	tests := []struct {
		input string
		want  model.Tag
	}{
		{"TRACE", model.TagTrace},
		{"trace", model.TagTrace},
		{"TRC", model.TagTrace},
		{"DEBUG", model.TagDebug},
		{"DBG", model.TagDebug},
		{"INFO", model.TagInfo},
		{"information", model.TagInfo},
		{"WARN", model.TagWarning},
		{"warning", model.TagWarning},
		{"ERROR", model.TagError},
		{"ERR", model.TagError},
		{"FATAL", model.TagFatal},
		{"CRITICAL", model.TagFatal},
		{"PANIC", model.TagFatal},
		{"success", model.TagSuccess},
		{"  info  ", model.TagInfo},
		{"WARNX", model.TagWarning},
		{"unknown", model.TagNone},
		{"", model.TagNone},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := FromLabel(tt.input)
			if got != tt.want {
				t.Errorf("FromLabel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
