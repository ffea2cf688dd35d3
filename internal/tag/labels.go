package tag

import (
	"strings"

	"github.com/tinytelemetry/sigex/internal/model"
)

// FromLabel converts common severity spellings to a Tag. Unknown labels
// yield model.TagNone.
func FromLabel(label string) model.Tag {
	normalized := strings.ToUpper(strings.TrimSpace(label))

	switch normalized {
	case "TRACE", "TRAC", "TRC", "FINEST", "FINER":
		return model.TagTrace
	case "DEBUG", "DEBU", "DBG", "DEB", "FINE":
		return model.TagDebug
	case "INFO", "INFORMATION", "INF", "CONFIG":
		return model.TagInfo
	case "SUCCESS", "OK", "PASS", "PASSED":
		return model.TagSuccess
	case "WARN", "WARNING", "WRNG", "WRN":
		return model.TagWarning
	case "ERROR", "ERR", "ERRO", "SEVERE":
		return model.TagError
	case "FATAL", "FATL", "FTL", "CRITICAL", "CRIT", "CRT", "PANIC", "PNC":
		return model.TagFatal
	}
	if len(normalized) >= 4 {
		switch normalized[:4] {
		case "INFO":
			return model.TagInfo
		case "WARN":
			return model.TagWarning
		case "ERRO":
			return model.TagError
		case "DEBU":
			return model.TagDebug
		case "TRAC":
			return model.TagTrace
		case "FATA", "CRIT":
			return model.TagFatal
		}
	}
	return model.TagNone
}
