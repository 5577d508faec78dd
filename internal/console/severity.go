package console

import (
	"encoding/json"
	"strings"
)

// Severity classifies a log line for colouring.
type Severity int

const (
	SevNone Severity = iota
	SevWarn
	SevError
)

func (s Severity) String() string {
	switch s {
	case SevWarn:
		return "warn"
	case SevError:
		return "error"
	default:
		return "none"
	}
}

func (s Severity) MarshalJSON() ([]byte, error) { return json.Marshal(s.String()) }

func (s *Severity) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	switch name {
	case "warn":
		*s = SevWarn
	case "error":
		*s = SevError
	default:
		*s = SevNone
	}
	return nil
}

// DetectSeverity looks for ERROR or WARN in the line, case-sensitively as
// servers print them. ERROR wins over WARN.
func DetectSeverity(text string) Severity {
	switch {
	case strings.Contains(text, "ERROR"):
		return SevError
	case strings.Contains(text, "WARN"):
		return SevWarn
	default:
		return SevNone
	}
}
