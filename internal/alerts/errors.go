package alerts

import (
	"fmt"
	"sort"
	"strings"
)

// ValidationError reports a required canonical field that is missing or
// structurally invalid. It carries a small debug context (source, envelope
// event id, and a few identifying payload fields) for operator triage.
type ValidationError struct {
	Message string
	Source  Source
	EventID string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("validation: ")
	b.WriteString(e.Message)
	b.WriteString(" (source=")
	b.WriteString(string(e.Source))
	if e.EventID != "" {
		b.WriteString(", event_id=")
		b.WriteString(e.EventID)
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(", ")
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(e.Fields[k])
	}
	b.WriteString(")")
	return b.String()
}

// NewValidationError builds a ValidationError for a transformer. fields may
// be nil; callers pass at most a handful of identifying payload fields.
func NewValidationError(src Source, env Envelope, message string, fields map[string]string) *ValidationError {
	return &ValidationError{
		Message: message,
		Source:  src,
		EventID: env.EventID,
		Fields:  fields,
	}
}

// UnknownSourceError reports a payload whose structural shape matches
// neither provider. There is no default transformer: ambiguous payloads
// always fail the record.
type UnknownSourceError struct {
	EventID string
}

func (e *UnknownSourceError) Error() string {
	if e.EventID == "" {
		return "unknown alert source: payload matches no known provider shape"
	}
	return fmt.Sprintf("unknown alert source: payload matches no known provider shape (event_id=%s)", e.EventID)
}
