package config

import (
	"fmt"
	"strings"
)

// FieldError reports one rejected setting together with the value that failed.
type FieldError struct {
	Path    string
	Value   any
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s (got %s)", e.Path, e.Message, formatValue(e.Value))
}

func formatValue(v any) string {
	if s, ok := v.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprint(v)
}

// ValidationErrors collects every FieldError found by Config.Validate.
type ValidationErrors struct {
	Errors []FieldError
}

func (ve *ValidationErrors) add(path string, value any, message string) {
	ve.Errors = append(ve.Errors, FieldError{Path: path, Value: value, Message: message})
}

func (ve *ValidationErrors) empty() bool {
	return len(ve.Errors) == 0
}

// Fields lists the failing paths in report order.
func (ve *ValidationErrors) Fields() []string {
	out := make([]string, len(ve.Errors))
	for i, e := range ve.Errors {
		out[i] = e.Path
	}
	return out
}

// Field returns the error recorded for path.
func (ve *ValidationErrors) Field(path string) (FieldError, bool) {
	for _, e := range ve.Errors {
		if e.Path == path {
			return e, true
		}
	}
	return FieldError{}, false
}

func (ve *ValidationErrors) Error() string {
	msgs := make([]string, 0, len(ve.Errors))
	for _, e := range ve.Errors {
		msgs = append(msgs, e.Error())
	}
	return "invalid config: " + strings.Join(msgs, "; ")
}

// FormatStderr renders one "error:" line per field for CLI output.
func (ve *ValidationErrors) FormatStderr() string {
	var sb strings.Builder
	for _, e := range ve.Errors {
		fmt.Fprintf(&sb, "error: %s\n", e.Error())
	}
	return sb.String()
}
