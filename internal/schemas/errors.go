package schemas

import (
	"sort"
	"strings"
)

// ValidationError maps field names to the problems found with them.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+strings.Join(e.Fields[k], " "))
	}
	return strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], msg)
}

// orNil returns e when it holds any problem.
func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// FieldError is returned by single fields that fail to decode.
type FieldError struct {
	Msg string
}

func (e *FieldError) Error() string { return e.Msg }

const (
	msgNotNull   = "Field may not be null."
	msgNotNumber = "Not a valid number."
	msgRequired  = "Missing data for required field."
)
