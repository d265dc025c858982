package pipeline

import (
	"fmt"
	"strings"
)

// FieldError is one invalid field of a record.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("field '%s': %s", e.Field, e.Message)
}

// TransformationError reports a record a stage could not transform.
type TransformationError struct {
	ItemID  int64
	Message string
	Fields  []FieldError
}

func (e *TransformationError) Error() string {
	parts := []string{}
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	for _, f := range e.Fields {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("item %d: %s", e.ItemID, strings.Join(parts, "; "))
}

// StageError is returned by a pipeline when one of its stages failed.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage '%s': %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// FlattenErrors turns an error chain into one message per leaf error.
// Joined errors are expanded and stage ids are kept as a prefix.
func FlattenErrors(err error) []string {
	return flatten(err, "")
}

func flatten(err error, prefix string) []string {
	switch e := err.(type) {
	case nil:
		return []string{}
	case *StageError:
		return flatten(e.Err, prefix+fmt.Sprintf("stage '%s': ", e.Stage))
	case *TransformationError:
		out := []string{}
		if e.Message != "" {
			out = append(out, fmt.Sprintf("%sitem %d: %s", prefix, e.ItemID, e.Message))
		}
		for _, f := range e.Fields {
			out = append(out, fmt.Sprintf("%sitem %d: %s", prefix, e.ItemID, f.Error()))
		}
		if len(out) == 0 {
			out = append(out, prefix+e.Error())
		}
		return out
	case interface{ Unwrap() []error }:
		out := []string{}
		for _, inner := range e.Unwrap() {
			out = append(out, flatten(inner, prefix)...)
		}
		return out
	}
	return []string{prefix + err.Error()}
}
