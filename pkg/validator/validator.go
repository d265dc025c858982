// Package validator guards records before they are persisted.
package validator

import (
	"fmt"
	"reflect"

	playground "github.com/go-playground/validator/v10"

	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
)

var validate = playground.New(playground.WithRequiredStructEnabled())

// Validator checks one candidate value. Messages explains the last failed
// IsValid call.
type Validator interface {
	IsValid(candidate any) bool
	Messages() []string
}

// RecordValidator validates a struct of type T using its validate tags.
// Instances keep the messages of the last call and are not safe for
// concurrent use.
type RecordValidator[T any] struct {
	messages []string
}

func NewRecordValidator[T any]() *RecordValidator[T] {
	return &RecordValidator[T]{}
}

func NewIndexingEntityValidator() *RecordValidator[models.IndexingEntity] {
	return NewRecordValidator[models.IndexingEntity]()
}

func NewIndexingAttributeValidator() *RecordValidator[models.IndexingAttribute] {
	return NewRecordValidator[models.IndexingAttribute]()
}

func NewSyncHistoryEntityRecordValidator() *RecordValidator[models.SyncHistoryEntityRecord] {
	return NewRecordValidator[models.SyncHistoryEntityRecord]()
}

func NewSyncHistoryConsolidationRecordValidator() *RecordValidator[models.SyncHistoryEntityConsolidationRecord] {
	return NewRecordValidator[models.SyncHistoryEntityConsolidationRecord]()
}

func (v *RecordValidator[T]) IsValid(candidate any) bool {
	v.messages = nil

	record, ok := asRecord[T](candidate)
	if !ok {
		var expected T
		v.messages = append(v.messages, fmt.Sprintf("Invalid type provided. Expected %T, received %T.", expected, candidate))
		return false
	}

	if err := validate.Struct(record); err != nil {
		v.messages = append(v.messages, describe(record, err)...)
		return false
	}

	return true
}

func (v *RecordValidator[T]) Messages() []string {
	return v.messages
}

func asRecord[T any](candidate any) (T, bool) {
	var zero T
	switch c := candidate.(type) {
	case T:
		return c, true
	case *T:
		if c == nil {
			return zero, false
		}
		return *c, true
	}
	return zero, false
}

// describe turns validator errors into one message per field, type and
// enum checks first, length checks after.
func describe(record any, err error) []string {
	verrs, ok := err.(playground.ValidationErrors)
	if !ok {
		return []string{err.Error()}
	}

	var typed, lengths []string
	for _, fe := range verrs {
		switch fe.Tag() {
		case "max":
			if fe.Kind() == reflect.String {
				lengths = append(lengths, fmt.Sprintf("Invalid %s provided for %T: value exceeds maximum length of %s characters.", fe.StructField(), record, fe.Param()))
				continue
			}
			typed = append(typed, fmt.Sprintf("Invalid %s provided for %T: must be at most %s, received %v.", fe.StructField(), record, fe.Param(), fe.Value()))
		case "oneof":
			typed = append(typed, fmt.Sprintf("Invalid %s provided for %T: expected one of [%s], received %v.", fe.StructField(), record, fe.Param(), fe.Value()))
		case "required":
			typed = append(typed, fmt.Sprintf("Invalid %s provided for %T: value is required.", fe.StructField(), record))
		default:
			typed = append(typed, fmt.Sprintf("Invalid %s provided for %T: rule '%s' expected '%s', received '%v'.", fe.StructField(), record, fe.Tag(), fe.Param(), fe.Value()))
		}
	}

	// type failures short-circuit the length check
	if len(typed) > 0 {
		return typed
	}
	return lengths
}
