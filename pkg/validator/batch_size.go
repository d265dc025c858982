package validator

import "fmt"

const (
	MinBatchSize     = 1
	MaxBatchSize     = 9_999_999
	DefaultBatchSize = 2500
)

// BatchSizeValidator accepts integer batch sizes within [MinBatchSize, MaxBatchSize].
type BatchSizeValidator struct {
	messages []string
}

func NewBatchSizeValidator() *BatchSizeValidator {
	return &BatchSizeValidator{}
}

func (v *BatchSizeValidator) IsValid(candidate any) bool {
	v.messages = nil

	var size int64
	switch c := candidate.(type) {
	case int:
		size = int64(c)
	case int32:
		size = int64(c)
	case int64:
		size = c
	default:
		v.messages = append(v.messages, fmt.Sprintf("Invalid Batch Size provided. Expected integer, received %T.", candidate))
		return false
	}

	if size < MinBatchSize || size > MaxBatchSize {
		v.messages = append(v.messages, fmt.Sprintf("Invalid Batch Size provided. Expected integer between %d and %d, received %d.", MinBatchSize, MaxBatchSize, size))
		return false
	}

	return true
}

func (v *BatchSizeValidator) Messages() []string {
	return v.messages
}

// ValidateBatchSize returns an error describing why size is not a valid
// batch size.
func ValidateBatchSize(size int) error {
	v := NewBatchSizeValidator()
	if !v.IsValid(size) {
		return fmt.Errorf("%s", v.Messages()[0])
	}
	return nil
}
