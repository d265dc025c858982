package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
)

// NewNotFoundError reports a lookup that matched no row. It carries the
// queried field and value.
func NewNotFoundError(entity, field string, value any) *httperror.HTTPError {
	return httperror.NewHTTPErrorf(http.StatusNotFound, "no such %s with %s = %v", entity, field, value).
		AddMetaValue("field", field).
		AddMetaValue("value", fmt.Sprint(value))
}

// NewAlreadyExistsError reports a unique key violation.
func NewAlreadyExistsError(entity string, key string) *httperror.HTTPError {
	return httperror.NewHTTPErrorf(http.StatusConflict, "%s already exists: %s", entity, key).
		AddMetaValue("key", key)
}

// NewCouldNotSaveError wraps a storage or validation failure on save.
func NewCouldNotSaveError(entity string, cause error) *httperror.HTTPError {
	return httperror.NewHTTPErrorf(http.StatusInternalServerError, "could not save %s: %v", entity, cause)
}

func NewCouldNotDeleteError(entity string, cause error) *httperror.HTTPError {
	return httperror.NewHTTPErrorf(http.StatusInternalServerError, "could not delete %s: %v", entity, cause)
}

// NewValidationError reports validator messages as a could-not-save error.
func NewValidationError(entity string, messages []string) *httperror.HTTPError {
	return httperror.NewHTTPErrorf(http.StatusInternalServerError, "could not save %s: %s", entity, strings.Join(messages, "; ")).
		AddMetaValue("validation", strings.Join(messages, "\n"))
}

// StatusCode returns the status of the first http error in the chain, or 0.
func StatusCode(err error) int {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if httperror.IsHTTPError(e) {
			return httperror.GetStatusCode(e)
		}
	}
	return 0
}

func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

func IsAlreadyExists(err error) bool {
	return StatusCode(err) == http.StatusConflict
}

// NewBadRequestError reports an invalid API request.
func NewBadRequestError(format string, args ...any) *httperror.HTTPError {
	return httperror.NewHTTPErrorf(http.StatusBadRequest, format, args...)
}

// NewInvalidParameterError reports a request parameter that could not be
// parsed. It carries the parameter name and the raw values.
func NewInvalidParameterError(field string, values []string) *httperror.HTTPError {
	return httperror.NewHTTPErrorf(http.StatusBadRequest, "invalid value for %s", field).
		AddMetaValue("field", field).
		AddMetaValue("value", strings.Join(values, ","))
}
