package ingest

import (
	"errors"
	"strings"
)

// ValidationError is returned when caller-supplied spend data is unusable
type ValidationError struct {
	// Fields lists the missing or invalid fields, by JSON name
	Fields  []string
	Message string

	missing bool
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsValidationError checks if an error is a ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func missingFieldsError(fields []string) *ValidationError {
	return &ValidationError{
		Fields:  fields,
		Message: "Missing required fields: " + strings.Join(fields, ", "),
		missing: true,
	}
}

func isMissingFields(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve) && ve.missing
}

func invalidFieldError(field, msg string) *ValidationError {
	return &ValidationError{
		Fields:  []string{field},
		Message: field + " " + msg,
	}
}
