package utils

import "errors"

// ValidationError is a user-facing failure (unknown mission/task,
// bad payload, not-hidable, ...). Handlers translate it to a 400;
// anything else is treated as an infrastructure error and passed
// through to the generic 500 path.
type ValidationError struct {
	Code string
}

func (e *ValidationError) Error() string {
	return e.Code
}

func NewValidationError(code string) error {
	return &ValidationError{Code: code}
}

func IsValidationError(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
