package core

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrAmbiguousDate    = errors.New("ambiguous date without a date order hint")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrUnknownSource    = errors.New("unknown source")
	ErrNotFound         = errors.New("transaction not found")
	ErrInvalidMonthKey  = errors.New("invalid month key")
)

// ValidationError describes a raw record the normalizer refused.
type ValidationError struct {
	Field  string
	Value  string
	Reason error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s %q: %v", e.Field, e.Value, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Reason
}

// RowError ties a validation failure to its 1-based data row in a batch.
type RowError struct {
	Row int   `json:"row"`
	Err error `json:"-"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e RowError) Unwrap() error {
	return e.Err
}

// Reason returns the underlying error text, for JSON reports.
func (e RowError) Reason() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
