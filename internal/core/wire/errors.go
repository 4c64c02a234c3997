package wire

import (
	"errors"
	"fmt"
)

var (
	ErrMalformedFrame  = errors.New("wire: frame is not a JSON object")
	ErrTruncatedRecord = errors.New("wire: truncated record")
	ErrMalformedField  = errors.New("wire: malformed field")
	ErrUnknownCategory = errors.New("wire: unknown category")
	ErrNoStats         = errors.New("wire: item has no stat string")
)

// DecodeError reports which top-level key aborted the decoding of a frame.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("wire: decode %q: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// FieldError locates a failed scalar conversion inside a flat-array sequence.
// Field is the position within the record.
type FieldError struct {
	Record int
	Field  int
	Err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("wire: record %d: malformed field %d: %v", e.Record, e.Field, e.Err)
}

func (e *FieldError) Unwrap() []error {
	return []error{ErrMalformedField, e.Err}
}
