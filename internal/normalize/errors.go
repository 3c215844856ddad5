package normalize

import (
	"errors"
	"strings"
)

// ErrInvalid is matched by every ValidationError via errors.Is.
var ErrInvalid = errors.New("invalid order parameters")

// FieldError describes one failing field of an order request.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationError carries every failing field of an order request, in field
// order. It is returned before any network call is made.
type ValidationError struct {
	Fields []*FieldError `json:"fields"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Error()
	}
	return ErrInvalid.Error() + ": " + strings.Join(parts, "; ")
}

// Is makes errors.Is(err, ErrInvalid) hold for any ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalid
}

// Unwrap exposes the individual field errors to errors.As.
func (e *ValidationError) Unwrap() []error {
	out := make([]error, len(e.Fields))
	for i, f := range e.Fields {
		out[i] = f
	}
	return out
}

// Field returns the failure recorded for the named field, or nil.
func (e *ValidationError) Field(name string) *FieldError {
	for _, f := range e.Fields {
		if f.Field == name {
			return f
		}
	}
	return nil
}
