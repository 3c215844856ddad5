package finvasia

import (
	"errors"
	"net/http"

	"finvasia/internal/gateway"
	"finvasia/internal/normalize"
)

// Error types returned by Client methods.
type (
	// ValidationError lists every invalid order field.
	ValidationError = normalize.ValidationError
	// FieldError is one entry of a ValidationError.
	FieldError = normalize.FieldError
	// APIError is a failure status reported by the broker.
	APIError = gateway.APIError
	// NetworkError reports a request that never received a response.
	NetworkError = gateway.NetworkError
)

var (
	// ErrMissingParam wraps fail-fast required-argument errors.
	ErrMissingParam = errors.New("finvasia: missing required parameter")
	// ErrOrderNotFound matches the error returned when the broker denies
	// access to an order id, which is how it reports unknown orders.
	ErrOrderNotFound = errors.New("finvasia: order id not found")
	// ErrInvalid matches every ValidationError.
	ErrInvalid = normalize.ErrInvalid
)

// notFoundError is an *APIError with status 404 that also matches
// ErrOrderNotFound.
type notFoundError struct {
	api APIError
}

func newNotFoundError() *notFoundError {
	return &notFoundError{api: APIError{
		StatusCode: http.StatusNotFound,
		Stat:       statNotOK,
		Message:    "Order id not found",
	}}
}

func (e *notFoundError) Error() string        { return e.api.Error() }
func (e *notFoundError) Unwrap() error        { return &e.api }
func (e *notFoundError) Is(target error) bool { return target == ErrOrderNotFound }

func missing(name string) error {
	return &missingParamError{name: name}
}

type missingParamError struct {
	name string
}

func (e *missingParamError) Error() string { return e.name + " is required" }
func (e *missingParamError) Unwrap() error { return ErrMissingParam }
