package gateway

import "fmt"

// Default values used when a failed response carries no broker detail.
const (
	DefaultErrorStatus  = 500
	DefaultErrorStat    = "Not_Ok"
	DefaultErrorMessage = "Error"
)

// APIError is a failure status returned by the broker.
type APIError struct {
	StatusCode int    `json:"statusCode"`
	Stat       string `json:"stat"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("finvasia api error: status %d (%s): %s", e.StatusCode, e.Stat, e.Message)
}

// NetworkError reports a request that never received a response.
type NetworkError struct {
	Route string
	Err   error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: No response from server with error code: %v", e.Route, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }
