// Package errors provides the error taxonomy shared by the relay pipelines.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel errors for the failure classes the transport layer distinguishes.
var (
	ErrConfig           = errors.New("configuration error")
	ErrUnauthorized     = errors.New("webhook verification failed")
	ErrMalformedPayload = errors.New("malformed payload")
	ErrInvalidCommand   = errors.New("invalid command")
	ErrNotImplemented   = errors.New("not implemented")
	ErrInternal         = errors.New("internal error")
)

// APIError represents a non-success response from an upstream API.
type APIError struct {
	Service    string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s API error (status %d): %s: %v", e.Service, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("%s API error (status %d): %s", e.Service, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// NewAPIError creates a new API error.
func NewAPIError(service string, statusCode int, message string) *APIError {
	return &APIError{Service: service, StatusCode: statusCode, Message: message}
}

// IsUpstream returns true if err carries an APIError anywhere in its chain.
func IsUpstream(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr)
}

// IsClientFault returns true if the upstream rejected the request itself (4xx),
// as opposed to failing to serve it.
func IsClientFault(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
	}
	return false
}
