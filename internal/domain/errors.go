package domain

import "fmt"

// Error types for consistent error handling across the API.
//
//	ErrValidation      -> 400
//	ErrUnauthorized    -> 401
//	ErrInternal        -> 500
//	ErrExternalService -> raised by infra clients, wrapped into ErrInternal by services

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return e.Message
}

// ErrUnauthorized indicates a missing or rejected credential.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrInternal is a downstream failure surfaced to the caller as a 500.
// Message is the public error label; Detail, when set, is echoed back as
// the "message" field of the response body.
type ErrInternal struct {
	Message string
	Detail  string
	Err     error
}

func (e *ErrInternal) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ErrInternal) Unwrap() error {
	return e.Err
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrCircuitOpen indicates the circuit breaker is open. Infra clients wrap
// it in ErrExternalService like any other dependency failure.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}
