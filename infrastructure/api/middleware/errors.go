package middleware

import (
	"errors"
	"fmt"
)

// Base API errors as sentinels.
var (
	// ErrAPI is the base error for request errors raised by handlers.
	ErrAPI = errors.New("api error")

	// ErrAuthentication indicates a missing or invalid API key.
	ErrAuthentication = errors.New("authentication failed")
)

// APIError is a request error with the HTTP status it maps to.
type APIError struct {
	code    int
	message string
	cause   error
}

// NewAPIError creates a new APIError.
func NewAPIError(code int, message string, cause error) *APIError {
	return &APIError{
		code:    code,
		message: message,
		cause:   cause,
	}
}

// BadRequest is a 400 APIError.
func BadRequest(message string, cause error) *APIError {
	return NewAPIError(400, message, cause)
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("api error %d: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("api error %d: %s", e.code, e.message)
}

// Unwrap returns the cause, or ErrAPI when there is none.
func (e *APIError) Unwrap() error {
	if e.cause == nil {
		return ErrAPI
	}
	return e.cause
}

// Code returns the HTTP status code.
func (e *APIError) Code() int {
	return e.code
}

// Message returns the client-facing message.
func (e *APIError) Message() string {
	return e.message
}

// AuthenticationError represents an authentication failure.
type AuthenticationError struct {
	message string
}

// NewAuthenticationError creates a new AuthenticationError.
func NewAuthenticationError(message string) *AuthenticationError {
	return &AuthenticationError{message: message}
}

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.message)
}

// Unwrap returns the base authentication error for errors.Is compatibility.
func (e *AuthenticationError) Unwrap() error {
	return ErrAuthentication
}
