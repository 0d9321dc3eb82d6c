package fecclient

import (
	"errors"
	"fmt"
)

// Common errors returned by the client.
var (
	// ErrMissingAPIKey is returned when the client is constructed without a credential.
	ErrMissingAPIKey = errors.New("FEC API key is not set")

	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of request errors.
type ErrorClass string

const (
	// ErrorClassClient represents HTTP errors that must not be retried
	// (4xx, auth failures, unexpected statuses).
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents retryable upstream failures (500, 502, 504).
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents connection-level errors.
	ErrorClassNetwork ErrorClass = "network"
)

// APIError represents an FEC API error with request context.
type APIError struct {
	StatusCode int
	Class      ErrorClass
	Endpoint   string
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("FEC %s error (status %d) on %s: %s: %v",
			e.Class, e.StatusCode, e.Endpoint, e.Message, e.Err)
	}
	return fmt.Sprintf("FEC %s error (status %d) on %s: %s",
		e.Class, e.StatusCode, e.Endpoint, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus categorizes an HTTP status code.
func classifyStatus(status int) ErrorClass {
	switch status {
	case 500, 502, 504:
		return ErrorClassServer
	default:
		return ErrorClassClient
	}
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Class {
		case ErrorClassServer, ErrorClassNetwork:
			return true
		default:
			return false
		}
	}
	// Connection-level errors arrive as plain transport errors.
	return true
}
