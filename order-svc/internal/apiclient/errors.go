package apiclient

import (
	"errors"
	"fmt"
)

const (
	msgOffline      = "API is currently offline"
	msgNetworkError = "Network error: Unable to connect to server"
)

// APIError is a failed call to the backend. Status 0 means the server was never reached.
type APIError struct {
	Status  int
	Message string
	Body    []byte
	Cause   error
}

func (e *APIError) Error() string {
	if e.Status == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (status %d)", e.Message, e.Status)
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

func (e *APIError) retryable() bool {
	return e.Status >= 500
}

// UserMessage maps err to the toast text shown to the user.
func UserMessage(err error) string {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return "Network error. Please check your connection and try again."
	}

	switch apiErr.Status {
	case 0:
		return "Unable to connect to server. Please check your internet connection."
	case 400:
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return "Invalid request. Please check your input."
	case 401:
		return "Authentication required. Please log in again."
	case 403:
		return "Access denied. You don't have permission for this action."
	case 404:
		return "Requested resource not found."
	case 500:
		return "Server error. Please try again later."
	case 503:
		return "Service temporarily unavailable. Please try again later."
	default:
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return "An unexpected error occurred."
	}
}
