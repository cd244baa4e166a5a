// errors.go - Structured error handling for API responses
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/grid-monitor/dashboard/internal/fetch"
)

// APIError represents a structured API error response
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error constructors for consistent error handling

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusBadRequest,
		Code:    "BAD_REQUEST",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// NewValidationError creates a 400 validation error for a specific field
func NewValidationError(field string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Code:    "VALIDATION_ERROR",
		Message: fmt.Sprintf("validation failed for field: %s", field),
	}
}

// NewUnauthorizedError creates a 401 Unauthorized error
func NewUnauthorizedError(message string) *APIError {
	return &APIError{
		Status:  http.StatusUnauthorized,
		Code:    "UNAUTHORIZED",
		Message: message,
	}
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(resource string, id string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s not found: %s", resource, id),
	}
}

// NewInternalError creates a 500 Internal Server Error
func NewInternalError(message string, cause error) *APIError {
	err := &APIError{
		Status:  http.StatusInternalServerError,
		Code:    "INTERNAL_ERROR",
		Message: message,
	}
	if cause != nil {
		err.Details = cause.Error()
	}
	return err
}

// FromFetchError maps an upstream fetch error onto an API error.
//
// Expired tokens surface as 401 so the dashboard can redirect to login.
// Upstream HTTP failures keep their original status code; everything
// else (malformed payloads, connection failures) becomes a 502.
func FromFetchError(err error) *APIError {
	switch {
	case errors.Is(err, fetch.ErrTokenExpired):
		return &APIError{
			Status:  http.StatusUnauthorized,
			Code:    "TOKEN_EXPIRED",
			Message: "session token expired, please log in again",
		}
	case errors.Is(err, fetch.ErrNotInitialized):
		return &APIError{
			Status:  http.StatusInternalServerError,
			Code:    "NOT_INITIALIZED",
			Message: "upstream client is not initialized",
		}
	case errors.Is(err, fetch.ErrInvalidData):
		return &APIError{
			Status:  http.StatusBadGateway,
			Code:    "INVALID_UPSTREAM_DATA",
			Message: "upstream returned data in an unexpected shape",
			Details: err.Error(),
		}
	}

	var httpErr *fetch.HTTPError
	if errors.As(err, &httpErr) {
		return &APIError{
			Status:  httpErr.Status,
			Code:    "UPSTREAM_ERROR",
			Message: fmt.Sprintf("upstream request failed with status %d", httpErr.Status),
			Details: httpErr.Body,
		}
	}

	return &APIError{
		Status:  http.StatusBadGateway,
		Code:    "UPSTREAM_UNREACHABLE",
		Message: "could not reach the monitoring backend",
		Details: err.Error(),
	}
}

// ErrorHandler middleware for Echo
// Usage: e.HTTPErrorHandler = api.ErrorHandler
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var apiErr *APIError

	switch e := err.(type) {
	case *APIError:
		apiErr = e
	case *echo.HTTPError:
		apiErr = &APIError{
			Status:  e.Code,
			Code:    "HTTP_ERROR",
			Message: fmt.Sprintf("%v", e.Message),
		}
	default:
		apiErr = &APIError{
			Status:  http.StatusInternalServerError,
			Code:    "UNKNOWN_ERROR",
			Message: "An unexpected error occurred",
			Details: err.Error(),
		}
	}

	if !c.Response().Committed {
		c.JSON(apiErr.Status, apiErr)
	}
}

// RespondWithError is a helper to respond with an APIError
func RespondWithError(c echo.Context, err *APIError) error {
	return c.JSON(err.Status, err)
}
