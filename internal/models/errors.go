package models

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Error codes returned by engine operations.
const (
	CodeNotFound         = "NOT_FOUND"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeInvalidArgument  = "INVALID_ARGUMENT"
	CodeRateLimited      = "RATE_LIMITED"
	CodeConflict         = "CONFLICT"
	// CodeModerationUnavailable is an internal signal only; callers observe a
	// Pending status, never this code.
	CodeModerationUnavailable = "MODERATION_UNAVAILABLE"
	CodeTransient             = "TRANSIENT"
)

// ErrorResponse represents a standardized API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// AppError represents a custom application error
type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// CodeOf extracts the application error code, or empty for unknown errors.
func CodeOf(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Predefined error constructors
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewPermissionDeniedError(message string) *AppError {
	return &AppError{
		Code:    CodePermissionDenied,
		Message: message,
	}
}

func NewInvalidArgumentError(message string) *AppError {
	return &AppError{
		Code:    CodeInvalidArgument,
		Message: message,
	}
}

func NewRateLimitedError(resource string) *AppError {
	return &AppError{
		Code:    CodeRateLimited,
		Message: fmt.Sprintf("rate limit exceeded for %s", resource),
	}
}

func NewConflictError(message string) *AppError {
	return &AppError{
		Code:    CodeConflict,
		Message: message,
	}
}

func NewTransientError(err error) *AppError {
	return &AppError{
		Code:    CodeTransient,
		Message: "temporary storage failure",
		Err:     err,
	}
}

// RespondWithError creates a standardized error response
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	var response ErrorResponse

	var appErr *AppError
	if errors.As(err, &appErr) {
		response = ErrorResponse{
			Error: appErr.Message,
			Code:  appErr.Code,
		}
		// Transient details stay server-side; everything else is already
		// phrased for the caller.
		if appErr.Err != nil && appErr.Code != CodeTransient {
			response.Details = appErr.Err.Error()
		}
	} else {
		response = ErrorResponse{
			Error: err.Error(),
		}
	}

	return c.Status(status).JSON(response)
}
