package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	CodeNotFound          = "NOT_FOUND"
	CodeValidation        = "VALIDATION_ERROR"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeForbidden         = "FORBIDDEN"
	CodeConflict          = "CONFLICT"
	CodeInternal          = "INTERNAL_ERROR"
	CodeBadRequest        = "BAD_REQUEST"
	CodeTimeout           = "TIMEOUT"
	CodeUnavailable       = "SERVICE_UNAVAILABLE"
	CodeInvalidInput      = "INVALID_INPUT"
	CodeListingClosed     = "LISTING_CLOSED"
	CodeListingExpired    = "LISTING_EXPIRED"
	CodeListingNotClosed  = "LISTING_NOT_CLOSED"
	CodeCooldownActive    = "COOLDOWN_ACTIVE"
	CodeInvalidTransition = "INVALID_TRANSITION"
)

type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	HTTPStatus int            `json:"-"`
	Details    map[string]any `json:"details,omitempty"`
	Err        error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func (e *AppError) StatusCode() int {
	if e.HTTPStatus == 0 {
		return http.StatusInternalServerError
	}
	return e.HTTPStatus
}

func (e *AppError) ToJSON() []byte {
	data, _ := json.Marshal(ErrorResponse{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	})
	return data
}

type ErrorResponse struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

func New(code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

func Wrap(err error, code, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

func NotFound(resource string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound)
}

func NotFoundWithID(resource, id string) *AppError {
	return NotFound(resource).WithDetails(map[string]any{
		"resource": resource,
		"id":       id,
	})
}

func Validation(message string, details map[string]any) *AppError {
	return New(CodeValidation, message, http.StatusUnprocessableEntity).WithDetails(details)
}

func InvalidInput(message string) *AppError {
	return New(CodeInvalidInput, message, http.StatusBadRequest)
}

func Unauthorized(message string) *AppError {
	return New(CodeUnauthorized, message, http.StatusUnauthorized)
}

func Forbidden(message string) *AppError {
	return New(CodeForbidden, message, http.StatusForbidden)
}

func Conflict(message string) *AppError {
	return New(CodeConflict, message, http.StatusConflict)
}

func Internal(message string, err error) *AppError {
	return Wrap(err, CodeInternal, message, http.StatusInternalServerError)
}

func Timeout(message string) *AppError {
	return New(CodeTimeout, message, http.StatusGatewayTimeout)
}

func Unavailable(service string) *AppError {
	return New(CodeUnavailable, fmt.Sprintf("%s is temporarily unavailable", service), http.StatusServiceUnavailable)
}

func ListingClosed(kind, id string) *AppError {
	return New(CodeListingClosed, fmt.Sprintf("This %s is closed and no longer accepts requests", kind), http.StatusConflict).
		WithDetails(map[string]any{"kind": kind, "id": id})
}

func ListingExpired(kind, id string) *AppError {
	return New(CodeListingExpired, fmt.Sprintf("This %s has already departed", kind), http.StatusConflict).
		WithDetails(map[string]any{"kind": kind, "id": id})
}

func ListingNotClosed(kind, id string) *AppError {
	return New(CodeListingNotClosed, fmt.Sprintf("This %s is not closed", kind), http.StatusConflict).
		WithDetails(map[string]any{"kind": kind, "id": id})
}

// CooldownActive is returned when a rejected passenger asks again too early.
func CooldownActive(remainingMinutes int, retryAt time.Time) *AppError {
	unit := "minutes"
	if remainingMinutes == 1 {
		unit = "minute"
	}
	return New(CodeCooldownActive,
		fmt.Sprintf("Please wait %d more %s before requesting again", remainingMinutes, unit),
		http.StatusTooManyRequests,
	).WithDetails(map[string]any{
		"remaining_minutes": remainingMinutes,
		"retry_after":       retryAt.UTC().Format(time.RFC3339),
	})
}

func InvalidTransition(from, action string) *AppError {
	return New(CodeInvalidTransition, fmt.Sprintf("Cannot %s a %s confirmation", action, from), http.StatusConflict).
		WithDetails(map[string]any{"status": from, "action": action})
}

func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

func AsAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal("An unexpected error occurred", err)
}

// HasCode reports whether err is an AppError carrying code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}
