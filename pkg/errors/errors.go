package errors

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

const (
	CodeMissingIdentity   = "MISSING_IDENTITY"
	CodeWrite             = "WRITE_ERROR"
	CodeRead              = "READ_ERROR"
	CodeSubscription      = "SUBSCRIPTION_ERROR"
	CodeSessionNotLive    = "SESSION_NOT_LIVE"
	CodeNotFound          = "NOT_FOUND"
	CodeBadRequest        = "BAD_REQUEST"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeInternal          = "INTERNAL_ERROR"
	CodeTooManyRequests   = "TOO_MANY_REQUESTS"
	CodeNotificationError = "NOTIFICATION_ERROR"
)

type AppError struct {
	Code    string
	Message string
	Status  int
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(code string, message string, status int, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Status:  status,
		Err:     err,
	}
}

// MissingIdentity is returned when a chat cannot start because the caller is
// not authenticated or the counterpart id is absent.
func MissingIdentity(message string) *AppError {
	return &AppError{
		Code:    CodeMissingIdentity,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

// WriteFailed wraps a backend write failure (network, permission).
func WriteFailed(message string, err error) *AppError {
	return &AppError{
		Code:    CodeWrite,
		Message: message,
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

// ReadFailed wraps a backend read failure.
func ReadFailed(message string, err error) *AppError {
	return &AppError{
		Code:    CodeRead,
		Message: message,
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

// SubscriptionFailed wraps a live feed failure, e.g. permission revoked mid-session.
func SubscriptionFailed(message string, err error) *AppError {
	return &AppError{
		Code:    CodeSubscription,
		Message: message,
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

func SessionNotLive(state string) *AppError {
	return &AppError{
		Code:    CodeSessionNotLive,
		Message: fmt.Sprintf("chat session is %s", state),
		Status:  http.StatusConflict,
	}
}

func NotificationFailed(message string, err error) *AppError {
	return &AppError{
		Code:    CodeNotificationError,
		Message: message,
		Status:  http.StatusBadGateway,
		Err:     err,
	}
}

func NotFound(resource string, err error) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
		Status:  http.StatusNotFound,
		Err:     err,
	}
}

func BadRequest(message string, err error) *AppError {
	return &AppError{
		Code:    CodeBadRequest,
		Message: message,
		Status:  http.StatusBadRequest,
		Err:     err,
	}
}

func Unauthorized(message string, err error) *AppError {
	return &AppError{
		Code:    CodeUnauthorized,
		Message: message,
		Status:  http.StatusUnauthorized,
		Err:     err,
	}
}

func Internal(message string, err error) *AppError {
	return &AppError{
		Code:    CodeInternal,
		Message: message,
		Status:  http.StatusInternalServerError,
		Err:     err,
	}
}

func TooManyRequests(message string, wait time.Duration) *AppError {
	return &AppError{
		Code:    CodeTooManyRequests,
		Message: fmt.Sprintf("%s (retry in %s)", message, wait.Round(time.Second)),
		Status:  http.StatusTooManyRequests,
	}
}

func Is(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// As is errors.As from the standard library, re-exported so callers need only
// this package.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
