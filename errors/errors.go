package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrWorkerPanic       = fmt.Errorf("worker panic")
	ErrOnlyCensoredFiles = fmt.Errorf("censored directory contains directories")
	ErrEmptyWords        = fmt.Errorf("no words have been found")

	ErrValidation         = fmt.Errorf("validation failed")
	ErrNotFound           = fmt.Errorf("not found")
	ErrChatNotFound       = fmt.Errorf("chat %w", ErrNotFound)
	ErrMessageNotFound    = fmt.Errorf("message %w", ErrNotFound)
	ErrUserNotFound       = fmt.Errorf("user %w", ErrNotFound)
	ErrUnauthorized       = fmt.Errorf("unauthorized")
	ErrForbidden          = fmt.Errorf("forbidden")
	ErrInvalidCredentials = fmt.Errorf("invalid email or password")
	ErrInvalidToken       = fmt.Errorf("invalid token")
	ErrInvalidPassword    = fmt.Errorf("%w: password must mix upper and lower case letters, digits and symbols", ErrValidation)
	ErrInvalidHash        = fmt.Errorf("invalid hash format")
	ErrTokenGeneration    = fmt.Errorf("token generation failed")
	ErrUserAlreadyExists  = fmt.Errorf("user already exists")
	ErrUnsupportedFile    = fmt.Errorf("only images, pdf and videos are allowed")
	ErrFileTooLarge       = fmt.Errorf("file is too large")
	ErrTooManyRequests    = fmt.Errorf("too many requests")

	ErrDispatchTimeout = fmt.Errorf("dispatch timeout")
	ErrEventDropped    = fmt.Errorf("event dropped")
	ErrSlowConsumer    = fmt.Errorf("slow consumer")
	ErrSinkClosed      = fmt.Errorf("sink closed")
)

// MapToHTTPStatus converts a domain error into the HTTP status returned to the client.
// It is applied once, at the HTTP boundary.
func MapToHTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrUserAlreadyExists),
		errors.Is(err, ErrUnsupportedFile),
		errors.Is(err, ErrFileTooLarge):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrTooManyRequests):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
