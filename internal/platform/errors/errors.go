// Package errors maps failures onto HTTP-facing categories and a JSON error body.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/pscheid92/tilecast/internal/domain"
)

// Type is the category of an error, used as a metric label and in the response body.
type Type string

const (
	TypeValidation  Type = "validation"   // 400
	TypeTooLarge    Type = "too_large"    // 413
	TypeRateLimited Type = "rate_limited" // 429
	TypeConflict    Type = "conflict"     // 409
	TypeUnavailable Type = "unavailable"  // 503
	TypeInternal    Type = "internal"     // 500
)

type Error struct {
	Type    Type
	Message string
	Cause   error
	Context map[string]any
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) HTTPStatus() int {
	switch e.Type {
	case TypeValidation:
		return http.StatusBadRequest
	case TypeTooLarge:
		return http.StatusRequestEntityTooLarge
	case TypeRateLimited:
		return http.StatusTooManyRequests
	case TypeConflict:
		return http.StatusConflict
	case TypeUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func newError(t Type, message string, cause error) *Error {
	return &Error{Type: t, Message: message, Cause: cause, Context: map[string]any{}}
}

func Validation(message string, cause error) *Error {
	return newError(TypeValidation, message, cause)
}

func TooLarge(limit int64) *Error {
	return newError(TypeTooLarge, "request body too large", nil).With("limit_bytes", limit)
}

func RateLimited() *Error {
	return newError(TypeRateLimited, "rate limit exceeded", nil)
}

func Conflict(message string, cause error) *Error {
	return newError(TypeConflict, message, cause)
}

func Unavailable(message string, cause error) *Error {
	return newError(TypeUnavailable, message, cause)
}

func Internal(message string, cause error) *Error {
	return newError(TypeInternal, message, cause)
}

// With adds a context field to the error (chainable).
func (e *Error) With(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Response is the JSON body sent to clients.
type Response struct {
	Error   string         `json:"error"`
	Type    Type           `json:"type"`
	Context map[string]any `json:"context,omitempty"`
}

func (e *Error) ToResponse() Response {
	return Response{Error: e.Message, Type: e.Type, Context: e.Context}
}

// From converts any error into a structured Error. Domain sentinels get their
// category; anything unrecognised becomes an internal error.
func From(err error) *Error {
	if err == nil {
		return nil
	}

	var structured *Error
	if errors.As(err, &structured) {
		return structured
	}

	switch {
	case errors.Is(err, domain.ErrUnknownKind):
		return Validation("unknown payload kind", err)
	case errors.Is(err, domain.ErrMalformedPayload):
		return Validation("malformed payload", err)
	case errors.Is(err, domain.ErrReplicaIngest):
		return Conflict("relay is a replica; ingest at the primary", err)
	case errors.Is(err, domain.ErrRelayStopped):
		return Unavailable("relay is shutting down", err)
	case errors.Is(err, domain.ErrRelayFull):
		return Unavailable("too many subscribers", err)
	default:
		return Internal("internal server error", err)
	}
}
