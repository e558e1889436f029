// Package apperr classifies errors surfaced synchronously to API callers.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("state conflict")
	ErrAuth       = errors.New("authentication failed")
)

// Public error codes.
const (
	CodeBadRequest          = "BAD_REQUEST_ERROR"
	CodeNotFound            = "NOT_FOUND_ERROR"
	CodeInvalidVPA          = "INVALID_VPA"
	CodeInvalidCard         = "INVALID_CARD"
	CodeExpiredCard         = "EXPIRED_CARD"
	CodeAuthentication      = "AUTHENTICATION_ERROR"
	CodeIdempotencyConflict = "IDEMPOTENCY_CONFLICT"
	CodeRateLimited         = "RATE_LIMIT_ERROR"
	CodeInternal            = "INTERNAL_ERROR"
)

type Error struct {
	Kind        error
	Code        string
	Description string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func (e *Error) Unwrap() error { return e.Kind }

func Validation(code, description string) *Error {
	return &Error{Kind: ErrValidation, Code: code, Description: description}
}

func BadRequest(description string) *Error {
	return Validation(CodeBadRequest, description)
}

func NotFound(description string) *Error {
	return &Error{Kind: ErrNotFound, Code: CodeNotFound, Description: description}
}

// Conflict is a state-conflict error. Capturing twice or refunding beyond the
// available balance is reported to callers as a bad request, so code is explicit.
func Conflict(code, description string) *Error {
	return &Error{Kind: ErrConflict, Code: code, Description: description}
}

func Unauthorized() *Error {
	return &Error{Kind: ErrAuth, Code: CodeAuthentication, Description: "Invalid API credentials"}
}
