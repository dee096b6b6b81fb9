package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is a stable machine-readable business error code, distinct from
// the transport status carried alongside it.
type ErrorCode string

const (
	// Generic
	CodeUnknownError      ErrorCode = "E00"
	CodeOfferNotFound     ErrorCode = "E01"
	CodeOrderNotFound     ErrorCode = "E02"
	CodeInvalidResponse   ErrorCode = "E03"
	CodeThirdPartyTimeout ErrorCode = "E04"

	// Shopping
	CodeNoSearchResults ErrorCode = "E21"

	// Order creation
	CodeOrderCreationFailed ErrorCode = "E50"
	CodeOrderAlreadyExists  ErrorCode = "E51"
	CodeInsufficientFunds   ErrorCode = "E52"

	// Internal
	CodeInvalidConfiguration ErrorCode = "E60"

	// Client identity
	CodeInvalidOrg ErrorCode = "E101"

	// Guarantee / payment
	CodeInvalidCardToken     ErrorCode = "E110"
	CodeInvalidGuarantee     ErrorCode = "E111"
	CodeInvalidGuaranteeType ErrorCode = "E112"
)

// Error is a business error carrying a stable code and the HTTP status the
// API layer should respond with. Backend-reported failures keep the
// backend's own classification where one exists.
type Error struct {
	Code    ErrorCode
	Message string
	Status  int
	cause   error
}

// NewError constructs a business error with an explicit transport status.
func NewError(code ErrorCode, status int, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Status:  status,
	}
}

// WrapError attaches a cause to a business error for logging purposes; the
// cause is never serialised to the client.
func WrapError(code ErrorCode, status int, cause error, format string, args ...any) *Error {
	e := NewError(code, status, format, args...)
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes the cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// CodeOf extracts the business code from an error chain, defaulting to
// CodeUnknownError for untyped failures.
func CodeOf(err error) ErrorCode {
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	return CodeUnknownError
}

// StatusOf extracts the transport status from an error chain, defaulting to
// 500 for untyped failures.
func StatusOf(err error) int {
	var be *Error
	if errors.As(err, &be) && be.Status != 0 {
		return be.Status
	}
	return http.StatusInternalServerError
}

// ErrOfferNotFound builds the user-facing "offer not found or expired"
// error for the given client offer identifier.
func ErrOfferNotFound(offerID string) *Error {
	return NewError(CodeOfferNotFound, http.StatusBadRequest, "offer expired or not found: %s", offerID)
}

// ErrOrderNotFound builds the user-facing order lookup failure.
func ErrOrderNotFound(orderID string) *Error {
	return NewError(CodeOrderNotFound, http.StatusBadRequest, "order not found: %s", orderID)
}
