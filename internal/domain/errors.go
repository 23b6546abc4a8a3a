package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind tags a cart failure so callers can branch without string matching.
type ErrorKind string

const (
	KindValidation           ErrorKind = "validation"
	KindCartNotFound         ErrorKind = "cart_not_found"
	KindItemNotFound         ErrorKind = "item_not_found"
	KindInsufficientStock    ErrorKind = "insufficient_stock"
	KindVersionConflict      ErrorKind = "version_conflict"
	KindPreconditionRequired ErrorKind = "precondition_required"
	KindPreconditionFailed   ErrorKind = "precondition_failed"
	KindCartBusy             ErrorKind = "cart_busy"
	KindIdempotencyConflict  ErrorKind = "idempotency_conflict"
	KindIdempotencyInFlight  ErrorKind = "idempotency_in_flight"
)

// Error carries the machine-readable context the client needs to
// self-correct: current version on conflicts, available stock on
// stock failures, retry hints on transient ones.
type Error struct {
	Kind ErrorKind
	Msg  string

	Field             string
	AvailableQuantity int
	CurrentVersion    int64
	RetryAfter        time.Duration
	StoredHash        string
	ProvidedHash      string

	Err error
}

func (e *Error) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the tag of err, or "" when err is not a domain error.
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// AsError unwraps err into a domain error, if it carries one.
func AsError(err error) (*Error, bool) {
	var de *Error
	ok := errors.As(err, &de)
	return de, ok
}

func Validationf(field, format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Field: field, Msg: fmt.Sprintf(format, args...)}
}

func ErrCartNotFound() *Error {
	return &Error{Kind: KindCartNotFound, Msg: "cart not found"}
}

func ErrItemNotFound(itemID string) *Error {
	return &Error{Kind: KindItemNotFound, Msg: fmt.Sprintf("cart item[%s] not found", itemID)}
}

func ErrInsufficientStock(productID int64, requested, available int) *Error {
	return &Error{
		Kind:              KindInsufficientStock,
		Msg:               fmt.Sprintf("product[%d] has %d in stock, %d requested", productID, available, requested),
		AvailableQuantity: available,
	}
}

func ErrPreconditionFailed(currentVersion int64) *Error {
	return &Error{
		Kind:           KindPreconditionFailed,
		Msg:            "If-Match does not match the current cart state",
		CurrentVersion: currentVersion,
	}
}

func ErrVersionConflict(currentVersion int64, cause error) *Error {
	return &Error{
		Kind:           KindVersionConflict,
		Msg:            "cart was modified concurrently",
		CurrentVersion: currentVersion,
		Err:            cause,
	}
}

func ErrCartBusy(retryAfter time.Duration) *Error {
	return &Error{
		Kind:       KindCartBusy,
		Msg:        "cart is locked by another request",
		RetryAfter: retryAfter,
	}
}

func ErrIdempotencyConflict(storedHash, providedHash string) *Error {
	return &Error{
		Kind:         KindIdempotencyConflict,
		Msg:          "idempotency key was already used with a different payload",
		StoredHash:   storedHash,
		ProvidedHash: providedHash,
	}
}
