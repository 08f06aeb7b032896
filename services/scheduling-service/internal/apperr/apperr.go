// Package apperr defines the error kinds the scheduling core reports to callers.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation        Kind = "validation"
	KindBusinessHours     Kind = "business_hours"
	KindConflict          Kind = "conflict"
	KindOwnership         Kind = "ownership"
	KindAuthorization     Kind = "authorization"
	KindNotFound          Kind = "not_found"
	KindInvalidTransition Kind = "invalid_transition"
	KindAlreadyBooked     Kind = "already_booked"
	KindPastDate          Kind = "past_date"
	KindInternal          Kind = "internal"
)

// Error carries a kind, a reason safe to show to the caller and an optional cause.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrConflict) works
// regardless of the reason text.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrValidation        = &Error{Kind: KindValidation, Reason: "invalid input"}
	ErrBusinessHours     = &Error{Kind: KindBusinessHours, Reason: "outside business hours"}
	ErrConflict          = &Error{Kind: KindConflict, Reason: "time slot overlaps an existing slot"}
	ErrOwnership         = &Error{Kind: KindOwnership, Reason: "resource belongs to someone else"}
	ErrAuthorization     = &Error{Kind: KindAuthorization, Reason: "role not permitted"}
	ErrNotFound          = &Error{Kind: KindNotFound, Reason: "appointment not found"}
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition, Reason: "transition not allowed"}
	ErrAlreadyBooked     = &Error{Kind: KindAlreadyBooked, Reason: "slot already claimed"}
	ErrPastDate          = &Error{Kind: KindPastDate, Reason: "start time must be in the future"}
	ErrInternal          = &Error{Kind: KindInternal, Reason: "internal error"}
)

// ErrStale is returned by conditional writes that matched no row because the
// record no longer has the expected status. Callers translate it into the
// kind that fits the operation.
var ErrStale = errors.New("record changed concurrently")

func New(kind Kind, reason string) *Error {
	return &Error{Kind: kind, Reason: reason}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Internal wraps an infrastructure failure behind an opaque reason.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Reason: "internal error", Err: err}
}

// KindOf reports the kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf returns the caller-facing reason of err.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return "internal error"
}
