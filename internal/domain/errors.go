package domain

import (
	"errors"
	"fmt"
)

// Kind classifies scheduling failures. Each kind maps to a stable message key.
type Kind string

const (
	KindFormat              Kind = "format"
	KindInvalidDuration     Kind = "invalid_duration"
	KindWorkerUnavailable   Kind = "worker_unavailable"
	KindServiceNotFound     Kind = "service_not_found"
	KindOutsideWorkingHours Kind = "outside_working_hours"
	KindBreakConflict       Kind = "break_conflict"
	KindPastSlot            Kind = "past_slot"
	KindDoubleBooking       Kind = "double_booking"
	KindInvalidTransition   Kind = "invalid_transition"
	KindNotFound            Kind = "not_found"
	KindIdempotencyMismatch Kind = "idempotency_mismatch"
	KindForbidden           Kind = "forbidden"
)

var messageKeys = map[Kind]string{
	KindFormat:              "format.invalid",
	KindInvalidDuration:     "catalog.invalid_duration",
	KindWorkerUnavailable:   "worker.unavailable",
	KindServiceNotFound:     "service.not_found",
	KindOutsideWorkingHours: "schedule.outside_hours",
	KindBreakConflict:       "schedule.break_conflict",
	KindPastSlot:            "schedule.past_slot",
	KindDoubleBooking:       "booking.double_booking",
	KindInvalidTransition:   "booking.invalid_transition",
	KindNotFound:            "booking.not_found",
	KindIdempotencyMismatch: "booking.idempotency_mismatch",
	KindForbidden:           "access.forbidden",
}

// Key returns the stable message key clients use to pick guidance text.
func (k Kind) Key() string {
	if key, ok := messageKeys[k]; ok {
		return key
	}
	return "internal"
}

// Error is a classified scheduling error. From/To are set for invalid transitions.
type Error struct {
	Kind    Kind
	Message string
	From    Status
	To      Status
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrDoubleBooking)
// works for errors carrying a specific message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Key returns the stable message key of the error kind.
func (e *Error) Key() string {
	return e.Kind.Key()
}

var (
	ErrFormat              = &Error{Kind: KindFormat, Message: "malformed input"}
	ErrInvalidDuration     = &Error{Kind: KindInvalidDuration, Message: "service duration is not a multiple of the grid"}
	ErrWorkerUnavailable   = &Error{Kind: KindWorkerUnavailable, Message: "worker not found or inactive"}
	ErrServiceNotFound     = &Error{Kind: KindServiceNotFound, Message: "service not found or inactive"}
	ErrOutsideWorkingHours = &Error{Kind: KindOutsideWorkingHours, Message: "requested time is outside working hours"}
	ErrBreakConflict       = &Error{Kind: KindBreakConflict, Message: "requested time overlaps the worker's break"}
	ErrPastSlot            = &Error{Kind: KindPastSlot, Message: "requested time is not in the future"}
	ErrDoubleBooking       = &Error{Kind: KindDoubleBooking, Message: "worker already has a booking at this time"}
	ErrInvalidTransition   = &Error{Kind: KindInvalidTransition, Message: "invalid status transition"}
	ErrNotFound            = &Error{Kind: KindNotFound, Message: "booking not found"}
	ErrIdempotencyMismatch = &Error{Kind: KindIdempotencyMismatch, Message: "idempotency key reused with different parameters"}
	ErrForbidden           = &Error{Kind: KindForbidden, Message: "access denied"}
)

// Storage-level sentinels. They never reach clients as-is.
var (
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrDuplicateKey           = errors.New("duplicate idempotency key")
)

// Errorf builds a classified error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// InvalidTransition reports an attempted from → to change that the lifecycle rejects.
func InvalidTransition(from, to Status) *Error {
	return &Error{
		Kind:    KindInvalidTransition,
		Message: fmt.Sprintf("invalid status transition: %s → %s", from, to),
		From:    from,
		To:      to,
	}
}

// KindOf returns the kind of a classified error, or "" for anything else.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
