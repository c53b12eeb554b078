// Package castorerr defines the closed set of error kinds the Castor core
// surfaces to its callers, modeled on the structured SlurmError pattern
// used throughout jontk-slurm-client/pkg/errors: a small Kind enum plus a
// struct carrying enough context for the caller to act without
// string-matching the message.
package castorerr

import (
	"errors"
	"fmt"
)

// Kind is a closed enumeration of the error conditions the core can raise.
type Kind string

const (
	// Conflict is returned when keeping a fragment would violate the
	// non-overlap invariant.
	Conflict Kind = "CONFLICT"
	// UnsatisfiableReservation is returned when no available fragment
	// covers a required index during split-on-reserve.
	UnsatisfiableReservation Kind = "UNSATISFIABLE_RESERVATION"
	// InsufficientTuples is returned when the available tuple count for a
	// type is below the requested count at selection time.
	InsufficientTuples Kind = "INSUFFICIENT_TUPLES"
	// ReservationConflict is returned when the reservation cache already
	// holds the requested id.
	ReservationConflict Kind = "RESERVATION_CONFLICT"
	// NoSuchReservation is returned on a lookup miss where presence was
	// required (activating a reservation the cache does not hold).
	NoSuchReservation Kind = "NO_SUCH_RESERVATION"
	// NoSuchChunk is returned when activating a chunk flips no fragment:
	// the chunk was never ingested, or none of its fragments is still
	// LOCKED.
	NoSuchChunk Kind = "NO_SUCH_CHUNK"
	// ChunkNotYetAvailable is returned when a slave's bounded wait for a
	// chunk to materialize locally times out.
	ChunkNotYetAvailable Kind = "CHUNK_NOT_YET_AVAILABLE"
	// Timeout is returned when an operation's deadline expires before it
	// completes.
	Timeout Kind = "TIMEOUT"
	// TransportFailure is returned when an external collaborator (cache,
	// repository, replication channel) fails at the transport level.
	TransportFailure Kind = "TRANSPORT_FAILURE"
)

// Error is the structured error type returned by every Castor core
// operation that can fail with one of the kinds above.
type Error struct {
	// Cause is the underlying error, if any (e.g. a driver error).
	Cause error

	// TupleType, Requested, and Available populate the shortfall
	// description for InsufficientTuples and UnsatisfiableReservation.
	TupleType string

	Message string
	Kind    Kind

	Requested int64
	Available int64
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Kind {
	case InsufficientTuples, UnsatisfiableReservation:
		return fmt.Sprintf("%s: %s (tupleType=%s requested=%d available=%d)",
			e.Kind, e.Message, e.TupleType, e.Requested, e.Available)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
}

// Unwrap returns the underlying cause, allowing errors.Is/As to see through
// to driver-level errors.
func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is a *Error with the same Kind, so callers can
// write `errors.Is(err, castorerr.New(castorerr.Conflict, ""))` or, more
// idiomatically, use Of below.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// New creates an *Error of the given kind with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an *Error of the given kind that wraps cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Shortfall creates an InsufficientTuples or UnsatisfiableReservation error
// carrying the requested/available accounting the caller needs to report.
func Shortfall(kind Kind, tupleType string, requested, available int64) *Error {
	return &Error{
		Kind:      kind,
		Message:   "requested tuple count exceeds availability",
		TupleType: tupleType,
		Requested: requested,
		Available: available,
	}
}

// Of extracts the Kind from err, if err is (or wraps) a *Error.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err is (or wraps) a *Error of the given kind.
func Is(err error, kind Kind) bool {
	k, ok := Of(err)
	return ok && k == kind
}
