// Package apperr defines the error kinds Codem surfaces to its callers.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for callers and transports.
type Kind string

const (
	KindInternal           Kind = "internal"
	KindInvalidArgument    Kind = "invalid_argument"
	KindNotFound           Kind = "not_found"
	KindUpstream           Kind = "upstream_error"
	KindStorageUnavailable Kind = "storage_unavailable"
	KindConflict           Kind = "conflict"
)

// Error carries a Kind and a human-readable message. Status and Details are
// set for upstream errors and hold the backend's HTTP status and raw body.
type Error struct {
	Kind    Kind
	Message string
	Status  int
	Details string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// InvalidArgument reports a missing or malformed request field.
func InvalidArgument(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidArgument, Message: fmt.Sprintf(format, args...)}
}

// NotFound reports an absent entity, e.g. NotFound("run", id).
func NotFound(entity, id string) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf("%s not found: %s", entity, id)}
}

// Upstream reports a failed call to an external backend. status is 0 when
// no HTTP response was received.
func Upstream(backend string, status int, body string, err error) *Error {
	msg := backend + " backend error"
	if status != 0 {
		msg = fmt.Sprintf("%s backend error: status %d", backend, status)
	}
	return &Error{Kind: KindUpstream, Message: msg, Status: status, Details: body, Err: err}
}

// StorageUnavailable reports that the document medium cannot be reached.
func StorageUnavailable(err error) *Error {
	return &Error{Kind: KindStorageUnavailable, Message: "storage unavailable", Err: err}
}

// Conflict reports a write that lost a concurrent update race.
func Conflict(msg string, err error) *Error {
	return &Error{Kind: KindConflict, Message: msg, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or
// KindInternal if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
