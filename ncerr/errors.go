// Package ncerr defines the failure taxonomy shared by every Nextcloud resource
// client. Each failure carries a Kind so callers can branch with errors.Is
// against the Err* sentinels, or inspect the details with errors.As.
package ncerr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a failure.
type Kind string

const (
	KindRateLimited Kind = "rate_limited"
	KindConflict    Kind = "conflict"
	KindNotFound    Kind = "not_found"
	KindForbidden   Kind = "forbidden"
	KindMalformed   Kind = "malformed_resource"
	KindRemote      Kind = "remote_error"
)

// Sentinels for errors.Is.
var (
	ErrRateLimited = errors.New("rate limited")
	ErrConflict    = errors.New("version conflict")
	ErrNotFound    = errors.New("resource not found")
	ErrForbidden   = errors.New("forbidden")
	ErrMalformed   = errors.New("malformed resource")
	ErrRemote      = errors.New("remote error")
)

func (k Kind) sentinel() error {
	switch k {
	case KindRateLimited:
		return ErrRateLimited
	case KindConflict:
		return ErrConflict
	case KindNotFound:
		return ErrNotFound
	case KindForbidden:
		return ErrForbidden
	case KindMalformed:
		return ErrMalformed
	default:
		return ErrRemote
	}
}

// Error is a classified failure of a single client operation.
type Error struct {
	Kind Kind
	// Op is the attempted operation, usually the HTTP method or a client verb.
	Op string
	// Resource identifies the remote object (path or id).
	Resource string
	// Status is the final HTTP status, 0 when no response was classified.
	Status int
	// Attempts is the number of requests made; set for rate-limit failures.
	Attempts int
	// Detail is a short excerpt of the server's response body, if any.
	Detail string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Resource != "" {
		b.WriteString(" ")
		b.WriteString(e.Resource)
	}
	if e.Status != 0 {
		fmt.Fprintf(&b, " (status %d)", e.Status)
	}
	if e.Kind == KindRateLimited && e.Attempts > 0 {
		fmt.Fprintf(&b, " after %d attempts", e.Attempts)
	}
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is the sentinel matching e.Kind.
func (e *Error) Is(target error) bool {
	return target == e.Kind.sentinel()
}

// FromStatus maps a non-success HTTP status to a Kind.
func FromStatus(status int) Kind {
	switch status {
	case http.StatusTooManyRequests:
		return KindRateLimited
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusConflict, http.StatusPreconditionFailed:
		return KindConflict
	case http.StatusUnauthorized, http.StatusForbidden:
		return KindForbidden
	default:
		return KindRemote
	}
}

// KindOf returns the Kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// StatusOf returns the HTTP status recorded in err, or 0.
func StatusOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return 0
}

// Malformed reports an unparseable payload for resource.
func Malformed(op, resource string, err error) *Error {
	return &Error{Kind: KindMalformed, Op: op, Resource: resource, Err: err}
}

// NotFound reports a missing resource that was detected client-side, for
// example an event UID absent from a query result.
func NotFound(op, resource string) *Error {
	return &Error{Kind: KindNotFound, Op: op, Resource: resource}
}
