// Package reject defines the rejectable side of a filter: failures that carry
// an HTTP status code.
package reject

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/warpdrive/filterlog/pkg/reply"
)

// Rejection is a filter failure that maps to a status code.
type Rejection interface {
	error
	Status() int
}

// Never is the rejection type of a stage that cannot reject. No type in this
// module implements it, so its only value is nil.
type Never interface {
	Rejection
	never()
}

// Error is the concrete rejection used by the standard constructors below.
type Error struct {
	status int
	reason string
	cause  error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%d %s: %v", e.status, e.reason, e.cause)
	}
	return fmt.Sprintf("%d %s", e.status, e.reason)
}

func (e *Error) Status() int   { return e.status }
func (e *Error) Unwrap() error { return e.cause }

// Reason returns the client-safe reason text.
func (e *Error) Reason() string { return e.reason }

// Custom builds a rejection with an arbitrary status and reason.
func Custom(status int, reason string, cause ...error) *Error {
	e := &Error{status: status, reason: reason}
	if len(cause) > 0 {
		e.cause = cause[0]
	}
	return e
}

func NotFound() *Error {
	return Custom(http.StatusNotFound, http.StatusText(http.StatusNotFound))
}

func MethodNotAllowed() *Error {
	return Custom(http.StatusMethodNotAllowed, http.StatusText(http.StatusMethodNotAllowed))
}

// BadRequest wraps a client error.
func BadRequest(cause error) *Error {
	return Custom(http.StatusBadRequest, http.StatusText(http.StatusBadRequest), cause)
}

func PayloadTooLarge() *Error {
	return Custom(http.StatusRequestEntityTooLarge, http.StatusText(http.StatusRequestEntityTooLarge))
}

// Internal wraps a server-side failure. The cause is not rendered to clients.
func Internal(cause error) *Error {
	return Custom(http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError), cause)
}

// Render turns a rejection into the response written to the client.
func Render(r Rejection) *reply.Response {
	reason := http.StatusText(r.Status())
	var e *Error
	if errors.As(r, &e) && e.reason != "" {
		reason = e.reason
	}
	return reply.WithStatus(reply.Text(reason+"\n"), r.Status())
}
