package emby

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors for upstream failure classes. Callers branch with
// errors.Is; the wrapped *Error keeps operation and response detail.
var (
	// ErrAuth means the API key was rejected (HTTP 401).
	ErrAuth = errors.New("emby: authentication failed")

	// ErrForbidden means the key lacks permission for the resource (HTTP 403).
	ErrForbidden = errors.New("emby: access forbidden")

	// ErrNotFound means the resource does not exist (HTTP 404).
	ErrNotFound = errors.New("emby: not found")

	// ErrTimeout means the request exceeded its deadline.
	ErrTimeout = errors.New("emby: request timed out")

	// ErrUnavailable means the server could not be reached at all.
	ErrUnavailable = errors.New("emby: server unreachable")

	// ErrUpstream means the server answered with an unexpected status.
	ErrUpstream = errors.New("emby: upstream error")

	// ErrBadResponse means the response body could not be decoded.
	ErrBadResponse = errors.New("emby: malformed response")
)

// Error carries the failure class plus request context for logging.
type Error struct {
	Sentinel  error  // one of the Err* sentinels above
	Operation string // logical operation, e.g. "sessions"
	Status    int    // HTTP status, 0 when the request never completed
	Body      string // truncated response body, optional
	Err       error  // underlying transport or decode error, optional
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: operation=%s", e.Sentinel.Error(), e.Operation)
	if e.Status != 0 {
		msg += fmt.Sprintf(" status=%d", e.Status)
	}
	if e.Body != "" {
		msg += fmt.Sprintf(" body=%q", e.Body)
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

// Unwrap exposes the sentinel so errors.Is matches the failure class.
func (e *Error) Unwrap() error {
	return e.Sentinel
}

const maxErrorBody = 256

// newStatusError classifies a non-2xx response.
func newStatusError(op string, status int, body []byte) *Error {
	var sentinel error
	switch {
	case status == 401:
		sentinel = ErrAuth
	case status == 403:
		sentinel = ErrForbidden
	case status == 404:
		sentinel = ErrNotFound
	default:
		sentinel = ErrUpstream
	}
	b := string(body)
	if len(b) > maxErrorBody {
		b = b[:maxErrorBody]
	}
	return &Error{Sentinel: sentinel, Operation: op, Status: status, Body: b}
}

// newTransportError classifies a failure before any response arrived.
func newTransportError(op string, err error) *Error {
	sentinel := ErrUnavailable
	if errors.Is(err, context.DeadlineExceeded) {
		sentinel = ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		sentinel = ErrTimeout
	}
	return &Error{Sentinel: sentinel, Operation: op, Err: err}
}

// newDecodeError classifies an undecodable 2xx body.
func newDecodeError(op string, err error) *Error {
	return &Error{Sentinel: ErrBadResponse, Operation: op, Err: err}
}

// ErrorClass maps an error to a short label for metrics and logs.
func ErrorClass(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrAuth):
		return "auth"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrBadResponse):
		return "bad_response"
	default:
		return "upstream"
	}
}
