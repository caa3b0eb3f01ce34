package portal

import (
	"context"
	"net"
	"strconv"

	"github.com/pkg/errors"
)

// ErrNotAuthenticated is returned by every call made before a successful Login.
var ErrNotAuthenticated = errors.New("portal: not authenticated")

var errNoRecipients = errors.New("no recipients")

// StatusError is a non-2xx answer from the portal.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	msg := "unexpected status " + strconv.Itoa(e.Code)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// AuthError means the portal rejected the credentials or answered the login with something unreadable.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string { return "portal login: " + e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

// LookupError is a transport or HTTP failure while resolving a student; an empty result is not an error.
type LookupError struct {
	ID  string
	Err error
}

func (e *LookupError) Error() string { return "portal lookup " + e.ID + ": " + e.Err.Error() }
func (e *LookupError) Unwrap() error { return e.Err }

// SendError is a transport or HTTP failure while sending a message.
type SendError struct {
	Err error
}

func (e *SendError) Error() string { return "portal send: " + e.Err.Error() }
func (e *SendError) Unwrap() error { return e.Err }

// StatusCode returns the HTTP status carried by err, or 0 when the portal never answered.
func StatusCode(err error) int {
	var sErr *StatusError
	if errors.As(err, &sErr) {
		return sErr.Code
	}
	return 0
}

// IsTimeout reports whether err comes from a call that exceeded its timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nErr net.Error
	return errors.As(err, &nErr) && nErr.Timeout()
}

func IsAuthError(err error) bool {
	var aErr *AuthError
	return errors.As(err, &aErr)
}
