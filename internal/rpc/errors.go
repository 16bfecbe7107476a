package rpc

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoUID is the cause recorded when the server accepts the login request
// but returns no user id.
var ErrNoUID = errors.New("authentication response carried no uid")

// AuthenticationError reports a failed login: bad credentials, unreachable
// server, or a malformed response. It is never retried.
type AuthenticationError struct {
	URL      string
	Database string
	Login    string
	Err      error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authenticate %s@%s (db=%s): %v", e.Login, e.URL, e.Database, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

// SessionExpiredError reports an expired session that could not be
// recovered by the single automatic re-authentication.
type SessionExpiredError struct {
	Err error
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("session expired: %v", e.Err)
}

func (e *SessionExpiredError) Unwrap() error { return e.Err }

// NotAuthenticatedError reports a privileged call made on a session that
// is not authenticated and could not be authenticated on demand.
type NotAuthenticatedError struct {
	Err error
}

func (e *NotAuthenticatedError) Error() string {
	return fmt.Sprintf("not authenticated: %v", e.Err)
}

func (e *NotAuthenticatedError) Unwrap() error { return e.Err }

// RPCError is a fault reported by the remote server in the response
// envelope's error member.
type RPCError struct {
	Endpoint string
	Model    string
	Method   string
	Fault    Fault
}

func (e *RPCError) Error() string {
	var b strings.Builder
	b.WriteString("rpc fault")
	if e.Model != "" {
		fmt.Fprintf(&b, " in %s.%s", e.Model, e.Method)
	}
	fmt.Fprintf(&b, ": %d %s", e.Fault.Code, e.Fault.Message)
	if e.Fault.Data.Name != "" {
		fmt.Fprintf(&b, " (%s", e.Fault.Data.Name)
		if e.Fault.Data.Message != "" {
			fmt.Fprintf(&b, ": %s", e.Fault.Data.Message)
		}
		b.WriteByte(')')
	}
	return b.String()
}

// TransportError is a network-level failure: connection refused, timeout,
// non-200 status, or an undecodable response body.
type TransportError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transport %s: HTTP %d: %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("transport %s: %v", e.Endpoint, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline or client timeout.
func (e *TransportError) Timeout() bool {
	var t interface{ Timeout() bool }
	if errors.As(e.Err, &t) {
		return t.Timeout()
	}
	return false
}

// IsSessionExpired returns true if err is, or wraps, an unrecovered
// session expiry.
func IsSessionExpired(err error) bool {
	var se *SessionExpiredError
	return errors.As(err, &se)
}

// IsAuthentication returns true if err is, or wraps, a login failure.
func IsAuthentication(err error) bool {
	var ae *AuthenticationError
	return errors.As(err, &ae)
}

// AsRPCError extracts the remote fault from err, if any.
func AsRPCError(err error) (*RPCError, bool) {
	var re *RPCError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
