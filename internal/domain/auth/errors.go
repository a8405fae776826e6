package auth

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind categorizes an authentication failure.
// The distinction exists for logs and metrics; callers show one generic message.
type ErrorKind string

const (
	KindUserNotFound       ErrorKind = "user_not_found"
	KindInvalidCredentials ErrorKind = "invalid_credentials"
	KindRoleNotFound       ErrorKind = "role_not_found"
	KindNetwork            ErrorKind = "network_error"
	KindUnknown            ErrorKind = "unknown"
)

// Error is a typed authentication error.
// Two errors match under errors.Is when their kinds are equal.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Err == nil
}

// Sentinels for errors.Is comparisons.
var (
	ErrUserNotFound       = &Error{Kind: KindUserNotFound}
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials}
	ErrRoleNotFound       = &Error{Kind: KindRoleNotFound}
	ErrNetwork            = &Error{Kind: KindNetwork}
	ErrUnknown            = &Error{Kind: KindUnknown}
)

var (
	// ErrLoginSuperseded is returned when a newer Login or a Logout started while this Login was in flight.
	ErrLoginSuperseded = &Error{Kind: KindUnknown, Op: "login", Err: errors.New("superseded by a newer session attempt")}
	// ErrNotAuthenticated is returned by operations that need an active session.
	ErrNotAuthenticated = errors.New("no active session")
	// ErrNoProviderSession is returned when provider metadata is requested for a fallback or synthetic session.
	ErrNoProviderSession = errors.New("session is not backed by the credential provider")
)

// Errorf builds a typed error for op wrapping a formatted cause.
func Errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap tags err with kind unless it already carries an auth kind.
func Wrap(kind ErrorKind, op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf classifies err. Context cancellation and deadlines count as network failures;
// anything untyped is Unknown.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	return KindUnknown
}
