package auth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jw6ventures/foodlog/internal/supabase"
)

var (
	// ErrInvalidCredentials matches sign-in rejections for a bad email/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNoSession is returned by operations that need an established session.
	ErrNoSession = errors.New("no session")
	// ErrSessionReplaced is returned by Refresh when the session was signed out
	// or replaced while the refresh was in flight. The new tokens are dropped.
	ErrSessionReplaced = errors.New("session replaced during refresh")
	// ErrTokenExpired is returned by verifiers for a well-formed but expired token.
	ErrTokenExpired = errors.New("access token expired")
)

// Error is a failed auth operation. Message is shown to the user; when the auth
// service rejected the request it is the service's own wording.
type Error struct {
	Op      string
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	if target != ErrInvalidCredentials {
		return false
	}
	switch e.Code {
	case "invalid_credentials", "invalid_grant":
		return true
	}
	return false
}

// Rejected reports whether the auth service answered with a client error, as
// opposed to being unreachable or failing internally.
func (e *Error) Rejected() bool {
	return e.Status >= http.StatusBadRequest && e.Status < http.StatusInternalServerError
}

func wrapError(op, fallback string, err error) error {
	if err == nil {
		return nil
	}
	var authErr *Error
	if errors.As(err, &authErr) {
		return err
	}
	var apiErr *supabase.APIError
	if errors.As(err, &apiErr) {
		return &Error{Op: op, Status: apiErr.Status, Code: apiErr.Code, Message: apiErr.Message, Err: err}
	}
	return &Error{Op: op, Message: fallback, Err: err}
}
