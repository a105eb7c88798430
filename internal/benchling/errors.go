package benchling

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is.
var (
	ErrRemoteUnavailable = errors.New("benchling: remote unavailable")
	ErrRemoteRejected    = errors.New("benchling: remote rejected request")
)

// UnavailableError is a transport failure: connection error, timeout or a
// cancelled limiter wait. The request may or may not have reached Benchling.
type UnavailableError struct {
	Op  string
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("benchling: %s canvas: remote unavailable: %v", e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrRemoteUnavailable.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrRemoteUnavailable
}

// RejectedError is a non-2xx response from Benchling.
type RejectedError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("benchling: %s canvas: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

// Is lets errors.Is match ErrRemoteRejected.
func (e *RejectedError) Is(target error) bool {
	return target == ErrRemoteRejected
}

// IsAuth returns true when the token was refused.
func (e *RejectedError) IsAuth() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// IsNotFound returns true when the canvas or feature does not exist.
func (e *RejectedError) IsNotFound() bool {
	return e.StatusCode == 404
}

// IsRateLimited returns true for 429 responses.
func (e *RejectedError) IsRateLimited() bool {
	return e.StatusCode == 429
}
