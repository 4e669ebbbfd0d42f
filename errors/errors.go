package errors

import (
	stderrors "errors"
	"fmt"
)

// Is re-exports the stdlib check so callers need a single errors import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// Validation: the request itself is wrong, never retried.
var (
	ErrEmptyBody     = fmt.Errorf("message body is empty")
	ErrSelfAddressed = fmt.Errorf("sender and recipient are the same user")
)

// Authorization: the caller is not allowed to touch the target rows.
var (
	ErrNotRecipient   = fmt.Errorf("message does not belong to this recipient")
	ErrNotParticipant = fmt.Errorf("user is not a participant of this thread")
)

// Authentication.
var (
	ErrNoSession    = fmt.Errorf("no active session")
	ErrInvalidToken = fmt.Errorf("invalid session token")
)

// Transient: the caller may retry or reconcile.
var (
	ErrFeedClosed     = fmt.Errorf("feed subscriber is closed")
	ErrSessionLagging = fmt.Errorf("session fell behind the feed")
)

var (
	ErrWorkerPanic    = fmt.Errorf("worker panic")
	ErrUnknownMessage = fmt.Errorf("message id not found")
)
