package game

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for the caller: bad input, wrong state,
// unreachable store, or a half-applied admin sequence.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindGuard           Kind = "guard_violation"
	KindUnavailable     Kind = "store_unavailable"
	KindPartialSequence Kind = "partial_sequence_failure"
	KindNotFound        Kind = "not_found"
	KindUnauthorized    Kind = "unauthorized"
	KindInternal        Kind = "internal"
)

// Error is the tagged result returned by every rejected operation.
type Error struct {
	Kind    Kind              `json:"kind"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Meta    map[string]string `json:"meta,omitempty"`
	Cause   error             `json:"-"`
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches by code so wrapped copies compare equal to the sentinels below.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Retryable reports whether repeating the same request may succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindUnavailable || e.Kind == KindPartialSequence
}

func (e *Error) with(meta map[string]string) *Error {
	c := *e
	c.Meta = meta
	return &c
}

var (
	ErrSessionNotFound  = &Error{Kind: KindNotFound, Code: "SESSION_NOT_FOUND", Message: "session not found"}
	ErrInvalidCode      = &Error{Kind: KindValidation, Code: "INVALID_SESSION_CODE", Message: "malformed session code"}
	ErrInvalidScore     = &Error{Kind: KindValidation, Code: "INVALID_SCORE", Message: "score must be between 1 and 10"}
	ErrUnknownSlot      = &Error{Kind: KindValidation, Code: "UNKNOWN_PARTICIPANT", Message: "unknown participant slot"}
	ErrEmptyTitle       = &Error{Kind: KindValidation, Code: "EMPTY_TITLE", Message: "title must not be empty"}
	ErrNoSongs          = &Error{Kind: KindValidation, Code: "NO_SONGS", Message: "song list is empty"}
	ErrTooManySongs     = &Error{Kind: KindValidation, Code: "TOO_MANY_SONGS", Message: "song list is too long"}
	ErrInvalidPhase     = &Error{Kind: KindGuard, Code: "INVALID_PHASE", Message: "invalid phase for action"}
	ErrStatusChanged    = &Error{Kind: KindGuard, Code: "STATUS_CHANGED", Message: "session changed concurrently"}
	ErrScoringClosed    = &Error{Kind: KindGuard, Code: "SCORING_CLOSED", Message: "scoring is not open for this song"}
	ErrNotAllSubmitted  = &Error{Kind: KindGuard, Code: "NOT_ALL_SUBMITTED", Message: "not every participant has submitted"}
	ErrSlotClaimed      = &Error{Kind: KindGuard, Code: "SLOT_ALREADY_CLAIMED", Message: "participant slot already claimed"}
	ErrSessionExists    = &Error{Kind: KindGuard, Code: "SESSION_EXISTS", Message: "session code already in use"}
	ErrNotHost          = &Error{Kind: KindUnauthorized, Code: "NOT_HOST", Message: "not host"}
	ErrNotBound         = &Error{Kind: KindUnauthorized, Code: "DEVICE_NOT_BOUND", Message: "device is not bound to this participant"}
	ErrStoreUnavailable = &Error{Kind: KindUnavailable, Code: "STORE_UNAVAILABLE", Message: "score store unavailable"}
	ErrPartialReplace   = &Error{Kind: KindPartialSequence, Code: "PARTIAL_SONG_REPLACE", Message: "song list was cleared but not fully re-inserted"}
)

// Unavailable wraps a driver or transport failure.
func Unavailable(op string, cause error) error {
	if cause == nil {
		return nil
	}
	var e *Error
	if errors.As(cause, &e) {
		return cause
	}
	c := *ErrStoreUnavailable
	c.Message = fmt.Sprintf("%s: %s", ErrStoreUnavailable.Message, op)
	c.Cause = cause
	return &c
}

// PartialReplace reports a song replacement that failed after the delete step.
func PartialReplace(code string, deleted, inserted int, cause error) error {
	c := ErrPartialReplace.with(map[string]string{
		"code":     code,
		"deleted":  fmt.Sprint(deleted),
		"inserted": fmt.Sprint(inserted),
	})
	c.Cause = cause
	return c
}

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// AsError converts any error into the tagged result form.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{Kind: KindInternal, Code: "INTERNAL", Message: "an unexpected error occurred", Cause: err}
}
