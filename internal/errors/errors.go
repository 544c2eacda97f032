// Package errors holds the domain error taxonomy and the mapping from
// domain/infra errors onto transport responses.
package errors

import (
	"errors"
)

// Kind classifies an error for transport mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindAuth
	KindForbidden
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindAuth:
		return "auth"
	case KindForbidden:
		return "forbidden"
	case KindPersistence:
		return "persistence"
	default:
		return "internal"
	}
}

// Error is a classified error with a client-safe message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Err.Error() != e.Message {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match two sentinels of the same kind and message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message && t.Err == nil
}

func newSentinel(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Matching and discovery.
var (
	ErrDuplicateSwipe = newSentinel(KindConflict, "Already swiped on this user")
	ErrTargetNotFound = newSentinel(KindNotFound, "User not found")
	ErrInvalidTarget  = newSentinel(KindValidation, "Cannot target yourself")
	ErrInvalidAction  = newSentinel(KindValidation, "Action must be like or dislike")
	ErrUserNotFound   = newSentinel(KindNotFound, "Current user not found")
)

// Location and profile filters.
var (
	ErrInvalidLocation = newSentinel(KindValidation, "Invalid coordinates")
	ErrMissingLocation = newSentinel(KindValidation, "Latitude and longitude are required")
	ErrInvalidRadius   = newSentinel(KindValidation, "Radius must be between 0 and 150 KM")
)

// Chat.
var (
	ErrEmptyBody          = newSentinel(KindValidation, "Message cannot be empty")
	ErrReceiverNotFound   = newSentinel(KindNotFound, "Receiver not found")
	ErrInvalidMessageType = newSentinel(KindValidation, "Message type must be text, image or location")
	ErrInvalidRoom        = newSentinel(KindValidation, "Invalid room id")
	ErrNotRoomMember      = newSentinel(KindForbidden, "Not a member of this room")
)

// Authentication.
var (
	ErrAuthenticationFailed = newSentinel(KindAuth, "Authentication failed")
	ErrTokenExpired         = newSentinel(KindAuth, "Token expired")
	ErrInvalidToken         = newSentinel(KindAuth, "Invalid token")
)

// Validation builds a validation error with a custom message.
func Validation(msg string) error {
	return &Error{Kind: KindValidation, Message: msg}
}

// Wrap attaches a cause to a sentinel; errors.Is still matches the sentinel.
func Wrap(sentinel *Error, cause error) error {
	return &Error{Kind: sentinel.Kind, Message: sentinel.Message, Err: cause}
}

// KindOf returns the Kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
