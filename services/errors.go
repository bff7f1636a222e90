package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure a store operation can report
type ErrorKind string

const (
	KindValidation      ErrorKind = "validation"
	KindNotFound        ErrorKind = "not_found"
	KindForbidden       ErrorKind = "forbidden"
	KindAlreadyFriends  ErrorKind = "already_friends"
	KindDuplicate       ErrorKind = "duplicate_request"
	KindAlreadyResolved ErrorKind = "already_resolved"
	KindRemote          ErrorKind = "remote"
)

// Sentinels for errors.Is against a kind
var (
	ErrValidation      = &StoreError{Kind: KindValidation}
	ErrNotFound        = &StoreError{Kind: KindNotFound}
	ErrForbidden       = &StoreError{Kind: KindForbidden}
	ErrAlreadyFriends  = &StoreError{Kind: KindAlreadyFriends}
	ErrDuplicate       = &StoreError{Kind: KindDuplicate}
	ErrAlreadyResolved = &StoreError{Kind: KindAlreadyResolved}
	ErrRemote          = &StoreError{Kind: KindRemote}
)

// StoreError - user-facing message plus kind; Err keeps the underlying cause
type StoreError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *StoreError) Error() string {
	if e.Err != nil && e.Kind == KindRemote {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is matches any StoreError of the same kind
func (e *StoreError) Is(target error) bool {
	var t *StoreError
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// UserMessage is the text shown to the user; remote causes stay in the logs
func (e *StoreError) UserMessage() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return e.Message
}

func newError(kind ErrorKind, format string, args ...interface{}) error {
	return &StoreError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func remoteError(message string, err error) error {
	return &StoreError{Kind: KindRemote, Message: message, Err: err}
}

// KindOf returns the kind of err, KindRemote for foreign errors
func KindOf(err error) ErrorKind {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindRemote
}

// UserMessage extracts the message to surface for any error
func UserMessage(err error) string {
	var se *StoreError
	if errors.As(err, &se) {
		return se.UserMessage()
	}
	return "something went wrong, please try again"
}
