package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is a stable, machine-readable failure category.
type ErrorKind string

const (
	KindUnknown           ErrorKind = "UNKNOWN"
	KindNotFound          ErrorKind = "NOT_FOUND"
	KindDuplicateNickname ErrorKind = "DUPLICATE_NICKNAME"
	KindInvalidMnemonic   ErrorKind = "INVALID_MNEMONIC"
	KindNoLinkedProfile   ErrorKind = "NO_LINKED_PROFILE"
	KindStoreFailure      ErrorKind = "STORE_FAILURE"
	KindAlreadyExists     ErrorKind = "ALREADY_EXISTS"
	KindUnsafeDelete      ErrorKind = "UNSAFE_DELETE"
	KindInvalidArgument   ErrorKind = "INVALID_ARGUMENT"
)

// Error is the error type returned across the identity layer.
type Error struct {
	Kind    ErrorKind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// holds for every not-found failure regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Message == ""
}

// Sentinels for errors.Is.
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrDuplicateNickname = &Error{Kind: KindDuplicateNickname}
	ErrInvalidMnemonic   = &Error{Kind: KindInvalidMnemonic}
	ErrNoLinkedProfile   = &Error{Kind: KindNoLinkedProfile}
	ErrStoreFailure      = &Error{Kind: KindStoreFailure}
	ErrAlreadyExists     = &Error{Kind: KindAlreadyExists}
	ErrUnsafeDelete      = &Error{Kind: KindUnsafeDelete}
	ErrInvalidArgument   = &Error{Kind: KindInvalidArgument}
)

// E builds an *Error.
func E(kind ErrorKind, op, message string) error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap builds an *Error around cause.
func Wrap(kind ErrorKind, op, message string, cause error) error {
	return &Error{Kind: kind, Op: op, Message: message, Err: cause}
}

// StoreFailure wraps err as a store failure unless it already carries a kind.
func StoreFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *Error
	if errors.As(err, &de) {
		return err
	}
	return &Error{Kind: KindStoreFailure, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}
