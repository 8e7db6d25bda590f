package chat

import (
	"errors"
	"fmt"
)

// ErrorKind classifies turn failures for the transport layer.
type ErrorKind string

const (
	KindStorage    ErrorKind = "storage"    // persistence unavailable or constraint violated
	KindProvider   ErrorKind = "provider"   // completion call failed, timed out, or unparseable
	KindValidation ErrorKind = "validation" // malformed request, rejected before any store or provider call
)

// Error wraps a failure from one orchestration step with its kind. Errors are
// never retried or swallowed inside the service; every failure aborts the
// turn and surfaces here.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the classification of err, or "" for untyped errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func storageErr(op string, err error) error {
	return &Error{Kind: KindStorage, Op: op, Err: err}
}

func providerErr(op string, err error) error {
	return &Error{Kind: KindProvider, Op: op, Err: err}
}

func validationErr(msg string) error {
	return &Error{Kind: KindValidation, Err: errors.New(msg)}
}
