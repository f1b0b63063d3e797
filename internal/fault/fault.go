// Package fault classifies failures that cross the reconciliation boundary.
//
// Every adapter error is one of:
//   - Transient: network or timeout, the event is retried on redelivery
//   - Rejected: the remote system refused the request, retrying cannot help
//   - LedgerIO: the local ledger could not be read or written
//
// Malformed is produced by the event normalizer only.
package fault

import (
	"errors"
	"fmt"
)

// Class categorizes a failure.
type Class string

const (
	ClassNone      Class = ""
	ClassMalformed Class = "MALFORMED_EVENT"
	ClassTransient Class = "TRANSIENT"
	ClassRejected  Class = "REJECTED"
	ClassLedgerIO  Class = "LEDGER_IO"
)

func (c Class) String() string {
	if c == ClassNone {
		return "NONE"
	}
	return string(c)
}

// Error wraps a cause with its class and the operation that failed.
type Error struct {
	Class Class
	Op    string
	Err   error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Class, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient wraps err as a retryable failure.
func Transient(op string, err error) *Error {
	return &Error{Class: ClassTransient, Op: op, Err: err}
}

// Rejected wraps err as a permanent refusal by the remote system.
func Rejected(op string, err error) *Error {
	return &Error{Class: ClassRejected, Op: op, Err: err}
}

// LedgerIO wraps err as a local durable-store failure.
func LedgerIO(op string, err error) *Error {
	return &Error{Class: ClassLedgerIO, Op: op, Err: err}
}

// Malformed wraps err as an unusable event payload.
func Malformed(op string, err error) *Error {
	return &Error{Class: ClassMalformed, Op: op, Err: err}
}

// ClassOf returns the class of err. Unclassified errors count as Transient so
// that an unknown failure never mutates the ledger.
func ClassOf(err error) Class {
	if err == nil {
		return ClassNone
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Class
	}
	var ce interface{ FaultClass() Class }
	if errors.As(err, &ce) {
		return ce.FaultClass()
	}
	return ClassTransient
}

// IsTransient reports whether err should be retried on redelivery.
func IsTransient(err error) bool {
	return ClassOf(err) == ClassTransient
}

// IsRejected reports whether err is a permanent refusal.
func IsRejected(err error) bool {
	return ClassOf(err) == ClassRejected
}

// IsLedgerIO reports whether err came from the local ledger.
func IsLedgerIO(err error) bool {
	return ClassOf(err) == ClassLedgerIO
}
