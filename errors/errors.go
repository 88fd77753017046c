// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package errors implements an error type that defines standard,
// interpretable error codes for dqp's failure conditions. Errors can be
// chained: one error can be attributed to another, and the full chain is
// printed by Error(). It is a direct reduction of grailbio/base's errors
// package: severities, errno mapping, and gob/verror interop are dropped
// since nothing in this module crosses a process boundary or talks to
// Vanadium RPC.
package errors

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Separator defines the separation string inserted between chained errors
// in error messages.
var Separator = ":\n\t"

// Kind defines the type of error. Kinds are semantically meaningful and may
// be interpreted by the receiver of an error, e.g. to decide whether a
// Source.UnlinkTo failure should be treated as fatal.
type Kind int

const (
	// Other indicates an unclassified error.
	Other Kind = iota
	// InvalidValue indicates a value the codec refuses to encode, such as
	// an ordered container that msgpack cannot distinguish from a plain
	// sequence once decoded.
	InvalidValue
	// NotFound indicates a missing queue directory, a missing prefix match
	// in Source.UnlinkTo, or a missing source on Project.OpenSource.
	NotFound
	// Corrupt indicates a decode failure partway through a record stream.
	Corrupt
	// IoError indicates a filesystem error underneath an otherwise valid
	// operation.
	IoError
	// StateError indicates an internal invariant was violated, such as a
	// same-second queue file path collision in Sink.open.

	StateError

	maxKind
)

var kinds = map[Kind]string{
	Other:        "unknown error",
	InvalidValue: "invalid value",
	NotFound:     "not found",
	Corrupt:      "corrupt",
	IoError:      "io error",
	StateError:   "invalid state",
}

// kindStdErrs maps some Kinds to the standard library's equivalent, so that
// the standard library's errors.Is(err, os.ErrNotExist) keeps working
// against an *Error built by this package.
var kindStdErrs = map[Kind]error{
	NotFound: os.ErrNotExist,
}

// String returns a human-readable explanation of the error kind k.
func (k Kind) String() string {
	return kinds[k]
}

// Error is dqp's standard error type, carrying a kind and an optional
// message and cause. Errors should be constructed with E, which interprets
// its arguments according to a set of rules.
type Error struct {
	// Kind is the error's classification.
	Kind Kind
	// Message is an optional human-readable message.
	Message string
	// Err is the error that caused this one, if any. Chains of *Error
	// print in full by Error().
	Err error
}

// E constructs a new error from the given arguments, interpreted according
// to their types:
//
//   - Kind: sets the error's kind
//   - string: appended to the error's message, space separated
//   - *Error: copied and set as the error's cause
//   - error: set as the error's cause
//
// If no Kind is given but a cause is, and the cause is itself an *Error,
// the returned error inherits that error's kind (and the original's kind
// resets to Other, as in the chained usage `return errors.E("closing file",
// err)`). Otherwise, if the cause satisfies os.IsNotExist, the kind
// defaults to NotFound.
func E(args ...interface{}) error {
	if len(args) == 0 {
		panic("errors.E: no args")
	}
	e := new(Error)
	var msg strings.Builder
	for _, arg := range args {
		switch arg := arg.(type) {
		case Kind:
			e.Kind = arg
		case string:
			if msg.Len() > 0 {
				msg.WriteString(" ")
			}
			msg.WriteString(arg)
		case *Error:
			cp := *arg
			e.Err = &cp
		case error:
			e.Err = arg
		default:
			return &Error{
				Kind:    InvalidValue,
				Message: fmt.Sprintf("errors.E: unsupported argument type %T: %v", arg, arg),
			}
		}
	}
	e.Message = msg.String()
	if e.Err == nil {
		return e
	}
	if prev, ok := e.Err.(*Error); ok {
		if e.Kind == Other {
			e.Kind = prev.Kind
			prev.Kind = Other
		}
		return e
	}
	if e.Kind == Other {
		switch {
		case os.IsNotExist(e.Err) || errors.Is(e.Err, os.ErrNotExist):
			e.Kind = NotFound
		case errors.Is(e.Err, context.Canceled), errors.Is(e.Err, context.DeadlineExceeded):
			e.Kind = IoError
		}
	}
	return e
}

// Recover recovers any error into an *Error, wrapping it with E if it is
// not already one.
func Recover(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return E(err).(*Error)
}

// Error implements error, printing the full chain separated by Separator.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b bytes.Buffer
	e.writeError(&b)
	return b.String()
}

func (e *Error) writeError(b *bytes.Buffer) {
	if e.Message != "" {
		b.WriteString(e.Message)
	}
	if e.Kind != Other {
		padSpace(b)
		b.WriteByte('(')
		b.WriteString(e.Kind.String())
		b.WriteByte(')')
	}
	if e.Err == nil {
		return
	}
	if err, ok := e.Err.(*Error); ok {
		pad(b, Separator)
		b.WriteString(err.Error())
	} else {
		pad(b, ": ")
		b.WriteString(e.Err.Error())
	}
}

func padSpace(b *bytes.Buffer) {
	if b.Len() > 0 {
		b.WriteByte(' ')
	}
}

func pad(b *bytes.Buffer, sep string) {
	if b.Len() > 0 {
		b.WriteString(sep)
	}
}

// Unwrap returns e's cause, if any. It lets the standard library's
// errors.Unwrap and errors.As work with *Error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether e's kind corresponds to the standard-library sentinel
// err, e.g. errors.Is(e, os.ErrNotExist) for a NotFound error.
func (e *Error) Is(err error) bool {
	return err != nil && err == kindStdErrs[e.Kind]
}

// GetKind returns the Kind of err, if it is (or wraps) an *Error built by E,
// walking the chain past any Other-kind wrapper. Otherwise it returns
// Other.
func GetKind(err error) Kind {
	for err != nil {
		e, ok := err.(*Error)
		if !ok {
			return Other
		}
		if e.Kind != Other {
			return e.Kind
		}
		err = e.Err
	}
	return Other
}

// Is reports whether err's kind is k.
func Is(k Kind, err error) bool {
	return err != nil && GetKind(err) == k
}

// New is synonymous with the standard library's errors.New, provided here
// so that callers need import only this package.
func New(msg string) error {
	return errors.New(msg)
}
