// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package errors_test

import (
	"context"
	goerrors "errors"
	"os"
	"testing"

	"github.com/grailbio/dqp/errors"
)

func TestError(t *testing.T) {
	_, err := os.Open("/dev/notexist")
	e1 := errors.E(errors.NotFound, "opening file", err)
	if got, want := e1.Error(), "opening file (not found): open /dev/notexist: no such file or directory"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	e2 := errors.E(err)
	if got, want := e2.Error(), "(not found): open /dev/notexist: no such file or directory"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	for _, e := range []error{e1, e2} {
		if !errors.Is(errors.NotFound, e) {
			t.Errorf("error %v should be NotFound", e)
		}
	}
}

func TestErrorChaining(t *testing.T) {
	_, err := os.Open("/dev/notexist")
	err = errors.E(errors.IoError, "failed to open file", err)
	err = errors.E("cannot proceed", err)
	if got, want := err.Error(), "cannot proceed (io error):\n\tfailed to open file: open /dev/notexist: no such file or directory"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestEInfersNotFound(t *testing.T) {
	_, err := os.Open("/dev/notexist")
	wrapped := errors.E("opening queue dir", err)
	if !errors.Is(errors.NotFound, wrapped) {
		t.Errorf("error %v should infer NotFound from os.IsNotExist", wrapped)
	}
	if !goerrors.Is(wrapped, os.ErrNotExist) {
		t.Errorf("error %v should satisfy errors.Is(os.ErrNotExist)", wrapped)
	}
}

func TestMessage(t *testing.T) {
	for _, c := range []struct {
		err     error
		message string
	}{
		{errors.E("hello"), "hello"},
		{errors.E("hello", "world"), "hello world"},
	} {
		if got, want := c.err.Error(), c.message; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestRecoverWrapsPlainError(t *testing.T) {
	plain := goerrors.New("boom")
	e := errors.Recover(plain)
	if e.Kind != errors.Other {
		t.Errorf("got kind %v, want Other", e.Kind)
	}
	if e.Err != plain {
		t.Errorf("got cause %v, want %v", e.Err, plain)
	}
}

func TestUnwrap(t *testing.T) {
	inner := goerrors.New("root cause")
	err := errors.E(errors.IoError, inner)
	if got := goerrors.Unwrap(err); got != inner {
		t.Errorf("got %v, want %v", got, inner)
	}
}

func TestStdInterop(t *testing.T) {
	tests := []struct {
		name    string
		makeErr func() (cleanUp func(), _ error)
		kind    errors.Kind
	}{
		{
			"not exist",
			func() (cleanUp func(), _ error) {
				_, err := os.Open("/dev/notexist")
				return func() {}, err
			},
			errors.NotFound,
		},
		{
			"canceled context",
			func() (cleanUp func(), _ error) {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				<-ctx.Done()
				return func() {}, ctx.Err()
			},
			errors.IoError,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			cleanUp, err := test.makeErr()
			defer cleanUp()
			wrapped := errors.E(err)
			if !errors.Is(test.kind, wrapped) {
				t.Errorf("got kind %v, want %v", errors.GetKind(wrapped), test.kind)
			}
		})
	}
}

func TestGetKindWalksOtherWrappers(t *testing.T) {
	inner := errors.E(errors.Corrupt, "bad record")
	outer := errors.E("decoding cursor", inner)
	if got, want := errors.GetKind(outer), errors.Corrupt; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
