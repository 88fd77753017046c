// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package fileio holds small defer-able Close helpers for dqp code that
// owns an *os.File alongside other work (diskcache's Save and Load):
// closing the file is rarely a function's only obligation,
// and its error needs to compose with whatever error the rest of
// Close already produced.
package fileio

import (
	"fmt"
	"io"

	"github.com/grailbio/dqp/errors"
)

// CloseAndReport is a defer-able helper that closes f and folds any
// resulting error into *err, chaining rather than discarding if *err is
// already set. Example usage:
//
//	func (s *Sink) Close() (err error) {
//	  defer fileio.CloseAndReport(s.file, &err)
//	  ...
//	}
func CloseAndReport(f io.Closer, err *error) {
	err2 := f.Close()
	if err2 == nil {
		return
	}
	if *err != nil {
		*err = errors.E(*err, fmt.Sprintf("second error in Close: %v", err2))
		return
	}
	*err = err2
}
