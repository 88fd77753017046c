// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package diskcache

import (
	"io"
	"os"
	"path/filepath"

	"github.com/grailbio/dqp/codec"
	"github.com/grailbio/dqp/errors"
	"github.com/grailbio/dqp/fileio"
)

// Save packs values and writes them to path, truncating any existing
// file there unless append is true, in which case values are appended
// to what is already there. Save holds path's mutex for its whole
// duration: it is one of the three lock-holding entry points onto a
// cache path, alongside Load and a Sequence's tee.
//
// Every value is validated before path is touched at all, so a value
// codec rejects (a codec.Tuple, at any depth) never creates an empty
// file or truncates an existing one.
func Save[T any](path string, values []T, append bool) (err error) {
	for _, v := range values {
		if err := codec.Validate(v); err != nil {
			return err
		}
	}
	mu := lockFor(path)
	mu.Lock()
	defer mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
		return errors.E(errors.IoError, "diskcache: creating directory for "+path, err)
	}
	flags := os.O_WRONLY | os.O_CREATE
	if append {
		flags |= os.O_APPEND
	} else {
		flags |= os.O_TRUNC
	}
	f, openErr := os.OpenFile(path, flags, 0o666)
	if openErr != nil {
		return errors.E(errors.IoError, "diskcache: opening "+path, openErr)
	}
	defer fileio.CloseAndReport(f, &err)
	enc := codec.NewEncoder(f)
	for _, v := range values {
		if err := enc.Encode(v); err != nil {
			return err
		}
	}
	return nil
}

// Load reads and decodes every value stored at path, holding path's
// mutex for its whole duration.
func Load[T any](path string) (values []T, err error) {
	mu := lockFor(path)
	mu.Lock()
	defer mu.Unlock()
	f, openErr := os.Open(path)
	if openErr != nil {
		return nil, errors.E(errors.IoError, "diskcache: opening "+path, openErr)
	}
	defer fileio.CloseAndReport(f, &err)
	dec := codec.NewDecoder(f)
	for {
		var v T
		decErr := dec.Decode(&v)
		if decErr == io.EOF {
			return values, nil
		}
		if decErr != nil {
			return values, decErr
		}
		values = append(values, v)
	}
}
