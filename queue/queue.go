// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package queue implements a local, file-backed durable queue: a Sink
// appends records into time-named, content-addressed, rotated files
// under a base directory, and a Source walks those files in sorted
// order to replay the records they hold.
//
// A queue file's name has the form YYYY/MM/DD/HHMMSS, optionally
// followed by an underscore and the hex content hash of the file once
// it has been finalized (closed with at least one record written). An
// unfinalized name never collides with a finalized one, since the
// finalized name is always strictly longer.
package queue

import (
	"path/filepath"
	"strings"
	"time"
)

// Record is the string-keyed map of values a queue entry is built from.
type Record = map[string]interface{}

const timestampLayout = "2006/01/02/150405"

// hashSeparator divides a finalized queue file's timestamp from its
// content-hash suffix.
const hashSeparator = "_"

func nowPath(base string, now time.Time) string {
	return filepath.Join(base, now.UTC().Format(timestampLayout))
}

// hasHashSuffix reports whether the last element of name (a filename or
// a relative queue path) already carries a finalized hash suffix.
func hasHashSuffix(name string) bool {
	return strings.Contains(filepath.Base(name), hashSeparator)
}
