// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package queue

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/grailbio/dqp/codec"
	"github.com/grailbio/dqp/errors"
	"github.com/grailbio/dqp/xzstd"
)

// Cursor pulls records from a sequence of queue files in order. It
// implements seq.Iterator[Record]. Next returns each record with the
// relative file it came from and its 0-based index within that file
// available through File and Index, updated before the record is
// returned (so that, after a partial iteration, File/Index name the
// most recently delivered record, not the one about to be read).
type Cursor struct {
	inputPath string
	names     []string
	fileIdx   int

	// skipFirstFileBelow causes records with index < this value to be
	// skipped (without updating File/Index) while reading names[0].
	skipFirstFileBelow int

	dec    *codec.Decoder
	closer io.Closer
	curFmt string // relative path of the file currently being read

	curFileIndex int // index of the next record to be read, 0-based
	lastFile     string
	lastIndex    int
	hasLast      bool
}

func newCursor(inputPath string, names []string) *Cursor {
	return &Cursor{inputPath: inputPath, names: names}
}

// Next returns the next record in the cursor's sequence, or ok == false
// once every queue file has been exhausted.
func (c *Cursor) Next(ctx context.Context) (Record, bool, error) {
	for {
		if c.dec == nil {
			if c.fileIdx >= len(c.names) {
				return nil, false, nil
			}
			if err := c.openNext(); err != nil {
				return nil, false, err
			}
		}
		var rec Record
		err := c.dec.Decode(&rec)
		if err == io.EOF {
			if err := c.closer.Close(); err != nil {
				return nil, false, errors.E(errors.IoError, "queue: closing "+c.curFmt, err)
			}
			c.dec = nil
			c.fileIdx++
			continue
		}
		if err != nil {
			return nil, false, err
		}
		idx := c.curFileIndex
		c.curFileIndex++
		if c.fileIdx == 0 && idx < c.skipFirstFileBelow {
			continue
		}
		c.lastFile, c.lastIndex, c.hasLast = c.curFmt, idx, true
		return rec, true, nil
	}
}

func (c *Cursor) openNext() error {
	name := c.names[c.fileIdx]
	full := filepath.Join(c.inputPath, filepath.FromSlash(name))
	f, err := os.Open(full)
	if err != nil {
		return errors.E(errors.IoError, "queue: opening "+full, err)
	}
	var r io.Reader = f
	closer := io.Closer(f)
	if strings.HasSuffix(name, ".zst") {
		zr, err := xzstd.NewReader(f)
		if err != nil {
			f.Close()
			return errors.E(errors.IoError, "queue: opening compressed "+full, err)
		}
		r = zr
		closer = multiCloser{zr, f}
	}
	c.dec = codec.NewDecoder(r)
	c.closer = closer
	c.curFmt = name
	c.curFileIndex = 0
	return nil
}

// File returns the relative path of the file holding the most recently
// returned record, or "" if Next has not yet returned a record.
func (c *Cursor) File() string {
	return c.lastFile
}

// Index returns the 0-based index, within its file, of the most
// recently returned record.
func (c *Cursor) Index() int {
	return c.lastIndex
}

// HasAdvanced reports whether Next has returned a record at least once.
func (c *Cursor) HasAdvanced() bool {
	return c.hasLast
}

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var first error
	for _, c := range m {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
