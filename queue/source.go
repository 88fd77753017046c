// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package queue

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/grailbio/dqp/errors"
	"github.com/grailbio/dqp/log"
)

// SourceOption configures a Source constructed by NewSource.
type SourceOption func(*sourceConfig)

type sourceConfig struct {
	startPrefix string
	startIndex  int
	hasStart    bool
}

// WithStartingFrom makes the Source's default Cursor begin at index
// within the first queue file whose relative path starts with prefix,
// equivalent to calling AllFrom(prefix, index) instead of All().
func WithStartingFrom(prefix string, index int) SourceOption {
	return func(c *sourceConfig) {
		c.startPrefix = prefix
		c.startIndex = index
		c.hasStart = true
	}
}

// Source is a read-only view over a queue's files. It is safe to use
// concurrently with a single Sink writing to the same base directory,
// though per spec it may then observe records from the Sink's
// currently-open (unfinalized) file.
type Source struct {
	inputPath string
	config    sourceConfig
}

// NewSource opens a Source rooted at inputPath, which is stripped of any
// trailing separator. inputPath must be non-empty.
func NewSource(inputPath string, opts ...SourceOption) (*Source, error) {
	if inputPath == "" {
		return nil, errors.E(errors.InvalidValue, "queue: empty input path")
	}
	inputPath = strings.TrimRight(inputPath, string(os.PathSeparator))
	var cfg sourceConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Source{inputPath: inputPath, config: cfg}, nil
}

// QueueFilenames returns every queue file's path relative to the
// Source's input path, in the deterministic total order described by
// the package doc: directories and files are visited in lexicographic
// order at every level.
func (s *Source) QueueFilenames() ([]string, error) {
	var names []string
	err := filepath.WalkDir(s.inputPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.inputPath, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.E(errors.NotFound, "queue: no such queue directory: "+s.inputPath, err)
		}
		return nil, errors.E(errors.IoError, "queue: walking "+s.inputPath, err)
	}
	sort.Strings(names)
	return names, nil
}

// FinalizedQueueFilenames returns the same listing as QueueFilenames,
// filtered down to files that carry a finalized content-hash suffix.
// A Sink's currently-open file never has one, so a caller that must not
// see in-flight records (for example, something snapshotting the queue
// for a consumer outside this process) can use this instead of
// QueueFilenames.
func (s *Source) FinalizedQueueFilenames() ([]string, error) {
	names, err := s.QueueFilenames()
	if err != nil {
		return nil, err
	}
	finalized := names[:0]
	for _, name := range names {
		if hasHashSuffix(name) {
			finalized = append(finalized, name)
		}
	}
	return finalized, nil
}

// Cursor returns the Source's default cursor: AllFrom(prefix, index) if
// WithStartingFrom was given, otherwise All().
func (s *Source) Cursor() (*Cursor, error) {
	if s.config.hasStart {
		return s.AllFrom(s.config.startPrefix, s.config.startIndex)
	}
	return s.All()
}

// All returns a Cursor over every record in the queue, ignoring any
// configured starting point.
func (s *Source) All() (*Cursor, error) {
	names, err := s.QueueFilenames()
	if err != nil {
		return nil, err
	}
	return newCursor(s.inputPath, names), nil
}

// AllFrom returns a Cursor that skips files until one whose relative
// path starts with prefix, then skips records with index below index
// within that file, and continues through all subsequent files.
func (s *Source) AllFrom(prefix string, index int) (*Cursor, error) {
	names, err := s.QueueFilenames()
	if err != nil {
		return nil, err
	}
	start := -1
	for i, name := range names {
		if strings.HasPrefix(name, prefix) {
			start = i
			break
		}
	}
	if start < 0 {
		return nil, errors.E(errors.NotFound, "queue: no queue file matches prefix "+prefix)
	}
	c := newCursor(s.inputPath, names[start:])
	c.skipFirstFileBelow = index
	return c, nil
}

// UnlinkTo deletes every queue file strictly preceding the first file
// whose relative path starts with prefix, in the deterministic order,
// retaining the matching file and everything after it. An empty prefix
// is rejected with InvalidValue; UnlinkTo does not fall back to the
// position of any Cursor. UnlinkTo returns the number of files removed.
func (s *Source) UnlinkTo(prefix string) (int, error) {
	if prefix == "" {
		return 0, errors.E(errors.InvalidValue, "queue: UnlinkTo requires a non-empty prefix or a cursor's last file")
	}
	names, err := s.QueueFilenames()
	if err != nil {
		return 0, err
	}
	matchIdx := -1
	for i, name := range names {
		if strings.HasPrefix(name, prefix) {
			matchIdx = i
			break
		}
	}
	if matchIdx < 0 {
		return 0, errors.E(errors.NotFound, "queue: no queue file matches prefix "+prefix)
	}
	removed := 0
	for _, name := range names[:matchIdx] {
		full := filepath.Join(s.inputPath, filepath.FromSlash(name))
		if err := os.Remove(full); err != nil {
			return removed, errors.E(errors.IoError, "queue: removing "+full, err)
		}
		removed++
	}
	log.Debug.Printf("queue: unlinked %d files preceding %s", removed, prefix)
	return removed, nil
}
