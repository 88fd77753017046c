// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package project implements Project, the composition root tying
// together a root storage.Folder and the queue.Sinks/queue.Sources
// opened beneath it, persisting per-source consumer checkpoints in the
// root Folder's variable map so a later process can resume where an
// earlier one left off.
package project

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/grailbio/dqp/errors"
	"github.com/grailbio/dqp/log"
	"github.com/grailbio/dqp/queue"
	"github.com/grailbio/dqp/storage"
)

const (
	queueDirName = "queue"
	stateDirName = "state"
)

// Project owns a root Folder at basePath and every Sink/Source/Folder
// opened beneath it, closing them in the order they were opened.
type Project struct {
	basePath   string
	varsPrefix string
	root       *storage.Folder
	closers    []namedCloser
}

type namedCloser struct {
	name string
	fn   func() error
}

// Option configures a Project constructed by Open.
type Option func(*Project)

// WithVarsPrefix sets the prefix prepended to every checkpoint key this
// Project writes and reads. It defaults to empty; a non-empty prefix
// gets an underscore separator appended automatically.
func WithVarsPrefix(prefix string) Option {
	return func(p *Project) {
		if prefix != "" {
			prefix += "_"
		}
		p.varsPrefix = prefix
	}
}

// Open opens (creating if necessary) a Project rooted at basePath.
func Open(basePath string, opts ...Option) (*Project, error) {
	root, err := storage.Open(basePath)
	if err != nil {
		return nil, err
	}
	p := &Project{basePath: basePath, root: root}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Project) queuePath(name string) string {
	return filepath.Join(p.basePath, queueDirName, name)
}

// OpenSink creates a Sink rooted at <basePath>/queue/<name> and
// registers its Close to run when the Project closes.
func (p *Project) OpenSink(name string, opts ...queue.SinkOption) (*queue.Sink, error) {
	sink, err := queue.NewSink(p.queuePath(name), opts...)
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, namedCloser{"sink:" + name, sink.Close})
	return sink, nil
}

// OpenSource opens a Source rooted at <basePath>/queue/<name>, which
// must already exist (created by a prior OpenSink call, possibly in an
// earlier process), else NotFound. Closing the Project writes the
// checkpoint for this source — <prefix><name>_last_filename and
// <prefix><name>_last_idx in the root Folder's vars — iff the returned
// Cursor has advanced at least once.
func (p *Project) OpenSource(name string, opts ...queue.SourceOption) (*queue.Source, *queue.Cursor, error) {
	path := p.queuePath(name)
	if info, err := os.Stat(path); err != nil || !info.IsDir() {
		return nil, nil, errors.E(errors.NotFound, "project: no such queue: "+name)
	}
	src, err := queue.NewSource(path, opts...)
	if err != nil {
		return nil, nil, err
	}
	cur, err := src.Cursor()
	if err != nil {
		return nil, nil, err
	}
	p.registerCheckpoint(name, cur)
	return src, cur, nil
}

func (p *Project) registerCheckpoint(name string, cur *queue.Cursor) {
	p.closers = append(p.closers, namedCloser{"checkpoint:" + name, func() error {
		if !cur.HasAdvanced() {
			return nil
		}
		p.root.Vars[p.varsPrefix+name+"_last_filename"] = cur.File()
		p.root.Vars[p.varsPrefix+name+"_last_idx"] = strconv.Itoa(cur.Index())
		return nil
	}})
}

// ContinueSource opens a Source for name, resuming from the checkpoint
// previously written by a closed Project for the same name and prefix,
// if one exists. If no checkpoint vars are present, it opens without a
// starting point, equivalent to OpenSource(name).
func (p *Project) ContinueSource(name string) (*queue.Source, *queue.Cursor, error) {
	filenameKey := p.varsPrefix + name + "_last_filename"
	idxKey := p.varsPrefix + name + "_last_idx"
	lastFilename, hasFilename := p.root.Vars[filenameKey]
	lastIdxStr, hasIdx := p.root.Vars[idxKey]
	if !hasFilename || !hasIdx {
		return p.OpenSource(name)
	}
	lastIdx, err := strconv.Atoi(lastIdxStr)
	if err != nil {
		return nil, nil, errors.E(errors.Corrupt, "project: checkpoint "+idxKey+" is not an integer", err)
	}
	// The checkpoint records the last delivered record; resume at the
	// following one.
	return p.OpenSource(name, queue.WithStartingFrom(lastFilename, lastIdx+1))
}

// StateFolder returns a child Folder at <basePath>/state/<name>,
// registered to close when the Project closes.
func (p *Project) StateFolder(name string) (*storage.Folder, error) {
	path := filepath.Join(p.basePath, stateDirName, name)
	f, err := storage.Open(path)
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, namedCloser{"state:" + name, f.Close})
	return f, nil
}

// Close runs every registered closer in the order it was registered,
// then closes the root Folder. A closer's failure does not stop the
// remaining closers from running; the first failure encountered is
// returned after everything has run, and any later failures are logged
// rather than discarded.
func (p *Project) Close() error {
	var first error
	for _, c := range p.closers {
		if err := c.fn(); err != nil {
			if first == nil {
				first = err
			} else {
				log.Error.Printf("project: closing %s: %v", c.name, err)
			}
		}
	}
	if err := p.root.Close(); err != nil {
		if first == nil {
			first = err
		} else {
			log.Error.Printf("project: closing root folder: %v", err)
		}
	}
	return first
}
