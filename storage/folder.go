// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package storage implements Folder, a directory bound to a mutable
// string-to-string variable map persisted as a single packed record at
// the directory's root. It underlies both a Project's root directory and
// its per-source state directories.
package storage

import (
	"bytes"
	"maps"
	"os"
	"path/filepath"

	"github.com/grailbio/dqp/codec"
	"github.com/grailbio/dqp/errors"
	"github.com/grailbio/dqp/log"
)

// VarsFilename is the name of the packed variable-map file at a Folder's
// root.
const VarsFilename = "vars.msgpack"

// Folder is a directory bound to a mutable key-value map. The map is
// read on Open and flushed on Close only if its contents changed, so
// directories that are opened and closed without ever being
// touched are left exactly as found.
type Folder struct {
	path      string
	Vars      map[string]string
	readBytes []byte
}

// Open opens (creating if necessary) the directory at path and loads its
// variable map from vars.msgpack, if present.
func Open(path string) (*Folder, error) {
	f := &Folder{path: path, Vars: make(map[string]string)}
	if err := os.MkdirAll(path, 0o777); err != nil {
		return nil, errors.E(errors.IoError, "storage: open folder", err)
	}
	varsPath := filepath.Join(path, VarsFilename)
	data, err := os.ReadFile(varsPath)
	switch {
	case err == nil:
		f.readBytes = data
		if err := codec.NewDecoder(bytes.NewReader(data)).Decode(&f.Vars); err != nil {
			return nil, errors.E(errors.Corrupt, "storage: decoding "+varsPath, err)
		}
	case os.IsNotExist(err):
		// No vars file yet; Vars stays empty and readBytes stays nil.
	default:
		return nil, errors.E(errors.IoError, "storage: reading "+varsPath, err)
	}
	log.Debug.Printf("storage: opened folder %s (%d vars)", path, len(f.Vars))
	return f, nil
}

// Path returns the folder's own directory.
func (f *Folder) Path() string {
	return f.path
}

// Child returns the path of sub joined under the folder's directory. It
// is purely lexical and does not create anything.
func (f *Folder) Child(sub string) string {
	return filepath.Join(f.path, sub)
}

// CreatePath ensures the child directory sub exists under the folder and
// returns its path.
func (f *Folder) CreatePath(sub string) (string, error) {
	p := f.Child(sub)
	if err := os.MkdirAll(p, 0o777); err != nil {
		return "", errors.E(errors.IoError, "storage: create path "+p, err)
	}
	return p, nil
}

// Close packs the folder's current variable map and writes it to
// vars.msgpack iff either the map is non-empty or a vars file previously
// existed, and the map's contents differ from what was read on Open
// (the same entries packed in another key order count as unchanged). A
// folder whose vars were never touched and whose file did not
// previously exist leaves no file behind.
func (f *Folder) Close() error {
	varsPath := filepath.Join(f.path, VarsFilename)
	if len(f.Vars) == 0 && f.readBytes == nil {
		return nil
	}
	if f.readBytes != nil {
		var prev map[string]string
		if err := codec.NewDecoder(bytes.NewReader(f.readBytes)).Decode(&prev); err == nil && maps.Equal(prev, f.Vars) {
			return nil
		}
	}
	var buf bytes.Buffer
	if err := codec.NewEncoder(&buf).Encode(f.Vars); err != nil {
		return errors.E(errors.IoError, "storage: encoding vars for "+varsPath, err)
	}
	if bytes.Equal(buf.Bytes(), f.readBytes) {
		return nil
	}
	if err := os.WriteFile(varsPath, buf.Bytes(), 0o666); err != nil {
		return errors.E(errors.IoError, "storage: writing "+varsPath, err)
	}
	log.Debug.Printf("storage: flushed %d vars to %s", len(f.Vars), varsPath)
	return nil
}
