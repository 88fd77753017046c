// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package storage_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/dqp/storage"
)

func TestUntouchedFolderLeavesNoFile(t *testing.T) {
	dir := t.TempDir()
	f, err := storage.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, storage.VarsFilename)); !os.IsNotExist(err) {
		t.Errorf("expected no vars file, stat returned %v", err)
	}
}

func TestWritesOnChange(t *testing.T) {
	dir := t.TempDir()
	f, err := storage.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	f.Vars["a"] = "1"
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	varsPath := filepath.Join(dir, storage.VarsFilename)
	info, err := os.Stat(varsPath)
	if err != nil {
		t.Fatal(err)
	}

	f2, err := storage.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := f2.Vars["a"], "1"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	if err := f2.Close(); err != nil {
		t.Fatal(err)
	}
	info2, err := os.Stat(varsPath)
	if err != nil {
		t.Fatal(err)
	}
	if info.ModTime() != info2.ModTime() {
		t.Errorf("unchanged vars should not rewrite the file")
	}
}

func TestChildAndCreatePath(t *testing.T) {
	dir := t.TempDir()
	f, err := storage.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	sub := f.Child("queue/name")
	if got, want := sub, filepath.Join(dir, "queue/name"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
	created, err := f.CreatePath("queue/name")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(created); err != nil {
		t.Errorf("CreatePath should have created %s: %v", created, err)
	}
}

func TestPreexistingVarsFileKeptWhenEmptied(t *testing.T) {
	dir := t.TempDir()
	varsPath := filepath.Join(dir, storage.VarsFilename)
	seed, err := storage.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	seed.Vars["k"] = "v"
	if err := seed.Close(); err != nil {
		t.Fatal(err)
	}

	f, err := storage.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	delete(f.Vars, "k")
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(varsPath); err != nil {
		t.Errorf("expected vars file to still exist (now empty map, but file previously existed): %v", err)
	}
}
