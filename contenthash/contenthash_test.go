// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package contenthash_test

import (
	"bytes"
	"testing"

	"github.com/grailbio/dqp/contenthash"
)

func TestWriterSumMatchesWrittenBytes(t *testing.T) {
	var out bytes.Buffer
	w := contenthash.NewWriter(&out)
	if _, err := w.Write([]byte("hello ")); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("world")); err != nil {
		t.Fatal(err)
	}
	got := w.Sum()

	want := contenthash.Digest(contenthash.Size, []byte("hello world"))
	if !bytes.Equal(got[:], want) {
		t.Errorf("got %x, want %x", got, want)
	}
	if out.String() != "hello world" {
		t.Errorf("writer did not forward bytes: got %q", out.String())
	}
}

func TestDigestDeterministic(t *testing.T) {
	a := contenthash.Digest(8, []byte("args"))
	b := contenthash.Digest(8, []byte("args"))
	if !bytes.Equal(a, b) {
		t.Error("digest should be deterministic for identical input")
	}
	c := contenthash.Digest(8, []byte("other args"))
	if bytes.Equal(a, c) {
		t.Error("digest should differ for differing input")
	}
	if len(a) != 8 {
		t.Errorf("got digest size %d, want 8", len(a))
	}
}

func TestHashStringIsHex(t *testing.T) {
	var h contenthash.Hash
	copy(h[:], []byte{0xde, 0xad, 0xbe, 0xef})
	if got, want := h.String()[:8], "deadbeef"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
