// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package contenthash computes the content hashes dqp uses to name
// finalized files: a queue Sink's running hash over the bytes it wrote,
// and a disk-cache entry's fingerprint over its call arguments. It is a
// drastic reduction of grailbio-base's digest package, which supports a
// dozen interchangeable hash algorithms serialized into a common fixed-
// size representation; dqp only ever needs blake2b, so the generality
// isn't worth carrying forward.
package contenthash

import (
	"encoding/hex"
	"hash"
	"io"

	"golang.org/x/crypto/blake2b"
)

// Size is the byte length of a Hash, matching blake2b-256.
const Size = 32

// Hash is a finalized content hash, rendered as lowercase hex when
// appended to a filename.
type Hash [Size]byte

// String returns h's lowercase hex encoding, the form used as a queue
// file's hash suffix.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Writer wraps an io.Writer, maintaining a running blake2b-256 hash of
// every byte successfully written through it. A Sink uses this to
// compute a finalized file's hash suffix without buffering the file's
// contents a second time.
type Writer struct {
	w io.Writer
	h hash.Hash
}

// NewWriter returns a Writer that forwards writes to w while hashing
// them.
func NewWriter(w io.Writer) *Writer {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only fails for a key longer than 64 bytes; we
		// never pass one.
		panic(err)
	}
	return &Writer{w: w, h: h}
}

// Write implements io.Writer, hashing the prefix of p that was actually
// written before returning w's underlying error, if any.
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	if n > 0 {
		w.h.Write(p[:n])
	}
	return n, err
}

// Sum returns the hash of every byte written through w so far.
func (w *Writer) Sum() Hash {
	var out Hash
	copy(out[:], w.h.Sum(nil))
	return out
}

// Digest returns the blake2b digest of data, truncated to size bytes
// (1-64). It is used to fingerprint a disk-cache entry's call arguments,
// mirroring the original implementation's configurable
// blake2b(..., digest_size=size).
func Digest(size int, data []byte) []byte {
	h, err := blake2b.New(size, nil)
	if err != nil {
		panic(err)
	}
	h.Write(data)
	return h.Sum(nil)
}
