// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package xzstd provides optional transparent zstd compression for
// finalized queue files and disk-cache entries. It is adapted from
// grailbio-base's compress/zstd/zstd_nocgo.go, dropping the cgo-backed
// variant entirely: dqp has no build that needs the cgo encoder's extra
// throughput, and a pure-Go dependency keeps the module cgo-free.
package xzstd

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

// NewWriter returns a WriteCloser that compresses everything written to
// it and writes the compressed stream to w. Close must be called to
// flush the final frame.
func NewWriter(w io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(w)
}

// NewReader returns a ReadCloser that decompresses r's zstd stream.
func NewReader(r io.Reader) (io.ReadCloser, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, err
	}
	return &readCloser{zr}, nil
}

type readCloser struct {
	*zstd.Decoder
}

func (r *readCloser) Close() error {
	r.Decoder.Close()
	return nil
}
