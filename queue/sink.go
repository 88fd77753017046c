// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package queue

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/grailbio/dqp/codec"
	"github.com/grailbio/dqp/contenthash"
	"github.com/grailbio/dqp/errors"
	"github.com/grailbio/dqp/log"
	"github.com/grailbio/dqp/xzstd"
)

// DefaultHeadTimeout is the duration a Sink keeps a file open for
// writing before rotating it, absent WithHeadTimeout.
const DefaultHeadTimeout = 600 * time.Second

// Compression selects whether a Sink's finalized files are compressed.
type Compression int

const (
	// NoCompression writes finalized files as a plain packed record
	// stream, visible to a concurrent Source record by record as they
	// are flushed.
	NoCompression Compression = iota
	// Zstd buffers a file's records in memory and writes them as a
	// single zstd-compressed blob at finalization. Because the whole
	// file is written at Close/rotate time, a Sink using
	// Zstd does not offer the live, per-record visibility NoCompression
	// does; this trade favors smaller finalized files for pipelines
	// that only read back after the writer is done with a file.
	Zstd
)

// SinkOption configures a Sink constructed by NewSink.
type SinkOption func(*Sink)

// WithHeadTimeout overrides DefaultHeadTimeout: the Sink rotates its
// live file once it has been open for at least d.
func WithHeadTimeout(d time.Duration) SinkOption {
	return func(s *Sink) { s.headTimeout = d }
}

// WithCompression enables transparent compression of finalized files.
func WithCompression(c Compression) SinkOption {
	return func(s *Sink) { s.compression = c }
}

// Sink appends records to a rotating sequence of queue files under a
// base directory. It is single-writer: concurrent Sinks over the same
// base directory are not supported, since time-named files would
// collide.
type Sink struct {
	basePath    string
	headTimeout time.Duration
	compression Compression

	nowPath      string
	file         *os.File
	hashWriter   *contenthash.Writer
	encoder      *codec.Encoder
	recordCount  int
	lastOpenTime time.Time

	// buf holds records for a compressed file until Close/rotate, since
	// compression precludes the incremental record-at-a-time write the
	// uncompressed path uses.
	buf []Record
}

// NewSink creates a Sink rooted at basePath and opens its first live
// file at the current time.
func NewSink(basePath string, opts ...SinkOption) (*Sink, error) {
	s := &Sink{basePath: basePath, headTimeout: DefaultHeadTimeout}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.open(time.Now()); err != nil {
		return nil, err
	}
	return s, nil
}

// open starts a new live file named for now. It fails with StateError if
// an unfinalized file for this second already exists, as when another
// Sink over the same base directory opened a file in the same second;
// this package treats that as a programmer error rather than
// attempting a richer naming scheme. Rotating more than once within a
// second does not collide, since by then the previous file has been
// renamed to its finalized name or removed.
func (s *Sink) open(now time.Time) error {
	path := nowPath(s.basePath, now)
	if _, err := os.Stat(path); err == nil {
		return errors.E(errors.StateError, "queue: path collision, file already exists: "+path)
	} else if !os.IsNotExist(err) {
		return errors.E(errors.IoError, "queue: stat "+path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o777); err != nil {
		return errors.E(errors.IoError, "queue: creating directory for "+path, err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o666)
	if err != nil {
		if os.IsExist(err) {
			return errors.E(errors.StateError, "queue: path collision, file already exists: "+path)
		}
		return errors.E(errors.IoError, "queue: opening "+path, err)
	}
	s.nowPath = path
	s.file = f
	s.hashWriter = contenthash.NewWriter(f)
	if s.compression == Zstd {
		s.buf = nil
		s.encoder = nil
	} else {
		s.encoder = codec.NewEncoder(s.hashWriter)
	}
	s.recordCount = 0
	s.lastOpenTime = now
	log.Debug.Printf("queue: opened sink file %s", path)
	return nil
}

// Write packs record and appends it to the live file, flushing before
// returning so a concurrent Source can observe it (for NoCompression
// sinks; a Zstd sink buffers until finalization). If the live file has
// been open at least as long as the configured head timeout, Write
// rotates to a new file after appending the record.
func (s *Sink) Write(record Record) error {
	if s.compression == Zstd {
		s.buf = append(s.buf, record)
	} else {
		if err := s.encoder.Encode(record); err != nil {
			return err
		}
		if err := s.file.Sync(); err != nil {
			return errors.E(errors.IoError, "queue: flushing "+s.nowPath, err)
		}
	}
	s.recordCount++
	if time.Since(s.lastOpenTime) >= s.headTimeout {
		return s.Rotate()
	}
	return nil
}

// Rotate closes (finalizing or deleting) the live file and opens a new
// one at the current time.
func (s *Sink) Rotate() error {
	if err := s.finalizeOrDelete(); err != nil {
		return err
	}
	return s.open(time.Now())
}

// Close finalizes or deletes the live file. It is safe to call Close
// without a prior Rotate; the Sink is not usable afterward.
func (s *Sink) Close() error {
	return s.finalizeOrDelete()
}

func (s *Sink) finalizeOrDelete() error {
	if s.recordCount == 0 {
		if err := s.file.Close(); err != nil {
			return errors.E(errors.IoError, "queue: closing empty file "+s.nowPath, err)
		}
		if err := os.Remove(s.nowPath); err != nil {
			return errors.E(errors.IoError, "queue: removing empty file "+s.nowPath, err)
		}
		log.Debug.Printf("queue: removed empty sink file %s", s.nowPath)
		return nil
	}
	if s.compression == Zstd {
		return s.finalizeCompressed()
	}
	if err := s.file.Close(); err != nil {
		return errors.E(errors.IoError, "queue: closing "+s.nowPath, err)
	}
	finalPath := s.nowPath + hashSeparator + s.hashWriter.Sum().String()
	if err := os.Rename(s.nowPath, finalPath); err != nil {
		return errors.E(errors.IoError, "queue: finalizing "+s.nowPath, err)
	}
	log.Debug.Printf("queue: finalized sink file %s (%d records)", finalPath, s.recordCount)
	return nil
}

func (s *Sink) finalizeCompressed() error {
	// The live path was created empty (for collision detection) and is
	// replaced wholesale here; close it first so the rename below isn't
	// racing an open file descriptor on some platforms.
	if err := s.file.Close(); err != nil {
		return errors.E(errors.IoError, "queue: closing "+s.nowPath, err)
	}
	hw := contenthash.NewWriter(io.Discard)
	var body writeCounter
	zw, err := xzstd.NewWriter(io.MultiWriter(hw, &body))
	if err != nil {
		return errors.E(errors.IoError, "queue: starting compressor for "+s.nowPath, err)
	}
	enc := codec.NewEncoder(zw)
	for _, r := range s.buf {
		if err := enc.Encode(r); err != nil {
			_ = os.Remove(s.nowPath)
			return err
		}
	}
	if err := zw.Close(); err != nil {
		_ = os.Remove(s.nowPath)
		return errors.E(errors.IoError, "queue: closing compressor for "+s.nowPath, err)
	}
	finalPath := s.nowPath + hashSeparator + hw.Sum().String() + ".zst"
	if err := os.WriteFile(finalPath, body.Bytes(), 0o666); err != nil {
		_ = os.Remove(s.nowPath)
		return errors.E(errors.IoError, "queue: writing compressed "+finalPath, err)
	}
	if err := os.Remove(s.nowPath); err != nil {
		return errors.E(errors.IoError, "queue: removing placeholder "+s.nowPath, err)
	}
	log.Debug.Printf("queue: finalized compressed sink file %s (%d records)", finalPath, s.recordCount)
	return nil
}

// writeCounter accumulates every byte written to it, used to capture a
// compressed file's body while it is simultaneously hashed.
type writeCounter struct {
	data []byte
}

func (w *writeCounter) Write(p []byte) (int, error) {
	w.data = append(w.data, p...)
	return len(p), nil
}

func (w *writeCounter) Bytes() []byte { return w.data }
