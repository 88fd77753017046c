// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package diskcache memoizes an expensive, lazily-produced sequence of
// values to a local file, keyed by the identity of the call that
// produced it. It is the Go-native form of disk_cache.py's cached_iter
// decorator: Python decorates a generator function so that repeat calls
// with the same arguments replay from disk instead of recomputing;
// since Go has no decorators, the same behavior is exposed as an
// explicit Sequence[T] that callers invoke around their own producer
// function.
//
// A cache entry's filename is derived entirely from the call identity
// (a caller-supplied callableID plus its args/kwargs), never from the
// produced values, so Sequence can decide hit or miss before calling
// the producer at all. Values must be encodable by package codec: in
// particular a codec.Tuple must never be passed, for the same reason
// queue.Record fields must not be.
package diskcache

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/grailbio/dqp/codec"
	"github.com/grailbio/dqp/errors"
	"github.com/grailbio/dqp/seq"
	"github.com/grailbio/dqp/xzstd"
)

// Iterator is the pull-based shape a producer function must return, and
// the shape a Sequence's hit and miss paths both implement.
type Iterator[T any] = seq.Iterator[T]

// Compression selects the on-disk format of cache entries written by a
// Sequence. Unlike queue.Sink, a given Sequence value always writes and
// reads entries in the one format fixed at construction, since a cache
// hit is decided by Sequence's own config rather than by inspecting an
// existing file's name or contents.
type Compression int

const (
	NoCompression Compression = iota
	Zstd
)

type config struct {
	basePath    string
	keyFn       KeyFunc
	digestSize  int
	compression Compression
}

// Option configures a Sequence.
type Option func(*config)

// WithBasePath sets the directory cache files are written under. It
// defaults to os.TempDir().
func WithBasePath(path string) Option {
	return func(c *config) { c.basePath = path }
}

// WithKeyFunc overrides the default call-identity-to-filename function.
func WithKeyFunc(fn KeyFunc) Option {
	return func(c *config) { c.keyFn = fn }
}

// WithDigestSize sets the digest size, in bytes, used by the default
// KeyFunc. It has no effect if WithKeyFunc is also given.
func WithDigestSize(n int) Option {
	return func(c *config) { c.digestSize = n }
}

// WithCompression selects the on-disk format for entries this Sequence
// writes and reads.
func WithCompression(comp Compression) Option {
	return func(c *config) { c.compression = comp }
}

// Sequence memoizes calls to producer functions returning Iterator[T]
// to files under a base directory.
type Sequence[T any] struct {
	cfg config
}

// NewSequence constructs a Sequence.
func NewSequence[T any](opts ...Option) *Sequence[T] {
	cfg := config{basePath: os.TempDir(), digestSize: DefaultDigestSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.keyFn == nil {
		cfg.keyFn = DefaultKeyFunc(cfg.digestSize)
	}
	return &Sequence[T]{cfg: cfg}
}

func (s *Sequence[T]) path(callableID string, args []interface{}, kwargs map[string]interface{}) string {
	return filepath.Join(s.cfg.basePath, "dqp_"+s.cfg.keyFn(callableID, args, kwargs)+".msgpacks")
}

// Call returns an iterator for the sequence identified by callableID,
// args, and kwargs. The returned iterator decides, on its first Next,
// whether this is a cache hit or miss: a hit decodes directly from the
// existing cache file; a miss calls produce and tees each value into
// the cache file as the caller advances, deleting the partial file if
// produce or the encode ever fails. Deferring that decision to the
// first Next (rather than making it inside Call) is deliberate: it lets
// the decision happen under the path's mutex, so that two concurrent
// callers for the same identity cannot both decide "miss" and both
// invoke produce. The second caller instead blocks until the first
// finishes, then sees a completed cache file and becomes a hit.
func (s *Sequence[T]) Call(
	callableID string,
	args []interface{},
	kwargs map[string]interface{},
	produce func(context.Context) (Iterator[T], error),
) Iterator[T] {
	path := s.path(callableID, args, kwargs)
	return &cacheIterator[T]{
		path:        path,
		mu:          lockFor(path),
		compression: s.cfg.compression,
		produce:     produce,
	}
}

// Clear removes the cache entry for callableID, args, and kwargs, if
// one exists. It is not an error for no entry to exist.
func (s *Sequence[T]) Clear(callableID string, args []interface{}, kwargs map[string]interface{}) error {
	path := s.path(callableID, args, kwargs)
	mu := lockFor(path)
	mu.Lock()
	defer mu.Unlock()
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.E(errors.IoError, "diskcache: clearing "+path, err)
	}
	return nil
}

// cacheIterator is both the hit-path and miss-path iterator for one
// Sequence.Call. Which one it behaves as is decided lazily, inside the
// first call to Next, while holding mu.
type cacheIterator[T any] struct {
	path        string
	mu          *sync.Mutex
	compression Compression
	produce     func(context.Context) (Iterator[T], error)

	started bool
	locked  bool
	done    bool

	// hit-path state
	dec    *codec.Decoder
	closer io.Closer

	// miss-path state
	producer Iterator[T]
	file     *os.File
	zw       io.WriteCloser
	enc      *codec.Encoder
}

func (it *cacheIterator[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	if it.done {
		return zero, false, nil
	}
	if !it.started {
		it.started = true
		it.mu.Lock()
		it.locked = true
		if err := it.begin(ctx); err != nil {
			it.abort()
			return zero, false, err
		}
	}
	if it.dec != nil {
		return it.nextHit()
	}
	return it.nextMiss(ctx)
}

func (it *cacheIterator[T]) begin(ctx context.Context) error {
	f, err := os.Open(it.path)
	switch {
	case err == nil:
		var r io.Reader = f
		closer := io.Closer(f)
		if it.compression == Zstd {
			zr, zerr := xzstd.NewReader(f)
			if zerr != nil {
				f.Close()
				return errors.E(errors.IoError, "diskcache: opening compressed "+it.path, zerr)
			}
			r = zr
			closer = multiCloser{zr, f}
		}
		it.dec = codec.NewDecoder(r)
		it.closer = closer
		return nil
	case os.IsNotExist(err):
		producer, perr := it.produce(ctx)
		if perr != nil {
			return perr
		}
		it.producer = producer
		if err := os.MkdirAll(filepath.Dir(it.path), 0o777); err != nil {
			return errors.E(errors.IoError, "diskcache: creating directory for "+it.path, err)
		}
		wf, werr := os.OpenFile(it.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o666)
		if werr != nil {
			return errors.E(errors.IoError, "diskcache: creating "+it.path, werr)
		}
		it.file = wf
		if it.compression == Zstd {
			zw, zerr := xzstd.NewWriter(wf)
			if zerr != nil {
				return errors.E(errors.IoError, "diskcache: starting compressor for "+it.path, zerr)
			}
			it.zw = zw
			it.enc = codec.NewEncoder(zw)
		} else {
			it.enc = codec.NewEncoder(wf)
		}
		return nil
	default:
		return errors.E(errors.IoError, "diskcache: stat "+it.path, err)
	}
}

func (it *cacheIterator[T]) nextHit() (T, bool, error) {
	var v T
	err := it.dec.Decode(&v)
	if err == io.EOF {
		it.finish()
		var zero T
		return zero, false, nil
	}
	if err != nil {
		it.finish()
		var zero T
		return zero, false, err
	}
	return v, true, nil
}

// closeReader closes the hit-path file/decompressor, if one is open. It
// is idempotent: finish calls it on every exit path (natural EOF,
// decode error, or an explicit Close), so a cache hit never leaks its
// descriptor no matter which of those a caller triggers.
func (it *cacheIterator[T]) closeReader() {
	if it.closer != nil {
		it.closer.Close()
		it.closer = nil
	}
}

func (it *cacheIterator[T]) nextMiss(ctx context.Context) (T, bool, error) {
	var zero T
	v, ok, err := it.producer.Next(ctx)
	if err != nil {
		it.abort()
		return zero, false, err
	}
	if !ok {
		if err := it.completeMiss(); err != nil {
			return zero, false, err
		}
		return zero, false, nil
	}
	if err := it.enc.Encode(v); err != nil {
		it.abort()
		return zero, false, err
	}
	return v, true, nil
}

func (it *cacheIterator[T]) completeMiss() error {
	if it.zw != nil {
		if err := it.zw.Close(); err != nil {
			it.cleanupPartial()
			it.finish()
			return errors.E(errors.IoError, "diskcache: closing compressor for "+it.path, err)
		}
	}
	if err := it.file.Close(); err != nil {
		it.cleanupPartial()
		it.finish()
		return errors.E(errors.IoError, "diskcache: closing "+it.path, err)
	}
	it.file = nil
	it.finish()
	return nil
}

// abort tears down a miss in progress and deletes its partial file,
// satisfying the rule that no failed tee may leave a cache entry
// behind for a later caller to mistake for a complete one.
func (it *cacheIterator[T]) abort() {
	it.cleanupPartial()
	it.finish()
}

func (it *cacheIterator[T]) cleanupPartial() {
	if it.file != nil {
		it.file.Close()
		os.Remove(it.path)
		it.file = nil
	}
}

// Close ends the iterator early. Ending a hit simply releases the
// path's mutex; ending a miss mid-stream discards the partial cache
// file, since it was never fully produced.
func (it *cacheIterator[T]) Close() error {
	if it.done {
		return nil
	}
	if it.file != nil {
		it.cleanupPartial()
	}
	it.finish()
	return nil
}

func (it *cacheIterator[T]) finish() {
	if it.done {
		return
	}
	it.done = true
	it.closeReader()
	if it.locked {
		it.mu.Unlock()
		it.locked = false
	}
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
