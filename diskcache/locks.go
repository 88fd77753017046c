// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package diskcache

import (
	"path/filepath"
	"sync"
)

// pathLocks is a process-wide registry mapping an absolute cache path to
// the mutex serializing access to it. It never shrinks for the lifetime
// of the process: a path, once seen, keeps its mutex forever. This
// mirrors the original implementation's defaultdict(threading.Lock),
// which has the same never-expiring-entry property, in contrast to
// ttlcache's expiring map+mutex idiom that this registry otherwise
// resembles in shape.
var pathLocks = struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}{m: make(map[string]*sync.Mutex)}

// lockFor returns the mutex for path's canonical absolute form, creating
// one if this is the first time path has been seen. Different string
// spellings of the same path (relative vs absolute, trailing slash,
// etc.) resolve to the same mutex.
func lockFor(path string) *sync.Mutex {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	pathLocks.mu.Lock()
	defer pathLocks.mu.Unlock()
	m, ok := pathLocks.m[abs]
	if !ok {
		m = new(sync.Mutex)
		pathLocks.m[abs] = m
	}
	return m
}
