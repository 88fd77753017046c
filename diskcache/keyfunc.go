// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package diskcache

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/grailbio/dqp/contenthash"
)

// DefaultDigestSize is the number of hash bytes folded into a default
// cache filename, matching the original implementation's short_digester.
const DefaultDigestSize = 8

// KeyFunc computes the cache filename stem (without the "dqp_" prefix
// or ".msgpacks" suffix) for a call identified by callableID, its
// positional args, and its keyword args.
type KeyFunc func(callableID string, args []interface{}, kwargs map[string]interface{}) string

// DefaultKeyFunc returns a KeyFunc that hex-encodes a digestSize-byte
// digest of callableID, args, and kwargs.
func DefaultKeyFunc(digestSize int) KeyFunc {
	return func(callableID string, args []interface{}, kwargs map[string]interface{}) string {
		return ShortDigest(digestSize, callableID, args, kwargs)
	}
}

// ShortDigest returns a stable hex digest over callableID, args, and
// kwargs, grounded on disk_cache.py's short_digester: it builds a
// string representation of the call and hashes it with a
// caller-supplied digest size. Go map iteration order is randomized,
// unlike the insertion-ordered dict the original relies on, so kwargs'
// keys are sorted before folding them into the digest input: this
// trades "identical kwarg ordering gets identical keys" (true of the
// original only because call sites happen to pass kwargs consistently)
// for "any two calls with the same kwargs get the same key regardless
// of argument order", which is the property identifying a duplicate
// call actually needs.
func ShortDigest(size int, callableID string, args []interface{}, kwargs map[string]interface{}) string {
	var b strings.Builder
	b.WriteString(callableID)
	b.WriteString("(")
	for i, a := range args {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%#v", a)
	}
	if len(kwargs) > 0 {
		if len(args) > 0 {
			b.WriteString(", ")
		}
		keys := make([]string, 0, len(kwargs))
		for k := range kwargs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%#v", k, kwargs[k])
		}
	}
	b.WriteString(")")
	return hex.EncodeToString(contenthash.Digest(size, []byte(b.String())))
}
