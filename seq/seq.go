// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package seq defines the pull-based iteration shape shared by
// queue.Cursor and the iterators diskcache.Sequence.Call returns, along
// with a couple of generic helpers over it. Go has no generator syntax,
// so both expose the same Next method instead of a language-level
// iterator; this package
// gives that convention a name so callers can write code generic over
// either one.
package seq

import "context"

// Iterator pulls values of type T one at a time. Next returns the next
// value, true if a value was produced, and an error if retrieving it
// failed. Next returns (zero, false, nil) when the sequence is
// exhausted, signaling end-of-stream with a nil error rather than the
// io.EOF a lower-level reader such as logio.Reader returns.
type Iterator[T any] interface {
	Next(ctx context.Context) (T, bool, error)
}

// First returns the first value produced by it, or ok == false if it is
// already exhausted.
func First[T any](ctx context.Context, it Iterator[T]) (value T, ok bool, err error) {
	return it.Next(ctx)
}

// Count drains it and returns the number of values it produced.
func Count[T any](ctx context.Context, it Iterator[T]) (int, error) {
	n := 0
	for {
		_, ok, err := it.Next(ctx)
		if err != nil {
			return n, err
		}
		if !ok {
			return n, nil
		}
		n++
	}
}
