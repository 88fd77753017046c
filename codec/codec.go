// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package codec implements the wire format shared by the queue and
// disk-cache components: a stream of msgpack-encoded values with no
// additional framing. Concatenating the bytes of two packed streams
// yields the concatenation of their decoded values, which is what lets a
// queue Sink's rotated files and a finalized cache file both be read by
// repeatedly calling Decode until io.EOF.
//
// msgpack has no way to tell an encoded list apart from an encoded tuple
// once it's on the wire, so an ordered container that round-trips as a
// different type than it was encoded as would silently change type under
// the reader's feet. Tuple exists so Encode can catch that mistake
// before it happens rather than have it surface as a confusing type
// assertion failure downstream.
package codec

import (
	"io"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/grailbio/dqp/errors"
)

// Record is the string-keyed map of primitive and nested values a queue
// or cached sequence entry is built from.
type Record = map[string]interface{}

// Tuple marks a value as an ordered container distinct from a plain
// slice. Go has no such distinction in its type system beyond a named
// type, and msgpack has none on the wire at all, so Encode refuses to
// encode a Tuple rather than silently decode it back as a []interface{}
// later.
type Tuple []interface{}

// Encoder packs values onto an underlying writer using the wire format
// described in the package doc.
type Encoder struct {
	enc *msgpack.Encoder
}

// NewEncoder returns an Encoder that writes to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{enc: msgpack.NewEncoder(w)}
}

// Encode packs v and writes it to the underlying writer. It returns an
// InvalidValue error without writing anything if v is a Tuple, or
// contains one at any depth reachable through nested
// map[string]interface{} (Record) and []interface{} values. Other map
// and slice types, such as a []Tuple or a []Record, are not searched.
func (e *Encoder) Encode(v interface{}) error {
	if err := checkNoTuple(v); err != nil {
		return err
	}
	if err := e.enc.Encode(v); err != nil {
		return errors.E(errors.IoError, "codec: encode", err)
	}
	return nil
}

// Validate reports the same InvalidValue error Encode would return for
// v, without encoding or writing anything. Callers that must not create
// or touch a file at all for an unencodable value (rather than create
// and then delete it) should call Validate before opening anything.
func Validate(v interface{}) error {
	return checkNoTuple(v)
}

func checkNoTuple(v interface{}) error {
	switch v := v.(type) {
	case Tuple:
		return errors.E(errors.InvalidValue, "codec: msgpack has no tuple type; tuples decode back as lists")
	case map[string]interface{}:
		for k, elem := range v {
			if err := checkNoTuple(elem); err != nil {
				return errors.E(errors.InvalidValue, "codec: key "+k, err)
			}
		}
	case []interface{}:
		for _, elem := range v {
			if err := checkNoTuple(elem); err != nil {
				return err
			}
		}
	}
	return nil
}

// Decoder pulls values off an underlying reader, one Decode call at a
// time, until the stream is exhausted.
type Decoder struct {
	dec *msgpack.Decoder
}

// NewDecoder returns a Decoder that reads from r.
func NewDecoder(r io.Reader) *Decoder {
	dec := msgpack.NewDecoder(r)
	return &Decoder{dec: dec}
}

// Decode unpacks the next value from the underlying reader into v, which
// should be a pointer as with encoding/json.Unmarshal. Decode returns
// io.EOF when the stream is exhausted, and a Corrupt error if a partial
// or malformed value is encountered before then.
func (d *Decoder) Decode(v interface{}) error {
	err := d.dec.Decode(v)
	switch {
	case err == nil:
		return nil
	case err == io.EOF:
		return io.EOF
	case err == io.ErrUnexpectedEOF:
		return errors.E(errors.Corrupt, "codec: truncated record", err)
	default:
		return errors.E(errors.Corrupt, "codec: decode", err)
	}
}
