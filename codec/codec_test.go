// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package codec_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/go-test/deep"

	"github.com/grailbio/dqp/codec"
	"github.com/grailbio/dqp/errors"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf)
	records := []codec.Record{
		{"a": int8(1), "b": "two"},
		{"a": int8(2), "b": "three", "nested": codec.Record{"x": []interface{}{int8(1), int8(2), int8(3)}}},
	}
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			t.Fatal(err)
		}
	}

	dec := codec.NewDecoder(&buf)
	var got []codec.Record
	for {
		var r codec.Record
		err := dec.Decode(&r)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, r)
	}
	if diff := deep.Equal(got, records); diff != nil {
		t.Error(diff)
	}
}

func TestEncodeRejectsTuple(t *testing.T) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf)
	err := enc.Encode(codec.Tuple{1, 2})
	if !errors.Is(errors.InvalidValue, err) {
		t.Fatalf("got %v, want InvalidValue", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected nothing written, got %d bytes", buf.Len())
	}
}

func TestEncodeRejectsNestedTuple(t *testing.T) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf)
	err := enc.Encode(codec.Record{"values": codec.Tuple{1, 2}})
	if !errors.Is(errors.InvalidValue, err) {
		t.Fatalf("got %v, want InvalidValue", err)
	}
}

func TestDecodeTruncatedStreamIsCorrupt(t *testing.T) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf)
	if err := enc.Encode(codec.Record{"a": 1}); err != nil {
		t.Fatal(err)
	}
	truncated := buf.Bytes()[:buf.Len()-1]
	dec := codec.NewDecoder(bytes.NewReader(truncated))
	var r codec.Record
	err := dec.Decode(&r)
	if err == nil || err == io.EOF {
		t.Fatalf("got %v, want a Corrupt error", err)
	}
	if !errors.Is(errors.Corrupt, err) {
		t.Fatalf("got %v, want Corrupt", err)
	}
}

func TestDecodeConcatenatedStreams(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	if err := codec.NewEncoder(&buf1).Encode(codec.Record{"a": int8(1)}); err != nil {
		t.Fatal(err)
	}
	if err := codec.NewEncoder(&buf2).Encode(codec.Record{"b": int8(2)}); err != nil {
		t.Fatal(err)
	}
	joined := append(buf1.Bytes(), buf2.Bytes()...)
	dec := codec.NewDecoder(bytes.NewReader(joined))
	var got []codec.Record
	for {
		var r codec.Record
		err := dec.Decode(&r)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, r)
	}
	want := []codec.Record{{"a": int8(1)}, {"b": int8(2)}}
	if diff := deep.Equal(got, want); diff != nil {
		t.Error(diff)
	}
}
