/*
 * Copyright 2018 The Trickster Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package durability

import (
	"time"

	"github.com/trickstercache/tiercache/pkg/cache"

	"github.com/tinylib/msgp/msgp"
)

// Op is the operation a Record represents
type Op uint8

const (
	// OpSet writes the record value to the remote store
	OpSet Op = iota
	// OpDelete is a tombstone discarding any earlier pending record for the key
	OpDelete
)

// Record is a pending remote write as persisted in the durability log
type Record struct {
	Seq        uint64
	Op         Op
	Key        string
	Value      []byte
	TTL        time.Duration
	Condition  cache.Condition
	Tags       []string
	// Untags are tags whose index no longer lists the key once written
	Untags     []string
	Priority   uint8
	Durability cache.Durability
	Timestamp  time.Time
	Attempts   int
}

const recordFields = 12

// MarshalMsg appends the msgpack encoding of the Record to b
func (r *Record) MarshalMsg(b []byte) ([]byte, error) {
	b = msgp.AppendMapHeader(b, recordFields)
	b = msgp.AppendString(b, "s")
	b = msgp.AppendUint64(b, r.Seq)
	b = msgp.AppendString(b, "o")
	b = msgp.AppendUint8(b, uint8(r.Op))
	b = msgp.AppendString(b, "k")
	b = msgp.AppendString(b, r.Key)
	b = msgp.AppendString(b, "v")
	b = msgp.AppendBytes(b, r.Value)
	b = msgp.AppendString(b, "t")
	b = msgp.AppendInt64(b, int64(r.TTL))
	b = msgp.AppendString(b, "c")
	b = msgp.AppendInt(b, int(r.Condition))
	b = msgp.AppendString(b, "g")
	b = msgp.AppendArrayHeader(b, uint32(len(r.Tags)))
	for _, t := range r.Tags {
		b = msgp.AppendString(b, t)
	}
	b = msgp.AppendString(b, "u")
	b = msgp.AppendArrayHeader(b, uint32(len(r.Untags)))
	for _, t := range r.Untags {
		b = msgp.AppendString(b, t)
	}
	b = msgp.AppendString(b, "p")
	b = msgp.AppendUint8(b, r.Priority)
	b = msgp.AppendString(b, "d")
	b = msgp.AppendInt(b, int(r.Durability))
	b = msgp.AppendString(b, "ts")
	b = msgp.AppendInt64(b, r.Timestamp.UnixNano())
	b = msgp.AppendString(b, "a")
	b = msgp.AppendInt(b, r.Attempts)
	return b, nil
}

// UnmarshalMsg decodes a Record from the front of b and returns the remainder
func (r *Record) UnmarshalMsg(b []byte) ([]byte, error) {
	n, b, err := msgp.ReadMapHeaderBytes(b)
	if err != nil {
		return b, err
	}
	for ; n > 0; n-- {
		var field []byte
		field, b, err = msgp.ReadMapKeyZC(b)
		if err != nil {
			return b, err
		}
		switch string(field) {
		case "s":
			r.Seq, b, err = msgp.ReadUint64Bytes(b)
		case "o":
			var o uint8
			o, b, err = msgp.ReadUint8Bytes(b)
			r.Op = Op(o)
		case "k":
			r.Key, b, err = msgp.ReadStringBytes(b)
		case "v":
			r.Value, b, err = msgp.ReadBytesBytes(b, nil)
		case "t":
			var t int64
			t, b, err = msgp.ReadInt64Bytes(b)
			r.TTL = time.Duration(t)
		case "c":
			var c int
			c, b, err = msgp.ReadIntBytes(b)
			r.Condition = cache.Condition(c)
		case "g":
			r.Tags, b, err = readStrings(b)
		case "u":
			r.Untags, b, err = readStrings(b)
		case "p":
			r.Priority, b, err = msgp.ReadUint8Bytes(b)
		case "d":
			var d int
			d, b, err = msgp.ReadIntBytes(b)
			r.Durability = cache.Durability(d)
		case "ts":
			var ts int64
			ts, b, err = msgp.ReadInt64Bytes(b)
			r.Timestamp = time.Unix(0, ts)
		case "a":
			r.Attempts, b, err = msgp.ReadIntBytes(b)
		default:
			b, err = msgp.Skip(b)
		}
		if err != nil {
			return b, err
		}
	}
	return b, nil
}

// Msgsize returns an upper bound estimate of the encoded size of the Record
func (r *Record) Msgsize() int {
	s := 1 + 2 + msgp.Uint64Size + 2 + msgp.Uint8Size + 2 + msgp.StringPrefixSize + len(r.Key) +
		2 + msgp.BytesPrefixSize + len(r.Value) + 2 + msgp.Int64Size + 2 + msgp.IntSize +
		2 + msgp.ArrayHeaderSize + 2 + msgp.ArrayHeaderSize + 2 + msgp.Uint8Size + 2 + msgp.IntSize + 3 + msgp.Int64Size +
		2 + msgp.IntSize
	for _, t := range r.Tags {
		s += msgp.StringPrefixSize + len(t)
	}
	for _, t := range r.Untags {
		s += msgp.StringPrefixSize + len(t)
	}
	return s
}

// Clone returns a deep copy of the Record
func (r *Record) Clone() *Record {
	r2 := *r
	if r.Value != nil {
		r2.Value = append([]byte(nil), r.Value...)
	}
	if r.Tags != nil {
		r2.Tags = append([]string(nil), r.Tags...)
	}
	if r.Untags != nil {
		r2.Untags = append([]string(nil), r.Untags...)
	}
	return &r2
}

func readStrings(b []byte) ([]string, []byte, error) {
	sz, b, err := msgp.ReadArrayHeaderBytes(b)
	if err != nil {
		return nil, b, err
	}
	out := make([]string, sz)
	for i := range out {
		if out[i], b, err = msgp.ReadStringBytes(b); err != nil {
			return nil, b, err
		}
	}
	return out, b, nil
}
