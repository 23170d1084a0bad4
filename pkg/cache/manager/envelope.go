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

package manager

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/trickstercache/tiercache/pkg/encoding"

	"github.com/tinylib/msgp/msgp"
)

// errInvalidEnvelope is returned when a remote value cannot be decoded
var errInvalidEnvelope = errors.New("invalid remote envelope")

// envelope is the format of every value written to the remote tier
type envelope struct {
	Compression encoding.Provider
	CreatedAt   time.Time
	ExpiresAt   time.Time
	Tags        []string
	Data        []byte
}

func (e *envelope) MarshalMsg(b []byte) ([]byte, error) {
	b = msgp.AppendMapHeader(b, 5)
	b = msgp.AppendString(b, "c")
	b = msgp.AppendByte(b, byte(e.Compression))
	b = msgp.AppendString(b, "ca")
	b = msgp.AppendInt64(b, e.CreatedAt.UnixNano())
	b = msgp.AppendString(b, "ea")
	b = msgp.AppendInt64(b, e.ExpiresAt.UnixNano())
	b = msgp.AppendString(b, "t")
	b = msgp.AppendArrayHeader(b, uint32(len(e.Tags)))
	for _, t := range e.Tags {
		b = msgp.AppendString(b, t)
	}
	b = msgp.AppendString(b, "d")
	b = msgp.AppendBytes(b, e.Data)
	return b, nil
}

func (e *envelope) UnmarshalMsg(b []byte) ([]byte, error) {
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
		case "c":
			var c byte
			c, b, err = msgp.ReadByteBytes(b)
			e.Compression = encoding.Provider(c)
		case "ca":
			var ts int64
			ts, b, err = msgp.ReadInt64Bytes(b)
			e.CreatedAt = time.Unix(0, ts)
		case "ea":
			var ts int64
			ts, b, err = msgp.ReadInt64Bytes(b)
			e.ExpiresAt = time.Unix(0, ts)
		case "t":
			var sz uint32
			sz, b, err = msgp.ReadArrayHeaderBytes(b)
			if err != nil {
				return b, err
			}
			e.Tags = make([]string, sz)
			for i := range e.Tags {
				e.Tags[i], b, err = msgp.ReadStringBytes(b)
				if err != nil {
					return b, err
				}
			}
		case "d":
			e.Data, b, err = msgp.ReadBytesBytes(b, nil)
		default:
			b, err = msgp.Skip(b)
		}
		if err != nil {
			return b, err
		}
	}
	return b, nil
}

func (e *envelope) Msgsize() int {
	s := 1 + 2 + msgp.ByteSize + 3 + msgp.Int64Size + 3 + msgp.Int64Size +
		2 + msgp.ArrayHeaderSize + 2 + msgp.BytesPrefixSize + len(e.Data)
	for _, t := range e.Tags {
		s += msgp.StringPrefixSize + len(t)
	}
	return s
}

// hasTag returns true if the envelope was written with tag
func (e *envelope) hasTag(tag string) bool {
	return slices.Contains(e.Tags, tag)
}

// payload returns the decompressed value bytes
func (e *envelope) payload() ([]byte, error) {
	return encoding.Decode(e.Compression, e.Data)
}

func encodeEnvelope(e *envelope) ([]byte, error) {
	return e.MarshalMsg(make([]byte, 0, e.Msgsize()))
}

func decodeEnvelope(b []byte) (*envelope, error) {
	e := &envelope{}
	if _, err := e.UnmarshalMsg(b); err != nil {
		return nil, fmt.Errorf("%w: %w", errInvalidEnvelope, err)
	}
	return e, nil
}
