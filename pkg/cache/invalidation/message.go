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

package invalidation

import (
	"time"

	"github.com/tinylib/msgp/msgp"
)

// Message is the payload broadcast to peers
type Message struct {
	Origin    string
	Keys      []string
	Timestamp time.Time
}

// MarshalMsg appends the msgpack encoding of the Message to b
func (m *Message) MarshalMsg(b []byte) ([]byte, error) {
	b = msgp.AppendMapHeader(b, 3)
	b = msgp.AppendString(b, "o")
	b = msgp.AppendString(b, m.Origin)
	b = msgp.AppendString(b, "k")
	b = msgp.AppendArrayHeader(b, uint32(len(m.Keys)))
	for _, k := range m.Keys {
		b = msgp.AppendString(b, k)
	}
	b = msgp.AppendString(b, "t")
	b = msgp.AppendInt64(b, m.Timestamp.UnixNano())
	return b, nil
}

// UnmarshalMsg decodes a Message from the front of b
func (m *Message) UnmarshalMsg(b []byte) ([]byte, error) {
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
		case "o":
			m.Origin, b, err = msgp.ReadStringBytes(b)
		case "k":
			var sz uint32
			sz, b, err = msgp.ReadArrayHeaderBytes(b)
			if err != nil {
				return b, err
			}
			m.Keys = make([]string, sz)
			for i := range m.Keys {
				m.Keys[i], b, err = msgp.ReadStringBytes(b)
				if err != nil {
					return b, err
				}
			}
		case "t":
			var ts int64
			ts, b, err = msgp.ReadInt64Bytes(b)
			m.Timestamp = time.Unix(0, ts)
		default:
			b, err = msgp.Skip(b)
		}
		if err != nil {
			return b, err
		}
	}
	return b, nil
}

// Msgsize returns an upper bound estimate of the encoded size of the Message
func (m *Message) Msgsize() int {
	s := 1 + 2 + msgp.StringPrefixSize + len(m.Origin) + 2 + msgp.ArrayHeaderSize +
		2 + msgp.Int64Size
	for _, k := range m.Keys {
		s += msgp.StringPrefixSize + len(k)
	}
	return s
}
