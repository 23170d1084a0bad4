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

// Package codec serializes cache values to and from the bytes held by the
// remote tier
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/tinylib/msgp/msgp"
)

// Codec converts values of type V to and from bytes
type Codec[V any] interface {
	Name() string
	Marshal(V) ([]byte, error)
	Unmarshal([]byte) (V, error)
}

// Bytes is the identity Codec for []byte values
type Bytes struct{}

func (Bytes) Name() string { return "bytes" }

func (Bytes) Marshal(v []byte) ([]byte, error) { return v, nil }

func (Bytes) Unmarshal(b []byte) ([]byte, error) {
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// String is the Codec for string values
type String struct{}

func (String) Name() string { return "string" }

func (String) Marshal(v string) ([]byte, error) { return []byte(v), nil }

func (String) Unmarshal(b []byte) (string, error) { return string(b), nil }

// JSON is a Codec for any JSON-serializable value
type JSON[V any] struct{}

func (JSON[V]) Name() string { return "json" }

func (JSON[V]) Marshal(v V) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON[V]) Unmarshal(b []byte) (V, error) {
	var v V
	if err := json.Unmarshal(b, &v); err != nil {
		return v, fmt.Errorf("json codec: %w", err)
	}
	return v, nil
}

// Msgp is a Codec for values whose pointer type implements the msgp
// Marshaler and Unmarshaler interfaces, as generated by msgp
type Msgp[V any, P interface {
	*V
	msgp.Marshaler
	msgp.Unmarshaler
}] struct{}

func (Msgp[V, P]) Name() string { return "msgp" }

func (Msgp[V, P]) Marshal(v V) ([]byte, error) {
	return P(&v).MarshalMsg(nil)
}

func (Msgp[V, P]) Unmarshal(b []byte) (V, error) {
	var v V
	if _, err := P(&v).UnmarshalMsg(b); err != nil {
		return v, fmt.Errorf("msgp codec: %w", err)
	}
	return v, nil
}
