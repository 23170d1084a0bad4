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

// Package encoding provides the compression providers used to encode cache
// values before they are written to the remote store
package encoding

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Provider identifies a compression provider. The value is persisted in each
// remote envelope, so existing values must never be renumbered.
type Provider byte

const (
	Zstandard Provider = 1 << iota
	Brotli             // 2
	GZip               // 4
	Deflate            // 8
	Identity  Provider = 0 // no encoding
	Snappy    Provider = 128

	ZstandardValue = "zstd"
	BrotliValue    = "br"
	GZipValue      = "gzip"
	DeflateValue   = "deflate"
	SnappyValue    = "snappy"
	IdentityValue  = "none"
	// might be used in configs
	ZstandardAltValue = "zstandard"
	BrotliAltValue    = "brotli"
	IdentityAltValue  = "identity"
)

// ErrUnsupportedProvider is returned for an unknown provider name or id
var ErrUnsupportedProvider = errors.New("unsupported compression provider")

type codec struct {
	encode func([]byte) ([]byte, error)
	decode func([]byte) ([]byte, error)
}

// update whenever a new provider is added
var codecs = map[Provider]codec{
	Zstandard: {encodeZstd, decodeZstd},
	Brotli:    {encodeBrotli, decodeBrotli},
	GZip:      {encodeGZip, decodeGZip},
	Deflate:   {encodeDeflate, decodeDeflate},
	Snappy:    {encodeSnappy, decodeSnappy},
}

var providerLookup = map[string]Provider{
	ZstandardValue:    Zstandard,
	ZstandardAltValue: Zstandard,
	BrotliValue:       Brotli,
	BrotliAltValue:    Brotli,
	GZipValue:         GZip,
	DeflateValue:      Deflate,
	SnappyValue:       Snappy,
	IdentityValue:     Identity,
	IdentityAltValue:  Identity,
	"":                Identity,
}

var providerValLookup = map[Provider]string{
	Zstandard: ZstandardValue,
	Brotli:    BrotliValue,
	GZip:      GZipValue,
	Deflate:   DeflateValue,
	Snappy:    SnappyValue,
	Identity:  IdentityValue,
}

func (p Provider) String() string {
	if v, ok := providerValLookup[p]; ok {
		return v
	}
	return strconv.Itoa(int(p))
}

// ParseProvider returns the Provider for the provided name
func ParseProvider(name string) (Provider, error) {
	if p, ok := providerLookup[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p, nil
	}
	return Identity, fmt.Errorf("%w: %s", ErrUnsupportedProvider, name)
}

// Encode returns the encoded version of the byte slice
func Encode(p Provider, in []byte) ([]byte, error) {
	if p == Identity {
		return in, nil
	}
	c, ok := codecs[p]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedProvider, p)
	}
	return c.encode(in)
}

// Decode returns the decoded version of the encoded byte slice
func Decode(p Provider, in []byte) ([]byte, error) {
	if p == Identity {
		return in, nil
	}
	c, ok := codecs[p]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedProvider, p)
	}
	return c.decode(in)
}
