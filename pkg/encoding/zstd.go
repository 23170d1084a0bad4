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

package encoding

import (
	"github.com/klauspost/compress/zstd"
)

// EncodeAll and DecodeAll are safe for concurrent use, so one of each is shared
var (
	zstdDecoder *zstd.Decoder
	zstdEncoder *zstd.Encoder
)

func init() {
	zstdDecoder, _ = zstd.NewReader(nil)
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func encodeZstd(in []byte) ([]byte, error) {
	return zstdEncoder.EncodeAll(in, make([]byte, 0, len(in))), nil
}

func decodeZstd(in []byte) ([]byte, error) {
	return zstdDecoder.DecodeAll(in, nil)
}
