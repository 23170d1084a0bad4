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

package cache

import "errors"

// ErrKNF represents the error "key not found in cache"
var ErrKNF = errors.New("key not found in cache")

// ErrRemoteUnavailable indicates a transport-level failure talking to the remote store
var ErrRemoteUnavailable = errors.New("remote store unavailable")

// ErrWriteFailure indicates a write to the remote store or the durability queue failed
var ErrWriteFailure = errors.New("cache write failure")

// ErrOverloaded indicates excess concurrent load was rejected
var ErrOverloaded = errors.New("cache overloaded")

// ErrClosed indicates an operation was attempted after Close
var ErrClosed = errors.New("cache is closed")

// ErrInvalidConfiguration indicates the cache was configured with invalid options
var ErrInvalidConfiguration = errors.New("invalid cache configuration")

// ErrEntryTooLarge indicates an entry exceeds the per-item or total size of the in-process tier
var ErrEntryTooLarge = errors.New("cache entry too large")

// ErrLoadTimeout indicates a coalesced load did not complete within its timeout
var ErrLoadTimeout = errors.New("cache load timed out")
