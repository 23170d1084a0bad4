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

// Package cache defines the tiercache interfaces, entry model and error kinds
// shared by the in-process tier, the remote tier and the cache manager
package cache

import (
	"context"
	"time"

	"github.com/trickstercache/tiercache/pkg/encoding"
)

// Store is the contract the cache core requires from the remote key-value
// store (L2). Implementations must return ErrKNF from Get on a miss, and should
// wrap transport failures with ErrRemoteUnavailable.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores the value and reports whether the write was applied, which is
	// only false for a conditional write whose condition did not hold
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, cond Condition) (bool, error)
	// Delete removes the keys and returns the count that existed
	Delete(ctx context.Context, keys ...string) (int64, error)
	// DeleteEach removes the keys in one round trip and reports, per key,
	// whether it existed
	DeleteEach(ctx context.Context, keys []string) ([]bool, error)
	// Scan returns a page of keys matching match and the cursor of the next
	// page, 0 when the iteration is complete. Deleting keys while an
	// iteration is in progress may cause other keys to be skipped.
	Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error)
	Pipeline() Pipeline
	SetAdd(ctx context.Context, set string, members ...string) error
	SetMembers(ctx context.Context, set string) ([]string, error)
	SetRemove(ctx context.Context, set string, members ...string) error
	TTL(ctx context.Context, key string) (time.Duration, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Ping(ctx context.Context) error
	Close() error
}

// Pipeline batches Store commands into a single round trip. Exec returns one
// error slot per queued command, in queue order, and a non-nil error only
// when the round trip itself failed.
type Pipeline interface {
	Set(key string, value []byte, ttl time.Duration, cond Condition)
	SetAdd(set string, members ...string)
	SetRemove(set string, members ...string)
	Expire(key string, ttl time.Duration)
	Exec(ctx context.Context) ([]error, error)
}

// Condition enumerates the conditional modes of a Store Set
type Condition int

const (
	// ConditionNone writes unconditionally
	ConditionNone = Condition(iota)
	// ConditionIfAbsent writes only when the key does not exist
	ConditionIfAbsent
	// ConditionIfPresent writes only when the key already exists
	ConditionIfPresent
)

var conditionValues = map[Condition]string{
	ConditionNone:      "none",
	ConditionIfAbsent:  "if_absent",
	ConditionIfPresent: "if_present",
}

func (c Condition) String() string {
	if v, ok := conditionValues[c]; ok {
		return v
	}
	return "unknown"
}

// Entry is a cache object as held by the in-process tier
type Entry struct {
	Key            string
	Value          any
	CreatedAt      time.Time
	ExpiresAt      time.Time
	LastAccessedAt time.Time
	AccessCount    int64
	Tags           []string
	// SizeBytes is the serialized-plus-encoding size used for pressure accounting
	SizeBytes   int64
	Compression encoding.Provider
	Durability  Durability
}

// Expired returns true if the entry's expiration is at or before now
func (e *Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.After(now)
}

// HasTag returns true if the entry was stored with the provided tag
func (e *Entry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone returns a shallow copy of the entry; the value itself is shared
func (e *Entry) Clone() *Entry {
	e2 := *e
	if e.Tags != nil {
		e2.Tags = make([]string, len(e.Tags))
		copy(e2.Tags, e.Tags)
	}
	return &e2
}
