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

// Package hotkeys tracks per-key access frequency over a time window to
// identify hot keys for promotion and background refresh
package hotkeys

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/trickstercache/tiercache/pkg/config"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 64

// AccessInfo is the access history of a key within its current window
type AccessInfo struct {
	Count       int64
	WindowStart time.Time
	LastAccess  time.Time
}

type shard struct {
	mtx  sync.Mutex
	keys map[string]*AccessInfo
}

// Tracker is a sharded access counter. All methods are safe for concurrent use.
type Tracker struct {
	shards             [shardCount]shard
	threshold          int64
	window             time.Duration
	refreshProbability float64
	now                func() time.Time
	rand               func() float64
}

// Option configures a Tracker
type Option func(*Tracker)

// WithClock sets the time source of the Tracker
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		if now != nil {
			t.now = now
		}
	}
}

// WithRand sets the source of uniform [0, 1) draws used by ShouldRefresh
func WithRand(f func() float64) Option {
	return func(t *Tracker) {
		if f != nil {
			t.rand = f
		}
	}
}

// New returns a new Tracker
func New(o *config.HotKeyOptions, opts ...Option) *Tracker {
	if o == nil {
		o = config.New().HotKeys
	}
	t := &Tracker{
		threshold:          o.Threshold,
		window:             o.Window,
		refreshProbability: o.RefreshProbability,
		now:                time.Now,
		rand:               rand.Float64,
	}
	for i := range t.shards {
		t.shards[i].keys = make(map[string]*AccessInfo)
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) shard(key string) *shard {
	return &t.shards[xxhash.Sum64String(key)%shardCount]
}

// Record counts an access to key and returns the count within the current window
func (t *Tracker) Record(key string) int64 {
	s := t.shard(key)
	now := t.now()
	s.mtx.Lock()
	defer s.mtx.Unlock()
	ai, ok := s.keys[key]
	if !ok {
		ai = &AccessInfo{WindowStart: now}
		s.keys[key] = ai
	} else if now.Sub(ai.WindowStart) > t.window {
		ai.Count = 0
		ai.WindowStart = now
	}
	ai.Count++
	ai.LastAccess = now
	return ai.Count
}

// Count returns the access count of key within its current window
func (t *Tracker) Count(key string) int64 {
	s := t.shard(key)
	now := t.now()
	s.mtx.Lock()
	defer s.mtx.Unlock()
	ai, ok := s.keys[key]
	if !ok || now.Sub(ai.WindowStart) > t.window {
		return 0
	}
	return ai.Count
}

// Get returns a copy of the AccessInfo for key
func (t *Tracker) Get(key string) (AccessInfo, bool) {
	s := t.shard(key)
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if ai, ok := s.keys[key]; ok {
		return *ai, true
	}
	return AccessInfo{}, false
}

// IsHot returns true if the access count of key within the window meets
// the threshold
func (t *Tracker) IsHot(key string) bool {
	return t.Count(key) >= t.threshold
}

// ShouldRefresh returns true for hot keys, gated by the refresh probability
func (t *Tracker) ShouldRefresh(key string) bool {
	return t.IsHot(key) && t.rand() < t.refreshProbability
}

// Prune removes keys not accessed within the window and returns the count removed
func (t *Tracker) Prune() int {
	now := t.now()
	var n int
	for i := range t.shards {
		s := &t.shards[i]
		s.mtx.Lock()
		for k, ai := range s.keys {
			if now.Sub(ai.LastAccess) > t.window {
				delete(s.keys, k)
				n++
			}
		}
		s.mtx.Unlock()
	}
	return n
}

// Len returns the number of tracked keys
func (t *Tracker) Len() int {
	var n int
	for i := range t.shards {
		s := &t.shards[i]
		s.mtx.Lock()
		n += len(s.keys)
		s.mtx.Unlock()
	}
	return n
}
