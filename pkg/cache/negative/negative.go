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

// Package negative provides the negative filter: a bloom filter of keys known
// to have been written, so lookups for keys that were never set can skip both
// cache tiers
package negative

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/AndreasBriese/bbloom"
)

// ErrInvalidSize is returned for a non-positive item count or a false
// positive rate outside of (0, 1)
var ErrInvalidSize = errors.New("negative filter requires expected_items > 0 and 0 < false_positive_rate < 1")

// Filter is a concurrency-safe bloom filter of keys. It reports no false
// negatives; entries cannot be removed, only dropped wholesale by Rebuild.
type Filter struct {
	expectedItems     int
	falsePositiveRate float64

	mtx   sync.RWMutex
	bloom *bbloom.Bloom
	count atomic.Int64
}

// New returns a Filter sized for expectedItems at falsePositiveRate
func New(expectedItems int, falsePositiveRate float64) (*Filter, error) {
	if expectedItems <= 0 || falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		return nil, ErrInvalidSize
	}
	f := &Filter{
		expectedItems:     expectedItems,
		falsePositiveRate: falsePositiveRate,
	}
	f.bloom = f.newBloom()
	return f, nil
}

func (f *Filter) newBloom() *bbloom.Bloom {
	b := bbloom.New(float64(f.expectedItems), f.falsePositiveRate)
	return &b
}

// Add records that key may exist
func (f *Filter) Add(key string) {
	f.mtx.RLock()
	f.bloom.AddTS([]byte(key))
	f.mtx.RUnlock()
	f.count.Add(1)
}

// MightContain returns false only when key was definitely never added
// since the last Rebuild
func (f *Filter) MightContain(key string) bool {
	f.mtx.RLock()
	defer f.mtx.RUnlock()
	return f.bloom.HasTS([]byte(key))
}

// Rebuild replaces the filter contents with exactly the provided keys
func (f *Filter) Rebuild(keys []string) {
	b := f.newBloom()
	for _, k := range keys {
		b.Add([]byte(k))
	}
	f.mtx.Lock()
	f.bloom = b
	f.count.Store(int64(len(keys)))
	f.mtx.Unlock()
}

// Count returns the number of Add calls since the last Rebuild, including
// repeated keys
func (f *Filter) Count() int64 {
	return f.count.Load()
}
