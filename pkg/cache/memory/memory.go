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

// Package memory is the in-process (L1) tier of tiercache: a bounded map of
// entries evicted by a combined recency and frequency score under item-count
// and memory-pressure limits
package memory

import (
	"container/list"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/trickstercache/tiercache/pkg/cache"
	"github.com/trickstercache/tiercache/pkg/cache/metrics"
	"github.com/trickstercache/tiercache/pkg/config"
	"github.com/trickstercache/tiercache/pkg/observability/logging"
	"github.com/trickstercache/tiercache/pkg/observability/logging/logger"
)

// ErrInvalidEntry is returned when setting a nil entry or one with an empty key
var ErrInvalidEntry = errors.New("invalid cache entry")

// EvictionReason describes why an entry was evicted
type EvictionReason string

const (
	ReasonExpired  EvictionReason = "expired"
	ReasonCapacity EvictionReason = "capacity"
	ReasonPressure EvictionReason = "pressure"
)

// EvictFunc is called, outside of the cache lock, for each evicted key
type EvictFunc func(key string, reason EvictionReason)

// Cache is the in-process tier. All methods are safe for concurrent use.
type Cache struct {
	Name string

	opts    config.MemoryOptions
	mtx     sync.Mutex
	items   map[string]*list.Element
	lru     *list.List // front is most recently used
	size    int64
	now     func() time.Time
	onEvict EvictFunc
}

// Option configures a Cache
type Option func(*Cache)

// WithClock sets the time source of the Cache
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithEvictFunc sets the eviction callback of the Cache
func WithEvictFunc(f EvictFunc) Option {
	return func(c *Cache) {
		c.onEvict = f
	}
}

// New returns a new in-process Cache
func New(name string, o *config.MemoryOptions, opts ...Option) *Cache {
	if o == nil {
		o = config.New().Memory
	}
	c := &Cache{
		Name:  name,
		opts:  *o,
		items: make(map[string]*list.Element),
		lru:   list.New(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type eviction struct {
	key    string
	reason EvictionReason
}

func (c *Cache) entry(el *list.Element) *cache.Entry {
	return el.Value.(*cache.Entry)
}

// Get returns a copy of the unexpired entry for key, recording the access
func (c *Cache) Get(key string) (*cache.Entry, bool) {
	c.mtx.Lock()
	el, ok := c.items[key]
	if !ok {
		c.mtx.Unlock()
		metrics.ObserveCacheMiss(c.Name, metrics.TierMemory)
		return nil, false
	}
	now := c.now()
	e := c.entry(el)
	if e.Expired(now) {
		var ev []eviction
		if c.pastRetention(e, now) {
			c.remove(el)
			ev = []eviction{{key, ReasonExpired}}
		}
		c.mtx.Unlock()
		c.notify(ev)
		metrics.ObserveCacheMiss(c.Name, metrics.TierMemory)
		return nil, false
	}
	e.LastAccessedAt = now
	e.AccessCount++
	c.lru.MoveToFront(el)
	out := e.Clone()
	c.mtx.Unlock()
	metrics.ObserveCacheHit(c.Name, metrics.TierMemory, float64(out.SizeBytes))
	return out, true
}

// GetStale returns a copy of the entry for key even if it has expired, as
// long as it expired no more than maxStale ago. The access is not recorded.
func (c *Cache) GetStale(key string, maxStale time.Duration) (*cache.Entry, bool) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	e := c.entry(el)
	if now := c.now(); e.Expired(now) && now.Sub(e.ExpiresAt) > maxStale {
		return nil, false
	}
	return e.Clone(), true
}

// Exists returns true if an unexpired entry exists for key, without
// recording an access
func (c *Cache) Exists(key string) bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	el, ok := c.items[key]
	return ok && !c.entry(el).Expired(c.now())
}

// Set inserts the entry, replacing any prior entry for its key, and evicts
// as needed to stay within the configured limits
func (c *Cache) Set(e *cache.Entry) error {
	if e == nil || e.Key == "" {
		return ErrInvalidEntry
	}
	if e.SizeBytes > c.opts.MaxItemSizeBytes || e.SizeBytes > c.opts.MaxSizeBytes {
		return cache.ErrEntryTooLarge
	}
	e = e.Clone()
	c.mtx.Lock()
	now := c.now()
	if e.LastAccessedAt.IsZero() {
		e.LastAccessedAt = now
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	if el, ok := c.items[e.Key]; ok {
		c.remove(el)
	}
	c.items[e.Key] = c.lru.PushFront(e)
	c.size += e.SizeBytes
	ev := c.enforceLimits(e.Key, now)
	size, count := c.size, len(c.items)
	c.mtx.Unlock()
	c.notify(ev)
	if len(ev) > 0 {
		logger.Debug("memory cache eviction", logging.Pairs{
			"cacheName": c.Name, "evicted": len(ev), "cacheSize": size, "cacheItems": count,
		})
	}
	metrics.ObserveCacheOperation(c.Name, metrics.TierMemory, "set", "none", float64(e.SizeBytes))
	metrics.ObserveCacheSizeChange(c.Name, metrics.TierMemory, size, int64(count))
	return nil
}

// Delete removes the keys and returns those that were present
func (c *Cache) Delete(keys ...string) []string {
	return c.deleteWhere(func(k string, _ *cache.Entry) bool {
		return slices.Contains(keys, k)
	}, keys)
}

// DeleteByPrefix removes all entries whose key begins with prefix and
// returns their keys
func (c *Cache) DeleteByPrefix(prefix string) []string {
	return c.deleteWhere(func(k string, _ *cache.Entry) bool {
		return strings.HasPrefix(k, prefix)
	}, nil)
}

// DeleteByTag removes all entries stored with tag and returns their keys
func (c *Cache) DeleteByTag(tag string) []string {
	return c.deleteWhere(func(_ string, e *cache.Entry) bool {
		return e.HasTag(tag)
	}, nil)
}

// deleteWhere removes entries matching f. When keys is non-empty, only
// those keys are visited.
func (c *Cache) deleteWhere(f func(string, *cache.Entry) bool, keys []string) []string {
	c.mtx.Lock()
	var removed []string
	if len(keys) > 0 {
		for _, k := range keys {
			if el, ok := c.items[k]; ok {
				c.remove(el)
				removed = append(removed, k)
			}
		}
	} else {
		for el := c.lru.Front(); el != nil; {
			next := el.Next()
			if e := c.entry(el); f(e.Key, e) {
				c.remove(el)
				removed = append(removed, e.Key)
			}
			el = next
		}
	}
	size, count := c.size, len(c.items)
	c.mtx.Unlock()
	if len(removed) > 0 {
		metrics.ObserveCacheDel(c.Name, metrics.TierMemory, float64(len(removed)))
		metrics.ObserveCacheSizeChange(c.Name, metrics.TierMemory, size, int64(count))
	}
	return removed
}

// DeleteExpired removes entries that expired more than the stale retention
// period ago, and returns the number removed
func (c *Cache) DeleteExpired() int {
	c.mtx.Lock()
	now := c.now()
	var ev []eviction
	for el := c.lru.Back(); el != nil; {
		prev := el.Prev()
		if e := c.entry(el); e.Expired(now) && c.pastRetention(e, now) {
			c.remove(el)
			ev = append(ev, eviction{e.Key, ReasonExpired})
		}
		el = prev
	}
	size, count := c.size, len(c.items)
	c.mtx.Unlock()
	c.notify(ev)
	if len(ev) > 0 {
		metrics.ObserveCacheSizeChange(c.Name, metrics.TierMemory, size, int64(count))
	}
	return len(ev)
}

// Clear removes all entries
func (c *Cache) Clear() {
	c.mtx.Lock()
	c.items = make(map[string]*list.Element)
	c.lru.Init()
	c.size = 0
	c.mtx.Unlock()
	metrics.ObserveCacheSizeChange(c.Name, metrics.TierMemory, 0, 0)
}

// MemoryPressure returns the fraction of max_size_bytes in use
func (c *Cache) MemoryPressure() float64 {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.pressure()
}

// HardLimit returns the pressure at which eviction runs until below the soft limit
func (c *Cache) HardLimit() float64 {
	return c.opts.HardLimit
}

// MaxItemSize returns the largest entry size the cache accepts
func (c *Cache) MaxItemSize() int64 {
	return c.opts.MaxItemSizeBytes
}

// Len returns the number of resident entries, including expired entries
// held for stale retention
func (c *Cache) Len() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return len(c.items)
}

// Size returns the sum of the sizes of the resident entries
func (c *Cache) Size() int64 {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.size
}

// Keys returns the resident keys, most recently used first
func (c *Cache) Keys() []string {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	keys := make([]string, 0, len(c.items))
	for el := c.lru.Front(); el != nil; el = el.Next() {
		keys = append(keys, c.entry(el).Key)
	}
	return keys
}

func (c *Cache) pressure() float64 {
	if c.opts.MaxSizeBytes <= 0 {
		return 0
	}
	return float64(c.size) / float64(c.opts.MaxSizeBytes)
}

func (c *Cache) pastRetention(e *cache.Entry, now time.Time) bool {
	return now.Sub(e.ExpiresAt) >= c.opts.StaleRetention
}

func (c *Cache) remove(el *list.Element) {
	e := c.entry(el)
	c.lru.Remove(el)
	delete(c.items, e.Key)
	c.size -= e.SizeBytes
}

func (c *Cache) notify(ev []eviction) {
	for _, v := range ev {
		metrics.ObserveCacheEvent(c.Name, metrics.TierMemory, "eviction", string(v.reason))
		if c.onEvict != nil {
			c.onEvict(v.key, v.reason)
		}
	}
}
