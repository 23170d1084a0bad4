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

package memory

import (
	"container/list"
	"slices"
	"time"
)

// score ranks entries for eviction; higher is evicted first. Entries idle
// the longest with the fewest accesses score highest.
func score(idle time.Duration, accessCount int64) float64 {
	return idle.Seconds() / float64(accessCount+1)
}

// enforceLimits evicts entries until the cache is within its item-count cap
// and memory thresholds. The protect key, the entry just inserted, is never
// chosen. The cache lock must be held.
func (c *Cache) enforceLimits(protect string, now time.Time) []eviction {
	var ev []eviction
	for c.opts.MaxItems > 0 && len(c.items) > c.opts.MaxItems {
		el, reason := c.victim(protect, now)
		if el == nil {
			break
		}
		ev = append(ev, eviction{c.entry(el).Key, reason})
		c.remove(el)
	}
	if c.pressure() <= c.opts.SoftLimit {
		return ev
	}
	ev = c.evictExpired(protect, now, ev)
	if c.pressure() <= c.opts.SoftLimit {
		return ev
	}
	critical := c.pressure() > c.opts.HardLimit
	var n int
	ev, n = c.evictPass(protect, now, ev)
	for critical && n > 0 && c.pressure() > c.opts.SoftLimit {
		ev, n = c.evictPass(protect, now, ev)
	}
	return ev
}

// victim returns the next entry to evict for capacity: the least recently
// used expired entry if any, otherwise the highest scoring entry
func (c *Cache) victim(protect string, now time.Time) (*list.Element, EvictionReason) {
	var best *list.Element
	var bestScore float64
	for el := c.lru.Back(); el != nil; el = el.Prev() {
		e := c.entry(el)
		if e.Key == protect {
			continue
		}
		if e.Expired(now) {
			return el, ReasonExpired
		}
		// strictly greater keeps the least recently used entry on ties
		if s := score(now.Sub(e.LastAccessedAt), e.AccessCount); best == nil || s > bestScore {
			best, bestScore = el, s
		}
	}
	return best, ReasonCapacity
}

func (c *Cache) evictExpired(protect string, now time.Time, ev []eviction) []eviction {
	for el := c.lru.Back(); el != nil; {
		prev := el.Prev()
		if e := c.entry(el); e.Key != protect && e.Expired(now) {
			ev = append(ev, eviction{e.Key, ReasonExpired})
			c.remove(el)
		}
		el = prev
	}
	return ev
}

type candidate struct {
	el    *list.Element
	score float64
}

// evictPass evicts the highest scoring evict_fraction of entries, at least
// one, and returns the number evicted
func (c *Cache) evictPass(protect string, now time.Time, ev []eviction) ([]eviction, int) {
	candidates := make([]candidate, 0, len(c.items))
	for el := c.lru.Back(); el != nil; el = el.Prev() {
		e := c.entry(el)
		if e.Key == protect {
			continue
		}
		candidates = append(candidates, candidate{el, score(now.Sub(e.LastAccessedAt), e.AccessCount)})
	}
	if len(candidates) == 0 {
		return ev, 0
	}
	slices.SortStableFunc(candidates, func(a, b candidate) int {
		switch {
		case a.score > b.score:
			return -1
		case a.score < b.score:
			return 1
		}
		return 0
	})
	n := int(c.opts.EvictFraction * float64(len(c.items)))
	n = max(1, min(n, len(candidates)))
	for _, cd := range candidates[:n] {
		ev = append(ev, eviction{c.entry(cd.el).Key, ReasonPressure})
		c.remove(cd.el)
	}
	return ev, n
}
