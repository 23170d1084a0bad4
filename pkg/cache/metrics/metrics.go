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

// Package metrics provides the cache-specific observation helpers over the
// tiercache prometheus collectors
package metrics

import (
	"time"

	"github.com/trickstercache/tiercache/pkg/observability/metrics"
)

// Tier label values
const (
	TierMemory = "l1"
	TierRemote = "l2"
)

// ObserveCacheMiss records a Cache Miss event
func ObserveCacheMiss(cacheName, tier string) {
	ObserveCacheOperation(cacheName, tier, "get", "miss", 0)
}

// ObserveCacheHit records a Cache Hit event
func ObserveCacheHit(cacheName, tier string, bytes float64) {
	ObserveCacheOperation(cacheName, tier, "get", "hit", bytes)
}

// ObserveCacheDel records a cache deletion event
func ObserveCacheDel(cacheName, tier string, count float64) {
	if count <= 0 {
		return
	}
	metrics.CacheObjectOperations.WithLabelValues(cacheName, tier, "del", "none").Add(count)
}

// ObserveCacheOperation increments counters as cache operations occur
func ObserveCacheOperation(cacheName, tier, operation, status string, bytes float64) {
	metrics.CacheObjectOperations.WithLabelValues(cacheName, tier, operation, status).Inc()
	if bytes > 0 {
		metrics.CacheByteOperations.WithLabelValues(cacheName, tier, operation, status).Add(bytes)
	}
}

// ObserveCacheEvent increments counters as cache events occur
func ObserveCacheEvent(cacheName, tier, event, reason string) {
	metrics.CacheEvents.WithLabelValues(cacheName, tier, event, reason).Inc()
}

// ObserveCacheSizeChange sets the gauges as the cache size changes due to object operations
func ObserveCacheSizeChange(cacheName, tier string, byteCount, objectCount int64) {
	metrics.CacheObjects.WithLabelValues(cacheName, tier).Set(float64(objectCount))
	metrics.CacheBytes.WithLabelValues(cacheName, tier).Set(float64(byteCount))
}

// ObserveLoad records the duration of a loader call
func ObserveLoad(cacheName, status string, d time.Duration) {
	metrics.CacheLoadDuration.WithLabelValues(cacheName, status).Observe(d.Seconds())
}

// ObserveQueueDepth sets the write-behind pending gauge
func ObserveQueueDepth(cacheName string, n int) {
	metrics.WriteBehindPending.WithLabelValues(cacheName).Set(float64(n))
}

// ObserveFlush records the outcome of flushing one write-behind priority tier
func ObserveFlush(cacheName, priority string, written, failed int, d time.Duration) {
	if written > 0 {
		metrics.WriteBehindRecords.WithLabelValues(cacheName, priority, "ok").Add(float64(written))
	}
	if failed > 0 {
		metrics.WriteBehindRecords.WithLabelValues(cacheName, priority, "failed").Add(float64(failed))
	}
	metrics.WriteBehindFlushDuration.WithLabelValues(cacheName, priority).Observe(d.Seconds())
}

// ObserveDropped records write-behind records abandoned after exhausting retries
func ObserveDropped(cacheName, priority string, n int) {
	if n > 0 {
		metrics.WriteBehindRecords.WithLabelValues(cacheName, priority, "dropped").Add(float64(n))
	}
}

// ObserveInvalidation records the keys removed by an invalidation
func ObserveInvalidation(cacheName, kind string, count int) {
	if count > 0 {
		metrics.InvalidationKeys.WithLabelValues(cacheName, kind).Add(float64(count))
	}
}

// ObserveInvalidationMessage records a published or received invalidation message
func ObserveInvalidationMessage(cacheName, direction, status string) {
	metrics.InvalidationMessages.WithLabelValues(cacheName, direction, status).Inc()
}

// ObserveCoalesced records the result of a coalesced request
func ObserveCoalesced(cacheName, result string) {
	metrics.CoalescerRequests.WithLabelValues(cacheName, result).Inc()
}
