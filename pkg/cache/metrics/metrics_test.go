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

package metrics

import (
	"testing"
	"time"

	"github.com/trickstercache/tiercache/pkg/observability/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

const testCacheName = "test-cache"

func TestObserveCacheOperation(t *testing.T) {
	ObserveCacheHit(testCacheName, TierMemory, 10)
	ObserveCacheHit(testCacheName, TierMemory, 0)
	ObserveCacheMiss(testCacheName, TierMemory)
	if v := testutil.ToFloat64(metrics.CacheObjectOperations.WithLabelValues(
		testCacheName, TierMemory, "get", "hit")); v != 2 {
		t.Errorf("expected %d got %f", 2, v)
	}
	if v := testutil.ToFloat64(metrics.CacheByteOperations.WithLabelValues(
		testCacheName, TierMemory, "get", "hit")); v != 10 {
		t.Errorf("expected %d got %f", 10, v)
	}
}

func TestObserveCacheDel(t *testing.T) {
	ObserveCacheDel(testCacheName, TierRemote, 0)
	ObserveCacheDel(testCacheName, TierRemote, 3)
	if v := testutil.ToFloat64(metrics.CacheObjectOperations.WithLabelValues(
		testCacheName, TierRemote, "del", "none")); v != 3 {
		t.Errorf("expected %d got %f", 3, v)
	}
}

func TestObserveCacheSizeChange(t *testing.T) {
	ObserveCacheSizeChange(testCacheName, TierMemory, 100, 4)
	if v := testutil.ToFloat64(metrics.CacheBytes.WithLabelValues(testCacheName, TierMemory)); v != 100 {
		t.Errorf("expected %d got %f", 100, v)
	}
}

func TestObserveWriteBehind(t *testing.T) {
	ObserveQueueDepth(testCacheName, 7)
	if v := testutil.ToFloat64(metrics.WriteBehindPending.WithLabelValues(testCacheName)); v != 7 {
		t.Errorf("expected %d got %f", 7, v)
	}
	ObserveFlush(testCacheName, "high", 2, 1, time.Millisecond)
	ObserveDropped(testCacheName, "low", 1)
	if v := testutil.ToFloat64(metrics.WriteBehindRecords.WithLabelValues(
		testCacheName, "high", "failed")); v != 1 {
		t.Errorf("expected %d got %f", 1, v)
	}
}

func TestObserveMisc(t *testing.T) {
	ObserveCacheEvent(testCacheName, TierMemory, "eviction", "pressure")
	ObserveLoad(testCacheName, "ok", time.Millisecond)
	ObserveInvalidation(testCacheName, "tag", 2)
	ObserveInvalidationMessage(testCacheName, "out", "ok")
	ObserveCoalesced(testCacheName, "shared")
	if v := testutil.ToFloat64(metrics.InvalidationKeys.WithLabelValues(testCacheName, "tag")); v != 2 {
		t.Errorf("expected %d got %f", 2, v)
	}
}
