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

package config

import "time"

const (
	DefaultName       = "default"
	DefaultTTL        = 5 * time.Minute
	DefaultJitter     = 0.1
	DefaultDurability = "immediate"

	DefaultMaxItems         = 10000
	DefaultMaxSizeBytes     = 64 << 20
	DefaultMaxItemSizeBytes = 1 << 20
	DefaultSoftLimit        = 0.8
	DefaultHardLimit        = 0.95
	DefaultEvictFraction    = 0.1
	DefaultCleanupInterval  = 30 * time.Second
	DefaultStaleRetention   = 5 * time.Minute

	DefaultBatchSize     = 100
	DefaultFlushInterval = time.Second
	DefaultEscalateAfter = 5

	DefaultDurabilityLogProvider = "none"
	DefaultSyncInterval          = 100 * time.Millisecond
	DefaultBucket                = "tiercache"

	DefaultExpectedItems     = 100000
	DefaultFalsePositiveRate = 0.01

	DefaultHotThreshold       = 10
	DefaultHotWindow          = time.Minute
	DefaultRefreshProbability = 0.1
	DefaultRefreshRateLimit   = 50
	DefaultRefreshBurst       = 10
	DefaultRefreshWorkers     = 4
	DefaultPruneInterval      = time.Minute

	DefaultCoalescerTimeout = 5 * time.Second
	DefaultMaxPending       = 1000

	DefaultCompressionThreshold = 1024
	DefaultCompressionAlgorithm = "zstd"

	DefaultPromotionMinAccesses = 1

	DefaultInvalidationProvider = "none"
	DefaultInvalidationTopic    = "tiercache:invalidation"
	DefaultScanBatchSize        = 500
	DefaultEtcdDialTimeout      = 5 * time.Second
)

// Durability log providers
const (
	DurabilityLogNone   = "none"
	DurabilityLogFile   = "file"
	DurabilityLogBBolt  = "bbolt"
	DurabilityLogBadger = "badger"
)

// Invalidation providers
const (
	InvalidationNone  = "none"
	InvalidationLocal = "local"
	InvalidationRedis = "redis"
	InvalidationEtcd  = "etcd"
)
