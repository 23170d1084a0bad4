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

// Package metrics defines the prometheus collectors for tiercache. Collectors
// are registered with the default registerer; exposing them is left to the
// embedding application.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricNamespace       = "tiercache"
	cacheSubsystem        = "cache"
	writeBehindSubsystem  = "write_behind"
	invalidationSubsystem = "invalidation"
	coalescerSubsystem    = "coalescer"
)

// Default histogram buckets used by tiercache, in seconds
var (
	defaultBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}
)

// CacheObjectOperations is a Counter of operations (in # of objects) performed on a cache tier
var CacheObjectOperations *prometheus.CounterVec

// CacheByteOperations is a Counter of operations (in # of bytes) performed on a cache tier
var CacheByteOperations *prometheus.CounterVec

// CacheEvents is a Counter of events, like evictions, occurring in a cache tier
var CacheEvents *prometheus.CounterVec

// CacheObjects is a Gauge representing the number of objects in a cache tier
var CacheObjects *prometheus.GaugeVec

// CacheBytes is a Gauge representing the number of bytes in a cache tier
var CacheBytes *prometheus.GaugeVec

// CacheLoadDuration is a Histogram of time spent in caller-supplied loaders
var CacheLoadDuration *prometheus.HistogramVec

// WriteBehindPending is a Gauge of records waiting in the write-behind queue
var WriteBehindPending *prometheus.GaugeVec

// WriteBehindRecords is a Counter of records flushed by the write-behind queue
var WriteBehindRecords *prometheus.CounterVec

// WriteBehindFlushDuration is a Histogram of time spent flushing a queue tier
var WriteBehindFlushDuration *prometheus.HistogramVec

// InvalidationKeys is a Counter of keys removed by invalidations
var InvalidationKeys *prometheus.CounterVec

// InvalidationMessages is a Counter of invalidation messages published and received
var InvalidationMessages *prometheus.CounterVec

// CoalescerRequests is a Counter of requests handled by the request coalescer
var CoalescerRequests *prometheus.CounterVec

func init() {

	CacheObjectOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Subsystem: cacheSubsystem,
			Name:      "operation_objects_total",
			Help:      "Count (in # of objects) of operations performed on a cache tier.",
		},
		[]string{"cache_name", "tier", "operation", "status"},
	)

	CacheByteOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Subsystem: cacheSubsystem,
			Name:      "operation_bytes_total",
			Help:      "Count (in bytes) of operations performed on a cache tier.",
		},
		[]string{"cache_name", "tier", "operation", "status"},
	)

	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Subsystem: cacheSubsystem,
			Name:      "events_total",
			Help:      "Count of events occurring in a cache tier.",
		},
		[]string{"cache_name", "tier", "event", "reason"},
	)

	CacheObjects = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Subsystem: cacheSubsystem,
			Name:      "usage_objects",
			Help:      "Number of objects in a cache tier.",
		},
		[]string{"cache_name", "tier"},
	)

	CacheBytes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Subsystem: cacheSubsystem,
			Name:      "usage_bytes",
			Help:      "Number of bytes in a cache tier.",
		},
		[]string{"cache_name", "tier"},
	)

	CacheLoadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricNamespace,
			Subsystem: cacheSubsystem,
			Name:      "load_duration_seconds",
			Help:      "Time required in seconds to run a loader on a cache miss.",
			Buckets:   defaultBuckets,
		},
		[]string{"cache_name", "status"},
	)

	WriteBehindPending = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: metricNamespace,
			Subsystem: writeBehindSubsystem,
			Name:      "pending_records",
			Help:      "Number of records waiting to be written to the remote store.",
		},
		[]string{"cache_name"},
	)

	WriteBehindRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Subsystem: writeBehindSubsystem,
			Name:      "records_total",
			Help:      "Count of records flushed to the remote store, by priority and status.",
		},
		[]string{"cache_name", "priority", "status"},
	)

	WriteBehindFlushDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: metricNamespace,
			Subsystem: writeBehindSubsystem,
			Name:      "flush_duration_seconds",
			Help:      "Time required in seconds to flush one priority tier.",
			Buckets:   defaultBuckets,
		},
		[]string{"cache_name", "priority"},
	)

	InvalidationKeys = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Subsystem: invalidationSubsystem,
			Name:      "keys_total",
			Help:      "Count of keys removed by invalidations, by selector kind.",
		},
		[]string{"cache_name", "kind"},
	)

	InvalidationMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Subsystem: invalidationSubsystem,
			Name:      "messages_total",
			Help:      "Count of invalidation messages, by direction and status.",
		},
		[]string{"cache_name", "direction", "status"},
	)

	CoalescerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: metricNamespace,
			Subsystem: coalescerSubsystem,
			Name:      "requests_total",
			Help:      "Count of coalesced requests, by result.",
		},
		[]string{"cache_name", "result"},
	)

	prometheus.MustRegister(CacheObjectOperations)
	prometheus.MustRegister(CacheByteOperations)
	prometheus.MustRegister(CacheEvents)
	prometheus.MustRegister(CacheObjects)
	prometheus.MustRegister(CacheBytes)
	prometheus.MustRegister(CacheLoadDuration)
	prometheus.MustRegister(WriteBehindPending)
	prometheus.MustRegister(WriteBehindRecords)
	prometheus.MustRegister(WriteBehindFlushDuration)
	prometheus.MustRegister(InvalidationKeys)
	prometheus.MustRegister(InvalidationMessages)
	prometheus.MustRegister(CoalescerRequests)
}
