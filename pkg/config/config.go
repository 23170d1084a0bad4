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

// Package config provides the tiercache configuration options, their
// defaults, loading from YAML and validation
package config

import (
	"slices"
	"time"

	ro "github.com/trickstercache/tiercache/pkg/cache/redis/options"
	"github.com/trickstercache/tiercache/pkg/config/types"
	lo "github.com/trickstercache/tiercache/pkg/observability/logging/options"
	to "github.com/trickstercache/tiercache/pkg/observability/tracing/options"
)

// Options is the complete tiercache configuration
type Options struct {
	// Name identifies the cache in logs, metrics and spans
	Name string `yaml:"name,omitempty"`
	// KeyPrefix is prepended to every key written to the remote tier
	KeyPrefix string `yaml:"key_prefix,omitempty"`
	// DefaultTTL is the TTL of entries whose namespace and Set call provide none
	DefaultTTL time.Duration `yaml:"default_ttl,omitempty"`
	// Jitter is the fraction by which TTLs are randomly perturbed, in [0, 1)
	Jitter float64 `yaml:"jitter,omitempty"`
	// DefaultDurability is one of immediate, deferred or eventual
	DefaultDurability string `yaml:"default_durability,omitempty"`
	// Namespaces provides per-namespace overrides, keyed by namespace
	Namespaces map[string]*NamespaceOptions `yaml:"namespaces,omitempty"`

	Memory         *MemoryOptions         `yaml:"memory,omitempty"`
	WriteBehind    *WriteBehindOptions    `yaml:"write_behind,omitempty"`
	DurabilityLog  *DurabilityLogOptions  `yaml:"durability_log,omitempty"`
	NegativeFilter *NegativeFilterOptions `yaml:"negative_filter,omitempty"`
	HotKeys        *HotKeyOptions         `yaml:"hot_keys,omitempty"`
	Coalescer      *CoalescerOptions      `yaml:"coalescer,omitempty"`
	Compression    *CompressionOptions    `yaml:"compression,omitempty"`
	Promotion      *PromotionOptions      `yaml:"promotion,omitempty"`
	Invalidation   *InvalidationOptions   `yaml:"invalidation,omitempty"`
	Redis          *ro.Options            `yaml:"redis,omitempty"`
	Logging        *lo.Options            `yaml:"logging,omitempty"`
	Tracing        *to.Options            `yaml:"tracing,omitempty"`
}

// NamespaceOptions overrides the global write policy for one namespace.
// Zero values inherit the global setting.
type NamespaceOptions struct {
	TTL         time.Duration `yaml:"ttl,omitempty"`
	Durability  string        `yaml:"durability,omitempty"`
	Compression string        `yaml:"compression,omitempty"`
	Jitter      *float64      `yaml:"jitter,omitempty"`
}

// MemoryOptions configures the in-process tier
type MemoryOptions struct {
	MaxItems         int           `yaml:"max_items,omitempty"`
	MaxSizeBytes     int64         `yaml:"max_size_bytes,omitempty"`
	MaxItemSizeBytes int64         `yaml:"max_item_size_bytes,omitempty"`
	// SoftLimit and HardLimit are fractions of MaxSizeBytes
	SoftLimit       float64       `yaml:"soft_limit,omitempty"`
	HardLimit       float64       `yaml:"hard_limit,omitempty"`
	EvictFraction   float64       `yaml:"evict_fraction,omitempty"`
	CleanupInterval time.Duration `yaml:"cleanup_interval,omitempty"`
	// StaleRetention is how long expired entries stay resident for stale-if-error
	StaleRetention time.Duration `yaml:"stale_retention,omitempty"`
}

// WriteBehindOptions configures the write-behind queue
type WriteBehindOptions struct {
	BatchSize     int           `yaml:"batch_size,omitempty"`
	FlushInterval time.Duration `yaml:"flush_interval,omitempty"`
	// MaxRetries drops eventual records after this many failed attempts; 0 retries forever
	MaxRetries int `yaml:"max_retries,omitempty"`
	// EscalateAfter is the attempt count at which a failing record is logged as an error
	EscalateAfter int `yaml:"escalate_after,omitempty"`
}

// DurabilityLogOptions configures the write-behind durability log
type DurabilityLogOptions struct {
	// Provider is one of none, file, bbolt or badger
	Provider     string        `yaml:"provider,omitempty"`
	Path         string        `yaml:"path,omitempty"`
	SyncInterval time.Duration `yaml:"sync_interval,omitempty"`
	// Bucket is the bbolt bucket name
	Bucket string `yaml:"bucket,omitempty"`
}

// NegativeFilterOptions configures the negative filter
type NegativeFilterOptions struct {
	Enabled           bool          `yaml:"enabled,omitempty"`
	ExpectedItems     int           `yaml:"expected_items,omitempty"`
	FalsePositiveRate float64       `yaml:"false_positive_rate,omitempty"`
	RebuildInterval   time.Duration `yaml:"rebuild_interval,omitempty"`
}

// HotKeyOptions configures hot key tracking and background refresh
type HotKeyOptions struct {
	Threshold          int64         `yaml:"threshold,omitempty"`
	Window             time.Duration `yaml:"window,omitempty"`
	RefreshProbability float64       `yaml:"refresh_probability,omitempty"`
	// RefreshRateLimit is the sustained number of background refreshes per second
	RefreshRateLimit float64       `yaml:"refresh_rate_limit,omitempty"`
	RefreshBurst     int           `yaml:"refresh_burst,omitempty"`
	RefreshWorkers   int           `yaml:"refresh_workers,omitempty"`
	PruneInterval    time.Duration `yaml:"prune_interval,omitempty"`
}

// CoalescerOptions configures the request coalescer
type CoalescerOptions struct {
	Timeout    time.Duration `yaml:"timeout,omitempty"`
	MaxPending int           `yaml:"max_pending,omitempty"`
}

// CompressionOptions configures value compression in the remote tier
type CompressionOptions struct {
	ThresholdBytes int    `yaml:"threshold_bytes,omitempty"`
	Algorithm      string `yaml:"algorithm,omitempty"`
}

// PromotionOptions configures promotion of remote hits into the in-process tier
type PromotionOptions struct {
	// MinAccesses is the access count a non-hot key must exceed to be promoted
	MinAccesses int64 `yaml:"min_accesses,omitempty"`
}

// InvalidationOptions configures the invalidation channel
type InvalidationOptions struct {
	// Provider is one of none, local, redis or etcd
	Provider      string       `yaml:"provider,omitempty"`
	Topic         string       `yaml:"topic,omitempty"`
	Reliable      bool         `yaml:"reliable,omitempty"`
	ScanBatchSize int64        `yaml:"scan_batch_size,omitempty"`
	Etcd          *EtcdOptions `yaml:"etcd,omitempty"`
}

// EtcdOptions configures the etcd invalidation transport
type EtcdOptions struct {
	Endpoints   []string        `yaml:"endpoints,omitempty"`
	DialTimeout time.Duration   `yaml:"dial_timeout,omitempty"`
	Username    string          `yaml:"username,omitempty"`
	Password    types.EnvString `yaml:"password,omitempty"`
}

// New returns a new Options with default values
func New() *Options {
	return &Options{
		Name:              DefaultName,
		DefaultTTL:        DefaultTTL,
		Jitter:            DefaultJitter,
		DefaultDurability: DefaultDurability,
		Namespaces:        make(map[string]*NamespaceOptions),
		Memory: &MemoryOptions{
			MaxItems:         DefaultMaxItems,
			MaxSizeBytes:     DefaultMaxSizeBytes,
			MaxItemSizeBytes: DefaultMaxItemSizeBytes,
			SoftLimit:        DefaultSoftLimit,
			HardLimit:        DefaultHardLimit,
			EvictFraction:    DefaultEvictFraction,
			CleanupInterval:  DefaultCleanupInterval,
			StaleRetention:   DefaultStaleRetention,
		},
		WriteBehind: &WriteBehindOptions{
			BatchSize:     DefaultBatchSize,
			FlushInterval: DefaultFlushInterval,
			EscalateAfter: DefaultEscalateAfter,
		},
		DurabilityLog: &DurabilityLogOptions{
			Provider:     DefaultDurabilityLogProvider,
			SyncInterval: DefaultSyncInterval,
			Bucket:       DefaultBucket,
		},
		NegativeFilter: &NegativeFilterOptions{
			ExpectedItems:     DefaultExpectedItems,
			FalsePositiveRate: DefaultFalsePositiveRate,
		},
		HotKeys: &HotKeyOptions{
			Threshold:          DefaultHotThreshold,
			Window:             DefaultHotWindow,
			RefreshProbability: DefaultRefreshProbability,
			RefreshRateLimit:   DefaultRefreshRateLimit,
			RefreshBurst:       DefaultRefreshBurst,
			RefreshWorkers:     DefaultRefreshWorkers,
			PruneInterval:      DefaultPruneInterval,
		},
		Coalescer: &CoalescerOptions{
			Timeout:    DefaultCoalescerTimeout,
			MaxPending: DefaultMaxPending,
		},
		Compression: &CompressionOptions{
			ThresholdBytes: DefaultCompressionThreshold,
			Algorithm:      DefaultCompressionAlgorithm,
		},
		Promotion: &PromotionOptions{
			MinAccesses: DefaultPromotionMinAccesses,
		},
		Invalidation: &InvalidationOptions{
			Provider:      DefaultInvalidationProvider,
			Topic:         DefaultInvalidationTopic,
			ScanBatchSize: DefaultScanBatchSize,
			Etcd: &EtcdOptions{
				DialTimeout: DefaultEtcdDialTimeout,
			},
		},
		Redis:   ro.New(),
		Logging: lo.New(),
		Tracing: to.New(),
	}
}

// Clone returns a deep copy of the Options
func (o *Options) Clone() *Options {
	o2 := *o
	o2.Namespaces = make(map[string]*NamespaceOptions, len(o.Namespaces))
	for k, v := range o.Namespaces {
		if v == nil {
			continue
		}
		n := *v
		if v.Jitter != nil {
			j := *v.Jitter
			n.Jitter = &j
		}
		o2.Namespaces[k] = &n
	}
	if o.Memory != nil {
		m := *o.Memory
		o2.Memory = &m
	}
	if o.WriteBehind != nil {
		w := *o.WriteBehind
		o2.WriteBehind = &w
	}
	if o.DurabilityLog != nil {
		d := *o.DurabilityLog
		o2.DurabilityLog = &d
	}
	if o.NegativeFilter != nil {
		n := *o.NegativeFilter
		o2.NegativeFilter = &n
	}
	if o.HotKeys != nil {
		h := *o.HotKeys
		o2.HotKeys = &h
	}
	if o.Coalescer != nil {
		c := *o.Coalescer
		o2.Coalescer = &c
	}
	if o.Compression != nil {
		c := *o.Compression
		o2.Compression = &c
	}
	if o.Promotion != nil {
		p := *o.Promotion
		o2.Promotion = &p
	}
	if o.Invalidation != nil {
		i := *o.Invalidation
		if i.Etcd != nil {
			e := *i.Etcd
			e.Endpoints = slices.Clone(i.Etcd.Endpoints)
			i.Etcd = &e
		}
		o2.Invalidation = &i
	}
	if o.Redis != nil {
		o2.Redis = o.Redis.Clone()
	}
	if o.Logging != nil {
		o2.Logging = o.Logging.Clone()
	}
	if o.Tracing != nil {
		o2.Tracing = o.Tracing.Clone()
	}
	return &o2
}

// NamespaceNames returns the sorted names of the namespaces with overrides
func (o *Options) NamespaceNames() []string {
	names := make([]string, 0, len(o.Namespaces))
	for k := range o.Namespaces {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}
