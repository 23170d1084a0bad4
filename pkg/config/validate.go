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

import (
	"errors"
	"fmt"

	"github.com/trickstercache/tiercache/pkg/cache"
	"github.com/trickstercache/tiercache/pkg/cache/key"
	"github.com/trickstercache/tiercache/pkg/encoding"
	tr "github.com/trickstercache/tiercache/pkg/observability/tracing/registration"
)

var (
	ErrInvalidTTL            = errors.New("ttl must be greater than zero")
	ErrInvalidJitter         = errors.New("jitter must be in [0, 1)")
	ErrInvalidLimits         = errors.New("memory limits must satisfy 0 < soft_limit < hard_limit <= 1")
	ErrInvalidMemorySize     = errors.New("memory sizes must be positive and max_item_size_bytes <= max_size_bytes")
	ErrInvalidEvictFraction  = errors.New("evict_fraction must be in (0, 1]")
	ErrInvalidBatch          = errors.New("write_behind batch_size and flush_interval must be positive")
	ErrInvalidFilter         = errors.New("negative_filter requires expected_items > 0 and false_positive_rate in (0, 1)")
	ErrInvalidHotKeys        = errors.New("hot_keys requires threshold > 0, window > 0 and refresh_probability in [0, 1]")
	ErrInvalidCoalescer      = errors.New("coalescer timeout and max_pending must be positive")
	ErrInvalidLogProvider    = errors.New("unknown durability_log provider")
	ErrMissingLogPath        = errors.New("durability_log path is required")
	ErrInvalidInvalidation   = errors.New("unknown invalidation provider")
	ErrMissingEtcdEndpoints  = errors.New("invalidation etcd endpoints are required")
	ErrInvalidRedisClient    = errors.New("unknown redis client_type")
	ErrInvalidNamespaceName  = errors.New("invalid namespace name")
	ErrInvalidScanBatchSize  = errors.New("invalidation scan_batch_size must be positive")
	ErrInvalidRetryThreshold = errors.New("write_behind max_retries and escalate_after must not be negative")
)

func invalid(err error, detail ...any) error {
	if len(detail) > 0 {
		return fmt.Errorf("%w: %w: %v", cache.ErrInvalidConfiguration, err, detail[0])
	}
	return fmt.Errorf("%w: %w", cache.ErrInvalidConfiguration, err)
}

// Validate returns an error wrapping cache.ErrInvalidConfiguration if the
// Options cannot be used
func (o *Options) Validate() error {
	if o.DefaultTTL <= 0 {
		return invalid(ErrInvalidTTL, "default_ttl")
	}
	if o.Jitter < 0 || o.Jitter >= 1 {
		return invalid(ErrInvalidJitter, o.Jitter)
	}
	if _, err := cache.ParseDurability(o.DefaultDurability); err != nil {
		return err
	}
	for _, name := range o.NamespaceNames() {
		if err := o.validateNamespace(name, o.Namespaces[name]); err != nil {
			return err
		}
	}
	if err := o.Memory.validate(); err != nil {
		return err
	}
	w := o.WriteBehind
	if w.BatchSize <= 0 || w.FlushInterval <= 0 {
		return invalid(ErrInvalidBatch)
	}
	if w.MaxRetries < 0 || w.EscalateAfter < 0 {
		return invalid(ErrInvalidRetryThreshold)
	}
	switch o.DurabilityLog.Provider {
	case "", DurabilityLogNone:
	case DurabilityLogFile, DurabilityLogBBolt, DurabilityLogBadger:
		if o.DurabilityLog.Path == "" {
			return invalid(ErrMissingLogPath, o.DurabilityLog.Provider)
		}
	default:
		return invalid(ErrInvalidLogProvider, o.DurabilityLog.Provider)
	}
	if nf := o.NegativeFilter; nf.Enabled &&
		(nf.ExpectedItems <= 0 || nf.FalsePositiveRate <= 0 || nf.FalsePositiveRate >= 1) {
		return invalid(ErrInvalidFilter)
	}
	if h := o.HotKeys; h.Threshold <= 0 || h.Window <= 0 ||
		h.RefreshProbability < 0 || h.RefreshProbability > 1 {
		return invalid(ErrInvalidHotKeys)
	}
	if c := o.Coalescer; c.Timeout <= 0 || c.MaxPending <= 0 {
		return invalid(ErrInvalidCoalescer)
	}
	if _, err := encoding.ParseProvider(o.Compression.Algorithm); err != nil {
		return invalid(err, o.Compression.Algorithm)
	}
	switch o.Invalidation.Provider {
	case "", InvalidationNone, InvalidationLocal, InvalidationRedis:
	case InvalidationEtcd:
		if len(o.Invalidation.Etcd.Endpoints) == 0 {
			return invalid(ErrMissingEtcdEndpoints)
		}
	default:
		return invalid(ErrInvalidInvalidation, o.Invalidation.Provider)
	}
	if o.Invalidation.ScanBatchSize <= 0 {
		return invalid(ErrInvalidScanBatchSize)
	}
	switch o.Redis.ClientType {
	case "standard", "cluster", "sentinel":
	default:
		return invalid(ErrInvalidRedisClient, o.Redis.ClientType)
	}
	if err := tr.Validate(o.Tracing); err != nil {
		return invalid(err)
	}
	return nil
}

func (o *Options) validateNamespace(name string, n *NamespaceOptions) error {
	if err := key.New(name, "-").Validate(); err != nil {
		return invalid(ErrInvalidNamespaceName, err)
	}
	if n == nil {
		return nil
	}
	if n.TTL < 0 {
		return invalid(ErrInvalidTTL, name)
	}
	if n.Jitter != nil && (*n.Jitter < 0 || *n.Jitter >= 1) {
		return invalid(ErrInvalidJitter, name)
	}
	if n.Durability != "" {
		if _, err := cache.ParseDurability(n.Durability); err != nil {
			return err
		}
	}
	if n.Compression != "" {
		if _, err := encoding.ParseProvider(n.Compression); err != nil {
			return invalid(err, name)
		}
	}
	return nil
}

func (m *MemoryOptions) validate() error {
	if m.MaxItems <= 0 || m.MaxSizeBytes <= 0 || m.MaxItemSizeBytes <= 0 ||
		m.MaxItemSizeBytes > m.MaxSizeBytes {
		return invalid(ErrInvalidMemorySize)
	}
	if m.SoftLimit <= 0 || m.SoftLimit >= m.HardLimit || m.HardLimit > 1 {
		return invalid(ErrInvalidLimits)
	}
	if m.EvictFraction <= 0 || m.EvictFraction > 1 {
		return invalid(ErrInvalidEvictFraction)
	}
	if m.CleanupInterval <= 0 || m.StaleRetention < 0 {
		return invalid(ErrInvalidTTL, "memory intervals")
	}
	return nil
}
