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

package manager

import (
	"context"
	"errors"
	"time"

	"github.com/trickstercache/tiercache/pkg/cache"
	"github.com/trickstercache/tiercache/pkg/cache/key"
	"github.com/trickstercache/tiercache/pkg/cache/metrics"
	"github.com/trickstercache/tiercache/pkg/cache/status"
	"github.com/trickstercache/tiercache/pkg/observability/logging"
	"github.com/trickstercache/tiercache/pkg/observability/logging/logger"
	"github.com/trickstercache/tiercache/pkg/observability/tracing/span"

	"go.opentelemetry.io/otel/attribute"
)

// GetOptions controls a single lookup
type GetOptions[V any] struct {
	// Loader is called on a miss in both tiers, and for background refresh
	// of hot keys. Its value is stored with the Set options.
	Loader Loader[V]
	// StaleIfError serves an expired in-process entry when the remote tier fails
	StaleIfError bool
	// MaxStale bounds how long ago a served stale entry may have expired.
	// Zero uses memory.stale_retention.
	MaxStale time.Duration
	// RefreshTTL re-applies a jittered TTL to a remote hit, sliding its expiry
	RefreshTTL bool
	// Set is used to store loaded and refreshed values
	Set SetOptions
}

type coalesced[V any] struct {
	v     V
	found bool
}

type refreshJob[V any] struct {
	k      key.Key
	loader Loader[V]
	set    SetOptions
}

// Get returns the value for k and whether it was found
func (m *Manager[V]) Get(ctx context.Context, k key.Key, o GetOptions[V]) (V, bool, error) {
	v, s, err := m.Lookup(ctx, k, o)
	return v, s.Found(), err
}

// Lookup returns the value for k and how it was resolved
func (m *Manager[V]) Lookup(ctx context.Context, k key.Key,
	o GetOptions[V]) (V, status.LookupStatus, error) {
	var zero V
	if err := m.checkOpen(); err != nil {
		return zero, status.LookupStatusError, err
	}
	if err := k.Validate(); err != nil {
		return zero, status.LookupStatusError, err
	}
	ctx, sp := span.NewChildSpan(ctx, m.tracer, "Get",
		attribute.String("cache.key", k.String()))
	v, s, err := m.lookup(ctx, k, o)
	span.SetAttributes(sp, attribute.String("cache.status", s.String()))
	span.End(sp, err)
	return v, s, err
}

func (m *Manager[V]) lookup(ctx context.Context, k key.Key,
	o GetOptions[V]) (V, status.LookupStatus, error) {
	var zero V
	fk := m.remoteKey(k)

	if m.filter != nil && !m.filter.MightContain(fk) {
		if o.Loader != nil {
			return m.load(ctx, k, o)
		}
		return zero, status.LookupStatusNegativeHit, nil
	}

	if v, ok := m.fromMemory(fk); ok {
		m.tracker.Record(fk)
		if o.Loader != nil && m.tracker.ShouldRefresh(fk) {
			m.scheduleRefresh(k, o)
		}
		return v, status.LookupStatusHit, nil
	}

	v, s, err := m.fromRemote(ctx, k, fk, o)
	if s == status.LookupStatusKeyMiss && o.Loader != nil {
		return m.load(ctx, k, o)
	}
	return v, s, err
}

// fromMemory returns the unexpired in-process value for fk
func (m *Manager[V]) fromMemory(fk string) (V, bool) {
	var zero V
	e, ok := m.l1.Get(fk)
	if !ok {
		return zero, false
	}
	v, ok := e.Value.(V)
	return v, ok
}

func (m *Manager[V]) fromRemote(ctx context.Context, k key.Key, fk string,
	o GetOptions[V]) (V, status.LookupStatus, error) {
	var zero V
	b, err := m.store.Get(ctx, fk)
	switch {
	case errors.Is(err, cache.ErrKNF):
		metrics.ObserveCacheMiss(m.name, metrics.TierRemote)
		return zero, status.LookupStatusKeyMiss, nil
	case err != nil:
		return m.remoteFailed(ctx, k, fk, o, err)
	}
	metrics.ObserveCacheHit(m.name, metrics.TierRemote, float64(len(b)))

	env, err := decodeEnvelope(b)
	if err != nil {
		return zero, status.LookupStatusError, err
	}
	payload, err := env.payload()
	if err != nil {
		return zero, status.LookupStatusError, err
	}
	v, err := m.codec.Unmarshal(payload)
	if err != nil {
		return zero, status.LookupStatusError, err
	}
	m.filterAdd(fk)
	count := m.tracker.Record(fk)

	expiresAt := env.ExpiresAt
	if o.RefreshTTL {
		ttl := m.refreshTTL(k, o.Set)
		if err := m.store.Expire(ctx, fk, ttl); err != nil {
			logger.Warn("remote ttl refresh failed", logging.Pairs{
				"cacheName": m.name, "cacheKey": fk, "detail": err.Error(),
			})
		} else {
			expiresAt = m.now().Add(ttl)
		}
	}

	m.promote(fk, v, env, int64(len(b)), count, expiresAt)
	return v, status.LookupStatusRemoteHit, nil
}

// promote copies a remote hit into the in-process tier when the key is hot,
// or has been read often enough, and memory pressure allows
func (m *Manager[V]) promote(fk string, v V, env *envelope, size, count int64,
	expiresAt time.Time) {
	hot := m.tracker.IsHot(fk)
	if size > m.l1.MaxItemSize() ||
		!(hot || count > m.cfg.Promotion.MinAccesses) ||
		!(m.l1.MemoryPressure() < m.l1.HardLimit() || hot) {
		return
	}
	if !expiresAt.After(m.now()) {
		return
	}
	nl, err := m.locker.Acquire(fk)
	if err != nil {
		return
	}
	defer nl.Release()
	// a local write since the remote read wins
	if m.l1.Exists(fk) {
		return
	}
	err = m.l1.Set(&cache.Entry{
		Key:         fk,
		Value:       v,
		CreatedAt:   env.CreatedAt,
		ExpiresAt:   expiresAt,
		Tags:        env.Tags,
		SizeBytes:   size,
		Compression: env.Compression,
	})
	if err == nil {
		metrics.ObserveCacheEvent(m.name, metrics.TierMemory, "promotion", "none")
	}
}

// remoteFailed serves a stale in-process entry when allowed, and otherwise
// hands the error to the degradation hook
func (m *Manager[V]) remoteFailed(ctx context.Context, k key.Key, fk string,
	o GetOptions[V], err error) (V, status.LookupStatus, error) {
	var zero V
	metrics.ObserveCacheOperation(m.name, metrics.TierRemote, "get", "error", 0)
	if o.StaleIfError {
		maxStale := o.MaxStale
		if maxStale <= 0 {
			maxStale = m.cfg.Memory.StaleRetention
		}
		if e, ok := m.l1.GetStale(fk, maxStale); ok {
			if v, ok := e.Value.(V); ok {
				logger.Debug("serving stale entry", logging.Pairs{
					"cacheName": m.name, "cacheKey": fk, "detail": err.Error(),
				})
				return v, status.LookupStatusStale, nil
			}
		}
	}
	logger.WarnOnce("remote.get."+m.name, "remote store read failed", logging.Pairs{
		"cacheName": m.name, "detail": err.Error(),
	})
	if m.degrade == nil {
		return zero, status.LookupStatusError, err
	}
	if derr := m.degrade(ctx, k, err); derr != nil {
		return zero, status.LookupStatusError, derr
	}
	return zero, status.LookupStatusKeyMiss, nil
}

// load runs the loader and stores its value. A failure to store is logged,
// since the caller still receives the loaded value.
func (m *Manager[V]) load(ctx context.Context, k key.Key,
	o GetOptions[V]) (V, status.LookupStatus, error) {
	var zero V
	start := m.now()
	v, err := o.Loader(ctx, k)
	if err != nil {
		metrics.ObserveLoad(m.name, "error", m.now().Sub(start))
		return zero, status.LookupStatusError, err
	}
	metrics.ObserveLoad(m.name, "ok", m.now().Sub(start))
	if err := m.Set(ctx, k, v, o.Set); err != nil {
		logger.Warn("storing loaded value failed", logging.Pairs{
			"cacheName": m.name, "cacheKey": k.String(), "detail": err.Error(),
		})
	}
	return v, status.LookupStatusLoaded, nil
}

// refreshTTL is the TTL re-applied to a remote hit
func (m *Manager[V]) refreshTTL(k key.Key, o SetOptions) time.Duration {
	p := m.cfg.Policy(k.Namespace)
	ttl, j := p.TTL, p.Jitter
	if o.TTL > 0 {
		ttl = o.TTL
	}
	if o.Jitter != nil {
		j = *o.Jitter
	}
	return m.jitter(ttl, j)
}

// scheduleRefresh queues a background reload of a hot key. It never blocks:
// the refresh is skipped when the limiter or the worker pool is saturated.
func (m *Manager[V]) scheduleRefresh(k key.Key, o GetOptions[V]) {
	if !m.limiter.Allow() {
		metrics.ObserveCacheEvent(m.name, metrics.TierMemory, "refresh", "rate_limited")
		return
	}
	select {
	case m.refreshCh <- refreshJob[V]{k: k, loader: o.Loader, set: o.Set}:
	default:
		metrics.ObserveCacheEvent(m.name, metrics.TierMemory, "refresh", "overloaded")
	}
}

func (m *Manager[V]) refreshWorker() error {
	for {
		select {
		case <-m.ctx.Done():
			return nil
		case job := <-m.refreshCh:
			m.refresh(job)
		}
	}
}

func (m *Manager[V]) refresh(job refreshJob[V]) {
	ctx, cancel := context.WithTimeout(m.ctx, m.cfg.Coalescer.Timeout)
	defer cancel()
	fk := m.remoteKey(job.k)
	_, _, err := m.coalescer.Coalesce(ctx, "refresh/"+fk, func(ctx context.Context) (any, error) {
		v, err := job.loader(ctx, job.k)
		if err != nil {
			return nil, err
		}
		return v, m.Set(ctx, job.k, v, job.set)
	})
	if err != nil {
		metrics.ObserveCacheEvent(m.name, metrics.TierMemory, "refresh", "error")
		logger.Debug("background refresh failed", logging.Pairs{
			"cacheName": m.name, "cacheKey": fk, "detail": err.Error(),
		})
		return
	}
	metrics.ObserveCacheEvent(m.name, metrics.TierMemory, "refresh", "ok")
}

// GetCoalesced is Get with concurrent misses for the same key sharing one
// remote read and one loader call
func (m *Manager[V]) GetCoalesced(ctx context.Context, k key.Key, loader Loader[V],
	o GetOptions[V]) (V, bool, error) {
	var zero V
	if err := m.checkOpen(); err != nil {
		return zero, false, err
	}
	if err := k.Validate(); err != nil {
		return zero, false, err
	}
	fk := m.remoteKey(k)
	if v, ok := m.fromMemory(fk); ok {
		m.tracker.Record(fk)
		return v, true, nil
	}
	o.Loader = loader
	r, _, err := m.coalescer.Coalesce(ctx, fk, func(ctx context.Context) (any, error) {
		v, found, err := m.Get(ctx, k, o)
		return coalesced[V]{v, found}, err
	})
	if err != nil {
		return zero, false, err
	}
	res := r.(coalesced[V])
	return res.v, res.found, nil
}
