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
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/trickstercache/tiercache/pkg/cache"
	"github.com/trickstercache/tiercache/pkg/cache/durability"
	"github.com/trickstercache/tiercache/pkg/cache/key"
	"github.com/trickstercache/tiercache/pkg/cache/metrics"
	"github.com/trickstercache/tiercache/pkg/cache/writebehind"
	"github.com/trickstercache/tiercache/pkg/encoding"
	"github.com/trickstercache/tiercache/pkg/observability/logging"
	"github.com/trickstercache/tiercache/pkg/observability/logging/logger"
	"github.com/trickstercache/tiercache/pkg/observability/tracing/span"

	"go.opentelemetry.io/otel/attribute"
)

// ErrNotApplied is returned by a conditional Set whose condition did not hold
var ErrNotApplied = errors.New("conditional write not applied")

// SetOptions controls a single write. Unset fields take the namespace
// policy, then the global defaults.
type SetOptions struct {
	TTL         time.Duration
	Jitter      *float64
	L1Only      bool
	L2Only      bool
	Durability  *cache.Durability
	Tags        []string
	Compression *encoding.Provider
	// Condition makes the write conditional on the key's presence in the
	// remote tier. Conditional writes are always immediate.
	Condition cache.Condition
}

// Set stores the value for k
func (m *Manager[V]) Set(ctx context.Context, k key.Key, v V, o SetOptions) error {
	if err := m.checkOpen(); err != nil {
		return err
	}
	if err := k.Validate(); err != nil {
		return err
	}
	if o.L1Only && (o.L2Only || o.Condition != cache.ConditionNone) {
		return fmt.Errorf("%w: l1-only writes cannot be remote-only or conditional",
			cache.ErrInvalidConfiguration)
	}
	ctx, sp := span.NewChildSpan(ctx, m.tracer, "Set",
		attribute.String("cache.key", k.String()))
	err := m.set(ctx, k, v, o)
	span.End(sp, err)
	return err
}

func (m *Manager[V]) set(ctx context.Context, k key.Key, v V, o SetOptions) error {
	p := m.cfg.Policy(k.Namespace)
	ttl, j, d, comp := p.TTL, p.Jitter, p.Durability, p.Compression
	if o.TTL != 0 {
		ttl = o.TTL
	}
	if ttl <= 0 {
		return fmt.Errorf("%w: ttl must be positive", cache.ErrInvalidConfiguration)
	}
	if o.Jitter != nil {
		j = *o.Jitter
	}
	if o.Durability != nil {
		d = *o.Durability
	}
	if o.Compression != nil {
		comp = *o.Compression
	}
	if o.Condition != cache.ConditionNone {
		d = cache.DurabilityImmediate
	}
	ttl = m.jitter(ttl, j)

	b, err := m.codec.Marshal(v)
	if err != nil {
		return err
	}
	if len(b) < m.cfg.Compression.ThresholdBytes {
		comp = encoding.Identity
	}
	if comp != encoding.Identity {
		if b, err = encoding.Encode(comp, b); err != nil {
			return err
		}
	}
	now := m.now()
	env := &envelope{Compression: comp, CreatedAt: now, ExpiresAt: now.Add(ttl),
		Tags: o.Tags, Data: b}
	eb, err := encodeEnvelope(env)
	if err != nil {
		return err
	}

	fk := m.remoteKey(k)
	e := &cache.Entry{
		Key:         fk,
		Value:       v,
		CreatedAt:   now,
		ExpiresAt:   env.ExpiresAt,
		Tags:        slices.Clone(o.Tags),
		SizeBytes:   int64(len(eb)),
		Compression: comp,
		Durability:  d,
	}

	nl, err := m.locker.Acquire(fk)
	if err != nil {
		return err
	}
	defer nl.Release()

	var untags []string
	if !o.L1Only {
		untags = m.droppedTags(fk, o.Tags)
	}
	if o.Condition != cache.ConditionNone {
		return m.setConditional(ctx, e, eb, ttl, untags, o)
	}

	if err := m.setMemory(e, o); err != nil {
		return err
	}
	m.filterAdd(fk)
	if o.L1Only {
		return nil
	}

	if d == cache.DurabilityImmediate {
		m.queue.Discard(fk)
		return m.writeRemote(ctx, fk, eb, ttl, o.Tags, untags)
	}
	rec := &durability.Record{
		Key:        fk,
		Value:      eb,
		TTL:        ttl,
		Tags:       slices.Clone(o.Tags),
		Untags:     untags,
		Durability: d,
		Timestamp:  now,
	}
	return m.queue.Enqueue(ctx, rec, writebehind.PriorityFor(d))
}

// droppedTags returns the tags fk was last written with, in the in-process
// tier or a pending write, that are not in tags
func (m *Manager[V]) droppedTags(fk string, tags []string) []string {
	var prior []string
	if e, ok := m.l1.GetStale(fk, math.MaxInt64); ok {
		prior = append(prior, e.Tags...)
	}
	if rec, ok := m.queue.Pending(fk); ok {
		prior = append(prior, rec.Tags...)
		prior = append(prior, rec.Untags...)
	}
	var out []string
	for _, t := range prior {
		if !slices.Contains(tags, t) && !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

// setMemory writes e to the in-process tier, or removes a prior entry for a
// remote-only write. An entry too large for the tier is skipped unless the
// write is l1-only.
func (m *Manager[V]) setMemory(e *cache.Entry, o SetOptions) error {
	if o.L2Only {
		m.l1.Delete(e.Key)
		return nil
	}
	err := m.l1.Set(e)
	if errors.Is(err, cache.ErrEntryTooLarge) && !o.L1Only {
		m.l1.Delete(e.Key)
		logger.Debug("entry too large for memory tier", logging.Pairs{
			"cacheName": m.name, "cacheKey": e.Key, "size": e.SizeBytes,
		})
		return nil
	}
	return err
}

func (m *Manager[V]) setConditional(ctx context.Context, e *cache.Entry, eb []byte,
	ttl time.Duration, untags []string, o SetOptions) error {
	applied, err := m.store.Set(ctx, e.Key, eb, ttl, o.Condition)
	if err != nil {
		metrics.ObserveCacheOperation(m.name, metrics.TierRemote, "set", "error", 0)
		return fmt.Errorf("%w: %w", cache.ErrWriteFailure, err)
	}
	if !applied {
		metrics.ObserveCacheOperation(m.name, metrics.TierRemote, "set", "not_applied", 0)
		return ErrNotApplied
	}
	metrics.ObserveCacheOperation(m.name, metrics.TierRemote, "set", "none", float64(len(eb)))
	m.queue.Discard(e.Key)
	for _, tag := range o.Tags {
		if err := m.store.SetAdd(ctx, m.tagKey(tag), e.Key); err != nil {
			return fmt.Errorf("%w: %w", cache.ErrWriteFailure, err)
		}
	}
	for _, tag := range untags {
		if err := m.store.SetRemove(ctx, m.tagKey(tag), e.Key); err != nil {
			return fmt.Errorf("%w: %w", cache.ErrWriteFailure, err)
		}
	}
	if err := m.setMemory(e, o); err != nil {
		return err
	}
	m.filterAdd(e.Key)
	return nil
}

// writeRemote writes the envelope and its tag index entries in one round
// trip, removing fk from the index of each tag in untags
func (m *Manager[V]) writeRemote(ctx context.Context, fk string, eb []byte,
	ttl time.Duration, tags, untags []string) error {
	p := m.store.Pipeline()
	p.Set(fk, eb, ttl, cache.ConditionNone)
	for _, tag := range tags {
		p.SetAdd(m.tagKey(tag), fk)
	}
	for _, tag := range untags {
		p.SetRemove(m.tagKey(tag), fk)
	}
	errs, err := p.Exec(ctx)
	if err == nil {
		err = errors.Join(errs...)
	}
	if err != nil {
		metrics.ObserveCacheOperation(m.name, metrics.TierRemote, "set", "error", 0)
		return fmt.Errorf("%w: %w", cache.ErrWriteFailure, err)
	}
	metrics.ObserveCacheOperation(m.name, metrics.TierRemote, "set", "none", float64(len(eb)))
	return nil
}

// filterAdd records fk in the negative filter, journaling it when a rebuild
// is in progress so the rebuilt filter keeps it
func (m *Manager[V]) filterAdd(fk string) {
	if m.filter == nil {
		return
	}
	m.filterMtx.Lock()
	m.filter.Add(fk)
	if m.rebuildAdds != nil {
		m.rebuildAdds = append(m.rebuildAdds, fk)
	}
	m.filterMtx.Unlock()
}
