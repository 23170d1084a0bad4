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
	"slices"
	"strings"

	"github.com/trickstercache/tiercache/pkg/cache"
	"github.com/trickstercache/tiercache/pkg/cache/invalidation"
	"github.com/trickstercache/tiercache/pkg/cache/key"
	"github.com/trickstercache/tiercache/pkg/cache/metrics"
	"github.com/trickstercache/tiercache/pkg/observability/logging"
	"github.com/trickstercache/tiercache/pkg/observability/logging/logger"
	"github.com/trickstercache/tiercache/pkg/observability/tracing/span"

	"go.opentelemetry.io/otel/attribute"
)

// ErrEmptySelector is returned for an invalidation with an empty tag or prefix
var ErrEmptySelector = errors.New("invalidation selector is empty")

// removal accumulates the distinct keys removed by one invalidation
type removal struct {
	keys    map[string]struct{}
	ordered []string
}

func newRemoval() *removal {
	return &removal{keys: make(map[string]struct{})}
}

func (r *removal) add(keys ...string) {
	for _, k := range keys {
		if _, ok := r.keys[k]; ok {
			continue
		}
		r.keys[k] = struct{}{}
		r.ordered = append(r.ordered, k)
	}
}

// Delete removes the keys from both tiers and from the pending writes, and
// broadcasts their invalidation. It returns the number of keys removed.
func (m *Manager[V]) Delete(ctx context.Context, keys ...key.Key) (int, error) {
	if err := m.checkOpen(); err != nil {
		return 0, err
	}
	fks := make([]string, 0, len(keys))
	for _, k := range keys {
		if err := k.Validate(); err != nil {
			return 0, err
		}
		fks = append(fks, m.remoteKey(k))
	}
	ctx, sp := span.NewChildSpan(ctx, m.tracer, "Delete",
		attribute.Int("cache.keys", len(fks)))
	r := newRemoval()
	r.add(m.l1.Delete(fks...)...)
	for _, fk := range fks {
		if m.queue.Discard(fk) > 0 {
			r.add(fk)
		}
	}
	err := m.deleteRemote(ctx, fks, r)
	n, err := m.finishInvalidation(ctx, "delete", fks, r, err)
	span.End(sp, err)
	return n, err
}

// InvalidateByTag removes every key whose latest write carries tag
func (m *Manager[V]) InvalidateByTag(ctx context.Context, tag string) (int, error) {
	if err := m.checkOpen(); err != nil {
		return 0, err
	}
	if tag == "" {
		return 0, ErrEmptySelector
	}
	ctx, sp := span.NewChildSpan(ctx, m.tracer, "InvalidateByTag",
		attribute.String("cache.tag", tag))
	r := newRemoval()
	local := m.l1.DeleteByTag(tag)
	r.add(local...)
	pending := m.queue.DiscardTag(tag)
	r.add(pending...)

	resolved := append(local, pending...)
	tk := m.tagKey(tag)
	members, err := m.store.SetMembers(ctx, tk)
	if err == nil {
		members, err = m.taggedMembers(ctx, tag, members, resolved)
	}
	if err == nil {
		resolved = append(resolved, members...)
		r.add(m.l1.Delete(members...)...)
		if err = m.deleteRemote(ctx, resolved, r); err == nil {
			_, err = m.store.Delete(ctx, tk)
		}
	}
	n, err := m.finishInvalidation(ctx, "tag", resolved, r, err)
	span.End(sp, err)
	return n, err
}

// taggedMembers returns the members of a tag index whose remote value is
// missing or still written with tag. Members re-set without the tag since
// they were indexed are left alone. Keys in known are kept without a read.
func (m *Manager[V]) taggedMembers(ctx context.Context, tag string,
	members, known []string) ([]string, error) {
	out := members[:0]
	for _, fk := range members {
		if slices.Contains(known, fk) {
			out = append(out, fk)
			continue
		}
		b, err := m.store.Get(ctx, fk)
		if errors.Is(err, cache.ErrKNF) {
			out = append(out, fk)
			continue
		}
		if err != nil {
			return nil, err
		}
		if env, err := decodeEnvelope(b); err != nil || env.hasTag(tag) {
			out = append(out, fk)
		}
	}
	return out, nil
}

// InvalidateByPrefix removes every key whose canonical form begins with prefix
func (m *Manager[V]) InvalidateByPrefix(ctx context.Context, prefix string) (int, error) {
	if err := m.checkOpen(); err != nil {
		return 0, err
	}
	if prefix == "" {
		return 0, ErrEmptySelector
	}
	ctx, sp := span.NewChildSpan(ctx, m.tracer, "InvalidateByPrefix",
		attribute.String("cache.prefix", prefix))
	n, err := m.invalidatePrefix(ctx, "prefix", prefix)
	span.End(sp, err)
	return n, err
}

// InvalidateByNamespace removes every key in the namespace
func (m *Manager[V]) InvalidateByNamespace(ctx context.Context, namespace string) (int, error) {
	if err := m.checkOpen(); err != nil {
		return 0, err
	}
	if err := key.New(namespace, "*").Validate(); err != nil {
		return 0, err
	}
	ctx, sp := span.NewChildSpan(ctx, m.tracer, "InvalidateByNamespace",
		attribute.String("cache.namespace", namespace))
	n, err := m.invalidatePrefix(ctx, "namespace", key.NamespacePrefix(namespace))
	span.End(sp, err)
	return n, err
}

func (m *Manager[V]) invalidatePrefix(ctx context.Context, kind, prefix string) (int, error) {
	fp := m.cfg.KeyPrefix + prefix
	r := newRemoval()
	local := m.l1.DeleteByPrefix(fp)
	r.add(local...)
	pending := m.queue.DiscardPrefix(fp)
	r.add(pending...)
	resolved := append(local, pending...)

	keys, err := m.scanRemote(ctx, escapeGlob(fp)+"*")
	if err == nil {
		resolved = append(resolved, keys...)
		err = m.deleteRemote(ctx, keys, r)
	}
	return m.finishInvalidation(ctx, kind, resolved, r, err)
}

// scanRemote returns the distinct non-reserved remote keys matching the
// pattern. The scan completes before the caller deletes anything, since the
// Store cursor is not stable under deletion.
func (m *Manager[V]) scanRemote(ctx context.Context, match string) ([]string, error) {
	reserved := m.cfg.KeyPrefix + key.ReservedPrefix
	seen := newRemoval()
	var cursor uint64
	for {
		batch, next, err := m.store.Scan(ctx, cursor, match, m.cfg.Invalidation.ScanBatchSize)
		if err != nil {
			return nil, err
		}
		for _, k := range batch {
			if !strings.HasPrefix(k, reserved) {
				seen.add(k)
			}
		}
		if cursor = next; cursor == 0 {
			return seen.ordered, nil
		}
	}
}

// deleteRemote deletes keys from the remote tier in batches, adding those
// that existed to r
func (m *Manager[V]) deleteRemote(ctx context.Context, keys []string, r *removal) error {
	size := int(m.cfg.Invalidation.ScanBatchSize)
	if size <= 0 {
		size = len(keys)
	}
	for len(keys) > 0 {
		batch := keys[:min(size, len(keys))]
		keys = keys[len(batch):]
		existed, err := m.store.DeleteEach(ctx, batch)
		if err != nil {
			return err
		}
		var n int
		for i, ok := range existed {
			if ok {
				r.add(batch[i])
				n++
			}
		}
		if n > 0 {
			metrics.ObserveCacheDel(m.name, metrics.TierRemote, float64(n))
		}
	}
	return nil
}

// finishInvalidation broadcasts the resolved keys and records the outcome.
// Keys removed before a remote failure are still broadcast and counted.
func (m *Manager[V]) finishInvalidation(ctx context.Context, kind string,
	resolved []string, r *removal, err error) (int, error) {
	if m.channel != nil && len(resolved) > 0 {
		b := newRemoval()
		b.add(resolved...)
		berr := m.channel.Broadcast(ctx, b.ordered,
			invalidation.BroadcastOptions{Reliable: m.cfg.Invalidation.Reliable})
		if berr != nil {
			err = errors.Join(err, fmt.Errorf("broadcast: %w", berr))
		}
	}
	n := len(r.ordered)
	metrics.ObserveInvalidation(m.name, kind, n)
	if err != nil {
		logger.Warn("invalidation incomplete", logging.Pairs{
			"cacheName": m.name, "kind": kind, "removed": n, "detail": err.Error(),
		})
		return n, err
	}
	logger.Debug("invalidation complete", logging.Pairs{
		"cacheName": m.name, "kind": kind, "removed": n,
	})
	return n, nil
}

// RebuildNegativeFilter replaces the negative filter with the keys found in
// the remote tier, the in-process tier and the pending writes, and returns
// the number of keys. It is a no-op when the filter is disabled.
func (m *Manager[V]) RebuildNegativeFilter(ctx context.Context) (int, error) {
	if m.filter == nil {
		return 0, nil
	}
	m.rebuildMtx.Lock()
	defer m.rebuildMtx.Unlock()
	m.filterMtx.Lock()
	m.rebuildAdds = []string{}
	m.filterMtx.Unlock()

	keys, err := m.scanRemote(ctx, escapeGlob(m.cfg.KeyPrefix)+"*")
	if err != nil {
		m.filterMtx.Lock()
		m.rebuildAdds = nil
		m.filterMtx.Unlock()
		return 0, err
	}
	keys = append(keys, m.l1.Keys()...)
	keys = append(keys, m.queue.PendingKeys()...)

	m.filterMtx.Lock()
	keys = append(keys, m.rebuildAdds...)
	m.rebuildAdds = nil
	m.filter.Rebuild(keys)
	m.filterMtx.Unlock()
	logger.Debug("negative filter rebuilt", logging.Pairs{
		"cacheName": m.name, "keys": len(keys),
	})
	return len(keys), nil
}

// escapeGlob escapes the SCAN MATCH metacharacters in s
func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
