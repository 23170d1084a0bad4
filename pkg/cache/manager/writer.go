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
	"slices"

	"github.com/trickstercache/tiercache/pkg/cache/durability"
	"github.com/trickstercache/tiercache/pkg/cache/metrics"
	"github.com/trickstercache/tiercache/pkg/locks"
	"github.com/trickstercache/tiercache/pkg/observability/logging"
	"github.com/trickstercache/tiercache/pkg/observability/logging/logger"
)

// writeBatch writes queued records to the remote tier in one pipeline and
// returns the records with a failed command. Records already expired are
// considered written. The key locks are held across the round trip so that
// no local write to a key interleaves with its queued write.
func (m *Manager[V]) writeBatch(ctx context.Context,
	recs []*durability.Record) ([]*durability.Record, error) {
	for _, nl := range m.lockKeys(recs) {
		defer nl.Release()
	}
	stale := m.queue.Superseded(recs)
	p := m.store.Pipeline()
	var owners, written []*durability.Record
	now := m.now()
	for _, rec := range recs {
		if slices.Contains(stale, rec) {
			continue
		}
		ttl := rec.Timestamp.Add(rec.TTL).Sub(now)
		if ttl <= 0 {
			metrics.ObserveCacheEvent(m.name, metrics.TierRemote, "write_behind", "expired")
			continue
		}
		p.Set(rec.Key, rec.Value, ttl, rec.Condition)
		owners = append(owners, rec)
		written = append(written, rec)
		for _, tag := range rec.Tags {
			p.SetAdd(m.tagKey(tag), rec.Key)
			owners = append(owners, rec)
		}
		for _, tag := range rec.Untags {
			p.SetRemove(m.tagKey(tag), rec.Key)
			owners = append(owners, rec)
		}
	}
	errs, err := p.Exec(ctx)
	if err != nil {
		return recs, err
	}
	m.undoSuperseded(ctx, written)
	var failed []*durability.Record
	var first error
	for i, e := range errs {
		if e == nil {
			continue
		}
		if first == nil {
			first = e
		}
		if rec := owners[i]; len(failed) == 0 || failed[len(failed)-1] != rec {
			failed = append(failed, rec)
		}
	}
	return failed, first
}

// lockKeys acquires the write lock of each distinct key in recs, in key order
func (m *Manager[V]) lockKeys(recs []*durability.Record) []locks.NamedLock {
	keys := make([]string, 0, len(recs))
	for _, rec := range recs {
		keys = append(keys, rec.Key)
	}
	slices.Sort(keys)
	keys = slices.Compact(keys)
	out := make([]locks.NamedLock, 0, len(keys))
	for _, k := range keys {
		nl, err := m.locker.Acquire(k)
		if err != nil {
			continue
		}
		out = append(out, nl)
	}
	return out
}

// undoSuperseded removes written records that were deleted or invalidated
// while their write was in flight
func (m *Manager[V]) undoSuperseded(ctx context.Context, written []*durability.Record) {
	stale := m.queue.Superseded(written)
	if len(stale) == 0 {
		return
	}
	keys := make([]string, 0, len(stale))
	for _, rec := range stale {
		keys = append(keys, rec.Key)
	}
	if _, err := m.store.Delete(ctx, keys...); err != nil {
		logger.Warn("failed to remove superseded write-behind keys", logging.Pairs{
			"cacheName": m.name, "keys": len(keys), "detail": err.Error(),
		})
	}
}

// writeFailed forwards failed write-behind batches to the caller's callback
func (m *Manager[V]) writeFailed(err error, recs []*durability.Record) {
	if m.onWriteFailure != nil {
		m.onWriteFailure(err, recs)
	}
}
