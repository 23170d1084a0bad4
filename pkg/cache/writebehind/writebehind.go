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

// Package writebehind provides a priority-tiered queue that batches
// asynchronous writes to the remote store. Every record is appended to a
// durability.Log before it is queued, so pending writes survive a restart.
package writebehind

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/trickstercache/tiercache/pkg/cache"
	"github.com/trickstercache/tiercache/pkg/cache/durability"
	"github.com/trickstercache/tiercache/pkg/cache/metrics"
	"github.com/trickstercache/tiercache/pkg/config"
	"github.com/trickstercache/tiercache/pkg/observability/logging"
	"github.com/trickstercache/tiercache/pkg/observability/logging/logger"
)

// ErrRetriesExhausted is reported for eventual records dropped after
// write_behind.max_retries failed attempts
var ErrRetriesExhausted = errors.New("write-behind retries exhausted")

// BatchWriter writes a batch of records to the remote store
type BatchWriter interface {
	// WriteBatch returns the records that could not be written. A non-nil
	// error with no failed records means the whole batch failed.
	WriteBatch(ctx context.Context, recs []*durability.Record) ([]*durability.Record, error)
}

// BatchWriterFunc adapts a function to a BatchWriter
type BatchWriterFunc func(ctx context.Context, recs []*durability.Record) ([]*durability.Record, error)

// WriteBatch calls f(ctx, recs)
func (f BatchWriterFunc) WriteBatch(ctx context.Context,
	recs []*durability.Record) ([]*durability.Record, error) {
	return f(ctx, recs)
}

// FailureFunc receives the error and records of a failed batch, after the
// call that enqueued them has returned
type FailureFunc func(err error, recs []*durability.Record)

// Queue is the write-behind queue
type Queue struct {
	name      string
	opts      config.WriteBehindOptions
	log       durability.Log
	writer    BatchWriter
	onFailure FailureFunc
	now       func() time.Time

	mtx     sync.Mutex
	tiers   [numPriorities][]*durability.Record
	pending map[string]*durability.Record
	closed  bool

	// flushMtx admits one Flush at a time
	flushMtx sync.Mutex
	flushCh  chan struct{}
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// Option configures a Queue
type Option func(*Queue)

// WithFailureFunc sets the callback that receives failed batches
func WithFailureFunc(f FailureFunc) Option {
	return func(q *Queue) {
		q.onFailure = f
	}
}

// WithClock sets the time source used to stamp records
func WithClock(now func() time.Time) Option {
	return func(q *Queue) {
		q.now = now
	}
}

// New returns a Queue that writes through w and persists to l, and starts its
// flush timer. A nil l disables persistence.
func New(name string, o *config.WriteBehindOptions, l durability.Log,
	w BatchWriter, opts ...Option) *Queue {
	if l == nil {
		l = durability.Nop{}
	}
	q := &Queue{
		name:    name,
		opts:    *o,
		log:     l,
		writer:  w,
		now:     time.Now,
		pending: make(map[string]*durability.Record),
		flushCh: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
	if q.opts.BatchSize <= 0 {
		q.opts.BatchSize = config.DefaultBatchSize
	}
	for _, opt := range opts {
		opt(q)
	}
	q.wg.Add(1)
	go q.run()
	return q
}

func (q *Queue) run() {
	defer q.wg.Done()
	var tick <-chan time.Time
	if q.opts.FlushInterval > 0 {
		ticker := time.NewTicker(q.opts.FlushInterval)
		defer ticker.Stop()
		tick = ticker.C
	}
	for {
		select {
		case <-q.stopCh:
			return
		case <-tick:
		case <-q.flushCh:
		}
		if q.Len() == 0 {
			continue
		}
		if err := q.Flush(context.Background()); err != nil {
			logger.Debug("write-behind flush incomplete", logging.Pairs{
				"cacheName": q.name, "detail": err.Error(),
			})
		}
	}
}

// Enqueue persists the record to the durability log and queues it at the
// provided priority, superseding any pending record for the same key.
// High-priority and deferred records are synced to the log before Enqueue
// returns.
func (q *Queue) Enqueue(_ context.Context, rec *durability.Record, p Priority) error {
	if !p.valid() {
		return fmt.Errorf("invalid write-behind priority: %d", p)
	}
	rec.Op = durability.OpSet
	rec.Priority = uint8(p)
	if rec.Timestamp.IsZero() {
		rec.Timestamp = q.now()
	}
	q.mtx.Lock()
	if q.closed {
		q.mtx.Unlock()
		return cache.ErrClosed
	}
	if err := q.log.Append(rec); err != nil {
		q.mtx.Unlock()
		return fmt.Errorf("%w: durability log append: %w", cache.ErrWriteFailure, err)
	}
	q.pending[rec.Key] = rec
	q.tiers[p] = append(q.tiers[p], rec)
	n := len(q.pending)
	q.mtx.Unlock()
	metrics.ObserveQueueDepth(q.name, n)

	if p == High || rec.Durability == cache.DurabilityDeferred {
		if err := q.log.Sync(); err != nil {
			return fmt.Errorf("%w: durability log sync: %w", cache.ErrWriteFailure, err)
		}
	}
	if n >= q.opts.BatchSize {
		select {
		case q.flushCh <- struct{}{}:
		default:
		}
	}
	return nil
}

// Flush drains the High, Normal and Low tiers in order, writing each as one
// batch. Failed records are re-queued at High priority and reported to the
// failure callback, and no lower tier is attempted in the same Flush. After
// a Flush with no failures, the durability log is rewritten to hold exactly
// the records still pending.
func (q *Queue) Flush(ctx context.Context) error {
	q.flushMtx.Lock()
	defer q.flushMtx.Unlock()

	var errs []error
	for p := High; p < numPriorities; p++ {
		recs := q.take(p)
		if len(recs) == 0 {
			continue
		}
		start := time.Now()
		failed, err := q.writer.WriteBatch(ctx, recs)
		if err != nil && len(failed) == 0 {
			failed = recs
		}
		if len(failed) > 0 && err == nil {
			err = fmt.Errorf("%d of %d records not written", len(failed), len(recs))
		}
		dropped, escalated := q.settle(recs, failed)
		metrics.ObserveFlush(q.name, p.String(), len(recs)-len(failed), len(failed),
			time.Since(start))
		if len(failed) == 0 {
			continue
		}
		ferr := fmt.Errorf("%w: %s tier: %w", cache.ErrWriteFailure, p, err)
		q.report(p, ferr, failed, dropped, escalated)
		errs = append(errs, ferr)
		break
	}
	metrics.ObserveQueueDepth(q.name, q.Len())
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return q.compact()
}

// take removes and returns the tier's records that are still the latest
// pending record for their key
func (q *Queue) take(p Priority) []*durability.Record {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	recs := q.tiers[p]
	q.tiers[p] = nil
	out := recs[:0]
	for _, r := range recs {
		if q.pending[r.Key] == r {
			out = append(out, r)
		}
	}
	return out
}

// settle removes written records from the pending set and re-queues failed
// ones at High priority
func (q *Queue) settle(recs, failed []*durability.Record) (dropped, escalated []*durability.Record) {
	isFailed := make(map[*durability.Record]struct{}, len(failed))
	for _, r := range failed {
		isFailed[r] = struct{}{}
	}
	q.mtx.Lock()
	defer q.mtx.Unlock()
	for _, r := range recs {
		if _, ok := isFailed[r]; ok {
			continue
		}
		if q.pending[r.Key] == r {
			delete(q.pending, r.Key)
		}
	}
	for _, r := range failed {
		r.Attempts++
		if q.pending[r.Key] != r {
			// superseded by a newer write while in flight
			continue
		}
		if q.opts.MaxRetries > 0 && r.Durability == cache.DurabilityEventual &&
			r.Attempts >= q.opts.MaxRetries {
			delete(q.pending, r.Key)
			dropped = append(dropped, r)
			continue
		}
		if q.opts.EscalateAfter > 0 && r.Attempts >= q.opts.EscalateAfter {
			escalated = append(escalated, r)
		}
		r.Priority = uint8(High)
		q.tiers[High] = append(q.tiers[High], r)
	}
	return dropped, escalated
}

func (q *Queue) report(p Priority, err error, failed, dropped, escalated []*durability.Record) {
	logger.Warn("write-behind batch failed", logging.Pairs{
		"cacheName": q.name, "priority": p.String(), "records": len(failed),
		"detail": err.Error(),
	})
	if len(escalated) > 0 {
		logger.Error("write-behind records failing repeatedly", logging.Pairs{
			"cacheName": q.name, "records": len(escalated),
			"keys": strings.Join(keysOf(escalated), ","),
		})
		for range escalated {
			metrics.ObserveCacheEvent(q.name, metrics.TierRemote, "escalated", "write_behind")
		}
	}
	if q.onFailure != nil {
		q.onFailure(err, failed)
	}
	if len(dropped) > 0 {
		metrics.ObserveDropped(q.name, Low.String(), len(dropped))
		logger.Error("write-behind records dropped", logging.Pairs{
			"cacheName": q.name, "records": len(dropped),
			"keys": strings.Join(keysOf(dropped), ","),
		})
		if q.onFailure != nil {
			q.onFailure(fmt.Errorf("%w: %w", ErrRetriesExhausted, err), dropped)
		}
	}
}

// compact rewrites the durability log to exactly the pending records
func (q *Queue) compact() error {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	recs := q.pendingBySeq()
	if err := q.log.Truncate(); err != nil {
		return fmt.Errorf("durability log truncate: %w", err)
	}
	if len(recs) == 0 {
		return nil
	}
	if err := q.log.Append(recs...); err != nil {
		return fmt.Errorf("durability log append: %w", err)
	}
	if err := q.log.Sync(); err != nil {
		return fmt.Errorf("durability log sync: %w", err)
	}
	return nil
}

func (q *Queue) pendingBySeq() []*durability.Record {
	recs := make([]*durability.Record, 0, len(q.pending))
	for _, r := range q.pending {
		recs = append(recs, r)
	}
	slices.SortFunc(recs, func(a, b *durability.Record) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})
	return recs
}

// Discard drops any pending records for the keys and appends tombstones to
// the durability log so they are not replayed. It returns the number of
// records dropped.
func (q *Queue) Discard(keys ...string) int {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	var ts []*durability.Record
	for _, k := range keys {
		if _, ok := q.pending[k]; ok {
			delete(q.pending, k)
			ts = append(ts, q.tombstone(k))
		}
	}
	return q.appendTombstones(ts)
}

// DiscardPrefix drops any pending records whose key begins with prefix and
// returns their keys
func (q *Queue) DiscardPrefix(prefix string) []string {
	return q.discardWhere(func(r *durability.Record) bool {
		return strings.HasPrefix(r.Key, prefix)
	})
}

// DiscardTag drops any pending records stored with tag and returns their keys
func (q *Queue) DiscardTag(tag string) []string {
	return q.discardWhere(func(r *durability.Record) bool {
		return slices.Contains(r.Tags, tag)
	})
}

func (q *Queue) discardWhere(f func(*durability.Record) bool) []string {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	var ts []*durability.Record
	var keys []string
	for k, r := range q.pending {
		if f(r) {
			delete(q.pending, k)
			ts = append(ts, q.tombstone(k))
			keys = append(keys, k)
		}
	}
	q.appendTombstones(ts)
	return keys
}

// PendingKeys returns the keys with a pending record
func (q *Queue) PendingKeys() []string {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	keys := make([]string, 0, len(q.pending))
	for k := range q.pending {
		keys = append(keys, k)
	}
	return keys
}

// Superseded returns the records that are no longer the pending record for
// their key, because they were discarded or replaced after being taken for a
// write
func (q *Queue) Superseded(recs []*durability.Record) []*durability.Record {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	var out []*durability.Record
	for _, r := range recs {
		if q.pending[r.Key] != r {
			out = append(out, r)
		}
	}
	return out
}

// Pending returns a copy of the pending record for the key
func (q *Queue) Pending(key string) (*durability.Record, bool) {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	r, ok := q.pending[key]
	if !ok {
		return nil, false
	}
	return r.Clone(), true
}

func (q *Queue) tombstone(key string) *durability.Record {
	return &durability.Record{Op: durability.OpDelete, Key: key, Timestamp: q.now()}
}

func (q *Queue) appendTombstones(ts []*durability.Record) int {
	if len(ts) == 0 || q.closed {
		return len(ts)
	}
	if err := q.log.Append(ts...); err != nil {
		logger.Error("durability log tombstone append failed", logging.Pairs{
			"cacheName": q.name, "records": len(ts), "detail": err.Error(),
		})
	}
	return len(ts)
}

// Recover replays the durability log into the queue and returns the number
// of records restored. It should be called before the queue accepts writes.
func (q *Queue) Recover(_ context.Context) (int, error) {
	recs, err := durability.Latest(q.log)
	if err != nil {
		return 0, fmt.Errorf("durability log replay: %w", err)
	}
	q.mtx.Lock()
	var n int
	for _, r := range recs {
		if _, ok := q.pending[r.Key]; ok {
			continue
		}
		p := Priority(r.Priority)
		if !p.valid() {
			p = Normal
		}
		q.pending[r.Key] = r
		q.tiers[p] = append(q.tiers[p], r)
		n++
	}
	total := len(q.pending)
	q.mtx.Unlock()
	metrics.ObserveQueueDepth(q.name, total)
	if n > 0 {
		logger.Info("recovered write-behind records", logging.Pairs{
			"cacheName": q.name, "records": n,
		})
	}
	return n, nil
}

// Len returns the number of pending records
func (q *Queue) Len() int {
	q.mtx.Lock()
	defer q.mtx.Unlock()
	return len(q.pending)
}

// Close stops the flush timer, rejects further Enqueues and performs a final
// Flush. Records that fail the final Flush remain in the durability log.
func (q *Queue) Close(ctx context.Context) error {
	q.mtx.Lock()
	if q.closed {
		q.mtx.Unlock()
		return cache.ErrClosed
	}
	q.closed = true
	q.mtx.Unlock()
	close(q.stopCh)
	q.wg.Wait()
	return q.Flush(ctx)
}

func keysOf(recs []*durability.Record) []string {
	keys := make([]string, len(recs))
	for i, r := range recs {
		keys[i] = r.Key
	}
	return keys
}
