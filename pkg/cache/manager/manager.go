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

// Package manager provides the two-tier cache: an in-process tier (L1) in
// front of a remote key-value store (L2), with write-behind, cross-instance
// invalidation, a negative filter, hot-key refresh and request coalescing
package manager

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickstercache/tiercache/pkg/cache"
	"github.com/trickstercache/tiercache/pkg/cache/coalesce"
	"github.com/trickstercache/tiercache/pkg/cache/codec"
	"github.com/trickstercache/tiercache/pkg/cache/durability"
	"github.com/trickstercache/tiercache/pkg/cache/hotkeys"
	"github.com/trickstercache/tiercache/pkg/cache/invalidation"
	"github.com/trickstercache/tiercache/pkg/cache/key"
	"github.com/trickstercache/tiercache/pkg/cache/memory"
	"github.com/trickstercache/tiercache/pkg/cache/metrics"
	"github.com/trickstercache/tiercache/pkg/cache/negative"
	"github.com/trickstercache/tiercache/pkg/cache/writebehind"
	"github.com/trickstercache/tiercache/pkg/config"
	"github.com/trickstercache/tiercache/pkg/locks"
	"github.com/trickstercache/tiercache/pkg/observability/logging"
	"github.com/trickstercache/tiercache/pkg/observability/logging/logger"
	"github.com/trickstercache/tiercache/pkg/observability/tracing"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// tagPrefix is the namespace of the remote sets indexing keys by tag
const tagPrefix = key.ReservedPrefix + "tag__" + key.Separator

// Loader loads the value of a key that is in neither tier
type Loader[V any] func(ctx context.Context, k key.Key) (V, error)

// DegradeFunc is called when the remote tier fails a read and no stale
// value could be served. Its return value is returned to the caller; nil
// degrades the read to a miss.
type DegradeFunc func(ctx context.Context, k key.Key, err error) error

// Manager is the two-tier cache for values of type V
type Manager[V any] struct {
	name  string
	cfg   *config.Options
	store cache.Store
	codec codec.Codec[V]

	l1        *memory.Cache
	queue     *writebehind.Queue
	log       durability.Log
	transport invalidation.Transport
	channel   *invalidation.Channel
	filter    *negative.Filter
	tracker   *hotkeys.Tracker
	coalescer *coalesce.Coalescer
	locker    locks.NamedLocker
	limiter   *rate.Limiter
	refreshCh chan refreshJob[V]
	tracer    *tracing.Tracer

	degrade        DegradeFunc
	onWriteFailure writebehind.FailureFunc
	now            func() time.Time
	rnd            func() float64

	ctx    context.Context
	cancel context.CancelFunc
	eg     *errgroup.Group

	// filterMtx orders filter adds against a rebuild swap; adds made while a
	// rebuild scans are journaled in rebuildAdds
	filterMtx   sync.Mutex
	rebuildMtx  sync.Mutex
	rebuildAdds []string

	closed   atomic.Bool
	closeMtx sync.Mutex
}

// Option configures a Manager
type Option func(*settings)

type settings struct {
	log            durability.Log
	transport      invalidation.Transport
	degrade        DegradeFunc
	tp             trace.TracerProvider
	now            func() time.Time
	rnd            func() float64
	onWriteFailure writebehind.FailureFunc
}

// WithDurabilityLog sets the log that persists pending write-behind records.
// The Manager closes it on Close.
func WithDurabilityLog(l durability.Log) Option {
	return func(s *settings) {
		s.log = l
	}
}

// WithTransport enables cross-instance invalidation over t. The Manager
// closes it on Close.
func WithTransport(t invalidation.Transport) Option {
	return func(s *settings) {
		s.transport = t
	}
}

// WithDegradeFunc sets the hook called when a remote read fails
func WithDegradeFunc(f DegradeFunc) Option {
	return func(s *settings) {
		s.degrade = f
	}
}

// WithTracer sets the provider of the Manager's spans
func WithTracer(tp trace.TracerProvider) Option {
	return func(s *settings) {
		s.tp = tp
	}
}

// WithClock sets the time source of the Manager and its in-process tier
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		s.now = now
	}
}

// WithRand sets the source of uniform random numbers in [0, 1) used for
// jitter and refresh sampling
func WithRand(f func() float64) Option {
	return func(s *settings) {
		s.rnd = f
	}
}

// WithWriteFailureFunc sets the callback that receives failed write-behind
// batches
func WithWriteFailureFunc(f writebehind.FailureFunc) Option {
	return func(s *settings) {
		s.onWriteFailure = f
	}
}

// New returns a running Manager over store, encoding values with c. Pending
// records found in the durability log are recovered before New returns.
func New[V any](cfg *config.Options, store cache.Store, c codec.Codec[V],
	opts ...Option) (*Manager[V], error) {
	if cfg == nil {
		cfg = config.New()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("%w: remote store is required", cache.ErrInvalidConfiguration)
	}
	s := &settings{now: time.Now, rnd: rand.Float64}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = durability.Nop{}
	}

	m := &Manager[V]{
		name:           cfg.Name,
		cfg:            cfg,
		store:          store,
		codec:          c,
		log:            s.log,
		transport:      s.transport,
		degrade:        s.degrade,
		onWriteFailure: s.onWriteFailure,
		now:            s.now,
		rnd:            s.rnd,
		locker:         locks.NewNamedLocker(),
		coalescer:      coalesce.New(cfg.Name, cfg.Coalescer),
		tracer:         tracing.New(s.tp, cfg.Name, tracing.Tags{"cache.name": cfg.Name}),
	}
	m.l1 = memory.New(cfg.Name, cfg.Memory, memory.WithClock(s.now),
		memory.WithEvictFunc(func(k string, reason memory.EvictionReason) {
			logger.Debug("memory cache entry evicted", logging.Pairs{
				"cacheName": m.name, "cacheKey": k, "reason": string(reason),
			})
		}))
	m.tracker = hotkeys.New(cfg.HotKeys, hotkeys.WithClock(s.now), hotkeys.WithRand(s.rnd))
	m.limiter = rate.NewLimiter(rate.Limit(cfg.HotKeys.RefreshRateLimit), cfg.HotKeys.RefreshBurst)
	m.refreshCh = make(chan refreshJob[V], cfg.HotKeys.RefreshWorkers)
	if cfg.NegativeFilter.Enabled {
		f, err := negative.New(cfg.NegativeFilter.ExpectedItems,
			cfg.NegativeFilter.FalsePositiveRate)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", cache.ErrInvalidConfiguration, err)
		}
		m.filter = f
	}

	m.queue = writebehind.New(cfg.Name, cfg.WriteBehind, m.log,
		writebehind.BatchWriterFunc(m.writeBatch),
		writebehind.WithClock(s.now),
		writebehind.WithFailureFunc(m.writeFailed))

	m.ctx, m.cancel = context.WithCancel(context.Background())
	m.eg, m.ctx = errgroup.WithContext(m.ctx)

	if n, err := m.queue.Recover(m.ctx); err != nil {
		m.abort()
		return nil, err
	} else if n > 0 {
		// replayed records are written before new traffic can supersede them
		if err := m.queue.Flush(m.ctx); err != nil {
			logger.Warn("recovered write-behind records not yet written", logging.Pairs{
				"cacheName": m.name, "records": n, "detail": err.Error(),
			})
		}
	}

	if m.transport != nil {
		m.channel = invalidation.New(cfg.Name, cfg.Invalidation.Topic, m.transport)
		if err := m.channel.Subscribe(m.ctx, m.remoteInvalidation); err != nil {
			m.abort()
			return nil, err
		}
	}

	if m.filter != nil {
		if _, err := m.RebuildNegativeFilter(m.ctx); err != nil {
			logger.Warn("negative filter initial rebuild failed", logging.Pairs{
				"cacheName": m.name, "detail": err.Error(),
			})
		}
	}

	m.start()
	logger.Info("cache manager started", logging.Pairs{
		"cacheName": m.name, "codec": c.Name(), "durabilityLog": fmt.Sprintf("%T", m.log),
		"invalidation": m.transport != nil, "negativeFilter": m.filter != nil,
	})
	return m, nil
}

// abort releases what New built before failing
func (m *Manager[V]) abort() {
	m.cancel()
	m.queue.Close(context.Background())
	if m.channel != nil {
		m.channel.Close()
	}
}

// start launches the background tasks, which run until Close
func (m *Manager[V]) start() {
	m.every(m.cfg.Memory.CleanupInterval, func() {
		if n := m.l1.DeleteExpired(); n > 0 {
			logger.Debug("memory cache cleanup", logging.Pairs{"cacheName": m.name, "removed": n})
		}
	})
	m.every(m.cfg.HotKeys.PruneInterval, func() {
		m.tracker.Prune()
	})
	if m.filter != nil {
		m.every(m.cfg.NegativeFilter.RebuildInterval, func() {
			if _, err := m.RebuildNegativeFilter(m.ctx); err != nil {
				logger.Warn("negative filter rebuild failed", logging.Pairs{
					"cacheName": m.name, "detail": err.Error(),
				})
			}
		})
	}
	for i := 0; i < m.cfg.HotKeys.RefreshWorkers; i++ {
		m.eg.Go(m.refreshWorker)
	}
}

func (m *Manager[V]) every(d time.Duration, f func()) {
	if d <= 0 {
		return
	}
	m.eg.Go(func() error {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-m.ctx.Done():
				return nil
			case <-ticker.C:
				f()
			}
		}
	})
}

// Name returns the name of the cache
func (m *Manager[V]) Name() string {
	return m.name
}

// Stats is a point-in-time summary of the Manager
type Stats struct {
	Items          int
	Bytes          int64
	MemoryPressure float64
	PendingWrites  int
	TrackedKeys    int
	FilterCount    int64
}

// Stats returns a point-in-time summary of the Manager
func (m *Manager[V]) Stats() Stats {
	s := Stats{
		Items:          m.l1.Len(),
		Bytes:          m.l1.Size(),
		MemoryPressure: m.l1.MemoryPressure(),
		PendingWrites:  m.queue.Len(),
		TrackedKeys:    m.tracker.Len(),
	}
	if m.filter != nil {
		s.FilterCount = m.filter.Count()
	}
	return s
}

// Close stops the background tasks, flushes and closes the write-behind
// queue, and closes the invalidation channel, the durability log and the
// remote store. Close may be called once; every later call, and every other
// operation after it, returns cache.ErrClosed.
func (m *Manager[V]) Close(ctx context.Context) error {
	m.closeMtx.Lock()
	defer m.closeMtx.Unlock()
	if !m.closed.CompareAndSwap(false, true) {
		return cache.ErrClosed
	}
	m.cancel()
	m.eg.Wait()
	var errs []error
	if err := m.queue.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("write-behind queue: %w", err))
	}
	if m.channel != nil {
		if err := m.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("invalidation channel: %w", err))
		}
	}
	if err := m.log.Close(); err != nil {
		errs = append(errs, fmt.Errorf("durability log: %w", err))
	}
	if err := m.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("remote store: %w", err))
	}
	logger.Info("cache manager closed", logging.Pairs{"cacheName": m.name})
	return errors.Join(errs...)
}

func (m *Manager[V]) checkOpen() error {
	if m.closed.Load() {
		return cache.ErrClosed
	}
	return nil
}

// remoteKey returns the key used for k in both tiers
func (m *Manager[V]) remoteKey(k key.Key) string {
	return m.cfg.KeyPrefix + k.String()
}

func (m *Manager[V]) tagKey(tag string) string {
	return m.cfg.KeyPrefix + tagPrefix + tag
}

// jitter perturbs ttl by a uniform fraction in [-j, +j], never below 1ms
func (m *Manager[V]) jitter(ttl time.Duration, j float64) time.Duration {
	if j <= 0 {
		return ttl
	}
	d := ttl + time.Duration(float64(ttl)*j*(2*m.rnd()-1))
	if d < time.Millisecond {
		return time.Millisecond
	}
	return d
}

// remoteInvalidation evicts keys invalidated by another instance
func (m *Manager[V]) remoteInvalidation(keys []string) {
	removed := m.l1.Delete(keys...)
	metrics.ObserveInvalidation(m.name, "remote", len(removed))
	logger.Debug("remote invalidation received", logging.Pairs{
		"cacheName": m.name, "keys": len(keys), "removed": len(removed),
	})
}
