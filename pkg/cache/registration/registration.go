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

// Package registration builds a complete cache manager, with its remote
// store, durability log and invalidation transport, from configuration
package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/trickstercache/tiercache/pkg/cache"
	"github.com/trickstercache/tiercache/pkg/cache/codec"
	"github.com/trickstercache/tiercache/pkg/cache/invalidation"
	"github.com/trickstercache/tiercache/pkg/cache/invalidation/transports/etcd"
	"github.com/trickstercache/tiercache/pkg/cache/invalidation/transports/local"
	rt "github.com/trickstercache/tiercache/pkg/cache/invalidation/transports/redis"
	"github.com/trickstercache/tiercache/pkg/cache/manager"
	"github.com/trickstercache/tiercache/pkg/cache/providers"
	"github.com/trickstercache/tiercache/pkg/cache/redis"
	"github.com/trickstercache/tiercache/pkg/config"
	"github.com/trickstercache/tiercache/pkg/observability/logging"
	"github.com/trickstercache/tiercache/pkg/observability/logging/logger"
	lo "github.com/trickstercache/tiercache/pkg/observability/logging/options"
	tr "github.com/trickstercache/tiercache/pkg/observability/tracing/registration"
)

// connectTimeout bounds the startup ping of the remote store
const connectTimeout = 5 * time.Second

// LocalHub connects the caches of this process that use the local
// invalidation provider
var LocalHub = local.NewHub()

// New returns a running Manager for cfg, encoding values with c. Options are
// applied after the configured durability log, transport and tracer, so they
// may override any of them.
func New[V any](cfg *config.Options, c codec.Codec[V],
	opts ...manager.Option) (*manager.Manager[V], error) {
	if cfg == nil {
		cfg = config.New()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	tp, err := tr.NewTracerProvider(cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", cache.ErrInvalidConfiguration, err)
	}
	store, err := redis.New(cfg.Name, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", cache.ErrInvalidConfiguration, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := store.Connect(ctx); err != nil {
		// the remote tier is treated as transiently unavailable
		logger.Warn("redis store unreachable at startup", logging.Pairs{
			"cacheName": cfg.Name, "detail": err.Error(),
		})
	}

	l, err := providers.Open(cfg.DurabilityLog)
	if err != nil {
		store.Close()
		return nil, err
	}
	t, err := NewTransport(cfg.Invalidation, store)
	if err != nil {
		l.Close()
		store.Close()
		return nil, err
	}

	mo := []manager.Option{manager.WithDurabilityLog(l), manager.WithTracer(tp)}
	if t != nil {
		mo = append(mo, manager.WithTransport(t))
	}
	m, err := manager.New(cfg, store, c, append(mo, opts...)...)
	if err != nil {
		var errs []error
		if t != nil {
			errs = append(errs, t.Close())
		}
		errs = append(errs, l.Close(), store.Close())
		return nil, errors.Join(append([]error{err}, errs...)...)
	}
	return m, nil
}

// NewTransport returns the invalidation transport for the configured
// provider, or nil when invalidation is disabled. The redis provider
// publishes through the store's client.
func NewTransport(o *config.InvalidationOptions,
	store *redis.Store) (invalidation.Transport, error) {
	if o == nil {
		return nil, nil
	}
	switch o.Provider {
	case "", config.InvalidationNone:
		return nil, nil
	case config.InvalidationLocal:
		return LocalHub.Transport(), nil
	case config.InvalidationRedis:
		if store == nil {
			return nil, fmt.Errorf("%w: redis invalidation requires a redis store",
				cache.ErrInvalidConfiguration)
		}
		return rt.New(store.Client()), nil
	case config.InvalidationEtcd:
		return etcd.New(o.Etcd)
	}
	return nil, fmt.Errorf("%w: %w: %s", cache.ErrInvalidConfiguration,
		config.ErrInvalidInvalidation, o.Provider)
}

// SetupLogging replaces the package logger with one built from o
func SetupLogging(o *lo.Options) {
	logger.SetLogger(logging.New(o))
}
