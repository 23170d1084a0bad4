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

// Package coalesce collapses concurrent loads of the same key into a single
// call whose result is shared by every waiting caller
package coalesce

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/trickstercache/tiercache/pkg/cache"
	"github.com/trickstercache/tiercache/pkg/cache/metrics"
	"github.com/trickstercache/tiercache/pkg/config"
	"github.com/trickstercache/tiercache/pkg/observability/logging"
	"github.com/trickstercache/tiercache/pkg/observability/logging/logger"

	"golang.org/x/sync/singleflight"
)

// LoadFunc loads the value for a key. The context is detached from the
// cancellation of the caller that started the load and bounded by the
// coalescer timeout.
type LoadFunc func(ctx context.Context) (any, error)

// Coalescer shares in-flight loads per key
type Coalescer struct {
	name       string
	group      singleflight.Group
	timeout    time.Duration
	maxPending int64
	pending    atomic.Int64
}

// New returns a new Coalescer
func New(name string, o *config.CoalescerOptions) *Coalescer {
	if o == nil {
		o = config.New().Coalescer
	}
	return &Coalescer{
		name:       name,
		timeout:    o.Timeout,
		maxPending: int64(o.MaxPending),
	}
}

// Pending returns the number of callers currently waiting on a load
func (c *Coalescer) Pending() int64 {
	return c.pending.Load()
}

// Coalesce returns the result of fn for key, running it only if no call for
// key is already in flight. shared reports whether the result was delivered
// to more than one caller. Callers beyond the pending ceiling receive
// cache.ErrOverloaded; callers still waiting after the timeout receive
// cache.ErrLoadTimeout and the key is released so a new load can start.
func (c *Coalescer) Coalesce(ctx context.Context, key string, fn LoadFunc) (any, bool, error) {
	if c.pending.Add(1) > c.maxPending {
		c.pending.Add(-1)
		metrics.ObserveCoalesced(c.name, "overloaded")
		logger.WarnOnce("coalescer.overloaded."+c.name, "request coalescer overloaded",
			logging.Pairs{"cacheName": c.name, "maxPending": c.maxPending})
		return nil, false, fmt.Errorf("%w: %d pending loads", cache.ErrOverloaded, c.maxPending)
	}
	defer c.pending.Add(-1)

	ch := c.group.DoChan(key, func() (any, error) {
		lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return fn(lctx)
	})

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		switch {
		case r.Err != nil:
			metrics.ObserveCoalesced(c.name, "error")
		case r.Shared:
			metrics.ObserveCoalesced(c.name, "shared")
		default:
			metrics.ObserveCoalesced(c.name, "leader")
		}
		return r.Val, r.Shared, r.Err
	case <-timer.C:
		c.group.Forget(key)
		metrics.ObserveCoalesced(c.name, "timeout")
		return nil, false, fmt.Errorf("%w: %s after %s", cache.ErrLoadTimeout, key, c.timeout)
	case <-ctx.Done():
		return nil, false, ctx.Err()
	}
}
