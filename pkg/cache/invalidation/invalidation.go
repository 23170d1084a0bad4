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

// Package invalidation broadcasts invalidated keys to peer instances so each
// can evict them from its in-process tier
package invalidation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/trickstercache/tiercache/pkg/cache"
	"github.com/trickstercache/tiercache/pkg/cache/metrics"
	"github.com/trickstercache/tiercache/pkg/observability/logging"
	"github.com/trickstercache/tiercache/pkg/observability/logging/logger"
)

// ErrAlreadySubscribed is returned by a second call to Channel.Subscribe
var ErrAlreadySubscribed = errors.New("invalidation channel already subscribed")

// Transport is a publish/subscribe broker
type Transport interface {
	// Publish returns once the broker has accepted the payload
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe calls handler for each payload published to the topic until
	// the Subscription is closed
	Subscribe(ctx context.Context, topic string, handler func([]byte)) (Subscription, error)
	Close() error
}

// Subscription is an active Transport subscription
type Subscription interface {
	Close() error
}

// BroadcastOptions configures a single Broadcast
type BroadcastOptions struct {
	// Reliable waits for the transport to accept the message; otherwise it is
	// published in the background and failures are only logged
	Reliable bool
}

// Channel broadcasts and receives invalidation messages over a Transport
type Channel struct {
	name      string
	topic     string
	origin    string
	transport Transport
	now       func() time.Time

	mtx    sync.Mutex
	sub    Subscription
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Channel
type Option func(*Channel)

// WithOrigin sets the id that tags this instance's messages
func WithOrigin(origin string) Option {
	return func(c *Channel) {
		c.origin = origin
	}
}

// New returns a Channel publishing to topic over t
func New(name, topic string, t Transport, opts ...Option) *Channel {
	c := &Channel{
		name:      name,
		topic:     topic,
		transport: t,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.origin == "" {
		c.origin = newOrigin()
	}
	return c
}

func newOrigin() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%x", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// Origin returns the id that tags this instance's messages
func (c *Channel) Origin() string {
	return c.origin
}

// Broadcast publishes the keys to peer instances
func (c *Channel) Broadcast(ctx context.Context, keys []string, o BroadcastOptions) error {
	if len(keys) == 0 {
		return nil
	}
	m := &Message{Origin: c.origin, Keys: keys, Timestamp: c.now()}
	payload, err := m.MarshalMsg(make([]byte, 0, m.Msgsize()))
	if err != nil {
		return err
	}
	c.mtx.Lock()
	if c.closed {
		c.mtx.Unlock()
		return cache.ErrClosed
	}
	c.wg.Add(1)
	c.mtx.Unlock()

	if o.Reliable {
		defer c.wg.Done()
		return c.publish(ctx, payload, len(keys))
	}
	go func() {
		defer c.wg.Done()
		if err := c.publish(context.WithoutCancel(ctx), payload, len(keys)); err != nil {
			logger.Warn("invalidation broadcast failed", logging.Pairs{
				"cacheName": c.name, "topic": c.topic, "keys": len(keys),
				"detail": err.Error(),
			})
		}
	}()
	return nil
}

func (c *Channel) publish(ctx context.Context, payload []byte, n int) error {
	if err := c.transport.Publish(ctx, c.topic, payload); err != nil {
		metrics.ObserveInvalidationMessage(c.name, "out", "error")
		return fmt.Errorf("invalidation publish: %w", err)
	}
	metrics.ObserveInvalidationMessage(c.name, "out", "ok")
	logger.Debug("invalidation broadcast", logging.Pairs{
		"cacheName": c.name, "topic": c.topic, "keys": n,
	})
	return nil
}

// Subscribe starts delivering keys invalidated by peers to fn. Messages this
// Channel published itself are ignored. Subscribe may be called only once.
func (c *Channel) Subscribe(ctx context.Context, fn func(keys []string)) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.closed {
		return cache.ErrClosed
	}
	if c.sub != nil {
		return ErrAlreadySubscribed
	}
	sub, err := c.transport.Subscribe(ctx, c.topic, func(payload []byte) {
		m := &Message{}
		if _, err := m.UnmarshalMsg(payload); err != nil {
			metrics.ObserveInvalidationMessage(c.name, "in", "error")
			logger.WarnOnce("invalidation.decode", "invalid invalidation message",
				logging.Pairs{"cacheName": c.name, "detail": err.Error()})
			return
		}
		if m.Origin == c.origin {
			return
		}
		metrics.ObserveInvalidationMessage(c.name, "in", "ok")
		fn(m.Keys)
	})
	if err != nil {
		return fmt.Errorf("invalidation subscribe: %w", err)
	}
	c.sub = sub
	return nil
}

// Close waits for in-flight broadcasts, then closes the subscription and
// the transport
func (c *Channel) Close() error {
	c.mtx.Lock()
	if c.closed {
		c.mtx.Unlock()
		return cache.ErrClosed
	}
	c.closed = true
	sub := c.sub
	c.mtx.Unlock()
	c.wg.Wait()
	var errs []error
	if sub != nil {
		errs = append(errs, sub.Close())
	}
	errs = append(errs, c.transport.Close())
	return errors.Join(errs...)
}
