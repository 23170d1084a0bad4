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

// Package redis provides an invalidation Transport over Redis Pub/Sub
package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/trickstercache/tiercache/pkg/cache"
	"github.com/trickstercache/tiercache/pkg/cache/invalidation"
	"github.com/trickstercache/tiercache/pkg/observability/logging"
	"github.com/trickstercache/tiercache/pkg/observability/logging/logger"

	"github.com/redis/go-redis/v9"
)

// Transport is an invalidation.Transport using PUBLISH and SUBSCRIBE. The
// client is shared with the remote store and is not closed by the Transport.
type Transport struct {
	client redis.UniversalClient

	mtx  sync.Mutex
	subs map[*subscription]struct{}
}

var _ invalidation.Transport = &Transport{}

// New returns a Transport using the client
func New(client redis.UniversalClient) *Transport {
	return &Transport{client: client, subs: make(map[*subscription]struct{})}
}

// Publish implements invalidation.Transport
func (t *Transport) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := t.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w: %w", cache.ErrRemoteUnavailable, err)
	}
	return nil
}

type subscription struct {
	t    *Transport
	ps   *redis.PubSub
	done chan struct{}
	once sync.Once
}

// Subscribe implements invalidation.Transport. It returns once the server
// has confirmed the subscription.
func (t *Transport) Subscribe(ctx context.Context, topic string,
	handler func([]byte)) (invalidation.Subscription, error) {
	ps := t.client.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w: %w", cache.ErrRemoteUnavailable, err)
	}
	s := &subscription{t: t, ps: ps, done: make(chan struct{})}
	ch := ps.Channel()
	go func() {
		defer close(s.done)
		for msg := range ch {
			handler([]byte(msg.Payload))
		}
		logger.Debug("redis invalidation subscription ended", logging.Pairs{"topic": topic})
	}()
	t.mtx.Lock()
	t.subs[s] = struct{}{}
	t.mtx.Unlock()
	return s, nil
}

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		err = s.ps.Close()
		<-s.done
		s.t.mtx.Lock()
		delete(s.t.subs, s)
		s.t.mtx.Unlock()
	})
	return err
}

// Close closes any open subscriptions
func (t *Transport) Close() error {
	t.mtx.Lock()
	subs := make([]*subscription, 0, len(t.subs))
	for s := range t.subs {
		subs = append(subs, s)
	}
	t.mtx.Unlock()
	for _, s := range subs {
		s.Close()
	}
	return nil
}
