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

// Package etcd provides an invalidation Transport over etcd. Each message is
// written to the topic key and peers receive it through a Watch, which
// delivers every revision.
package etcd

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/trickstercache/tiercache/pkg/cache"
	"github.com/trickstercache/tiercache/pkg/cache/invalidation"
	"github.com/trickstercache/tiercache/pkg/config"
	"github.com/trickstercache/tiercache/pkg/observability/logging"
	"github.com/trickstercache/tiercache/pkg/observability/logging/logger"

	"go.etcd.io/etcd/api/v3/mvccpb"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// Transport is an invalidation.Transport on etcd
type Transport struct {
	kv      clientv3.KV
	watcher clientv3.Watcher
	closer  func() error

	mtx  sync.Mutex
	subs map[*subscription]struct{}
}

var _ invalidation.Transport = &Transport{}

// New connects to the configured etcd endpoints
func New(o *config.EtcdOptions) (*Transport, error) {
	if o == nil || len(o.Endpoints) == 0 {
		return nil, errors.New("etcd endpoints are required")
	}
	cli, err := clientv3.New(clientv3.Config{
		Endpoints:   o.Endpoints,
		DialTimeout: o.DialTimeout,
		Username:    o.Username,
		Password:    string(o.Password),
	})
	if err != nil {
		return nil, fmt.Errorf("etcd connect: %w: %w", cache.ErrRemoteUnavailable, err)
	}
	t := NewWithClient(cli.KV, cli.Watcher)
	t.closer = cli.Close
	return t, nil
}

// NewWithClient returns a Transport using an existing KV and Watcher, which
// are not closed by the Transport
func NewWithClient(kv clientv3.KV, w clientv3.Watcher) *Transport {
	return &Transport{kv: kv, watcher: w, subs: make(map[*subscription]struct{})}
}

// Publish implements invalidation.Transport
func (t *Transport) Publish(ctx context.Context, topic string, payload []byte) error {
	if _, err := t.kv.Put(ctx, topic, string(payload)); err != nil {
		return fmt.Errorf("etcd put: %w: %w", cache.ErrRemoteUnavailable, err)
	}
	return nil
}

type subscription struct {
	t      *Transport
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Subscribe implements invalidation.Transport. The watch outlives ctx and
// ends when the Subscription is closed.
func (t *Transport) Subscribe(ctx context.Context, topic string,
	handler func([]byte)) (invalidation.Subscription, error) {
	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	wch := t.watcher.Watch(clientv3.WithRequireLeader(wctx), topic)
	s := &subscription{t: t, cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(s.done)
		for resp := range wch {
			if err := resp.Err(); err != nil {
				logger.Warn("etcd invalidation watch error", logging.Pairs{
					"topic": topic, "detail": err.Error(),
				})
				continue
			}
			for _, ev := range resp.Events {
				if ev.Type != mvccpb.PUT || ev.Kv == nil {
					continue
				}
				handler(ev.Kv.Value)
			}
		}
	}()
	t.mtx.Lock()
	t.subs[s] = struct{}{}
	t.mtx.Unlock()
	return s, nil
}

func (s *subscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		s.t.mtx.Lock()
		delete(s.t.subs, s)
		s.t.mtx.Unlock()
	})
	return nil
}

// Close ends all subscriptions and, when the Transport created the client,
// closes it
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
	if t.closer != nil {
		return t.closer()
	}
	return nil
}
