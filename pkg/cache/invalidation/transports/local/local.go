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

// Package local provides an in-process invalidation Transport, connecting
// caches that share a Hub within one process
package local

import (
	"context"
	"sync"

	"github.com/trickstercache/tiercache/pkg/cache/invalidation"
)

// Hub delivers published payloads to every subscriber of the topic
type Hub struct {
	mtx  sync.RWMutex
	subs map[string]map[*subscription]struct{}
}

// NewHub returns a new Hub
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*subscription]struct{})}
}

type subscription struct {
	hub     *Hub
	topic   string
	handler func([]byte)
}

func (s *subscription) Close() error {
	s.hub.mtx.Lock()
	defer s.hub.mtx.Unlock()
	if m, ok := s.hub.subs[s.topic]; ok {
		delete(m, s)
		if len(m) == 0 {
			delete(s.hub.subs, s.topic)
		}
	}
	return nil
}

// Transport is an invalidation.Transport attached to a Hub
type Transport struct {
	hub *Hub
}

var _ invalidation.Transport = &Transport{}

// Transport returns a new Transport attached to the Hub
func (h *Hub) Transport() *Transport {
	return &Transport{hub: h}
}

// Publish delivers the payload to each subscriber before returning
func (t *Transport) Publish(_ context.Context, topic string, payload []byte) error {
	t.hub.mtx.RLock()
	handlers := make([]func([]byte), 0, len(t.hub.subs[topic]))
	for s := range t.hub.subs[topic] {
		handlers = append(handlers, s.handler)
	}
	t.hub.mtx.RUnlock()
	for _, h := range handlers {
		b := make([]byte, len(payload))
		copy(b, payload)
		h(b)
	}
	return nil
}

// Subscribe implements invalidation.Transport
func (t *Transport) Subscribe(_ context.Context, topic string,
	handler func([]byte)) (invalidation.Subscription, error) {
	s := &subscription{hub: t.hub, topic: topic, handler: handler}
	t.hub.mtx.Lock()
	m, ok := t.hub.subs[topic]
	if !ok {
		m = make(map[*subscription]struct{})
		t.hub.subs[topic] = m
	}
	m[s] = struct{}{}
	t.hub.mtx.Unlock()
	return s, nil
}

// Close implements invalidation.Transport. The Hub stays usable by other
// Transports.
func (t *Transport) Close() error {
	return nil
}
