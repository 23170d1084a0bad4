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

package invalidation_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/trickstercache/tiercache/pkg/cache"
	"github.com/trickstercache/tiercache/pkg/cache/invalidation"
	"github.com/trickstercache/tiercache/pkg/cache/invalidation/transports/local"

	"github.com/stretchr/testify/require"
)

type recorder struct {
	mtx  sync.Mutex
	keys []string
}

func (r *recorder) add(keys []string) {
	r.mtx.Lock()
	r.keys = append(r.keys, keys...)
	r.mtx.Unlock()
}

func (r *recorder) get() []string {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return append([]string(nil), r.keys...)
}

func TestBroadcastSubscribe(t *testing.T) {
	hub := local.NewHub()
	ctx := context.Background()
	a := invalidation.New("a", "topic", hub.Transport())
	b := invalidation.New("b", "topic", hub.Transport())
	defer a.Close()
	defer b.Close()

	var ra, rb recorder
	require.NoError(t, a.Subscribe(ctx, ra.add))
	require.NoError(t, b.Subscribe(ctx, rb.add))
	require.ErrorIs(t, b.Subscribe(ctx, rb.add), invalidation.ErrAlreadySubscribed)
	require.NotEqual(t, a.Origin(), b.Origin())

	require.NoError(t, a.Broadcast(ctx, []string{"k1", "k2"},
		invalidation.BroadcastOptions{Reliable: true}))
	require.Equal(t, []string{"k1", "k2"}, rb.get())
	// a ignores its own message
	require.Empty(t, ra.get())

	require.NoError(t, b.Broadcast(ctx, []string{"k3"}, invalidation.BroadcastOptions{}))
	require.Eventually(t, func() bool { return len(ra.get()) == 1 },
		time.Second, 5*time.Millisecond)

	require.NoError(t, a.Broadcast(ctx, nil, invalidation.BroadcastOptions{}))
}

func TestOtherTopic(t *testing.T) {
	hub := local.NewHub()
	ctx := context.Background()
	a := invalidation.New("a", "topic-a", hub.Transport())
	b := invalidation.New("b", "topic-b", hub.Transport())
	defer a.Close()
	defer b.Close()
	var rb recorder
	require.NoError(t, b.Subscribe(ctx, rb.add))
	require.NoError(t, a.Broadcast(ctx, []string{"k"}, invalidation.BroadcastOptions{Reliable: true}))
	require.Empty(t, rb.get())
}

func TestMalformedMessage(t *testing.T) {
	hub := local.NewHub()
	ctx := context.Background()
	b := invalidation.New("b", "topic", hub.Transport())
	defer b.Close()
	var rb recorder
	require.NoError(t, b.Subscribe(ctx, rb.add))
	require.NoError(t, hub.Transport().Publish(ctx, "topic", []byte{0xc1}))
	require.Empty(t, rb.get())
}

func TestMessageEncoding(t *testing.T) {
	m := &invalidation.Message{Origin: "o", Keys: []string{"a", "b"},
		Timestamp: time.Unix(0, 42)}
	b, err := m.MarshalMsg(nil)
	require.NoError(t, err)
	require.LessOrEqual(t, len(b), m.Msgsize())
	m2 := &invalidation.Message{}
	_, err = m2.UnmarshalMsg(b)
	require.NoError(t, err)
	require.Equal(t, m.Keys, m2.Keys)
	require.Equal(t, "o", m2.Origin)
	require.True(t, m.Timestamp.Equal(m2.Timestamp))
}

type failingTransport struct {
	closed bool
}

var errBroker = errors.New("broker down")

func (f *failingTransport) Publish(context.Context, string, []byte) error { return errBroker }
func (f *failingTransport) Subscribe(context.Context, string,
	func([]byte)) (invalidation.Subscription, error) {
	return nil, errBroker
}
func (f *failingTransport) Close() error {
	f.closed = true
	return nil
}

func TestTransportErrors(t *testing.T) {
	ft := &failingTransport{}
	c := invalidation.New("c", "topic", ft)
	ctx := context.Background()
	require.ErrorIs(t, c.Broadcast(ctx, []string{"k"},
		invalidation.BroadcastOptions{Reliable: true}), errBroker)
	// unreliable failures are only logged
	require.NoError(t, c.Broadcast(ctx, []string{"k"}, invalidation.BroadcastOptions{}))
	require.ErrorIs(t, c.Subscribe(ctx, func([]string) {}), errBroker)
	require.NoError(t, c.Close())
	require.True(t, ft.closed)
	require.ErrorIs(t, c.Close(), cache.ErrClosed)
	require.ErrorIs(t, c.Broadcast(ctx, []string{"k"}, invalidation.BroadcastOptions{}),
		cache.ErrClosed)
}
