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

package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/trickstercache/tiercache/pkg/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribe(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()
	tr := New(client)
	ctx := context.Background()

	var mtx sync.Mutex
	var got []string
	sub, err := tr.Subscribe(ctx, "topic", func(b []byte) {
		mtx.Lock()
		got = append(got, string(b))
		mtx.Unlock()
	})
	require.NoError(t, err)

	require.NoError(t, tr.Publish(ctx, "topic", []byte("k1")))
	require.NoError(t, tr.Publish(ctx, "other", []byte("k2")))
	require.Eventually(t, func() bool {
		mtx.Lock()
		defer mtx.Unlock()
		return len(got) == 1 && got[0] == "k1"
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())
	require.NoError(t, tr.Close())
}

func TestCloseEndsSubscriptions(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer client.Close()
	tr := New(client)
	_, err := tr.Subscribe(context.Background(), "topic", func([]byte) {})
	require.NoError(t, err)
	require.NoError(t, tr.Close())
	require.Empty(t, tr.subs)
}

func TestUnavailable(t *testing.T) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr(), MaxRetries: -1})
	defer client.Close()
	tr := New(client)
	s.Close()
	ctx := context.Background()
	require.ErrorIs(t, tr.Publish(ctx, "topic", []byte("k")), cache.ErrRemoteUnavailable)
	_, err := tr.Subscribe(ctx, "topic", func([]byte) {})
	require.ErrorIs(t, err, cache.ErrRemoteUnavailable)
}
