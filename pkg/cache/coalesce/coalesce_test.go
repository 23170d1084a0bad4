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

package coalesce

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/trickstercache/tiercache/pkg/cache"
	"github.com/trickstercache/tiercache/pkg/config"

	"github.com/stretchr/testify/require"
)

func TestCoalesceRunsOnce(t *testing.T) {
	c := New(t.Name(), &config.CoalescerOptions{Timeout: 5 * time.Second, MaxPending: 100})
	var calls atomic.Int32
	release := make(chan struct{})
	fn := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "value", nil
	}

	const n = 20
	wg := sync.WaitGroup{}
	results := make([]any, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _, errs[i] = c.Coalesce(context.Background(), "k", fn)
		}(i)
	}
	require.Eventually(t, func() bool { return c.Pending() == n }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), calls.Load())
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, "value", results[i])
	}
	require.Equal(t, int64(0), c.Pending())

	// a completed call is deregistered, so a new call runs fn again
	v, shared, err := c.Coalesce(context.Background(), "k", func(context.Context) (any, error) {
		calls.Add(1)
		return "second", nil
	})
	require.NoError(t, err)
	require.False(t, shared)
	require.Equal(t, "second", v)
	require.Equal(t, int32(2), calls.Load())
}

func TestCoalesceError(t *testing.T) {
	c := New(t.Name(), nil)
	errLoad := errors.New("load failed")
	_, _, err := c.Coalesce(context.Background(), "k", func(context.Context) (any, error) {
		return nil, errLoad
	})
	require.ErrorIs(t, err, errLoad)
	v, _, err := c.Coalesce(context.Background(), "k", func(context.Context) (any, error) {
		return 1, nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, v)
}

func TestCoalesceTimeout(t *testing.T) {
	c := New(t.Name(), &config.CoalescerOptions{Timeout: 50 * time.Millisecond, MaxPending: 10})
	block := make(chan struct{})
	defer close(block)
	var sawDeadline atomic.Bool
	_, _, err := c.Coalesce(context.Background(), "k", func(ctx context.Context) (any, error) {
		_, ok := ctx.Deadline()
		sawDeadline.Store(ok)
		<-block
		return nil, nil
	})
	require.ErrorIs(t, err, cache.ErrLoadTimeout)
	require.True(t, sawDeadline.Load())

	// the timed out key was released
	v, _, err := c.Coalesce(context.Background(), "k", func(context.Context) (any, error) {
		return "fresh", nil
	})
	require.NoError(t, err)
	require.Equal(t, "fresh", v)
}

func TestCoalesceOverloaded(t *testing.T) {
	c := New(t.Name(), &config.CoalescerOptions{Timeout: time.Second, MaxPending: 1})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Coalesce(context.Background(), "a", func(context.Context) (any, error) {
			<-release
			return nil, nil
		})
	}()
	require.Eventually(t, func() bool { return c.Pending() == 1 }, time.Second, time.Millisecond)
	_, _, err := c.Coalesce(context.Background(), "b", func(context.Context) (any, error) {
		return nil, nil
	})
	require.ErrorIs(t, err, cache.ErrOverloaded)
	close(release)
	<-done
}

func TestCoalesceCallerCancel(t *testing.T) {
	c := New(t.Name(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	loadCtxErr := make(chan error, 1)
	go func() {
		<-started
		cancel()
	}()
	_, _, err := c.Coalesce(ctx, "k", func(lctx context.Context) (any, error) {
		close(started)
		time.Sleep(20 * time.Millisecond)
		loadCtxErr <- lctx.Err()
		return nil, nil
	})
	require.ErrorIs(t, err, context.Canceled)
	// the load itself was not canceled by the caller
	require.NoError(t, <-loadCtxErr)
}
