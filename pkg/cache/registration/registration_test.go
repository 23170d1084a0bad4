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

package registration

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/trickstercache/tiercache/pkg/cache"
	"github.com/trickstercache/tiercache/pkg/cache/codec"
	"github.com/trickstercache/tiercache/pkg/cache/invalidation/transports/local"
	rt "github.com/trickstercache/tiercache/pkg/cache/invalidation/transports/redis"
	"github.com/trickstercache/tiercache/pkg/cache/key"
	"github.com/trickstercache/tiercache/pkg/cache/manager"
	"github.com/trickstercache/tiercache/pkg/cache/redis"
	"github.com/trickstercache/tiercache/pkg/cache/redis/options"
	"github.com/trickstercache/tiercache/pkg/config"
	"github.com/trickstercache/tiercache/pkg/observability/logging/level"
	"github.com/trickstercache/tiercache/pkg/observability/logging/logger"
	lo "github.com/trickstercache/tiercache/pkg/observability/logging/options"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, s *miniredis.Miniredis) *config.Options {
	cfg := config.New()
	cfg.Name = "registration"
	cfg.Redis.Endpoint = s.Addr()
	cfg.WriteBehind.FlushInterval = time.Hour
	return cfg
}

func TestNew(t *testing.T) {
	for _, provider := range []string{config.DurabilityLogFile,
		config.DurabilityLogBBolt, config.DurabilityLogBadger} {
		t.Run(provider, func(t *testing.T) {
			s := miniredis.RunT(t)
			cfg := testConfig(t, s)
			cfg.DurabilityLog.Provider = provider
			cfg.DurabilityLog.Path = filepath.Join(t.TempDir(), "wb")
			cfg.Invalidation.Provider = config.InvalidationRedis

			m, err := New[string](cfg, codec.String{})
			require.NoError(t, err)
			ctx := context.Background()
			d := cache.DurabilityDeferred
			require.NoError(t, m.Set(ctx, key.New("users", "1"), "v",
				manager.SetOptions{Durability: &d}))
			require.Equal(t, 1, m.Stats().PendingWrites)
			require.NoError(t, m.Close(ctx))
			require.True(t, s.Exists("users:1"))
		})
	}
}

func TestNewInvalid(t *testing.T) {
	cfg := config.New()
	cfg.DurabilityLog.Provider = "tape"
	_, err := New[string](cfg, codec.String{})
	require.ErrorIs(t, err, cache.ErrInvalidConfiguration)

	cfg = config.New()
	cfg.Redis.ClientType = "cluster"
	cfg.Redis.Endpoints = nil
	_, err = New[string](cfg, codec.String{})
	require.ErrorIs(t, err, cache.ErrInvalidConfiguration)
}

func TestNewTransport(t *testing.T) {
	s := miniredis.RunT(t)
	st, err := redis.New("test", &options.Options{ClientType: "standard", Endpoint: s.Addr()})
	require.NoError(t, err)
	defer st.Close()

	tr, err := NewTransport(nil, st)
	require.NoError(t, err)
	require.Nil(t, tr)

	tr, err = NewTransport(&config.InvalidationOptions{Provider: config.InvalidationNone}, st)
	require.NoError(t, err)
	require.Nil(t, tr)

	tr, err = NewTransport(&config.InvalidationOptions{Provider: config.InvalidationLocal}, st)
	require.NoError(t, err)
	require.IsType(t, &local.Transport{}, tr)

	tr, err = NewTransport(&config.InvalidationOptions{Provider: config.InvalidationRedis}, st)
	require.NoError(t, err)
	require.IsType(t, &rt.Transport{}, tr)
	require.NoError(t, tr.Close())

	_, err = NewTransport(&config.InvalidationOptions{Provider: config.InvalidationRedis}, nil)
	require.ErrorIs(t, err, cache.ErrInvalidConfiguration)

	_, err = NewTransport(&config.InvalidationOptions{Provider: "carrier-pigeon"}, st)
	require.ErrorIs(t, err, config.ErrInvalidInvalidation)
}

func TestLocalInvalidation(t *testing.T) {
	s := miniredis.RunT(t)
	cfg := testConfig(t, s)
	cfg.Invalidation.Provider = config.InvalidationLocal
	cfg.Invalidation.Reliable = true
	ctx := context.Background()

	m1, err := New[string](cfg, codec.String{})
	require.NoError(t, err)
	defer m1.Close(ctx)
	m2, err := New[string](cfg.Clone(), codec.String{})
	require.NoError(t, err)
	defer m2.Close(ctx)

	k := key.New("users", "1")
	require.NoError(t, m2.Set(ctx, k, "v", manager.SetOptions{L1Only: true}))
	_, err = m1.Delete(ctx, k)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, found, err := m2.Get(ctx, k, manager.GetOptions[string]{})
		return err == nil && !found
	}, time.Second, 10*time.Millisecond)
}

func TestSetupLogging(t *testing.T) {
	prev := logger.Logger()
	defer logger.SetLogger(prev)
	SetupLogging(&lo.Options{LogLevel: "debug"})
	require.Equal(t, level.Debug, logger.Level())
}
