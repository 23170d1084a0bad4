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

// Package redis implements the remote tier (cache.Store) on Redis, and
// supports Standalone, Sentinel and Cluster
package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/trickstercache/tiercache/pkg/cache"
	"github.com/trickstercache/tiercache/pkg/cache/redis/options"
	"github.com/trickstercache/tiercache/pkg/observability/logging"
	"github.com/trickstercache/tiercache/pkg/observability/logging/logger"

	"github.com/redis/go-redis/v9"
)

var _ cache.Store = &Store{}

// Store is a cache.Store backed by a Redis client
type Store struct {
	Name   string
	Config *options.Options
	client redis.UniversalClient
	// cluster is set when the client is a cluster client; SCAN must visit
	// every master
	cluster *redis.ClusterClient
}

// New returns a Store for the configured client type. The connection is
// established lazily; call Connect to verify it.
func New(name string, o *options.Options) (*Store, error) {
	s := &Store{Name: name, Config: o}
	ct, ok := clientTypeNames[o.ClientType]
	if !ok && o.ClientType != "" {
		return nil, fmt.Errorf("%w: %s", ErrInvalidClientType, o.ClientType)
	}
	switch ct {
	case clientTypeSentinel:
		opts, err := s.sentinelOpts()
		if err != nil {
			return nil, err
		}
		s.client = redis.NewFailoverClient(opts)
	case clientTypeCluster:
		opts, err := s.clusterOpts()
		if err != nil {
			return nil, err
		}
		s.cluster = redis.NewClusterClient(opts)
		s.client = s.cluster
	default:
		opts, err := s.clientOpts()
		if err != nil {
			return nil, err
		}
		s.client = redis.NewClient(opts)
	}
	return s, nil
}

// NewWithClient returns a Store using an existing client
func NewWithClient(name string, client redis.UniversalClient) *Store {
	s := &Store{Name: name, client: client}
	if cc, ok := client.(*redis.ClusterClient); ok {
		s.cluster = cc
	}
	return s
}

// Client returns the underlying Redis client
func (s *Store) Client() redis.UniversalClient {
	return s.client
}

// Connect verifies the connection to the configured Redis endpoint
func (s *Store) Connect(ctx context.Context) error {
	if err := s.Ping(ctx); err != nil {
		return err
	}
	logger.Info("redis store connected", logging.Pairs{"cacheName": s.Name})
	return nil
}

// Get implements cache.Store
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, cache.ErrKNF
	}
	if err != nil {
		return nil, wrapErr("get", err)
	}
	return b, nil
}

// Set implements cache.Store
func (s *Store) Set(ctx context.Context, key string, value []byte,
	ttl time.Duration, cond cache.Condition) (bool, error) {
	var applied bool
	var err error
	switch cond {
	case cache.ConditionIfAbsent:
		applied, err = s.client.SetNX(ctx, key, value, ttl).Result()
	case cache.ConditionIfPresent:
		applied, err = s.client.SetXX(ctx, key, value, ttl).Result()
	default:
		err = s.client.Set(ctx, key, value, ttl).Err()
		applied = err == nil
	}
	if err != nil {
		return false, wrapErr("set", err)
	}
	return applied, nil
}

// Delete implements cache.Store
func (s *Store) Delete(ctx context.Context, keys ...string) (int64, error) {
	existed, err := s.DeleteEach(ctx, keys)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, ok := range existed {
		if ok {
			n++
		}
	}
	return n, nil
}

// DeleteEach implements cache.Store. Each key is deleted with its own DEL
// in a single pipeline, so keys may span cluster slots.
func (s *Store) DeleteEach(ctx context.Context, keys []string) ([]bool, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	cmds := make([]*redis.IntCmd, len(keys))
	_, err := s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = p.Del(ctx, k)
		}
		return nil
	})
	if err != nil && !isServerErr(err) {
		return nil, wrapErr("del", err)
	}
	out := make([]bool, len(keys))
	for i, cmd := range cmds {
		n, err := cmd.Result()
		if err != nil {
			return nil, wrapErr("del", err)
		}
		out[i] = n > 0
	}
	return out, nil
}

// Scan implements cache.Store. On a cluster, every master is scanned to
// completion and the returned cursor is always 0.
func (s *Store) Scan(ctx context.Context, cursor uint64, match string,
	count int64) ([]string, uint64, error) {
	if s.cluster != nil {
		keys, err := s.scanCluster(ctx, match, count)
		return keys, 0, err
	}
	keys, next, err := s.client.Scan(ctx, cursor, match, count).Result()
	if err != nil {
		return nil, 0, wrapErr("scan", err)
	}
	return keys, next, nil
}

func (s *Store) scanCluster(ctx context.Context, match string, count int64) ([]string, error) {
	var mtx sync.Mutex
	var keys []string
	err := s.cluster.ForEachMaster(ctx, func(ctx context.Context, c *redis.Client) error {
		it := c.Scan(ctx, 0, match, count).Iterator()
		var local []string
		for it.Next(ctx) {
			local = append(local, it.Val())
		}
		if err := it.Err(); err != nil {
			return err
		}
		mtx.Lock()
		keys = append(keys, local...)
		mtx.Unlock()
		return nil
	})
	if err != nil {
		return nil, wrapErr("scan", err)
	}
	return keys, nil
}

// SetAdd implements cache.Store
func (s *Store) SetAdd(ctx context.Context, set string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return wrapErr("sadd", s.client.SAdd(ctx, set, toAny(members)...).Err())
}

// SetMembers implements cache.Store
func (s *Store) SetMembers(ctx context.Context, set string) ([]string, error) {
	m, err := s.client.SMembers(ctx, set).Result()
	if err != nil {
		return nil, wrapErr("smembers", err)
	}
	return m, nil
}

// SetRemove implements cache.Store
func (s *Store) SetRemove(ctx context.Context, set string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return wrapErr("srem", s.client.SRem(ctx, set, toAny(members)...).Err())
}

// TTL implements cache.Store. A key with no expiration returns 0.
func (s *Store) TTL(ctx context.Context, key string) (time.Duration, error) {
	d, err := s.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, wrapErr("ttl", err)
	}
	switch {
	case d == -2:
		return 0, cache.ErrKNF
	case d < 0:
		return 0, nil
	}
	return d, nil
}

// Expire implements cache.Store
func (s *Store) Expire(ctx context.Context, key string, ttl time.Duration) error {
	ok, err := s.client.Expire(ctx, key, ttl).Result()
	if err != nil {
		return wrapErr("expire", err)
	}
	if !ok {
		return cache.ErrKNF
	}
	return nil
}

// Ping implements cache.Store
func (s *Store) Ping(ctx context.Context) error {
	return wrapErr("ping", s.client.Ping(ctx).Err())
}

// Close implements cache.Store
func (s *Store) Close() error {
	return s.client.Close()
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

// wrapErr marks transport failures as cache.ErrRemoteUnavailable. Errors
// replied by the server are returned as is.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if isServerErr(err) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("redis %s: %w", op, err)
	}
	return fmt.Errorf("redis %s: %w: %w", op, cache.ErrRemoteUnavailable, err)
}

func isServerErr(err error) bool {
	var rerr redis.Error
	return errors.As(err, &rerr)
}
