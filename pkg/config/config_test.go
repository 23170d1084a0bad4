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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/trickstercache/tiercache/pkg/cache"
	"github.com/trickstercache/tiercache/pkg/encoding"
	terr "github.com/trickstercache/tiercache/pkg/observability/tracing/errors"

	"github.com/stretchr/testify/require"
)

const testConfig = `
name: sessions
key_prefix: app1
default_ttl: 10m
jitter: 0.05
default_durability: deferred
namespaces:
  users:
    ttl: 1h
    durability: immediate
    compression: snappy
    jitter: 0
  events:
    durability: eventual
memory:
  max_items: 500
  max_size_bytes: 1048576
  max_item_size_bytes: 65536
write_behind:
  batch_size: 25
  flush_interval: 250ms
  max_retries: 3
durability_log:
  provider: bbolt
  path: /tmp/tiercache.db
negative_filter:
  enabled: true
  expected_items: 5000
invalidation:
  provider: etcd
  etcd:
    endpoints: [localhost:2379]
redis:
  endpoint: localhost:6379
  password: ${TEST_TIERCACHE_PASSWORD}
logging:
  log_level: debug
tracing:
  provider: stdout
  sample_rate: 0.5
  tags:
    env: test
`

func TestLoadBytes(t *testing.T) {
	t.Setenv("TEST_TIERCACHE_PASSWORD", "pw")
	o, err := LoadBytes([]byte(testConfig))
	require.NoError(t, err)
	require.Equal(t, "sessions", o.Name)
	require.Equal(t, "app1", o.KeyPrefix)
	require.Equal(t, 10*time.Minute, o.DefaultTTL)
	require.Equal(t, 500, o.Memory.MaxItems)
	// unset fields in a provided section keep their defaults
	require.Equal(t, DefaultSoftLimit, o.Memory.SoftLimit)
	require.Equal(t, 250*time.Millisecond, o.WriteBehind.FlushInterval)
	require.Equal(t, DefaultEscalateAfter, o.WriteBehind.EscalateAfter)
	require.True(t, o.NegativeFilter.Enabled)
	require.Equal(t, DefaultFalsePositiveRate, o.NegativeFilter.FalsePositiveRate)
	require.Equal(t, []string{"localhost:2379"}, o.Invalidation.Etcd.Endpoints)
	require.Equal(t, DefaultInvalidationTopic, o.Invalidation.Topic)
	require.Equal(t, "pw", string(o.Redis.Password))
	require.Equal(t, "debug", o.Logging.LogLevel)
	require.Equal(t, "stdout", o.Tracing.Provider)
	require.Equal(t, 0.5, o.Tracing.SampleRate)
	require.Equal(t, "test", o.Tracing.Tags["env"])
	require.Equal(t, []string{"events", "users"}, o.NamespaceNames())
}

func TestLoadEmpty(t *testing.T) {
	o, err := LoadBytes(nil)
	require.NoError(t, err)
	require.Equal(t, New().DefaultTTL, o.DefaultTTL)
	require.NoError(t, New().Validate())
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiercache.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default_ttl: 30s\nmemory:\n"), 0o600))
	o, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 30*time.Second, o.DefaultTTL)
	require.NotNil(t, o.Memory)
	require.Equal(t, DefaultMaxItems, o.Memory.MaxItems)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv(evRedisEndpoint, "r1:6379,r2:6379")
	t.Setenv(evLogLevel, "warn")
	o, err := LoadBytes([]byte("name: env\n"))
	require.NoError(t, err)
	require.Equal(t, []string{"r1:6379", "r2:6379"}, o.Redis.Endpoints)
	require.Equal(t, "warn", o.Logging.LogLevel)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		err  error
	}{
		{"unknown field", "bogus: 1\n", nil},
		{"ttl", "default_ttl: 0s\n", ErrInvalidTTL},
		{"jitter", "jitter: 1.5\n", ErrInvalidJitter},
		{"durability", "default_durability: never\n", nil},
		{"limits", "memory:\n  soft_limit: 0.9\n  hard_limit: 0.5\n", ErrInvalidLimits},
		{"item size", "memory:\n  max_size_bytes: 10\n  max_item_size_bytes: 20\n", ErrInvalidMemorySize},
		{"log path", "durability_log:\n  provider: file\n", ErrMissingLogPath},
		{"log provider", "durability_log:\n  provider: kafka\n", ErrInvalidLogProvider},
		{"filter", "negative_filter:\n  enabled: true\n  false_positive_rate: 2\n", ErrInvalidFilter},
		{"etcd", "invalidation:\n  provider: etcd\n", ErrMissingEtcdEndpoints},
		{"invalidation", "invalidation:\n  provider: kafka\n", ErrInvalidInvalidation},
		{"redis", "redis:\n  client_type: bogus\n", ErrInvalidRedisClient},
		{"namespace", "namespaces:\n  __tag__:\n    ttl: 1s\n", ErrInvalidNamespaceName},
		{"compression", "compression:\n  algorithm: lzma\n", encoding.ErrUnsupportedProvider},
		{"coalescer", "coalescer:\n  max_pending: -1\n", ErrInvalidCoalescer},
		{"duration", "default_ttl: forever\n", nil},
		{"tracing", "tracing:\n  provider: zipkin\n", terr.ErrInvalidProvider},
		{"sample rate", "tracing:\n  sample_rate: 2\n", terr.ErrInvalidSampleRate},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := LoadBytes([]byte(test.yaml))
			require.ErrorIs(t, err, cache.ErrInvalidConfiguration)
			if test.err != nil {
				require.ErrorIs(t, err, test.err)
			}
		})
	}
}

func TestPolicy(t *testing.T) {
	o, err := LoadBytes([]byte(testConfig))
	require.NoError(t, err)

	p := o.Policy("users")
	require.Equal(t, time.Hour, p.TTL)
	require.Equal(t, 0.0, p.Jitter)
	require.Equal(t, cache.DurabilityImmediate, p.Durability)
	require.Equal(t, encoding.Snappy, p.Compression)

	p = o.Policy("events")
	require.Equal(t, 10*time.Minute, p.TTL)
	require.Equal(t, 0.05, p.Jitter)
	require.Equal(t, cache.DurabilityEventual, p.Durability)
	require.Equal(t, encoding.Zstandard, p.Compression)

	p = o.Policy("unconfigured")
	require.Equal(t, cache.DurabilityDeferred, p.Durability)
}

func TestClone(t *testing.T) {
	o, err := LoadBytes([]byte(testConfig))
	require.NoError(t, err)
	o2 := o.Clone()
	o2.Memory.MaxItems = 1
	*o2.Namespaces["users"].Jitter = 0.5
	o2.Invalidation.Etcd.Endpoints[0] = "other:2379"
	require.Equal(t, 500, o.Memory.MaxItems)
	require.Equal(t, 0.0, *o.Namespaces["users"].Jitter)
	require.Equal(t, "localhost:2379", o.Invalidation.Etcd.Endpoints[0])
	o2.Tracing.Tags["env"] = "prod"
	require.Equal(t, "test", o.Tracing.Tags["env"])
}
