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
	"crypto/tls"

	"github.com/redis/go-redis/v9"
)

func (s *Store) sentinelOpts() (*redis.FailoverOptions, error) {
	if len(s.Config.Endpoints) == 0 {
		return nil, ErrInvalidEndpointsConfig
	}

	if s.Config.SentinelMaster == "" {
		return nil, ErrInvalidSentinelMasterConfig
	}

	o := &redis.FailoverOptions{
		SentinelAddrs: s.Config.Endpoints,
		MasterName:    s.Config.SentinelMaster,
	}

	if s.Config.UseTLS {
		o.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	if s.Config.Username != "" {
		o.Username = s.Config.Username
	}

	if s.Config.Password != "" {
		o.Password = string(s.Config.Password)
	}

	if s.Config.DB != 0 {
		o.DB = s.Config.DB
	}

	if s.Config.MaxRetries != 0 {
		o.MaxRetries = s.Config.MaxRetries
	}

	if s.Config.MinRetryBackoff != 0 {
		o.MinRetryBackoff = s.Config.MinRetryBackoff
	}

	if s.Config.MaxRetryBackoff != 0 {
		o.MaxRetryBackoff = s.Config.MaxRetryBackoff
	}

	if s.Config.DialTimeout != 0 {
		o.DialTimeout = s.Config.DialTimeout
	}

	if s.Config.ReadTimeout != 0 {
		o.ReadTimeout = s.Config.ReadTimeout
	}

	if s.Config.WriteTimeout != 0 {
		o.WriteTimeout = s.Config.WriteTimeout
	}

	if s.Config.PoolSize != 0 {
		o.PoolSize = s.Config.PoolSize
	}

	if s.Config.MinIdleConns != 0 {
		o.MinIdleConns = s.Config.MinIdleConns
	}

	if s.Config.ConnMaxLifetime != 0 {
		o.ConnMaxLifetime = s.Config.ConnMaxLifetime
	}

	if s.Config.PoolTimeout != 0 {
		o.PoolTimeout = s.Config.PoolTimeout
	}

	if s.Config.ConnMaxIdleTime != 0 {
		o.ConnMaxIdleTime = s.Config.ConnMaxIdleTime
	}

	return o, nil
}
