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
	"strings"
)

const (
	// Environment variables
	evRedisEndpoint        = "TIERCACHE_REDIS_ENDPOINT"
	evLogLevel             = "TIERCACHE_LOG_LEVEL"
	evDurabilityLogPath    = "TIERCACHE_DURABILITY_LOG_PATH"
	evInvalidationProvider = "TIERCACHE_INVALIDATION_PROVIDER"
	evEtcdEndpoints        = "TIERCACHE_ETCD_ENDPOINTS"
	evTracingProvider      = "TIERCACHE_TRACING_PROVIDER"
)

func (o *Options) loadEnvVars() {
	if x := os.Getenv(evRedisEndpoint); x != "" {
		o.Redis.Endpoint = x
		o.Redis.Endpoints = strings.Split(x, ",")
	}

	if x := os.Getenv(evLogLevel); x != "" {
		o.Logging.LogLevel = x
	}

	if x := os.Getenv(evDurabilityLogPath); x != "" {
		o.DurabilityLog.Path = x
	}

	if x := os.Getenv(evInvalidationProvider); x != "" {
		o.Invalidation.Provider = x
	}

	if x := os.Getenv(evEtcdEndpoints); x != "" {
		o.Invalidation.Etcd.Endpoints = strings.Split(x, ",")
	}

	if x := os.Getenv(evTracingProvider); x != "" {
		o.Tracing.Provider = x
	}
}
