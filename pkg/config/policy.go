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
	"time"

	"github.com/trickstercache/tiercache/pkg/cache"
	"github.com/trickstercache/tiercache/pkg/encoding"
)

// Policy is the resolved write policy of a namespace
type Policy struct {
	TTL         time.Duration
	Jitter      float64
	Durability  cache.Durability
	Compression encoding.Provider
}

// Policy returns the write policy for the namespace, applying its overrides
// over the global defaults. Options must have been validated.
func (o *Options) Policy(namespace string) Policy {
	p := Policy{
		TTL:    o.DefaultTTL,
		Jitter: o.Jitter,
	}
	p.Durability, _ = cache.ParseDurability(o.DefaultDurability)
	p.Compression, _ = encoding.ParseProvider(o.Compression.Algorithm)
	n, ok := o.Namespaces[namespace]
	if !ok || n == nil {
		return p
	}
	if n.TTL > 0 {
		p.TTL = n.TTL
	}
	if n.Jitter != nil {
		p.Jitter = *n.Jitter
	}
	if d, err := cache.ParseDurability(n.Durability); n.Durability != "" && err == nil {
		p.Durability = d
	}
	if c, err := encoding.ParseProvider(n.Compression); n.Compression != "" && err == nil {
		p.Compression = c
	}
	return p
}
