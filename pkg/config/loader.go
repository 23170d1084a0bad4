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
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/trickstercache/tiercache/pkg/cache"

	"gopkg.in/yaml.v3"
)

// Load returns the Options, starting with the defaults, then overriding
// with the provided YAML file, and finally with environment variables.
// The result is validated.
func Load(path string) (*Options, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	return LoadBytes(b)
}

// LoadBytes is Load for in-memory YAML
func LoadBytes(b []byte) (*Options, error) {
	o := New()
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(o); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", cache.ErrInvalidConfiguration, err)
	}
	o.fillDefaults()
	o.loadEnvVars()
	if err := o.Validate(); err != nil {
		return nil, err
	}
	return o, nil
}

// fillDefaults restores default sections that were explicitly emptied in YAML
func (o *Options) fillDefaults() {
	d := New()
	if o.Namespaces == nil {
		o.Namespaces = d.Namespaces
	}
	if o.Memory == nil {
		o.Memory = d.Memory
	}
	if o.WriteBehind == nil {
		o.WriteBehind = d.WriteBehind
	}
	if o.DurabilityLog == nil {
		o.DurabilityLog = d.DurabilityLog
	}
	if o.NegativeFilter == nil {
		o.NegativeFilter = d.NegativeFilter
	}
	if o.HotKeys == nil {
		o.HotKeys = d.HotKeys
	}
	if o.Coalescer == nil {
		o.Coalescer = d.Coalescer
	}
	if o.Compression == nil {
		o.Compression = d.Compression
	}
	if o.Promotion == nil {
		o.Promotion = d.Promotion
	}
	if o.Invalidation == nil {
		o.Invalidation = d.Invalidation
	}
	if o.Invalidation.Etcd == nil {
		o.Invalidation.Etcd = d.Invalidation.Etcd
	}
	if o.Redis == nil {
		o.Redis = d.Redis
	}
	if o.Logging == nil {
		o.Logging = d.Logging
	}
	if o.Tracing == nil {
		o.Tracing = d.Tracing
	}
}
