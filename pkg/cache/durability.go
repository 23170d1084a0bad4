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

package cache

import (
	"fmt"
	"strconv"
	"strings"
)

// Durability enumerates how a write must reach the remote store
type Durability int

const (
	// DurabilityImmediate writes synchronously to the remote store
	DurabilityImmediate = Durability(iota)
	// DurabilityDeferred writes asynchronously, persisted to the durability log first
	DurabilityDeferred
	// DurabilityEventual writes asynchronously on a best-effort basis
	DurabilityEventual
)

// DurabilityNames is a map of Durability modes keyed by name
var DurabilityNames = map[string]Durability{
	"immediate": DurabilityImmediate,
	"deferred":  DurabilityDeferred,
	"eventual":  DurabilityEventual,
}

// DurabilityValues is a map of Durability names keyed by mode
var DurabilityValues = make(map[Durability]string)

func init() {
	for k, v := range DurabilityNames {
		DurabilityValues[v] = k
	}
}

func (d Durability) String() string {
	if v, ok := DurabilityValues[d]; ok {
		return v
	}
	return strconv.Itoa(int(d))
}

// ParseDurability returns the Durability mode for the provided name
func ParseDurability(name string) (Durability, error) {
	if d, ok := DurabilityNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return d, nil
	}
	return DurabilityImmediate, fmt.Errorf("%w: unknown durability %q",
		ErrInvalidConfiguration, name)
}
