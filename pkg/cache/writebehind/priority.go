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

package writebehind

import (
	"strconv"

	"github.com/trickstercache/tiercache/pkg/cache"
)

// Priority is a write-behind queue tier. Lower values flush first.
type Priority uint8

const (
	// High holds re-queued failures
	High = Priority(iota)
	// Normal holds deferred writes
	Normal
	// Low holds eventual writes
	Low

	numPriorities
)

var priorityValues = map[Priority]string{
	High:   "high",
	Normal: "normal",
	Low:    "low",
}

func (p Priority) String() string {
	if v, ok := priorityValues[p]; ok {
		return v
	}
	return strconv.Itoa(int(p))
}

func (p Priority) valid() bool {
	return p < numPriorities
}

// PriorityFor returns the tier for a write of the provided durability
func PriorityFor(d cache.Durability) Priority {
	if d == cache.DurabilityEventual {
		return Low
	}
	return Normal
}
