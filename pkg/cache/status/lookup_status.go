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

// Package status governs the possible Cache Lookup Status values
package status

import "strconv"

// LookupStatus defines the possible status of a cache lookup
type LookupStatus int

const (
	// LookupStatusHit indicates a hit in the in-process tier
	LookupStatusHit = LookupStatus(iota)
	// LookupStatusRemoteHit indicates a miss in the in-process tier and a hit
	// in the remote tier
	LookupStatusRemoteHit
	// LookupStatusKeyMiss indicates the key was found in neither tier
	LookupStatusKeyMiss
	// LookupStatusNegativeHit indicates the negative filter reported the key
	// as definitely absent, so neither tier was consulted
	LookupStatusNegativeHit
	// LookupStatusLoaded indicates a miss that was served by the caller's loader
	LookupStatusLoaded
	// LookupStatusStale indicates an expired in-process entry was served
	// because the remote tier failed
	LookupStatusStale
	// LookupStatusError indicates that there was an error looking up the object in the cache
	LookupStatusError
)

var cacheLookupStatusNames = map[string]LookupStatus{
	"hit":    LookupStatusHit,
	"rhit":   LookupStatusRemoteHit,
	"kmiss":  LookupStatusKeyMiss,
	"nchit":  LookupStatusNegativeHit,
	"loaded": LookupStatusLoaded,
	"stale":  LookupStatusStale,
	"error":  LookupStatusError,
}

var cacheLookupStatusValues = make(map[LookupStatus]string)

func init() {
	for k, v := range cacheLookupStatusNames {
		cacheLookupStatusValues[v] = k
	}
}

func (s LookupStatus) String() string {
	if v, ok := cacheLookupStatusValues[s]; ok {
		return v
	}
	return strconv.Itoa(int(s))
}

// Found returns true if the status represents a served value
func (s LookupStatus) Found() bool {
	switch s {
	case LookupStatusHit, LookupStatusRemoteHit, LookupStatusLoaded, LookupStatusStale:
		return true
	}
	return false
}
