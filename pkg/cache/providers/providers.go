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

// Package providers opens the configured Durability Log provider
package providers

import (
	"fmt"
	"strconv"

	"github.com/trickstercache/tiercache/pkg/cache"
	"github.com/trickstercache/tiercache/pkg/cache/durability"
	"github.com/trickstercache/tiercache/pkg/cache/durability/badger"
	"github.com/trickstercache/tiercache/pkg/cache/durability/bbolt"
	"github.com/trickstercache/tiercache/pkg/cache/durability/file"
	"github.com/trickstercache/tiercache/pkg/config"
)

// Provider enumerates the durability log providers
type Provider int

const (
	// NoneID indicates no durability log; pending writes are lost on crash
	NoneID = Provider(iota)
	// FileID indicates an append-only file log
	FileID
	// BBoltID indicates a bbolt-backed log
	BBoltID
	// BadgerDBID indicates a badger-backed log
	BadgerDBID
)

// Names is a map of durability log providers keyed by name
var Names = map[string]Provider{
	config.DurabilityLogNone:   NoneID,
	"":                         NoneID,
	config.DurabilityLogFile:   FileID,
	config.DurabilityLogBBolt:  BBoltID,
	config.DurabilityLogBadger: BadgerDBID,
}

// Values is a map of durability log providers keyed by internal id
var Values = make(map[Provider]string)

func init() {
	for k, v := range Names {
		if k == "" {
			continue
		}
		Values[v] = k
	}
}

func (p Provider) String() string {
	if v, ok := Values[p]; ok {
		return v
	}
	return strconv.Itoa(int(p))
}

// Open returns the durability.Log described by the options
func Open(o *config.DurabilityLogOptions) (durability.Log, error) {
	if o == nil {
		return durability.Nop{}, nil
	}
	p, ok := Names[o.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: unknown durability log provider %q",
			cache.ErrInvalidConfiguration, o.Provider)
	}
	switch p {
	case FileID:
		return file.Open(o.Path, o.SyncInterval)
	case BBoltID:
		return bbolt.Open(o.Path, o.Bucket)
	case BadgerDBID:
		return badger.Open(o.Path)
	}
	return durability.Nop{}, nil
}
