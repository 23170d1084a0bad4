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

// Package durability defines the write-ahead log that persists pending
// write-behind records so they survive a process restart
package durability

import (
	"errors"
	"slices"
)

// ErrClosed is returned by operations on a closed Log
var ErrClosed = errors.New("durability log is closed")

// Log is an append-only log of pending Records
type Log interface {
	// Append assigns each record the next sequence number and writes it to
	// the log. Records are durable only after a subsequent Sync.
	Append(recs ...*Record) error
	// Sync makes every previously appended record durable. Concurrent
	// callers share a single flush to stable storage.
	Sync() error
	// Replay calls fn for every record in the log, in append order
	Replay(fn func(*Record) error) error
	// Truncate removes every record from the log
	Truncate() error
	Close() error
}

// Latest replays the log and returns, in sequence order, the last record of
// each key, omitting keys whose last record is a tombstone
func Latest(l Log) ([]*Record, error) {
	last := make(map[string]*Record)
	err := l.Replay(func(r *Record) error {
		if prev, ok := last[r.Key]; !ok || r.Seq >= prev.Seq {
			last[r.Key] = r
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]*Record, 0, len(last))
	for _, r := range last {
		if r.Op == OpDelete {
			continue
		}
		out = append(out, r)
	}
	slices.SortFunc(out, func(a, b *Record) int {
		switch {
		case a.Seq < b.Seq:
			return -1
		case a.Seq > b.Seq:
			return 1
		}
		return 0
	})
	return out, nil
}

// Nop is a Log that persists nothing, used when no durability log is configured
type Nop struct{}

func (Nop) Append(...*Record) error          { return nil }
func (Nop) Sync() error                      { return nil }
func (Nop) Replay(func(*Record) error) error { return nil }
func (Nop) Truncate() error                  { return nil }
func (Nop) Close() error                     { return nil }
