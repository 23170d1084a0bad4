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

// Package badger provides a Durability Log backed by a badger database
package badger

import (
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"github.com/trickstercache/tiercache/pkg/cache/durability"
	"github.com/trickstercache/tiercache/pkg/observability/logging"
	"github.com/trickstercache/tiercache/pkg/observability/logging/logger"

	"github.com/dgraph-io/badger/v4"
)

var prefix = []byte("wb/")

// Log is a badger-backed durability.Log. Writes are not synced as they are
// committed; Sync flushes the value log to disk.
type Log struct {
	path string

	mtx    sync.RWMutex
	db     *badger.DB
	seq    uint64
	seqMtx sync.Mutex
	closed bool
}

var _ durability.Log = &Log{}

// Open opens or creates the badger database in the directory at path
func Open(path string) (*Log, error) {
	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithLogger(badgerLogger{})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open durability log: %w", err)
	}
	l := &Log{path: path, db: db}
	if err := l.loadSeq(); err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("opened durability log", logging.Pairs{"path": path, "lastSeq": l.seq})
	return l, nil
}

func (l *Log) loadSeq() error {
	return l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		seek := append(append([]byte{}, prefix...), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
		it.Seek(seek)
		if it.ValidForPrefix(prefix) {
			l.seq = binary.BigEndian.Uint64(it.Item().Key()[len(prefix):])
		}
		return nil
	})
}

// Append implements durability.Log
func (l *Log) Append(recs ...*durability.Record) error {
	if len(recs) == 0 {
		return nil
	}
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	if l.closed {
		return durability.ErrClosed
	}
	// sequence assignment and commit share a lock so keys land in seq order
	l.seqMtx.Lock()
	defer l.seqMtx.Unlock()
	wb := l.db.NewWriteBatch()
	defer wb.Cancel()
	seq := l.seq
	for _, r := range recs {
		seq++
		r.Seq = seq
		v, err := r.MarshalMsg(nil)
		if err != nil {
			return err
		}
		if err := wb.Set(seqKey(seq), v); err != nil {
			return fmt.Errorf("write durability log: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("write durability log: %w", err)
	}
	l.seq = seq
	return nil
}

// Sync implements durability.Log
func (l *Log) Sync() error {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	if l.closed {
		return durability.ErrClosed
	}
	return l.db.Sync()
}

// Replay implements durability.Log
func (l *Log) Replay(fn func(*durability.Record) error) error {
	var recs []*durability.Record
	l.mtx.RLock()
	if l.closed {
		l.mtx.RUnlock()
		return durability.ErrClosed
	}
	err := l.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				r := &durability.Record{}
				if _, err := r.UnmarshalMsg(v); err != nil {
					return fmt.Errorf("decode durability record: %w", err)
				}
				recs = append(recs, r)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	l.mtx.RUnlock()
	if err != nil {
		return err
	}
	for _, r := range recs {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// Truncate implements durability.Log
func (l *Log) Truncate() error {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	if l.closed {
		return durability.ErrClosed
	}
	l.seqMtx.Lock()
	defer l.seqMtx.Unlock()
	return l.db.DropPrefix(prefix)
}

// Close closes the database
func (l *Log) Close() error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}

func seqKey(seq uint64) []byte {
	k := make([]byte, len(prefix)+8)
	copy(k, prefix)
	binary.BigEndian.PutUint64(k[len(prefix):], seq)
	return k
}

// badgerLogger routes badger's internal logging to the package logger
type badgerLogger struct{}

func (badgerLogger) Errorf(f string, v ...any) {
	logger.Error("badger", logging.Pairs{"detail": msg(f, v)})
}

func (badgerLogger) Warningf(f string, v ...any) {
	logger.Warn("badger", logging.Pairs{"detail": msg(f, v)})
}

func (badgerLogger) Infof(f string, v ...any) {
	logger.Debug("badger", logging.Pairs{"detail": msg(f, v)})
}

func (badgerLogger) Debugf(f string, v ...any) {
	logger.Debug("badger", logging.Pairs{"detail": msg(f, v)})
}

func msg(f string, v []any) string {
	return strings.TrimSpace(fmt.Sprintf(f, v...))
}
