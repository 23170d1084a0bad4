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

// Package bbolt provides a Durability Log backed by a bbolt database
package bbolt

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/trickstercache/tiercache/pkg/cache/durability"
	"github.com/trickstercache/tiercache/pkg/observability/logging"
	"github.com/trickstercache/tiercache/pkg/observability/logging/logger"

	"go.etcd.io/bbolt"
)

// Log is a bbolt-backed durability.Log. Each record is stored under its
// big-endian sequence number, so a cursor walk replays in append order.
type Log struct {
	path   string
	bucket []byte

	mtx    sync.RWMutex
	db     *bbolt.DB
	closed bool
}

var _ durability.Log = &Log{}

// Open opens or creates the bbolt database at path and ensures the bucket exists
func Open(path, bucket string) (*Log, error) {
	db, err := bbolt.Open(path, 0o644, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open durability log: %w", err)
	}
	l := &Log{path: path, bucket: []byte(bucket), db: db}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(l.bucket)
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Debug("opened durability log", logging.Pairs{"path": path, "bucket": bucket})
	return l, nil
}

// Append implements durability.Log. Concurrent Appends are coalesced into a
// single transaction by bbolt's Batch.
func (l *Log) Append(recs ...*durability.Record) error {
	if len(recs) == 0 {
		return nil
	}
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	if l.closed {
		return durability.ErrClosed
	}
	return l.db.Batch(func(tx *bbolt.Tx) error {
		b := tx.Bucket(l.bucket)
		for _, r := range recs {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			r.Seq = seq
			v, err := r.MarshalMsg(nil)
			if err != nil {
				return err
			}
			if err := b.Put(seqKey(seq), v); err != nil {
				return fmt.Errorf("write durability log: %w", err)
			}
		}
		return nil
	})
}

// Sync implements durability.Log. Every committed transaction is already
// synced to disk, so there is nothing to do.
func (l *Log) Sync() error {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	if l.closed {
		return durability.ErrClosed
	}
	return nil
}

// Replay implements durability.Log
func (l *Log) Replay(fn func(*durability.Record) error) error {
	var recs []*durability.Record
	l.mtx.RLock()
	if l.closed {
		l.mtx.RUnlock()
		return durability.ErrClosed
	}
	err := l.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(l.bucket).ForEach(func(_, v []byte) error {
			r := &durability.Record{}
			if _, err := r.UnmarshalMsg(v); err != nil {
				return fmt.Errorf("decode durability record: %w", err)
			}
			recs = append(recs, r)
			return nil
		})
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

// Truncate implements durability.Log. The bucket sequence is carried over so
// sequence numbers keep increasing.
func (l *Log) Truncate() error {
	l.mtx.RLock()
	defer l.mtx.RUnlock()
	if l.closed {
		return durability.ErrClosed
	}
	return l.db.Update(func(tx *bbolt.Tx) error {
		seq := tx.Bucket(l.bucket).Sequence()
		if err := tx.DeleteBucket(l.bucket); err != nil {
			return err
		}
		b, err := tx.CreateBucket(l.bucket)
		if err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		return b.SetSequence(seq)
	})
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
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}
