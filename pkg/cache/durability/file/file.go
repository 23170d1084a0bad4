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

// Package file provides a Durability Log backed by an append-only file. Each
// record is framed with its length and an xxhash checksum so a torn tail
// left by a crash can be detected and discarded on open.
package file

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/trickstercache/tiercache/pkg/cache/durability"
	"github.com/trickstercache/tiercache/pkg/observability/logging"
	"github.com/trickstercache/tiercache/pkg/observability/logging/logger"

	"github.com/cespare/xxhash/v2"
)

const headerSize = 12 // 4-byte payload length + 8-byte xxhash

var errCorruptFrame = errors.New("corrupt frame")

// Log is a file-backed durability.Log
type Log struct {
	path string

	mtx      sync.Mutex
	f        *os.File
	w        *bufio.Writer
	seq      uint64
	appended uint64
	synced   uint64
	closed   bool

	// syncMtx admits one fsync at a time; callers queued behind it find their
	// records already synced and return without another fsync
	syncMtx sync.Mutex

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

var _ durability.Log = &Log{}

// Open opens or creates the log file at path. Records that were fully written
// are retained; a partial trailing record is truncated. When syncInterval is
// positive, appended records are synced in the background at that interval.
func Open(path string, syncInterval time.Duration) (*Log, error) {
	if path == "" {
		return nil, errors.New("durability log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open durability log: %w", err)
	}
	l := &Log{path: path, f: f, w: bufio.NewWriter(f), stopCh: make(chan struct{})}
	if err := l.recover(); err != nil {
		f.Close()
		return nil, err
	}
	if syncInterval > 0 {
		l.wg.Add(1)
		go l.syncLoop(syncInterval)
	}
	return l, nil
}

// recover scans the existing file for the highest sequence number and
// truncates any torn tail
func (l *Log) recover() error {
	b, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("read durability log: %w", err)
	}
	var count int
	good, err := decodeFrames(b, func(r *durability.Record) error {
		if r.Seq > l.seq {
			l.seq = r.Seq
		}
		count++
		return nil
	})
	if err != nil {
		return err
	}
	if good < len(b) {
		logger.Warn("truncating torn durability log tail", logging.Pairs{
			"path": l.path, "validBytes": good, "discardedBytes": len(b) - good,
		})
		if err := l.f.Truncate(int64(good)); err != nil {
			return fmt.Errorf("truncate durability log: %w", err)
		}
		if err := l.f.Sync(); err != nil {
			return fmt.Errorf("sync durability log: %w", err)
		}
	}
	logger.Debug("opened durability log", logging.Pairs{
		"path": l.path, "records": count, "lastSeq": l.seq,
	})
	return nil
}

func (l *Log) syncLoop(interval time.Duration) {
	defer l.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stopCh:
			return
		case <-ticker.C:
			if err := l.Sync(); err != nil && !errors.Is(err, durability.ErrClosed) {
				logger.Error("durability log sync failed", logging.Pairs{
					"path": l.path, "detail": err.Error(),
				})
			}
		}
	}
}

// Append implements durability.Log
func (l *Log) Append(recs ...*durability.Record) error {
	if len(recs) == 0 {
		return nil
	}
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if l.closed {
		return durability.ErrClosed
	}
	var buf []byte
	for _, r := range recs {
		l.seq++
		r.Seq = l.seq
		var err error
		buf, err = appendFrame(buf[:0], r)
		if err != nil {
			return err
		}
		if _, err := l.w.Write(buf); err != nil {
			return fmt.Errorf("write durability log: %w", err)
		}
	}
	l.appended++
	return nil
}

// Sync implements durability.Log
func (l *Log) Sync() error {
	l.mtx.Lock()
	target := l.appended
	l.mtx.Unlock()

	l.syncMtx.Lock()
	defer l.syncMtx.Unlock()

	l.mtx.Lock()
	if l.synced >= target {
		l.mtx.Unlock()
		return nil
	}
	if l.closed {
		l.mtx.Unlock()
		return durability.ErrClosed
	}
	if err := l.w.Flush(); err != nil {
		l.mtx.Unlock()
		return fmt.Errorf("flush durability log: %w", err)
	}
	upto := l.appended
	l.mtx.Unlock()

	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("sync durability log: %w", err)
	}
	l.mtx.Lock()
	l.synced = upto
	l.mtx.Unlock()
	return nil
}

// Replay implements durability.Log
func (l *Log) Replay(fn func(*durability.Record) error) error {
	l.mtx.Lock()
	if l.closed {
		l.mtx.Unlock()
		return durability.ErrClosed
	}
	err := l.w.Flush()
	l.mtx.Unlock()
	if err != nil {
		return fmt.Errorf("flush durability log: %w", err)
	}
	b, err := os.ReadFile(l.path)
	if err != nil {
		return fmt.Errorf("read durability log: %w", err)
	}
	_, err = decodeFrames(b, fn)
	return err
}

// Truncate implements durability.Log. Sequence numbers keep increasing
// across truncations.
func (l *Log) Truncate() error {
	l.syncMtx.Lock()
	defer l.syncMtx.Unlock()
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if l.closed {
		return durability.ErrClosed
	}
	l.w.Reset(l.f)
	if err := l.f.Truncate(0); err != nil {
		return fmt.Errorf("truncate durability log: %w", err)
	}
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("sync durability log: %w", err)
	}
	l.synced = l.appended
	return nil
}

// Close syncs any buffered records and closes the file
func (l *Log) Close() error {
	l.mtx.Lock()
	if l.closed {
		l.mtx.Unlock()
		return nil
	}
	l.mtx.Unlock()
	l.stopOnce.Do(func() { close(l.stopCh) })
	l.wg.Wait()
	err := l.Sync()

	l.syncMtx.Lock()
	defer l.syncMtx.Unlock()
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if cerr := l.f.Close(); err == nil {
		err = cerr
	}
	return err
}

func appendFrame(b []byte, r *durability.Record) ([]byte, error) {
	b = append(b, make([]byte, headerSize)...)
	b, err := r.MarshalMsg(b)
	if err != nil {
		return nil, err
	}
	payload := b[headerSize:]
	binary.BigEndian.PutUint32(b[0:4], uint32(len(payload)))
	binary.BigEndian.PutUint64(b[4:12], xxhash.Sum64(payload))
	return b, nil
}

// decodeFrames calls fn for each intact frame in b and returns the offset
// just past the last intact frame
func decodeFrames(b []byte, fn func(*durability.Record) error) (int, error) {
	var off int
	for off < len(b) {
		r, n, err := decodeFrame(b[off:])
		if err != nil {
			break
		}
		if err := fn(r); err != nil {
			return off, err
		}
		off += n
	}
	return off, nil
}

func decodeFrame(b []byte) (*durability.Record, int, error) {
	if len(b) < headerSize {
		return nil, 0, errCorruptFrame
	}
	size := int(binary.BigEndian.Uint32(b[0:4]))
	if len(b)-headerSize < size {
		return nil, 0, errCorruptFrame
	}
	payload := b[headerSize : headerSize+size]
	if xxhash.Sum64(payload) != binary.BigEndian.Uint64(b[4:12]) {
		return nil, 0, errCorruptFrame
	}
	r := &durability.Record{}
	if _, err := r.UnmarshalMsg(payload); err != nil {
		return nil, 0, errCorruptFrame
	}
	return r, headerSize + size, nil
}
