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
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/trickstercache/tiercache/pkg/cache"
	"github.com/trickstercache/tiercache/pkg/cache/durability"
	"github.com/trickstercache/tiercache/pkg/cache/durability/file"
	"github.com/trickstercache/tiercache/pkg/config"

	"github.com/stretchr/testify/require"
)

var errRemote = errors.New("remote down")

type testWriter struct {
	mtx     sync.Mutex
	batches [][]string
	values  map[string][]byte
	fail    func(*durability.Record) bool
}

func newTestWriter() *testWriter {
	return &testWriter{values: make(map[string][]byte)}
}

func (w *testWriter) WriteBatch(_ context.Context,
	recs []*durability.Record) ([]*durability.Record, error) {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	var failed []*durability.Record
	var keys []string
	for _, r := range recs {
		if w.fail != nil && w.fail(r) {
			failed = append(failed, r)
			continue
		}
		keys = append(keys, r.Key)
		w.values[r.Key] = r.Value
	}
	w.batches = append(w.batches, keys)
	if len(failed) > 0 {
		return failed, errRemote
	}
	return nil, nil
}

func (w *testWriter) setFail(f func(*durability.Record) bool) {
	w.mtx.Lock()
	w.fail = f
	w.mtx.Unlock()
}

func (w *testWriter) written() int {
	w.mtx.Lock()
	defer w.mtx.Unlock()
	return len(w.values)
}

func testOptions() *config.WriteBehindOptions {
	return &config.WriteBehindOptions{BatchSize: 1000}
}

func rec(key, value string, d cache.Durability) *durability.Record {
	return &durability.Record{Key: key, Value: []byte(value), TTL: time.Minute, Durability: d}
}

func openLog(t *testing.T, path string) durability.Log {
	l, err := file.Open(path, 0)
	require.NoError(t, err)
	return l
}

func TestPriorityFor(t *testing.T) {
	require.Equal(t, Normal, PriorityFor(cache.DurabilityDeferred))
	require.Equal(t, Low, PriorityFor(cache.DurabilityEventual))
	if High.String() != "high" {
		t.Errorf("expected %s got %s", "high", High.String())
	}
	if Priority(9).String() != "9" {
		t.Errorf("expected %s got %s", "9", Priority(9).String())
	}
}

func TestFlushOrder(t *testing.T) {
	w := newTestWriter()
	q := New("test", testOptions(), nil, w)
	defer q.Close(context.Background())
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, rec("low", "1", cache.DurabilityEventual), Low))
	require.NoError(t, q.Enqueue(ctx, rec("normal", "1", cache.DurabilityDeferred), Normal))
	require.NoError(t, q.Enqueue(ctx, rec("high", "1", cache.DurabilityDeferred), High))
	require.Equal(t, 3, q.Len())
	require.NoError(t, q.Flush(ctx))
	require.Equal(t, [][]string{{"high"}, {"normal"}, {"low"}}, w.batches)
	require.Equal(t, 0, q.Len())
}

func TestSupersede(t *testing.T) {
	w := newTestWriter()
	q := New("test", testOptions(), nil, w)
	defer q.Close(context.Background())
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, rec("a", "1", cache.DurabilityEventual), Low))
	require.NoError(t, q.Enqueue(ctx, rec("a", "2", cache.DurabilityDeferred), Normal))
	require.Equal(t, 1, q.Len())
	p, ok := q.Pending("a")
	require.True(t, ok)
	require.Equal(t, []byte("2"), p.Value)
	require.NoError(t, q.Flush(ctx))
	require.Equal(t, [][]string{{"a"}}, w.batches)
	require.Equal(t, []byte("2"), w.values["a"])
}

func TestFailureRequeue(t *testing.T) {
	w := newTestWriter()
	w.setFail(func(*durability.Record) bool { return true })
	var reported []*durability.Record
	var reportedErr error
	q := New("test", testOptions(), nil, w, WithFailureFunc(func(err error, recs []*durability.Record) {
		reportedErr = err
		reported = append(reported, recs...)
	}))
	defer q.Close(context.Background())
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, rec("a", "1", cache.DurabilityEventual), Low))

	err := q.Flush(ctx)
	require.ErrorIs(t, err, cache.ErrWriteFailure)
	require.ErrorIs(t, reportedErr, errRemote)
	require.Len(t, reported, 1)
	require.Equal(t, 1, q.Len())
	p, _ := q.Pending("a")
	require.Equal(t, uint8(High), p.Priority)
	require.Equal(t, 1, p.Attempts)

	w.setFail(nil)
	require.NoError(t, q.Flush(ctx))
	require.Equal(t, 0, q.Len())
	require.Equal(t, []byte("1"), w.values["a"])
}

func TestStopsAtFailingTier(t *testing.T) {
	w := newTestWriter()
	w.setFail(func(r *durability.Record) bool { return r.Key == "normal" })
	q := New("test", testOptions(), nil, w)
	defer q.Close(context.Background())
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, rec("normal", "1", cache.DurabilityDeferred), Normal))
	require.NoError(t, q.Enqueue(ctx, rec("low", "1", cache.DurabilityEventual), Low))
	require.Error(t, q.Flush(ctx))
	require.Equal(t, 2, q.Len())
	require.Equal(t, 0, w.written())

	w.setFail(nil)
	require.NoError(t, q.Flush(ctx))
	require.Equal(t, 2, w.written())
}

func TestMaxRetries(t *testing.T) {
	w := newTestWriter()
	w.setFail(func(*durability.Record) bool { return true })
	var dropped []string
	o := testOptions()
	o.MaxRetries = 2
	q := New("test", o, nil, w, WithFailureFunc(func(err error, recs []*durability.Record) {
		if errors.Is(err, ErrRetriesExhausted) {
			for _, r := range recs {
				dropped = append(dropped, r.Key)
			}
		}
	}))
	defer q.Close(context.Background())
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, rec("eventual", "1", cache.DurabilityEventual), Normal))
	require.NoError(t, q.Enqueue(ctx, rec("deferred", "1", cache.DurabilityDeferred), Normal))
	for i := 0; i < 3; i++ {
		require.Error(t, q.Flush(ctx))
	}
	require.Equal(t, []string{"eventual"}, dropped)
	require.Equal(t, []string{"deferred"}, q.PendingKeys())
}

func TestBatchSizeTriggersFlush(t *testing.T) {
	w := newTestWriter()
	q := New("test", &config.WriteBehindOptions{BatchSize: 3}, nil, w)
	defer q.Close(context.Background())
	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(ctx, rec(k, "1", cache.DurabilityEventual), Low))
	}
	require.Eventually(t, func() bool { return w.written() == 3 },
		time.Second, 5*time.Millisecond)
}

func TestFlushInterval(t *testing.T) {
	w := newTestWriter()
	q := New("test", &config.WriteBehindOptions{BatchSize: 100,
		FlushInterval: 10 * time.Millisecond}, nil, w)
	defer q.Close(context.Background())
	require.NoError(t, q.Enqueue(context.Background(),
		rec("a", "1", cache.DurabilityEventual), Low))
	require.Eventually(t, func() bool { return w.written() == 1 },
		time.Second, 5*time.Millisecond)
}

func TestRecover(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wb.log")
	ctx := context.Background()

	l := openLog(t, path)
	q := New("test", testOptions(), l, newTestWriter())
	require.NoError(t, q.Enqueue(ctx, rec("a", "1", cache.DurabilityDeferred), Normal))
	require.NoError(t, q.Enqueue(ctx, rec("b", "1", cache.DurabilityDeferred), Normal))
	require.NoError(t, q.Enqueue(ctx, rec("a", "2", cache.DurabilityDeferred), Normal))
	require.NoError(t, q.Enqueue(ctx, rec("c", "1", cache.DurabilityDeferred), Normal))
	require.Equal(t, 1, q.Discard("c", "absent"))
	// the process dies before any flush
	require.NoError(t, l.Close())

	l = openLog(t, path)
	defer l.Close()
	w := newTestWriter()
	q2 := New("test", testOptions(), l, w)
	defer q2.Close(ctx)
	n, err := q2.Recover(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.NoError(t, q2.Flush(ctx))
	require.Equal(t, 2, w.written())
	require.Equal(t, []byte("2"), w.values["a"])

	// a clean flush leaves nothing to replay
	recs, err := durability.Latest(l)
	require.NoError(t, err)
	require.Empty(t, recs)
}

func TestCompactKeepsPending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wb.log")
	ctx := context.Background()
	l := openLog(t, path)
	defer l.Close()
	w := newTestWriter()
	q := New("test", testOptions(), l, w)
	defer q.Close(ctx)

	require.NoError(t, q.Enqueue(ctx, rec("a", "1", cache.DurabilityDeferred), Normal))
	require.NoError(t, q.Flush(ctx))
	require.NoError(t, q.Enqueue(ctx, rec("b", "1", cache.DurabilityDeferred), Normal))
	recs, err := durability.Latest(l)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	require.Equal(t, "b", recs[0].Key)
}

func TestDiscardPrefix(t *testing.T) {
	w := newTestWriter()
	q := New("test", testOptions(), nil, w)
	defer q.Close(context.Background())
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, rec("users:1", "1", cache.DurabilityEventual), Low))
	require.NoError(t, q.Enqueue(ctx, rec("users:2", "1", cache.DurabilityEventual), Low))
	require.NoError(t, q.Enqueue(ctx, rec("teams:1", "1", cache.DurabilityEventual), Low))
	require.ElementsMatch(t, []string{"users:1", "users:2"}, q.DiscardPrefix("users:"))
	r := rec("teams:2", "1", cache.DurabilityEventual)
	r.Tags = []string{"blue"}
	require.NoError(t, q.Enqueue(ctx, r, Low))
	require.Equal(t, []string{"teams:2"}, q.DiscardTag("blue"))
	require.Empty(t, q.DiscardTag("blue"))
	require.NoError(t, q.Flush(ctx))
	require.Equal(t, [][]string{{"teams:1"}}, w.batches)
}

func TestClose(t *testing.T) {
	w := newTestWriter()
	q := New("test", testOptions(), nil, w)
	ctx := context.Background()
	require.NoError(t, q.Enqueue(ctx, rec("a", "1", cache.DurabilityEventual), Low))
	require.NoError(t, q.Close(ctx))
	require.Equal(t, 1, w.written())
	require.ErrorIs(t, q.Close(ctx), cache.ErrClosed)
	require.ErrorIs(t, q.Enqueue(ctx, rec("b", "1", cache.DurabilityEventual), Low),
		cache.ErrClosed)
	require.Error(t, q.Enqueue(ctx, rec("b", "1", cache.DurabilityEventual), Priority(7)))
}
