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

package hotkeys

import (
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/trickstercache/tiercache/pkg/config"

	"github.com/stretchr/testify/require"
)

func testTracker(now *time.Time, draw float64) *Tracker {
	return New(&config.HotKeyOptions{
		Threshold:          3,
		Window:             time.Minute,
		RefreshProbability: 0.5,
	},
		WithClock(func() time.Time { return *now }),
		WithRand(func() float64 { return draw }),
	)
}

func TestRecordAndHot(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := testTracker(&now, 0.1)

	require.Equal(t, int64(1), tr.Record("k"))
	require.Equal(t, int64(2), tr.Record("k"))
	require.False(t, tr.IsHot("k"))
	require.False(t, tr.ShouldRefresh("k"))
	require.Equal(t, int64(3), tr.Record("k"))
	require.True(t, tr.IsHot("k"))
	require.True(t, tr.ShouldRefresh("k"))
	require.False(t, tr.IsHot("other"))

	ai, ok := tr.Get("k")
	require.True(t, ok)
	require.Equal(t, now, ai.WindowStart)

	// a new window resets the count
	now = now.Add(2 * time.Minute)
	require.Equal(t, int64(0), tr.Count("k"))
	require.False(t, tr.IsHot("k"))
	require.Equal(t, int64(1), tr.Record("k"))
}

func TestShouldRefreshProbability(t *testing.T) {
	now := time.Now()
	tr := testTracker(&now, 0.9)
	for i := 0; i < 5; i++ {
		tr.Record("k")
	}
	require.True(t, tr.IsHot("k"))
	require.False(t, tr.ShouldRefresh("k"))
}

func TestPrune(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := testTracker(&now, 0)
	for i := 0; i < 100; i++ {
		tr.Record(strconv.Itoa(i))
	}
	now = now.Add(30 * time.Second)
	tr.Record("0")
	require.Equal(t, 0, tr.Prune())
	now = now.Add(45 * time.Second)
	require.Equal(t, 99, tr.Prune())
	require.Equal(t, 1, tr.Len())
}

func TestConcurrentRecord(t *testing.T) {
	tr := New(&config.HotKeyOptions{Threshold: 1000, Window: time.Hour})
	wg := sync.WaitGroup{}
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				tr.Record("shared")
				tr.Record(strconv.Itoa(i))
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int64(1000), tr.Count("shared"))
	require.True(t, tr.IsHot("shared"))
	require.Equal(t, 101, tr.Len())
}
