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

package local

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHub(t *testing.T) {
	hub := NewHub()
	ctx := context.Background()
	t1, t2 := hub.Transport(), hub.Transport()
	var got [][]byte
	sub, err := t2.Subscribe(ctx, "topic", func(b []byte) { got = append(got, b) })
	require.NoError(t, err)

	payload := []byte("hello")
	require.NoError(t, t1.Publish(ctx, "topic", payload))
	require.NoError(t, t1.Publish(ctx, "other", payload))
	require.Len(t, got, 1)
	payload[0] = 'j'
	require.Equal(t, []byte("hello"), got[0])

	require.NoError(t, sub.Close())
	require.NoError(t, t1.Publish(ctx, "topic", payload))
	require.Len(t, got, 1)
	require.Empty(t, hub.subs)
	require.NoError(t, t1.Close())
}
