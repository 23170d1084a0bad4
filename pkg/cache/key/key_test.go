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

package key

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestString(t *testing.T) {
	k := New("users", "42")
	require.Equal(t, "users:42", k.String())
	v := k.WithVersion("v2")
	require.Equal(t, "users:42:v2", v.String())
	// the original is unchanged
	require.Equal(t, "users:42", k.String())
	require.Equal(t, "users:", NamespacePrefix("users"))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		k        Key
		expected error
	}{
		{New("users", "42"), nil},
		{New("users", "a:b"), nil},
		{New("", "42"), ErrEmptyNamespace},
		{New("users", ""), ErrEmptyIdentifier},
		{New("us:ers", "42"), ErrInvalidNamespace},
		{New("__tag__", "42"), ErrReservedNamespace},
	}
	for _, test := range tests {
		t.Run(test.k.String(), func(t *testing.T) {
			require.ErrorIs(t, test.k.Validate(), test.expected)
		})
	}
}
