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

package types

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestEnvString(t *testing.T) {
	t.Setenv("FOO", "bar")
	t.Setenv("BAR", "baz")
	var out struct {
		A EnvString `yaml:"a"`
		B EnvString `yaml:"b"`
		C EnvString `yaml:"c"`
	}
	err := yaml.Unmarshal([]byte("a: ${FOO}\nb: prefix-${BAR}\nc: plain\n"), &out)
	require.NoError(t, err)
	require.Equal(t, "bar", out.A.String())
	require.Equal(t, "prefix-baz", string(out.B))
	require.Equal(t, "plain", string(out.C))
}

func TestEnvStringMap(t *testing.T) {
	t.Setenv("FOO", "bar")
	var out struct {
		M EnvStringMap `yaml:"m"`
	}
	err := yaml.Unmarshal([]byte("m:\n  x: ${FOO}\n  y: literal\n"), &out)
	require.NoError(t, err)
	require.Equal(t, EnvStringMap{"x": "bar", "y": "literal"}, out.M)

	err = yaml.Unmarshal([]byte("m: [1, 2]\n"), &out)
	require.Error(t, err)
}
