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

package registration

import (
	"testing"

	terr "github.com/trickstercache/tiercache/pkg/observability/tracing/errors"
	"github.com/trickstercache/tiercache/pkg/observability/tracing/options"

	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestNewTracerProvider(t *testing.T) {
	tp, err := NewTracerProvider(nil)
	require.NoError(t, err)
	if _, ok := tp.(noop.TracerProvider); !ok {
		t.Errorf("expected noop provider, got %T", tp)
	}

	o := options.New()
	tp, err = NewTracerProvider(o)
	require.NoError(t, err)
	if _, ok := tp.(noop.TracerProvider); !ok {
		t.Errorf("expected noop provider, got %T", tp)
	}

	o.Provider = "stdout"
	tp, err = NewTracerProvider(o)
	require.NoError(t, err)
	if _, ok := tp.(*sdktrace.TracerProvider); !ok {
		t.Errorf("expected sdk provider, got %T", tp)
	}

	o.Provider = "zipkin"
	_, err = NewTracerProvider(o)
	require.ErrorIs(t, err, terr.ErrInvalidProvider)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate(nil))
	o := options.New()
	require.NoError(t, Validate(o))
	o.SampleRate = 1.5
	require.ErrorIs(t, Validate(o), terr.ErrInvalidSampleRate)
}
